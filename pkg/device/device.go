// Package device models a LoRa end device: its action set, bandit state,
// proximate-gateway packet templates, and the bookkeeping the transmission
// loop updates on every attempt. The transmission loop itself is driven by
// pkg/simulator, which owns the event scheduler and gateway registry; this
// package exposes the per-phase operations the loop calls into.
package device

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/lora-mab/lora-sim/pkg/device/bandit"
	"github.com/lora-mab/lora-sim/pkg/packet"
	"github.com/lora-mab/lora-sim/pkg/propagation"
)

// Mode is a device's action-selection strategy.
type Mode int

const (
	SMART Mode = iota
	RANDOM
	UNIFORM
)

func (m Mode) String() string {
	switch m {
	case SMART:
		return "SMART"
	case RANDOM:
		return "RANDOM"
	case UNIFORM:
		return "UNIFORM"
	default:
		return "UNKNOWN"
	}
}

// InfoMode is how much a device knows about the collisions its ACKs
// carry, which determines both its action-set restriction and its success
// definition.
type InfoMode int

const (
	InfoNone InfoMode = iota
	InfoPartial
	InfoFull
)

func (m InfoMode) String() string {
	switch m {
	case InfoNone:
		return "NO"
	case InfoPartial:
		return "PARTIAL"
	case InfoFull:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// GatewayPosition is the minimal view of a gateway a device needs at
// construction: its id and planar position.
type GatewayPosition struct {
	ID   int
	X, Y float64
}

// Device is a single LoRa end device.
type Device struct {
	ID   int
	X, Y float64

	Mode     Mode
	Info     InfoMode
	PeriodMs float64 // mean inter-arrival time, exponentially distributed

	Actions []packet.Action
	Bandit  *bandit.State
	Params  bandit.Params

	// ProximateGateways maps gateway id to distance, for every gateway
	// within interference range. GatewayOrder fixes iteration order
	// (ascending id) since Go map iteration is randomized and the
	// scheduler needs deterministic per-gateway dispatch order.
	ProximateGateways map[int]float64
	GatewayOrder      []int
	Templates         map[int]*packet.Packet

	lastACKs map[int]*packet.Packet // gateway id -> ACKed packet this round

	PacketsTransmitted int
	PacketsSuccessful  int
	TransmitTimeMs     float64
	EnergyJ            float64
}

// Config carries the construction-time inputs for a single device.
type Config struct {
	ID       int
	X, Y     float64
	Mode     Mode
	Info     InfoMode
	PeriodMs float64
	MaxTXPow float64

	SFSet   []propagation.SF
	FreqSet []int
	PowSet  []float64

	Gateways                 []GatewayPosition
	InterferenceThresholdDBm float64
	PropParams               propagation.Params
	MaxRangeTable            propagation.MaxRangeTable
	PHYBase                  propagation.PHYParams

	Horizon    float64
	Algo       bandit.Algo
	ClampFloor float64
}

// New builds a device: computes its proximate-gateway set, restricts its
// spreading-factor set under PARTIAL/FULL information, enumerates its
// action set, derives its EXP3/EXP3-S learning-rate parameters, and builds
// one packet template per proximate gateway.
func New(cfg Config) (*Device, error) {
	maxInterferenceDist := propagation.DistanceFromPower(cfg.MaxTXPow, cfg.InterferenceThresholdDBm, cfg.PropParams)

	proximate := make(map[int]float64)
	var order []int
	for _, gw := range cfg.Gateways {
		dist := euclid(cfg.X, cfg.Y, gw.X, gw.Y)
		if dist <= maxInterferenceDist {
			proximate[gw.ID] = dist
			order = append(order, gw.ID)
		}
	}
	sort.Ints(order)
	if len(order) == 0 {
		return nil, fmt.Errorf("device %d: no gateway within interference range %v m", cfg.ID, maxInterferenceDist)
	}

	sfSet := cfg.SFSet
	if cfg.Info != InfoNone {
		// Spec §4.4: under PARTIAL/FULL info, a device restricts its SF
		// set to SFs whose max range covers its own (nearest) gateway's
		// distance. The legacy source resolves "its own gateway" as an
		// arbitrary indexed entry; we use the nearest, which is the only
		// physically sensible reading.
		nearest := proximate[order[0]]
		for _, id := range order {
			if proximate[id] < nearest {
				nearest = proximate[id]
			}
		}
		sfSet = restrictSFByDistance(cfg.SFSet, cfg.MaxRangeTable.DistBySF, nearest)
		if len(sfSet) == 0 {
			return nil, fmt.Errorf("device %d: distance-restricted SF set is empty", cfg.ID)
		}
	}

	actions := BuildActionSet(sfSet, cfg.FreqSet, cfg.PowSet)
	if len(actions) == 0 {
		return nil, fmt.Errorf("device %d: empty action set", cfg.ID)
	}

	params := bandit.DeriveParams(cfg.Algo, len(actions), cfg.Horizon, cfg.ClampFloor)

	d := &Device{
		ID:                cfg.ID,
		X:                 cfg.X,
		Y:                 cfg.Y,
		Mode:              cfg.Mode,
		Info:              cfg.Info,
		PeriodMs:          cfg.PeriodMs,
		Actions:           actions,
		Params:            params,
		ProximateGateways: proximate,
		GatewayOrder:      order,
		Templates:         make(map[int]*packet.Packet, len(order)),
		lastACKs:          make(map[int]*packet.Packet),
	}

	d.Bandit = bandit.NewUniform(len(actions))

	for _, gwID := range order {
		dist := proximate[gwID]
		d.Templates[gwID] = packet.New(cfg.ID, gwID, dist, cfg.PHYBase.BW, cfg.PHYBase)
	}

	return d, nil
}

// InitRandom resamples the initial probability vector for RANDOM-mode
// devices; SMART and UNIFORM devices use the uniform vector bandit.State
// already carries after construction.
func (d *Device) InitRandom(rng *rand.Rand) {
	if d.Mode == RANDOM {
		d.Bandit.ResampleRandom(rng, d.Params.ClampFloor)
	}
}

func euclid(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return math.Sqrt(dx*dx + dy*dy)
}

// BuildActionSet enumerates the action set lexicographically over
// (SF, Freq, Power) with SF varying slowest and Power fastest, matching
// spec §8 invariant 8: A[i*f*q + j*q + k] = (SF[i], F[j], P[k]).
func BuildActionSet(sfSet []propagation.SF, freqSet []int, powSet []float64) []packet.Action {
	actions := make([]packet.Action, 0, len(sfSet)*len(freqSet)*len(powSet))
	for _, sf := range sfSet {
		for _, freq := range freqSet {
			for _, pow := range powSet {
				actions = append(actions, packet.Action{SF: sf, Freq: freq, Power: pow})
			}
		}
	}
	return actions
}

// restrictSFByDistance keeps only the SFs whose table-max-range covers
// dist, per spec §4.4.
func restrictSFByDistance(sfSet []propagation.SF, distBySF map[propagation.SF]float64, dist float64) []propagation.SF {
	out := make([]propagation.SF, 0, len(sfSet))
	for _, sf := range sfSet {
		if distBySF[sf] >= dist {
			out = append(out, sf)
		}
	}
	return out
}

// ResetACK clears the per-round ACK log ahead of a new transmission.
func (d *Device) ResetACK() {
	d.lastACKs = make(map[int]*packet.Packet)
}

// RecordACK records that gwID acknowledged the device's packet this round.
func (d *Device) RecordACK(gwID int, p *packet.Packet) {
	d.lastACKs[gwID] = p
}

// Acked reports whether any gateway acknowledged this round.
func (d *Device) Acked() bool {
	return len(d.lastACKs) > 0
}

// AnyCollision reports whether any ACKed packet this round was flagged
// collided — the signal a FULL-information device relies on.
func (d *Device) AnyCollision() bool {
	for _, p := range d.lastACKs {
		if p.IsCollision {
			return true
		}
	}
	return false
}

// Succeeded applies the success definition of spec §4.4: any ACK in
// NO/PARTIAL mode, an uncollided ACK in FULL mode.
func (d *Device) Succeeded() bool {
	if !d.Acked() {
		return false
	}
	if d.Info == InfoFull {
		return !d.AnyCollision()
	}
	return true
}

// BeginTransmission samples one action from the device's current
// probability vector and applies it to every proximate-gateway template,
// so all copies of this transmission share the same (SF, freq, power) —
// spec §4.2 ("configure the per-gateway packet templates with the sampled
// action"). It returns the chosen action index.
func (d *Device) BeginTransmission(rng *rand.Rand, params propagation.Params) (int, error) {
	idx, err := packet.SampleAction(rng, d.Bandit.Probs)
	if err != nil {
		return 0, err
	}
	for _, gwID := range d.GatewayOrder {
		tmpl := d.Templates[gwID]
		if err := tmpl.ApplyAction(idx, d.Actions, params); err != nil {
			return 0, err
		}
	}
	return idx, nil
}

// AccountAndLearn applies the energy/attempt bookkeeping and bandit update
// of spec §4.4 steps 8-9 for the just-completed transmission, using the
// packet template of the first gateway in GatewayOrder as the
// representative airtime/power source
// (all templates share the same SF/freq/power after BeginTransmission).
func (d *Device) AccountAndLearn(chosenAction int, rng *rand.Rand) {
	representative := d.Templates[d.GatewayOrder[0]]

	d.EnergyJ += representative.AirtimeMs / 1000.0 * propagation.DBmToMW(representative.TXPower) * 3.0 / 1000.0
	d.PacketsTransmitted++

	succeeded := d.Succeeded()
	if succeeded {
		d.PacketsSuccessful++
		d.TransmitTimeMs += representative.AirtimeMs
	}

	switch d.Mode {
	case SMART:
		probChosen := d.Bandit.Probs[chosenAction]
		reward := bandit.Reward(d.Info == InfoFull, d.Acked(), d.AnyCollision(), probChosen)
		d.Bandit.UpdateSmart(d.Params, chosenAction, reward)
		d.Bandit.RescaleIfNeeded()
	case RANDOM:
		d.Bandit.ResampleRandom(rng, d.Params.ClampFloor)
	case UNIFORM:
		d.Bandit.ResetUniform(d.Params.ClampFloor)
	}
}
