// Package simulator wires propagation, packet, gateway, device, bandit,
// scheduler, topology, trace, telemetry, and metrics together into one
// runnable network simulation. The per-device transmission loop is
// modeled after the generator-based coroutine in
// original_source/lora/bsFunctions.py's transmitPacket: every suspension
// point (inter-arrival sleep, T_critical, T_rest, T_ack, residual padding)
// becomes a continuation scheduled on pkg/scheduler's event heap, since Go
// has no yield primitive to express it as a literal generator.
package simulator

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"github.com/lora-mab/lora-sim/pkg/config"
	"github.com/lora-mab/lora-sim/pkg/device"
	"github.com/lora-mab/lora-sim/pkg/device/bandit"
	"github.com/lora-mab/lora-sim/pkg/gateway"
	"github.com/lora-mab/lora-sim/pkg/lifecycle"
	"github.com/lora-mab/lora-sim/pkg/metrics"
	"github.com/lora-mab/lora-sim/pkg/propagation"
	"github.com/lora-mab/lora-sim/pkg/reporting"
	"github.com/lora-mab/lora-sim/pkg/scheduler"
	"github.com/lora-mab/lora-sim/pkg/telemetry"
	"github.com/lora-mab/lora-sim/pkg/topology"
	"github.com/lora-mab/lora-sim/pkg/trace"
)

// Simulator owns every piece of run state: the event engine, the device
// and gateway registries, the single RNG stream driving inter-arrival,
// action sampling, and external-traffic sampling (spec §5's RNG
// discipline), and the ambient collaborators (trace writer, logger,
// metrics registry, stop controller).
type Simulator struct {
	cfg *config.Config

	engine   *scheduler.Engine
	rng      *rand.Rand
	devices  []*device.Device
	gateways map[int]*gateway.Gateway

	propParams propagation.Params
	phyBase    propagation.PHYParams

	trace   *trace.Writer
	logger  *telemetry.Logger
	metrics *metrics.Registry
	stop    *lifecycle.StopController

	lambdaI  float64
	lambdaE  [][]float64 // [sfIndex][freqIndex], sampled once at setup
	sfOrder  []propagation.SF
	freqOrder []int

	horizonMs      float64
	horizonPackets float64
}

// Deps bundles the ambient collaborators a Simulator is built with. Trace,
// Logger, Metrics, and Stop are all optional (nil disables them; a nil
// Trace means no trace files and no per-snapshot metric updates).
type Deps struct {
	Trace   *trace.Writer
	Logger  *telemetry.Logger
	Metrics *metrics.Registry
	Stop    *lifecycle.StopController
	Seed    int64
}

// New builds a Simulator from a resolved configuration and a placed
// topology: one Gateway per topology.Layout gateway, one Device per
// topology.Layout device (the first NumSmartDevices in SMART mode, the
// rest in the network's configured InitialMode), all wired against the
// same propagation model and PHY base shape.
func New(cfg *config.Config, layout topology.Layout, deps Deps) (*Simulator, error) {
	propParams := propagation.Params{Gamma: cfg.Channel.Gamma, Lpld0: cfg.Channel.Lpld0, D0: cfg.Channel.D0}

	phyBase := propagation.PHYParams{
		CodingRate:     1,
		BW:             cfg.PHY.BW,
		PacketLength:   cfg.PHY.PacketLength,
		PreambleLength: cfg.PHY.PreambleLength,
		SyncLength:     cfg.PHY.SyncLength,
		HeaderEnable:   cfg.PHY.HeaderEnable,
		CRC:            cfg.PHY.CRC,
	}

	sfSet := make([]propagation.SF, len(cfg.PHY.SFSet))
	for i, sf := range cfg.PHY.SFSet {
		sfSet[i] = propagation.SF(sf)
	}

	maxPow := maxOf(cfg.PHY.PowSet)
	maxRange, err := propagation.BuildMaxRangeTable(maxPow, propParams, phyBase)
	if err != nil {
		return nil, fmt.Errorf("simulator: build max-range table: %w", err)
	}

	gateways := make(map[int]*gateway.Gateway, len(layout.Gateways))
	interactionMatrix := gateway.InteractionMatrix(cfg.Channel.CaptureEffect, cfg.Channel.InterSFInterference)
	captureThreshold := gateway.CaptureThreshold(cfg.Channel.CaptureEffect)
	var gatewayPositions []device.GatewayPosition
	for i, gw := range layout.Gateways {
		gateways[i] = gateway.New(i, gw.X, gw.Y, interactionMatrix, captureThreshold, cfg.Channel.NumDemodulators)
		gatewayPositions = append(gatewayPositions, device.GatewayPosition{ID: i, X: gw.X, Y: gw.Y})
	}

	rng := rand.New(rand.NewSource(deps.Seed))

	algo := bandit.EXP3
	if cfg.Bandit.Algo == "exp3s" {
		algo = bandit.EXP3S
	}
	clampFloor := cfg.ResolvedClampFloor(bandit.DefaultClampFloor, bandit.LegacyClampFloor)
	horizonMs := cfg.SimulatedDurationMs()
	horizonOpportunities := cfg.Network.HorizonPackets

	devices := make([]*device.Device, 0, len(layout.Devices))
	for i, pos := range layout.Devices {
		mode := device.SMART
		if i >= layout.NumSmartDevices {
			if cfg.Network.InitialMode == "RANDOM" {
				mode = device.RANDOM
			} else {
				mode = device.UNIFORM
			}
		}

		info := device.InfoNone
		switch cfg.Network.InfoMode {
		case "PARTIAL":
			info = device.InfoPartial
		case "FULL":
			info = device.InfoFull
		}

		dev, err := device.New(device.Config{
			ID:                       i,
			X:                        pos.X,
			Y:                        pos.Y,
			Mode:                     mode,
			Info:                     info,
			PeriodMs:                 cfg.Network.AvgSendTimeMs,
			MaxTXPow:                 maxPow,
			SFSet:                    sfSet,
			FreqSet:                  cfg.PHY.FreqSet,
			PowSet:                   cfg.PHY.PowSet,
			Gateways:                 gatewayPositions,
			InterferenceThresholdDBm: cfg.Channel.InterferenceThreshDB,
			PropParams:               propParams,
			MaxRangeTable:            maxRange,
			PHYBase:                  phyBase,
			Horizon:                  horizonOpportunities,
			Algo:                     algo,
			ClampFloor:               clampFloor,
		})
		if err != nil {
			return nil, fmt.Errorf("simulator: build device %d: %w", i, err)
		}
		dev.InitRandom(rng)
		devices = append(devices, dev)
	}

	numSmart := layout.NumSmartDevices
	lambdaI := 1.0 / cfg.Network.AvgSendTimeMs
	lambdaE := make([][]float64, len(sfSet))
	backgroundFrac := float64(len(devices)-numSmart) / float64(len(devices))
	for i := range lambdaE {
		lambdaE[i] = make([]float64, len(cfg.PHY.FreqSet))
		for j := range lambdaE[i] {
			lambdaE[i][j] = backgroundFrac * lambdaI * rng.Float64()
		}
	}

	return &Simulator{
		cfg:        cfg,
		engine:     scheduler.New(),
		rng:        rng,
		devices:    devices,
		gateways:   gateways,
		propParams: propParams,
		phyBase:    phyBase,
		trace:      deps.Trace,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		stop:       deps.Stop,
		lambdaI:    lambdaI,
		lambdaE:    lambdaE,
		sfOrder:    sfSet,
		freqOrder:  cfg.PHY.FreqSet,
		horizonMs:  horizonMs,
		horizonPackets: horizonOpportunities,
	}, nil
}

func maxOf(xs []float64) float64 {
	max := xs[0]
	for _, x := range xs[1:] {
		if x > max {
			max = x
		}
	}
	return max
}

// Run drives the simulation to completion: starts every device's
// transmission loop and the two periodic tasks (progress heartbeat and
// trace snapshot), then runs the
// scheduler to the configured horizon (or until the stop controller
// requests an early exit).
func (s *Simulator) Run() Summary {
	for _, dev := range s.devices {
		s.scheduleWake(dev)
	}
	s.scheduleCuckoo()
	s.scheduleSnapshot()

	if s.stop != nil {
		s.stop.Start()
		defer s.stop.Close()
	}

	const stepMs = 3600000.0 // check the stop controller once per simulated hour
	for cursor := 0.0; ; {
		if s.stop != nil && s.stop.Stopped() {
			break
		}
		cursor = math.Min(cursor+stepMs, s.horizonMs)
		s.engine.Run(cursor)
		if cursor >= s.horizonMs {
			break
		}
	}

	return s.summarize()
}

func (s *Simulator) log(msg string, fields ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, fields...)
	}
}

// scheduleWake schedules dev's next transmission after an
// Exp(1/period)-distributed inter-arrival delay, matching
// transmitPacket's `yield env.timeout(random.expovariate(1/period))`.
func (s *Simulator) scheduleWake(dev *device.Device) {
	delay := s.rng.ExpFloat64() * dev.PeriodMs
	s.engine.After(delay, func(e *scheduler.Engine) { s.onWake(e, dev) })
}

// onWake runs transmission-loop steps 2-3: sample an action, apply it to
// every proximate-gateway template, and admit the packet everywhere.
func (s *Simulator) onWake(e *scheduler.Engine, dev *device.Device) {
	dev.ResetACK()

	chosenIdx, err := dev.BeginTransmission(s.rng, s.propParams)
	if err != nil {
		s.log("transmission failed", "device", dev.ID, "error", err.Error())
		return
	}
	for _, gwID := range dev.GatewayOrder {
		s.gateways[gwID].Admit(dev.ID, dev.Templates[gwID])
	}

	representative := dev.Templates[dev.GatewayOrder[0]]
	tSym := math.Pow(2, float64(representative.PHY.SF)) / float64(representative.BW)
	tCritical := tSym * (s.phyBase.PreambleLength - 5)
	if tCritical < 0 {
		tCritical = 0
	}
	tRest := representative.AirtimeMs - tCritical
	if tRest < 0 {
		tRest = 0
	}

	e.After(tCritical, func(e *scheduler.Engine) {
		s.onCritical(e, dev, chosenIdx, tCritical, tRest)
	})
}

// onCritical runs step 5: admit every proximate packet to its gateway's
// demodulator pool, then sleep T_rest before resolving the transmission.
func (s *Simulator) onCritical(e *scheduler.Engine, dev *device.Device, chosenIdx int, tCritical, tRest float64) {
	for _, gwID := range dev.GatewayOrder {
		if err := s.gateways[gwID].EnterCritical(dev.ID); err != nil {
			s.log("enter critical failed", "device", dev.ID, "gateway", gwID, "error", err.Error())
		}
	}
	e.After(tRest, func(e *scheduler.Engine) {
		s.onTransmissionEnd(e, dev, chosenIdx, tCritical, tRest)
	})
}

// onTransmissionEnd runs step 7: remove the packet from every proximate
// gateway, recording gateway-side loss/collision counters and ACKing the
// device for every gateway that accepted it, then sleeps the single ACK
// delay before accounting and learning. Spec §9 preserves the reference's
// ACK simplification (no ACK-on-ACK contention); the one ACK delay used
// for the step-10 residual padding is the longest among the gateways that
// actually ACKed, since every tested scenario has a single gateway and
// the reference's own per-gateway ACKrest is overwritten on every loop
// iteration rather than summed.
func (s *Simulator) onTransmissionEnd(e *scheduler.Engine, dev *device.Device, chosenIdx int, tCritical, tRest float64) {
	tAck := 0.0
	for _, gwID := range dev.GatewayOrder {
		gw := s.gateways[gwID]
		p := dev.Templates[gwID]

		ok, err := gw.Remove(dev.ID)
		if err != nil {
			s.log("remove failed", "device", dev.ID, "gateway", gwID, "error", err.Error())
			continue
		}
		if s.metrics != nil {
			gwLabel := strconv.Itoa(gwID)
			if p.IsLost {
				s.metrics.PacketsLost.WithLabelValues(gwLabel).Inc()
			}
			if p.IsCollision {
				s.metrics.PacketsCollided.WithLabelValues(gwLabel).Inc()
			}
		}
		if ok {
			gw.ACK(dev.ID, p)
			acked, _ := gw.LastACK(dev.ID)
			dev.RecordACK(gwID, acked)
			if p.AirtimeMs > tAck {
				tAck = p.AirtimeMs
			}
		}
	}

	e.After(tAck, func(e *scheduler.Engine) {
		dev.AccountAndLearn(chosenIdx, s.rng)
		s.recordDeviceMetrics(dev)

		period := dev.PeriodMs
		residual := period - tCritical - tRest - tAck
		if residual < 0 {
			residual = 0
		}
		// Cap attempts at the device's transmission-opportunity horizon
		// (the same H used to derive its learning rate in device.New) so
		// that a device's attempt count is a direct, deterministic
		// function of the configured horizon rather than of how the
		// stochastic inter-arrival draws happen to land within the
		// scheduler's simulated-time cutoff.
		if float64(dev.PacketsTransmitted) < s.horizonPackets {
			e.After(residual, func(e *scheduler.Engine) { s.scheduleWake(dev) })
		}
	})
}

func (s *Simulator) recordDeviceMetrics(dev *device.Device) {
	if s.metrics == nil {
		return
	}
	label := strconv.Itoa(dev.ID)
	s.metrics.PacketsTransmitted.WithLabelValues(label).Inc()
	if dev.Succeeded() {
		s.metrics.PacketsSucceeded.WithLabelValues(label).Inc()
	}
}

// scheduleCuckoo schedules the progress heartbeat, repeating every
// configured cuckoo interval (default 1000 simulated hours), matching
// bsFunctions.py's cuckooClock.
func (s *Simulator) scheduleCuckoo() {
	interval := s.cfg.CuckooIntervalMs()
	if interval <= 0 {
		return
	}
	var tick func(e *scheduler.Engine)
	tick = func(e *scheduler.Engine) {
		kHrs := e.Now() / (1000 * 3600000)
		s.log(fmt.Sprintf("running %.3f kHrs", kHrs))
		if e.Now()+interval <= s.horizonMs {
			e.After(interval, tick)
		}
	}
	s.engine.After(interval, tick)
}

// scheduleSnapshot schedules the probability/ratio/energy/traffic trace
// writers, repeating every configured trace interval (default 100
// simulated hours), matching bsFunctions.py's saveProb/saveRatio/
// saveEnergy/saveTraffic.
func (s *Simulator) scheduleSnapshot() {
	interval := s.cfg.TraceIntervalMs()
	if interval <= 0 {
		return
	}
	var tick func(e *scheduler.Engine)
	tick = func(e *scheduler.Engine) {
		s.writeSnapshot()
		if e.Now()+interval <= s.horizonMs {
			e.After(interval, tick)
		}
	}
	s.engine.After(interval, tick)
}

func (s *Simulator) writeSnapshot() {
	if s.trace == nil {
		return
	}

	transmitted, succeeded := 0, 0
	totalEnergy := 0.0
	for _, dev := range s.devices {
		transmitted += dev.PacketsTransmitted
		succeeded += dev.PacketsSuccessful
		totalEnergy += dev.EnergyJ

		if dev.Mode != device.UNIFORM {
			if err := s.trace.WriteProb(dev.ID, dev.Bandit.Probs); err != nil {
				s.log("write prob trace failed", "device", dev.ID, "error", err.Error())
			}
		}
	}

	ratio := 0.0
	if transmitted > 0 {
		ratio = float64(succeeded) / float64(transmitted)
	}
	if err := s.trace.WriteRatio(ratio); err != nil {
		s.log("write ratio trace failed", "error", err.Error())
	}
	if err := s.trace.WriteEnergy(totalEnergy, transmitted, succeeded); err != nil {
		s.log("write energy trace failed", "error", err.Error())
	}

	offered, throughput := s.computeTraffic()
	if err := s.trace.WriteTraffic(offered, throughput); err != nil {
		s.log("write traffic trace failed", "error", err.Error())
	}

	if s.metrics != nil {
		s.metrics.EnergyJoulesTotal.Set(totalEnergy)
		s.metrics.ReceptionRatio.Set(ratio)
		s.metrics.SimulatedTimeMsGauge.Set(s.engine.Now())
		for id, gw := range s.gateways {
			s.metrics.DemodulatorOccupancy.WithLabelValues(strconv.Itoa(id)).Set(float64(gw.DemodulatorOccupancy()))
		}
	}

	for _, gw := range s.gateways {
		gw.ResetACK()
	}
}

// computeTraffic reproduces saveTraffic's per-(SF,freq)-cell offered-load
// and throughput calculation: each cell starts at its sampled background
// rate lambda_e, every device contributes lambda_i to the cell matching
// its current chosen action, each SF row is scaled by that SF's airtime,
// and per-cell throughput is the pure-ALOHA curve G*exp(-2G).
func (s *Simulator) computeTraffic() (offered, throughput float64) {
	g := make([][]float64, len(s.sfOrder))
	for i := range g {
		g[i] = make([]float64, len(s.freqOrder))
		copy(g[i], s.lambdaE[i])
	}

	for _, dev := range s.devices {
		tmpl := dev.Templates[dev.GatewayOrder[0]]
		si := sfIndex(s.sfOrder, tmpl.PHY.SF)
		fi := freqIndex(s.freqOrder, tmpl.Freq)
		if si < 0 || fi < 0 {
			continue
		}
		g[si][fi] += s.lambdaI
	}

	for i, sf := range s.sfOrder {
		at := propagation.Airtime(propagation.PHYParams{
			SF: sf, CodingRate: s.phyBase.CodingRate, BW: s.phyBase.BW, PacketLength: s.phyBase.PacketLength,
			PreambleLength: s.phyBase.PreambleLength, SyncLength: s.phyBase.SyncLength,
			HeaderEnable: s.phyBase.HeaderEnable, CRC: s.phyBase.CRC,
		})
		for j := range g[i] {
			g[i][j] *= at
			offered += g[i][j]
			throughput += g[i][j] * math.Exp(-2*g[i][j])
		}
	}
	return offered, throughput
}

func sfIndex(order []propagation.SF, sf propagation.SF) int {
	for i, s := range order {
		if s == sf {
			return i
		}
	}
	return -1
}

func freqIndex(order []int, freq int) int {
	for i, f := range order {
		if f == freq {
			return i
		}
	}
	return -1
}

// Summary is the simulator's own view of its final state; pkg/simulator
// callers convert it to a reporting.Summary for display.
type Summary struct {
	PacketsTransmitted int
	PacketsSucceeded   int
	TotalEnergyJoules  float64
	SimulatedMs        float64
	StoppedEarly       bool
	StopReason         string
}

func (s *Simulator) summarize() Summary {
	transmitted, succeeded := 0, 0
	energy := 0.0
	for _, dev := range s.devices {
		transmitted += dev.PacketsTransmitted
		succeeded += dev.PacketsSuccessful
		energy += dev.EnergyJ
	}
	sum := Summary{
		PacketsTransmitted: transmitted,
		PacketsSucceeded:   succeeded,
		TotalEnergyJoules:  energy,
		SimulatedMs:        s.engine.Now(),
	}
	if s.stop != nil && s.stop.Stopped() {
		sum.StoppedEarly = true
		sum.StopReason = s.stop.Reason()
	}
	return sum
}

// ToReport converts a Summary to the reporting package's display shape.
func (sum Summary) ToReport() reporting.Summary {
	ratio := 0.0
	if sum.PacketsTransmitted > 0 {
		ratio = float64(sum.PacketsSucceeded) / float64(sum.PacketsTransmitted)
	}
	return reporting.Summary{
		PacketsTransmitted: sum.PacketsTransmitted,
		PacketsSucceeded:   sum.PacketsSucceeded,
		ReceptionRatio:     ratio,
		TotalEnergyJoules:  sum.TotalEnergyJoules,
		SimulatedHours:     sum.SimulatedMs / 3600000.0,
		StoppedEarly:       sum.StoppedEarly,
		StopReason:         sum.StopReason,
	}
}

// TraceKey builds the canonical trace-file key of spec §6:
// <nrIntNodes>_smartNodes_initial_<initial>_infoMode_<mode>_captureEffect_<b>_interSFMode_<b>.
func TraceKey(cfg *config.Config) string {
	return fmt.Sprintf("%d_smartNodes_initial_%s_infoMode_%s_captureEffect_%v_interSFMode_%v",
		cfg.Network.NumSmartDevices, cfg.Network.InitialMode, cfg.Network.InfoMode,
		cfg.Channel.CaptureEffect, cfg.Channel.InterSFInterference)
}
