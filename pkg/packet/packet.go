// Package packet models a single LoRa transmission attempt: the action a
// device chose for it, the resulting received-power spectrum at its target
// gateway, and the lifecycle flags a gateway mutates as the packet is
// admitted, enters its critical section, and is finally removed.
package packet

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/lora-mab/lora-sim/pkg/propagation"
)

// Action is one entry of a device's action set: a (spreading factor,
// frequency, transmit power) triple.
type Action struct {
	SF    propagation.SF
	Freq  int
	Power float64
}

// Packet is the per-(device,gateway) transmission record. A device keeps
// one Packet per proximate gateway and reuses it for every transmission,
// resetting it through ApplyAction; a gateway holds the same pointer in
// its packet maps for the duration of one transmission.
type Packet struct {
	DeviceID  int
	GatewayID int
	Distance  float64
	BW        int
	PHY       propagation.PHYParams

	ChosenAction int
	TXPower      float64
	Freq         int
	RXPowerDBm   float64
	Bucket       int
	Spectrum     *mat.VecDense // length 6, linear mW, exactly one non-zero slot

	AirtimeMs float64

	IsLost      bool
	IsCritical  bool
	IsCollision bool
}

// New constructs a packet template for one device/gateway pair. The
// returned packet has no chosen action yet; call UpdateTXSettings before
// admitting it to a gateway.
func New(deviceID, gatewayID int, distance float64, bw int, phy propagation.PHYParams) *Packet {
	phy.BW = bw
	return &Packet{
		DeviceID:  deviceID,
		GatewayID: gatewayID,
		Distance:  distance,
		BW:        bw,
		PHY:       phy,
	}
}

// SampleAction draws an action index from probs using rng, matching
// numpy.random.choice(n, p=probs): walk the cumulative distribution and
// return the first index whose cumulative mass exceeds the draw.
func SampleAction(rng *rand.Rand, probs []float64) (int, error) {
	if len(probs) == 0 {
		return 0, fmt.Errorf("packet: empty probability vector")
	}
	r := rng.Float64()
	cum := 0.0
	for i, p := range probs {
		cum += p
		if r < cum {
			return i, nil
		}
	}
	return len(probs) - 1, nil
}

// UpdateTXSettings samples a new action for this transmission and applies
// it. Kept for direct single-gateway use and tests; devices with multiple
// proximate gateways should sample once and call ApplyAction on each
// gateway's template so every copy of one transmission shares one action.
func (p *Packet) UpdateTXSettings(rng *rand.Rand, actions []Action, probs []float64, params propagation.Params) error {
	idx, err := SampleAction(rng, probs)
	if err != nil {
		return err
	}
	return p.ApplyAction(idx, actions, params)
}

// ApplyAction sets this packet's (SF, freq, power) to actions[idx],
// recomputes the received power and spectrum contribution for this
// packet's distance, and sets isLost against the per-SF/BW sensitivity
// table. Flags reset on every call, matching the per-attempt reset in the
// reference transmission loop.
func (p *Packet) ApplyAction(idx int, actions []Action, params propagation.Params) error {
	action := actions[idx]

	p.ChosenAction = idx
	p.PHY.SF = action.SF
	p.TXPower = action.Power
	p.Freq = action.Freq
	p.RXPowerDBm = propagation.RXPower(action.Power, p.Distance, params)
	p.AirtimeMs = propagation.Airtime(p.PHY)
	p.Bucket = propagation.FreqBucket(action.Freq)
	p.Spectrum = spectrum(action.SF, p.RXPowerDBm)

	sens, err := propagation.Sensitivity(action.SF, p.BW)
	if err != nil {
		return err
	}
	p.IsLost = p.RXPowerDBm < sens
	p.IsCritical = false
	p.IsCollision = false
	return nil
}

// spectrum places the packet's received power, converted to linear mW,
// into the slot for sf of an otherwise-zero 6-vector — the single-bucket,
// single-SF-slot contribution every packet makes to a gateway's signal
// accounting.
func spectrum(sf propagation.SF, rxDBm float64) *mat.VecDense {
	v := mat.NewVecDense(6, nil)
	v.SetVec(propagation.SlotIndex(sf), propagation.DBmToMW(rxDBm))
	return v
}

// SFSlot returns the index of this packet's power within a 6-wide per-SF
// vector.
func (p *Packet) SFSlot() int {
	return propagation.SlotIndex(p.PHY.SF)
}
