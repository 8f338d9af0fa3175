// Package gateway models the stateful LoRa receiver: accumulated signal
// power per frequency bucket, capture/inter-SF collision resolution, the
// bounded demodulator pool, and ACK emission. All signal arithmetic runs
// over gonum.org/v1/gonum/mat vectors and matrices, in linear milliwatts.
package gateway

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/lora-mab/lora-sim/pkg/packet"
	"github.com/lora-mab/lora-sim/pkg/propagation"
)

// demodKey identifies one demodulator slot: a concurrently-decodable
// (freq, bw, sf) triple.
type demodKey struct {
	Freq int
	BW   int
	SF   propagation.SF
}

// Gateway is a single base station. Its mutable state — SignalLevel,
// Packets, PacketsInBucket, Demodulator — is touched only by the methods
// below, called synchronously from device transmission flows; the
// simulator never runs two of these calls concurrently (spec §5).
type Gateway struct {
	ID int
	X  float64
	Y  float64

	InteractionMatrix *mat.Dense // 6x6, linear mW
	CaptureThreshold  float64    // linear mW; 0 disables capture
	DemodulatorCap    int

	Demodulator     map[demodKey]struct{}
	SignalLevel     map[int]*mat.VecDense         // bucket -> 6-vector, linear mW
	Packets         map[int]*packet.Packet        // deviceID -> in-flight packet
	PacketsInBucket map[int]map[int]*packet.Packet // bucket -> deviceID -> packet
	ackLog          map[int]*packet.Packet        // deviceID -> last ACKed packet this round

	successCount int
}

// signalFloor is the 1e-27 mW floor applied to S_f on packet removal, per
// spec §4.3 and §7, to absorb floating-point drift toward negative power.
const signalFloor = 1e-27

// New constructs a gateway at the given position with the given
// interaction matrix (linear mW), capture threshold (linear, 0 disables
// capture effect) and demodulator capacity.
func New(id int, x, y float64, interactionMatrix *mat.Dense, captureThreshold float64, demodulatorCap int) *Gateway {
	return &Gateway{
		ID:                id,
		X:                 x,
		Y:                 y,
		InteractionMatrix: interactionMatrix,
		CaptureThreshold:  captureThreshold,
		DemodulatorCap:    demodulatorCap,
		Demodulator:       make(map[demodKey]struct{}),
		SignalLevel:       make(map[int]*mat.VecDense),
		Packets:           make(map[int]*packet.Packet),
		PacketsInBucket:   make(map[int]map[int]*packet.Packet),
		ackLog:            make(map[int]*packet.Packet),
	}
}

func (g *Gateway) signalVec(bucket int) *mat.VecDense {
	v, ok := g.SignalLevel[bucket]
	if !ok {
		v = mat.NewVecDense(6, nil)
		g.SignalLevel[bucket] = v
	}
	return v
}

// Admit adds a packet's per-bucket power contribution into S_f, records it
// in the bucket and packet maps, and re-evaluates the bucket's already-
// critical packets for new losses/collisions.
func (g *Gateway) Admit(deviceID int, p *packet.Packet) {
	s := g.signalVec(p.Bucket)
	for i := 0; i < 6; i++ {
		s.SetVec(i, s.AtVec(i)+p.Spectrum.AtVec(i))
	}
	g.evaluateFreqBucket(p.Bucket)

	if g.PacketsInBucket[p.Bucket] == nil {
		g.PacketsInBucket[p.Bucket] = make(map[int]*packet.Packet)
	}
	g.PacketsInBucket[p.Bucket][deviceID] = p
	g.Packets[deviceID] = p
}

// evaluateFreqBucket re-applies the capture/inter-SF rule to every
// currently-critical, not-yet-lost packet contributing to bucket. Called
// on every mutation of that bucket's signal level.
func (g *Gateway) evaluateFreqBucket(bucket int) {
	for _, p := range g.PacketsInBucket[bucket] {
		if p.IsLost || !p.IsCritical {
			continue
		}
		lost, collided := g.evaluateCapture(p)
		if lost {
			p.IsLost = true
		}
		if collided {
			p.IsCollision = true
		}
	}
}

// evaluateCapture implements the three-branch capture/inter-SF rule of
// spec §4.3 for packet p against the gateway's current bucket signal.
// Strict inequalities throughout: equal powers never cause loss.
func (g *Gateway) evaluateCapture(p *packet.Packet) (lost, collided bool) {
	slot := p.SFSlot()
	s := g.SignalLevel[p.Bucket]
	own := p.Spectrum.AtVec(slot)
	total := s.AtVec(slot)
	row := g.InteractionMatrix.RowView(slot)
	cross := mat.Dot(row, s)

	theta := g.CaptureThreshold
	if theta != 0 {
		if (1+theta)*own < theta*total {
			return true, false // capture effect loss
		}
		if (1+theta)*own < cross {
			return true, false // inter-SF interference loss
		}
		if own < total {
			return false, true // received but flagged collided
		}
		return false, false
	}

	// No capture effect: any other same-SF power in the bucket (own <
	// total, where total includes own) leaves the packet both lost and
	// collided; inter-SF dominance alone still causes loss.
	if own < total {
		return true, true
	}
	if own < cross {
		return true, false
	}
	return false, false
}

// EnterCritical admits a packet to the demodulator pool once its preamble
// has elapsed. A packet already lost stays lost. Otherwise it is admitted
// iff it would not be lost under the current capture evaluation, its
// (freq,bw,sf) triple is not already demodulating, and the demodulator
// pool has a free slot; admission sets isCritical and the resulting
// isCollision, rejection sets isLost and the isCollision the capture
// evaluation reported.
func (g *Gateway) EnterCritical(deviceID int) error {
	p, ok := g.Packets[deviceID]
	if !ok {
		return fmt.Errorf("gateway %d: no in-flight packet for device %d", g.ID, deviceID)
	}
	if p.IsLost {
		return nil
	}

	lost, collided := g.evaluateCapture(p)
	key := demodKey{Freq: p.Freq, BW: p.BW, SF: p.PHY.SF}
	_, inUse := g.Demodulator[key]

	if !lost && !inUse && len(g.Demodulator) < g.DemodulatorCap {
		g.Demodulator[key] = struct{}{}
		p.IsCritical = true
		p.IsCollision = collided
	} else {
		p.IsLost = true
		p.IsCritical = false
		p.IsCollision = collided
	}
	return nil
}

// Remove ends a packet's lifetime at the gateway: releases its demodulator
// slot if held, subtracts its contribution from S_f (floored at 1e-27),
// and removes it from both maps. It returns isCritical && !isLost — the
// success signal the caller uses to decide whether to emit an ACK.
func (g *Gateway) Remove(deviceID int) (bool, error) {
	p, ok := g.Packets[deviceID]
	if !ok {
		return false, fmt.Errorf("gateway %d: no in-flight packet for device %d", g.ID, deviceID)
	}

	if p.IsCritical {
		key := demodKey{Freq: p.Freq, BW: p.BW, SF: p.PHY.SF}
		delete(g.Demodulator, key)
	}

	s := g.signalVec(p.Bucket)
	for i := 0; i < 6; i++ {
		v := s.AtVec(i) - p.Spectrum.AtVec(i)
		if v < signalFloor {
			v = 0
		}
		s.SetVec(i, v)
	}

	delete(g.PacketsInBucket[p.Bucket], deviceID)
	delete(g.Packets, deviceID)

	return p.IsCritical && !p.IsLost, nil
}

// ResetACK clears the per-round ACK log. No-op on the capture state; ACKs
// carry no re-evaluation of their own (spec §9: ACK contention is not
// modeled).
func (g *Gateway) ResetACK() {
	g.ackLog = make(map[int]*packet.Packet)
}

// ACK records that deviceID's packet won and is owed an acknowledgement.
func (g *Gateway) ACK(deviceID int, p *packet.Packet) {
	g.successCount++
	g.ackLog[deviceID] = p
}

// LastACK returns the packet most recently ACKed for deviceID this round,
// if any.
func (g *Gateway) LastACK(deviceID int) (*packet.Packet, bool) {
	p, ok := g.ackLog[deviceID]
	return p, ok
}

// DemodulatorOccupancy returns the current number of occupied demodulator
// slots, for metrics/invariant checks.
func (g *Gateway) DemodulatorOccupancy() int {
	return len(g.Demodulator)
}
