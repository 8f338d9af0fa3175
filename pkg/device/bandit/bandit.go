// Package bandit implements the EXP3 / EXP3-S weight and probability
// update math used by SMART devices, kept independent of device
// bookkeeping (position, gateway templates, ACK tracking) so it can be
// unit-tested directly against the algebraic laws of the probability
// simplex.
package bandit

import (
	"math"
	"math/rand"
)

// Algo selects which adversarial-bandit variant drives the weight update.
type Algo int

const (
	EXP3 Algo = iota
	EXP3S
)

// Params bundles the derived learning rate η, mixing parameter α, and the
// clamping floor applied after every probability projection. The clamping
// floor is an explicit parameter rather than a hard-coded constant because
// the reference implementation disagrees with itself across variants
// (0.001 legacy vs 0.0005 current) — spec §9 requires exposing it, not
// silently picking one.
type Params struct {
	Algo       Algo
	Eta        float64
	Alpha      float64
	ClampFloor float64
}

// DefaultClampFloor is the clamping threshold used by the current EXP3 /
// EXP3-S code path. Pass LegacyClampFloor instead to reproduce the older
// variant's behavior.
const DefaultClampFloor = 0.0005

// LegacyClampFloor matches the clamping threshold of the historical
// implementation.
const LegacyClampFloor = 0.001

// DeriveParams computes η and α from the algorithm choice, the action-set
// size n, and the horizon in transmission opportunities H, per spec §4.4.
func DeriveParams(algo Algo, n int, horizon float64, clampFloor float64) Params {
	nf := float64(n)
	switch algo {
	case EXP3S:
		eta := math.Min(1, math.Sqrt(nf*math.Log(nf*horizon)/horizon))
		return Params{Algo: EXP3S, Eta: eta, Alpha: 1 / horizon, ClampFloor: clampFloor}
	default:
		eta := math.Min(1, math.Sqrt(nf*math.Log(nf)/(horizon*(math.E-1))))
		return Params{Algo: EXP3, Eta: eta, Alpha: 0, ClampFloor: clampFloor}
	}
}

// State is a device's weight and probability vectors over its action set.
// Both are plain slices, never maps, so iteration order is stable and
// traces are byte-reproducible under a fixed seed.
type State struct {
	Weights []float64
	Probs   []float64
}

// NewUniform builds a State with unit weights and a uniform probability
// vector over n actions.
func NewUniform(n int) *State {
	w := make([]float64, n)
	p := make([]float64, n)
	for i := range w {
		w[i] = 1
		p[i] = 1 / float64(n)
	}
	return &State{Weights: w, Probs: p}
}

// sampleDirichletUniform draws p by normalizing n independent Uniform(0,1)
// samples — the "Dirichlet-uniform" initialization spec §4.4 calls for
// under RANDOM mode.
func sampleDirichletUniform(rng *rand.Rand, n int) []float64 {
	p := make([]float64, n)
	sum := 0.0
	for i := range p {
		p[i] = rng.Float64()
		sum += p[i]
	}
	for i := range p {
		p[i] /= sum
	}
	return p
}

// UpdateSmart performs one EXP3 / EXP3-S weight update and probability
// projection for a SMART device: reward is non-zero only at the chosen
// action index. Weights update simultaneously from the pre-update total
// Σw (needed for the EXP3-S mixing term), then probabilities project as
// p_j = (1-η)(w_j/Σw) + η/|A|, then the result is clamped and renormalized.
func (s *State) UpdateSmart(params Params, chosen int, reward float64) {
	n := len(s.Weights)
	nf := float64(n)

	oldSum := sumOf(s.Weights)
	newWeights := make([]float64, n)
	for j := 0; j < n; j++ {
		r := 0.0
		if j == chosen {
			r = reward
		}
		w := s.Weights[j] * math.Exp(params.Eta*r/nf)
		if params.Alpha > 0 {
			w += (math.E * params.Alpha / nf) * oldSum
		}
		newWeights[j] = w
	}
	s.Weights = newWeights

	newSum := sumOf(s.Weights)
	for j := 0; j < n; j++ {
		s.Probs[j] = (1-params.Eta)*(s.Weights[j]/newSum) + params.Eta/nf
	}
	s.clampAndRenormalize(params.ClampFloor)
}

// ResampleRandom replaces Probs with a fresh Dirichlet-uniform draw,
// matching the RANDOM device mode's per-update resampling. Weights are
// untouched — RANDOM devices carry no bandit weight state.
func (s *State) ResampleRandom(rng *rand.Rand, clampFloor float64) {
	s.Probs = sampleDirichletUniform(rng, len(s.Probs))
	s.clampAndRenormalize(clampFloor)
}

// ResetUniform sets Probs back to 1/|A| for every action, matching the
// UNIFORM device mode.
func (s *State) ResetUniform(clampFloor float64) {
	n := len(s.Probs)
	for i := range s.Probs {
		s.Probs[i] = 1 / float64(n)
	}
	s.clampAndRenormalize(clampFloor)
}

// clampAndRenormalize zeroes entries below floor and renormalizes the
// remainder to sum to 1, per the invariant in spec §3.
func (s *State) clampAndRenormalize(floor float64) {
	sum := 0.0
	for i, p := range s.Probs {
		if p < floor {
			s.Probs[i] = 0
		} else {
			sum += s.Probs[i]
		}
	}
	if sum <= 0 {
		return
	}
	for i := range s.Probs {
		s.Probs[i] /= sum
	}
}

// overflowThreshold triggers a defensive weight rescale; spec §7 allows
// this because it leaves Probs unchanged (rescaling divides every weight
// by the same factor).
const overflowThreshold = 1e150

// RescaleIfNeeded divides every weight by their sum whenever the largest
// weight exceeds overflowThreshold, preventing unbounded growth over long
// horizons without perturbing the probability vector.
func (s *State) RescaleIfNeeded() {
	max := 0.0
	for _, w := range s.Weights {
		if w > max {
			max = w
		}
	}
	if max <= overflowThreshold {
		return
	}
	sum := sumOf(s.Weights)
	if sum <= 0 {
		return
	}
	for i := range s.Weights {
		s.Weights[i] /= sum
	}
}

func sumOf(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum
}

// Reward computes the EXP3 reward for the chosen action given the device's
// information mode outcome, per spec §4.4. probChosen is p_a at the time
// of transmission (importance-weighted reward, standard EXP3 construction).
func Reward(infoFull bool, acked, collided bool, probChosen float64) float64 {
	if !acked {
		return 0
	}
	if !infoFull {
		return 1 / probChosen
	}
	if collided {
		return 0.5 / probChosen
	}
	return 1 / probChosen
}
