package bandit

import (
	"math"
	"math/rand"
	"testing"
)

func sumProbs(s *State) float64 {
	sum := 0.0
	for _, p := range s.Probs {
		sum += p
	}
	return sum
}

func assertSimplex(t *testing.T, s *State) {
	t.Helper()
	if math.Abs(sumProbs(s)-1) > 1e-9 {
		t.Errorf("sum(p) = %v, want 1 within 1e-9", sumProbs(s))
	}
	for i, p := range s.Probs {
		if p < 0 {
			t.Errorf("p[%d] = %v, want >= 0", i, p)
		}
	}
}

func TestUpdateSmartPreservesSimplex(t *testing.T) {
	n := 12
	s := NewUniform(n)
	params := DeriveParams(EXP3, n, 1000, DefaultClampFloor)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		chosen := rng.Intn(n)
		reward := Reward(false, rng.Float64() < 0.5, false, s.Probs[chosen])
		s.UpdateSmart(params, chosen, reward)
		assertSimplex(t, s)
	}
}

func TestUpdateSmartEXP3S(t *testing.T) {
	n := 6
	s := NewUniform(n)
	params := DeriveParams(EXP3S, n, 500, DefaultClampFloor)

	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		chosen := rng.Intn(n)
		reward := Reward(true, rng.Float64() < 0.7, rng.Float64() < 0.3, s.Probs[chosen])
		s.UpdateSmart(params, chosen, reward)
		assertSimplex(t, s)
	}
}

func TestClampFloorZeroesSmallEntries(t *testing.T) {
	s := &State{Weights: []float64{1, 1, 1}, Probs: []float64{0.0001, 0.4999, 0.5}}
	s.clampAndRenormalize(DefaultClampFloor)
	if s.Probs[0] != 0 {
		t.Errorf("expected entry below clamp floor to be zeroed, got %v", s.Probs[0])
	}
	assertSimplex(t, s)
}

func TestResampleRandomStaysOnSimplex(t *testing.T) {
	s := NewUniform(8)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		s.ResampleRandom(rng, DefaultClampFloor)
		assertSimplex(t, s)
	}
}

func TestResetUniform(t *testing.T) {
	s := NewUniform(4)
	s.Probs[0] = 0.9
	s.Probs[1] = 0.1
	s.Probs[2] = 0
	s.Probs[3] = 0
	s.ResetUniform(DefaultClampFloor)
	for _, p := range s.Probs {
		if math.Abs(p-0.25) > 1e-9 {
			t.Errorf("expected uniform 0.25, got %v", p)
		}
	}
}

func TestDeriveParamsEXP3Bounds(t *testing.T) {
	params := DeriveParams(EXP3, 10, 1, DefaultClampFloor)
	if params.Eta < 0 || params.Eta > 1 {
		t.Errorf("eta out of [0,1]: %v", params.Eta)
	}
	if params.Alpha != 0 {
		t.Errorf("EXP3 alpha should be 0, got %v", params.Alpha)
	}
}

func TestDeriveParamsEXP3S(t *testing.T) {
	params := DeriveParams(EXP3S, 10, 100, DefaultClampFloor)
	if params.Alpha != 1.0/100 {
		t.Errorf("alpha = %v, want 0.01", params.Alpha)
	}
	if params.Eta < 0 || params.Eta > 1 {
		t.Errorf("eta out of [0,1]: %v", params.Eta)
	}
}

func TestRescaleIfNeededPreservesProbs(t *testing.T) {
	s := &State{Weights: []float64{overflowThreshold * 2, overflowThreshold}, Probs: []float64{0.7, 0.3}}
	before := append([]float64(nil), s.Probs...)
	s.RescaleIfNeeded()
	for i := range s.Probs {
		if s.Probs[i] != before[i] {
			t.Errorf("rescale changed probs: %v -> %v", before, s.Probs)
		}
	}
	if s.Weights[0] <= 1 {
		t.Logf("weights rescaled to %v", s.Weights)
	}
}

func TestRewardModes(t *testing.T) {
	if got := Reward(false, false, false, 0.5); got != 0 {
		t.Errorf("no ACK: got %v, want 0", got)
	}
	if got := Reward(false, true, false, 0.5); got != 2 {
		t.Errorf("NO/PARTIAL ACK: got %v, want 2", got)
	}
	if got := Reward(true, true, false, 0.5); got != 2 {
		t.Errorf("FULL ACK no collision: got %v, want 2", got)
	}
	if got := Reward(true, true, true, 0.5); got != 1 {
		t.Errorf("FULL ACK collision: got %v, want 1 (0.5/0.5)", got)
	}
}
