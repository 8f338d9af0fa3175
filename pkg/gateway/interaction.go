package gateway

import (
	"gonum.org/v1/gonum/mat"

	"github.com/lora-mab/lora-sim/pkg/propagation"
)

// InteractionMatrix builds the 6x6 cross-SF capture coefficient matrix in
// linear mW, for the four combinations of captureEffect and
// interSFInterference that spec §6 exposes on the CLI. Values are taken
// from the reference lab-measured table (diagonal capture gain and
// off-diagonal leakage, both in dB, converted once here).
func InteractionMatrix(captureEffect, interSFInterference bool) *mat.Dense {
	m := mat.NewDense(6, 6, nil)

	diag := 0.0
	if captureEffect {
		diag = propagation.DBmToMW(6)
	}

	if interSFInterference {
		offDiag := [6]float64{
			propagation.DBmToMW(-7.5),
			propagation.DBmToMW(-9),
			propagation.DBmToMW(-13.5),
			propagation.DBmToMW(-15),
			propagation.DBmToMW(-18),
			propagation.DBmToMW(-22.5),
		}
		for i := 0; i < 6; i++ {
			for j := 0; j < 6; j++ {
				if i == j {
					m.Set(i, j, diag)
				} else {
					m.Set(i, j, offDiag[i])
				}
			}
		}
		return m
	}

	if captureEffect {
		for i := 0; i < 6; i++ {
			m.Set(i, i, diag)
		}
		return m
	}

	// Neither capture effect nor inter-SF interference: identity matrix,
	// each SF only ever sees its own power.
	for i := 0; i < 6; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// CaptureThreshold converts the boolean captureEffect CLI flag to the
// linear-power threshold θ used by evaluateCapture: 6 dB when enabled, 0
// (capture disabled) otherwise.
func CaptureThreshold(captureEffect bool) float64 {
	if captureEffect {
		return propagation.DBmToMW(6)
	}
	return 0
}
