// Package reporting prints the simulator's human-facing run progress and
// final summary: the periodic "kHrs" heartbeat (the reference cuckooClock)
// and the end-of-run reception-ratio report, in text, JSON, or a cleared-
// screen TUI form. Structure follows the reference framework's progress
// reporter (format switch, ANSI clear-screen/clear-line helpers); the
// content is the LoRa run's own state, not a chaos test's.
package reporting

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format selects how progress and the final summary are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatTUI  Format = "tui"
)

// Heartbeat is one periodic progress notice, fired every cuckoo interval
// of simulated time.
type Heartbeat struct {
	SimulatedKiloHours float64
	PacketsTransmitted int
	PacketsSucceeded   int
}

// Summary is the end-of-run report: the same fields utils.py's sim()
// prints after env.run() returns.
type Summary struct {
	PacketsTransmitted int
	PacketsSucceeded   int
	ReceptionRatio     float64
	TotalEnergyJoules  float64
	SimulatedHours     float64
	StoppedEarly       bool
	StopReason         string
}

// Reporter renders Heartbeat and Summary values in the configured Format.
type Reporter struct {
	format Format
}

// New returns a Reporter using format, defaulting to FormatText for any
// unrecognized value.
func New(format Format) *Reporter {
	switch format {
	case FormatJSON, FormatTUI:
		return &Reporter{format: format}
	default:
		return &Reporter{format: FormatText}
	}
}

// Heartbeat prints a single progress heartbeat.
func (r *Reporter) Heartbeat(h Heartbeat) {
	switch r.format {
	case FormatJSON:
		data, _ := json.Marshal(map[string]interface{}{
			"event":               "heartbeat",
			"simulated_kilohours": h.SimulatedKiloHours,
			"packets_transmitted": h.PacketsTransmitted,
			"packets_succeeded":   h.PacketsSucceeded,
		})
		fmt.Println(string(data))
	case FormatTUI:
		r.clearLine()
		fmt.Printf("Running %.1f kHrs | tx=%d ok=%d\n", h.SimulatedKiloHours, h.PacketsTransmitted, h.PacketsSucceeded)
	default:
		fmt.Printf("Running %.1f kHrs\n", h.SimulatedKiloHours)
	}
}

// Final prints the end-of-run summary.
func (r *Reporter) Final(s Summary) {
	switch r.format {
	case FormatJSON:
		data, _ := json.Marshal(s)
		fmt.Println(string(data))
	case FormatTUI:
		r.clearScreen()
		r.printSummaryBlock(s)
	default:
		r.printSummaryBlock(s)
	}
}

func (r *Reporter) printSummaryBlock(s Summary) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Simulation results")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("  Transmitted : %d\n", s.PacketsTransmitted)
	fmt.Printf("  Received    : %d\n", s.PacketsSucceeded)
	fmt.Printf("  Ratio       : %.4f\n", s.ReceptionRatio)
	fmt.Printf("  Energy (J)  : %.4f\n", s.TotalEnergyJoules)
	fmt.Printf("  Sim. hours  : %.2f\n", s.SimulatedHours)
	if s.StoppedEarly {
		fmt.Printf("  Stopped early: %s\n", s.StopReason)
	}
	fmt.Println(strings.Repeat("=", 60))
}

func (r *Reporter) clearScreen() { fmt.Print("\033[2J\033[H") }
func (r *Reporter) clearLine()   { fmt.Print("\033[K") }
