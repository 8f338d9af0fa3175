package trace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteProbAppendsWithoutLeadingNewlineOnFirstWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, "run1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := w.WriteProb(3, []float64{0.5, 0.25, 0.25}); err != nil {
		t.Fatalf("WriteProb: %v", err)
	}
	path := filepath.Join(dir, "prob_run1_id_3.csv")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "0.5, 0.25, 0.25"
	if string(data) != want {
		t.Errorf("got %q, want %q", string(data), want)
	}

	if err := w.WriteProb(3, []float64{1, 0, 0}); err != nil {
		t.Fatalf("WriteProb: %v", err)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want = "0.5, 0.25, 0.25\n1, 0, 0"
	if string(data) != want {
		t.Errorf("got %q, want %q", string(data), want)
	}
}

func TestWriteRatioAndEnergyAndTraffic(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, "run2")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := w.WriteRatio(0.83); err != nil {
		t.Fatalf("WriteRatio: %v", err)
	}
	if err := w.WriteEnergy(12.5, 100, 83); err != nil {
		t.Fatalf("WriteEnergy: %v", err)
	}
	if err := w.WriteTraffic(4.2, 1.1); err != nil {
		t.Fatalf("WriteTraffic: %v", err)
	}

	ratio, err := os.ReadFile(filepath.Join(dir, "ratio_run2.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(ratio) != "0.83" {
		t.Errorf("ratio = %q, want 0.83", string(ratio))
	}

	energy, err := os.ReadFile(filepath.Join(dir, "energy_run2.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(energy) != "12.5 100 83" {
		t.Errorf("energy = %q, want \"12.5 100 83\"", string(energy))
	}

	traffic, err := os.ReadFile(filepath.Join(dir, "traffic_run2.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(traffic) != "4.2 1.1" {
		t.Errorf("traffic = %q, want \"4.2 1.1\"", string(traffic))
	}
}
