package topology

import (
	"math"
	"path/filepath"
	"testing"
)

func TestGenerateSingleGatewayAtGridCenter(t *testing.T) {
	layout, err := Generate(Params{
		NumGateways:  1,
		NumDevices:   10,
		GridWidthM:   2000,
		GridHeightM:  1000,
		Radius:       500,
		Distribution: []float64{1.0},
		Seed:         1,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(layout.Gateways) != 1 {
		t.Fatalf("expected 1 gateway, got %d", len(layout.Gateways))
	}
	want := Point{X: 1000, Y: 500}
	if layout.Gateways[0] != want {
		t.Errorf("gateway = %+v, want %+v", layout.Gateways[0], want)
	}
}

func TestGenerateDeviceCountAndDistanceInvariant(t *testing.T) {
	layout, err := Generate(Params{
		NumGateways:  1,
		NumDevices:   200,
		GridWidthM:   5000,
		GridHeightM:  5000,
		Radius:       1000,
		Distribution: []float64{0.5, 0.3, 0.2},
		Seed:         42,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(layout.Devices) != 200 {
		t.Fatalf("expected 200 devices placed, got %d", len(layout.Devices))
	}

	gw := layout.Gateways[0]
	for i, d := range layout.Devices {
		dist := math.Hypot(d.X-gw.X, d.Y-gw.Y)
		if dist > 1000+1e-6 {
			t.Errorf("device %d at distance %.2f exceeds radius 1000", i, dist)
		}
	}
}

func TestGenerateSplitsDevicesAcrossRingsByDistribution(t *testing.T) {
	layout, err := Generate(Params{
		NumGateways:  1,
		NumDevices:   100,
		GridWidthM:   5000,
		GridHeightM:  5000,
		Radius:       900,
		Distribution: []float64{0.3, 0.7},
		Seed:         7,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	gw := layout.Gateways[0]
	innerRing := 0
	for _, d := range layout.Devices {
		dist := math.Hypot(d.X-gw.X, d.Y-gw.Y)
		if dist < 450 {
			innerRing++
		}
	}
	if innerRing != 30 {
		t.Errorf("expected 30 devices in the inner ring (0.3 * 100), got %d", innerRing)
	}
}

func TestGenerateRejectsEmptyDistribution(t *testing.T) {
	_, err := Generate(Params{NumGateways: 1, NumDevices: 1, GridWidthM: 100, GridHeightM: 100})
	if err == nil {
		t.Error("expected an error for an empty distribution")
	}
}

func TestLoadCachesAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	params := Params{
		NumGateways:  1,
		NumDevices:   20,
		GridWidthM:   2000,
		GridHeightM:  2000,
		Radius:       500,
		Distribution: []float64{1.0},
		Seed:         3,
		CacheDir:     dir,
	}

	first, err := Load(params)
	if err != nil {
		t.Fatalf("Load (miss): %v", err)
	}

	gwPath, devPath := cachePaths(dir, params.NumGateways, params.NumDevices)
	if !fileExists(gwPath) {
		t.Errorf("expected gateway cache file at %s", gwPath)
	}
	if !fileExists(devPath) {
		t.Errorf("expected device cache file at %s", devPath)
	}

	// A second Load with a different seed must still return the cached
	// layout rather than regenerating, proving the cache hit path is taken.
	params.Seed = 999
	second, err := Load(params)
	if err != nil {
		t.Fatalf("Load (hit): %v", err)
	}
	if len(second.Devices) != len(first.Devices) {
		t.Fatalf("cached device count = %d, want %d", len(second.Devices), len(first.Devices))
	}
	for i := range first.Devices {
		if second.Devices[i] != first.Devices[i] {
			t.Errorf("device %d = %+v, want cached %+v", i, second.Devices[i], first.Devices[i])
		}
	}
}

func TestLoadWithNoCacheDirAlwaysGenerates(t *testing.T) {
	params := Params{
		NumGateways:  1,
		NumDevices:   5,
		GridWidthM:   1000,
		GridHeightM:  1000,
		Radius:       300,
		Distribution: []float64{1.0},
		Seed:         11,
	}
	layout, err := Load(params)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(layout.Devices) != 5 {
		t.Errorf("expected 5 devices, got %d", len(layout.Devices))
	}
}

func TestCachePathsNamingConvention(t *testing.T) {
	gwPath, devPath := cachePaths("/tmp/out", 3, 150)
	wantGw := filepath.Join("/tmp/out", "bsList_bs3_nodes150.json")
	wantDev := filepath.Join("/tmp/out", "nodeList_bs3_nodes150.json")
	if gwPath != wantGw {
		t.Errorf("gwPath = %q, want %q", gwPath, wantGw)
	}
	if devPath != wantDev {
		t.Errorf("devPath = %q, want %q", devPath, wantDev)
	}
}
