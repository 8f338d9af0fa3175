// Package topology places gateways and devices on the simulation grid and
// caches the resulting layout to disk so repeated runs with the same
// (gateway count, device count) reuse one placement, matching the
// reference implementation's .npy cache keyed the same way — reimplemented
// here as JSON, a format Go's standard library reads and writes without an
// extra numeric-array dependency.
package topology

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
)

// Point is a planar location in meters.
type Point struct {
	X, Y float64
}

// Layout is a complete placed scenario: gateway and device positions, plus
// which devices are "intelligent" (SMART-capable) per the reference
// nrIntNodes split.
type Layout struct {
	Gateways       []Point `json:"gateways"`
	Devices        []Point `json:"devices"`
	NumSmartDevices int    `json:"num_smart_devices"`
}

func cachePaths(dir string, numGateways, numDevices int) (gwPath, devPath string) {
	gwPath = filepath.Join(dir, fmt.Sprintf("bsList_bs%d_nodes%d.json", numGateways, numDevices))
	devPath = filepath.Join(dir, fmt.Sprintf("nodeList_bs%d_nodes%d.json", numGateways, numDevices))
	return
}

// Params controls placement.
type Params struct {
	NumGateways     int
	NumDevices      int
	NumSmartDevices int
	GridWidthM      float64
	GridHeightM     float64
	Radius          float64   // device placement radius around the nearest gateway
	Distribution    []float64 // fraction of devices placed in each concentric ring out to Radius
	Seed            int64
	CacheDir        string
}

// Load returns the cached layout for Params' (numGateways, numDevices) if
// present, or generates and caches a fresh one via Generate otherwise.
func Load(p Params) (Layout, error) {
	if p.CacheDir == "" {
		return Generate(p)
	}

	gwPath, devPath := cachePaths(p.CacheDir, p.NumGateways, p.NumDevices)
	if fileExists(gwPath) && fileExists(devPath) {
		gateways, err := readPoints(gwPath)
		if err != nil {
			return Layout{}, err
		}
		devices, err := readPoints(devPath)
		if err != nil {
			return Layout{}, err
		}
		return Layout{Gateways: gateways, Devices: devices, NumSmartDevices: p.NumSmartDevices}, nil
	}

	layout, err := Generate(p)
	if err != nil {
		return Layout{}, err
	}
	if err := os.MkdirAll(p.CacheDir, 0755); err != nil {
		return Layout{}, fmt.Errorf("topology: create cache dir: %w", err)
	}
	if err := writePoints(gwPath, layout.Gateways); err != nil {
		return Layout{}, err
	}
	if err := writePoints(devPath, layout.Devices); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// Generate places gateways and devices fresh, without touching any cache.
// A single gateway is placed at the grid center, matching the reference
// special case; more than one is scattered uniformly over the inner 80% of
// the grid. Devices are scattered within Radius of a gateway,
// split across concentric rings by Distribution (ring i holds
// Distribution[i] of the devices, ring 0 innermost).
func Generate(p Params) (Layout, error) {
	rng := rand.New(rand.NewSource(p.Seed))

	gateways := make([]Point, p.NumGateways)
	if p.NumGateways == 1 {
		gateways[0] = Point{X: p.GridWidthM * 0.5, Y: p.GridHeightM * 0.5}
	} else {
		for i := range gateways {
			gateways[i] = Point{
				X: uniform(rng, p.GridWidthM*0.1, p.GridWidthM*0.9),
				Y: uniform(rng, p.GridHeightM*0.1, p.GridHeightM*0.9),
			}
		}
	}

	if len(p.Distribution) == 0 {
		return Layout{}, fmt.Errorf("topology: distribution must have at least one ring")
	}

	devices := make([]Point, 0, p.NumDevices)
	placed := 0
	for ring, frac := range p.Distribution {
		count := int(float64(p.NumDevices) * frac)
		if ring == len(p.Distribution)-1 {
			count = p.NumDevices - placed // absorb rounding into the last ring
		}
		innerR := p.Radius * float64(ring) / float64(len(p.Distribution))
		outerR := p.Radius * float64(ring+1) / float64(len(p.Distribution))
		for i := 0; i < count; i++ {
			devices = append(devices, placeInAnnulus(rng, gateways, innerR, outerR, p.GridWidthM, p.GridHeightM))
		}
		placed += count
	}

	return Layout{Gateways: gateways, Devices: devices, NumSmartDevices: p.NumSmartDevices}, nil
}

// placeInAnnulus draws a point uniformly within the grid such that it
// falls within [innerR, outerR) of at least one gateway, matching the
// reference's rejection-sampling placement loop.
func placeInAnnulus(rng *rand.Rand, gateways []Point, innerR, outerR, gridW, gridH float64) Point {
	for attempt := 0; attempt < 10000; attempt++ {
		x := uniform(rng, 0, gridW)
		y := uniform(rng, 0, gridH)
		for _, gw := range gateways {
			d := math.Hypot(x-gw.X, y-gw.Y)
			if d >= innerR && d < outerR {
				return Point{X: x, Y: y}
			}
		}
	}
	// Fall back to a random point at the ring's mid-radius around the
	// first gateway if rejection sampling could not find a fit (possible
	// for a very narrow outer ring on a small grid).
	gw := gateways[0]
	angle := rng.Float64() * 2 * math.Pi
	r := (innerR + outerR) / 2
	return Point{X: gw.X + r*math.Cos(angle), Y: gw.Y + r*math.Sin(angle)}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readPoints(path string) ([]Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: read %s: %w", path, err)
	}
	var points []Point
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("topology: parse %s: %w", path, err)
	}
	return points, nil
}

func writePoints(path string, points []Point) error {
	data, err := json.MarshalIndent(points, "", "  ")
	if err != nil {
		return fmt.Errorf("topology: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("topology: write %s: %w", path, err)
	}
	return nil
}
