// Package config loads and validates the simulator's run configuration:
// network scale, channel/PHY parameters, bandit settings, and logging/
// metrics/output settings. Loading and validation follow the reference
// framework config's YAML-with-defaults-and-env-override pattern.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full simulator run configuration.
type Config struct {
	Network    NetworkConfig    `yaml:"network"`
	Channel    ChannelConfig    `yaml:"channel"`
	PHY        PHYConfig        `yaml:"phy"`
	Bandit     BanditConfig     `yaml:"bandit"`
	Reporting  ReportingConfig  `yaml:"reporting"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// NetworkConfig describes the device/gateway population and how devices
// are spatially distributed.
type NetworkConfig struct {
	NumDevices       int       `yaml:"num_devices"`
	NumSmartDevices  int       `yaml:"num_smart_devices"`
	NumGateways      int       `yaml:"num_gateways"`
	InitialMode      string    `yaml:"initial_mode"`       // UNIFORM | RANDOM
	InfoMode         string    `yaml:"info_mode"`          // NO | PARTIAL | FULL
	Radius           float64   `yaml:"radius"`             // meters
	Distribution     []float64 `yaml:"distribution"`       // fraction of devices per concentric ring
	AvgSendTimeMs    float64   `yaml:"avg_send_time_ms"`
	HorizonPackets   float64   `yaml:"horizon_packets"`
	GridWidthM       float64   `yaml:"grid_width_m"`
	GridHeightM      float64   `yaml:"grid_height_m"`
	PlacementSeed    int64     `yaml:"placement_seed"`
	TopologyCacheDir string    `yaml:"topology_cache_dir"`
}

// ChannelConfig carries the log-distance shadowing model parameters and
// the interference/capture behavior flags.
type ChannelConfig struct {
	Gamma                float64 `yaml:"gamma"`
	Lpld0                float64 `yaml:"lpld0"`
	D0                   float64 `yaml:"d0"`
	InterferenceThreshDB float64 `yaml:"interference_threshold_dbm"`
	CaptureEffect        bool    `yaml:"capture_effect"`
	InterSFInterference  bool    `yaml:"inter_sf_interference"`
	NumDemodulators      int     `yaml:"num_demodulators"`
}

// PHYConfig carries the action-set geometry and fixed packet shape.
type PHYConfig struct {
	SFSet          []int     `yaml:"sf_set"`
	FreqSet        []int     `yaml:"freq_set"`
	PowSet         []float64 `yaml:"pow_set"`
	BW             int       `yaml:"bw"`
	PacketLength   int       `yaml:"packet_length"`
	PreambleLength float64   `yaml:"preamble_length"`
	SyncLength     float64   `yaml:"sync_length"`
	HeaderEnable   bool      `yaml:"header_enable"`
	CRC            bool      `yaml:"crc"`
}

// BanditConfig selects the adversarial-bandit variant and its clamping
// behavior.
type BanditConfig struct {
	Algo       string  `yaml:"algo"` // exp3 | exp3s
	ClampFloor float64 `yaml:"clamp_floor"`
	LegacyClamp bool   `yaml:"legacy_clamp"`
}

// ReportingConfig controls where CSV traces and heartbeat notices land.
type ReportingConfig struct {
	OutputDir         string `yaml:"output_dir"`
	CuckooIntervalHrs float64 `yaml:"cuckoo_interval_hours"`
	TraceIntervalHrs  float64 `yaml:"trace_interval_hours"`
}

// LoggingConfig mirrors pkg/telemetry.Config's fields for YAML loading.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the optional Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a configuration matching the reference simulator's own
// defaults: single base station, 100 devices, EXP3, no capture effect.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			NumDevices:       100,
			NumSmartDevices:  100,
			NumGateways:      1,
			InitialMode:      "UNIFORM",
			InfoMode:         "NO",
			Radius:           4000,
			Distribution:     []float64{1.0},
			AvgSendTimeMs:    600000,
			HorizonPackets:   1000,
			GridWidthM:       10000,
			GridHeightM:      10000,
			PlacementSeed:    42,
			TopologyCacheDir: "./topology-cache",
		},
		Channel: ChannelConfig{
			Gamma:                2.08,
			Lpld0:                107.41,
			D0:                   40.0,
			InterferenceThreshDB: -150,
			CaptureEffect:        false,
			InterSFInterference:  false,
			NumDemodulators:      8,
		},
		PHY: PHYConfig{
			SFSet:          []int{7, 8, 9, 10, 11, 12},
			FreqSet:        []int{867100, 867300, 867500, 867700, 867900, 868100, 868300, 868500},
			PowSet:         []float64{2, 5, 8, 11, 14},
			BW:             125,
			PacketLength:   20,
			PreambleLength: 8,
			SyncLength:     4.25,
			HeaderEnable:   false,
			CRC:            true,
		},
		Bandit: BanditConfig{
			Algo:       "exp3",
			ClampFloor: 0.0005,
		},
		Reporting: ReportingConfig{
			OutputDir:         "./out",
			CuckooIntervalHrs: 1000,
			TraceIntervalHrs:  100,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: false, Addr: ":9100"},
	}
}

// Load reads path as YAML over the default configuration; a missing file
// is not an error, matching the reference framework's fall-back-to-
// defaults behavior. Environment variables are expanded in the raw file
// content before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// clampFloorOrDefault resolves the effective clamp floor: an explicit config value
// wins, then the legacy flag, then the current-variant default.
func (c *Config) clampFloorOrDefault(currentDefault, legacy float64) float64 {
	if c.Bandit.ClampFloor != 0 {
		return c.Bandit.ClampFloor
	}
	if c.Bandit.LegacyClamp {
		return legacy
	}
	return currentDefault
}

// ResolvedClampFloor returns the clamp floor to use, applying the
// default/legacy fallback of clampFloorOrDefault against the bandit
// package's published constants. The caller (pkg/simulator) passes those
// constants explicitly to avoid an import cycle between config and
// device/bandit.
func (c *Config) ResolvedClampFloor(defaultFloor, legacyFloor float64) float64 {
	return c.clampFloorOrDefault(defaultFloor, legacyFloor)
}

var validModes = map[string]bool{"UNIFORM": true, "RANDOM": true}
var validInfoModes = map[string]bool{"NO": true, "PARTIAL": true, "FULL": true}
var validAlgos = map[string]bool{"exp3": true, "exp3s": true}

// Validate checks field-level invariants spec §7 requires the CLI to
// reject before simulation setup begins.
func (c *Config) Validate() error {
	if c.Network.NumDevices < 1 {
		return fmt.Errorf("network.num_devices must be at least 1")
	}
	if c.Network.NumSmartDevices < 0 || c.Network.NumSmartDevices > c.Network.NumDevices {
		return fmt.Errorf("network.num_smart_devices must be between 0 and num_devices")
	}
	if c.Network.NumGateways < 1 {
		return fmt.Errorf("network.num_gateways must be at least 1")
	}
	if !validModes[c.Network.InitialMode] {
		return fmt.Errorf("network.initial_mode must be UNIFORM or RANDOM, got %q", c.Network.InitialMode)
	}
	if !validInfoModes[c.Network.InfoMode] {
		return fmt.Errorf("network.info_mode must be NO, PARTIAL, or FULL, got %q", c.Network.InfoMode)
	}
	if c.Network.AvgSendTimeMs <= 0 {
		return fmt.Errorf("network.avg_send_time_ms must be positive")
	}
	if len(c.Network.Distribution) == 0 {
		return fmt.Errorf("network.distribution must have at least one ring")
	}
	sum := 0.0
	for _, d := range c.Network.Distribution {
		sum += d
	}
	if sum <= 0 || sum > 1.0001 {
		return fmt.Errorf("network.distribution must sum to at most 1.0, got %v", sum)
	}

	if !validAlgos[c.Bandit.Algo] {
		return fmt.Errorf("bandit.algo must be exp3 or exp3s, got %q", c.Bandit.Algo)
	}

	if len(c.PHY.SFSet) == 0 {
		return fmt.Errorf("phy.sf_set must not be empty")
	}
	for _, sf := range c.PHY.SFSet {
		if sf < 7 || sf > 12 {
			return fmt.Errorf("phy.sf_set: invalid spreading factor %d, must be 7-12", sf)
		}
	}
	if len(c.PHY.FreqSet) == 0 {
		return fmt.Errorf("phy.freq_set must not be empty")
	}
	if len(c.PHY.PowSet) == 0 {
		return fmt.Errorf("phy.pow_set must not be empty")
	}
	if c.PHY.BW != 125 && c.PHY.BW != 250 && c.PHY.BW != 500 {
		return fmt.Errorf("phy.bw must be 125, 250, or 500, got %d", c.PHY.BW)
	}

	if c.Reporting.OutputDir == "" {
		return fmt.Errorf("reporting.output_dir is required")
	}

	return nil
}

// SimulatedDurationMs is the configured horizon expressed in simulated
// milliseconds, matching the reference sim()'s simtime = horTime *
// avgSendTime.
func (c *Config) SimulatedDurationMs() float64 {
	return c.Network.HorizonPackets * c.Network.AvgSendTimeMs
}

// CuckooIntervalMs and TraceIntervalMs convert the hour-denominated
// reporting intervals to milliseconds for the scheduler.
func (c *Config) CuckooIntervalMs() float64 {
	return c.Reporting.CuckooIntervalHrs * float64(time.Hour/time.Millisecond)
}

func (c *Config) TraceIntervalMs() float64 {
	return c.Reporting.TraceIntervalHrs * float64(time.Hour/time.Millisecond)
}
