package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lora-mab/lora-sim/pkg/config"
	"github.com/lora-mab/lora-sim/pkg/device/bandit"
	"github.com/lora-mab/lora-sim/pkg/lifecycle"
	"github.com/lora-mab/lora-sim/pkg/metrics"
	"github.com/lora-mab/lora-sim/pkg/reporting"
	"github.com/lora-mab/lora-sim/pkg/simulator"
	"github.com/lora-mab/lora-sim/pkg/telemetry"
	"github.com/lora-mab/lora-sim/pkg/topology"
	"github.com/lora-mab/lora-sim/pkg/trace"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Args:  cobra.NoArgs,
	Short: "Run a network simulation to completion",
	Long:  `Loads a configuration, places the topology, and runs the simulation to its configured horizon.`,
	RunE:  runSimulation,
}

func init() {
	f := runCmd.Flags()
	f.Int("nrNodes", 0, "total number of devices (overrides config)")
	f.Int("nrIntNodes", 0, "number of intelligent (bandit-driven) devices (overrides config)")
	f.Int("nrBS", 0, "number of gateways / base stations (overrides config)")
	f.String("initial", "", "initial mode for non-intelligent devices: UNIFORM or RANDOM (overrides config)")
	f.Float64("radius", 0, "device placement radius in meters (overrides config)")
	f.String("distribution", "", "comma-separated ring fractions summing to 1 (overrides config)")
	f.Float64("AvgSendTime", 0, "mean inter-transmission period in ms (overrides config)")
	f.Float64("horizonTime", 0, "transmission-opportunity horizon per device (overrides config)")
	f.Int("packetLength", 0, "packet payload length in bytes (overrides config)")
	f.String("freqSet", "", "comma-separated candidate frequencies in kHz (overrides config)")
	f.String("sfSet", "", "comma-separated candidate spreading factors (overrides config)")
	f.String("powerSet", "", "comma-separated candidate transmit powers in dBm (overrides config)")
	f.Bool("captureEffect", false, "enable gateway capture effect (overrides config)")
	f.Bool("interSFInterference", false, "enable cross-spreading-factor interference (overrides config)")
	f.String("infoMode", "", "device side information: NO, PARTIAL, or FULL (overrides config)")
	f.String("Algo", "", "bandit variant: exp3 or exp3s (overrides config)")
	f.String("logdir", "", "root directory for traces and topology caches (overrides config)")
	f.String("exp_name", "", "experiment name, a subdirectory of logdir (overrides config)")

	f.Bool("legacy-clamp", false, "use the historical 0.001 clamp floor instead of the current 0.0005")
	f.String("metrics-addr", "", "if set, serve Prometheus metrics on this address while running")
	f.String("stop-file", "", "if set, the run stops cleanly when this file appears")
	f.Int64("seed", 7, "RNG seed driving inter-arrival, action sampling, and external traffic")
	f.String("format", "text", "summary output format: text, json, or tui")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return fmt.Errorf("failed to apply flag overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logLevel := telemetry.LevelInfo
	if verbose {
		logLevel = telemetry.LevelDebug
	}
	logFormat := telemetry.FormatText
	if cfg.Logging.Format == "json" {
		logFormat = telemetry.FormatJSON
	}
	logger := telemetry.New(telemetry.Config{Level: logLevel, Format: logFormat})

	logger.Info("lora-sim starting", "version", version)
	logPrintParams(logger, cfg)

	layout, err := topology.Load(topology.Params{
		NumGateways:     cfg.Network.NumGateways,
		NumDevices:      cfg.Network.NumDevices,
		NumSmartDevices: cfg.Network.NumSmartDevices,
		GridWidthM:      cfg.Network.GridWidthM,
		GridHeightM:     cfg.Network.GridHeightM,
		Radius:          cfg.Network.Radius,
		Distribution:    cfg.Network.Distribution,
		Seed:            cfg.Network.PlacementSeed,
		CacheDir:        cfg.Network.TopologyCacheDir,
	})
	if err != nil {
		return fmt.Errorf("failed to place topology: %w", err)
	}
	logger.Info("topology ready", "gateways", len(layout.Gateways), "devices", len(layout.Devices))

	traceKey := simulator.TraceKey(cfg)
	traceWriter, err := trace.New(cfg.Reporting.OutputDir, traceKey)
	if err != nil {
		return fmt.Errorf("failed to open trace writer: %w", err)
	}

	var metricsReg *metrics.Registry
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	if metricsAddr == "" && cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		metricsReg = metrics.New()
		go func() {
			if err := http.ListenAndServe(metricsAddr, metricsReg.Handler()); err != nil {
				logger.Error("metrics server stopped", "error", err.Error())
			}
		}()
		logger.Info("metrics exposed", "addr", metricsAddr)
	}

	var stopCtl *lifecycle.StopController
	stopFile, _ := cmd.Flags().GetString("stop-file")
	if stopFile != "" {
		stopCtl = lifecycle.New(lifecycle.Config{StopFile: stopFile})
	}

	seed, _ := cmd.Flags().GetInt64("seed")
	sim, err := simulator.New(cfg, layout, simulator.Deps{
		Trace:   traceWriter,
		Logger:  logger,
		Metrics: metricsReg,
		Stop:    stopCtl,
		Seed:    seed,
	})
	if err != nil {
		return fmt.Errorf("failed to build simulator: %w", err)
	}

	logger.Info("simulation starting", "horizon_ms", cfg.SimulatedDurationMs())
	summary := sim.Run()
	logger.Info("simulation finished",
		"transmitted", summary.PacketsTransmitted,
		"succeeded", summary.PacketsSucceeded,
		"stopped_early", summary.StoppedEarly,
	)

	reporter := reporting.New(reporting.Format(outputFormat(cmd)))
	reporter.Final(summary.ToReport())
	return nil
}

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("format")
	if f == "" {
		return string(reporting.FormatText)
	}
	return f
}

// logPrintParams echoes the resolved configuration before running,
// matching lora/utils.py's print_params.
func logPrintParams(logger *telemetry.Logger, cfg *config.Config) {
	logger.Info("resolved parameters",
		"nrNodes", cfg.Network.NumDevices,
		"nrIntNodes", cfg.Network.NumSmartDevices,
		"nrBS", cfg.Network.NumGateways,
		"initial", cfg.Network.InitialMode,
		"infoMode", cfg.Network.InfoMode,
		"AvgSendTime", cfg.Network.AvgSendTimeMs,
		"horizonTime", cfg.Network.HorizonPackets,
		"captureEffect", cfg.Channel.CaptureEffect,
		"interSFInterference", cfg.Channel.InterSFInterference,
		"algo", cfg.Bandit.Algo,
		"logdir", cfg.Reporting.OutputDir,
	)
}

// applyRunFlags overrides cfg's fields with any flag the user actually set,
// matching the teacher's layered config-then-flags precedence (scenario
// YAML as the base, --set-style flags as the final word).
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	if f.Changed("nrNodes") {
		cfg.Network.NumDevices, _ = f.GetInt("nrNodes")
	}
	if f.Changed("nrIntNodes") {
		cfg.Network.NumSmartDevices, _ = f.GetInt("nrIntNodes")
	}
	if f.Changed("nrBS") {
		cfg.Network.NumGateways, _ = f.GetInt("nrBS")
	}
	if f.Changed("initial") {
		cfg.Network.InitialMode, _ = f.GetString("initial")
	}
	if f.Changed("radius") {
		cfg.Network.Radius, _ = f.GetFloat64("radius")
	}
	if f.Changed("distribution") {
		raw, _ := f.GetString("distribution")
		dist, err := parseFloatList(raw)
		if err != nil {
			return fmt.Errorf("--distribution: %w", err)
		}
		cfg.Network.Distribution = dist
	}
	if f.Changed("AvgSendTime") {
		cfg.Network.AvgSendTimeMs, _ = f.GetFloat64("AvgSendTime")
	}
	if f.Changed("horizonTime") {
		cfg.Network.HorizonPackets, _ = f.GetFloat64("horizonTime")
	}
	if f.Changed("packetLength") {
		cfg.PHY.PacketLength, _ = f.GetInt("packetLength")
	}
	if f.Changed("freqSet") {
		raw, _ := f.GetString("freqSet")
		freqs, err := parseIntList(raw)
		if err != nil {
			return fmt.Errorf("--freqSet: %w", err)
		}
		cfg.PHY.FreqSet = freqs
	}
	if f.Changed("sfSet") {
		raw, _ := f.GetString("sfSet")
		sfs, err := parseIntList(raw)
		if err != nil {
			return fmt.Errorf("--sfSet: %w", err)
		}
		cfg.PHY.SFSet = sfs
	}
	if f.Changed("powerSet") {
		raw, _ := f.GetString("powerSet")
		pows, err := parseFloatList(raw)
		if err != nil {
			return fmt.Errorf("--powerSet: %w", err)
		}
		cfg.PHY.PowSet = pows
	}
	if f.Changed("captureEffect") {
		cfg.Channel.CaptureEffect, _ = f.GetBool("captureEffect")
	}
	if f.Changed("interSFInterference") {
		cfg.Channel.InterSFInterference, _ = f.GetBool("interSFInterference")
	}
	if f.Changed("infoMode") {
		cfg.Network.InfoMode, _ = f.GetString("infoMode")
	}
	if f.Changed("Algo") {
		cfg.Bandit.Algo, _ = f.GetString("Algo")
	}
	if f.Changed("logdir") {
		logdir, _ := f.GetString("logdir")
		cfg.Network.TopologyCacheDir = logdir
		expName, _ := f.GetString("exp_name")
		if expName != "" {
			cfg.Reporting.OutputDir = filepath.Join(logdir, expName)
		} else {
			cfg.Reporting.OutputDir = logdir
		}
	} else if f.Changed("exp_name") {
		expName, _ := f.GetString("exp_name")
		cfg.Reporting.OutputDir = filepath.Join(cfg.Network.TopologyCacheDir, expName)
	}

	if legacy, _ := f.GetBool("legacy-clamp"); legacy {
		cfg.Bandit.LegacyClamp = true
		cfg.Bandit.ClampFloor = bandit.LegacyClampFloor
	}

	return nil
}

func parseFloatList(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseIntList(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid int %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}
