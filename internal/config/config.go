// Package config loads and validates the acquisition and analysis
// configuration files. Every field is a pointer so a partial JSON file
// overrides only what it names; the Get* accessors supply defaults for
// everything else. SMTP credentials live in a separate secrets file,
// never in these structures.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/resonance.report/internal/detect"
	"github.com/banshee-data/resonance.report/internal/serialmux"
	"github.com/banshee-data/resonance.report/internal/sweep"
)

// SweepConfig parameterizes one acquisition: the band to scan, the
// stepping cadence, the instrument endpoints, and run bookkeeping. The
// schema matches the /api/sweep/config endpoint so the same JSON serves
// startup configuration and runtime inspection.
type SweepConfig struct {
	// Band params
	StartHz      *float64 `json:"start_hz,omitempty"`
	StopHz       *float64 `json:"stop_hz,omitempty"`
	StepHz       *float64 `json:"step_hz,omitempty"`
	ResolutionHz *float64 `json:"resolution_hz,omitempty"`

	// Stepping params
	SettleDelay     *string `json:"settle_delay,omitempty"` // duration string like "100ms"
	EstimationSteps *int    `json:"estimation_steps,omitempty"`
	Averages        *int    `json:"averages,omitempty"`

	// Synthesizer params
	SynthDevice *string                `json:"synth_device,omitempty"`
	SynthPort   *serialmux.PortOptions `json:"synth_port,omitempty"`
	PowerDB     *float64               `json:"power_db,omitempty"`

	// Probe params
	ProbeAddr    *string `json:"probe_addr,omitempty"`
	ProbeChannel *int    `json:"probe_channel,omitempty"`

	// Run bookkeeping
	RunName   *string `json:"run_name,omitempty"`
	DBPath    *string `json:"db_path,omitempty"`
	OutputDir *string `json:"output_dir,omitempty"`

	// Notification params
	NotifyOnComplete *bool   `json:"notify_on_complete,omitempty"`
	SMTPSecretsPath  *string `json:"smtp_secrets_path,omitempty"`
}

// AnalysisConfig parameterizes detection over a finalized trace. Zero
// values defer to the detect package's own defaults.
type AnalysisConfig struct {
	SmoothingWindow  *int     `json:"smoothing_window,omitempty"`
	SmoothingOrder   *int     `json:"smoothing_order,omitempty"`
	PeakNeighborhood *int     `json:"peak_neighborhood,omitempty"`
	MinProminence    *float64 `json:"min_prominence,omitempty"`
	MinUsableSamples *int     `json:"min_usable_samples,omitempty"`
	FitMaxIterations *int     `json:"fit_max_iterations,omitempty"`
	FitTolerance     *float64 `json:"fit_tolerance,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySweepConfig returns a SweepConfig with all fields nil; every
// accessor falls through to its default.
func EmptySweepConfig() *SweepConfig {
	return &SweepConfig{}
}

// EmptyAnalysisConfig returns an AnalysisConfig with all fields nil.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadSweepConfig loads a SweepConfig from a JSON file. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadSweepConfig(path string) (*SweepConfig, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	cfg := EmptySweepConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// readConfigFile validates the path and size of a config file before
// reading it.
func readConfigFile(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}

// Validate checks that the effective sweep configuration is runnable.
func (c *SweepConfig) Validate() error {
	if err := c.GetBand().Validate(); err != nil {
		return err
	}
	if err := c.GetResolution().Validate(); err != nil {
		return err
	}

	if c.SettleDelay != nil && *c.SettleDelay != "" {
		d, err := time.ParseDuration(*c.SettleDelay)
		if err != nil {
			return fmt.Errorf("invalid settle_delay '%s': %w", *c.SettleDelay, err)
		}
		if d < 0 {
			return fmt.Errorf("settle_delay must not be negative, got %s", d)
		}
	}
	if c.EstimationSteps != nil && *c.EstimationSteps < 1 {
		return fmt.Errorf("estimation_steps must be at least 1, got %d", *c.EstimationSteps)
	}
	if c.Averages != nil && *c.Averages < 1 {
		return fmt.Errorf("averages must be at least 1, got %d", *c.Averages)
	}
	if c.ProbeChannel != nil && (*c.ProbeChannel < 1 || *c.ProbeChannel > 2) {
		return fmt.Errorf("probe_channel must be 1 or 2, got %d", *c.ProbeChannel)
	}
	if c.SynthPort != nil {
		if _, err := c.SynthPort.Normalize(); err != nil {
			return fmt.Errorf("invalid synth_port: %w", err)
		}
	}
	return nil
}

// Validate checks the analysis parameters that detection itself would
// only clamp or normalize silently.
func (c *AnalysisConfig) Validate() error {
	if c.SmoothingWindow != nil && *c.SmoothingWindow < 3 {
		return fmt.Errorf("smoothing_window must be at least 3, got %d", *c.SmoothingWindow)
	}
	if c.SmoothingOrder != nil && *c.SmoothingOrder < 1 {
		return fmt.Errorf("smoothing_order must be at least 1, got %d", *c.SmoothingOrder)
	}
	if c.SmoothingWindow != nil && c.SmoothingOrder != nil && *c.SmoothingOrder >= *c.SmoothingWindow {
		return fmt.Errorf("smoothing_order (%d) must be below smoothing_window (%d)", *c.SmoothingOrder, *c.SmoothingWindow)
	}
	if c.PeakNeighborhood != nil && *c.PeakNeighborhood < 0 {
		return fmt.Errorf("peak_neighborhood must not be negative, got %d", *c.PeakNeighborhood)
	}
	if c.MinProminence != nil && *c.MinProminence < 0 {
		return fmt.Errorf("min_prominence must not be negative, got %f", *c.MinProminence)
	}
	if c.MinUsableSamples != nil && *c.MinUsableSamples < 1 {
		return fmt.Errorf("min_usable_samples must be at least 1, got %d", *c.MinUsableSamples)
	}
	if c.FitMaxIterations != nil && *c.FitMaxIterations < 1 {
		return fmt.Errorf("fit_max_iterations must be at least 1, got %d", *c.FitMaxIterations)
	}
	if c.FitTolerance != nil && *c.FitTolerance <= 0 {
		return fmt.Errorf("fit_tolerance must be positive, got %g", *c.FitTolerance)
	}
	return nil
}

// GetBand returns the configured sweep band or the default 1700-1850 MHz
// span at 0.1 MHz steps.
func (c *SweepConfig) GetBand() sweep.Band {
	band := sweep.Band{
		StartHz: 1700e6,
		StopHz:  1850e6,
		StepHz:  100e3,
	}
	if c.StartHz != nil {
		band.StartHz = *c.StartHz
	}
	if c.StopHz != nil {
		band.StopHz = *c.StopHz
	}
	if c.StepHz != nil {
		band.StepHz = *c.StepHz
	}
	return band
}

// GetResolution returns the tuning grid resolution.
func (c *SweepConfig) GetResolution() sweep.Resolution {
	if c.ResolutionHz == nil {
		return sweep.DefaultResolution
	}
	return sweep.Resolution(*c.ResolutionHz)
}

// GetSettleDelay parses and returns the SettleDelay as a time.Duration.
func (c *SweepConfig) GetSettleDelay() time.Duration {
	if c.SettleDelay == nil || *c.SettleDelay == "" {
		return 100 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.SettleDelay)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetEstimationSteps returns the estimation_steps value or the default.
func (c *SweepConfig) GetEstimationSteps() int {
	if c.EstimationSteps == nil {
		return 10 // default
	}
	return *c.EstimationSteps
}

// GetAverages returns the averages value or the default.
func (c *SweepConfig) GetAverages() int {
	if c.Averages == nil {
		return 5 // default
	}
	return *c.Averages
}

// GetSynthDevice returns the synthesizer serial device or the default.
func (c *SweepConfig) GetSynthDevice() string {
	if c.SynthDevice == nil {
		return "/dev/ttyACM0" // default
	}
	return *c.SynthDevice
}

// GetSynthPort returns the normalized serial port options for the
// synthesizer link.
func (c *SweepConfig) GetSynthPort() serialmux.PortOptions {
	opts := serialmux.PortOptions{}
	if c.SynthPort != nil {
		opts = *c.SynthPort
	}
	normalized, err := opts.Normalize()
	if err != nil {
		// Validate rejects unusable options; fall back to the defaults.
		normalized, _ = serialmux.PortOptions{}.Normalize()
	}
	return normalized
}

// GetPowerDB returns the synthesizer output power or the default.
func (c *SweepConfig) GetPowerDB() float64 {
	if c.PowerDB == nil {
		return 10.0 // default
	}
	return *c.PowerDB
}

// GetProbeAddr returns the probe's SCPI address or the default.
func (c *SweepConfig) GetProbeAddr() string {
	if c.ProbeAddr == nil {
		return "rp-f0acab.local" // default
	}
	return *c.ProbeAddr
}

// GetProbeChannel returns the probe acquisition channel or the default.
func (c *SweepConfig) GetProbeChannel() int {
	if c.ProbeChannel == nil {
		return 2 // default
	}
	return *c.ProbeChannel
}

// GetRunName returns the configured run name, or "" for caller-generated
// names.
func (c *SweepConfig) GetRunName() string {
	if c.RunName == nil {
		return ""
	}
	return *c.RunName
}

// GetDBPath returns the trace database path or the default.
func (c *SweepConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "resonance.db" // default
	}
	return *c.DBPath
}

// GetOutputDir returns the report output directory or the default.
func (c *SweepConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return "output" // default
	}
	return *c.OutputDir
}

// GetNotifyOnComplete returns the notification toggle or the default.
func (c *SweepConfig) GetNotifyOnComplete() bool {
	if c.NotifyOnComplete == nil {
		return false // default: notifications disabled
	}
	return *c.NotifyOnComplete
}

// GetSMTPSecretsPath returns the configured secrets file path, or "" to
// defer to the environment.
func (c *SweepConfig) GetSMTPSecretsPath() string {
	if c.SMTPSecretsPath == nil {
		return ""
	}
	return *c.SMTPSecretsPath
}

// DetectorConfig assembles the detect configuration, leaving unset
// fields zero so the detect package applies its own defaults.
func (c *AnalysisConfig) DetectorConfig() detect.Config {
	cfg := detect.Config{}
	if c.SmoothingWindow != nil {
		cfg.SmoothingWindow = *c.SmoothingWindow
	}
	if c.SmoothingOrder != nil {
		cfg.SmoothingOrder = *c.SmoothingOrder
	}
	if c.PeakNeighborhood != nil {
		cfg.PeakNeighborhood = *c.PeakNeighborhood
	}
	if c.MinProminence != nil {
		cfg.MinProminence = *c.MinProminence
	}
	if c.MinUsableSamples != nil {
		cfg.MinUsableSamples = *c.MinUsableSamples
	}
	if c.FitMaxIterations != nil {
		cfg.Fit.MaxIterations = *c.FitMaxIterations
	}
	if c.FitTolerance != nil {
		cfg.Fit.ConvergeTolerance = *c.FitTolerance
	}
	return cfg
}
