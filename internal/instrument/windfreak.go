package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/resonance.report/internal/monitoring"
	"github.com/banshee-data/resonance.report/internal/serialmux"
	"github.com/banshee-data/resonance.report/internal/units"
)

const (
	defaultPowerDB      = 10.0
	defaultQueryTimeout = 2 * time.Second
)

// WindfreakConfig carries the tunable parts of the synthesizer driver.
// Zero values select the defaults noted on each field.
type WindfreakConfig struct {
	// PowerDB is the output power commanded by Enable. Defaults to 10 dB.
	PowerDB float64

	// QueryTimeout bounds identification and readback queries. Defaults
	// to 2s.
	QueryTimeout time.Duration

	// Logf receives device interaction logs. Defaults to the package
	// logger with an "[instrument]" prefix.
	Logf func(format string, v ...interface{})
}

// WindfreakSource drives a Windfreak SynthHD-style synthesizer over a serial
// command mux. The protocol is line-oriented ASCII: f<MHz> tunes the output
// (seven decimals, matching the 0.1 Hz hardware grid), W<dB> sets power, and
// E1r1/E0r0 toggles the RF output. Set commands produce no reply; queries
// like v0 answer with a single line.
type WindfreakSource struct {
	mux serialmux.SerialMuxInterface
	cfg WindfreakConfig
}

// NewWindfreakSource wraps an open serial mux. The mux's Monitor loop must be
// running for Identify to see replies; plain set commands work without it.
func NewWindfreakSource(mux serialmux.SerialMuxInterface, cfg WindfreakConfig) *WindfreakSource {
	if cfg.PowerDB == 0 {
		cfg.PowerDB = defaultPowerDB
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.Logf == nil {
		cfg.Logf = monitoring.Prefixed("instrument")
	}
	return &WindfreakSource{mux: mux, cfg: cfg}
}

// Identify queries the synthesizer firmware version, confirming the device
// on the other end of the link speaks the protocol.
func (w *WindfreakSource) Identify(ctx context.Context) (string, error) {
	version, err := w.mux.Query(ctx, "v0", w.cfg.QueryTimeout)
	if err != nil {
		return "", fmt.Errorf("identify synthesizer: %w", err)
	}
	return version, nil
}

// Enable switches the RF output on at the configured power.
func (w *WindfreakSource) Enable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.mux.SendCommand("E1r1"); err != nil {
		return fmt.Errorf("enable output: %w", err)
	}
	if err := w.SetPower(ctx, w.cfg.PowerDB); err != nil {
		return err
	}
	w.cfg.Logf("output enabled at %.1f dB", w.cfg.PowerDB)
	return nil
}

// Disable switches the RF output off. The synthesizer keeps its frequency
// and power settings for the next enable.
func (w *WindfreakSource) Disable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.mux.SendCommand("E0r0"); err != nil {
		return fmt.Errorf("disable output: %w", err)
	}
	w.cfg.Logf("output disabled")
	return nil
}

// SetPower commands the output power in dB.
func (w *WindfreakSource) SetPower(ctx context.Context, powerDB float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.mux.SendCommand(fmt.Sprintf("W%.3f", powerDB)); err != nil {
		return fmt.Errorf("set power %.3f dB: %w", powerDB, err)
	}
	return nil
}

// SetFrequency tunes the output. The command value is in MHz with seven
// decimal places; the last digit is the 0.1 Hz grid the firmware accepts,
// so a quantized input round-trips exactly.
func (w *WindfreakSource) SetFrequency(ctx context.Context, hz float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	command := fmt.Sprintf("f%.7f", units.HzToMHz(hz))
	if err := w.mux.SendCommand(command); err != nil {
		return fmt.Errorf("set frequency %s: %w", units.FormatHz(hz), err)
	}
	return nil
}

// Close disables the RF output and releases the serial link.
func (w *WindfreakSource) Close() error {
	if err := w.Disable(context.Background()); err != nil {
		w.cfg.Logf("WARNING: disable on close: %v", err)
	}
	return w.mux.Close()
}
