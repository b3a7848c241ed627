// Package instrument implements the ports the sweep controller drives: a
// Windfreak SynthHD-style synthesizer over a serial command mux, a Red
// Pitaya probe over SCPI/TCP, and a synthetic cavity for development
// without hardware.
package instrument

import (
	"context"

	"github.com/banshee-data/resonance.report/internal/sweep"
)

// SignalSource commands the microwave source.
type SignalSource interface {
	// SetFrequency tunes the source to the given frequency in Hz.
	SetFrequency(ctx context.Context, hz float64) error
}

// ProbeReader reads the cavity probe signal.
type ProbeReader interface {
	// ReadSignal returns a single amplitude reading.
	ReadSignal(ctx context.Context) (float64, error)
}

type combinedPort struct {
	SignalSource
	ProbeReader
}

// Combine pairs a source and a probe into the port the sweep controller
// drives.
func Combine(source SignalSource, probe ProbeReader) sweep.InstrumentPort {
	return combinedPort{SignalSource: source, ProbeReader: probe}
}
