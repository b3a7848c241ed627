package instrument

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SyntheticCavityConfig shapes the emulated resonance response.
type SyntheticCavityConfig struct {
	// CenterHz is the resonance center. Defaults to 1775 MHz, the middle
	// of the band the lab normally sweeps.
	CenterHz float64

	// SigmaHz is the resonance width. Defaults to 2 MHz.
	SigmaHz float64

	// Baseline is the off-resonance amplitude. Defaults to 1.0.
	Baseline float64

	// Depth is the dip depth at center. Defaults to 0.5.
	Depth float64

	// NoiseStd adds Gaussian noise of this standard deviation to every
	// reading. Zero keeps the response ideal.
	NoiseStd float64

	// Seed fixes the noise sequence. Zero seeds from the clock.
	Seed int64

	// SetErr, when set, is consulted on every SetFrequency call and its
	// non-nil result is returned instead of tuning.
	SetErr func(hz float64) error

	// ReadErr, when set, is consulted on every ReadSignal call with the
	// currently tuned frequency.
	ReadErr func(hz float64) error
}

// SyntheticCavity emulates the source and probe pair against an ideal cavity
// dip, baseline - depth*exp(-(f-center)^2/(2*sigma^2)). It lets the full
// sweep and detection path run without hardware, and records calls so tests
// can assert on the command stream.
type SyntheticCavity struct {
	cfg SyntheticCavityConfig
	rng *rand.Rand

	mu        sync.Mutex
	currentHz float64
	setCalls  []float64
	readCalls int
}

// NewSyntheticCavity builds the emulator, applying defaults for zero fields.
func NewSyntheticCavity(cfg SyntheticCavityConfig) *SyntheticCavity {
	if cfg.CenterHz == 0 {
		cfg.CenterHz = 1775e6
	}
	if cfg.SigmaHz == 0 {
		cfg.SigmaHz = 2e6
	}
	if cfg.Baseline == 0 {
		cfg.Baseline = 1.0
	}
	if cfg.Depth == 0 {
		cfg.Depth = 0.5
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SyntheticCavity{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// SetFrequency tunes the emulated source.
func (s *SyntheticCavity) SetFrequency(ctx context.Context, hz float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.SetErr != nil {
		if err := s.cfg.SetErr(hz); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentHz = hz
	s.setCalls = append(s.setCalls, hz)
	return nil
}

// ReadSignal returns the cavity response at the currently tuned frequency.
func (s *SyntheticCavity) ReadSignal(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readCalls++
	if s.cfg.ReadErr != nil {
		if err := s.cfg.ReadErr(s.currentHz); err != nil {
			return 0, err
		}
	}
	offset := s.currentHz - s.cfg.CenterHz
	amplitude := s.cfg.Baseline - s.cfg.Depth*math.Exp(-offset*offset/(2*s.cfg.SigmaHz*s.cfg.SigmaHz))
	if s.cfg.NoiseStd > 0 {
		amplitude += s.cfg.NoiseStd * s.rng.NormFloat64()
	}
	return amplitude, nil
}

// CurrentHz reports the last commanded frequency.
func (s *SyntheticCavity) CurrentHz() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentHz
}

// SetCalls returns a copy of every frequency commanded so far.
func (s *SyntheticCavity) SetCalls() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.setCalls))
	copy(out, s.setCalls)
	return out
}

// ReadCount reports how many readings have been taken.
func (s *SyntheticCavity) ReadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCalls
}
