package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/resonance.report/internal/monitoring"
	"github.com/banshee-data/resonance.report/internal/timeutil"
	"github.com/banshee-data/resonance.report/internal/units"
)

// Status represents the lifecycle state of a sweep run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStepping  Status = "stepping"
	StatusFinalized Status = "finalized"
	StatusAborted   Status = "aborted"
)

// Phase is the per-step sub-state while the controller is stepping. Every
// step passes commanding -> settling -> reading before the sample is
// recorded and the index advances.
type Phase string

const (
	PhaseCommanding Phase = "commanding"
	PhaseSettling   Phase = "settling"
	PhaseReading    Phase = "reading"
)

var (
	// ErrSweepAborted is returned by Run when the context is cancelled
	// between steps. The partial trace accumulated so far is still
	// returned alongside it.
	ErrSweepAborted = errors.New("sweep aborted")

	// ErrAlreadyRun is returned when Run is called on a controller that
	// has already stepped. Controllers are single-use; construct a fresh
	// one per sweep.
	ErrAlreadyRun = errors.New("sweep controller already run")
)

// InstrumentPort is the capability pair the controller drives. Transport
// (serial, SCPI over TCP, synthetic) is the implementation's concern.
type InstrumentPort interface {
	// SetFrequency commands the signal source to the given frequency.
	// The value is already quantized to the instrument grid.
	SetFrequency(ctx context.Context, hz float64) error
	// ReadSignal returns one amplitude reading from the probe.
	ReadSignal(ctx context.Context) (float64, error)
}

// Config carries everything a single sweep run needs.
type Config struct {
	Band       Band
	Resolution Resolution

	// SettleDelay is the unconditional pause between commanding a
	// frequency and reading the signal. Issuing commands back-to-back
	// intermittently trips communication errors on the target hardware,
	// so this is a scheduling countermeasure rather than a physical
	// settling requirement.
	SettleDelay time.Duration

	// EstimationSteps is the number of initial steps timed to project the
	// total sweep duration. Clamped to the step count for short sweeps.
	EstimationSteps int

	// Averages is how many probe readings are taken and averaged per
	// step. Zero or negative means a single reading.
	Averages int

	Clock timeutil.Clock
	Logf  func(format string, v ...interface{})
}

// Progress is the per-step notification published to observers. Delivery
// is best-effort: a slow observer loses notifications rather than
// stalling the sweep loop.
type Progress struct {
	StepIndex   int           `json:"step_index"`
	TotalSteps  int           `json:"total_steps"`
	FrequencyHz float64       `json:"frequency_hz"`
	Status      SampleStatus  `json:"status"`
	Estimate    *TimeEstimate `json:"estimate,omitempty"`
}

// Snapshot is a point-in-time copy of controller state for the monitoring
// surface.
type Snapshot struct {
	Status      Status        `json:"status"`
	Phase       Phase         `json:"phase,omitempty"`
	Band        Band          `json:"band"`
	StepIndex   int           `json:"step_index"`
	TotalSteps  int           `json:"total_steps"`
	Errors      int           `json:"errors"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Estimate    *TimeEstimate `json:"estimate,omitempty"`
	Trace       Trace         `json:"trace,omitempty"`
}

// Controller visits every frequency in a band in ascending order,
// commanding the instrument and recording the response. A single bad step
// never aborts the run. Controllers are single-use.
type Controller struct {
	cfg   Config
	total int

	mu          sync.Mutex
	status      Status
	phase       Phase
	stepIndex   int
	trace       Trace
	estimate    *TimeEstimate
	startedAt   *time.Time
	completedAt *time.Time
	subscribers []chan Progress
}

// NewController validates the configuration and prepares a run. Band and
// resolution problems fail here, before any instrument interaction.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Band.Validate(); err != nil {
		return nil, fmt.Errorf("sweep config: %w", err)
	}
	if err := cfg.Resolution.Validate(); err != nil {
		return nil, fmt.Errorf("sweep config: %w", err)
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("sweep config: settle delay must not be negative, got %s", cfg.SettleDelay)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Logf == nil {
		cfg.Logf = monitoring.Prefixed("sweep")
	}
	if cfg.Averages < 1 {
		cfg.Averages = 1
	}
	total := cfg.Band.StepCount()
	if cfg.EstimationSteps < 1 || cfg.EstimationSteps > total {
		cfg.EstimationSteps = total
	}
	return &Controller{
		cfg:    cfg,
		total:  total,
		status: StatusIdle,
		trace:  make(Trace, 0, total),
	}, nil
}

// Subscribe registers a progress observer. The returned cancel function
// removes the subscription; the channel is not closed. Notifications that
// would block are dropped.
func (c *Controller) Subscribe(buffer int) (<-chan Progress, func()) {
	ch := make(chan Progress, buffer)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subscribers {
			if sub == ch {
				c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
				return
			}
		}
	}
	return ch, cancel
}

func (c *Controller) publish(p Progress) {
	c.mu.Lock()
	subs := make([]chan Progress, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// Snapshot returns a copy of the current state, safe to serialize while
// the sweep is running.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Status:      c.status,
		Phase:       c.phase,
		Band:        c.cfg.Band,
		StepIndex:   c.stepIndex,
		TotalSteps:  c.total,
		Errors:      c.trace.ErrorCount(),
		StartedAt:   c.startedAt,
		CompletedAt: c.completedAt,
		Estimate:    c.estimate,
		Trace:       c.trace.Clone(),
	}
}

// Estimate returns the one-shot time projection, or nil before the
// estimation window has completed.
func (c *Controller) Estimate() *TimeEstimate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimate
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Controller) record(sample SweepSample) {
	c.mu.Lock()
	c.trace = append(c.trace, sample)
	c.stepIndex = len(c.trace)
	c.mu.Unlock()
}

// Run executes the sweep: for each target frequency in ascending order it
// quantizes, commands the source, waits the settle delay, reads the
// signal, and records a sample. Command or read failures are logged and
// recorded as error samples; the loop continues. Cancellation is honored
// between steps and returns the partial trace with ErrSweepAborted.
func (c *Controller) Run(ctx context.Context, port InstrumentPort) (Trace, error) {
	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	c.status = StatusStepping
	start := c.cfg.Clock.Now()
	c.startedAt = &start
	c.mu.Unlock()

	c.cfg.Logf("starting sweep: %s (%d steps, settle %s, %d readings/step)",
		c.cfg.Band, c.total, c.cfg.SettleDelay, c.cfg.Averages)

	for i := 0; i < c.total; i++ {
		if err := ctx.Err(); err != nil {
			return c.abort(i, err)
		}

		freq := c.cfg.Resolution.Quantize(c.cfg.Band.FrequencyAt(i))
		sample := c.step(ctx, port, i, freq)
		c.record(sample)
		c.maybeEstimate(i + 1)

		c.mu.Lock()
		est := c.estimate
		c.mu.Unlock()
		c.publish(Progress{
			StepIndex:   i,
			TotalSteps:  c.total,
			FrequencyHz: freq,
			Status:      sample.Status,
			Estimate:    est,
		})
	}

	c.mu.Lock()
	c.status = StatusFinalized
	c.phase = ""
	done := c.cfg.Clock.Now()
	c.completedAt = &done
	final := c.trace.Clone()
	errCount := final.ErrorCount()
	c.mu.Unlock()

	c.cfg.Logf("sweep finalized: %d samples (%d errors) in %s",
		len(final), errCount, done.Sub(*c.startedAt).Round(time.Millisecond))
	for _, f := range final.SkippedFrequencies() {
		c.cfg.Logf("skipped frequency: %s", units.FormatHz(f))
	}
	return final, nil
}

// step performs one commanding -> settling -> reading cycle and always
// resolves to a sample, successful or not.
func (c *Controller) step(ctx context.Context, port InstrumentPort, i int, freq float64) SweepSample {
	c.setPhase(PhaseCommanding)
	if err := port.SetFrequency(ctx, freq); err != nil {
		c.cfg.Logf("WARNING: step %d/%d at %s: set frequency: %v", i+1, c.total, units.FormatHz(freq), err)
		return SweepSample{FrequencyHz: freq, Status: SampleError}
	}

	c.setPhase(PhaseSettling)
	c.cfg.Clock.Sleep(c.cfg.SettleDelay)

	c.setPhase(PhaseReading)
	sum := 0.0
	for n := 0; n < c.cfg.Averages; n++ {
		v, err := port.ReadSignal(ctx)
		if err != nil {
			c.cfg.Logf("WARNING: step %d/%d at %s: read signal: %v", i+1, c.total, units.FormatHz(freq), err)
			return SweepSample{FrequencyHz: freq, Status: SampleError}
		}
		sum += v
	}
	return SweepSample{
		FrequencyHz: freq,
		Amplitude:   sum / float64(c.cfg.Averages),
		Status:      SampleOK,
	}
}

// maybeEstimate computes the time projection exactly once, after the
// estimation window completes. It is never recomputed, even if later
// steps run faster or slower.
func (c *Controller) maybeEstimate(completed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.estimate != nil || completed != c.cfg.EstimationSteps {
		return
	}
	elapsed := c.cfg.Clock.Since(*c.startedAt)
	est := NewTimeEstimate(elapsed, c.cfg.EstimationSteps, c.total)
	c.estimate = &est
	c.cfg.Logf("%s", est)
}

func (c *Controller) abort(atStep int, cause error) (Trace, error) {
	c.mu.Lock()
	c.status = StatusAborted
	c.phase = ""
	done := c.cfg.Clock.Now()
	c.completedAt = &done
	partial := c.trace.Clone()
	c.mu.Unlock()

	c.cfg.Logf("sweep aborted at step %d/%d: %v", atStep+1, c.total, cause)
	return partial, fmt.Errorf("at step %d/%d: %w", atStep+1, c.total, ErrSweepAborted)
}
