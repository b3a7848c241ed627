package sweep

// SampleStatus records whether a sweep step produced a valid reading.
type SampleStatus string

const (
	// SampleOK marks a step whose frequency was commanded and whose signal
	// was read successfully.
	SampleOK SampleStatus = "ok"
	// SampleError marks a step where commanding or reading failed; the
	// Amplitude field carries no valid value.
	SampleError SampleStatus = "error"
)

// SweepSample is one recorded step of a sweep. Samples are immutable once
// appended to a Trace.
type SweepSample struct {
	FrequencyHz float64      `json:"frequency_hz"`
	Amplitude   float64      `json:"amplitude"`
	Status      SampleStatus `json:"status"`
}

// Trace is the ordered, frequency-ascending sample sequence produced by a
// sweep, one entry per attempted step including error entries. A finalized
// Trace is never mutated; consumers receive copies.
type Trace []SweepSample

// Clone returns an independent copy of the trace.
func (t Trace) Clone() Trace {
	if t == nil {
		return nil
	}
	out := make(Trace, len(t))
	copy(out, t)
	return out
}

// Frequencies returns the frequency of every entry, error entries included.
func (t Trace) Frequencies() []float64 {
	out := make([]float64, len(t))
	for i, s := range t {
		out[i] = s.FrequencyHz
	}
	return out
}

// Usable returns parallel frequency and amplitude slices with error
// entries discarded. This is the detector's input contract.
func (t Trace) Usable() (freqs, amps []float64) {
	freqs = make([]float64, 0, len(t))
	amps = make([]float64, 0, len(t))
	for _, s := range t {
		if s.Status != SampleOK {
			continue
		}
		freqs = append(freqs, s.FrequencyHz)
		amps = append(amps, s.Amplitude)
	}
	return freqs, amps
}

// ErrorCount returns the number of error-status entries.
func (t Trace) ErrorCount() int {
	n := 0
	for _, s := range t {
		if s.Status == SampleError {
			n++
		}
	}
	return n
}

// SkippedFrequencies returns the frequencies of every error entry, for
// the end-of-run summary.
func (t Trace) SkippedFrequencies() []float64 {
	var out []float64
	for _, s := range t {
		if s.Status == SampleError {
			out = append(out, s.FrequencyHz)
		}
	}
	return out
}
