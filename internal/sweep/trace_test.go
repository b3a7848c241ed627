package sweep

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sampleTrace() Trace {
	return Trace{
		{FrequencyHz: 2.000e9, Amplitude: 0.91, Status: SampleOK},
		{FrequencyHz: 2.001e9, Status: SampleError},
		{FrequencyHz: 2.002e9, Amplitude: 0.40, Status: SampleOK},
		{FrequencyHz: 2.003e9, Status: SampleError},
		{FrequencyHz: 2.004e9, Amplitude: 0.88, Status: SampleOK},
	}
}

func TestTraceUsable(t *testing.T) {
	freqs, amps := sampleTrace().Usable()

	wantFreqs := []float64{2.000e9, 2.002e9, 2.004e9}
	wantAmps := []float64{0.91, 0.40, 0.88}
	if diff := cmp.Diff(wantFreqs, freqs); diff != "" {
		t.Errorf("Usable frequencies mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantAmps, amps); diff != "" {
		t.Errorf("Usable amplitudes mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceUsable_Empty(t *testing.T) {
	freqs, amps := Trace{}.Usable()
	if len(freqs) != 0 || len(amps) != 0 {
		t.Errorf("Expected empty slices, got %d frequencies and %d amplitudes", len(freqs), len(amps))
	}
}

func TestTraceErrorCount(t *testing.T) {
	if got := sampleTrace().ErrorCount(); got != 2 {
		t.Errorf("ErrorCount() = %d, want 2", got)
	}
	if got := (Trace{}).ErrorCount(); got != 0 {
		t.Errorf("ErrorCount() on empty trace = %d, want 0", got)
	}
}

func TestTraceSkippedFrequencies(t *testing.T) {
	want := []float64{2.001e9, 2.003e9}
	if diff := cmp.Diff(want, sampleTrace().SkippedFrequencies()); diff != "" {
		t.Errorf("SkippedFrequencies mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceClone_Independent(t *testing.T) {
	orig := sampleTrace()
	clone := orig.Clone()

	clone[0].Amplitude = 99
	if orig[0].Amplitude == 99 {
		t.Error("Mutating clone changed the original trace")
	}
	if Trace(nil).Clone() != nil {
		t.Error("Clone of nil trace should be nil")
	}
}

func TestTraceFrequencies_IncludesErrors(t *testing.T) {
	got := sampleTrace().Frequencies()
	if len(got) != 5 {
		t.Fatalf("Expected 5 frequencies, got %d", len(got))
	}
	if got[1] != 2.001e9 {
		t.Errorf("Error-entry frequency = %g, want %g", got[1], 2.001e9)
	}
}
