package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/resonance.report/internal/sweep"
	"github.com/banshee-data/resonance.report/internal/tracestore"
)

// sampleTrace builds a uniform 100 kHz trace upward from 1700 MHz, with
// the third step recorded as an instrument error.
func sampleTrace(n int) sweep.Trace {
	trace := make(sweep.Trace, 0, n)
	for i := 0; i < n; i++ {
		s := sweep.SweepSample{
			FrequencyHz: 1700e6 + float64(i)*100e3,
			Amplitude:   1.0 - 0.01*float64(i),
			Status:      sweep.SampleOK,
		}
		if i == 2 {
			s.Amplitude = 0
			s.Status = sweep.SampleError
		}
		trace = append(trace, s)
	}
	return trace
}

func newTestStore(t *testing.T) *tracestore.DB {
	t.Helper()
	db, err := tracestore.NewDB(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedRun(t *testing.T, db *tracestore.DB, name string, started time.Time, trace sweep.Trace) string {
	t.Helper()
	run := &tracestore.SweepRun{
		Name:      name,
		Band:      sweep.Band{StartHz: 1700e6, StopHz: 1850e6, StepHz: 100e3},
		StartedAt: started,
	}
	require.NoError(t, db.CreateRun(run))
	if len(trace) > 0 {
		require.NoError(t, db.InsertSamples(context.Background(), run.ID, trace))
	}
	require.NoError(t, db.FinalizeRun(run.ID, tracestore.RunCompleted, ""))
	return run.ID
}

func TestBandFromTrace(t *testing.T) {
	t.Parallel()

	t.Run("reconstructs the grid from the frequencies", func(t *testing.T) {
		t.Parallel()
		band := bandFromTrace(sampleTrace(5))
		assert.Equal(t, 1700e6, band.StartHz)
		assert.Equal(t, 1700.4e6, band.StopHz)
		assert.InDelta(t, 100e3, band.StepHz, 1e-6)
	})

	t.Run("returns a zero band for degenerate traces", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, sweep.Band{}, bandFromTrace(nil))
		assert.Equal(t, sweep.Band{}, bandFromTrace(sampleTrace(1)))
	})
}

func TestLoadFromCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cavity-check.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, tracestore.WriteTraceCSV(f, sampleTrace(5)))
	require.NoError(t, f.Close())

	run, trace, err := loadFromCSV(path)
	require.NoError(t, err)

	assert.Equal(t, "cavity-check.csv", run.ID)
	assert.Equal(t, "cavity-check", run.Name)
	assert.Equal(t, tracestore.RunCompleted, run.Status)
	assert.Equal(t, 1700e6, run.Band.StartHz)
	assert.Equal(t, 1700.4e6, run.Band.StopHz)
	assert.False(t, run.StartedAt.IsZero(), "expected the file mtime as start time")

	require.Len(t, trace, 5)
	assert.Equal(t, 1, trace.ErrorCount())
}

func TestLoadFromCSVMissingFile(t *testing.T) {
	t.Parallel()

	_, _, err := loadFromCSV(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestLoadFromStore(t *testing.T) {
	t.Parallel()

	db := newTestStore(t)
	oldID := seedRun(t, db, "first", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC), sampleTrace(5))
	newID := seedRun(t, db, "second", time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC), sampleTrace(7))

	t.Run("loads the requested run", func(t *testing.T) {
		run, trace, err := loadFromStore(db, oldID)
		require.NoError(t, err)
		assert.Equal(t, oldID, run.ID)
		assert.Equal(t, "first", run.Name)
		assert.Len(t, trace, 5)
	})

	t.Run("defaults to the most recent run", func(t *testing.T) {
		run, trace, err := loadFromStore(db, "")
		require.NoError(t, err)
		assert.Equal(t, newID, run.ID)
		assert.Len(t, trace, 7)
	})

	t.Run("rejects unknown run ids", func(t *testing.T) {
		_, _, err := loadFromStore(db, "no-such-run")
		assert.ErrorIs(t, err, tracestore.ErrRunNotFound)
	})
}

func TestLoadFromStoreEmpty(t *testing.T) {
	t.Parallel()

	db := newTestStore(t)
	_, _, err := loadFromStore(db, "")
	assert.ErrorContains(t, err, "no runs")
}

func TestLoadFromStoreRunWithoutSamples(t *testing.T) {
	t.Parallel()

	db := newTestStore(t)
	id := seedRun(t, db, "empty", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC), nil)

	_, _, err := loadFromStore(db, id)
	assert.ErrorContains(t, err, "no recorded samples")
}

func TestExportTraceCSV(t *testing.T) {
	t.Parallel()

	t.Run("round-trips through the export file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "export.csv")
		require.NoError(t, exportTraceCSV(path, sampleTrace(5)))

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		got, err := tracestore.ReadTraceCSV(f)
		require.NoError(t, err)
		assert.Equal(t, sampleTrace(5), got)
	})

	t.Run("rejects paths outside the allowed directories", func(t *testing.T) {
		t.Parallel()
		err := exportTraceCSV(filepath.Join(string(os.PathSeparator), "etc", "export.csv"), sampleTrace(5))
		assert.Error(t, err)
	})
}
