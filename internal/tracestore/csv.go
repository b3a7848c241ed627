package tracestore

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/resonance.report/internal/sweep"
)

// traceHeader is the column layout shared by the CSV writer and reader.
// Changing it breaks every trace file already on disk.
var traceHeader = []string{"frequency_hz", "amplitude", "status"}

// WriteTraceCSV writes a trace as CSV with a header row. Floats use the
// shortest representation that parses back to the identical value, so a
// write/read cycle reproduces the trace exactly.
func WriteTraceCSV(w io.Writer, trace sweep.Trace) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(traceHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, s := range trace {
		record := []string{
			strconv.FormatFloat(s.FrequencyHz, 'f', -1, 64),
			strconv.FormatFloat(s.Amplitude, 'g', -1, 64),
			string(s.Status),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write sample %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTraceCSV parses a trace written by WriteTraceCSV. The header is
// checked, statuses are validated, and any malformed row fails the whole
// read with its row number.
func ReadTraceCSV(r io.Reader) (sweep.Trace, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(traceHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("trace file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, want := range traceHeader {
		if strings.TrimSpace(header[i]) != want {
			return nil, fmt.Errorf("unexpected header %q, want %q",
				strings.Join(header, ","), strings.Join(traceHeader, ","))
		}
	}

	var trace sweep.Trace
	for row := 1; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}

		freq, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid frequency %q", row, record[0])
		}
		amp, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid amplitude %q", row, record[1])
		}
		status := sweep.SampleStatus(strings.TrimSpace(record[2]))
		if status != sweep.SampleOK && status != sweep.SampleError {
			return nil, fmt.Errorf("row %d: unknown status %q", row, record[2])
		}

		trace = append(trace, sweep.SweepSample{
			FrequencyHz: freq,
			Amplitude:   amp,
			Status:      status,
		})
	}
	return trace, nil
}
