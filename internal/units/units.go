// Package units provides shared frequency unit constants and formatting.
package units

import "fmt"

// Frequency unit constants, in Hz.
const (
	Hz  = 1.0
	KHz = 1e3
	MHz = 1e6
	GHz = 1e9
)

// HzToMHz converts a frequency in Hz to MHz. Synthesizer command protocols
// take frequencies in MHz.
func HzToMHz(hz float64) float64 {
	return hz / MHz
}

// MHzToHz converts a frequency in MHz to Hz.
func MHzToHz(mhz float64) float64 {
	return mhz * MHz
}

// FormatHz renders a frequency with the largest unit that keeps the value
// at or above 1, e.g. 2.005e9 -> "2.005 GHz". Values below 1 kHz render
// in plain Hz.
func FormatHz(hz float64) string {
	abs := hz
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= GHz:
		return trimZeros(fmt.Sprintf("%.6f", hz/GHz)) + " GHz"
	case abs >= MHz:
		return trimZeros(fmt.Sprintf("%.6f", hz/MHz)) + " MHz"
	case abs >= KHz:
		return trimZeros(fmt.Sprintf("%.6f", hz/KHz)) + " kHz"
	default:
		return trimZeros(fmt.Sprintf("%.3f", hz)) + " Hz"
	}
}

// trimZeros strips trailing zeros (and a trailing decimal point) from a
// fixed-precision float string.
func trimZeros(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == '0' {
		i--
	}
	if i > 0 && s[i-1] == '.' {
		i--
	}
	return s[:i]
}
