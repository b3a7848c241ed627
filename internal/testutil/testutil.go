// Package testutil provides numeric assertion helpers shared by the
// acquisition and detection tests, where expected values are physical
// quantities known only to a tolerance.
package testutil

import (
	"math"
	"testing"
)

// AssertInDelta fails the test if got is not within delta of want. NaN in
// either argument always fails.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.IsNaN(got) || math.IsNaN(want) || math.Abs(got-want) > delta {
		t.Errorf("got %v, want %v (±%v)", got, want, delta)
	}
}

// AssertInRelative fails the test if got differs from want by more than the
// given fraction of want. Used for fit-parameter tolerances.
func AssertInRelative(t *testing.T, got, want, fraction float64) {
	t.Helper()
	if want == 0 {
		AssertInDelta(t, got, want, fraction)
		return
	}
	if math.IsNaN(got) || math.Abs(got-want) > math.Abs(want)*fraction {
		t.Errorf("got %v, want %v (±%.1f%%)", got, want, fraction*100)
	}
}
