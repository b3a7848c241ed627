package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if since := clock.Since(past); since < time.Second {
		t.Errorf("Since() = %v, expected >= 1s", since)
	}
}

func TestMockClock_NowAndAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, expected %v", got, start)
	}

	clock.Advance(90 * time.Second)
	if got := clock.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() after Advance = %v, expected %v", got, start.Add(90*time.Second))
	}

	if since := clock.Since(start); since != 90*time.Second {
		t.Errorf("Since(start) = %v, expected 90s", since)
	}
}

func TestMockClock_Set(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	target := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	clock.Set(target)
	if got := clock.Now(); !got.Equal(target) {
		t.Errorf("Now() after Set = %v, expected %v", got, target)
	}
}

func TestMockClock_SleepRecording(t *testing.T) {
	clock := NewMockClock(time.Unix(1000, 0))

	clock.Sleep(100 * time.Millisecond)
	clock.Sleep(250 * time.Millisecond)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("len(Sleeps()) = %d, expected 2", len(sleeps))
	}
	if sleeps[0] != 100*time.Millisecond || sleeps[1] != 250*time.Millisecond {
		t.Errorf("Sleeps() = %v, expected [100ms 250ms]", sleeps)
	}

	// Without AdvanceOnSleep the clock must not move.
	if got := clock.Now(); !got.Equal(time.Unix(1000, 0)) {
		t.Errorf("Now() moved on Sleep without AdvanceOnSleep: %v", got)
	}
}

func TestMockClock_AdvanceOnSleep(t *testing.T) {
	start := time.Unix(2000, 0)
	clock := NewMockClock(start)
	clock.AdvanceOnSleep = true

	for i := 0; i < 5; i++ {
		clock.Sleep(100 * time.Millisecond)
	}

	want := start.Add(500 * time.Millisecond)
	if got := clock.Now(); !got.Equal(want) {
		t.Errorf("Now() after 5 sleeps = %v, expected %v", got, want)
	}
	if since := clock.Since(start); since != 500*time.Millisecond {
		t.Errorf("Since(start) = %v, expected 500ms", since)
	}
}

func TestMockClock_SleepsReturnsCopy(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	clock.Sleep(time.Second)

	sleeps := clock.Sleeps()
	sleeps[0] = time.Hour

	if got := clock.Sleeps()[0]; got != time.Second {
		t.Errorf("Sleeps() exposed internal slice; got %v after mutation", got)
	}
}
