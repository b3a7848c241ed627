package serialmux

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// newQueryHarness wires a TestableSerialPort with a running Monitor so Query
// round-trips can be exercised. The returned cleanup stops the monitor and
// closes the port.
func newQueryHarness(t *testing.T, responder func(string) string) *SerialMux[*TestableSerialPort] {
	t.Helper()

	port := NewTestableSerialPort()
	port.BlockReads = true
	port.Responder = responder
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mux.Monitor(ctx)
	}()

	t.Cleanup(func() {
		mux.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("Monitor did not exit during cleanup")
		}
	})

	return mux
}

// TestSerialMux_Query_Reply tests a scripted command/reply round trip
func TestSerialMux_Query_Reply(t *testing.T) {
	mux := newQueryHarness(t, func(command string) string {
		if command == "f?" {
			return "3800.0"
		}
		return ""
	})

	line, err := mux.Query(context.Background(), "f?", time.Second)
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if line != "3800.0" {
		t.Errorf("Expected reply %q, got %q", "3800.0", line)
	}

	written := string(mux.port.GetWrittenData())
	if !strings.Contains(written, "f?\n") {
		t.Errorf("Expected command %q to be written, got %q", "f?\n", written)
	}
}

// TestSerialMux_Query_SequentialExchange tests several queries over one link
func TestSerialMux_Query_SequentialExchange(t *testing.T) {
	replies := map[string]string{
		"f?": "3800.0",
		"W?": "10.0",
		"v0": "WFT SynthHD 1.4a",
	}
	mux := newQueryHarness(t, func(command string) string {
		return replies[command]
	})

	for command, want := range replies {
		line, err := mux.Query(context.Background(), command, time.Second)
		if err != nil {
			t.Fatalf("Query(%q) returned error: %v", command, err)
		}
		if line != want {
			t.Errorf("Query(%q): expected %q, got %q", command, want, line)
		}
	}

	// All queries share one subscriber map; none should linger.
	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 0 {
		t.Errorf("Expected 0 subscribers after queries, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()
}

// TestSerialMux_Query_Timeout tests Query when the device never replies
func TestSerialMux_Query_Timeout(t *testing.T) {
	mux := newQueryHarness(t, nil)

	_, err := mux.Query(context.Background(), "f?", 50*time.Millisecond)
	if !errors.Is(err, ErrQueryTimeout) {
		t.Errorf("Expected ErrQueryTimeout, got %v", err)
	}
}

// TestSerialMux_Query_ContextCancelled tests Query honoring its context
func TestSerialMux_Query_ContextCancelled(t *testing.T) {
	mux := newQueryHarness(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := mux.Query(ctx, "f?", 5*time.Second)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}

// TestSerialMux_Query_WriteError tests Query when the command write fails
func TestSerialMux_Query_WriteError(t *testing.T) {
	mux := newQueryHarness(t, nil)
	mux.port.WriteError = errors.New("device unplugged")

	_, err := mux.Query(context.Background(), "f?", time.Second)
	if err == nil {
		t.Fatal("Expected error when write fails")
	}
	if errors.Is(err, ErrQueryTimeout) {
		t.Errorf("Write failure should not be reported as a timeout, got %v", err)
	}
}

// TestSerialMux_Query_ClosedWhileWaiting tests Close unblocking a pending Query
func TestSerialMux_Query_ClosedWhileWaiting(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	result := make(chan error, 1)
	go func() {
		_, err := mux.Query(context.Background(), "f?", 5*time.Second)
		result <- err
	}()

	// Let the query register and send before closing.
	time.Sleep(20 * time.Millisecond)
	mux.Close()

	select {
	case err := <-result:
		if err == nil {
			t.Error("Expected error when mux closes during query")
		} else if !strings.Contains(err.Error(), "closed") {
			t.Errorf("Expected closed-mux error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Query did not return after Close")
	}
}
