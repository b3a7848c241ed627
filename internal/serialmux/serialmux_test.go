package serialmux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestSerialPort implements SerialPorter for testing SerialMux operations
type TestSerialPort struct {
	readData    []byte
	readIndex   int
	writtenData bytes.Buffer
	writeErr    error
	closeErr    error
	closed      bool
	mu          sync.Mutex
}

func NewTestSerialPort(data string) *TestSerialPort {
	return &TestSerialPort{
		readData: []byte(data),
	}
}

func (p *TestSerialPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	if p.readIndex >= len(p.readData) {
		// Block until closed to simulate waiting for more data
		time.Sleep(10 * time.Millisecond)
		if p.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(buf, p.readData[p.readIndex:])
	p.readIndex += n
	return n, nil
}

func (p *TestSerialPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.writtenData.Write(data)
}

func (p *TestSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *TestSerialPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

func (p *TestSerialPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writtenData.String()
}

// TestNewSerialMux tests creation of a new SerialMux
func TestNewSerialMux(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)

	if mux == nil {
		t.Fatal("NewSerialMux returned nil")
	}
	if mux.port != port {
		t.Error("SerialMux port not set correctly")
	}
	if mux.subscribers == nil {
		t.Error("SerialMux subscribers map not initialized")
	}
}

// TestSerialMux_Subscribe tests subscribing to the serial mux
func TestSerialMux_Subscribe(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()

	if id1 == "" {
		t.Error("First subscription returned empty ID")
	}
	if id2 == "" {
		t.Error("Second subscription returned empty ID")
	}
	if id1 == id2 {
		t.Error("Subscription IDs should be unique")
	}
	if ch1 == nil {
		t.Error("First subscription returned nil channel")
	}
	if ch2 == nil {
		t.Error("Second subscription returned nil channel")
	}

	// Verify both are in subscribers map
	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 2 {
		t.Errorf("Expected 2 subscribers, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()
}

// TestSerialMux_Unsubscribe tests unsubscribing from the serial mux
func TestSerialMux_Unsubscribe(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)

	id, ch := mux.Subscribe()

	// Start a goroutine to detect channel closure
	done := make(chan bool)
	go func() {
		_, ok := <-ch
		if ok {
			t.Error("Expected channel to be closed")
		}
		done <- true
	}()

	// Give goroutine time to start
	time.Sleep(10 * time.Millisecond)

	mux.Unsubscribe(id)

	select {
	case <-done:
		// Success
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel closure")
	}

	// Verify removed from map
	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 0 {
		t.Errorf("Expected 0 subscribers, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()
}

// TestSerialMux_Unsubscribe_NonExistent tests unsubscribing with invalid ID
func TestSerialMux_Unsubscribe_NonExistent(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)

	// Should not panic
	mux.Unsubscribe("non-existent-id")
}

// TestSerialMux_SendCommand tests sending commands to the serial port
func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)

	tests := []struct {
		name    string
		command string
	}{
		{"frequency without newline", "f3800.0"},
		{"power with newline", "W10.0\n"},
		{"enable output", "E1r1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mux.SendCommand(tt.command)
			if err != nil {
				t.Errorf("SendCommand returned error: %v", err)
			}
		})
	}

	// Verify all commands were written newline-terminated
	written := port.WrittenData()
	for _, want := range []string{"f3800.0\n", "W10.0\n", "E1r1\n"} {
		if !strings.Contains(written, want) {
			t.Errorf("Expected %q to be written, got %q", want, written)
		}
	}
	if strings.Contains(written, "\n\n") {
		t.Errorf("Expected no doubled newlines, got %q", written)
	}
}

// TestSerialMux_SendCommand_WriteError tests error handling in SendCommand
func TestSerialMux_SendCommand_WriteError(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)

	port.SetWriteError(errors.New("write failed"))

	err := mux.SendCommand("f3800.0")
	if err == nil {
		t.Error("Expected error when write fails")
	}
}

// TestSerialMux_SendCommand_PartialWrite tests handling of partial writes
func TestSerialMux_SendCommand_PartialWrite(t *testing.T) {
	port := &PartialWritePort{maxWrite: 1}
	mux := NewSerialMux(port)

	err := mux.SendCommand("f3800.0")
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Expected ErrWriteFailed for partial write, got %v", err)
	}
}

// PartialWritePort is a test port that only writes a limited number of bytes
type PartialWritePort struct {
	maxWrite int
	written  []byte
	closed   bool
}

func (p *PartialWritePort) Read(buf []byte) (int, error) {
	return 0, io.EOF
}

func (p *PartialWritePort) Write(data []byte) (int, error) {
	if p.maxWrite > 0 && len(data) > p.maxWrite {
		p.written = append(p.written, data[:p.maxWrite]...)
		return p.maxWrite, nil
	}
	p.written = append(p.written, data...)
	return len(data), nil
}

func (p *PartialWritePort) Close() error {
	p.closed = true
	return nil
}

// TestSerialMux_Close tests closing the serial mux
func TestSerialMux_Close(t *testing.T) {
	port := NewTestSerialPort("")
	mux := NewSerialMux(port)

	id1, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	// Start goroutines to detect channel closure
	done1 := make(chan bool)
	done2 := make(chan bool)

	go func() {
		_, ok := <-ch1
		if ok {
			t.Error("Expected channel 1 to be closed")
		}
		done1 <- true
	}()

	go func() {
		_, ok := <-ch2
		if ok {
			t.Error("Expected channel 2 to be closed")
		}
		done2 <- true
	}()

	// Give goroutines time to start
	time.Sleep(10 * time.Millisecond)

	err := mux.Close()
	if err != nil {
		t.Errorf("Close returned error: %v", err)
	}

	select {
	case <-done1:
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel 1 closure")
	}

	select {
	case <-done2:
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for channel 2 closure")
	}

	// Verify subscribers map is empty
	mux.subscriberMu.Lock()
	if len(mux.subscribers) != 0 {
		t.Errorf("Expected 0 subscribers after close, got %d", len(mux.subscribers))
	}
	mux.subscriberMu.Unlock()

	// Verify closing flag is set
	mux.closingMu.Lock()
	if !mux.closing {
		t.Error("Expected closing flag to be true after Close")
	}
	mux.closingMu.Unlock()

	// Unsubscribing after close should be safe
	mux.Unsubscribe(id1)
}

// TestSerialMux_Monitor tests line fan-out to a subscriber
func TestSerialMux_Monitor(t *testing.T) {
	port := NewTestSerialPort("line1\nline2\nline3\n")
	mux := NewSerialMux(port)

	// Buffered subscription so the scanner can outpace this goroutine
	// without lines being dropped by the non-blocking fan-out.
	_, ch := mux.subscribe(8)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- mux.Monitor(ctx)
	}()

	received := make([]string, 0)
	timeout := time.After(300 * time.Millisecond)

loop:
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				break loop
			}
			received = append(received, line)
			if len(received) == 3 {
				break loop
			}
		case <-timeout:
			break loop
		}
	}

	if len(received) != 3 {
		t.Errorf("Expected 3 lines, got %d: %v", len(received), received)
	}
	if len(received) > 0 && received[0] != "line1" {
		t.Errorf("Expected first line %q, got %q", "line1", received[0])
	}

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Monitor returned unexpected error: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("Monitor did not exit after context deadline")
	}
}

// TestSerialMux_Monitor_MultipleSubscribers tests fan-out to several channels
func TestSerialMux_Monitor_MultipleSubscribers(t *testing.T) {
	port := NewTestSerialPort("hello\n")
	mux := NewSerialMux(port)

	_, ch1 := mux.subscribe(1)
	_, ch2 := mux.subscribe(1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go mux.Monitor(ctx)

	for i, ch := range []chan string{ch1, ch2} {
		select {
		case line := <-ch:
			if line != "hello" {
				t.Errorf("Subscriber %d: expected %q, got %q", i+1, "hello", line)
			}
		case <-time.After(150 * time.Millisecond):
			t.Errorf("Subscriber %d did not receive the line", i+1)
		}
	}
}

// TestSerialMux_Monitor_ScanError tests Monitor with a failing port
func TestSerialMux_Monitor_ScanError(t *testing.T) {
	port := &ErrorReadPort{errAfter: 2}
	mux := NewSerialMux(port)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := mux.Monitor(ctx)
	if err == nil {
		t.Error("Expected error from Monitor when port reads fail")
	}
}

// TestSerialMux_Monitor_CloseDuringRead tests closing while Monitor is reading
func TestSerialMux_Monitor_CloseDuringRead(t *testing.T) {
	port := NewTestSerialPort("line1\nline2\nline3\nline4\n")
	mux := NewSerialMux(port)

	_, ch := mux.Subscribe()

	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		done <- mux.Monitor(ctx)
	}()

	// Read a line to ensure monitor is running
	select {
	case <-ch:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for first line")
	}

	if err := mux.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Logf("Monitor returned: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("Monitor did not exit after Close")
	}
}

// ErrorReadPort simulates a port that returns an error after N reads
type ErrorReadPort struct {
	readCount int
	errAfter  int
	closed    bool
}

func (p *ErrorReadPort) Read(buf []byte) (int, error) {
	if p.closed {
		return 0, io.EOF
	}
	p.readCount++
	if p.readCount > p.errAfter {
		return 0, errors.New("simulated read error")
	}
	// Return a newline to simulate a line
	if len(buf) > 0 {
		buf[0] = '\n'
		return 1, nil
	}
	return 0, nil
}

func (p *ErrorReadPort) Write(data []byte) (int, error) {
	return len(data), nil
}

func (p *ErrorReadPort) Close() error {
	p.closed = true
	return nil
}

// TestRandomID tests the randomID helper function
func TestRandomID(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := randomID()
		if len(id) != 16 { // 8 bytes hex encoded = 16 chars
			t.Errorf("Expected ID length 16, got %d", len(id))
		}
		if ids[id] {
			t.Errorf("Duplicate ID generated: %s", id)
		}
		ids[id] = true
	}
}
