package instrument

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// scpiServer is a minimal fake of the Red Pitaya SCPI/TCP server. It records
// every command and answers DATA? queries with a fixed reply.
type scpiServer struct {
	addr      string
	dataReply string

	mu       sync.Mutex
	commands []string
}

func startSCPIServer(t *testing.T, dataReply string) *scpiServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	s := &scpiServer{addr: ln.Addr().String(), dataReply: dataReply}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handle(conn)
		}
	}()
	return s
}

func (s *scpiServer) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		command := strings.TrimRight(line, "\r\n")

		s.mu.Lock()
		s.commands = append(s.commands, command)
		s.mu.Unlock()

		if strings.HasSuffix(command, "DATA?") {
			if _, err := conn.Write([]byte(s.dataReply + "\r\n")); err != nil {
				return
			}
		}
	}
}

func (s *scpiServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

func TestRedPitayaReadSignal(t *testing.T) {
	server := startSCPIServer(t, "{0.0012,0.0456,0.0478}")

	probe, err := DialRedPitaya(RedPitayaConfig{Addr: server.addr, Logf: t.Logf})
	if err != nil {
		t.Fatalf("DialRedPitaya returned error: %v", err)
	}
	defer probe.Close()

	value, err := probe.ReadSignal(context.Background())
	if err != nil {
		t.Fatalf("ReadSignal returned error: %v", err)
	}
	if value != 0.0456 {
		t.Errorf("Expected second sample 0.0456, got %v", value)
	}

	commands := server.Commands()
	want := []string{"ACQ:START", "ACQ:STOP", "ACQ:SOUR2:DATA?"}
	if len(commands) != len(want) {
		t.Fatalf("Expected %d commands, got %d: %v", len(want), len(commands), commands)
	}
	for i, command := range want {
		if commands[i] != command {
			t.Errorf("Command %d: expected %q, got %q", i, command, commands[i])
		}
	}
}

func TestRedPitayaReadSignal_Repeated(t *testing.T) {
	server := startSCPIServer(t, "{0.1,0.2}")

	probe, err := DialRedPitaya(RedPitayaConfig{Addr: server.addr, Logf: t.Logf})
	if err != nil {
		t.Fatalf("DialRedPitaya returned error: %v", err)
	}
	defer probe.Close()

	for i := 0; i < 3; i++ {
		value, err := probe.ReadSignal(context.Background())
		if err != nil {
			t.Fatalf("ReadSignal %d returned error: %v", i, err)
		}
		if value != 0.2 {
			t.Errorf("ReadSignal %d: expected 0.2, got %v", i, value)
		}
	}

	if got := len(server.Commands()); got != 9 {
		t.Errorf("Expected 9 commands over 3 readings, got %d", got)
	}
}

func TestRedPitayaReadSignal_CustomChannel(t *testing.T) {
	server := startSCPIServer(t, "{0.3,0.4}")

	probe, err := DialRedPitaya(RedPitayaConfig{Addr: server.addr, Channel: 1, Logf: t.Logf})
	if err != nil {
		t.Fatalf("DialRedPitaya returned error: %v", err)
	}
	defer probe.Close()

	if _, err := probe.ReadSignal(context.Background()); err != nil {
		t.Fatalf("ReadSignal returned error: %v", err)
	}

	commands := server.Commands()
	if len(commands) != 3 || commands[2] != "ACQ:SOUR1:DATA?" {
		t.Errorf("Expected channel 1 data query, got %v", commands)
	}
}

func TestRedPitayaReadSignal_ShortReply(t *testing.T) {
	server := startSCPIServer(t, "{0.5}")

	probe, err := DialRedPitaya(RedPitayaConfig{Addr: server.addr, Logf: t.Logf})
	if err != nil {
		t.Fatalf("DialRedPitaya returned error: %v", err)
	}
	defer probe.Close()

	_, err = probe.ReadSignal(context.Background())
	if err == nil {
		t.Fatal("Expected error for short data reply")
	}
	if !strings.Contains(err.Error(), "short data reply") {
		t.Errorf("Expected short-reply diagnostic, got %v", err)
	}
}

func TestRedPitayaReadSignal_MalformedSample(t *testing.T) {
	server := startSCPIServer(t, "{0.1,garbage,0.2}")

	probe, err := DialRedPitaya(RedPitayaConfig{Addr: server.addr, Logf: t.Logf})
	if err != nil {
		t.Fatalf("DialRedPitaya returned error: %v", err)
	}
	defer probe.Close()

	_, err = probe.ReadSignal(context.Background())
	if err == nil {
		t.Fatal("Expected error for malformed sample")
	}
	if !strings.Contains(err.Error(), "garbage") {
		t.Errorf("Expected full reply in diagnostic, got %v", err)
	}
}

func TestRedPitayaReadSignal_ContextCancelled(t *testing.T) {
	server := startSCPIServer(t, "{0.1,0.2}")

	probe, err := DialRedPitaya(RedPitayaConfig{Addr: server.addr, Logf: t.Logf})
	if err != nil {
		t.Fatalf("DialRedPitaya returned error: %v", err)
	}
	defer probe.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := probe.ReadSignal(ctx); err == nil {
		t.Error("Expected error from cancelled context")
	}
	// Give any stray writes a moment to surface before asserting silence.
	time.Sleep(20 * time.Millisecond)
	if got := server.Commands(); len(got) != 0 {
		t.Errorf("Expected no commands after cancellation, got %v", got)
	}
}

func TestRedPitayaDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = DialRedPitaya(RedPitayaConfig{Addr: addr, DialTimeout: 500 * time.Millisecond, Logf: t.Logf})
	if err == nil {
		t.Error("Expected error dialing a closed port")
	}
}

func TestRedPitayaDial_Validation(t *testing.T) {
	if _, err := DialRedPitaya(RedPitayaConfig{}); err == nil {
		t.Error("Expected error for missing address")
	}
	if _, err := DialRedPitaya(RedPitayaConfig{Addr: "example.local", Channel: 7}); err == nil {
		t.Error("Expected error for invalid channel")
	}
}

func TestRedPitayaClose(t *testing.T) {
	server := startSCPIServer(t, "{0.1,0.2}")

	probe, err := DialRedPitaya(RedPitayaConfig{Addr: server.addr, Logf: t.Logf})
	if err != nil {
		t.Fatalf("DialRedPitaya returned error: %v", err)
	}

	if err := probe.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, err := probe.ReadSignal(context.Background()); err == nil {
		t.Error("Expected error reading from closed probe")
	}
}

func TestParseProbeSample(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    float64
		wantErr bool
	}{
		{"braced_list", "{0.1,0.25,0.3}", 0.25, false},
		{"two_samples", "{-0.5,1.5}", 1.5, false},
		{"whitespace", "{0.1, 0.75 ,0.3}", 0.75, false},
		{"unbraced", "0.1,0.33", 0.33, false},
		{"single_sample", "{0.9}", 0, true},
		{"empty", "", 0, true},
		{"not_numbers", "{a,b,c}", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := parseProbeSample(tt.reply)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.reply)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseProbeSample(%q) returned error: %v", tt.reply, err)
			}
			if value != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, value)
			}
		})
	}
}
