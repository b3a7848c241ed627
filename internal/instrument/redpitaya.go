package instrument

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/resonance.report/internal/monitoring"
)

const (
	// DefaultSCPIPort is the TCP port the Red Pitaya SCPI server listens on.
	DefaultSCPIPort = "5000"

	defaultProbeChannel = 2
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 2 * time.Second
)

// RedPitayaConfig carries the connection parameters for the probe.
type RedPitayaConfig struct {
	// Addr is the SCPI server address, host or host:port. A bare host gets
	// the default port 5000.
	Addr string

	// Channel is the acquisition source to sample. The cavity probe sits
	// on channel 2.
	Channel int

	// DialTimeout bounds the initial TCP connect. Defaults to 5s.
	DialTimeout time.Duration

	// ReadTimeout bounds each command/reply exchange. Defaults to 2s.
	ReadTimeout time.Duration

	// Logf receives device interaction logs. Defaults to the package
	// logger with an "[instrument]" prefix.
	Logf func(format string, v ...interface{})
}

// RedPitayaProbe reads the cavity probe signal from a Red Pitaya over its
// SCPI/TCP server. Each reading arms and stops the acquisition, then pulls
// the captured buffer and keeps the second sample, skipping the first which
// can straddle the trigger.
type RedPitayaProbe struct {
	cfg  RedPitayaConfig
	conn net.Conn
	r    *bufio.Reader
	mu   sync.Mutex
}

// DialRedPitaya connects to the SCPI server and returns a ready probe.
func DialRedPitaya(cfg RedPitayaConfig) (*RedPitayaProbe, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("red pitaya address is required")
	}
	if cfg.Channel == 0 {
		cfg.Channel = defaultProbeChannel
	}
	if cfg.Channel < 1 || cfg.Channel > 2 {
		return nil, fmt.Errorf("invalid acquisition channel %d: must be 1 or 2", cfg.Channel)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.Logf == nil {
		cfg.Logf = monitoring.Prefixed("instrument")
	}

	addr := cfg.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultSCPIPort)
	}

	conn, err := net.DialTimeout("tcp", addr, cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial red pitaya at %s: %w", addr, err)
	}
	cfg.Logf("connected to red pitaya at %s (channel %d)", addr, cfg.Channel)

	return &RedPitayaProbe{
		cfg:  cfg,
		conn: conn,
		r:    bufio.NewReader(conn),
	}, nil
}

// ReadSignal arms a capture and returns one probe amplitude.
func (p *RedPitayaProbe) ReadSignal(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := p.send("ACQ:START"); err != nil {
		return 0, err
	}
	if err := p.send("ACQ:STOP"); err != nil {
		return 0, err
	}

	reply, err := p.query(fmt.Sprintf("ACQ:SOUR%d:DATA?", p.cfg.Channel))
	if err != nil {
		return 0, err
	}
	return parseProbeSample(reply)
}

// send writes one SCPI command, CRLF-terminated.
func (p *RedPitayaProbe) send(command string) error {
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.cfg.ReadTimeout)); err != nil {
		return err
	}
	if _, err := p.conn.Write([]byte(command + "\r\n")); err != nil {
		return fmt.Errorf("send %q: %w", command, err)
	}
	return nil
}

// query writes a SCPI command and reads the single reply line.
func (p *RedPitayaProbe) query(command string) (string, error) {
	if err := p.send(command); err != nil {
		return "", err
	}
	if err := p.conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout)); err != nil {
		return "", err
	}
	line, err := p.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reply to %q: %w", command, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close releases the SCPI connection.
func (p *RedPitayaProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Close()
}

// parseProbeSample extracts the second sample from a {a,b,...} data reply.
// A reply without at least two samples is a read error; the full reply is
// kept in the message for diagnosis.
func parseProbeSample(reply string) (float64, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(reply, "{"), "}")
	fields := strings.Split(trimmed, ",")
	if len(fields) < 2 {
		return 0, fmt.Errorf("short data reply %q", reply)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed sample in reply %q: %w", reply, err)
	}
	return value, nil
}
