// Package transport delivers payloads to the vehicle controller.
package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"telly/pkg/protocol"
)

// Controller defaults; DISPATCH_TX_HOST and DISPATCH_TX_PORT override them
// through the config package.
const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 13001
	DefaultTimeout = 1500 * time.Millisecond
)

// TCPSink writes each payload as one JSON line over a fresh connection.
type TCPSink struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

func NewTCPSink(addr string, timeout time.Duration) *TCPSink {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TCPSink{addr: addr, timeout: timeout}
}

func (s *TCPSink) Addr() string { return s.addr }

// Send dials, writes and closes within the sink timeout.
func (s *TCPSink) Send(ctx context.Context, p protocol.Payload) error {
	line, err := p.Line()
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", s.addr, err)
	}
	return nil
}
