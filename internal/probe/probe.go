// Package probe checks whether a host accepts TCP connections before an
// entry is created for it.
package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	verrors "github.com/bianoble/vaultsync/internal/errors"
)

// DefaultTimeout bounds each connection attempt.
const DefaultTimeout = 2 * time.Second

// Prober reports whether host is reachable.
type Prober interface {
	Probe(ctx context.Context, host string) error
}

// TCP dials each port in order and succeeds on the first connection.
type TCP struct {
	Ports   []int
	Timeout time.Duration

	// Dial replaces net.Dialer.DialContext, mainly for tests.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// Probe implements Prober. It returns a ConnectivityError wrapping the
// last dial error when no port answers.
func (p *TCP) Probe(ctx context.Context, host string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dial := p.Dial
	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}

	var last error
	for _, port := range p.Ports {
		attempt, cancel := context.WithTimeout(ctx, timeout)
		conn, err := dial(attempt, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		cancel()
		if err == nil {
			_ = conn.Close()
			return nil
		}
		last = err
		if ctx.Err() != nil {
			break
		}
	}
	return &verrors.ConnectivityError{Host: host, Ports: p.Ports, Err: last}
}

// Func adapts a function to Prober.
type Func func(ctx context.Context, host string) error

// Probe implements Prober.
func (f Func) Probe(ctx context.Context, host string) error { return f(ctx, host) }
