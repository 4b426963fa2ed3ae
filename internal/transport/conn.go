// Package transport implements the raw TCP layer the HTTP client is
// built on: a single blocking connection with bounded connect, send and
// receive operations.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

var (
	// ErrConnection marks DNS, connect, send or receive level network
	// failures.
	ErrConnection = errors.New("connection error")

	// ErrTimeout is returned by Receive when the deadline elapses with
	// no data. It is distinct from ErrConnection so callers can decide
	// to retry the whole operation.
	ErrTimeout = errors.New("operation timed out")

	// ErrNotConnected is returned when Send or Receive is called on a
	// closed connection.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Connect when the connection is
	// already open.
	ErrAlreadyConnected = errors.New("already connected")
)

// Conn is a blocking TCP client connection. The zero value is usable
// and starts disconnected. A Conn is owned by a single goroutine; it is
// reusable after Close followed by a new Connect.
type Conn struct {
	conn net.Conn
}

// Connected reports whether the connection is currently open.
func (c *Conn) Connected() bool {
	return c.conn != nil
}

// Connect resolves host and attempts every candidate address (IPv4 and
// IPv6, in resolver order) until one connects, all fail, or the timeout
// elapses. On success the connection carries no deadline; Receive sets
// its own per-call deadline.
func (c *Conn) Connect(host string, port int, timeout time.Duration) error {
	if c.conn != nil {
		return ErrAlreadyConnected
	}
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrConnection)
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrConnection, port)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	deadline := time.Now().Add(timeout)

	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrConnection, host, err)
	}

	portStr := strconv.Itoa(port)

	var lastErr error
	for _, addr := range addrs {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			lastErr = fmt.Errorf("connect deadline elapsed")
			break
		}

		d := net.Dialer{Timeout: remaining}
		conn, dialErr := d.Dial("tcp", net.JoinHostPort(addr.IP.String(), portStr))
		if dialErr == nil {
			c.conn = conn
			return nil
		}
		lastErr = dialErr
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses for %s", host)
	}
	return fmt.Errorf("%w: connect %s:%d: %v", ErrConnection, host, port, lastErr)
}

// Send transmits the whole buffer, looping on short writes.
func (c *Conn) Send(data []byte) error {
	if c.conn == nil {
		return fmt.Errorf("%w: send", ErrNotConnected)
	}

	for len(data) > 0 {
		n, err := c.conn.Write(data)
		if err != nil {
			return fmt.Errorf("%w: send: %v", ErrConnection, err)
		}
		data = data[n:]
	}
	return nil
}

// Receive blocks until at least one byte arrives, the peer closes the
// connection, the timeout elapses, or an error occurs. It returns the
// number of bytes read, which may be less than len(buf); callers
// assembling a response must loop. Peer close is reported as io.EOF, a
// deadline as ErrTimeout.
func (c *Conn) Receive(buf []byte, timeout time.Duration) (int, error) {
	if c.conn == nil {
		return 0, fmt.Errorf("%w: receive", ErrNotConnected)
	}
	if len(buf) == 0 {
		return 0, nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, fmt.Errorf("%w: receive: %v", ErrConnection, err)
	}

	n, err := c.conn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return n, io.EOF
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, fmt.Errorf("%w: receive after %v", ErrTimeout, timeout)
		}
		return n, fmt.Errorf("%w: receive: %v", ErrConnection, err)
	}
	return n, nil
}

// Close shuts the connection down. Idempotent; safe on a Conn that was
// never connected.
func (c *Conn) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
