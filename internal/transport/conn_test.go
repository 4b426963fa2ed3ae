package transport

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// startListener returns a localhost TCP listener and its port.
func startListener(t *testing.T) (net.Listener, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestConnectAndReceive(t *testing.T) {
	ln, port := startListener(t)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("hello"))
		conn.Close()
	}()

	c := &Conn{}
	if err := c.Connect("127.0.0.1", port, time.Second); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	if !c.Connected() {
		t.Fatal("expected connection to be open")
	}

	buf := make([]byte, 64)
	n, err := c.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", string(buf[:n]))
	}

	// Peer closed after writing; the next read reports EOF.
	for {
		n, err = c.Receive(buf, time.Second)
		if n == 0 {
			break
		}
	}
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after peer close, got %v", err)
	}
}

func TestConnectAlreadyConnected(t *testing.T) {
	ln, port := startListener(t)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	c := &Conn{}
	if err := c.Connect("127.0.0.1", port, time.Second); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	if err := c.Connect("127.0.0.1", port, time.Second); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestConnectRefused(t *testing.T) {
	// Claim a port, then close it so the connect is refused.
	ln, port := startListener(t)
	ln.Close()

	c := &Conn{}
	err := c.Connect("127.0.0.1", port, time.Second)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if c.Connected() {
		t.Fatal("expected connection to stay closed after failure")
	}
}

func TestConnectResolveFailure(t *testing.T) {
	c := &Conn{}
	err := c.Connect("host.invalid", 80, time.Second)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection for unresolvable host, got %v", err)
	}
}

func TestReceiveTimeout(t *testing.T) {
	ln, port := startListener(t)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		// Hold the connection open without writing.
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	c := &Conn{}
	if err := c.Connect("127.0.0.1", port, time.Second); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	buf := make([]byte, 16)
	_, err := c.Receive(buf, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if errors.Is(err, ErrConnection) {
		t.Fatal("timeout must be distinguishable from a hard connection error")
	}
}

func TestSendWhenDisconnected(t *testing.T) {
	c := &Conn{}
	if err := c.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := c.Receive(make([]byte, 1), time.Second); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	c := &Conn{}
	c.Close()
	c.Close() // never connected, double close: both are no-ops

	ln, port := startListener(t)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
	}()

	if err := c.Connect("127.0.0.1", port, time.Second); err != nil {
		t.Fatalf("connect after close failed: %v", err)
	}
	c.Close()
	c.Close()
	if c.Connected() {
		t.Fatal("expected connection to be closed")
	}
}

func TestSendReceiveRoundTrip(t *testing.T) {
	ln, port := startListener(t)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n]) // echo
	}()

	c := &Conn{}
	if err := c.Connect("127.0.0.1", port, time.Second); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Close()

	if err := c.Send([]byte("ping")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	buf := make([]byte, 16)
	n, err := c.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("expected echo %q, got %q", "ping", string(buf[:n]))
	}
}
