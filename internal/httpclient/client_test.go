package httpclient

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/i474232898/weather-client/internal/transport"
)

// serveRaw starts a one-shot server that writes raw bytes to the first
// connection and closes it, returning the URL to reach it.
func serveRaw(t *testing.T, raw string) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Drain the request head before answering.
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write([]byte(raw))
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	return fmt.Sprintf("http://127.0.0.1:%d/test", port)
}

func TestGetSimpleBody(t *testing.T) {
	url := serveRaw(t, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\n\r\n{\"ok\":true}")

	resp, err := New(time.Second).Get(url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", resp.Body)
	}
}

func TestGetChunkedBody(t *testing.T) {
	url := serveRaw(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\ntest\r\n5\r\nchunk\r\n0\r\n\r\n")

	resp, err := New(time.Second).Get(url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "testchunk" {
		t.Fatalf("expected decoded body %q, got %q", "testchunk", resp.Body)
	}
}

func TestGetTruncatedChunkFails(t *testing.T) {
	// The chunk header promises 10 bytes but the stream ends early.
	url := serveRaw(t, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\na\r\nshort")

	_, err := New(time.Second).Get(url)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol for truncated chunk, got %v", err)
	}
}

func TestGetMalformedStatusLine(t *testing.T) {
	url := serveRaw(t, "NOT-HTTP nonsense\r\n\r\nbody")

	_, err := New(time.Second).Get(url)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol for bad status line, got %v", err)
	}
}

func TestGetStatusOutOfRange(t *testing.T) {
	url := serveRaw(t, "HTTP/1.1 999 Weird\r\n\r\n{}")

	_, err := New(time.Second).Get(url)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol for out-of-range status, got %v", err)
	}
}

func TestGetContentLengthTruncation(t *testing.T) {
	url := serveRaw(t, "HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\nbodyTRAILINGJUNK")

	resp, err := New(time.Second).Get(url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "body" {
		t.Fatalf("expected body truncated to Content-Length, got %q", resp.Body)
	}
}

func TestGetErrorStatusStillReturned(t *testing.T) {
	url := serveRaw(t, "HTTP/1.1 404 Not Found\r\n\r\n{\"success\":false}")

	resp, err := New(time.Second).Get(url)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("expected status 404, got %d", resp.StatusCode)
	}
}

func TestGetMalformedURL(t *testing.T) {
	cases := []string{
		"https://example.com/",   // unsupported scheme
		"example.com/path",       // no scheme
		"http://",                // empty host
		"http://host:notaport/x", // bad port
	}

	c := New(time.Second)
	for _, u := range cases {
		if _, err := c.Get(u); !errors.Is(err, ErrProtocol) {
			t.Errorf("Get(%q): expected ErrProtocol, got %v", u, err)
		}
	}
}

func TestGetConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = New(time.Second).Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	if !errors.Is(err, transport.ErrConnection) {
		t.Fatalf("expected transport.ErrConnection, got %v", err)
	}
}

func TestParseURL(t *testing.T) {
	cases := []struct {
		in       string
		wantHost string
		wantPort int
		wantPath string
	}{
		{"http://example.com/api/data", "example.com", 80, "api/data"},
		{"http://example.com:8080/api", "example.com", 8080, "api"},
		{"http://example.com", "example.com", 80, ""},
		{"http://example.com/", "example.com", 80, ""},
		{"http://localhost:10680/v1/current?lat=1", "localhost", 10680, "v1/current?lat=1"},
	}

	for _, tc := range cases {
		host, port, path, err := parseURL(tc.in)
		if err != nil {
			t.Errorf("parseURL(%q): unexpected error %v", tc.in, err)
			continue
		}
		if host != tc.wantHost || port != tc.wantPort || path != tc.wantPath {
			t.Errorf("parseURL(%q) = (%q, %d, %q), want (%q, %d, %q)",
				tc.in, host, port, path, tc.wantHost, tc.wantPort, tc.wantPath)
		}
	}
}

func TestDecodeChunked(t *testing.T) {
	out, err := decodeChunked([]byte("4\r\ntest\r\n0\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "test" {
		t.Fatalf("expected %q, got %q", "test", out)
	}

	if _, err := decodeChunked([]byte("zz\r\nbad\r\n0\r\n\r\n")); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol for bad chunk size, got %v", err)
	}
	if _, err := decodeChunked([]byte("4\r\nte")); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol for short chunk, got %v", err)
	}
}
