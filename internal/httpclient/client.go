// Package httpclient implements a one-shot HTTP/1.1 GET on top of the
// transport package: URL parsing, request framing, status line and
// header parsing, and chunked transfer decoding. Every request opens
// and closes its own socket (Connection: close).
package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/weather-client/internal/transport"
)

// ErrProtocol marks a malformed URL or HTTP response: bad status line,
// bad chunk framing, or an out-of-range status code.
var ErrProtocol = errors.New("protocol error")

const (
	defaultTimeout  = 5 * time.Second
	defaultPort     = 80
	readChunkSize   = 8192
	maxResponseSize = 16 << 20 // 16 MiB cap on an assembled response
)

// Response holds the result of a single GET. It is owned by the caller
// of Get and is not retained by the client.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client performs HTTP GET requests. The timeout applies to the
// connect and to each individual receive, not to the transaction as a
// whole; a server dribbling bytes just under the receive deadline can
// hold a request open indefinitely.
type Client struct {
	timeout time.Duration
}

// New creates a Client. A non-positive timeout falls back to 5s.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{timeout: timeout}
}

// Get fetches url and returns the status code and decoded body.
// Only plain http:// URLs are supported.
func (c *Client) Get(rawURL string) (*Response, error) {
	host, port, path, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn := &transport.Conn{}
	if err := conn.Connect(host, port, c.timeout); err != nil {
		return nil, err
	}
	defer conn.Close()

	request := fmt.Sprintf("GET /%s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n", path, host)
	if err := conn.Send([]byte(request)); err != nil {
		return nil, err
	}

	raw, err := readAll(conn, c.timeout)
	if err != nil {
		return nil, err
	}

	resp, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 599 {
		return nil, fmt.Errorf("%w: status code %d out of range", ErrProtocol, resp.StatusCode)
	}
	return resp, nil
}

// readAll assembles the response until the peer closes the stream. The
// server was asked for Connection: close, so EOF marks end-of-response.
func readAll(conn *transport.Conn, timeout time.Duration) ([]byte, error) {
	var assembled bytes.Buffer
	buf := make([]byte, readChunkSize)

	for {
		n, err := conn.Receive(buf, timeout)
		if n > 0 {
			assembled.Write(buf[:n])
			if assembled.Len() > maxResponseSize {
				return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrProtocol, maxResponseSize)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return assembled.Bytes(), nil
			}
			return nil, err
		}
	}
}

// parseURL splits an http://host[:port]/path URL. The port defaults to
// 80 and the path may be empty; the returned path has no leading slash.
func parseURL(rawURL string) (host string, port int, path string, err error) {
	const scheme = "http://"
	if !strings.HasPrefix(rawURL, scheme) {
		return "", 0, "", fmt.Errorf("%w: unsupported URL %q", ErrProtocol, rawURL)
	}

	rest := rawURL[len(scheme):]
	hostPort := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hostPort = rest[:i]
		path = rest[i+1:]
	}

	port = defaultPort
	host = hostPort
	if strings.Contains(hostPort, ":") {
		h, p, splitErr := net.SplitHostPort(hostPort)
		if splitErr != nil {
			return "", 0, "", fmt.Errorf("%w: bad host %q: %v", ErrProtocol, hostPort, splitErr)
		}
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n <= 0 || n > 65535 {
			return "", 0, "", fmt.Errorf("%w: bad port %q", ErrProtocol, p)
		}
		host, port = h, n
	}

	if host == "" {
		return "", 0, "", fmt.Errorf("%w: empty host in %q", ErrProtocol, rawURL)
	}
	return host, port, path, nil
}

// parseResponse splits the raw bytes into status line, headers and
// body, and applies transfer decoding.
func parseResponse(raw []byte) (*Response, error) {
	headerEnd := bytes.Index(raw, []byte("\r\n\r\n"))
	if headerEnd < 0 {
		return nil, fmt.Errorf("%w: no header/body separator", ErrProtocol)
	}

	head := raw[:headerEnd]
	body := raw[headerEnd+4:]

	statusLine := head
	if i := bytes.Index(head, []byte("\r\n")); i >= 0 {
		statusLine = head[:i]
	}

	status, err := parseStatusLine(string(statusLine))
	if err != nil {
		return nil, err
	}

	headers := parseHeaders(head)

	if strings.EqualFold(headers["transfer-encoding"], "chunked") {
		decoded, err := decodeChunked(body)
		if err != nil {
			return nil, err
		}
		body = decoded
	} else if cl, ok := headers["content-length"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(cl)); err == nil && n >= 0 && n < len(body) {
			body = body[:n]
		}
	}

	return &Response{StatusCode: status, Body: body}, nil
}

func parseStatusLine(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, fmt.Errorf("%w: malformed status line %q", ErrProtocol, line)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("%w: malformed status code %q", ErrProtocol, fields[1])
	}
	return code, nil
}

// parseHeaders lowercases header names; later duplicates win, which is
// fine for the two headers this client reads.
func parseHeaders(head []byte) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(string(head), "\r\n")[1:] {
		i := strings.IndexByte(line, ':')
		if i <= 0 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(line[:i]))
		headers[name] = strings.TrimSpace(line[i+1:])
	}
	return headers
}

// decodeChunked reassembles a chunked transfer-encoded body: a sequence
// of <hex-size>\r\n<chunk>\r\n segments ended by a zero-size chunk.
func decodeChunked(body []byte) ([]byte, error) {
	var out bytes.Buffer

	for {
		nl := bytes.Index(body, []byte("\r\n"))
		if nl < 0 {
			return nil, fmt.Errorf("%w: truncated chunk size line", ErrProtocol)
		}

		sizeField := string(body[:nl])
		// Chunk extensions after ';' are ignored.
		if i := strings.IndexByte(sizeField, ';'); i >= 0 {
			sizeField = sizeField[:i]
		}
		sizeField = strings.TrimSpace(sizeField)

		size, err := strconv.ParseUint(sizeField, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed chunk size %q", ErrProtocol, sizeField)
		}

		body = body[nl+2:]
		if size == 0 {
			return out.Bytes(), nil
		}

		if uint64(len(body)) < size+2 {
			return nil, fmt.Errorf("%w: truncated chunk, want %d bytes, have %d", ErrProtocol, size, len(body))
		}

		out.Write(body[:size])
		if !bytes.HasPrefix(body[size:], []byte("\r\n")) {
			return nil, fmt.Errorf("%w: missing chunk terminator", ErrProtocol)
		}
		body = body[size+2:]
	}
}
