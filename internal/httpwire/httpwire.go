// Package httpwire performs single-shot HTTP POST exchanges over a raw
// TCP or TLS connection. Each call opens one connection, writes one
// request with Connection: close, reads one response, and closes.
//
// The framing is deliberately minimal. Token endpoints answer small
// form-encoded POSTs with small JSON bodies, so there is no connection
// reuse, no redirects, and no HTTP/2. A non-2xx status is a normal
// Result, not an error; only transport-level failures return an error.
package httpwire

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"grantor/pkg/logging"
	"grantor/pkg/oauth"
)

// Header is a single response header. Order and duplicates are preserved
// as received from the wire.
type Header struct {
	Name  string
	Value string
}

// Result is a parsed HTTP response.
type Result struct {
	// StatusCode is the numeric status, 0 if the status line carried no
	// parseable code.
	StatusCode int

	// Status is the full status line, e.g. "HTTP/1.1 200 OK".
	Status string

	// Headers are the response headers in wire order.
	Headers []Header

	// Body is the raw response body, chunked coding already removed.
	Body []byte
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Result) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// GetHeader returns the first header with the given name,
// case-insensitively, and whether it was present.
func (r *Result) GetHeader(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// DecodeJSON unmarshals the body into v. The caller decides when a body
// is JSON; nothing is decoded eagerly.
func (r *Result) DecodeJSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &oauth.ProtocolError{Reason: "undecodable JSON response body", Err: err}
	}
	return nil
}

// Post sends a single HTTP POST to rawURL with the given extra headers
// and body, and returns the parsed response. Host, Content-Type,
// Content-Length and Connection: close headers are supplied
// automatically. A context deadline is applied to the whole exchange.
func Post(ctx context.Context, rawURL string, headers []Header, contentType string, body []byte) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &oauth.TransportError{Op: "parse url", Err: err}
	}

	var useTLS bool
	switch u.Scheme {
	case "https":
		useTLS = true
	case "http":
		useTLS = false
	default:
		return nil, &oauth.TransportError{Op: "parse url", Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if useTLS {
			port = "443"
		} else {
			port = "80"
		}
	}
	addr := net.JoinHostPort(host, port)

	logging.Debug("HTTPWire", "POST %s://%s%s", u.Scheme, addr, u.RequestURI())

	conn, err := dial(ctx, addr, host, useTLS)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, &oauth.TransportError{Op: "set deadline", Err: err}
		}
	}

	if err := writeRequest(conn, u, headers, contentType, body); err != nil {
		return nil, err
	}

	return readResponse(bufio.NewReader(conn))
}

// PostJSON performs Post and, on a successful exchange, decodes the body
// into v. Decoding is attempted regardless of status code only when the
// caller passes a non-nil v and the result is 2xx.
func PostJSON(ctx context.Context, rawURL string, headers []Header, contentType string, body []byte, v interface{}) (*Result, error) {
	result, err := Post(ctx, rawURL, headers, contentType, body)
	if err != nil {
		return nil, err
	}
	if v != nil && result.IsSuccess() {
		if err := result.DecodeJSON(v); err != nil {
			return result, err
		}
	}
	return result, nil
}

func dial(ctx context.Context, addr, serverName string, useTLS bool) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &oauth.TransportError{Op: "dial", Err: err}
	}
	if !useTLS {
		return conn, nil
	}

	tlsConn := tls.Client(conn, &tls.Config{ServerName: serverName})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, &oauth.TransportError{Op: "tls handshake", Err: err}
	}
	return tlsConn, nil
}

func writeRequest(w io.Writer, u *url.URL, headers []Header, contentType string, body []byte) error {
	var b strings.Builder
	fmt.Fprintf(&b, "POST %s HTTP/1.1\r\n", u.RequestURI())
	fmt.Fprintf(&b, "Host: %s\r\n", u.Host)
	if contentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n")
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	b.WriteString("\r\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return &oauth.TransportError{Op: "write request", Err: err}
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return &oauth.TransportError{Op: "write request body", Err: err}
		}
	}
	return nil
}

func readResponse(r *bufio.Reader) (*Result, error) {
	statusLine, err := readLine(r)
	if err != nil {
		return nil, &oauth.TransportError{Op: "read status line", Err: err}
	}

	result := &Result{Status: statusLine}

	// "HTTP/1.1 200 OK" splits on the first space into version and the
	// rest; the code is the first token of the rest.
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) >= 2 {
		if code, err := strconv.Atoi(parts[1]); err == nil {
			result.StatusCode = code
		}
	}
	if result.StatusCode == 0 {
		return nil, &oauth.TransportError{Op: "read status line", Err: fmt.Errorf("malformed status line %q", statusLine)}
	}

	for {
		line, err := readLine(r)
		if err != nil {
			return nil, &oauth.TransportError{Op: "read headers", Err: err}
		}
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			// Tolerate and skip malformed header lines.
			continue
		}
		result.Headers = append(result.Headers, Header{
			Name:  name,
			Value: strings.TrimLeft(value, " \t"),
		})
	}

	body, err := readBody(r, result)
	if err != nil {
		return nil, err
	}
	result.Body = body
	return result, nil
}

func readBody(r *bufio.Reader, result *Result) ([]byte, error) {
	if te, ok := result.GetHeader("Transfer-Encoding"); ok && strings.EqualFold(strings.TrimSpace(te), "chunked") {
		return readChunked(r)
	}

	if cl, ok := result.GetHeader("Content-Length"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return nil, &oauth.TransportError{Op: "read body", Err: fmt.Errorf("malformed Content-Length %q", cl)}
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, &oauth.TransportError{Op: "read body", Err: err}
		}
		return body, nil
	}

	// Connection: close, so the body runs to EOF.
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, &oauth.TransportError{Op: "read body", Err: err}
	}
	return body, nil
}

// readChunked decodes a chunked body. Chunk extensions are ignored;
// trailers are read and discarded.
func readChunked(r *bufio.Reader) ([]byte, error) {
	var body []byte
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, &oauth.TransportError{Op: "read chunk size", Err: err}
		}
		sizeStr, _, _ := strings.Cut(line, ";")
		size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
		if err != nil || size < 0 {
			return nil, &oauth.TransportError{Op: "read chunk size", Err: fmt.Errorf("malformed chunk size %q", line)}
		}
		if size == 0 {
			// Consume trailers through the final blank line.
			for {
				trailer, err := readLine(r)
				if err != nil {
					return nil, &oauth.TransportError{Op: "read trailers", Err: err}
				}
				if trailer == "" {
					return body, nil
				}
			}
		}

		chunk := make([]byte, size)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, &oauth.TransportError{Op: "read chunk", Err: err}
		}
		body = append(body, chunk...)

		// Each chunk is followed by CRLF.
		if _, err := readLine(r); err != nil {
			return nil, &oauth.TransportError{Op: "read chunk", Err: err}
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
