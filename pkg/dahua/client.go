// Package dahua implements the Dahua IP camera HTTP CGI API. The calls
// were discovered from the "API of HTTP Protocol Specification" document
// and from inspecting the camera's own web UI traffic.
package dahua

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/camforge/dahua/pkg/digest"
)

// Timeout bounds every one-off request so a slow camera cannot stall the
// caller's polling loop.
const Timeout = time.Second * 5

// Client talks to one camera. It owns one digest.Client for its lifetime,
// which keeps a single nonce-count sequence per camera connection. Safe
// for concurrent use: the only mutable shared state is that counter.
type Client struct {
	Log     zerolog.Logger
	Timeout time.Duration

	// Auth performs the per-request digest handshake
	Auth *digest.Client

	username string
	password string
	host     string
	rtspPort int

	base string
}

// NewClient creates a client for the camera HTTP API on host:port.
// rtspPort is only used to build media URLs for an external player.
func NewClient(username, password, host string, port, rtspPort int) *Client {
	return &Client{
		Log:      log.Logger,
		Timeout:  Timeout,
		Auth:     digest.NewClient(username, password),
		username: username,
		password: password,
		host:     host,
		rtspPort: rtspPort,
		base:     fmt.Sprintf("http://%s:%d", host, port),
	}
}

// Values - decoded key=value response body
type Values map[string]string

// Get issues an authenticated GET and decodes the key=value body.
//
// The error contract is asymmetric on purpose and callers depend on it:
// socket/DNS failures come back as *TransportError and a non-2xx status
// as *HTTPError, while a timeout or a failed body read is only logged and
// yields an empty map, so one slow request never crashes a polling loop.
func (c *Client) Get(path string) (Values, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	res, err := c.do(ctx, path)
	if err != nil {
		if isTimeout(err) {
			c.Log.Error().Err(err).Str("url", path).Msg("[dahua] request timeout")
			return Values{}, nil
		}
		var pe *digest.ProtocolError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &TransportError{URL: path, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &HTTPError{URL: path, Code: res.StatusCode, Status: res.Status}
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		if isTimeout(err) {
			c.Log.Error().Err(err).Str("url", path).Msg("[dahua] request timeout")
			return Values{}, nil
		}
		return nil, &TransportError{URL: path, Err: err}
	}

	return DecodeValues(string(b)), nil
}

// GetBytes issues an authenticated GET and returns the raw body. The whole
// call is best-effort: every failure class, transport included, is logged
// and yields nil, because callers treat absence as "no image available".
func (c *Client) GetBytes(path string) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	res, err := c.do(ctx, path)
	if err != nil {
		c.Log.Error().Err(err).Str("url", path).Msg("[dahua] fetch bytes")
		return nil
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.Log.Error().Str("url", path).Str("status", res.Status).Msg("[dahua] fetch bytes")
		return nil
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		c.Log.Error().Err(err).Str("url", path).Msg("[dahua] read bytes")
		return nil
	}

	return b
}

func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.base+path, nil)
	if err != nil {
		return nil, err
	}

	return c.Auth.Do(req)
}

// DecodeValues parses the line-oriented text the CGI API returns:
//
//	table.General.MachineName=Cam4
//	table.General.MaxOnlineTime=3600
//
// A line without '=' is kept with the whole line as both key and value.
func DecodeValues(body string) Values {
	vs := make(Values)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			vs[k] = v
		} else {
			vs[line] = line
		}
	}
	return vs
}

// confirmAck reports whether the camera acknowledged a setConfig call
func confirmAck(vs Values) bool {
	for k := range vs {
		if strings.EqualFold(k, "ok") {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
