// Package digest - client side of HTTP Digest auth (RFC 2617) for camera
// CGI APIs. Dahua firmwares may rotate the server nonce on every request,
// so each exchange probes unauthenticated and answers the fresh challenge.
// Nothing from a challenge survives a single request/response pair.
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/camforge/dahua/pkg/core"
)

// ProtocolError - 401 response with a missing or unusable challenge
type ProtocolError struct {
	Header string
}

func (e *ProtocolError) Error() string {
	if e.Header == "" {
		return "digest: no challenge in 401 response"
	}
	return "digest: unsupported challenge: " + e.Header
}

// Client performs single authenticated HTTP exchanges. The only state it
// keeps between calls is the nonce counter - strict servers reject a
// repeated nc for the same nonce, so the counter is never reset for the
// lifetime of the Client.
type Client struct {
	// HTTP has no global timeout, deadlines come from the request context
	HTTP http.Client

	username string
	password string
	nc       uint32

	cnonce func() string
}

func NewClient(username, password string) *Client {
	return &Client{
		username: username,
		password: password,
		cnonce:   func() string { return core.RandString(16) },
	}
}

// Do sends req once without credentials. Anything but a 401 is returned
// as-is. On a 401 the challenge is parsed and the request repeated exactly
// once with the Authorization header, and that second response is returned
// verbatim - a second 401 is the caller's failure to handle, not ours.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}

	challenge := res.Header.Get("WWW-Authenticate")
	_ = res.Body.Close()

	if !strings.HasPrefix(challenge, "Digest") {
		return nil, &ProtocolError{Header: challenge}
	}

	header, err := c.authorization(req.Method, req.URL.RequestURI(), challenge)
	if err != nil {
		return nil, err
	}

	// bodies are usually empty here, but a re-issuable one must be rewound
	if req.GetBody != nil {
		if req.Body, err = req.GetBody(); err != nil {
			return nil, err
		}
	}

	req.Header.Set("Authorization", header)

	return c.HTTP.Do(req)
}

// authorization computes the Authorization header for one challenge
func (c *Client) authorization(method, uri, challenge string) (string, error) {
	realm := core.Between(challenge, `realm="`, `"`)
	nonce := core.Between(challenge, `nonce="`, `"`)
	opaque := core.Between(challenge, `opaque="`, `"`)
	qop := core.Between(challenge, `qop="`, `"`)

	if nonce == "" {
		return "", &ProtocolError{Header: challenge}
	}

	// unquoted in the wild: algorithm=MD5, quoted also happens
	algorithm := strings.Trim(core.Between(challenge+",", "algorithm=", ","), `" `)
	if algorithm != "" && algorithm != "MD5" {
		return "", &ProtocolError{Header: challenge}
	}

	ha1 := hexMD5(c.username, realm, c.password)
	ha2 := hexMD5(method, uri)

	var header string

	switch {
	case qop == "":
		response := hexMD5(ha1, nonce, ha2)
		header = fmt.Sprintf(
			`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
			c.username, realm, nonce, uri, response,
		)
	case hasToken(qop, "auth"):
		nc := fmt.Sprintf("%08x", atomic.AddUint32(&c.nc, 1))
		cnonce := c.cnonce()
		response := hexMD5(ha1, nonce, nc, cnonce, "auth", ha2)
		header = fmt.Sprintf(
			`Digest username="%s", realm="%s", nonce="%s", uri="%s", qop=auth, nc=%s, cnonce="%s", response="%s"`,
			c.username, realm, nonce, uri, nc, cnonce, response,
		)
	default:
		return "", &ProtocolError{Header: challenge}
	}

	if opaque != "" {
		header += fmt.Sprintf(`, opaque="%s"`, opaque)
	}

	return header, nil
}

// hasToken - qop in a challenge is a comma list, e.g. `qop="auth,auth-int"`
func hasToken(list, token string) bool {
	for _, s := range strings.Split(list, ",") {
		if strings.TrimSpace(s) == token {
			return true
		}
	}
	return false
}

func hexMD5(s ...string) string {
	b := md5.Sum([]byte(strings.Join(s, ":")))
	return hex.EncodeToString(b[:])
}
