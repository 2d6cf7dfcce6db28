package digest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reference vector from RFC 2617 section 3.5
func TestAuthorizationRFC2617(t *testing.T) {
	c := NewClient("Mufasa", "Circle Of Life")
	c.cnonce = func() string { return "0a4f113b" }

	challenge := `Digest realm="testrealm@host.com", qop="auth,auth-int", ` +
		`nonce="dcd98b7102dd2f0e8b11d0f600bfb0c093", opaque="5ccc069c403ebaf9f0171e9517f40e41"`

	header, err := c.authorization("GET", "/dir/index.html", challenge)
	require.Nil(t, err)

	assert.Contains(t, header, `response="6629fae49393a05397450978507c4ef1"`)
	assert.Contains(t, header, `username="Mufasa"`)
	assert.Contains(t, header, `realm="testrealm@host.com"`)
	assert.Contains(t, header, `uri="/dir/index.html"`)
	assert.Contains(t, header, `qop=auth`)
	assert.Contains(t, header, `nc=00000001`)
	assert.Contains(t, header, `cnonce="0a4f113b"`)
	assert.Contains(t, header, `opaque="5ccc069c403ebaf9f0171e9517f40e41"`)
}

func TestAuthorizationNoQop(t *testing.T) {
	c := NewClient("Mufasa", "Circle Of Life")

	challenge := `Digest realm="testrealm@host.com", nonce="dcd98b7102dd2f0e8b11d0f600bfb0c093"`

	header, err := c.authorization("GET", "/dir/index.html", challenge)
	require.Nil(t, err)

	assert.Contains(t, header, `response="670fd8c2df070c60b045671b8b24ff02"`)
	assert.NotContains(t, header, "cnonce")
	assert.NotContains(t, header, "nc=")
}

func TestAuthorizationBadChallenge(t *testing.T) {
	c := NewClient("admin", "admin")

	// no nonce
	_, err := c.authorization("GET", "/", `Digest realm="cam"`)
	var pe *ProtocolError
	assert.True(t, errors.As(err, &pe))

	// unknown algorithm
	_, err = c.authorization("GET", "/", `Digest realm="cam", nonce="1", algorithm=SHA-512`)
	assert.True(t, errors.As(err, &pe))

	// unknown qop
	_, err = c.authorization("GET", "/", `Digest realm="cam", nonce="1", qop="token"`)
	assert.True(t, errors.As(err, &pe))
}

// the nonce count never resets and never repeats for one Client
func TestNonceCountMonotonic(t *testing.T) {
	var seen []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			w.Header().Set("WWW-Authenticate", `Digest realm="cam", qop="auth", nonce="763e6a1a"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		seen = append(seen, auth)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("admin", "secret")

	for i := 0; i < 3; i++ {
		req, err := http.NewRequest("GET", srv.URL+"/cgi-bin/magicBox.cgi", nil)
		require.Nil(t, err)

		res, err := c.Do(req)
		require.Nil(t, err)
		require.Equal(t, http.StatusOK, res.StatusCode)
		_ = res.Body.Close()
	}

	require.Len(t, seen, 3)
	assert.Contains(t, seen[0], "nc=00000001")
	assert.Contains(t, seen[1], "nc=00000002")
	assert.Contains(t, seen[2], "nc=00000003")
}

// endpoints without auth answer the unauthenticated probe directly
func TestDoNoChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("vendor=Dahua\r\n"))
	}))
	defer srv.Close()

	c := NewClient("admin", "secret")

	req, err := http.NewRequest("GET", srv.URL+"/", nil)
	require.Nil(t, err)

	res, err := c.Do(req)
	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	_ = res.Body.Close()
}

func TestDoMissingChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("admin", "secret")

	req, err := http.NewRequest("GET", srv.URL+"/", nil)
	require.Nil(t, err)

	_, err = c.Do(req)
	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
}

// a second 401 means wrong credentials and is returned, not retried
func TestDoWrongCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Digest realm="cam", nonce="763e6a1a"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("admin", "wrong")

	req, err := http.NewRequest("GET", srv.URL+"/", nil)
	require.Nil(t, err)

	res, err := c.Do(req)
	require.Nil(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	_ = res.Body.Close()
}
