package dahua

import (
	"errors"
)

// ErrNoConfirm - a setConfig call came back without the OK token.
// The API has no structured success code, the only contract is the word
// OK somewhere in the body, in whatever case the firmware ships with.
var ErrNoConfirm = errors.New("dahua: camera did not confirm")

// TransportError - DNS/socket class failure on the config path. These are
// raised to the caller, unlike timeouts and parse noise which are soft.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return "dahua: request " + e.URL + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError - non-2xx final status after the digest handshake completed
type HTTPError struct {
	URL    string
	Code   int
	Status string
}

func (e *HTTPError) Error() string {
	return "dahua: request " + e.URL + ": " + e.Status
}

// StreamError - failure establishing or reading the event stream. A dead
// stream is always reported so the host can resubscribe.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return "dahua: event stream: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
