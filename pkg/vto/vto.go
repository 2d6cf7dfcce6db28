// Package vto implements the Dahua VTO (video intercom) TCP protocol.
// The doorbell pushes call, motion and lock events over a persistent
// JSON-over-TCP session. Door relays are driven over the regular CGI API
// with digest auth, not over this session.
package vto

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/camforge/dahua/pkg/core"
	"github.com/camforge/dahua/pkg/digest"
)

const (
	methodLogin       = "global.login"
	methodKeepAlive   = "global.keepAlive"
	methodEventAttach = "eventManager.attach"
	methodNotify      = "client.notifyEventStream"
	methodGetConfig   = "configManager.getConfig"
	methodGetVersion  = "magicBox.getSoftwareVersion"
	methodGetDevType  = "magicBox.getDeviceType"
)

// device details attached to every delivered event
const (
	DetailDeviceType   = "deviceType"
	DetailSerialNumber = "serialNumber"
)

type Client struct {
	Log zerolog.Logger

	// OnEvent receives every eventList entry the intercom pushes,
	// annotated with the device type and serial number
	OnEvent func(event map[string]any)

	host     string
	username string
	password string

	conn   net.Conn
	reader *bufio.Reader
	auth   *digest.Client

	mu       sync.Mutex
	id       int
	session  int
	handlers map[int]func(msg *message)
	details  map[string]string
	closed   bool

	keepAlive *core.Worker
}

// Dial connects to the intercom TCP service (default port 5000)
func Dial(host, username, password string) (*Client, error) {
	if !strings.Contains(host, ":") {
		host += ":5000"
	}

	conn, err := net.DialTimeout("tcp", host, time.Second*3)
	if err != nil {
		return nil, err
	}

	return &Client{
		Log:      log.Logger,
		host:     host,
		username: username,
		password: password,
		conn:     conn,
		reader:   bufio.NewReader(conn),
		auth:     digest.NewClient(username, password),
		handlers: map[int]func(msg *message){},
		details:  map[string]string{},
	}, nil
}

// Handle logs in, attaches the event manager and dispatches incoming
// frames until the connection dies or Close is called. It blocks for the
// session's lifetime, run it on a dedicated goroutine.
func (c *Client) Handle() error {
	if err := c.preLogin(); err != nil {
		return err
	}

	for {
		msg, err := c.read()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		if msg == nil {
			continue
		}

		if msg.Method == methodNotify {
			c.notify(msg.Params)
			continue
		}

		c.mu.Lock()
		handler := c.handlers[msg.ID]
		delete(c.handlers, msg.ID)
		c.mu.Unlock()

		if handler != nil {
			handler(msg)
		}
	}
}

// Close tears the session down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	keepAlive := c.keepAlive
	c.mu.Unlock()

	keepAlive.Stop()

	return c.conn.Close()
}

// OpenDoor pulses a door relay. The VTO exposes this over the CGI API
// with digest auth, one handshake per call like any camera request.
func (c *Client) OpenDoor(doorID int) error {
	host := c.host
	if i := strings.IndexByte(host, ':'); i > 0 {
		host = host[:i]
	}

	link := fmt.Sprintf(
		"http://%s/cgi-bin/accessControl.cgi?action=openDoor&UserID=101&Type=Remote&channel=%d",
		host, doorID,
	)

	req, err := http.NewRequest("GET", link, nil)
	if err != nil {
		return err
	}

	res, err := c.auth.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return errors.New(res.Status)
	}

	return nil
}

type message struct {
	ID      int             `json:"id"`
	Session int             `json:"session"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type request struct {
	ID      int    `json:"id"`
	Session int    `json:"session"`
	Magic   string `json:"magic"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

func (c *Client) send(method string, params any, handler func(msg *message)) error {
	c.mu.Lock()
	c.id++
	id := c.id
	if handler != nil {
		c.handlers[id] = handler
	}
	session := c.session
	c.mu.Unlock()

	if params == nil {
		params = map[string]any{}
	}

	body, err := json.Marshal(request{
		ID:      id,
		Session: session,
		Magic:   "0x1234",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	_, err = c.conn.Write(marshalFrame(body))
	return err
}

// marshalFrame wraps a JSON payload in the 32-byte DHIP header
func marshalFrame(body []byte) []byte {
	b := make([]byte, 32+len(body))
	binary.BigEndian.PutUint32(b, 0x20000000)
	binary.BigEndian.PutUint32(b[4:], 0x44484950) // "DHIP"
	// 8 reserved bytes, then the payload length twice, little endian
	binary.LittleEndian.PutUint32(b[16:], uint32(len(body)))
	binary.LittleEndian.PutUint32(b[24:], uint32(len(body)))
	copy(b[32:], body)
	return b
}

// read returns the next decoded frame, or nil for frames that carry no
// usable JSON (the devices pad some frames with NUL noise)
func (c *Client) read() (*message, error) {
	var header [32]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		return nil, err
	}

	size := binary.LittleEndian.Uint32(header[16:])
	if size == 0 || size > 1<<20 {
		return nil, fmt.Errorf("vto: bad frame size %d", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, err
	}

	body = trimFrame(body)

	msg := new(message)
	if err := json.Unmarshal(body, msg); err != nil {
		c.Log.Warn().Err(err).Msg("[vto] skip frame")
		return nil, nil
	}

	return msg, nil
}

// trimFrame cuts the payload down to the JSON object inside it
func trimFrame(b []byte) []byte {
	if i := bytes.IndexByte(b, '{'); i > 0 {
		b = b[i:]
	}
	if i := bytes.LastIndexByte(b, '}'); i >= 0 {
		b = b[:i+1]
	}
	return b
}

// preLogin sends the empty-password login that makes the device answer
// with the challenge (realm + random) for the real login
func (c *Client) preLogin() error {
	handler := func(msg *message) {
		if msg.Error == nil || !strings.Contains(msg.Error.Message, "login challenge") {
			c.Log.Error().Str("method", methodLogin).Msg("[vto] unexpected pre-login reply")
			return
		}

		var params struct {
			Realm  string `json:"realm"`
			Random string `json:"random"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.Log.Error().Err(err).Msg("[vto] pre-login params")
			return
		}

		c.mu.Lock()
		c.session = msg.Session
		c.mu.Unlock()

		if err := c.login(params.Random, params.Realm); err != nil {
			c.Log.Error().Err(err).Msg("[vto] login")
		}
	}

	return c.send(methodLogin, map[string]any{
		"clientType": "",
		"ipAddr":     "(null)",
		"loginType":  "Direct",
		"userName":   c.username,
		"password":   "",
	}, handler)
}

func (c *Client) login(random, realm string) error {
	handler := func(msg *message) {
		var params struct {
			KeepAliveInterval int `json:"keepAliveInterval"`
		}
		if msg.Error != nil || json.Unmarshal(msg.Params, &params) != nil ||
			params.KeepAliveInterval == 0 {
			c.Log.Error().Msg("[vto] login rejected")
			return
		}

		c.loadVersion()
		c.loadSerialNumber()
		c.loadDeviceType()
		c.attachEvents()

		// stay ahead of the device's keep alive timeout
		interval := time.Duration(params.KeepAliveInterval-5) * time.Second
		keepAlive := core.NewWorker(interval, func() time.Duration {
			if err := c.send(methodKeepAlive, map[string]any{
				"timeout": params.KeepAliveInterval - 5,
				"action":  true,
			}, nil); err != nil {
				return 0
			}
			return interval
		})

		c.mu.Lock()
		if c.closed {
			keepAlive.Stop()
		} else {
			c.keepAlive = keepAlive
		}
		c.mu.Unlock()
	}

	return c.send(methodLogin, map[string]any{
		"clientType":    "",
		"ipAddr":        "(null)",
		"loginType":     "Direct",
		"userName":      c.username,
		"password":      hashPassword(random, realm, c.username, c.password),
		"authorityType": "Default",
	}, handler)
}

// hashPassword - the double MD5 the login challenge expects, uppercased
func hashPassword(random, realm, username, password string) string {
	h1 := strings.ToUpper(hexMD5(username + ":" + realm + ":" + password))
	return strings.ToUpper(hexMD5(username + ":" + random + ":" + h1))
}

func hexMD5(s string) string {
	b := md5.Sum([]byte(s))
	return hex.EncodeToString(b[:])
}

func (c *Client) attachEvents() {
	_ = c.send(methodEventAttach, map[string]any{"codes": []string{"All"}}, nil)
}

func (c *Client) loadVersion() {
	_ = c.send(methodGetVersion, nil, func(msg *message) {
		var params struct {
			Version struct {
				Version string `json:"Version"`
			} `json:"version"`
		}
		if json.Unmarshal(msg.Params, &params) == nil {
			c.Log.Info().Str("version", params.Version.Version).Msg("[vto] device")
		}
	})
}

func (c *Client) loadSerialNumber() {
	_ = c.send(methodGetConfig, map[string]any{"name": "T2UServer"}, func(msg *message) {
		var params struct {
			Table struct {
				UUID string `json:"UUID"`
			} `json:"table"`
		}
		if json.Unmarshal(msg.Params, &params) == nil {
			c.mu.Lock()
			c.details[DetailSerialNumber] = params.Table.UUID
			c.mu.Unlock()
		}
	})
}

func (c *Client) loadDeviceType() {
	_ = c.send(methodGetDevType, nil, func(msg *message) {
		var params struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg.Params, &params) == nil {
			c.mu.Lock()
			c.details[DetailDeviceType] = params.Type
			c.mu.Unlock()
		}
	})
}

// notify fans one notifyEventStream frame out to OnEvent
func (c *Client) notify(raw json.RawMessage) {
	if c.OnEvent == nil {
		return
	}

	var params struct {
		EventList []map[string]any `json:"eventList"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		c.Log.Warn().Err(err).Msg("[vto] bad event frame")
		return
	}

	c.mu.Lock()
	details := make(map[string]string, len(c.details))
	for k, v := range c.details {
		details[k] = v
	}
	c.mu.Unlock()

	for _, event := range params.EventList {
		for k, v := range details {
			event[k] = v
		}
		c.OnEvent(event)
	}
}
