package dahua

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// CodeAll subscribes to every event the camera can report
const CodeAll = "All"

// the commonly used event codes, the camera knows many more
const (
	CodeVideoMotion        = "VideoMotion"        // motion detection
	CodeSmartMotionHuman   = "SmartMotionHuman"   // human smart motion
	CodeSmartMotionVehicle = "SmartMotionVehicle" // vehicle smart motion
	CodeVideoLoss          = "VideoLoss"
	CodeVideoBlind         = "VideoBlind"
	CodeAlarmLocal         = "AlarmLocal"
	CodeCrossLineDetection = "CrossLineDetection"   // tripwire
	CodeCrossRegionDetect  = "CrossRegionDetection" // intrusion
	CodeLeftDetection      = "LeftDetection"        // abandoned object
	CodeTakenAwayDetection = "TakenAwayDetection"   // missing object
	CodeFaceDetection      = "FaceDetection"
	CodeAudioMutation      = "AudioMutation" // intensity change
	CodeAudioAnomaly       = "AudioAnomaly"
	CodeStorageNotExist    = "StorageNotExist"
	CodeStorageFailure     = "StorageFailure"
	CodeStorageLowSpace    = "StorageLowSpace"
	CodeMDResult           = "MDResult" // motion detect data reporting
)

// the camera pushes the literal "Heartbeat" chunk at this rate so both
// sides notice a dead connection
const heartbeatSeconds = 2

// StreamEvents attaches to the camera event manager and calls onReceive
// with every chunk the camera pushes, until ctx is cancelled or the stream
// dies. One digest handshake happens up front, the chunked body then runs
// under the authenticated connection.
//
// Chunks follow the transport's boundaries: a callback may see a partial
// record or several at once, ParseEvents copes with both. A nil return
// means the camera closed the stream cleanly, every other exit comes back
// as *StreamError. The response is released exactly once on any path.
func (c *Client) StreamEvents(ctx context.Context, codes []string, onReceive func([]byte)) error {
	if len(codes) == 0 {
		codes = []string{CodeAll}
	}

	link := fmt.Sprintf(
		"%s/cgi-bin/eventManager.cgi?action=attach&codes=[%s]&heartbeat=%d",
		c.base, strings.Join(codes, ","), heartbeatSeconds,
	)

	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return &StreamError{Err: err}
	}

	res, err := c.Auth.Do(req)
	if err != nil {
		return &StreamError{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StreamError{Err: errors.New(res.Status)}
	}

	buf := make([]byte, 4096)
	for {
		n, err := res.Body.Read(buf)
		if n > 0 {
			onReceive(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return &StreamError{Err: ctx.Err()}
			}
			if err == io.EOF {
				// camera closed the stream, nothing went wrong
				return nil
			}
			return &StreamError{Err: err}
		}
	}
}

// Event - one decoded notification record. Data is vendor JSON whose
// schema varies per code, it stays opaque here for the host to decode.
type Event struct {
	Code   string
	Action string
	Index  int
	Data   json.RawMessage
}

// ParseEvents decodes the records found in one pushed chunk. Records look
// like
//
//	Code=VideoMotion;action=Start;index=0
//	Code=CrossLineDetection;action=Start;index=0;data={...}
//
// wrapped in multipart framing and interleaved with heartbeat filler, all
// of which is skipped. A data payload cut off by the chunk boundary is
// dropped, the record itself is still returned.
func ParseEvents(b []byte) []Event {
	var events []Event

	s := string(b)
	for {
		i := strings.Index(s, "Code=")
		if i < 0 {
			return events
		}

		var ev Event
		ev, s = parseEvent(s[i:])
		events = append(events, ev)
	}
}

func parseEvent(s string) (Event, string) {
	var ev Event

	for {
		s = strings.TrimLeft(s, " ")

		// data is always the last field and may span lines
		if strings.HasPrefix(s, "data=") {
			s = s[len("data="):]
			if n := jsonLen(s); n > 0 {
				ev.Data = json.RawMessage(s[:n])
				s = s[n:]
			}
			return ev, s
		}

		n := strings.IndexAny(s, ";\r\n")
		if n < 0 {
			n = len(s)
		}
		if key, value, ok := strings.Cut(s[:n], "="); ok {
			switch strings.TrimSpace(key) {
			case "Code":
				ev.Code = value
			case "action":
				ev.Action = value
			case "index":
				ev.Index, _ = strconv.Atoi(value)
			}
		}
		s = s[n:]

		if !strings.HasPrefix(s, ";") {
			return ev, s
		}
		s = s[1:]
	}
}

// jsonLen - length of the JSON object at the start of s, 0 if incomplete
func jsonLen(s string) int {
	if s == "" || s[0] != '{' {
		return 0
	}

	var depth int
	var quoted bool

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			if i == 0 || s[i-1] != '\\' {
				quoted = !quoted
			}
		case '{':
			if !quoted {
				depth++
			}
		case '}':
			if !quoted {
				if depth--; depth == 0 {
					return i + 1
				}
			}
		}
	}

	return 0
}
