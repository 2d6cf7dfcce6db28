package dahua

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamEventsURL(t *testing.T) {
	var query string

	srv := httptest.NewServer(challenge(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		_, _ = w.Write([]byte("Code=VideoMotion;action=Start;index=0\r\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	var chunks [][]byte
	err := c.StreamEvents(context.Background(), []string{CodeVideoMotion, CodeAlarmLocal}, func(b []byte) {
		chunks = append(chunks, append([]byte(nil), b...))
	})

	// server closed the stream after one chunk, that is a clean shutdown
	require.Nil(t, err)
	assert.Equal(t, "action=attach&codes=[VideoMotion,AlarmLocal]&heartbeat=2", query)
	require.NotEmpty(t, chunks)
}

func TestStreamEventsAllSentinel(t *testing.T) {
	var query string

	srv := httptest.NewServer(challenge(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	err := c.StreamEvents(context.Background(), nil, func([]byte) {})
	require.Nil(t, err)
	assert.Equal(t, "action=attach&codes=[All]&heartbeat=2", query)
}

func TestStreamEventsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	err := c.StreamEvents(context.Background(), nil, func([]byte) {})
	var se *StreamError
	require.True(t, errors.As(err, &se))
}

func TestStreamEventsCancel(t *testing.T) {
	srv := httptest.NewServer(challenge(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		for {
			if _, err := w.Write([]byte("Heartbeat")); err != nil {
				return
			}
			f.Flush()

			select {
			case <-r.Context().Done():
				return
			case <-time.After(time.Millisecond * 10):
			}
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan struct{}, 1)
	go func() {
		<-received
		cancel()
	}()

	var once bool
	err := c.StreamEvents(ctx, nil, func([]byte) {
		if !once {
			once = true
			received <- struct{}{}
		}
	})

	var se *StreamError
	require.True(t, errors.As(err, &se))
	assert.True(t, errors.Is(err, context.Canceled))
}

type releaseBody struct {
	data   []byte
	err    error
	closes int32
}

func (b *releaseBody) Read(p []byte) (int, error) {
	if len(b.data) > 0 {
		n := copy(p, b.data)
		b.data = b.data[n:]
		return n, nil
	}
	if b.err != nil {
		return 0, b.err
	}
	return 0, io.EOF
}

func (b *releaseBody) Close() error {
	atomic.AddInt32(&b.closes, 1)
	return nil
}

type releaseTransport struct {
	body *releaseBody
}

func (t *releaseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{},
		Body:       t.body,
		Request:    req,
	}, nil
}

// the stream connection is released exactly once on every exit path
func TestStreamEventsReleaseOnce(t *testing.T) {
	tests := []struct {
		name    string
		body    *releaseBody
		wantErr bool
	}{
		{
			name: "clean close",
			body: &releaseBody{data: []byte("Code=VideoMotion;action=Start;index=0\r\n")},
		},
		{
			name:    "mid-stream failure",
			body:    &releaseBody{data: []byte("Heartbeat"), err: errors.New("connection reset")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient("admin", "secret", "cam.local", 80, 554)
			c.Auth.HTTP.Transport = &releaseTransport{body: tt.body}

			err := c.StreamEvents(context.Background(), nil, func([]byte) {})
			if tt.wantErr {
				var se *StreamError
				require.True(t, errors.As(err, &se))
			} else {
				require.Nil(t, err)
			}

			assert.Equal(t, int32(1), atomic.LoadInt32(&tt.body.closes))
		})
	}
}

func TestParseEvents(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  []Event
	}{
		{
			name:  "single record",
			chunk: "--myboundary\r\nContent-Type: text/plain\r\n\r\nCode=VideoMotion;action=Start;index=0\r\n",
			want:  []Event{{Code: "VideoMotion", Action: "Start", Index: 0}},
		},
		{
			name:  "record with data payload",
			chunk: "Code=CrossLineDetection;action=Start;index=2;data={\"Direction\":\"Enter\"}\r\n",
			want: []Event{{
				Code:   "CrossLineDetection",
				Action: "Start",
				Index:  2,
				Data:   []byte(`{"Direction":"Enter"}`),
			}},
		},
		{
			name: "multiline data payload",
			chunk: "Code=SmartMotionHuman;action=Start;index=0;data={\n" +
				"   \"RegionName\" : [ \"Region1\" ]\n}\r\n",
			want: []Event{{
				Code:   "SmartMotionHuman",
				Action: "Start",
				Index:  0,
				Data:   []byte("{\n   \"RegionName\" : [ \"Region1\" ]\n}"),
			}},
		},
		{
			name:  "spaces after separators",
			chunk: "Code=AlarmLocal; action=Stop; index=1\r\n",
			want:  []Event{{Code: "AlarmLocal", Action: "Stop", Index: 1}},
		},
		{
			name: "two records in one chunk",
			chunk: "Code=VideoMotion;action=Start;index=0\r\n\r\n" +
				"--myboundary\r\n\r\nCode=VideoMotion;action=Stop;index=0\r\n",
			want: []Event{
				{Code: "VideoMotion", Action: "Start", Index: 0},
				{Code: "VideoMotion", Action: "Stop", Index: 0},
			},
		},
		{
			name:  "heartbeat filler",
			chunk: "Heartbeat",
			want:  nil,
		},
		{
			name:  "data cut off by chunk boundary",
			chunk: "Code=FaceDetection;action=Start;index=0;data={\"Faces\":[{",
			want:  []Event{{Code: "FaceDetection", Action: "Start", Index: 0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseEvents([]byte(tt.chunk))
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Code, got[i].Code)
				assert.Equal(t, tt.want[i].Action, got[i].Action)
				assert.Equal(t, tt.want[i].Index, got[i].Index)
				assert.Equal(t, string(tt.want[i].Data), string(got[i].Data))
			}
		})
	}
}

func TestWatcher(t *testing.T) {
	srv := httptest.NewServer(challenge(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Code=VideoMotion;action=Start;index=0\r\n"))
		w.(http.Flusher).Flush()

		// keep the stream open until the watcher cancels
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	w := c.Watch(CodeVideoMotion)

	select {
	case ev := <-w.Events():
		assert.Equal(t, "VideoMotion", ev.Code)
		assert.Equal(t, "Start", ev.Action)
	case <-time.After(time.Second * 5):
		t.Fatal("no event received")
	}

	w.Stop()

	if _, ok := <-w.Events(); ok {
		// drain anything buffered, the channel must close after Stop
		for range w.Events() {
		}
	}
}
