package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/echocode/echo/backend/internal/config"
	capturemodel "github.com/echocode/echo/backend/internal/model/capture"
	"github.com/echocode/echo/backend/internal/service/capture"
)

type fakeASRServer struct {
	t       *testing.T
	headers chan http.Header
	frames  chan Frame
	replies chan []byte
}

func newFakeASRServer(t *testing.T) (*fakeASRServer, string) {
	t.Helper()
	f := &fakeASRServer{
		t:       t,
		headers: make(chan http.Header, 1),
		frames:  make(chan Frame, 16),
		replies: make(chan []byte, 16),
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		go func() {
			for reply := range f.replies {
				if err := conn.WriteMessage(websocket.BinaryMessage, reply); err != nil {
					return
				}
			}
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(f.frames)
				return
			}
			frame, err := DecodeFrame(data)
			if err != nil {
				continue
			}
			frame.Payload, _ = decompress(frame.Payload, frame.Compression)
			f.frames <- frame
		}
	}))
	t.Cleanup(func() {
		close(f.replies)
		srv.Close()
	})
	return f, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (f *fakeASRServer) reply(payload any, last bool) {
	f.t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(f.t, err)
	packed, err := compress(raw, GzipCompression)
	require.NoError(f.t, err)

	frame := Frame{Type: FullServerResponse, Flags: PositiveSequence, Serialization: JSONSerialization, Compression: GzipCompression, Sequence: 1, Payload: packed}
	if last {
		frame.Flags = NegativeSequence
		frame.Sequence = -1
	}
	data, err := frame.MarshalBinary()
	require.NoError(f.t, err)
	f.replies <- data
}

func (f *fakeASRServer) nextFrame() Frame {
	f.t.Helper()
	select {
	case frame, ok := <-f.frames:
		require.True(f.t, ok, "connection closed")
		return frame
	case <-time.After(2 * time.Second):
		f.t.Fatal("no frame received")
		return Frame{}
	}
}

func testSpeechConfig(endpoint string) config.SpeechConfig {
	return config.SpeechConfig{
		Mode:          config.SpeechModeVolcengine,
		AppID:         "app-id",
		AccessToken:   "token",
		ASREndpoint:   endpoint,
		ASRResourceID: "volc.bigasr.sauc.duration",
		ASRLanguage:   "en-US",
		ASRFormat:     "pcm",
		SampleRate:    16000,
		Timeout:       2,
		Enabled:       true,
	}
}

func collectEvents() (capture.Handler, <-chan capturemodel.Event) {
	ch := make(chan capturemodel.Event, 16)
	return func(ev capturemodel.Event) { ch <- ev }, ch
}

func nextEvent(t *testing.T, ch <-chan capturemodel.Event) capturemodel.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return capturemodel.Event{}
	}
}

func TestStreamingRecognizerSession(t *testing.T) {
	server, url := newFakeASRServer(t)
	rec := NewStreamingRecognizer(testSpeechConfig(url), nil)

	handler, events := collectEvents()
	sub, err := rec.Subscribe(context.Background(), "cap-1", handler)
	require.NoError(t, err)
	require.True(t, rec.Active())

	headers := <-server.headers
	require.Equal(t, "app-id", headers.Get("X-Api-App-Key"))
	require.Equal(t, "token", headers.Get("X-Api-Access-Key"))
	require.Equal(t, "volc.bigasr.sauc.duration", headers.Get("X-Api-Resource-Id"))
	require.NotEmpty(t, headers.Get("X-Api-Connect-Id"))

	cfgFrame := server.nextFrame()
	require.Equal(t, FullClientRequest, cfgFrame.Type)
	var sent asrConfigRequest
	require.NoError(t, json.Unmarshal(cfgFrame.Payload, &sent))
	require.Equal(t, "cap-1", sent.User.UID)
	require.Equal(t, 16000, sent.Audio.Rate)
	require.Equal(t, "bigmodel", sent.Request.ModelName)

	require.NoError(t, rec.PushAudio([]byte{1, 2, 3, 4}))
	audio := server.nextFrame()
	require.Equal(t, AudioOnlyRequest, audio.Type)
	require.Equal(t, int32(2), audio.Sequence)
	require.Equal(t, []byte{1, 2, 3, 4}, audio.Payload)

	server.reply(map[string]any{"code": asrSuccessCode, "result": map[string]any{"text": "print"}}, false)
	ev := nextEvent(t, events)
	require.Equal(t, "cap-1", ev.SessionID)
	require.Equal(t, "print", ev.Text)
	require.False(t, ev.IsFinal)

	server.reply(map[string]any{"result": map[string]any{
		"text":       "print hello",
		"utterances": []map[string]any{{"text": "print hello", "definite": true}},
	}}, false)
	ev = nextEvent(t, events)
	require.Equal(t, "print hello", ev.Text)
	require.True(t, ev.IsFinal)

	// The full-session text accumulates; only the newest utterance is reported.
	server.reply(map[string]any{"result": map[string]any{
		"text": "print hello sort a list",
		"utterances": []map[string]any{
			{"text": "print hello", "definite": true},
			{"text": "sort a list", "definite": false},
		},
	}}, false)
	ev = nextEvent(t, events)
	require.Equal(t, "sort a list", ev.Text)
	require.False(t, ev.IsFinal)

	require.NoError(t, sub.Unsubscribe())
	require.False(t, rec.Active())
	require.ErrorIs(t, rec.PushAudio([]byte{5}), ErrNoSubscriber)

	last := server.nextFrame()
	require.True(t, last.Last())
	require.Equal(t, int32(-3), last.Sequence)

	// A second unsubscribe is harmless.
	require.NoError(t, sub.Unsubscribe())
}

func TestStreamingRecognizerServerError(t *testing.T) {
	server, url := newFakeASRServer(t)
	rec := NewStreamingRecognizer(testSpeechConfig(url), nil)

	handler, events := collectEvents()
	sub, err := rec.Subscribe(context.Background(), "cap-2", handler)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	server.nextFrame()

	server.reply(map[string]any{"code": 45000002, "message": "empty audio"}, false)
	ev := nextEvent(t, events)
	require.Error(t, ev.Err)
	require.Contains(t, ev.Err.Error(), "empty audio")
}

func TestStreamingRecognizerFinalResult(t *testing.T) {
	server, url := newFakeASRServer(t)
	rec := NewStreamingRecognizer(testSpeechConfig(url), nil)

	handler, events := collectEvents()
	sub, err := rec.Subscribe(context.Background(), "cap-3", handler)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	server.nextFrame()

	server.reply(map[string]any{"result": map[string]any{"text": "done"}}, true)
	ev := nextEvent(t, events)
	require.Equal(t, "done", ev.Text)
	require.True(t, ev.IsFinal)

	// The service ended the stream, so it is released without an unsubscribe.
	require.Eventually(t, func() bool { return !rec.Active() }, 2*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, rec.PushAudio([]byte{1}), ErrNoSubscriber)
	require.NoError(t, sub.Unsubscribe())
}

func TestTranscriptOfPrefersLatestUtterance(t *testing.T) {
	cases := []struct {
		name         string
		msg          string
		wantText     string
		wantDefinite bool
	}{
		{"text only", `{"result":{"text":" hello "}}`, "hello", false},
		{"single utterance", `{"result":{"text":"hello","utterances":[{"text":"hello","definite":true}]}}`, "hello", true},
		{"latest wins", `{"result":{"text":"a b","utterances":[{"text":"a","definite":true},{"text":"b"}]}}`, "b", false},
		{"blank trailing utterance", `{"result":{"text":"a","utterances":[{"text":"a","definite":true},{"text":" "}]}}`, "a", true},
		{"empty", `{"result":{}}`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg asrServerMessage
			require.NoError(t, json.Unmarshal([]byte(tc.msg), &msg))
			text, definite := transcriptOf(msg)
			require.Equal(t, tc.wantText, text)
			require.Equal(t, tc.wantDefinite, definite)
		})
	}
}

func TestStreamingRecognizerMissingCredentials(t *testing.T) {
	cfg := testSpeechConfig("ws://127.0.0.1:1")
	cfg.AppID = ""
	rec := NewStreamingRecognizer(cfg, nil)

	_, err := rec.Subscribe(context.Background(), "cap-4", func(capturemodel.Event) {})
	require.ErrorIs(t, err, capture.ErrCaptureUnavailable)
}

func TestStreamingRecognizerDrivesController(t *testing.T) {
	server, url := newFakeASRServer(t)
	rec := NewStreamingRecognizer(testSpeechConfig(url), nil)
	ctrl := capture.NewController(nil, rec)

	_, err := ctrl.Start(context.Background())
	require.NoError(t, err)
	server.nextFrame()

	server.reply(map[string]any{"result": map[string]any{"text": "sort numbers"}}, false)
	require.Eventually(t, func() bool { return ctrl.Transcript() == "sort numbers" }, 2*time.Second, 10*time.Millisecond)

	snap, err := ctrl.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sort numbers", snap.Transcript)
	require.False(t, rec.Active())
}
