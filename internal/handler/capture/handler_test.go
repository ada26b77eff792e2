package capture

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	capturemodel "github.com/echocode/echo/backend/internal/model/capture"
	captureservice "github.com/echocode/echo/backend/internal/service/capture"
	"github.com/echocode/echo/backend/internal/service/speech"
)

type fakeSink struct {
	chunks chan []byte
}

func (f *fakeSink) PushAudio(chunk []byte) error {
	f.chunks <- chunk
	return nil
}

func setupRouter(recognizer captureservice.Recognizer, relay TranscriptRelay, sink AudioSink) (*chi.Mux, *captureservice.Controller) {
	ctrl := captureservice.NewController(nil, recognizer)
	r := chi.NewRouter()
	New(ctrl, relay, sink, nil).RegisterRoutes(r)
	return r, ctrl
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) capturemodel.Session {
	t.Helper()
	var s capturemodel.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

func TestCaptureRESTLifecycle(t *testing.T) {
	relay := speech.NewRelayRecognizer(nil)
	r, _ := setupRouter(relay, relay, nil)

	rec := doRequest(r, http.MethodGet, "/capture/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, capturemodel.StatusIdle, decodeSession(t, rec).Status)

	rec = doRequest(r, http.MethodPost, "/capture/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, capturemodel.StatusListening, decodeSession(t, rec).Status)

	rec = doRequest(r, http.MethodPost, "/capture/start", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(r, http.MethodPut, "/capture/transcript", `{"transcript":"typed"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, relay.Publish("spoken words", true, 0.9))

	rec = doRequest(r, http.MethodPost, "/capture/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeSession(t, rec)
	require.Equal(t, capturemodel.StatusIdle, s.Status)
	require.Equal(t, "spoken words", s.Transcript)

	rec = doRequest(r, http.MethodPut, "/capture/transcript", `{"transcript":"edited"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "edited", decodeSession(t, rec).Transcript)
}

func TestCaptureStartUnavailable(t *testing.T) {
	r, _ := setupRouter(nil, nil, nil)
	rec := doRequest(r, http.MethodPost, "/capture/start", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCaptureSetTranscriptBadBody(t *testing.T) {
	r, _ := setupRouter(nil, nil, nil)
	rec := doRequest(r, http.MethodPut, "/capture/transcript", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, r http.Handler) *wsClient {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/capture/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(msgType string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"type": msgType, "data": data}))
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// waitFor reads until a message satisfies match.
func (c *wsClient) waitFor(match func(received) bool) received {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg received
		require.NoError(c.t, c.conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func (c *wsClient) waitForStatus(match func(capturemodel.Session) bool) capturemodel.Session {
	c.t.Helper()
	var session capturemodel.Session
	c.waitFor(func(msg received) bool {
		if msg.Type != "status" {
			return false
		}
		require.NoError(c.t, json.Unmarshal(msg.Data, &session))
		return match(session)
	})
	return session
}

func TestCaptureWebSocketRelay(t *testing.T) {
	relay := speech.NewRelayRecognizer(nil)
	r, ctrl := setupRouter(relay, relay, nil)
	client := dial(t, r)

	client.waitForStatus(func(s capturemodel.Session) bool { return s.Status == capturemodel.StatusIdle })

	client.send("start", nil)
	client.waitForStatus(func(s capturemodel.Session) bool { return s.Status == capturemodel.StatusListening })

	client.send("transcript", TranscriptMessage{Text: "write a"})
	client.send("transcript", TranscriptMessage{Text: "write a loop", IsFinal: true})
	client.waitForStatus(func(s capturemodel.Session) bool { return s.Transcript == "write a loop" })

	client.send("stop", nil)
	s := client.waitForStatus(func(s capturemodel.Session) bool { return s.Status == capturemodel.StatusIdle })
	require.Equal(t, "write a loop", s.Transcript)
	require.Equal(t, "write a loop", ctrl.Transcript())
}

func TestCaptureWebSocketClientError(t *testing.T) {
	relay := speech.NewRelayRecognizer(nil)
	r, _ := setupRouter(relay, relay, nil)
	client := dial(t, r)

	client.send("start", nil)
	client.waitForStatus(func(s capturemodel.Session) bool { return s.Status == capturemodel.StatusListening })

	client.send("error", ErrorMessage{Message: "not-allowed"})
	s := client.waitForStatus(func(s capturemodel.Session) bool { return s.Status == capturemodel.StatusIdle })
	require.Equal(t, captureservice.FailureMessage, s.Transcript)
}

func TestCaptureWebSocketAudio(t *testing.T) {
	sink := &fakeSink{chunks: make(chan []byte, 1)}
	r, _ := setupRouter(nil, nil, sink)
	client := dial(t, r)

	client.send("audio", AudioMessage{AudioData: []byte{1, 2, 3}})
	select {
	case chunk := <-sink.chunks:
		require.Equal(t, []byte{1, 2, 3}, chunk)
	case <-time.After(2 * time.Second):
		t.Fatal("audio chunk not forwarded")
	}
}

func TestCaptureWebSocketRejectsUnknownMessages(t *testing.T) {
	r, _ := setupRouter(nil, nil, nil)
	client := dial(t, r)

	client.send("transcript", TranscriptMessage{Text: "x"})
	msg := client.waitFor(func(m received) bool { return m.Type == "error" })
	require.Contains(t, string(msg.Data), "relay not configured")

	client.send("dance", nil)
	msg = client.waitFor(func(m received) bool { return m.Type == "error" })
	require.Contains(t, string(msg.Data), "unsupported message type")
}

func TestCaptureWebSocketDisconnectStopsCapture(t *testing.T) {
	relay := speech.NewRelayRecognizer(nil)
	r, ctrl := setupRouter(relay, relay, nil)
	client := dial(t, r)

	client.send("start", nil)
	client.waitForStatus(func(s capturemodel.Session) bool { return s.Status == capturemodel.StatusListening })

	require.NoError(t, client.conn.Close())
	require.Eventually(t, func() bool {
		return ctrl.Snapshot().Status == capturemodel.StatusIdle
	}, 2*time.Second, 10*time.Millisecond)
	require.False(t, relay.Active())
}
