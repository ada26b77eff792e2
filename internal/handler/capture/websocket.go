package capture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	capturemodel "github.com/echocode/echo/backend/internal/model/capture"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 54 * time.Second
)

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TranscriptMessage is a recognition result reported by the client.
type TranscriptMessage struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence,omitempty"`
}

// AudioMessage carries a chunk of 16-bit mono PCM, base64 encoded in JSON.
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
}

// ErrorMessage reports a client-side recognition failure.
type ErrorMessage struct {
	Message string `json:"message"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// wsWriter serialises writes to one connection.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) send(msgType string, data any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().Unix()})
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("capture websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := &wsWriter{conn: conn}

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	go pingLoop(ctx, conn)

	unwatch := h.ctrl.Watch(func(s capturemodel.Session) {
		if err := out.send("status", s); err != nil {
			h.logger.Debug("capture status not delivered", "err", err)
		}
	})
	defer unwatch()

	h.logger.Info("capture websocket connected", "remote", r.RemoteAddr)
	_ = out.send("status", h.ctrl.Snapshot())

	startedHere := false
	defer func() {
		// Do not leave a subscription running for a client that went away.
		if startedHere && h.ctrl.Snapshot().Status == capturemodel.StatusListening {
			_, _ = h.ctrl.Stop(context.Background())
		}
	}()

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("capture websocket read failed", "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if msg.Type == "start" {
			startedHere = true
		}
		if err := h.handleMessage(ctx, &msg); err != nil {
			_ = out.send("error", ErrorMessage{Message: err.Error()})
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *inboundMessage) error {
	switch msg.Type {
	case "start":
		_, err := h.ctrl.Start(ctx)
		return err

	case "stop":
		_, err := h.ctrl.Stop(ctx)
		return err

	case "transcript":
		if h.relay == nil {
			return errors.New("transcript relay not configured")
		}
		var payload TranscriptMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return errors.New("invalid transcript payload")
		}
		return h.relay.Publish(payload.Text, payload.IsFinal, payload.Confidence)

	case "audio":
		if h.audio == nil {
			return errors.New("server-side recognition not configured")
		}
		var payload AudioMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return errors.New("invalid audio payload")
		}
		if len(payload.AudioData) == 0 {
			return nil
		}
		return h.audio.PushAudio(payload.AudioData)

	case "error":
		if h.relay == nil {
			return errors.New("transcript relay not configured")
		}
		var payload ErrorMessage
		_ = json.Unmarshal(msg.Data, &payload)
		if payload.Message == "" {
			payload.Message = "speech recognition error"
		}
		return h.relay.Fail(errors.New(payload.Message))

	default:
		return errors.New("unsupported message type: " + msg.Type)
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
