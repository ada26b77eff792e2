package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/echocode/echo/backend/internal/config"
	"github.com/echocode/echo/backend/internal/logging"
	capturemodel "github.com/echocode/echo/backend/internal/model/capture"
	"github.com/echocode/echo/backend/internal/service/capture"
)

// asrSuccessCode is the service code for a normal response.
const asrSuccessCode = 20000000

var errStreamClosed = errors.New("asr stream closed")

// StreamingRecognizer transcribes audio pushed by the client through the
// Volcengine big-model streaming ASR websocket, emitting interim results.
type StreamingRecognizer struct {
	cfg    config.SpeechConfig
	dialer *websocket.Dialer
	logger *slog.Logger

	mu     sync.Mutex
	active *asrStream
}

// NewStreamingRecognizer creates a recognizer for cfg.
func NewStreamingRecognizer(cfg config.SpeechConfig, logger *slog.Logger) *StreamingRecognizer {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StreamingRecognizer{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: timeout},
		logger: logging.OrDiscard(logger),
	}
}

type asrConfigRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text     string `json:"text"`
	Definite bool   `json:"definite"`
}

type asrServerMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result"`
}

func (r *StreamingRecognizer) buildConfig(sessionID string) asrConfigRequest {
	var req asrConfigRequest
	req.User.UID = sessionID

	req.Audio.Language = r.cfg.ASRLanguage
	req.Audio.Format = r.cfg.ASRFormat
	if req.Audio.Format == "" {
		req.Audio.Format = "pcm"
	}
	req.Audio.Codec = "raw"
	req.Audio.Rate = r.cfg.SampleRate
	if req.Audio.Rate <= 0 {
		req.Audio.Rate = 16000
	}
	req.Audio.Bits = 16
	req.Audio.Channel = 1

	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800
	return req
}

// Subscribe opens a recognition stream for sessionID. Any previous stream is closed.
func (r *StreamingRecognizer) Subscribe(ctx context.Context, sessionID string, handler capture.Handler) (capture.Subscription, error) {
	appID, token, err := resolveCredentials(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrCaptureUnavailable, err)
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", r.cfg.ASRResourceID)
	header.Set("X-Api-Connect-Id", uuid.NewString())

	conn, resp, err := r.dialer.DialContext(ctx, r.cfg.ASREndpoint, header)
	if err != nil {
		return nil, fmt.Errorf("connect asr websocket: %w", err)
	}
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			r.logger.Debug("asr connected", "session", sessionID, "logid", logid)
		}
	}

	payload, err := json.Marshal(r.buildConfig(sessionID))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("marshal asr config: %w", err)
	}
	if err := writeFrame(conn, newConfigFrame(payload)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send asr config: %w", err)
	}

	stream := &asrStream{
		sessionID: sessionID,
		conn:      conn,
		handler:   handler,
		logger:    r.logger,
		seq:       1,
		closed:    make(chan struct{}),
		onClose:   r.release,
	}

	r.mu.Lock()
	prev := r.active
	r.active = stream
	r.mu.Unlock()
	if prev != nil {
		_ = prev.Unsubscribe()
	}

	go stream.readLoop()
	r.logger.Info("asr stream opened", "session", sessionID)
	return stream, nil
}

// PushAudio sends one chunk of raw audio to the active stream.
func (r *StreamingRecognizer) PushAudio(chunk []byte) error {
	r.mu.Lock()
	stream := r.active
	r.mu.Unlock()

	if stream == nil {
		return ErrNoSubscriber
	}
	return stream.sendAudio(chunk)
}

// Active reports whether a stream is open.
func (r *StreamingRecognizer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *StreamingRecognizer) release(s *asrStream) {
	r.mu.Lock()
	if r.active == s {
		r.active = nil
	}
	r.mu.Unlock()
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	payload, err := compress(f.Payload, f.Compression)
	if err != nil {
		return err
	}
	f.Payload = payload
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

// asrStream is one open recognition websocket.
type asrStream struct {
	sessionID string
	conn      *websocket.Conn
	handler   capture.Handler
	logger    *slog.Logger
	onClose   func(*asrStream)

	writeMu   sync.Mutex
	seq       int32
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *asrStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *asrStream) sendAudio(chunk []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.isClosed() {
		return errStreamClosed
	}
	s.seq++
	if err := writeFrame(s.conn, newAudioFrame(chunk, s.seq, false)); err != nil {
		return fmt.Errorf("send audio chunk: %w", err)
	}
	return nil
}

// Unsubscribe sends the closing audio frame and drops the connection. It never
// waits for the read loop, so it is safe to call from the event handler.
func (s *asrStream) Unsubscribe() error {
	return s.shutdown(true)
}

// shutdown closes the stream once. sendLast controls whether the negative
// sequence frame is written first.
func (s *asrStream) shutdown(sendLast bool) error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		if sendLast {
			s.seq++
			if werr := writeFrame(s.conn, newAudioFrame(nil, s.seq, true)); werr != nil {
				s.logger.Debug("asr final frame not sent", "session", s.sessionID, "err", werr)
			}
		}
		close(s.closed)
		err = s.conn.Close()
		s.writeMu.Unlock()

		if s.onClose != nil {
			s.onClose(s)
		}
		s.logger.Info("asr stream closed", "session", s.sessionID)
	})
	return err
}

func (s *asrStream) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(fmt.Errorf("read asr response: %w", err))
			return
		}

		ev, last, err := decodeServerFrame(data)
		if err != nil {
			s.fail(err)
			return
		}
		if ev != nil && !s.isClosed() {
			ev.SessionID = s.sessionID
			s.handler(*ev)
		}
		if last {
			s.logger.Info("asr final result received", "session", s.sessionID)
			_ = s.shutdown(false)
			return
		}
	}
}

func (s *asrStream) fail(err error) {
	if s.isClosed() {
		return
	}
	s.handler(capturemodel.Event{SessionID: s.sessionID, Err: err, ReceivedAt: time.Now().UTC()})
}

// decodeServerFrame turns one server frame into a capture event. last is true
// once the service has sent its final result.
func decodeServerFrame(data []byte) (*capturemodel.Event, bool, error) {
	frame, err := DecodeFrame(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode asr frame: %w", err)
	}

	switch frame.Type {
	case ServerError:
		payload, derr := decompress(frame.Payload, frame.Compression)
		if derr != nil {
			payload = frame.Payload
		}
		return nil, false, fmt.Errorf("asr error %d: %s", frame.ErrorCode, strings.TrimSpace(string(payload)))

	case FullServerResponse:
		payload, err := decompress(frame.Payload, frame.Compression)
		if err != nil {
			return nil, false, fmt.Errorf("decompress asr payload: %w", err)
		}

		var msg asrServerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, false, fmt.Errorf("unmarshal asr payload: %w", err)
		}
		if msg.Code != 0 && msg.Code != asrSuccessCode {
			return nil, false, fmt.Errorf("asr api error %d: %s", msg.Code, msg.Message)
		}

		text, definite := transcriptOf(msg)
		last := frame.Last()
		if text == "" {
			return nil, last, nil
		}
		return &capturemodel.Event{
			Text:       text,
			IsFinal:    last || definite,
			Confidence: estimateConfidence(text),
			ReceivedAt: time.Now().UTC(),
		}, last, nil

	default:
		return nil, false, nil
	}
}

// transcriptOf returns the latest utterance and whether it is definite. With
// result_type "full" the top-level text accumulates every utterance so far, so it
// is only used when no utterances are reported.
func transcriptOf(msg asrServerMessage) (string, bool) {
	for i := len(msg.Result.Utterances) - 1; i >= 0; i-- {
		u := msg.Result.Utterances[i]
		if t := strings.TrimSpace(u.Text); t != "" {
			return t, u.Definite
		}
	}
	return strings.TrimSpace(msg.Result.Text), false
}

func estimateConfidence(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return 0.95
}
