package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/echocode/echo/backend/internal/logging"
	capturemodel "github.com/echocode/echo/backend/internal/model/capture"
	"github.com/echocode/echo/backend/internal/service/capture"
)

// ErrNoSubscriber is returned when an event is published with no capture listening.
var ErrNoSubscriber = errors.New("no active capture subscription")

// RelayRecognizer forwards recognition results produced elsewhere, typically the
// browser's speech recognition reporting over the capture websocket.
type RelayRecognizer struct {
	logger *slog.Logger

	mu        sync.Mutex
	sessionID string
	handler   capture.Handler
}

// NewRelayRecognizer creates an idle relay.
func NewRelayRecognizer(logger *slog.Logger) *RelayRecognizer {
	return &RelayRecognizer{logger: logging.OrDiscard(logger)}
}

// Subscribe attaches handler for sessionID, replacing any previous subscriber.
func (r *RelayRecognizer) Subscribe(_ context.Context, sessionID string, handler capture.Handler) (capture.Subscription, error) {
	if handler == nil {
		return nil, errors.New("relay subscribe: nil handler")
	}

	r.mu.Lock()
	r.sessionID = sessionID
	r.handler = handler
	r.mu.Unlock()

	r.logger.Debug("relay subscribed", "session", sessionID)
	return capture.UnsubscribeFunc(func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.sessionID == sessionID {
			r.sessionID = ""
			r.handler = nil
		}
		return nil
	}), nil
}

// Active reports whether a capture session is subscribed.
func (r *RelayRecognizer) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler != nil
}

// Publish delivers a transcript update to the current subscriber.
func (r *RelayRecognizer) Publish(text string, isFinal bool, confidence float64) error {
	return r.deliver(capturemodel.Event{Text: text, IsFinal: isFinal, Confidence: confidence})
}

// Fail reports a capability error to the current subscriber.
func (r *RelayRecognizer) Fail(err error) error {
	if err == nil {
		err = errors.New("speech recognition error")
	}
	return r.deliver(capturemodel.Event{Err: err})
}

func (r *RelayRecognizer) deliver(ev capturemodel.Event) error {
	r.mu.Lock()
	handler := r.handler
	ev.SessionID = r.sessionID
	r.mu.Unlock()

	if handler == nil {
		return ErrNoSubscriber
	}
	ev.ReceivedAt = time.Now().UTC()
	handler(ev)
	return nil
}
