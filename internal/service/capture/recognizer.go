package capture

import (
	"context"
	"errors"

	"github.com/echocode/echo/backend/internal/model/capture"
)

var (
	// ErrCaptureUnavailable reports that no transcription capability can be used.
	ErrCaptureUnavailable = errors.New("speech capture unavailable")
	// ErrAlreadyListening reports an operation that is only valid while idle.
	ErrAlreadyListening = errors.New("capture already listening")
)

// Handler receives recognition events in the order the capability emits them.
type Handler func(capture.Event)

// Recognizer is a continuous, interim-capable transcription capability.
// ctx bounds the subscribe handshake only; events keep flowing until Unsubscribe.
type Recognizer interface {
	Subscribe(ctx context.Context, sessionID string, handler Handler) (Subscription, error)
}

// Subscription ends event delivery for one capture session.
type Subscription interface {
	Unsubscribe() error
}

// UnsubscribeFunc adapts a function to the Subscription interface.
type UnsubscribeFunc func() error

func (f UnsubscribeFunc) Unsubscribe() error {
	return f()
}

// PlaceholderRecognizer is wired when no capability is configured.
type PlaceholderRecognizer struct{}

func (PlaceholderRecognizer) Subscribe(context.Context, string, Handler) (Subscription, error) {
	return nil, ErrCaptureUnavailable
}
