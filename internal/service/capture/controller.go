// Package capture owns the lifecycle of the voice-capture session and its transcript.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/echocode/echo/backend/internal/logging"
	"github.com/echocode/echo/backend/internal/model/capture"
)

// FailureMessage replaces the transcript when the capability reports an error mid-session.
const FailureMessage = "Speech recognition failed. Please try again."

// Controller is the capture state machine. Events from a subscription that is no
// longer current are discarded.
type Controller struct {
	logger     *slog.Logger
	recognizer Recognizer

	mu         sync.Mutex
	state      capture.Status
	sessionID  string
	transcript string
	sub        Subscription

	watchMu  sync.RWMutex
	watchers map[int]func(capture.Session)
	nextID   int
}

// NewController constructs a capture controller. A nil recognizer makes Start report
// ErrCaptureUnavailable.
func NewController(logger *slog.Logger, recognizer Recognizer) *Controller {
	if recognizer == nil {
		recognizer = PlaceholderRecognizer{}
	}
	return &Controller{
		logger:     logging.OrDiscard(logger),
		recognizer: recognizer,
		state:      capture.StatusIdle,
		watchers:   make(map[int]func(capture.Session)),
	}
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() capture.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Transcript returns the current best transcript.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

func (c *Controller) snapshotLocked() capture.Session {
	return capture.Session{ID: c.sessionID, Status: c.state, Transcript: c.transcript}
}

// Start clears the transcript, enters listening and subscribes to the recognizer.
func (c *Controller) Start(ctx context.Context) (capture.Session, error) {
	c.mu.Lock()
	next, err := Transition(c.state, EventStart)
	if err != nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, fmt.Errorf("%w: %v", ErrAlreadyListening, err)
	}
	id := uuid.NewString()
	c.state = next
	c.sessionID = id
	c.transcript = ""
	c.mu.Unlock()

	sub, err := c.recognizer.Subscribe(ctx, id, func(ev capture.Event) {
		c.apply(id, ev)
	})
	if err != nil {
		c.mu.Lock()
		if c.sessionID == id {
			c.toErrorAndReset()
		}
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.logger.Warn("capture start failed", "session", id, "err", err)
		c.notify(snap)
		if errors.Is(err, ErrCaptureUnavailable) {
			return snap, err
		}
		return snap, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	c.mu.Lock()
	if c.sessionID != id || c.state != capture.StatusListening {
		// Stopped or failed while subscribing.
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.unsubscribe(id, sub)
		return snap, nil
	}
	c.sub = sub
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("capture started", "session", id)
	c.notify(snap)
	return snap, nil
}

// Stop unsubscribes and returns to idle. Stopping while idle is a no-op.
func (c *Controller) Stop(_ context.Context) (capture.Session, error) {
	c.mu.Lock()
	if c.state != capture.StatusListening {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}
	next, err := Transition(c.state, EventStop)
	if err != nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}
	c.state = next
	sub := c.sub
	c.sub = nil
	id := c.sessionID
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.unsubscribe(id, sub)
	c.logger.Info("capture stopped", "session", id, "transcript_len", len(snap.Transcript))
	c.notify(snap)
	return snap, nil
}

// SetTranscript overwrites the transcript while idle, e.g. after a manual edit or
// when a saved prompt is restored.
func (c *Controller) SetTranscript(text string) (capture.Session, error) {
	c.mu.Lock()
	if c.state == capture.StatusListening {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrAlreadyListening
	}
	c.transcript = text
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return snap, nil
}

// Watch registers fn to be called with a snapshot after every change. The returned
// func removes the registration.
func (c *Controller) Watch(fn func(capture.Session)) func() {
	c.watchMu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.watchMu.Unlock()

	return func() {
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
	}
}

// apply handles one recognition event for session id.
func (c *Controller) apply(id string, ev capture.Event) {
	c.mu.Lock()
	if c.sessionID != id || c.state != capture.StatusListening {
		c.mu.Unlock()
		c.logger.Debug("stale capture event discarded", "session", id)
		return
	}

	if ev.Err != nil {
		c.transcript = FailureMessage
		sub := c.sub
		c.sub = nil
		c.toErrorAndReset()
		snap := c.snapshotLocked()
		c.mu.Unlock()

		c.logger.Error("speech recognition error", "session", id, "err", ev.Err)
		c.unsubscribe(id, sub)
		c.notify(snap)
		return
	}

	c.transcript = ev.Text
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

// toErrorAndReset passes through the error state back to idle. Callers hold c.mu.
func (c *Controller) toErrorAndReset() {
	if next, err := Transition(c.state, EventFail); err == nil {
		c.state = next
	}
	if next, err := Transition(c.state, EventReset); err == nil {
		c.state = next
	}
}

func (c *Controller) unsubscribe(id string, sub Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		c.logger.Warn("capture unsubscribe failed", "session", id, "err", err)
	}
}

func (c *Controller) notify(snap capture.Session) {
	c.watchMu.RLock()
	fns := make([]func(capture.Session), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.watchMu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}
