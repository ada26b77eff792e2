package capture

import (
	"fmt"

	"github.com/echocode/echo/backend/internal/model/capture"
)

// Event drives the capture state machine.
type Event string

const (
	EventStart Event = "start"
	EventStop  Event = "stop"
	EventFail  Event = "fail"
	EventReset Event = "reset"
)

// Transition returns the state reached from current on event.
func Transition(current capture.Status, event Event) (capture.Status, error) {
	if event == EventFail {
		return capture.StatusError, nil
	}

	switch current {
	case capture.StatusIdle:
		switch event {
		case EventStart:
			return capture.StatusListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case capture.StatusListening:
		switch event {
		case EventStop:
			return capture.StatusIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case capture.StatusError:
		switch event {
		case EventReset:
			return capture.StatusIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state capture.Status, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
