package capture

// Status is the externally visible state of a capture session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusListening Status = "listening"
	StatusError     Status = "error"
)

// Session is the single live voice-capture session owned by the capture controller.
type Session struct {
	ID         string `json:"id,omitempty"`
	Status     Status `json:"status"`
	Transcript string `json:"transcript"`
}
