package capture

import "time"

// Event is one recognition update delivered by a transcription capability.
// Text carries the latest recognized text of the current utterance, not a delta.
type Event struct {
	SessionID  string    `json:"sessionId,omitempty"`
	Text       string    `json:"text"`
	IsFinal    bool      `json:"isFinal"`
	Confidence float64   `json:"confidence,omitempty"`
	Err        error     `json:"-"`
	ReceivedAt time.Time `json:"receivedAt"`
}
