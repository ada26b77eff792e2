package generation

import "time"

// ConversationEntry records one successful generation in the in-memory log.
type ConversationEntry struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Code        string    `json:"code"`
	Explanation string    `json:"explanation"`
	Timestamp   time.Time `json:"timestamp"`
}

// Artifact is a downloadable plain-text export of generated code.
type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}
