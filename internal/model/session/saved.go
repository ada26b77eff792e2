package session

// SavedSession is a named, persisted snapshot of a prompt/code pair.
type SavedSession struct {
	ID        int64  `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Code      string `json:"code" yaml:"code"`
	Prompt    string `json:"prompt" yaml:"prompt"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
}
