package generation

// Request is the payload sent to the generation service.
type Request struct {
	Prompt       string `json:"prompt"`
	ExistingCode string `json:"existing_code"`
}

// Result is the generation service reply. Code and Explanation always travel together.
type Result struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
}
