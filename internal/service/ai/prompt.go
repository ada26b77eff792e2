package ai

import (
	"strings"
)

const codeSystemPrompt = `You are Echo, a Python coding assistant driven by voice.
The user dictates what they want. Write complete, runnable Python 3 code for the request.
When existing code is supplied, modify or extend it instead of starting over, and return the whole updated program.

Reply with a single JSON object and nothing else:
{"code": "<the full Python source>", "explanation": "<two or three sentences on what the code does>"}

Rules:
- "code" must never be empty.
- Do not wrap the JSON in markdown fences.
- Prefer the standard library. Use print for any output the user should see.`

// buildUserPrompt folds the dictated prompt and optional existing code into one user turn.
func buildUserPrompt(prompt, existingCode string) string {
	var builder strings.Builder
	builder.WriteString("Request:\n")
	builder.WriteString(strings.TrimSpace(prompt))

	if code := strings.TrimSpace(existingCode); code != "" {
		builder.WriteString("\n\nExisting code:\n```python\n")
		builder.WriteString(code)
		builder.WriteString("\n```")
	}
	return builder.String()
}
