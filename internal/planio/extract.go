// Package planio turns raw plan text (model output, files, tool arguments)
// into typed plans, or into a rejected verdict when the text is not a plan.
package planio

import "strings"

const (
	fenceJSON = "```json"
	fence     = "```"
)

// ExtractJSON strips a markdown code fence from model output. Text after the
// first "```json" marker is kept, then cut at the next "```". Unfenced text is
// returned trimmed.
func ExtractJSON(text string) string {
	if _, after, ok := strings.Cut(text, fenceJSON); ok {
		text = after
	}
	if before, _, ok := strings.Cut(text, fence); ok {
		text = before
	}
	return strings.TrimSpace(text)
}

// trimToObject drops prose around the outermost {...} when the text does not
// already start with a JSON value.
func trimToObject(text string) string {
	if text == "" || text[0] == '{' || text[0] == '[' {
		return text
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return text
	}
	return text[start : end+1]
}
