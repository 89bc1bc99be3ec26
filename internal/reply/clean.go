package reply

import (
	"regexp"
	"strings"
)

var (
	leadingRole = regexp.MustCompile(`^\s*<\|assistant\|>\s*`)
	roleMarker  = regexp.MustCompile(`<\|[^|]*\|>`)
)

// Clean strips chat-template role markers such as <|assistant|> and <|end|>
// from a completion and trims the result. It returns fallback when nothing
// is left.
func Clean(text, fallback string) string {
	text = leadingRole.ReplaceAllString(text, "")
	text = roleMarker.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}
