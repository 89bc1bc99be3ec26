package reply

import (
	"strings"
	"unicode"
)

// softMargin is how far below the hard limit a chunk should end when a
// sentence boundary is available.
const softMargin = 100

// Split breaks text into chunks of at most max code points. A chunk ends
// after the last newline, '.', '?' or '!' found within the first max-100
// code points; without such a boundary it is cut at max. Whitespace-only
// chunks are dropped and order is preserved.
func Split(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	soft := max - softMargin
	if soft <= 0 {
		soft = max
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= max {
			chunks = appendChunk(chunks, runes)
			break
		}

		cut := lastBoundary(runes[:soft])
		if cut <= 0 {
			cut = max
		}

		chunks = appendChunk(chunks, runes[:cut])
		runes = runes[cut:]
	}
	return chunks
}

// Truncate returns the first chunk Split would produce.
func Truncate(text string, max int) string {
	if len([]rune(text)) <= max {
		return text
	}
	chunks := Split(text, max)
	if len(chunks) == 0 {
		return ""
	}
	return chunks[0]
}

func lastBoundary(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		switch runes[i] {
		case '\n', '.', '?', '!':
			return i + 1
		}
	}
	return -1
}

// appendChunk drops trailing whitespace and blank leading lines but keeps
// the indentation of the first line, so code blocks survive a split.
func appendChunk(chunks []string, runes []rune) []string {
	chunk := strings.TrimRightFunc(string(runes), unicode.IsSpace)
	if chunk == "" {
		return chunks
	}

	lead := len(chunk) - len(strings.TrimLeftFunc(chunk, unicode.IsSpace))
	if i := strings.LastIndexByte(chunk[:lead], '\n'); i >= 0 {
		chunk = chunk[i+1:]
	}
	return append(chunks, chunk)
}
