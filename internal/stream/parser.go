// Package stream decodes the newline-delimited completion stream served by
// the chat API. Each record is either `data: <json>` or bare `<json>`, and
// `data: [DONE]` marks the end of the stream.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	dataPrefix = "data: "
	doneRecord = "data: [DONE]"
)

// record is a single decoded line of the stream.
type record struct {
	Response string `json:"response"`
}

// MalformedError reports a record that could not be decoded.
type MalformedError struct {
	Line string
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed stream record %q: %v", e.Line, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Parser turns arbitrarily sized chunks into text deltas. Only complete,
// newline-terminated records are decoded; a trailing partial line is kept
// until the next Feed or the final Flush.
type Parser struct {
	pending []byte
	done    bool
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes one chunk and returns the deltas of every record it
// completed. Malformed records are skipped and returned as errors.
func (p *Parser) Feed(chunk []byte) (deltas []string, malformed []error) {
	p.pending = append(p.pending, chunk...)

	for {
		i := bytes.IndexByte(p.pending, '\n')
		if i < 0 {
			break
		}
		line := string(p.pending[:i])
		p.pending = p.pending[i+1:]

		delta, err := p.parseLine(line)
		if err != nil {
			malformed = append(malformed, err)
			continue
		}
		if delta != "" {
			deltas = append(deltas, delta)
		}
	}

	return deltas, malformed
}

// Flush decodes whatever is left once the stream has ended.
func (p *Parser) Flush() (string, error) {
	line := string(p.pending)
	p.pending = nil
	return p.parseLine(line)
}

// Done reports whether the [DONE] sentinel has been seen.
func (p *Parser) Done() bool {
	return p.done
}

func (p *Parser) parseLine(line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	if line == doneRecord {
		p.done = true
		return "", nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))

	var r record
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return "", &MalformedError{Line: line, Err: err}
	}
	return r.Response, nil
}
