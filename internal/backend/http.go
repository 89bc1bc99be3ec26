package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/a-h/jsonapi"
	"github.com/rohankhatri7/rohanbot/internal/bot"
	"github.com/rohankhatri7/rohanbot/internal/stream"
	"github.com/rs/zerolog"
)

const readChunkSize = 1024

// StreamRequest is the body of a streaming chat request.
type StreamRequest struct {
	Content string `json:"content"`
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the body of a blocking chat request.
type CompletionRequest struct {
	Messages []Message `json:"messages"`
}

// CompletionResponse is the body returned for a blocking chat request.
type CompletionResponse struct {
	Response string `json:"response"`
}

// HTTP talks to the chat API at a fixed endpoint.
type HTTP struct {
	url    string
	system string
	log    zerolog.Logger
}

// ErrInvalidURL is returned for endpoints that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("url must be an absolute http or https url")

// NewHTTP creates a client for the endpoint at rawURL.
func NewHTTP(rawURL, system string, log zerolog.Logger) (*HTTP, error) {
	u, err := jsonapi.URL(rawURL).String()
	if err != nil {
		return nil, fmt.Errorf("invalid chat api url %q: %w", rawURL, err)
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("invalid chat api url %q: %w", rawURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("invalid chat api url %q: %w", rawURL, ErrInvalidURL)
	}
	return &HTTP{
		url:    u,
		system: system,
		log:    log,
	}, nil
}

// Stream posts the prompt and feeds every text delta of the response to h.
// Reading stops at the [DONE] record or at the end of the body.
func (c *HTTP) Stream(ctx context.Context, prompt string, h bot.StreamHandler) error {
	res, err := c.post(ctx, StreamRequest{Content: prompt}, "text/event-stream")
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := h.Started(ctx); err != nil {
		return err
	}

	parser := stream.NewParser()
	chunk := make([]byte, readChunkSize)
	for {
		n, readErr := res.Body.Read(chunk)
		if n > 0 {
			deltas, malformed := parser.Feed(chunk[:n])
			c.logMalformed(malformed...)
			for _, d := range deltas {
				if err := h.Delta(ctx, d); err != nil {
					return err
				}
			}
		}
		if parser.Done() {
			return nil
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read response body: %w", readErr)
		}
	}

	delta, err := parser.Flush()
	if err != nil {
		c.logMalformed(err)
		return nil
	}
	if delta != "" {
		return h.Delta(ctx, delta)
	}
	return nil
}

// Complete posts the prompt as a single-turn conversation and returns the
// full response text.
func (c *HTTP) Complete(ctx context.Context, prompt string) (string, error) {
	req := CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: c.system},
			{Role: "user", Content: prompt},
		},
	}

	res, err := c.post(ctx, req, "application/json")
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var resp CompletionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Response, nil
}

// post sends body as JSON. A non-2xx status is returned as a
// jsonapi.InvalidStatusError carrying the response body.
func (c *HTTP) post(ctx context.Context, body any, accept string) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)

	c.log.Debug().Str("url", c.url).Str("accept", accept).Msg("sending chat request")

	res, err := jsonapi.Raw(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP request: %w", err)
	}

	c.log.Debug().Int("status", res.StatusCode).Msg("chat response received")

	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()
		respBody, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("chat request failed: %w", jsonapi.InvalidStatusError{
			Status: res.StatusCode,
			Body:   string(respBody),
		})
	}

	return res, nil
}

func (c *HTTP) logMalformed(errs ...error) {
	for _, err := range errs {
		var me *stream.MalformedError
		if errors.As(err, &me) {
			c.log.Warn().Err(me.Err).Str("line", me.Line).Msg("skipping malformed stream record")
			continue
		}
		c.log.Warn().Err(err).Msg("skipping malformed stream record")
	}
}
