package bot

import (
	"context"
	"strings"
	"time"

	"github.com/rohankhatri7/rohanbot/internal/reply"
	"github.com/rs/zerolog"
)

// editor keeps a single reply in sync with a growing completion. Edits are
// coalesced so at most one is issued per interval; finish always brings the
// reply up to date.
type editor struct {
	platform Platform
	inbound  InboundMessage
	thinking string
	interval time.Duration
	now      func() time.Time
	log      zerolog.Logger

	started  bool
	reply    *Sent
	buf      strings.Builder
	shown    string
	lastEdit time.Time
}

// Started posts the placeholder reply.
func (e *editor) Started(ctx context.Context) error {
	e.started = true

	sent, err := e.platform.Reply(ctx, e.inbound, e.thinking)
	if err != nil {
		return &placeholderError{err: err}
	}
	e.reply = &sent
	return nil
}

// Delta appends text and edits the reply if the interval has passed.
func (e *editor) Delta(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	e.buf.WriteString(text)

	if strings.TrimSpace(e.buf.String()) == "" {
		return nil
	}
	if !e.lastEdit.IsZero() && e.now().Sub(e.lastEdit) < e.interval {
		return nil
	}

	e.edit(ctx, e.view())
	return nil
}

// Text returns everything received so far.
func (e *editor) Text() string {
	return e.buf.String()
}

// view is what the reply can show within the platform limit.
func (e *editor) view() string {
	return reply.Truncate(e.buf.String(), e.platform.MaxMessageLength())
}

func (e *editor) edit(ctx context.Context, text string) {
	if e.reply == nil || text == e.shown {
		return
	}
	e.lastEdit = e.now()
	if err := e.platform.Edit(ctx, *e.reply, text); err != nil {
		e.log.Error().
			Err(err).
			Str("channel_id", e.reply.ChannelID).
			Str("message_id", e.reply.MessageID).
			Msg("unable to edit reply")
		return
	}
	e.shown = text
}

// finish makes the final edit and returns the chunks that did not fit in
// the reply.
func (e *editor) finish(ctx context.Context, fallback string) []string {
	text := strings.TrimSpace(e.buf.String())
	if text == "" {
		e.edit(ctx, fallback)
		return nil
	}

	chunks := reply.Split(text, e.platform.MaxMessageLength())
	e.edit(ctx, chunks[0])
	return chunks[1:]
}

// fail replaces the reply content with an error message.
func (e *editor) fail(ctx context.Context, message string) {
	e.edit(ctx, message)
}

type placeholderError struct {
	err error
}

func (e *placeholderError) Error() string {
	return "unable to post placeholder reply: " + e.err.Error()
}

func (e *placeholderError) Unwrap() error {
	return e.err
}
