package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rohankhatri7/rohanbot/internal/config"
	"github.com/rs/zerolog"
)

const selfID = "42"

// fakePlatform records every outbound call as a string event.
type fakePlatform struct {
	mu       sync.Mutex
	events   []string
	inbound  chan InboundMessage
	max      int
	replyErr error
	typeErr  error
	nextID   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		inbound: make(chan InboundMessage, 8),
		max:     2000,
	}
}

func (f *fakePlatform) Identity() Identity {
	return Identity{ID: selfID, Tokens: []string{"<@42>", "<@!42>"}}
}

func (f *fakePlatform) MaxMessageLength() int { return f.max }

func (f *fakePlatform) Messages() <-chan InboundMessage { return f.inbound }

func (f *fakePlatform) Typing(ctx context.Context, channelID string) error {
	f.record("typing " + channelID)
	return f.typeErr
}

func (f *fakePlatform) Reply(ctx context.Context, to InboundMessage, text string) (Sent, error) {
	f.record("reply " + text)
	if f.replyErr != nil {
		return Sent{}, f.replyErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return Sent{ChannelID: to.ChannelID, MessageID: fmt.Sprintf("r%d", f.nextID)}, nil
}

func (f *fakePlatform) Edit(ctx context.Context, msg Sent, text string) error {
	f.record("edit " + msg.MessageID + " " + text)
	return nil
}

func (f *fakePlatform) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakePlatform) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

// fakeStreamer replays deltas. When requestErr is set it fails before the
// backend accepts the request; streamErr fails after all deltas.
type fakeStreamer struct {
	deltas     []string
	requestErr error
	streamErr  error
	prompts    []string
}

func (s *fakeStreamer) Stream(ctx context.Context, prompt string, h StreamHandler) error {
	s.prompts = append(s.prompts, prompt)
	if s.requestErr != nil {
		return s.requestErr
	}
	if err := h.Started(ctx); err != nil {
		return err
	}
	for _, d := range s.deltas {
		if err := h.Delta(ctx, d); err != nil {
			return err
		}
	}
	return s.streamErr
}

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (c *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.response, c.err
}

func newTestBot(p *fakePlatform, s Streamer, c Completer, mode string) *Bot {
	b := NewBot(Options{
		Platform:     p,
		Streamer:     s,
		Completer:    c,
		Mode:         mode,
		Messages:     config.DefaultMessages,
		EditInterval: time.Second,
		ChunkDelay:   time.Second,
		Logger:       zerolog.New(io.Discard),
	})
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }
	b.wait = func(ctx context.Context, d time.Duration) error {
		p.record("wait " + d.String())
		return nil
	}
	return b
}

func mention(content string) InboundMessage {
	return InboundMessage{
		ChannelID: "c1",
		MessageID: "m1",
		AuthorID:  "7",
		Mentions:  []string{selfID},
		Content:   content,
	}
}

func TestHandleIgnoresFilteredMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  InboundMessage
	}{
		{
			name: "bot author",
			msg: InboundMessage{
				ChannelID:   "c1",
				AuthorIsBot: true,
				Mentions:    []string{selfID},
				Content:     "<@42> hello",
			},
		},
		{
			name: "not mentioned",
			msg:  InboundMessage{ChannelID: "c1", Mentions: []string{"99"}, Content: "<@99> hello"},
		},
		{
			name: "no mentions",
			msg:  InboundMessage{ChannelID: "c1", Content: "hello"},
		},
		{name: "only mention token", msg: mention("<@42>")},
		{name: "mention token and whitespace", msg: mention("  <@42> \n\t ")},
		{name: "nickname mention and whitespace", msg: mention("<@!42>   ")},
	}

	for _, mode := range []string{config.ModeStream, config.ModeBatch} {
		for _, tt := range tests {
			t.Run(mode+"/"+tt.name, func(t *testing.T) {
				p := newFakePlatform()
				s := &fakeStreamer{deltas: []string{"x"}}
				c := &fakeCompleter{response: "x"}
				newTestBot(p, s, c, mode).Handle(context.Background(), tt.msg)

				if events := p.Events(); len(events) != 0 {
					t.Errorf("expected no outbound calls, got %q", events)
				}
				if len(s.prompts)+len(c.prompts) != 0 {
					t.Error("expected no backend request")
				}
			})
		}
	}
}

func TestHandleStreamEditsReply(t *testing.T) {
	p := newFakePlatform()
	s := &fakeStreamer{deltas: []string{"A", "B"}}
	newTestBot(p, s, nil, config.ModeStream).Handle(context.Background(), mention("<@42>  what's up? "))

	expected := []string{
		"typing c1",
		"reply Thinking...",
		"edit r1 A",
		"edit r1 AB",
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
	if diff := cmp.Diff([]string{"what's up?"}, s.prompts); diff != "" {
		t.Error(diff)
	}
}

func TestHandleStreamEditsEveryIntervalWhenTimePasses(t *testing.T) {
	p := newFakePlatform()
	s := &fakeStreamer{deltas: []string{"A", "B", "C"}}
	b := newTestBot(p, s, nil, config.ModeStream)

	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time {
		current = current.Add(2 * time.Second)
		return current
	}
	b.Handle(context.Background(), mention("<@42> go"))

	expected := []string{
		"typing c1",
		"reply Thinking...",
		"edit r1 A",
		"edit r1 AB",
		"edit r1 ABC",
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleStreamSkipsWhitespaceOnlyEdits(t *testing.T) {
	p := newFakePlatform()
	s := &fakeStreamer{deltas: []string{" ", "\n", "Hi"}}
	newTestBot(p, s, nil, config.ModeStream).Handle(context.Background(), mention("<@42> go"))

	expected := []string{
		"typing c1",
		"reply Thinking...",
		"edit r1  \nHi",
		"edit r1 Hi",
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleStreamEmptyResponseUsesFallback(t *testing.T) {
	p := newFakePlatform()
	s := &fakeStreamer{}
	newTestBot(p, s, nil, config.ModeStream).Handle(context.Background(), mention("<@42> go"))

	expected := []string{
		"typing c1",
		"reply Thinking...",
		"edit r1 " + config.DefaultMessages.Fallback,
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleStreamRequestFailure(t *testing.T) {
	p := newFakePlatform()
	s := &fakeStreamer{requestErr: errors.New("HTTP 500: err")}
	newTestBot(p, s, nil, config.ModeStream).Handle(context.Background(), mention("<@42> go"))

	expected := []string{
		"typing c1",
		"reply " + config.DefaultMessages.RequestError,
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleStreamErrorEditsReply(t *testing.T) {
	p := newFakePlatform()
	s := &fakeStreamer{deltas: []string{"par"}, streamErr: io.ErrUnexpectedEOF}
	newTestBot(p, s, nil, config.ModeStream).Handle(context.Background(), mention("<@42> go"))

	expected := []string{
		"typing c1",
		"reply Thinking...",
		"edit r1 par",
		"edit r1 " + config.DefaultMessages.StreamError,
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleStreamPlaceholderFailureStops(t *testing.T) {
	p := newFakePlatform()
	p.replyErr = errors.New("missing permissions")
	s := &fakeStreamer{deltas: []string{"A"}}
	newTestBot(p, s, nil, config.ModeStream).Handle(context.Background(), mention("<@42> go"))

	expected := []string{
		"typing c1",
		"reply Thinking...",
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleStreamOverflowIsChunked(t *testing.T) {
	p := newFakePlatform()
	first := strings.Repeat("a", 1500) + "."
	second := strings.Repeat("b", 1000)
	s := &fakeStreamer{deltas: []string{first, second}}
	newTestBot(p, s, nil, config.ModeStream).Handle(context.Background(), mention("<@42> go"))

	expected := []string{
		"typing c1",
		"reply Thinking...",
		"edit r1 " + first,
		"wait 1s",
		"reply " + second,
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleTypingFailureIsIgnored(t *testing.T) {
	p := newFakePlatform()
	p.typeErr = errors.New("rate limited")
	c := &fakeCompleter{response: "Hello"}
	newTestBot(p, nil, c, config.ModeBatch).Handle(context.Background(), mention("<@42> hi"))

	expected := []string{
		"typing c1",
		"reply Hello",
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleBatchCleansResponse(t *testing.T) {
	p := newFakePlatform()
	c := &fakeCompleter{response: "<|assistant|> Hello <|end|>"}
	newTestBot(p, nil, c, config.ModeBatch).Handle(context.Background(), mention("<@42> hi"))

	expected := []string{
		"typing c1",
		"reply Hello",
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleBatchEmptyResponseSendsFallback(t *testing.T) {
	p := newFakePlatform()
	c := &fakeCompleter{response: "<|assistant|>  <|end|> "}
	newTestBot(p, nil, c, config.ModeBatch).Handle(context.Background(), mention("<@42> hi"))

	expected := []string{
		"typing c1",
		"reply " + config.DefaultMessages.Fallback,
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleBatchChunksLongResponse(t *testing.T) {
	p := newFakePlatform()
	text := strings.Repeat("a", 1850) + "." + strings.Repeat("b", 649)
	c := &fakeCompleter{response: text}
	newTestBot(p, nil, c, config.ModeBatch).Handle(context.Background(), mention("<@42> hi"))

	expected := []string{
		"typing c1",
		"reply " + strings.Repeat("a", 1850) + ".",
		"wait 1s",
		"reply " + strings.Repeat("b", 649),
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestHandleBatchRequestFailure(t *testing.T) {
	p := newFakePlatform()
	c := &fakeCompleter{err: errors.New("HTTP 500: err")}
	newTestBot(p, nil, c, config.ModeBatch).Handle(context.Background(), mention("<@42> hi"))

	expected := []string{
		"typing c1",
		"reply " + config.DefaultMessages.RequestError,
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestSendChunksStopsWhenWaitIsCancelled(t *testing.T) {
	p := newFakePlatform()
	b := newTestBot(p, nil, nil, config.ModeBatch)
	b.wait = sleep
	b.chunkDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.sendChunks(ctx, mention("hi"), []string{"one", "two"}, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if diff := cmp.Diff([]string{"reply one"}, p.Events()); diff != "" {
		t.Error(diff)
	}
}

func TestRunDispatchesUntilChannelCloses(t *testing.T) {
	p := newFakePlatform()
	c := &fakeCompleter{response: "pong"}
	b := newTestBot(p, nil, c, config.ModeBatch)

	p.inbound <- mention("<@42> ping")
	p.inbound <- InboundMessage{ChannelID: "c2", Content: "ignored"}
	close(p.inbound)

	done := make(chan struct{})
	go func() {
		b.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}

	expected := []string{
		"typing c1",
		"reply pong",
	}
	if diff := cmp.Diff(expected, p.Events()); diff != "" {
		t.Error(diff)
	}
}
