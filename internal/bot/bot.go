package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rohankhatri7/rohanbot/internal/config"
	"github.com/rohankhatri7/rohanbot/internal/reply"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// Options configures a Bot.
type Options struct {
	Platform  Platform
	Streamer  Streamer
	Completer Completer
	Mode      string
	Messages  config.Messages

	EditInterval time.Duration
	ChunkDelay   time.Duration

	Logger zerolog.Logger
}

// Bot relays prompts addressed to it to the backend and posts the
// completions back. Each inbound message is handled by its own goroutine.
type Bot struct {
	platform  Platform
	streamer  Streamer
	completer Completer
	mode      string
	messages  config.Messages

	editInterval time.Duration
	chunkDelay   time.Duration

	log  zerolog.Logger
	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

// NewBot creates a bot from options.
func NewBot(opts Options) *Bot {
	return &Bot{
		platform:     opts.Platform,
		streamer:     opts.Streamer,
		completer:    opts.Completer,
		mode:         opts.Mode,
		messages:     opts.Messages,
		editInterval: opts.EditInterval,
		chunkDelay:   opts.ChunkDelay,
		log:          opts.Logger,
		now:          time.Now,
		wait:         sleep,
	}
}

// Run handles inbound messages until ctx is done or the platform closes its
// message channel, then waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context) {
	defer b.wg.Wait()

	messages := b.platform.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.Handle(ctx, msg)
			}()
		}
	}
}

// Handle processes a single inbound message.
func (b *Bot) Handle(ctx context.Context, msg InboundMessage) {
	prompt, ok := ExtractPrompt(msg, b.platform.Identity())
	if !ok {
		return
	}

	b.log.Info().
		Str("channel_id", msg.ChannelID).
		Str("message_id", msg.MessageID).
		Int("prompt_length", len(prompt)).
		Msg("prompt received")

	if err := b.platform.Typing(ctx, msg.ChannelID); err != nil {
		b.log.Warn().Err(err).Str("channel_id", msg.ChannelID).Msg("unable to send typing indicator")
	}

	if b.mode == config.ModeBatch {
		b.handleBatch(ctx, msg, prompt)
		return
	}
	b.handleStream(ctx, msg, prompt)
}

func (b *Bot) handleStream(ctx context.Context, msg InboundMessage, prompt string) {
	e := &editor{
		platform: b.platform,
		inbound:  msg,
		thinking: b.messages.Thinking,
		interval: b.editInterval,
		now:      b.now,
		log:      b.log,
	}

	err := b.streamer.Stream(ctx, prompt, e)

	var pe *placeholderError
	switch {
	case err == nil:
	case errors.As(err, &pe):
		b.log.Error().Err(err).Str("channel_id", msg.ChannelID).Msg("unable to post reply")
		return
	case !e.started:
		b.log.Error().Err(err).Str("channel_id", msg.ChannelID).Msg("ai request failed")
		b.notify(ctx, msg, b.messages.RequestError)
		return
	default:
		b.log.Error().
			Err(err).
			Str("channel_id", msg.ChannelID).
			Int("received_length", len(e.Text())).
			Msg("ai stream failed")
		e.fail(ctx, b.messages.StreamError)
		return
	}

	rest := e.finish(ctx, b.messages.Fallback)
	b.log.Info().
		Str("channel_id", msg.ChannelID).
		Int("response_length", len(e.Text())).
		Int("chunks", len(rest)+1).
		Msg("ai stream completed")

	if len(rest) == 0 {
		return
	}
	if err := b.sendChunks(ctx, msg, rest, true); err != nil {
		b.log.Error().Err(err).Str("channel_id", msg.ChannelID).Msg("unable to send overflow chunks")
	}
}

func (b *Bot) handleBatch(ctx context.Context, msg InboundMessage, prompt string) {
	response, err := b.completer.Complete(ctx, prompt)
	if err != nil {
		b.log.Error().Err(err).Str("channel_id", msg.ChannelID).Msg("ai request failed")
		b.notify(ctx, msg, b.messages.RequestError)
		return
	}

	text := reply.Clean(response, b.messages.Fallback)
	chunks := reply.Split(text, b.platform.MaxMessageLength())

	b.log.Info().
		Str("channel_id", msg.ChannelID).
		Int("response_length", len(text)).
		Int("chunks", len(chunks)).
		Msg("ai response received")

	if err := b.sendChunks(ctx, msg, chunks, false); err != nil {
		b.log.Error().Err(err).Str("channel_id", msg.ChannelID).Msg("unable to send reply")
		b.notify(ctx, msg, b.messages.RequestError)
	}
}

// notify replies with an error message. Failures are only logged.
func (b *Bot) notify(ctx context.Context, to InboundMessage, text string) {
	if _, err := b.platform.Reply(ctx, to, text); err != nil {
		b.log.Error().Err(err).Str("channel_id", to.ChannelID).Msg("unable to send error message")
	}
}

type Params struct {
	fx.In

	Config    *config.Config
	Platform  Platform
	Streamer  Streamer
	Completer Completer
	Logger    zerolog.Logger
}

type Result struct {
	fx.Out

	Bot *Bot
}

func New(lc fx.Lifecycle, p Params) (Result, error) {
	b := NewBot(Options{
		Platform:     p.Platform,
		Streamer:     p.Streamer,
		Completer:    p.Completer,
		Mode:         p.Config.Mode,
		Messages:     p.Config.Messages,
		EditInterval: p.Config.EditInterval,
		ChunkDelay:   p.Config.ChunkDelay,
		Logger:       p.Logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(
		fx.Hook{
			OnStart: func(context.Context) error {
				p.Logger.Info().Str("mode", p.Config.Mode).Msg("starting message dispatcher...")
				go func() {
					defer close(done)
					b.Run(ctx)
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				p.Logger.Info().Msg("stopping message dispatcher...")
				cancel()
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			},
		},
	)

	return Result{Bot: b}, nil
}

func Module() fx.Option {
	return fx.Module(
		"bot",
		fx.Provide(
			New,
		),
		fx.Invoke(
			func(bot *Bot) {},
		),
	)
}
