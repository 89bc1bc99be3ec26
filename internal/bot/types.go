package bot

import "context"

// InboundMessage is a user-authored message delivered by the platform.
type InboundMessage struct {
	ChannelID   string
	MessageID   string
	AuthorID    string
	AuthorIsBot bool
	// Mentions holds the ids of the users mentioned in the message.
	Mentions []string
	Content  string
}

// Sent references a message the bot has posted.
type Sent struct {
	ChannelID string
	MessageID string
}

// Identity describes the bot account on the platform.
type Identity struct {
	ID string
	// Tokens are the forms a mention of the bot takes in message text.
	Tokens []string
}

// Platform is the messaging platform connection. Implementations must be
// safe for concurrent use.
type Platform interface {
	Identity() Identity
	MaxMessageLength() int
	Messages() <-chan InboundMessage
	Typing(ctx context.Context, channelID string) error
	Reply(ctx context.Context, to InboundMessage, text string) (Sent, error)
	Edit(ctx context.Context, msg Sent, text string) error
}

// StreamHandler receives the progress of a streaming completion.
type StreamHandler interface {
	// Started is called once the backend has accepted the request.
	Started(ctx context.Context) error
	// Delta is called for every non-empty text fragment in order.
	Delta(ctx context.Context, text string) error
}

// Streamer produces a completion incrementally.
type Streamer interface {
	Stream(ctx context.Context, prompt string, h StreamHandler) error
}

// Completer produces a completion in a single blocking call.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
