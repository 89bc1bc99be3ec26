// Package discord connects the bot to Discord through a discordgo gateway
// session.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rohankhatri7/rohanbot/internal/bot"
	"github.com/rs/zerolog"
)

const (
	maxMessageLength = 2000
	inboundBuffer    = 64
)

// Session implements bot.Platform for Discord.
type Session struct {
	dg      *discordgo.Session
	inbound chan bot.InboundMessage
	done    chan struct{}
	log     zerolog.Logger

	mu   sync.RWMutex
	self bot.Identity

	closeOnce sync.Once
}

// New creates a session for a bot token. The gateway is not contacted until
// Open.
func New(token string, log zerolog.Logger) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}

	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	s := &Session{
		dg:      dg,
		inbound: make(chan bot.InboundMessage, inboundBuffer),
		done:    make(chan struct{}),
		log:     log,
	}

	dg.AddHandler(s.onReady)
	dg.AddHandler(s.onMessageCreate)

	return s, nil
}

// Open connects to the gateway.
func (s *Session) Open(ctx context.Context) error {
	if err := s.dg.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	return nil
}

// Close disconnects from the gateway. Messages still arriving are dropped.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.dg.Close()
}

func (s *Session) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}

	s.mu.Lock()
	s.self = identity(r.User.ID)
	s.mu.Unlock()

	s.log.Info().Str("user", r.User.Username).Str("user_id", r.User.ID).Msg("discord bot connected")
}

func (s *Session) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}

	select {
	case s.inbound <- toInbound(m.Message):
	case <-s.done:
	}
}

func identity(userID string) bot.Identity {
	return bot.Identity{
		ID:     userID,
		Tokens: []string{"<@" + userID + ">", "<@!" + userID + ">"},
	}
}

func toInbound(m *discordgo.Message) bot.InboundMessage {
	mentions := make([]string, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		if u != nil {
			mentions = append(mentions, u.ID)
		}
	}

	msg := bot.InboundMessage{
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Mentions:  mentions,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorIsBot = m.Author.Bot
	}
	return msg
}

func (s *Session) Identity() bot.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

func (s *Session) MaxMessageLength() int { return maxMessageLength }

func (s *Session) Messages() <-chan bot.InboundMessage { return s.inbound }

func (s *Session) Typing(ctx context.Context, channelID string) error {
	return s.dg.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

func (s *Session) Reply(ctx context.Context, to bot.InboundMessage, text string) (bot.Sent, error) {
	ref := &discordgo.MessageReference{
		MessageID: to.MessageID,
		ChannelID: to.ChannelID,
	}
	m, err := s.dg.ChannelMessageSendReply(to.ChannelID, text, ref, discordgo.WithContext(ctx))
	if err != nil {
		return bot.Sent{}, fmt.Errorf("discord reply: %w", err)
	}
	return bot.Sent{ChannelID: m.ChannelID, MessageID: m.ID}, nil
}

func (s *Session) Edit(ctx context.Context, msg bot.Sent, text string) error {
	if _, err := s.dg.ChannelMessageEdit(msg.ChannelID, msg.MessageID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord edit: %w", err)
	}
	return nil
}
