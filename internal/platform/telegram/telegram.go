// Package telegram connects the bot to Telegram through long polling.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf16"

	tbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rohankhatri7/rohanbot/internal/bot"
	"github.com/rs/zerolog"
)

const (
	maxMessageLength = 4096
	inboundBuffer    = 64
)

// Session implements bot.Platform for Telegram.
type Session struct {
	tg      *tbot.Bot
	inbound chan bot.InboundMessage
	done    chan struct{}
	cancel  context.CancelFunc
	log     zerolog.Logger

	mu       sync.RWMutex
	self     bot.Identity
	username string

	closeOnce sync.Once
}

// New creates a session for a bot token. Polling starts in Open.
func New(token string, log zerolog.Logger) (*Session, error) {
	s := &Session{
		inbound: make(chan bot.InboundMessage, inboundBuffer),
		done:    make(chan struct{}),
		log:     log,
	}

	opts := []tbot.Option{
		tbot.WithDefaultHandler(s.onUpdate),
		tbot.WithSkipGetMe(),
	}

	tg, err := tbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	s.tg = tg

	return s, nil
}

// Open resolves the bot identity and starts polling for updates.
func (s *Session) Open(ctx context.Context) error {
	me, err := s.tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram get me: %w", err)
	}
	s.setIdentity(me)

	s.log.Info().Str("user", me.Username).Int64("user_id", me.ID).Msg("telegram bot connected")

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.tg.Start(runCtx)

	return nil
}

// Close stops polling. Messages still arriving are dropped.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
	})
	return nil
}

func (s *Session) setIdentity(me *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = me.Username
	s.self = bot.Identity{
		ID:     strconv.FormatInt(me.ID, 10),
		Tokens: []string{"@" + me.Username},
	}
}

func (s *Session) onUpdate(ctx context.Context, _ *tbot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	s.mu.RLock()
	self, username := s.self, s.username
	s.mu.RUnlock()

	select {
	case s.inbound <- toInbound(update.Message, self.ID, username):
	case <-s.done:
	case <-ctx.Done():
	}
}

// toInbound converts a Telegram message. A @username mention of the bot, or
// a text mention of its user, is reported as a mention of selfID.
func toInbound(m *models.Message, selfID, username string) bot.InboundMessage {
	msg := bot.InboundMessage{
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		MessageID: strconv.Itoa(m.ID),
		Content:   m.Text,
	}
	if m.From != nil {
		msg.AuthorID = strconv.FormatInt(m.From.ID, 10)
		msg.AuthorIsBot = m.From.IsBot
	}

	text := utf16.Encode([]rune(m.Text))
	for _, e := range m.Entities {
		switch e.Type {
		case models.MessageEntityTypeMention:
			if e.Offset < 0 || e.Offset+e.Length > len(text) {
				continue
			}
			name := string(utf16.Decode(text[e.Offset : e.Offset+e.Length]))
			if username != "" && strings.EqualFold(name, "@"+username) {
				msg.Mentions = append(msg.Mentions, selfID)
			}
		case models.MessageEntityTypeTextMention:
			if e.User != nil {
				msg.Mentions = append(msg.Mentions, strconv.FormatInt(e.User.ID, 10))
			}
		}
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
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", channelID, err)
	}
	_, err = s.tg.SendChatAction(ctx, &tbot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
	return err
}

func (s *Session) Reply(ctx context.Context, to bot.InboundMessage, text string) (bot.Sent, error) {
	chatID, err := strconv.ParseInt(to.ChannelID, 10, 64)
	if err != nil {
		return bot.Sent{}, fmt.Errorf("invalid chat id %q: %w", to.ChannelID, err)
	}

	params := &tbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if id, err := strconv.Atoi(to.MessageID); err == nil {
		params.ReplyParameters = &models.ReplyParameters{MessageID: id}
	}

	m, err := s.tg.SendMessage(ctx, params)
	if err != nil {
		return bot.Sent{}, fmt.Errorf("telegram reply: %w", err)
	}
	return bot.Sent{ChannelID: to.ChannelID, MessageID: strconv.Itoa(m.ID)}, nil
}

func (s *Session) Edit(ctx context.Context, msg bot.Sent, text string) error {
	chatID, err := strconv.ParseInt(msg.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChannelID, err)
	}
	messageID, err := strconv.Atoi(msg.MessageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", msg.MessageID, err)
	}

	if _, err := s.tg.EditMessageText(ctx, &tbot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}); err != nil {
		return fmt.Errorf("telegram edit: %w", err)
	}
	return nil
}
