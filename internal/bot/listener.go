package bot

import (
	"slices"
	"strings"
)

// ExtractPrompt returns the text the user addressed to the bot. Messages
// from bot accounts, messages that do not mention the bot and messages with
// nothing besides the mention are rejected.
func ExtractPrompt(msg InboundMessage, self Identity) (string, bool) {
	if msg.AuthorIsBot {
		return "", false
	}
	if self.ID == "" || !slices.Contains(msg.Mentions, self.ID) {
		return "", false
	}

	prompt := msg.Content
	for _, token := range self.Tokens {
		prompt = removeFold(prompt, token)
	}
	prompt = strings.TrimSpace(prompt)

	return prompt, prompt != ""
}

// removeFold deletes every case-insensitive occurrence of token from s.
// Platforms treat usernames case-insensitively, so @RohanBot and @rohanbot
// address the same account.
func removeFold(s, token string) string {
	if token == "" {
		return s
	}

	var sb strings.Builder
	for i := 0; i < len(s); {
		if i+len(token) <= len(s) && strings.EqualFold(s[i:i+len(token)], token) {
			i += len(token)
			continue
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String()
}
