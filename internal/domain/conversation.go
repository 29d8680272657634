package domain

import (
	"strings"
	"time"
)

// ActiveWindow is how long a conversation stays eligible for lookup after
// it was created.
const ActiveWindow = 24 * time.Hour

// NamePlaceholder is replaced by the user key in lesson prompts and starters.
const NamePlaceholder = "{{NAME}}"

// Message is a single entry of a conversation history. FileName is set only
// for voice-derived user messages; Score only for user messages that went
// through grammar evaluation.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	FileName  string `json:"fileName,omitempty"`
	Score     *int   `json:"score,omitempty"`
	DateTime  string `json:"dateTime,omitempty"`
	MessageID int    `json:"messageId,omitempty"`
}

// Chat strips persistence-only fields.
func (m Message) Chat() ChatMessage {
	return ChatMessage{Role: m.Role, Content: m.Content}
}

// ChatLog is the persisted shape of a history, stored as {"messages": [...]}.
type ChatLog struct {
	Messages []Message `json:"messages"`
}

// Conversation is a time-windowed practice session for one chat.
type Conversation struct {
	ID         string
	UserKey    string
	ChatKey    int64
	Messages   []Message
	TokenUsage int
	CreatedAt  time.Time
	Topics     string
}

// History returns the role/content pairs of the stored messages followed by
// any extra messages, without touching the conversation.
func (c *Conversation) History(extra ...Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(c.Messages)+len(extra))
	for _, m := range c.Messages {
		out = append(out, m.Chat())
	}
	for _, m := range extra {
		out = append(out, m.Chat())
	}
	return out
}

// WithMessages returns a copy of the history with msgs appended. The
// receiver's slice is never shared with the result.
func (c *Conversation) WithMessages(msgs ...Message) []Message {
	out := make([]Message, 0, len(c.Messages)+len(msgs))
	out = append(out, c.Messages...)
	return append(out, msgs...)
}

// LastAssistantMessage returns the most recent assistant message, if any.
func (c *Conversation) LastAssistantMessage() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// IsActive reports whether the conversation is still inside ActiveWindow at now.
func (c *Conversation) IsActive(now time.Time) bool {
	return c.CreatedAt.After(now.Add(-ActiveWindow))
}

// Lesson holds the prompt material used to seed new conversations.
type Lesson struct {
	Prompt  string
	Starter string
	Topics  string
}

// NewConversation carries what is needed to create a conversation.
type NewConversation struct {
	UserKey      string
	ChatKey      int64
	SystemPrompt string
	Starter      string
	Topics       string
}

// SeedMessages returns the system and starter messages with the user key
// substituted for NamePlaceholder.
func (n NewConversation) SeedMessages() []Message {
	return []Message{
		{Role: RoleSystem, Content: ApplyName(n.SystemPrompt, n.UserKey)},
		{Role: RoleAssistant, Content: ApplyName(n.Starter, n.UserKey)},
	}
}

// ApplyName substitutes name for NamePlaceholder and trims the result.
func ApplyName(template, name string) string {
	return strings.TrimSpace(strings.ReplaceAll(template, NamePlaceholder, name))
}
