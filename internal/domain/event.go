package domain

import "time"

// InboundEvent is one message received from the messaging platform. Exactly
// one of Text or VoiceFileID is set.
type InboundEvent struct {
	ChatID      int64
	MessageID   int
	Sender      string
	Date        time.Time
	Text        string
	VoiceFileID string
}

// IsVoice reports whether the payload is a voice note reference.
func (e InboundEvent) IsVoice() bool {
	return e.VoiceFileID != ""
}

// Command returns the bot command name without the leading slash or bot
// suffix ("/start@bruno_bot" -> "start"), or "" for plain text.
func (e InboundEvent) Command() string {
	if e.IsVoice() || len(e.Text) < 2 || e.Text[0] != '/' {
		return ""
	}
	cmd := e.Text[1:]
	for i, r := range cmd {
		if r == ' ' || r == '@' || r == '\n' {
			return cmd[:i]
		}
	}
	return cmd
}

// Update is a single entry of a getUpdates batch. Event is nil for updates
// that carry nothing the bot handles (edits, callbacks, stickers).
type Update struct {
	ID    int
	Event *InboundEvent
}
