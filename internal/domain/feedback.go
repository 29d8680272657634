package domain

// FeedbackItem is a user message selected for a grammar correction.
type FeedbackItem struct {
	MessageID int    `json:"messageId"`
	Text      string `json:"text"`
}

// FeedbackCandidates returns the user messages whose score needs feedback
// under policy and cutoff, in history order.
func (c *Conversation) FeedbackCandidates(policy GrammarPolicy, cutoff int) []FeedbackItem {
	var out []FeedbackItem
	for _, m := range c.Messages {
		if m.Role != RoleUser || m.Score == nil {
			continue
		}
		if policy.NeedsFeedback(*m.Score, cutoff) {
			out = append(out, FeedbackItem{MessageID: m.MessageID, Text: m.Content})
		}
	}
	return out
}

// FeedbackRequest asks the feedback service to correct Messages in ChatID.
type FeedbackRequest struct {
	ChatID   int64          `json:"chatId"`
	Messages []FeedbackItem `json:"messages"`
}
