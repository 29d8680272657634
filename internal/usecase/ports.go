package usecase

import (
	"context"

	"bruno-bot/internal/domain"
)

type ConversationStore interface {
	FindActiveConversation(ctx context.Context, chatKey int64) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, in domain.NewConversation) (*domain.Conversation, error)
	AppendAndPersist(ctx context.Context, conv *domain.Conversation, msgs ...domain.Message) error
	UpdateTokenUsage(ctx context.Context, conversationID string, tokens int) error
	LatestLesson(ctx context.Context) (domain.Lesson, error)
	RecordTranscription(ctx context.Context, fileName, output string) error
}

type LLMClient interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (domain.Completion, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, link string) (domain.Transcription, error)
}

type GrammarScorer interface {
	ScoreGrammar(ctx context.Context, text string) (domain.GrammarEvaluation, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, messageID int) (string, error)
}

// Messenger is the outbound side of the messaging platform.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendHTML(ctx context.Context, chatID int64, text string) error
	SendReply(ctx context.Context, chatID int64, replyTo int, text string) error
	SendAudio(ctx context.Context, chatID int64, location string) error
	SendTyping(ctx context.Context, chatID int64) error
	FileURL(ctx context.Context, fileID string) (string, error)
}

type FeedbackRequester interface {
	RequestFeedback(ctx context.Context, req domain.FeedbackRequest) error
}

type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}
