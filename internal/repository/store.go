package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bruno-bot/internal/domain"
)

// ErrNotFound is returned when no matching record exists.
var ErrNotFound = errors.New("repository: record not found")

// Store is the conversation persistence contract shared by every backend.
type Store interface {
	FindActiveConversation(ctx context.Context, chatKey int64) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, in domain.NewConversation) (*domain.Conversation, error)
	AppendAndPersist(ctx context.Context, conv *domain.Conversation, msgs ...domain.Message) error
	UpdateTokenUsage(ctx context.Context, conversationID string, tokens int) error
	LatestLesson(ctx context.Context) (domain.Lesson, error)
	RecordTranscription(ctx context.Context, fileName, output string) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DynamoStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

// timeLayout is fixed-width so lexical order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Records written by other tools may use plain RFC3339.
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func encodeChat(msgs []domain.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	raw, err := json.Marshal(domain.ChatLog{Messages: msgs})
	if err != nil {
		return nil, fmt.Errorf("repository: encode chat: %w", err)
	}
	return raw, nil
}

func decodeChat(raw []byte) ([]domain.Message, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var log domain.ChatLog
	if err := json.Unmarshal(raw, &log); err != nil {
		return nil, fmt.Errorf("repository: decode chat: %w", err)
	}
	return log.Messages, nil
}

func validateAppend(conv *domain.Conversation, msgs []domain.Message) error {
	if conv == nil || conv.ID == "" {
		return errors.New("repository: conversation id is required")
	}
	if len(msgs) == 0 {
		return errors.New("repository: no messages to append")
	}
	return nil
}
