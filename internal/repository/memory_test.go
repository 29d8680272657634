package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bruno-bot/internal/domain"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func TestMemoryStore_FindActiveReturnsNewestInsideWindow(t *testing.T) {
	clock := &stepClock{t: fixedNow.Add(-30 * time.Hour)}
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	old, err := s.CreateConversation(ctx, domain.NewConversation{UserKey: "Ana", ChatKey: 7})
	require.NoError(t, err)

	clock.t = fixedNow.Add(-2 * time.Hour)
	first, err := s.CreateConversation(ctx, domain.NewConversation{UserKey: "Ana", ChatKey: 7})
	require.NoError(t, err)
	clock.t = fixedNow.Add(-1 * time.Hour)
	second, err := s.CreateConversation(ctx, domain.NewConversation{UserKey: "Ana", ChatKey: 7})
	require.NoError(t, err)
	_, err = s.CreateConversation(ctx, domain.NewConversation{UserKey: "Bob", ChatKey: 8})
	require.NoError(t, err)

	clock.t = fixedNow
	got, err := s.FindActiveConversation(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
	require.NotEqual(t, first.ID, got.ID)
	require.NotEqual(t, old.ID, got.ID)

	clock.t = fixedNow.Add(48 * time.Hour)
	_, err = s.FindActiveConversation(ctx, 7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_AppendIsAppendOnly(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, domain.NewConversation{UserKey: "Ana", ChatKey: 7, SystemPrompt: "p", Starter: "s"})
	require.NoError(t, err)
	before := append([]domain.Message(nil), conv.Messages...)

	require.NoError(t, s.AppendAndPersist(ctx, conv,
		domain.Message{Role: domain.RoleUser, Content: "hi"},
		domain.Message{Role: domain.RoleAssistant, Content: "hello"},
	))

	stored, ok := s.Get(conv.ID)
	require.True(t, ok)
	require.Len(t, stored.Messages, 4)
	require.Equal(t, before, stored.Messages[:2])
	require.Equal(t, stored.Messages, conv.Messages)

	// Mutating the caller's copy must not leak into the store.
	conv.Messages[0].Content = "tampered"
	stored, _ = s.Get(conv.ID)
	require.Equal(t, "p", stored.Messages[0].Content)
}

func TestMemoryStore_AppendUnknownConversation(t *testing.T) {
	s := NewMemoryStore()
	err := s.AppendAndPersist(context.Background(), &domain.Conversation{ID: "missing"}, domain.Message{Role: domain.RoleUser})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UpdateTokenUsage(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, domain.NewConversation{ChatKey: 7})
	require.NoError(t, err)

	require.NoError(t, s.UpdateTokenUsage(ctx, conv.ID, 300))
	require.NoError(t, s.UpdateTokenUsage(ctx, conv.ID, 0))
	stored, _ := s.Get(conv.ID)
	require.Equal(t, 300, stored.TokenUsage)

	require.ErrorIs(t, s.UpdateTokenUsage(ctx, "missing", 10), ErrNotFound)
	require.NoError(t, s.UpdateTokenUsage(ctx, "missing", 0))
}

func TestMemoryStore_LessonsAndTranscriptions(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.LatestLesson(context.Background())
	require.ErrorIs(t, err, ErrNotFound)

	s = NewMemoryStore(WithLessons(domain.Lesson{Prompt: "old"}, domain.Lesson{Prompt: "new"}))
	l, err := s.LatestLesson(context.Background())
	require.NoError(t, err)
	require.Equal(t, "new", l.Prompt)

	require.NoError(t, s.RecordTranscription(context.Background(), "a.ogg", "hello"))
	require.Equal(t, []Transcription{{FileName: "a.ogg", Output: "hello"}}, s.Transcriptions())
}
