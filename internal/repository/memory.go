package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bruno-bot/internal/domain"
)

// Transcription is a recorded speech-recognition output.
type Transcription struct {
	FileName string
	Output   string
}

// MemoryStore keeps conversations in process memory. It is meant for local
// runs and tests; every read returns a copy.
type MemoryStore struct {
	mu             sync.Mutex
	convs          map[string]*domain.Conversation
	lessons        []domain.Lesson
	transcriptions []Transcription
	now            func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for creation stamps and the
// active window.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// WithLessons seeds lessons; the last one is the latest.
func WithLessons(lessons ...domain.Lesson) MemoryOption {
	return func(s *MemoryStore) {
		s.lessons = append(s.lessons, lessons...)
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		convs: make(map[string]*domain.Conversation),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) FindActiveConversation(_ context.Context, chatKey int64) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var candidates []*domain.Conversation
	for _, c := range s.convs {
		if c.ChatKey == chatKey && c.IsActive(now) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return cloneConversation(candidates[0]), nil
}

func (s *MemoryStore) CreateConversation(_ context.Context, in domain.NewConversation) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &domain.Conversation{
		ID:        uuid.NewString(),
		UserKey:   in.UserKey,
		ChatKey:   in.ChatKey,
		Messages:  in.SeedMessages(),
		CreatedAt: s.now().UTC(),
		Topics:    in.Topics,
	}
	s.convs[c.ID] = c
	return cloneConversation(c), nil
}

func (s *MemoryStore) AppendAndPersist(_ context.Context, conv *domain.Conversation, msgs ...domain.Message) error {
	if err := validateAppend(conv, msgs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.convs[conv.ID]
	if !ok {
		return ErrNotFound
	}
	updated := conv.WithMessages(msgs...)
	stored.Messages = append([]domain.Message(nil), updated...)
	conv.Messages = updated
	return nil
}

func (s *MemoryStore) UpdateTokenUsage(_ context.Context, conversationID string, tokens int) error {
	if tokens == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.convs[conversationID]
	if !ok {
		return ErrNotFound
	}
	stored.TokenUsage = tokens
	return nil
}

func (s *MemoryStore) LatestLesson(_ context.Context) (domain.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lessons) == 0 {
		return domain.Lesson{}, ErrNotFound
	}
	return s.lessons[len(s.lessons)-1], nil
}

func (s *MemoryStore) RecordTranscription(_ context.Context, fileName, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcriptions = append(s.transcriptions, Transcription{FileName: fileName, Output: output})
	return nil
}

// Transcriptions returns the recorded transcription outputs.
func (s *MemoryStore) Transcriptions() []Transcription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transcription(nil), s.transcriptions...)
}

// Get returns a copy of a conversation regardless of its age.
func (s *MemoryStore) Get(id string) (*domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, false
	}
	return cloneConversation(c), true
}

// Count returns the number of stored conversations.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Messages = append([]domain.Message(nil), c.Messages...)
	return &cp
}
