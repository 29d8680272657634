package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"bruno-bot/internal/domain"
	"bruno-bot/internal/repository"
)

var fixedNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// statusErr mimics an adapter HTTPStatusError.
type statusErr struct{ code int }

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatusCode() int { return e.code }

type sentMessage struct {
	kind    string
	chatID  int64
	replyTo int
	text    string
}

type fakeMessenger struct {
	mu       sync.Mutex
	events   []sentMessage
	typing   int
	fileURL  string
	fileErr  error
	sendErr  error
	replyErr error
}

func (f *fakeMessenger) record(m sentMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, m)
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string) error {
	f.record(sentMessage{kind: "text", chatID: chatID, text: text})
	return f.sendErr
}

func (f *fakeMessenger) SendHTML(_ context.Context, chatID int64, text string) error {
	f.record(sentMessage{kind: "html", chatID: chatID, text: text})
	return f.sendErr
}

func (f *fakeMessenger) SendReply(_ context.Context, chatID int64, replyTo int, text string) error {
	f.record(sentMessage{kind: "reply", chatID: chatID, replyTo: replyTo, text: text})
	return f.replyErr
}

func (f *fakeMessenger) SendAudio(_ context.Context, chatID int64, location string) error {
	f.record(sentMessage{kind: "audio", chatID: chatID, text: location})
	return f.sendErr
}

func (f *fakeMessenger) SendTyping(_ context.Context, chatID int64) error {
	f.mu.Lock()
	f.typing++
	f.mu.Unlock()
	f.record(sentMessage{kind: "typing", chatID: chatID})
	return nil
}

func (f *fakeMessenger) FileURL(_ context.Context, fileID string) (string, error) {
	if f.fileErr != nil {
		return "", f.fileErr
	}
	if f.fileURL != "" {
		return f.fileURL, nil
	}
	return "https://files.test/" + fileID, nil
}

// replies returns the non-typing messages in send order.
func (f *fakeMessenger) replies() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, e := range f.events {
		if e.kind != "typing" {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeMessenger) all() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.events...)
}

type fakeLLM struct {
	mu       sync.Mutex
	text     string
	tokens   int
	err      error
	calls    int
	captured [][]domain.ChatMessage
	complete func(msgs []domain.ChatMessage) (domain.Completion, error)
}

func (f *fakeLLM) Complete(_ context.Context, msgs []domain.ChatMessage) (domain.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.captured = append(f.captured, msgs)
	if f.complete != nil {
		return f.complete(msgs)
	}
	return domain.Completion{Text: f.text, TokensUsed: f.tokens}, f.err
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTranscriber struct {
	out  domain.Transcription
	err  error
	link string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, link string) (domain.Transcription, error) {
	f.link = link
	return f.out, f.err
}

type fakeGrammar struct {
	eval  domain.GrammarEvaluation
	err   error
	input string
}

func (f *fakeGrammar) ScoreGrammar(_ context.Context, text string) (domain.GrammarEvaluation, error) {
	f.input = text
	return f.eval, f.err
}

type fakeSynth struct {
	path string
	err  error
	text string
}

func (f *fakeSynth) Synthesize(_ context.Context, text string, _ int) (string, error) {
	f.text = text
	return f.path, f.err
}

type fakeFeedback struct {
	mu        sync.Mutex
	reqs      []domain.FeedbackRequest
	deadlines []time.Time
	err       error
}

func (f *fakeFeedback) RequestFeedback(ctx context.Context, req domain.FeedbackRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	deadline, _ := ctx.Deadline()
	f.deadlines = append(f.deadlines, deadline)
	return f.err
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (f *fakeNotifier) Notify(_ context.Context, alert domain.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

// failingStore wraps a MemoryStore and injects errors per operation.
type failingStore struct {
	*repository.MemoryStore
	findErr   error
	createErr error
	appendErr error
	tokensErr error
	lessonErr error
}

func (s *failingStore) FindActiveConversation(ctx context.Context, chatKey int64) (*domain.Conversation, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.MemoryStore.FindActiveConversation(ctx, chatKey)
}

func (s *failingStore) CreateConversation(ctx context.Context, in domain.NewConversation) (*domain.Conversation, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.MemoryStore.CreateConversation(ctx, in)
}

func (s *failingStore) AppendAndPersist(ctx context.Context, conv *domain.Conversation, msgs ...domain.Message) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.MemoryStore.AppendAndPersist(ctx, conv, msgs...)
}

func (s *failingStore) UpdateTokenUsage(ctx context.Context, id string, tokens int) error {
	if s.tokensErr != nil {
		return s.tokensErr
	}
	return s.MemoryStore.UpdateTokenUsage(ctx, id, tokens)
}

func (s *failingStore) LatestLesson(ctx context.Context) (domain.Lesson, error) {
	if s.lessonErr != nil {
		return domain.Lesson{}, s.lessonErr
	}
	return s.MemoryStore.LatestLesson(ctx)
}

var errBoom = errors.New("boom")
