package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bruno-bot/internal/domain"
	"bruno-bot/internal/repository"
)

const (
	DefaultTokenLimit     = 3500
	DefaultTypingInterval = 7 * time.Second
	tokensPerWord         = 1.5
	isoLayout             = "2006-01-02T15:04:05.000Z"
)

// TurnDeps are the collaborators of a TurnService.
type TurnDeps struct {
	Store       ConversationStore
	LLM         LLMClient
	Transcriber Transcriber
	Grammar     GrammarScorer
	Messenger   Messenger
	Tasks       *Background
	Logger      *slog.Logger
}

type TurnConfig struct {
	TokenLimit     int
	TypingInterval time.Duration
	// DefaultLesson fills whatever the latest stored lesson leaves empty.
	DefaultLesson domain.Lesson
}

// TurnService turns one inbound event into one reply and keeps the chat's
// active conversation up to date.
type TurnService struct {
	store   ConversationStore
	llm     LLMClient
	stt     Transcriber
	grammar GrammarScorer
	msg     Messenger
	tasks   *Background
	logger  *slog.Logger
	cfg     TurnConfig
	locks   *chatLocks
}

func NewTurnService(deps TurnDeps, cfg TurnConfig) (*TurnService, error) {
	if deps.Store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if deps.LLM == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if deps.Transcriber == nil {
		return nil, errors.New("usecase: transcriber must not be nil")
	}
	if deps.Grammar == nil {
		return nil, errors.New("usecase: grammar scorer must not be nil")
	}
	if deps.Messenger == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tasks == nil {
		deps.Tasks = NewBackground(deps.Logger, 0)
	}
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = DefaultTokenLimit
	}
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = DefaultTypingInterval
	}
	if strings.TrimSpace(cfg.DefaultLesson.Prompt) == "" {
		cfg.DefaultLesson.Prompt = DefaultSystemPrompt
	}
	if strings.TrimSpace(cfg.DefaultLesson.Starter) == "" {
		cfg.DefaultLesson.Starter = DefaultStarter
	}
	return &TurnService{
		store:   deps.Store,
		llm:     deps.LLM,
		stt:     deps.Transcriber,
		grammar: deps.Grammar,
		msg:     deps.Messenger,
		tasks:   deps.Tasks,
		logger:  deps.Logger,
		cfg:     cfg,
		locks:   newChatLocks(),
	}, nil
}

// Start opens a new conversation for the chat and sends its starter, even if
// another conversation is still active.
func (s *TurnService) Start(ctx context.Context, ev domain.InboundEvent) error {
	unlock := s.locks.lock(ev.ChatID)
	defer unlock()
	return s.startConversation(ctx, ev)
}

// Process handles a text or voice message. Every failure path has already
// replied to the user with a fixed message when the error is returned.
func (s *TurnService) Process(ctx context.Context, ev domain.InboundEvent) error {
	unlock := s.locks.lock(ev.ChatID)
	defer unlock()

	conv, err := s.store.FindActiveConversation(ctx, ev.ChatID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.startConversation(ctx, ev)
	}
	if err != nil {
		return s.fail(ctx, ev.ChatID, TechnicalIssueMessage, newError(ErrorInternal, "store_read_error", err))
	}

	stopTyping := s.startTyping(ctx, ev.ChatID)
	defer stopTyping()

	input, fileName, inErr := s.inputText(ctx, ev)
	if inErr != nil {
		stopTyping()
		return s.fail(ctx, ev.ChatID, AudioFailureMessage, inErr)
	}

	if s.overLimit(conv.TokenUsage, input) {
		s.logger.Info("conversation over token limit", "chat_id", ev.ChatID, "conversation_id", conv.ID, "token_usage", conv.TokenUsage)
		stopTyping()
		return s.send(ctx, ev.ChatID, ChatLimitMessage)
	}

	eval, err := s.grammar.ScoreGrammar(ctx, input)
	if err != nil {
		stopTyping()
		return s.fail(ctx, ev.ChatID, TechnicalIssueMessage, upstreamError("grammar", err))
	}

	score := eval.Score
	userMsg := domain.Message{
		Role:      domain.RoleUser,
		Content:   input,
		FileName:  fileName,
		Score:     &score,
		MessageID: ev.MessageID,
	}
	if !ev.Date.IsZero() {
		userMsg.DateTime = ev.Date.UTC().Format(isoLayout)
	}

	var (
		reply  string
		tokens int
	)
	if ev.IsVoice() && eval.Label == domain.GrammarBad {
		s.logger.Info("voice input not understood", "chat_id", ev.ChatID, "score", eval.Score)
		reply = fmt.Sprintf(clarificationTemplate, input)
	} else {
		completion, err := s.llm.Complete(ctx, conv.History(userMsg))
		if err != nil {
			stopTyping()
			return s.fail(ctx, ev.ChatID, TechnicalIssueMessage, upstreamError("completion", err))
		}
		reply, tokens = completion.Text, completion.TokensUsed
	}

	assistantMsg := domain.Message{Role: domain.RoleAssistant, Content: reply}
	if err := s.store.AppendAndPersist(ctx, conv, userMsg, assistantMsg); err != nil {
		stopTyping()
		return s.fail(ctx, ev.ChatID, TechnicalIssueMessage, newError(ErrorInternal, "store_write_error", err))
	}

	// The history is stored, so the reply is sent even if the counter
	// cannot be updated; the error still reaches the caller.
	var usageErr error
	if err := s.store.UpdateTokenUsage(ctx, conv.ID, tokens); err != nil {
		s.logger.Error("failed to update token usage", "chat_id", ev.ChatID, "conversation_id", conv.ID, "err", err)
		usageErr = newError(ErrorInternal, "store_token_usage_error", err)
	}

	stopTyping()
	if err := s.send(ctx, ev.ChatID, reply); err != nil {
		return err
	}
	return usageErr
}

// inputText returns the typed text or the transcription of a voice note and
// the file name the audio was stored under.
func (s *TurnService) inputText(ctx context.Context, ev domain.InboundEvent) (string, string, *Error) {
	if !ev.IsVoice() {
		return ev.Text, "", nil
	}
	link, err := s.msg.FileURL(ctx, ev.VoiceFileID)
	if err != nil {
		return "", "", newError(ErrorUpstream, "file_link_error", err)
	}
	tr, err := s.stt.Transcribe(ctx, link)
	if err != nil {
		return "", "", upstreamError("transcription", err)
	}
	if strings.TrimSpace(tr.Text) == "" {
		return "", "", newError(ErrorUpstream, "transcription_empty", nil)
	}

	s.tasks.Go(ctx, "record_transcription", func(ctx context.Context) error {
		return s.store.RecordTranscription(ctx, tr.FileName, tr.Text)
	})
	return tr.Text, tr.FileName, nil
}

func (s *TurnService) overLimit(tokenUsage int, input string) bool {
	approx := float64(len(strings.Fields(input))) * tokensPerWord
	return float64(tokenUsage)+approx >= float64(s.cfg.TokenLimit)
}

func (s *TurnService) startConversation(ctx context.Context, ev domain.InboundEvent) error {
	lesson := s.latestLesson(ctx)
	conv, err := s.store.CreateConversation(ctx, domain.NewConversation{
		UserKey:      ev.Sender,
		ChatKey:      ev.ChatID,
		SystemPrompt: lesson.Prompt,
		Starter:      lesson.Starter,
		Topics:       lesson.Topics,
	})
	if err != nil {
		return s.fail(ctx, ev.ChatID, TechnicalIssueMessage, newError(ErrorInternal, "store_create_error", err))
	}
	s.logger.Info("conversation started", "chat_id", ev.ChatID, "conversation_id", conv.ID, "user", ev.Sender)

	starter, ok := conv.LastAssistantMessage()
	if !ok {
		return newError(ErrorInternal, "missing_starter", nil)
	}
	return s.send(ctx, ev.ChatID, starter.Content)
}

func (s *TurnService) latestLesson(ctx context.Context) domain.Lesson {
	lesson, err := s.store.LatestLesson(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to load latest lesson, using default", "err", err)
	}
	if strings.TrimSpace(lesson.Prompt) == "" {
		lesson.Prompt = s.cfg.DefaultLesson.Prompt
	}
	if strings.TrimSpace(lesson.Starter) == "" {
		lesson.Starter = s.cfg.DefaultLesson.Starter
	}
	if lesson.Topics == "" {
		lesson.Topics = s.cfg.DefaultLesson.Topics
	}
	return lesson
}

// startTyping sends a typing action now and then every TypingInterval until
// the returned stop is called. stop is idempotent and returns only once no
// further action can be sent.
func (s *TurnService) startTyping(ctx context.Context, chatID int64) func() {
	typingCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.TypingInterval)
		defer ticker.Stop()
		for {
			if typingCtx.Err() != nil {
				return
			}
			if err := s.msg.SendTyping(typingCtx, chatID); err != nil && typingCtx.Err() == nil {
				s.logger.Debug("typing action failed", "chat_id", chatID, "err", err)
			}
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (s *TurnService) send(ctx context.Context, chatID int64, text string) error {
	if err := s.msg.SendText(ctx, chatID, text); err != nil {
		return newError(ErrorUpstream, "send_reply_error", err)
	}
	return nil
}

// fail tells the user something went wrong and returns cause.
func (s *TurnService) fail(ctx context.Context, chatID int64, text string, cause *Error) error {
	s.logger.Error("turn failed", "chat_id", chatID, "code", cause.Code, "reason", cause.Reason, "err", cause.Err)
	if err := s.msg.SendText(ctx, chatID, text); err != nil {
		s.logger.Warn("failed to send fallback reply", "chat_id", chatID, "err", err)
	}
	return cause
}
