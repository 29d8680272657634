package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bruno-bot/internal/domain"
	"bruno-bot/internal/repository"
)

// FeedbackTaskTimeout bounds a feedback request. The feedback service runs
// one completion per message before it answers.
const FeedbackTaskTimeout = 5 * time.Minute

// Bot commands.
const (
	CommandStart        = "start"
	CommandInstructions = "instructions"
	CommandSuggestions  = "suggestions"
	CommandFeedback     = "feedback"
	CommandListen       = "listen"
)

type DispatcherDeps struct {
	Turns       *TurnService
	Store       ConversationStore
	Messenger   Messenger
	Synthesizer Synthesizer
	Feedback    FeedbackRequester
	Notifier    Notifier
	Tasks       *Background
	Logger      *slog.Logger
}

// FeedbackPolicy selects which stored user messages get a correction.
type FeedbackPolicy struct {
	Grammar domain.GrammarPolicy
	Cutoff  int
}

// Dispatcher routes bot commands and hands everything else to the turn
// processor. Failures are reported to the operator in the background.
type Dispatcher struct {
	turns    *TurnService
	store    ConversationStore
	msg      Messenger
	synth    Synthesizer
	feedback FeedbackRequester
	notifier Notifier
	tasks    *Background
	logger   *slog.Logger
	policy   FeedbackPolicy
}

func NewDispatcher(deps DispatcherDeps, policy FeedbackPolicy) (*Dispatcher, error) {
	if deps.Turns == nil {
		return nil, errors.New("usecase: turn service must not be nil")
	}
	if deps.Store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
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
	return &Dispatcher{
		turns:    deps.Turns,
		store:    deps.Store,
		msg:      deps.Messenger,
		synth:    deps.Synthesizer,
		feedback: deps.Feedback,
		notifier: deps.Notifier,
		tasks:    deps.Tasks,
		logger:   deps.Logger,
		policy:   policy,
	}, nil
}

// Handle processes one inbound event.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.InboundEvent) error {
	var err error
	switch ev.Command() {
	case CommandStart:
		err = d.turns.Start(ctx, ev)
	case CommandInstructions, CommandSuggestions:
		err = d.msg.SendHTML(ctx, ev.ChatID, ChatInstructions)
	case CommandFeedback:
		err = d.requestFeedback(ctx, ev)
	case CommandListen:
		err = d.listen(ctx, ev)
	default:
		err = d.turns.Process(ctx, ev)
	}
	if err != nil {
		d.notify(ctx, ev, err)
	}
	return err
}

func (d *Dispatcher) requestFeedback(ctx context.Context, ev domain.InboundEvent) error {
	conv, err := d.activeConversation(ctx, ev)
	if err != nil || conv == nil {
		return err
	}
	if err := d.msg.SendTyping(ctx, ev.ChatID); err != nil {
		d.logger.Debug("typing action failed", "chat_id", ev.ChatID, "err", err)
	}

	items := conv.FeedbackCandidates(d.policy.Grammar, d.policy.Cutoff)
	if len(items) == 0 {
		return d.sendText(ctx, ev.ChatID, domain.ApplyName(NoFeedbackYet, ev.Sender))
	}
	if d.feedback == nil {
		return newError(ErrorInternal, "feedback_not_configured", nil)
	}

	req := domain.FeedbackRequest{ChatID: ev.ChatID, Messages: items}
	d.tasks.GoWithTimeout(ctx, "request_feedback", FeedbackTaskTimeout, func(ctx context.Context) error {
		return d.feedback.RequestFeedback(ctx, req)
	})
	d.logger.Info("feedback requested", "chat_id", ev.ChatID, "messages", len(items))
	return nil
}

// listen reads the last assistant message of the active conversation out loud.
func (d *Dispatcher) listen(ctx context.Context, ev domain.InboundEvent) error {
	conv, err := d.activeConversation(ctx, ev)
	if err != nil || conv == nil {
		return err
	}
	last, ok := conv.LastAssistantMessage()
	if !ok {
		return d.sendText(ctx, ev.ChatID, NothingToListen)
	}
	if d.synth == nil {
		return newError(ErrorInternal, "synthesizer_not_configured", nil)
	}

	location, err := d.synth.Synthesize(ctx, last.Content, ev.MessageID)
	if err != nil {
		if sendErr := d.msg.SendText(ctx, ev.ChatID, SpeechFailureMessage); sendErr != nil {
			d.logger.Warn("failed to send fallback reply", "chat_id", ev.ChatID, "err", sendErr)
		}
		return upstreamError("synthesis", err)
	}
	if err := d.msg.SendAudio(ctx, ev.ChatID, location); err != nil {
		return newError(ErrorUpstream, "send_audio_error", err)
	}
	return nil
}

// activeConversation returns nil, nil after asking the user to /start when
// the chat has no active conversation.
func (d *Dispatcher) activeConversation(ctx context.Context, ev domain.InboundEvent) (*domain.Conversation, error) {
	conv, err := d.store.FindActiveConversation(ctx, ev.ChatID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, d.sendText(ctx, ev.ChatID, AskStartChat)
	}
	if err != nil {
		if sendErr := d.msg.SendText(ctx, ev.ChatID, TechnicalIssueMessage); sendErr != nil {
			d.logger.Warn("failed to send fallback reply", "chat_id", ev.ChatID, "err", sendErr)
		}
		return nil, newError(ErrorInternal, "store_read_error", err)
	}
	return conv, nil
}

func (d *Dispatcher) sendText(ctx context.Context, chatID int64, text string) error {
	if err := d.msg.SendText(ctx, chatID, text); err != nil {
		return newError(ErrorUpstream, "send_reply_error", err)
	}
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, ev domain.InboundEvent, cause error) {
	if d.notifier == nil {
		return
	}
	alert := domain.Alert{Message: cause.Error(), UserID: ev.Sender, ChatID: ev.ChatID}
	d.tasks.Go(ctx, "notify_operator", func(ctx context.Context) error {
		return d.notifier.Notify(ctx, alert)
	})
}
