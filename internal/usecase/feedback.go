package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"bruno-bot/internal/domain"
)

const maxParallelCorrections = 4

// FeedbackMessenger is what the feedback service needs from the messaging
// platform.
type FeedbackMessenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendReply(ctx context.Context, chatID int64, replyTo int, text string) error
	SendTyping(ctx context.Context, chatID int64) error
}

// FeedbackService corrects user messages and replies to each of them with
// an alternative phrasing.
type FeedbackService struct {
	llm    LLMClient
	msg    FeedbackMessenger
	logger *slog.Logger
}

func NewFeedbackService(llm LLMClient, msg FeedbackMessenger, logger *slog.Logger) (*FeedbackService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if msg == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackService{llm: llm, msg: msg, logger: logger}, nil
}

// Correct returns the corrected messages in request order after sending them
// to the chat.
func (s *FeedbackService) Correct(ctx context.Context, req domain.FeedbackRequest) ([]domain.FeedbackItem, error) {
	if len(req.Messages) == 0 {
		return nil, newError(ErrorInvalidInput, "missing_messages", nil)
	}
	if req.ChatID == 0 {
		return nil, newError(ErrorInvalidInput, "missing_chat_id", nil)
	}
	if err := s.msg.SendTyping(ctx, req.ChatID); err != nil {
		s.logger.Debug("typing action failed", "chat_id", req.ChatID, "err", err)
	}

	corrected := make([]domain.FeedbackItem, len(req.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelCorrections)
	for i, item := range req.Messages {
		g.Go(func() error {
			out, err := s.llm.Complete(gctx, []domain.ChatMessage{
				{Role: domain.RoleUser, Content: fmt.Sprintf(correctionPrompt, item.Text)},
			})
			if err != nil {
				return err
			}
			corrected[i] = domain.FeedbackItem{MessageID: item.MessageID, Text: strings.TrimSpace(out.Text)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, upstreamError("correction", err)
	}

	if err := s.msg.SendText(ctx, req.ChatID, FeedbackTemplate); err != nil {
		return nil, newError(ErrorUpstream, "send_feedback_error", err)
	}
	for _, item := range corrected {
		if err := s.msg.SendReply(ctx, req.ChatID, item.MessageID, alternativePrefix+item.Text); err != nil {
			return nil, newError(ErrorUpstream, "send_feedback_error", err)
		}
	}
	s.logger.Info("feedback sent", "chat_id", req.ChatID, "messages", len(corrected))
	return corrected, nil
}
