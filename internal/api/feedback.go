package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"bruno-bot/internal/domain"
	"bruno-bot/internal/usecase"
)

const (
	maxBodyBytes = 1 << 20
	// correctionTimeout bounds a feedback round once it is accepted.
	correctionTimeout = 5 * time.Minute
)

type feedbackResponse struct {
	Messages []domain.FeedbackItem `json:"messages"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type feedbackHandler struct {
	svc    FeedbackCorrector
	logger *slog.Logger
}

func (h *feedbackHandler) handle(w http.ResponseWriter, r *http.Request) {
	var req domain.FeedbackRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || json.Unmarshal(body, &req) != nil {
		respondError(w, http.StatusBadRequest, usecase.ErrorInvalidInput, "Invalid JSON body")
		return
	}
	if len(req.Messages) == 0 {
		h.logger.Warn("feedback request without messages", "chat_id", req.ChatID)
		respondError(w, http.StatusBadRequest, usecase.ErrorInvalidInput, `Missing "messages" parameter`)
		return
	}

	h.logger.Info("getting feedback", "chat_id", req.ChatID, "messages", len(req.Messages))
	// The corrections go to the chat, not to the caller, so a caller that
	// gives up must not cut them short.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), correctionTimeout)
	defer cancel()
	corrected, err := h.svc.Correct(ctx, req)
	if err != nil {
		code := usecase.CodeOf(err)
		h.logger.Error("feedback failed", "chat_id", req.ChatID, "code", code, "err", err)
		respondError(w, usecase.HTTPStatus(code), code, "")
		return
	}
	respondJSON(w, http.StatusOK, feedbackResponse{Messages: corrected})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code usecase.ErrorCode, message string) {
	respondJSON(w, status, errorResponse{Error: string(code), Message: message})
}
