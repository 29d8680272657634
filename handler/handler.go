// Package handler is the API Gateway entry point of the operator notify
// function.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"bruno-bot/internal/domain"
	"bruno-bot/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	alertTemplate     = "🚨 Something is not working 😬\n<i>%s</i>\n\n<b>chat:</b> %d\n<b>user:</b> %s"
)

// AlertSender delivers an HTML message to a chat.
type AlertSender interface {
	SendHTML(ctx context.Context, chatID int64, text string) error
}

type notifyResponse struct {
	OK            bool   `json:"ok"`
	CorrelationID string `json:"correlationId"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId"`
}

type Handler struct {
	sender         AlertSender
	operatorChatID int64
	logger         *slog.Logger
}

func NewHandler(sender AlertSender, operatorChatID int64) (*Handler, error) {
	if sender == nil {
		return nil, errors.New("handler: alert sender must not be nil")
	}
	if operatorChatID == 0 {
		return nil, errors.New("handler: operator chat id must not be zero")
	}
	return &Handler{sender: sender, operatorChatID: operatorChatID, logger: slog.Default()}, nil
}

// Handle forwards an alert {message, userId, chatId} to the operator chat.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newUUID()
	}
	logger := h.logger.With("correlation_id", correlationID)

	alert, err := decodeAlert(req)
	if err != nil {
		logger.Warn("invalid notify request", "err", err)
		return errorResp(http.StatusBadRequest, usecase.ErrorInvalidInput, correlationID), nil
	}

	text := fmt.Sprintf(alertTemplate, html.EscapeString(alert.Message), alert.ChatID, html.EscapeString(alert.UserID))
	if err := h.sender.SendHTML(ctx, h.operatorChatID, text); err != nil {
		logger.Error("failed to send operator alert", "chat_id", alert.ChatID, "err", err)
		return errorResp(http.StatusBadGateway, usecase.ErrorUpstream, correlationID), nil
	}

	logger.Info("operator alerted", "chat_id", alert.ChatID, "user", alert.UserID)
	return jsonResp(http.StatusOK, notifyResponse{OK: true, CorrelationID: correlationID}, correlationID), nil
}

func decodeAlert(req events.APIGatewayProxyRequest) (domain.Alert, error) {
	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return domain.Alert{}, fmt.Errorf("decode base64 body: %w", err)
		}
		body = string(raw)
	}
	var alert domain.Alert
	if err := json.Unmarshal([]byte(body), &alert); err != nil {
		return domain.Alert{}, fmt.Errorf("decode body: %w", err)
	}
	if strings.TrimSpace(alert.Message) == "" {
		return domain.Alert{}, errors.New("message is required")
	}
	return alert, nil
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResp(status int, payload any, correlationID string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(payload)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

func errorResp(status int, code usecase.ErrorCode, correlationID string) events.APIGatewayProxyResponse {
	return jsonResp(status, errorResponse{Error: string(code), CorrelationID: correlationID}, correlationID)
}

var newUUID = func() string {
	return uuid.NewString()
}
