package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"bruno-bot/handler"
	"bruno-bot/internal/bootstrap"
	"bruno-bot/internal/integrations/telegram"
)

func main() {
	ctx := context.Background()

	// Lambda takes its settings from the function environment only.
	logger := bootstrap.SetupLogger(os.Stdout, os.Getenv("LOG_LEVEL"), true)

	// ---- Configuration (read only here) ----
	cfg, err := bootstrap.LoadConfig(ctx, bootstrap.NewAWS())
	if err != nil {
		fatal("failed to load configuration", err)
	}
	if err := cfg.ValidateNotify(); err != nil {
		fatal("invalid configuration", err)
	}

	// ---- Clients ----
	bot, err := telegram.New(cfg.TelegramToken)
	if err != nil {
		fatal("failed to create telegram client", err)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(bot, cfg.OperatorChatID)
	if err != nil {
		fatal("failed to create handler", err)
	}
	logger.Info("notify handler ready", "operator_chat_id", cfg.OperatorChatID)

	lambda.Start(h.Handle)
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
