package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"bruno-bot/internal/api"
	"bruno-bot/internal/bootstrap"
	"bruno-bot/internal/integrations/openai"
	"bruno-bot/internal/integrations/telegram"
	"bruno-bot/internal/usecase"
)

func main() {
	envFile := flag.String("env", ".env", "path to an env file")
	logLevel := flag.String("log", "info", "log level: debug|info|warn|error")
	noColor := flag.Bool("no-color", false, "disable colored log output")
	flag.Parse()

	logger := bootstrap.SetupLogger(os.Stdout, *logLevel, *noColor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.LoadEnvFile(*envFile); err != nil {
		fatal("failed to load env file", err)
	}
	cfg, err := bootstrap.LoadConfig(ctx, bootstrap.NewAWS())
	if err != nil {
		fatal("failed to load configuration", err)
	}
	if err := cfg.ValidateFeedback(); err != nil {
		fatal("invalid configuration", err)
	}

	bot, err := telegram.New(cfg.TelegramToken)
	if err != nil {
		fatal("failed to create telegram client", err)
	}
	llm, err := openai.NewClient(cfg.OpenAIKey, openai.WithModel(cfg.OpenAIModel), openai.WithBaseURL(cfg.OpenAIBaseURL))
	if err != nil {
		fatal("failed to create completion client", err)
	}

	svc, err := usecase.NewFeedbackService(llm, bot, logger)
	if err != nil {
		fatal("failed to create feedback service", err)
	}

	router := api.NewRouter(api.RouterDeps{Feedback: svc, Logger: logger})
	addr := net.JoinHostPort("", cfg.HTTPPort)
	slog.Info("feedback service listening", "addr", addr)
	if err := api.Serve(ctx, addr, router, logger); err != nil {
		fatal("feedback service stopped", err)
	}
	slog.Info("feedback service stopped")
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
