package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"bruno-bot/internal/api"
	"bruno-bot/internal/bootstrap"
	"bruno-bot/internal/config"
	"bruno-bot/internal/integrations/inference"
	"bruno-bot/internal/integrations/openai"
	"bruno-bot/internal/integrations/relay"
	"bruno-bot/internal/integrations/telegram"
	"bruno-bot/internal/poller"
	"bruno-bot/internal/usecase"
)

const (
	backgroundTimeout = 30 * time.Second
	shutdownTimeout   = 15 * time.Second
	grammarProbe      = "This text has a gramar error"
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
	awsCfg := bootstrap.NewAWS()
	cfg, err := bootstrap.LoadConfig(ctx, awsCfg)
	if err != nil {
		fatal("failed to load configuration", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		fatal("invalid configuration", err)
	}

	// ---- Clients ----
	bot, err := telegram.New(cfg.TelegramToken)
	if err != nil {
		fatal("failed to create telegram client", err)
	}
	llm, err := openai.NewClient(cfg.OpenAIKey, openai.WithModel(cfg.OpenAIModel), openai.WithBaseURL(cfg.OpenAIBaseURL))
	if err != nil {
		fatal("failed to create completion client", err)
	}
	models := inference.NewClient(
		inference.WithTranscribeURL(cfg.STTURL),
		inference.WithGrammarURL(cfg.GrammarURL),
		inference.WithSynthesizeURL(cfg.TTSURL),
		inference.WithGrammarPolicy(cfg.Grammar),
	)
	relayClient := relay.NewClient(cfg.FeedbackURL, cfg.NotifyURL)

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg, awsCfg)
	if err != nil {
		fatal("failed to open conversation store", err)
	}
	defer closeStore()

	if err := smokeTest(ctx, cfg, bot, models); err != nil {
		if cfg.StrictStartup {
			fatal("startup smoke test failed", err)
		}
		slog.Warn("startup smoke test failed, continuing", "err", err)
	}

	// ---- Services ----
	tasks := usecase.NewBackground(logger, backgroundTimeout)
	turns, err := usecase.NewTurnService(usecase.TurnDeps{
		Store:       store,
		LLM:         llm,
		Transcriber: models,
		Grammar:     models,
		Messenger:   bot,
		Tasks:       tasks,
		Logger:      logger,
	}, usecase.TurnConfig{
		TokenLimit:     cfg.TokenLimit,
		TypingInterval: cfg.TypingInterval,
		DefaultLesson:  cfg.DefaultLesson,
	})
	if err != nil {
		fatal("failed to create turn service", err)
	}
	dispatcher, err := usecase.NewDispatcher(usecase.DispatcherDeps{
		Turns:       turns,
		Store:       store,
		Messenger:   bot,
		Synthesizer: models,
		Feedback:    relayClient,
		Notifier:    relayClient,
		Tasks:       tasks,
		Logger:      logger,
	}, usecase.FeedbackPolicy{Grammar: cfg.Grammar, Cutoff: cfg.FeedbackCutoff})
	if err != nil {
		fatal("failed to create dispatcher", err)
	}
	updates, err := poller.New(bot, poller.WithTimeout(cfg.PollTimeout), poller.WithLogger(logger))
	if err != nil {
		fatal("failed to create poller", err)
	}

	// ---- Run ----
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return updates.Run(gctx, dispatcher.Handle)
	})
	g.Go(func() error {
		router := api.NewRouter(api.RouterDeps{Logger: logger})
		return api.Serve(gctx, net.JoinHostPort("", cfg.HTTPPort), router, logger)
	})
	slog.Info("bot started", "store", cfg.StoreBackend, "port", cfg.HTTPPort)
	runErr := g.Wait()

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := tasks.Wait(waitCtx); err != nil {
		slog.Warn("background tasks did not finish", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		closeStore()
		fatal("bot stopped", runErr)
	}
	slog.Info("bot stopped", "offset", updates.Offset())
}

// smokeTest checks the bot token and the grammar service before polling.
func smokeTest(ctx context.Context, cfg config.Config, bot *telegram.Client, models *inference.Client) error {
	username, err := bot.SmokeTest(ctx)
	if err != nil {
		return err
	}
	slog.Info("telegram bot authenticated", "username", username)

	eval, err := models.ScoreGrammar(ctx, grammarProbe)
	if err != nil {
		return err
	}
	slog.Info("grammar service reachable", "label", eval.Label, "score", eval.Score, "threshold", cfg.Grammar.Threshold)
	return nil
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
