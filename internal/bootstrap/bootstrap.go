// Package bootstrap holds the process wiring shared by the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"bruno-bot/internal/config"
	"bruno-bot/internal/integrations/paramstore"
	"bruno-bot/internal/repository"
)

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLevel maps debug|info|warn|error to a level; anything else is info.
func ParseLevel(level string) slog.Level {
	if l, ok := logLevelMap[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return slog.LevelInfo
}

// SetupLogger installs a tint handler as the default logger.
func SetupLogger(w io.Writer, level string, noColor bool) *slog.Logger {
	logger := slog.New(tint.NewHandler(w, &tint.Options{
		Level:   ParseLevel(level),
		NoColor: noColor,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads envFile into the environment if it exists. Variables
// already set win.
func LoadEnvFile(envFile string) error {
	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); errors.Is(err, os.ErrNotExist) {
		slog.Debug("env file not found, using process environment", "path", envFile)
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("bootstrap: load env file %s: %w", envFile, err)
	}
	return nil
}

// AWS lazily loads the shared AWS configuration.
type AWS struct {
	cfg    *aws.Config
	loader func(ctx context.Context) (aws.Config, error)
}

func NewAWS() *AWS {
	return &AWS{loader: func(ctx context.Context) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	}}
}

func (a *AWS) Config(ctx context.Context) (aws.Config, error) {
	if a.cfg != nil {
		return *a.cfg, nil
	}
	cfg, err := a.loader(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("bootstrap: load AWS config: %w", err)
	}
	a.cfg = &cfg
	return cfg, nil
}

// LoadConfig reads configuration, resolving "ssm:" references through the
// SSM Parameter Store when any are present.
func LoadConfig(ctx context.Context, a *AWS) (config.Config, error) {
	var resolver config.Resolver
	if config.UsesParamStore(os.Environ()) {
		awsCfg, err := a.Config(ctx)
		if err != nil {
			return config.Config{}, err
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return config.Config{}, err
		}
		resolver = paramstore.NewResolver(ps)
	}
	return config.Load(ctx, resolver)
}

// OpenStore builds the conversation store selected by cfg.StoreBackend. The
// returned close function releases backend resources.
func OpenStore(ctx context.Context, cfg config.Config, a *AWS) (repository.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		awsCfg, err := a.Config(ctx)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable, cfg.StateIndex)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		store, err := repository.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	case config.BackendMemory:
		slog.Warn("using in-memory conversation store, state is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.StoreBackend)
	}
}
