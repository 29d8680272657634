// Package config loads process configuration from the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"bruno-bot/internal/domain"
	"bruno-bot/internal/integrations/paramstore"
)

const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Resolver expands secret references such as "ssm:/bruno/telegram".
type Resolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

type Config struct {
	TelegramToken string
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string

	STTURL      string
	GrammarURL  string
	TTSURL      string
	FeedbackURL string
	NotifyURL   string

	StoreBackend string
	StateTable   string
	StateIndex   string
	DatabaseURL  string

	TokenLimit     int
	Grammar        domain.GrammarPolicy
	FeedbackCutoff int
	TypingInterval time.Duration
	PollTimeout    time.Duration

	HTTPPort       string
	OperatorChatID int64
	StrictStartup  bool
	DefaultLesson  domain.Lesson
}

// Load reads the process environment.
func Load(ctx context.Context, r Resolver) (Config, error) {
	return LoadFrom(ctx, os.LookupEnv, r)
}

// LoadFrom reads configuration through lookup. String values may be
// parameter store references; r may be nil when none are used.
func LoadFrom(ctx context.Context, lookup func(string) (string, bool), r Resolver) (Config, error) {
	l := loader{ctx: ctx, lookup: lookup, resolver: r}
	cfg := Config{
		TelegramToken: l.str("TELEGRAM_TOKEN", ""),
		OpenAIKey:     l.str("OPENAI_API_KEY", ""),
		OpenAIModel:   l.str("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL: l.str("OPENAI_BASE_URL", ""),

		STTURL:      l.str("STT_API", ""),
		GrammarURL:  l.str("GRAMMAR_API", ""),
		TTSURL:      l.str("TTS_API", ""),
		FeedbackURL: l.str("FEEDBACK_API", ""),
		NotifyURL:   l.str("NOTIFY_API", ""),

		StoreBackend: strings.ToLower(l.str("STORE_BACKEND", BackendDynamoDB)),
		StateTable:   l.str("STATE_TABLE", ""),
		StateIndex:   l.str("STATE_INDEX", "chatKey-createdAt-index"),
		DatabaseURL:  l.str("DATABASE_URL", ""),

		TokenLimit: l.integer("CHAT_TOKEN_LIMIT", 3500),
		Grammar: domain.GrammarPolicy{
			Threshold: l.integer("GRAMMAR_THRESHOLD", 90),
			BadAbove:  l.boolean("GRAMMAR_BAD_ABOVE", true),
		},
		FeedbackCutoff: l.integer("FEEDBACK_SCORE", 80),
		TypingInterval: l.duration("TYPING_INTERVAL", 7*time.Second),
		PollTimeout:    l.duration("POLL_TIMEOUT", 10*time.Second),

		HTTPPort:       l.str("HTTP_PORT", "8080"),
		OperatorChatID: int64(l.integer("OPERATOR_CHAT_ID", 0)),
		StrictStartup:  l.boolean("STRICT_STARTUP", true),
		DefaultLesson: domain.Lesson{
			Prompt:  l.str("DEFAULT_PROMPT", ""),
			Starter: l.str("DEFAULT_STARTER", ""),
		},
	}
	if l.err != nil {
		return Config{}, l.err
	}
	return cfg, nil
}

// ValidateBot checks what the polling bot needs.
func (c Config) ValidateBot() error {
	if err := requireSet(map[string]string{
		"TELEGRAM_TOKEN": c.TelegramToken,
		"OPENAI_API_KEY": c.OpenAIKey,
		"STT_API":        c.STTURL,
		"GRAMMAR_API":    c.GrammarURL,
	}); err != nil {
		return err
	}
	switch c.StoreBackend {
	case BackendDynamoDB:
		return requireSet(map[string]string{"STATE_TABLE": c.StateTable})
	case BackendPostgres:
		return requireSet(map[string]string{"DATABASE_URL": c.DatabaseURL})
	case BackendMemory:
		return nil
	default:
		return fmt.Errorf("config: STORE_BACKEND %q is not one of dynamodb, postgres, memory", c.StoreBackend)
	}
}

// ValidateFeedback checks what the feedback service needs.
func (c Config) ValidateFeedback() error {
	return requireSet(map[string]string{
		"TELEGRAM_TOKEN": c.TelegramToken,
		"OPENAI_API_KEY": c.OpenAIKey,
	})
}

// ValidateNotify checks what the operator notify function needs.
func (c Config) ValidateNotify() error {
	if err := requireSet(map[string]string{"TELEGRAM_TOKEN": c.TelegramToken}); err != nil {
		return err
	}
	if c.OperatorChatID == 0 {
		return fmt.Errorf("config: OPERATOR_CHAT_ID is required")
	}
	return nil
}

// UsesParamStore reports whether any variable in environ (KEY=VALUE pairs)
// is a parameter store reference.
func UsesParamStore(environ []string) bool {
	for _, kv := range environ {
		_, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(v, paramstore.RefPrefix) {
			return true
		}
	}
	return false
}

func requireSet(values map[string]string) error {
	var missing []string
	for k, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("config: required variables not set: %s", strings.Join(missing, ", "))
}

// loader keeps the first error so LoadFrom reads as a flat list.
type loader struct {
	ctx      context.Context
	lookup   func(string) (string, bool)
	resolver Resolver
	err      error
}

func (l *loader) raw(key string) (string, bool) {
	v, ok := l.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if strings.HasPrefix(v, paramstore.RefPrefix) {
		if l.resolver == nil {
			l.fail(fmt.Errorf("config: %s references the parameter store but none is configured", key))
			return "", false
		}
		resolved, err := l.resolver.Resolve(l.ctx, v)
		if err != nil {
			l.fail(fmt.Errorf("config: resolve %s: %w", key, err))
			return "", false
		}
		v = resolved
	}
	return v, true
}

func (l *loader) str(key, def string) string {
	if v, ok := l.raw(key); ok {
		return v
	}
	return def
}

func (l *loader) integer(key string, def int) int {
	v, ok := l.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(fmt.Errorf("config: %s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (l *loader) boolean(key string, def bool) bool {
	v, ok := l.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.fail(fmt.Errorf("config: %s: %q is not a boolean", key, v))
		return def
	}
	return b
}

// duration accepts Go durations ("7s") or a plain number of seconds.
func (l *loader) duration(key string, def time.Duration) time.Duration {
	v, ok := l.raw(key)
	if !ok {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		l.fail(fmt.Errorf("config: %s: %q is not a duration", key, v))
		return def
	}
	return d
}

func (l *loader) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}
