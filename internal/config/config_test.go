package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bruno-bot/internal/domain"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

type fakeResolver struct {
	values map[string]string
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, value string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if !strings.HasPrefix(value, "ssm:") {
		return value, nil
	}
	return f.values[value], nil
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envMap(nil), nil)
	require.NoError(t, err)

	require.Equal(t, "gpt-3.5-turbo", cfg.OpenAIModel)
	require.Equal(t, BackendDynamoDB, cfg.StoreBackend)
	require.Equal(t, "chatKey-createdAt-index", cfg.StateIndex)
	require.Equal(t, 3500, cfg.TokenLimit)
	require.Equal(t, domain.GrammarPolicy{Threshold: 90, BadAbove: true}, cfg.Grammar)
	require.Equal(t, 80, cfg.FeedbackCutoff)
	require.Equal(t, 7*time.Second, cfg.TypingInterval)
	require.Equal(t, 10*time.Second, cfg.PollTimeout)
	require.Equal(t, "8080", cfg.HTTPPort)
	require.True(t, cfg.StrictStartup)
}

func TestLoadFrom_OverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"TELEGRAM_TOKEN":    "ssm:/bruno/telegram",
		"OPENAI_API_KEY":    " sk-plain ",
		"STORE_BACKEND":     "Postgres",
		"DATABASE_URL":      "ssm:/bruno/db",
		"CHAT_TOKEN_LIMIT":  "1200",
		"GRAMMAR_THRESHOLD": "50",
		"GRAMMAR_BAD_ABOVE": "false",
		"TYPING_INTERVAL":   "3",
		"POLL_TIMEOUT":      "25s",
		"OPERATOR_CHAT_ID":  "-100123",
		"STRICT_STARTUP":    "false",
		"DEFAULT_STARTER":   "Hi {{NAME}}",
	}
	r := &fakeResolver{values: map[string]string{
		"ssm:/bruno/telegram": "123:abc",
		"ssm:/bruno/db":       "postgres://bruno@db/bruno",
	}}

	cfg, err := LoadFrom(context.Background(), envMap(env), r)
	require.NoError(t, err)
	require.Equal(t, "123:abc", cfg.TelegramToken)
	require.Equal(t, "sk-plain", cfg.OpenAIKey)
	require.Equal(t, BackendPostgres, cfg.StoreBackend)
	require.Equal(t, "postgres://bruno@db/bruno", cfg.DatabaseURL)
	require.Equal(t, 1200, cfg.TokenLimit)
	require.Equal(t, domain.GrammarPolicy{Threshold: 50, BadAbove: false}, cfg.Grammar)
	require.Equal(t, 3*time.Second, cfg.TypingInterval)
	require.Equal(t, 25*time.Second, cfg.PollTimeout)
	require.Equal(t, int64(-100123), cfg.OperatorChatID)
	require.False(t, cfg.StrictStartup)
	require.Equal(t, "Hi {{NAME}}", cfg.DefaultLesson.Starter)
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		r    Resolver
		want string
	}{
		{name: "bad int", env: map[string]string{"CHAT_TOKEN_LIMIT": "lots"}, want: "CHAT_TOKEN_LIMIT"},
		{name: "bad bool", env: map[string]string{"STRICT_STARTUP": "maybe"}, want: "STRICT_STARTUP"},
		{name: "bad duration", env: map[string]string{"POLL_TIMEOUT": "soon"}, want: "POLL_TIMEOUT"},
		{name: "ref without store", env: map[string]string{"TELEGRAM_TOKEN": "ssm:/x"}, want: "none is configured"},
		{name: "resolver error", env: map[string]string{"TELEGRAM_TOKEN": "ssm:/x"}, r: &fakeResolver{err: errors.New("denied")}, want: "resolve TELEGRAM_TOKEN: denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(context.Background(), envMap(tt.env), tt.r)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestValidateBot(t *testing.T) {
	base := Config{
		TelegramToken: "t", OpenAIKey: "k", STTURL: "http://stt", GrammarURL: "http://grammar",
		StoreBackend: BackendDynamoDB, StateTable: "bruno-state",
	}
	require.NoError(t, base.ValidateBot())

	missing := base
	missing.TelegramToken = ""
	missing.GrammarURL = " "
	require.EqualError(t, missing.ValidateBot(), "config: required variables not set: GRAMMAR_API, TELEGRAM_TOKEN")

	noTable := base
	noTable.StateTable = ""
	require.ErrorContains(t, noTable.ValidateBot(), "STATE_TABLE")

	pg := base
	pg.StoreBackend = BackendPostgres
	require.ErrorContains(t, pg.ValidateBot(), "DATABASE_URL")

	mem := base
	mem.StoreBackend = BackendMemory
	mem.StateTable = ""
	require.NoError(t, mem.ValidateBot())

	unknown := base
	unknown.StoreBackend = "redis"
	require.ErrorContains(t, unknown.ValidateBot(), "STORE_BACKEND")
}

func TestValidateFeedbackAndNotify(t *testing.T) {
	require.ErrorContains(t, Config{TelegramToken: "t"}.ValidateFeedback(), "OPENAI_API_KEY")
	require.NoError(t, Config{TelegramToken: "t", OpenAIKey: "k"}.ValidateFeedback())

	require.ErrorContains(t, Config{TelegramToken: "t"}.ValidateNotify(), "OPERATOR_CHAT_ID")
	require.NoError(t, Config{TelegramToken: "t", OperatorChatID: 5}.ValidateNotify())
}

func TestUsesParamStore(t *testing.T) {
	require.False(t, UsesParamStore([]string{"A=b", "HOME=/root"}))
	require.True(t, UsesParamStore([]string{"A=b", "TELEGRAM_TOKEN=ssm:/bruno/telegram"}))
}
