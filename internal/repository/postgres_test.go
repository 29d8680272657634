package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"bruno-bot/internal/domain"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("fakeRow: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakePG struct {
	row       fakeRow
	tag       string
	execErr   error
	lastQuery string
	lastArgs  []any
	execs     []execCall
}

func (f *fakePG) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastQuery = sql
	f.lastArgs = args
	return f.row
}

func (f *fakePG) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag(f.tag), f.execErr
}

func mustNewPostgresStore(t *testing.T, db *fakePG) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(db)
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	require.Error(t, err)
}

func TestPostgresFindActiveConversation(t *testing.T) {
	chat, err := json.Marshal(domain.ChatLog{Messages: []domain.Message{
		{Role: domain.RoleSystem, Content: "prompt"},
		{Role: domain.RoleAssistant, Content: "starter"},
	}})
	require.NoError(t, err)
	created := fixedNow.Add(-time.Hour)
	db := &fakePG{row: fakeRow{values: []any{int64(9), "Ana", int64(42), chat, 210, created, "travel"}}}
	s := mustNewPostgresStore(t, db)

	conv, err := s.FindActiveConversation(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "9", conv.ID)
	require.Equal(t, "Ana", conv.UserKey)
	require.Equal(t, 210, conv.TokenUsage)
	require.Equal(t, "travel", conv.Topics)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, []any{int64(42), fixedNow.Add(-24 * time.Hour)}, db.lastArgs)
	require.Contains(t, db.lastQuery, `SELECT id, "userId", chat_id, chat, token_usage, date`)
	require.Contains(t, db.lastQuery, "WHERE chat_id = $1 AND date > $2")
	require.Contains(t, db.lastQuery, "ORDER BY date DESC")
}

func TestPostgresFindActiveConversation_NoRows(t *testing.T) {
	db := &fakePG{row: fakeRow{err: pgx.ErrNoRows}}
	s := mustNewPostgresStore(t, db)
	_, err := s.FindActiveConversation(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresCreateConversation(t *testing.T) {
	db := &fakePG{row: fakeRow{values: []any{int64(11)}}}
	s := mustNewPostgresStore(t, db)

	conv, err := s.CreateConversation(context.Background(), domain.NewConversation{
		ChatKey:      42,
		SystemPrompt: "Teach {{NAME}}",
		Starter:      "Hello",
	})
	require.NoError(t, err)
	require.Equal(t, "11", conv.ID)
	require.Equal(t, "Unknown_42", conv.UserKey)
	require.Equal(t, "Teach", conv.Messages[0].Content)
	require.Contains(t, db.lastQuery, `INSERT INTO conversations ("userId", chat_id, chat, token_usage, date, topics)`)
	require.NotContains(t, db.lastQuery, "user_id")
	require.Equal(t, "Unknown_42", db.lastArgs[0])
	require.Equal(t, int64(42), db.lastArgs[1])

	raw, ok := db.lastArgs[2].([]byte)
	require.True(t, ok)
	msgs, err := decodeChat(raw)
	require.NoError(t, err)
	require.Equal(t, conv.Messages, msgs)
}

func TestPostgresCreateConversation_Error(t *testing.T) {
	db := &fakePG{row: fakeRow{err: &pgconn.PgError{Code: "23505"}}}
	s := mustNewPostgresStore(t, db)
	_, err := s.CreateConversation(context.Background(), domain.NewConversation{ChatKey: 1})
	require.ErrorContains(t, err, "23505")
}

func TestPostgresAppendAndPersist(t *testing.T) {
	db := &fakePG{tag: "UPDATE 1"}
	s := mustNewPostgresStore(t, db)
	conv := &domain.Conversation{ID: "9", Messages: []domain.Message{{Role: domain.RoleSystem, Content: "p"}}}

	require.NoError(t, s.AppendAndPersist(context.Background(), conv, domain.Message{Role: domain.RoleUser, Content: "hi"}))
	require.Len(t, db.execs, 1)
	require.Equal(t, int64(9), db.execs[0].args[0])
	require.Len(t, conv.Messages, 2)
}

func TestPostgresAppendAndPersist_Failures(t *testing.T) {
	conv := &domain.Conversation{ID: "9"}
	msg := domain.Message{Role: domain.RoleUser, Content: "hi"}

	s := mustNewPostgresStore(t, &fakePG{tag: "UPDATE 0"})
	require.ErrorIs(t, s.AppendAndPersist(context.Background(), conv, msg), ErrNotFound)
	require.Empty(t, conv.Messages)

	s = mustNewPostgresStore(t, &fakePG{execErr: errors.New("boom")})
	require.ErrorContains(t, s.AppendAndPersist(context.Background(), conv, msg), "boom")

	s = mustNewPostgresStore(t, &fakePG{tag: "UPDATE 1"})
	require.ErrorContains(t, s.AppendAndPersist(context.Background(), &domain.Conversation{ID: "abc"}, msg), "invalid conversation id")
}

func TestPostgresUpdateTokenUsage(t *testing.T) {
	db := &fakePG{tag: "UPDATE 1"}
	s := mustNewPostgresStore(t, db)

	require.NoError(t, s.UpdateTokenUsage(context.Background(), "9", 0))
	require.Empty(t, db.execs)

	require.NoError(t, s.UpdateTokenUsage(context.Background(), "9", 900))
	require.Equal(t, []any{int64(9), 900}, db.execs[0].args)
}

func TestPostgresLatestLesson(t *testing.T) {
	db := &fakePG{row: fakeRow{values: []any{"You are Bruno", "Hi {{NAME}}", ""}}}
	s := mustNewPostgresStore(t, db)
	l, err := s.LatestLesson(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.Lesson{Prompt: "You are Bruno", Starter: "Hi {{NAME}}"}, l)

	db.row = fakeRow{err: pgx.ErrNoRows}
	_, err = s.LatestLesson(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresRecordTranscription(t *testing.T) {
	db := &fakePG{tag: "INSERT 0 1"}
	s := mustNewPostgresStore(t, db)
	require.NoError(t, s.RecordTranscription(context.Background(), "a.ogg", "hello"))
	require.Equal(t, []any{"a.ogg", "hello"}, db.execs[0].args)
}
