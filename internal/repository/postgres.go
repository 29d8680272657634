package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bruno-bot/internal/domain"
)

// pgxAPI is the subset of *pgxpool.Pool used by PostgresStore.
type pgxAPI interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists conversations in the Supabase schema:
// conversations(id, "userId", chat_id, chat jsonb, token_usage, date, topics),
// lessons(prompt, starter, topics, created_at) and asr_output(file, output).
type PostgresStore struct {
	db  pgxAPI
	now func() time.Time
}

func NewPostgresStore(db pgxAPI) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

const findActiveConversation = `
SELECT id, "userId", chat_id, chat, token_usage, date, COALESCE(topics, '')
FROM conversations
WHERE chat_id = $1 AND date > $2
ORDER BY date DESC
LIMIT 1`

func (s *PostgresStore) FindActiveConversation(ctx context.Context, chatKey int64) (*domain.Conversation, error) {
	cutoff := s.now().Add(-domain.ActiveWindow).UTC()

	var (
		id   int64
		chat []byte
		conv domain.Conversation
	)
	err := s.db.QueryRow(ctx, findActiveConversation, chatKey, cutoff).Scan(
		&id,
		&conv.UserKey,
		&conv.ChatKey,
		&chat,
		&conv.TokenUsage,
		&conv.CreatedAt,
		&conv.Topics,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: FindActiveConversation: %w", err)
	}
	msgs, err := decodeChat(chat)
	if err != nil {
		return nil, err
	}
	conv.ID = strconv.FormatInt(id, 10)
	conv.Messages = msgs
	return &conv, nil
}

const insertConversation = `
INSERT INTO conversations ("userId", chat_id, chat, token_usage, date, topics)
VALUES ($1, $2, $3, 0, $4, $5)
RETURNING id`

func (s *PostgresStore) CreateConversation(ctx context.Context, in domain.NewConversation) (*domain.Conversation, error) {
	userKey := in.UserKey
	if userKey == "" {
		userKey = fmt.Sprintf("Unknown_%d", in.ChatKey)
	}
	conv := &domain.Conversation{
		UserKey:   userKey,
		ChatKey:   in.ChatKey,
		Messages:  in.SeedMessages(),
		CreatedAt: s.now().UTC(),
		Topics:    in.Topics,
	}
	raw, err := encodeChat(conv.Messages)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.db.QueryRow(ctx, insertConversation, conv.UserKey, conv.ChatKey, raw, conv.CreatedAt, conv.Topics).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return nil, fmt.Errorf("repository: CreateConversation: code=%s: %w", pgErr.Code, err)
		}
		return nil, fmt.Errorf("repository: CreateConversation: %w", err)
	}
	conv.ID = strconv.FormatInt(id, 10)
	return conv, nil
}

const updateConversationChat = `UPDATE conversations SET chat = $2 WHERE id = $1`

func (s *PostgresStore) AppendAndPersist(ctx context.Context, conv *domain.Conversation, msgs ...domain.Message) error {
	if err := validateAppend(conv, msgs); err != nil {
		return err
	}
	id, err := parseRowID(conv.ID)
	if err != nil {
		return err
	}
	updated := conv.WithMessages(msgs...)
	raw, err := encodeChat(updated)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, updateConversationChat, id, raw)
	if err != nil {
		return fmt.Errorf("repository: AppendAndPersist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	conv.Messages = updated
	return nil
}

const updateTokenUsage = `UPDATE conversations SET token_usage = $2 WHERE id = $1`

func (s *PostgresStore) UpdateTokenUsage(ctx context.Context, conversationID string, tokens int) error {
	if tokens == 0 {
		return nil
	}
	id, err := parseRowID(conversationID)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, updateTokenUsage, id, tokens)
	if err != nil {
		return fmt.Errorf("repository: UpdateTokenUsage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const latestLesson = `
SELECT prompt, COALESCE(starter, ''), COALESCE(topics, '')
FROM lessons
ORDER BY created_at DESC
LIMIT 1`

func (s *PostgresStore) LatestLesson(ctx context.Context) (domain.Lesson, error) {
	var l domain.Lesson
	if err := s.db.QueryRow(ctx, latestLesson).Scan(&l.Prompt, &l.Starter, &l.Topics); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Lesson{}, ErrNotFound
		}
		return domain.Lesson{}, fmt.Errorf("repository: LatestLesson: %w", err)
	}
	return l, nil
}

const insertTranscription = `INSERT INTO asr_output (file, output) VALUES ($1, $2)`

func (s *PostgresStore) RecordTranscription(ctx context.Context, fileName, output string) error {
	if _, err := s.db.Exec(ctx, insertTranscription, fileName, output); err != nil {
		return fmt.Errorf("repository: RecordTranscription: %w", err)
	}
	return nil
}

func parseRowID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: invalid conversation id %q: %w", id, err)
	}
	return n, nil
}
