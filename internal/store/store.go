package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/geetalabs/geeta-core/internal/config"
)

// Store persists per-identity message histories and the conversation index
// in a SQLite database. Writes are last-writer-wins full overwrites;
// unreadable rows degrade to empty state rather than failing the caller.
type Store struct {
	db    *sql.DB
	cfg   config.StoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the conversation store according to config.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log.With(slog.String("component", "store")), clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			s.log.Warn("store vacuum failed", slogError(err))
		}
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS histories (
    identity_key TEXT PRIMARY KEY,
    payload BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    payload BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_seq ON conversations(seq);
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveMessages overwrites the stored message sequence for an identity key.
// Saving identical content twice produces identical stored state.
func (s *Store) SaveMessages(ctx context.Context, identityKey string, messages []Message) error {
	if identityKey == "" {
		return errors.New("identity key must not be empty")
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		s.log.Warn("failed to serialize message history", slogError(err))
		return fmt.Errorf("serialize messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO histories(identity_key, payload, updated_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(identity_key) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		identityKey, payload, s.clock().UTC())
	if err != nil {
		s.log.Warn("failed to save message history",
			slog.String("identity", identityKey), slogError(err))
		return fmt.Errorf("save messages: %w", err)
	}
	return nil
}

// LoadMessages returns the stored sequence for an identity key. A missing
// or unparsable payload yields an empty sequence, never a failure.
func (s *Store) LoadMessages(ctx context.Context, identityKey string) ([]Message, error) {
	if identityKey == "" {
		return nil, nil
	}
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM histories WHERE identity_key = ?`, identityKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	var messages []Message
	if err := json.Unmarshal(payload, &messages); err != nil {
		s.log.Warn("discarding corrupt message history",
			slog.String("identity", identityKey), slogError(err))
		return nil, nil
	}
	return messages, nil
}

// SaveConversation upserts a conversation record. New conversations sort
// before existing ones; UpdatedAt strictly increases on every save.
func (s *Store) SaveConversation(ctx context.Context, conv *Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation id must not be empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save conversation: %w", err)
	}
	defer tx.Rollback()

	now := s.clock().UTC()
	var prev time.Time
	var prevRaw string
	err = tx.QueryRowContext(ctx,
		`SELECT updated_at FROM conversations WHERE id = ?`, conv.ID).Scan(&prevRaw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first save
	case err != nil:
		return fmt.Errorf("load previous conversation: %w", err)
	default:
		if ts, perr := time.Parse(time.RFC3339Nano, prevRaw); perr == nil {
			prev = ts
		}
	}
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	conv.UpdatedAt = now
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}

	payload, err := json.Marshal(conv)
	if err != nil {
		s.log.Warn("failed to serialize conversation", slogError(err))
		return fmt.Errorf("serialize conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations(id, seq, payload, created_at, updated_at)
		 VALUES(?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM conversations), ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		conv.ID, payload, conv.CreatedAt.Format(time.RFC3339Nano), conv.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		s.log.Warn("failed to save conversation", slog.String("id", conv.ID), slogError(err))
		return fmt.Errorf("save conversation: %w", err)
	}
	return tx.Commit()
}

// ListConversations returns all conversations newest-first. Rows with
// unreadable payloads are skipped.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM conversations ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var conv Conversation
		if err := json.Unmarshal(payload, &conv); err != nil {
			s.log.Warn("skipping corrupt conversation record", slog.String("id", id), slogError(err))
			continue
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// GetConversation returns a conversation by id, or nil when absent or
// unreadable.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM conversations WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(payload, &conv); err != nil {
		s.log.Warn("discarding corrupt conversation record", slog.String("id", id), slogError(err))
		return nil, nil
	}
	return &conv, nil
}

// DeleteConversation removes a conversation record. Deleting an unknown id
// is a no-op.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// CreateConversation produces a fresh conversation with the seed greeting
// and persists it immediately.
func (s *Store) CreateConversation(ctx context.Context) (*Conversation, error) {
	seed := NewMessage(RoleAssistant, SeedGreeting)
	conv := &Conversation{
		ID:       uuid.NewString(),
		Title:    DefaultTitle,
		Messages: []Message{seed},
	}
	if err := s.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

const activeConversationKey = "active_conversation_id"

// ActiveConversationID returns the active conversation pointer, empty when
// unset.
func (s *Store) ActiveConversationID(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, activeConversationKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load active conversation: %w", err)
	}
	return value, nil
}

// SetActiveConversationID records which conversation the client has open.
func (s *Store) SetActiveConversationID(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		activeConversationKey, id)
	if err != nil {
		return fmt.Errorf("set active conversation: %w", err)
	}
	return nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
