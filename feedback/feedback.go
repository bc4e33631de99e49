// Package feedback provides FeedbackStore implementations. Feedback is
// additive history: every submission inserts a new record, even for a message
// that already has feedback.
package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/educaia/agenthub/core"
)

// InMemoryStore is a process-local FeedbackStore for tests and demos.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []core.FeedbackRecord
}

var _ core.FeedbackStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory feedback store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Save implements core.FeedbackStore.
func (s *InMemoryStore) Save(_ context.Context, record core.FeedbackRecord) error {
	if err := validate(&record); err != nil {
		return err
	}
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	return nil
}

// ByMessage returns all records for a message in submission order.
func (s *InMemoryStore) ByMessage(messageID string) []core.FeedbackRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.FeedbackRecord
	for _, r := range s.records {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	return out
}

// SQLiteStore implements core.FeedbackStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.FeedbackStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open feedback db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate feedback db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection, running the migration.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate feedback db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS feedback (
			id            TEXT PRIMARY KEY,
			message_id    TEXT NOT NULL,
			tenant_id     TEXT NOT NULL,
			question      TEXT NOT NULL,
			answer        TEXT NOT NULL,
			feedback_type TEXT NOT NULL,
			comment       TEXT NOT NULL DEFAULT '',
			context_used  TEXT NOT NULL DEFAULT '',
			sources       TEXT NOT NULL DEFAULT '[]',
			model_used    TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_feedback_message ON feedback (message_id);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save implements core.FeedbackStore. Plain insert, no dedup.
func (s *SQLiteStore) Save(ctx context.Context, record core.FeedbackRecord) error {
	if err := validate(&record); err != nil {
		return err
	}
	sources, err := json.Marshal(record.Sources)
	if err != nil {
		return &core.PersistenceError{Op: "encode feedback sources", Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feedback
			(id, message_id, tenant_id, question, answer, feedback_type, comment, context_used, sources, model_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.MessageID, record.TenantID, record.Question, record.Answer,
		record.FeedbackType, record.Comment, record.ContextUsed, string(sources),
		record.ModelUsed, record.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return &core.PersistenceError{Op: "save feedback", Err: err}
	}
	return nil
}

// validate fills defaults and rejects malformed records before insert.
func validate(record *core.FeedbackRecord) error {
	if record.MessageID == "" {
		return fmt.Errorf("feedback record missing message id")
	}
	if record.TenantID == "" {
		return fmt.Errorf("feedback record missing tenant id")
	}
	if record.FeedbackType != core.FeedbackLike && record.FeedbackType != core.FeedbackDislike {
		return fmt.Errorf("unknown feedback type %q", record.FeedbackType)
	}
	if record.ID == "" {
		record.ID = core.NewID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return nil
}
