package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/educaia/agenthub/core"
)

// SQLiteStore implements core.ConversationStore using SQLite. Deletes are
// tombstones (deleted_at is set); tombstoned rows stay out of every scoped
// read path but remain in the table for audit.
type SQLiteStore struct {
	db *sql.DB
}

var _ core.ConversationStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open conversation db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate conversation db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection, running the migration.
// Useful when conversations, feedback and knowledge share one database file.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate conversation db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			tenant_id  TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			deleted_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_scope
			ON conversations (tenant_id, user_id, updated_at);
		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			payload         TEXT NOT NULL,
			created_at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages (conversation_id, seq);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create implements core.ConversationStore.
func (s *SQLiteStore) Create(ctx context.Context, scope core.Scope) (*core.Conversation, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	conv := &core.Conversation{
		ID:        NewConversationID(),
		TenantID:  scope.TenantID,
		UserID:    scope.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, tenant_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		conv.ID, conv.TenantID, conv.UserID,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, &core.PersistenceError{Op: "create conversation", Err: err}
	}
	return conv, nil
}

// Append implements core.ConversationStore.
func (s *SQLiteStore) Append(ctx context.Context, scope core.Scope, conversationID string, msg core.Message) error {
	if err := s.checkScope(ctx, scope, conversationID); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return &core.PersistenceError{Op: "encode message", Err: err}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.PersistenceError{Op: "append message", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO messages (conversation_id, payload, created_at) VALUES (?, ?, ?)",
		conversationID, string(payload), now,
	); err != nil {
		return &core.PersistenceError{Op: "append message", Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		now, conversationID,
	); err != nil {
		return &core.PersistenceError{Op: "append message", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &core.PersistenceError{Op: "append message", Err: err}
	}
	return nil
}

// History implements core.ConversationStore.
func (s *SQLiteStore) History(ctx context.Context, scope core.Scope, conversationID string) ([]core.Message, error) {
	if err := s.checkScope(ctx, scope, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM messages WHERE conversation_id = ? ORDER BY seq",
		conversationID,
	)
	if err != nil {
		return nil, &core.PersistenceError{Op: "read history", Err: err}
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, &core.PersistenceError{Op: "read history", Err: err}
		}
		var msg core.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, &core.PersistenceError{Op: "decode message", Err: err}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "read history", Err: err}
	}
	return messages, nil
}

// List implements core.ConversationStore.
func (s *SQLiteStore) List(ctx context.Context, scope core.Scope, limit int) ([]core.ConversationSummary, error) {
	// The title comes from the first user-role message, matching the
	// in-memory store.
	query := `
		SELECT c.id, c.created_at, c.updated_at,
			COALESCE((SELECT m.payload FROM messages m
				WHERE m.conversation_id = c.id
				AND json_extract(m.payload, '$.role') = 'user'
				ORDER BY m.seq LIMIT 1), '')
		FROM conversations c
		WHERE c.tenant_id = ? AND c.user_id = ? AND c.deleted_at IS NULL
		ORDER BY c.updated_at DESC`
	args := []any{scope.TenantID, scope.UserID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &core.PersistenceError{Op: "list conversations", Err: err}
	}
	defer rows.Close()

	var out []core.ConversationSummary
	for rows.Next() {
		var id, createdAt, updatedAt, payload string
		if err := rows.Scan(&id, &createdAt, &updatedAt, &payload); err != nil {
			return nil, &core.PersistenceError{Op: "list conversations", Err: err}
		}
		summary := core.ConversationSummary{ID: id}
		summary.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		summary.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		if payload != "" {
			var first core.Message
			if err := json.Unmarshal([]byte(payload), &first); err == nil {
				summary.Title = truncateTitle(first.Text())
			}
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}

// Delete implements core.ConversationStore by setting the tombstone.
func (s *SQLiteStore) Delete(ctx context.Context, scope core.Scope, conversationID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET deleted_at = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ? AND user_id = ? AND deleted_at IS NULL`,
		now, now, conversationID, scope.TenantID, scope.UserID,
	)
	if err != nil {
		return &core.PersistenceError{Op: "delete conversation", Err: err}
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &core.NotFoundError{Kind: "conversation", ID: conversationID}
	}
	return nil
}

// checkScope verifies the conversation exists, is not tombstoned and belongs
// to the scope. Any miss yields NotFoundError.
func (s *SQLiteStore) checkScope(ctx context.Context, scope core.Scope, conversationID string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM conversations WHERE id = ? AND tenant_id = ? AND user_id = ? AND deleted_at IS NULL",
		conversationID, scope.TenantID, scope.UserID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return &core.NotFoundError{Kind: "conversation", ID: conversationID}
	}
	if err != nil {
		return &core.PersistenceError{Op: "check conversation", Err: err}
	}
	return nil
}
