package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/educaia/agenthub/core"
)

// SQLiteIndex stores documents in SQLite and searches them with LIKE matching
// over the content column. Scoring mirrors InMemoryIndex so the two backends
// rank results the same way.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open knowledge db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrateIndex(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate knowledge db: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// NewSQLiteIndexFromDB wraps an existing connection, running the migration.
func NewSQLiteIndexFromDB(db *sql.DB) (*SQLiteIndex, error) {
	if err := migrateIndex(db); err != nil {
		return nil, fmt.Errorf("migrate knowledge db: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

func migrateIndex(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			id        TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			content   TEXT NOT NULL,
			source    TEXT NOT NULL DEFAULT '',
			metadata  TEXT NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents (tenant_id);
	`)
	return err
}

// Close closes the underlying database connection.
func (i *SQLiteIndex) Close() error { return i.db.Close() }

// Add ingests a document. An empty ID is filled in.
func (i *SQLiteIndex) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		doc.ID = core.NewID()
	}
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return &core.PersistenceError{Op: "encode document metadata", Err: err}
	}
	_, err = i.db.ExecContext(ctx,
		`INSERT INTO documents (id, tenant_id, content, source, metadata) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.Content, doc.Source, string(metadata),
	)
	if err != nil {
		return &core.PersistenceError{Op: "add document", Err: err}
	}
	return nil
}

// Search returns up to limit documents of the tenant matching the query,
// ordered by descending score.
func (i *SQLiteIndex) Search(ctx context.Context, tenantID, query string, limit int) ([]core.SearchResult, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	// Pull candidates matching any term, score them in Go. Tenant filtering
	// happens in SQL so other tenants' rows never leave the database.
	where := "tenant_id = ? AND ("
	args := []any{tenantID}
	for n, term := range terms {
		if n > 0 {
			where += " OR "
		}
		where += "content LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(term)+"%")
	}
	where += ")"

	rows, err := i.db.QueryContext(ctx,
		"SELECT id, content, source, metadata FROM documents WHERE "+where, args...)
	if err != nil {
		return nil, &core.PersistenceError{Op: "search documents", Err: err}
	}
	defer rows.Close()

	var results []core.SearchResult
	for rows.Next() {
		var id, content, source, rawMeta string
		if err := rows.Scan(&id, &content, &source, &rawMeta); err != nil {
			return nil, &core.PersistenceError{Op: "scan document", Err: err}
		}
		var metadata map[string]any
		if rawMeta != "" {
			if err := json.Unmarshal([]byte(rawMeta), &metadata); err != nil {
				return nil, &core.PersistenceError{Op: "decode document metadata", Err: err}
			}
		}
		score := scoreDocument(content, terms)
		if score == 0 {
			continue
		}
		results = append(results, core.SearchResult{
			ID:       id,
			Content:  content,
			Score:    score,
			Source:   source,
			Metadata: metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "search documents", Err: err}
	}

	sortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for n := 0; n < len(s); n++ {
		switch s[n] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[n])
	}
	return string(out)
}
