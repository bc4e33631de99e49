package tool

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/educaia/agenthub/core"
)

// QueryExecutor runs tenant-scoped, read-only lookups against the relational
// store. Implementations must scope every query to the tenant id and reject
// tables outside their allowlist.
type QueryExecutor interface {
	SelectRows(ctx context.Context, tenantID, table string, limit int) ([]map[string]any, error)
}

const databaseQueryDefaultLimit = 20

// NewDatabaseQueryTool builds the database_query tool. It is marked sensitive:
// the engine suspends the stream until a human approves the lookup.
func NewDatabaseQueryTool(executor QueryExecutor) *FunctionTool {
	return NewFunctionTool(
		"database_query",
		"Look up rows from an allowed database table of the current school. Use only when the knowledge base cannot answer.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"table": map[string]any{
					"type":        "string",
					"description": "Table name to read from",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of rows to return",
				},
			},
			"required": []string{"table"},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			table, _ := args["table"].(string)
			limit := databaseQueryDefaultLimit
			if v, ok := args["limit"].(float64); ok && v > 0 {
				limit = int(v)
			}

			rows, err := executor.SelectRows(toolCtx.Context(), toolCtx.TenantID(), table, limit)
			if err != nil {
				return nil, fmt.Errorf("database query failed: %w", err)
			}
			return map[string]any{"table": table, "rows": rows, "count": len(rows)}, nil
		},
		func(o *FunctionToolOptions) { o.Sensitive = true },
	)
}

// SQLQueryExecutor implements QueryExecutor over database/sql with a table
// allowlist. Tables are interpolated from the allowlist only, never from
// model input directly.
type SQLQueryExecutor struct {
	db      *sql.DB
	allowed map[string]bool
}

// NewSQLQueryExecutor creates an executor restricted to the given tables.
// Every allowed table must carry a tenant_id column.
func NewSQLQueryExecutor(db *sql.DB, allowedTables []string) *SQLQueryExecutor {
	allowed := make(map[string]bool, len(allowedTables))
	for _, t := range allowedTables {
		allowed[t] = true
	}
	return &SQLQueryExecutor{db: db, allowed: allowed}
}

// SelectRows implements QueryExecutor.
func (e *SQLQueryExecutor) SelectRows(ctx context.Context, tenantID, table string, limit int) ([]map[string]any, error) {
	if !e.allowed[table] {
		return nil, fmt.Errorf("table %q is not allowed", table)
	}
	if limit <= 0 {
		limit = databaseQueryDefaultLimit
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE tenant_id = ? LIMIT ?", table)
	rows, err := e.db.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
