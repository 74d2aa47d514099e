package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"

	"wapi-nlq/internal/models"
)

const DefaultTable = "query_log"

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresSink stores records in a relational table.
type PostgresSink struct {
	db    *sql.DB
	table string
}

func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}
	return &PostgresSink{db: db, table: table}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

// EnsureSchema creates the history table when it is missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id UUID PRIMARY KEY,
		query TEXT NOT NULL,
		intent TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		strategy TEXT,
		escalated BOOLEAN NOT NULL DEFAULT FALSE,
		entities JSONB,
		status TEXT NOT NULL,
		detail JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`, s.table))
	if err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

func (s *PostgresSink) Write(ctx context.Context, rec models.QueryRecord) error {
	entities, err := json.Marshal(rec.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}

	var detail interface{}
	if len(rec.Detail) > 0 {
		detail = string(rec.Detail)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, query, intent, confidence, strategy, escalated, entities, status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Query,
		rec.Intent,
		rec.Confidence,
		rec.Strategy,
		rec.Escalated,
		string(entities),
		string(rec.Status),
		detail,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", s.table, err)
	}
	return nil
}
