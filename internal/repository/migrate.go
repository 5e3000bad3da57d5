package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// schema is applied in order by Migrate; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT COLLATE "C" NOT NULL,
		data       JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents (collection, updated_at)`,
	`CREATE TABLE IF NOT EXISTS document_indexes (
		collection TEXT NOT NULL,
		fields     TEXT NOT NULL,
		index_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, fields)
	)`,
}

// Migrate creates the document tables if they do not exist
func (db *Database) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration step %d: %w", i+1, err)
		}
	}

	log.Info().Int("steps", len(schema)).Msg("Database schema is up to date")
	return nil
}
