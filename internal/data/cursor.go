package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

// cursorRepo implements the delivery cursor store
type cursorRepo struct {
	db *sql.DB
}

// NewCursorRepo creates a new cursor store
func NewCursorRepo(db *sql.DB) (repo.CursorRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cursors (
			owner TEXT NOT NULL,
			stream TEXT NOT NULL,
			last_id TEXT NOT NULL,
			PRIMARY KEY (owner, stream)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create cursors table: %w", err)
	}
	return &cursorRepo{db: db}, nil
}

// Get gets the cursor; empty string if none is stored
func (r *cursorRepo) Get(ctx context.Context, owner string, stream domain.StreamKind) (string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT last_id FROM cursors WHERE owner = ? AND stream = ?
	`, owner, string(stream))

	var lastID string
	err := row.Scan(&lastID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query cursor: %w", err)
	}
	return lastID, nil
}

// Set checkpoints the cursor
func (r *cursorRepo) Set(ctx context.Context, owner string, stream domain.StreamKind, lastID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cursors (owner, stream, last_id) VALUES (?, ?, ?)
	`, owner, string(stream), lastID)
	if err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}
	return nil
}

// Clear removes the cursor so the stream reseeds
func (r *cursorRepo) Clear(ctx context.Context, owner string, stream domain.StreamKind) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM cursors WHERE owner = ? AND stream = ?
	`, owner, string(stream))
	if err != nil {
		return fmt.Errorf("failed to clear cursor: %w", err)
	}
	return nil
}
