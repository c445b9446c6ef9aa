package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

// mappingRepo implements the conversation↔endpoint mapping store
type mappingRepo struct {
	db *sql.DB
}

// NewMappingRepo creates a new mapping store
func NewMappingRepo(db *sql.DB) (repo.MappingRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS mappings (
			conv_id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			kind TEXT NOT NULL,
			key TEXT NOT NULL DEFAULT '',
			UNIQUE (owner, kind, key)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create mappings table: %w", err)
	}
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_mappings_owner_kind ON mappings(owner, kind)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create mappings index: %w", err)
	}
	return &mappingRepo{db: db}, nil
}

// GetByConv gets the mapping for a conversation
func (r *mappingRepo) GetByConv(ctx context.Context, conv string) (*domain.Mapping, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT conv_id, owner, kind, key FROM mappings WHERE conv_id = ?
	`, conv)
	return scanMapping(row)
}

// GetByEndpoint gets the mapping for an endpoint
func (r *mappingRepo) GetByEndpoint(ctx context.Context, ep domain.Endpoint) (*domain.Mapping, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT conv_id, owner, kind, key FROM mappings
		WHERE owner = ? AND kind = ? AND key = ?
	`, ep.Owner, string(ep.Kind), ep.Key)
	return scanMapping(row)
}

// ListByKind lists an owner's mappings of one endpoint kind
func (r *mappingRepo) ListByKind(ctx context.Context, owner string, kind domain.EndpointKind) ([]*domain.Mapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conv_id, owner, kind, key FROM mappings
		WHERE owner = ? AND kind = ?
		ORDER BY conv_id
	`, owner, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*domain.Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// Save saves a mapping. The UNIQUE(owner, kind, key) constraint enforces
// the at-most-one-conversation invariant at the storage layer.
func (r *mappingRepo) Save(ctx context.Context, m *domain.Mapping) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mappings (conv_id, owner, kind, key) VALUES (?, ?, ?, ?)
	`, m.Conv, m.Endpoint.Owner, string(m.Endpoint.Kind), m.Endpoint.Key)
	if err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	return nil
}

// UpdateKey rewrites the endpoint key of an existing mapping
func (r *mappingRepo) UpdateKey(ctx context.Context, conv, key string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mappings SET key = ? WHERE conv_id = ?
	`, key, conv)
	if err != nil {
		return fmt.Errorf("failed to update mapping key: %w", err)
	}
	return nil
}

// Delete removes the mapping for a conversation
func (r *mappingRepo) Delete(ctx context.Context, conv string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mappings WHERE conv_id = ?`, conv)
	if err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return nil
}

func scanMapping(row rowScanner) (*domain.Mapping, error) {
	var m domain.Mapping
	var kind string
	err := row.Scan(&m.Conv, &m.Endpoint.Owner, &kind, &m.Endpoint.Key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan mapping: %w", err)
	}
	m.Endpoint.Kind = domain.EndpointKind(kind)
	return &m, nil
}
