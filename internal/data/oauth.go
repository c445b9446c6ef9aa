package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

// pendingLoginRepo implements the pending OAuth login store
type pendingLoginRepo struct {
	db *sql.DB
}

// NewPendingLoginRepo creates a new pending login store
func NewPendingLoginRepo(db *sql.DB) (repo.PendingLoginRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS oauth_pending (
			owner TEXT PRIMARY KEY,
			instance_url TEXT NOT NULL,
			client_id TEXT NOT NULL,
			client_secret TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_pending table: %w", err)
	}
	return &pendingLoginRepo{db: db}, nil
}

// Get gets the pending login for an owner
func (r *pendingLoginRepo) Get(ctx context.Context, owner string) (*domain.PendingLogin, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT owner, instance_url, client_id, client_secret, created_at
		FROM oauth_pending
		WHERE owner = ?
	`, owner)

	var p domain.PendingLogin
	var createdAt int64
	err := row.Scan(&p.Owner, &p.InstanceURL, &p.App.ClientID, &p.App.ClientSecret, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending login: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

// Save saves a pending login
func (r *pendingLoginRepo) Save(ctx context.Context, p *domain.PendingLogin) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO oauth_pending
			(owner, instance_url, client_id, client_secret, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.Owner, p.InstanceURL, p.App.ClientID, p.App.ClientSecret, p.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save pending login: %w", err)
	}
	return nil
}

// Delete removes the pending login for an owner
func (r *pendingLoginRepo) Delete(ctx context.Context, owner string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM oauth_pending WHERE owner = ?`, owner)
	if err != nil {
		return fmt.Errorf("failed to delete pending login: %w", err)
	}
	return nil
}

// instanceAppRepo implements the per-instance OAuth app store
type instanceAppRepo struct {
	db *sql.DB
}

// NewInstanceAppRepo creates a new instance app store
func NewInstanceAppRepo(db *sql.DB) (repo.InstanceAppRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS instance_apps (
			instance_url TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			client_secret TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create instance_apps table: %w", err)
	}
	return &instanceAppRepo{db: db}, nil
}

// Get gets the app credentials for an instance
func (r *instanceAppRepo) Get(ctx context.Context, instanceURL string) (*domain.AppCreds, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT client_id, client_secret FROM instance_apps WHERE instance_url = ?
	`, instanceURL)

	var creds domain.AppCreds
	err := row.Scan(&creds.ClientID, &creds.ClientSecret)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query instance app: %w", err)
	}
	return &creds, nil
}

// Save stores app credentials for an instance
func (r *instanceAppRepo) Save(ctx context.Context, instanceURL string, creds domain.AppCreds) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO instance_apps (instance_url, client_id, client_secret)
		VALUES (?, ?, ?)
	`, instanceURL, creds.ClientID, creds.ClientSecret)
	if err != nil {
		return fmt.Errorf("failed to save instance app: %w", err)
	}
	return nil
}
