package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

// sessionRepo implements the Session store
type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new session store
func NewSessionRepo(db *sql.DB) (repo.SessionRepo, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			owner TEXT PRIMARY KEY,
			instance_url TEXT NOT NULL,
			token TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			account_id TEXT NOT NULL DEFAULT '',
			acct TEXT NOT NULL DEFAULT '',
			muted_home INTEGER NOT NULL DEFAULT 0,
			muted_notif INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}
	return &sessionRepo{db: db}, nil
}

// GetByOwner gets a session by owner
func (r *sessionRepo) GetByOwner(ctx context.Context, owner string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT owner, instance_url, token, status, account_id, acct,
		       muted_home, muted_notif, created_at, updated_at
		FROM sessions
		WHERE owner = ?
	`, owner)
	return scanSession(row)
}

// Save saves a session
func (r *sessionRepo) Save(ctx context.Context, s *domain.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(owner, instance_url, token, status, account_id, acct,
			 muted_home, muted_notif, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.Owner,
		s.InstanceURL,
		s.Token,
		string(s.Status),
		s.AccountID,
		s.Acct,
		boolToInt(s.MutedHome),
		boolToInt(s.MutedNotif),
		s.CreatedAt.Unix(),
		s.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete deletes a session
func (r *sessionRepo) Delete(ctx context.Context, owner string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE owner = ?`, owner)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SetStatus updates only the connection status
func (r *sessionRepo) SetStatus(ctx context.Context, owner string, status domain.SessionStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, updated_at = ? WHERE owner = ?
	`, string(status), time.Now().Unix(), owner)
	if err != nil {
		return fmt.Errorf("failed to set session status: %w", err)
	}
	return nil
}

// SetMuted updates the mute flag for the home or notifications stream
func (r *sessionRepo) SetMuted(ctx context.Context, owner string, stream domain.StreamKind, muted bool) error {
	col := ""
	switch stream {
	case domain.StreamHome:
		col = "muted_home"
	case domain.StreamNotifications:
		col = "muted_notif"
	default:
		return fmt.Errorf("stream %q has no mute flag", stream)
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET `+col+` = ?, updated_at = ? WHERE owner = ?`,
		boolToInt(muted), time.Now().Unix(), owner)
	if err != nil {
		return fmt.Errorf("failed to set mute flag: %w", err)
	}
	return nil
}

// ListAuthenticated lists sessions in the Authenticated state
func (r *sessionRepo) ListAuthenticated(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner, instance_url, token, status, account_id, acct,
		       muted_home, muted_notif, created_at, updated_at
		FROM sessions
		WHERE status = ?
		ORDER BY owner
	`, string(domain.StatusAuthenticated))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var status string
	var mutedHome, mutedNotif int
	var createdAt, updatedAt int64
	err := row.Scan(&s.Owner, &s.InstanceURL, &s.Token, &status, &s.AccountID, &s.Acct,
		&mutedHome, &mutedNotif, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	s.Status = domain.SessionStatus(status)
	s.MutedHome = mutedHome != 0
	s.MutedNotif = mutedNotif != 0
	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
