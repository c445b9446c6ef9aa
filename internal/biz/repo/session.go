package repo

import (
	"context"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
)

// SessionRepo is the session store interface.
// Responsible for persisting per-owner auth material (SQLite).
type SessionRepo interface {
	// GetByOwner gets a session by owner; nil if none exists
	GetByOwner(ctx context.Context, owner string) (*domain.Session, error)

	// Save saves a session (create or update)
	Save(ctx context.Context, session *domain.Session) error

	// Delete deletes a session
	Delete(ctx context.Context, owner string) error

	// SetStatus updates only the connection status
	SetStatus(ctx context.Context, owner string, status domain.SessionStatus) error

	// SetMuted updates the mute flag for the home or notifications stream
	SetMuted(ctx context.Context, owner string, stream domain.StreamKind, muted bool) error

	// ListAuthenticated lists sessions in the Authenticated state, used
	// to rebuild stream listeners on startup
	ListAuthenticated(ctx context.Context) ([]*domain.Session, error)
}
