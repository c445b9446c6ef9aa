package repo

import (
	"context"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
)

// PendingLoginRepo stores in-flight OAuth logins awaiting their
// authorization code
type PendingLoginRepo interface {
	// Get gets the pending login for an owner; nil if none
	Get(ctx context.Context, owner string) (*domain.PendingLogin, error)

	// Save saves a pending login, replacing any previous one for the owner
	Save(ctx context.Context, pending *domain.PendingLogin) error

	// Delete removes the pending login for an owner
	Delete(ctx context.Context, owner string) error
}

// InstanceAppRepo stores the OAuth application registered per instance,
// shared across owners
type InstanceAppRepo interface {
	// Get gets the app credentials for an instance; nil creds and no
	// error if none are stored yet
	Get(ctx context.Context, instanceURL string) (*domain.AppCreds, error)

	// Save stores app credentials for an instance
	Save(ctx context.Context, instanceURL string, creds domain.AppCreds) error
}
