package repo

import (
	"context"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
)

// CursorRepo is the delivery cursor store interface. A cursor is the last
// successfully delivered remote item id for one (owner, stream); an empty
// cursor means the stream should seed from the newest remote item without
// delivering backlog.
type CursorRepo interface {
	// Get gets the cursor; empty string if none is stored
	Get(ctx context.Context, owner string, stream domain.StreamKind) (string, error)

	// Set checkpoints the cursor
	Set(ctx context.Context, owner string, stream domain.StreamKind, lastID string) error

	// Clear removes the cursor so the stream reseeds
	Clear(ctx context.Context, owner string, stream domain.StreamKind) error
}
