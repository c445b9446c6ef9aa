package repo

import (
	"context"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
)

// MappingRepo is the conversation↔endpoint mapping store interface.
// Mappings are bidirectional and scoped per owner (SQLite).
type MappingRepo interface {
	// GetByConv gets the mapping for a conversation; nil if unmapped
	GetByConv(ctx context.Context, conv string) (*domain.Mapping, error)

	// GetByEndpoint gets the mapping for an endpoint; nil if none
	GetByEndpoint(ctx context.Context, ep domain.Endpoint) (*domain.Mapping, error)

	// ListByKind lists an owner's mappings of one endpoint kind
	ListByKind(ctx context.Context, owner string, kind domain.EndpointKind) ([]*domain.Mapping, error)

	// Save saves a mapping; fails if the endpoint is already mapped to a
	// different conversation
	Save(ctx context.Context, m *domain.Mapping) error

	// UpdateKey rewrites the endpoint key of an existing mapping
	// (hashtag group renames)
	UpdateKey(ctx context.Context, conv, key string) error

	// Delete removes the mapping for a conversation
	Delete(ctx context.Context, conv string) error
}
