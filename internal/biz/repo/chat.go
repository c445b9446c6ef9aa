package repo

import (
	"context"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
)

// ChatRepo is the chat transport interface. The concrete transport is an
// external collaborator; the bridge only needs these operations.
type ChatRepo interface {
	// SendMessage sends a text message into a conversation
	SendMessage(ctx context.Context, conv, text string) error

	// CreateConversation creates a conversation with the given display
	// name and non-bot members, returning its id
	CreateConversation(ctx context.Context, name string, members []string) (string, error)

	// RenameConversation sets the conversation display name
	RenameConversation(ctx context.Context, conv, name string) error

	// SetAvatar sets the conversation avatar image
	SetAvatar(ctx context.Context, conv string, image []byte) error

	// LeaveConversation makes the bot leave a conversation
	LeaveConversation(ctx context.Context, conv string) error

	// Events returns the transport's inbound feed: messages, member
	// departures and conversation renames. The channel closes when ctx is
	// canceled or the transport shuts down.
	Events(ctx context.Context) (<-chan domain.ChatEvent, error)
}
