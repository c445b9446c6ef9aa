package repo

import (
	"context"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
)

// MicroblogRepo is the Mastodon client interface. Implementations must
// classify transport errors into the domain taxonomy (domain.ErrAuth,
// domain.ErrInstance, domain.ErrContentRejected).
type MicroblogRepo interface {
	// RegisterApp registers (or reuses) an OAuth application on the
	// instance and returns its credentials plus the authorization URL the
	// user must open
	RegisterApp(ctx context.Context, instanceURL string) (domain.AppCreds, string, error)

	// AuthorizationURL rebuilds the authorization URL for already
	// registered app credentials
	AuthorizationURL(instanceURL string, creds domain.AppCreds) string

	// ExchangeCode trades an authorization code for an access token
	ExchangeCode(ctx context.Context, instanceURL string, creds domain.AppCreds, code string) (string, error)

	// PasswordLogin performs the direct credential exchange
	PasswordLogin(ctx context.Context, instanceURL, user, password string) (string, error)

	// VerifyCredentials resolves the account behind a token
	VerifyCredentials(ctx context.Context, instanceURL, token string) (*domain.Author, error)

	// PostStatus publishes a status; inReplyTo may be empty
	PostStatus(ctx context.Context, s *domain.Session, text string, visibility domain.Visibility, inReplyTo string) error

	// FetchHome returns home timeline posts strictly after sinceID in
	// chronological order; with an empty sinceID it returns the newest page
	FetchHome(ctx context.Context, s *domain.Session, sinceID string) ([]*domain.Post, error)

	// FetchNotifications returns notifications strictly after sinceID in
	// chronological order, excluding items that belong to the direct
	// message stream
	FetchNotifications(ctx context.Context, s *domain.Session, sinceID string) ([]*domain.Notification, error)

	// FetchDirect returns incoming direct messages strictly after sinceID
	// in chronological order
	FetchDirect(ctx context.Context, s *domain.Session, sinceID string) ([]*domain.Post, error)

	// LookupAccount resolves a handle or numeric id to an account
	LookupAccount(ctx context.Context, s *domain.Session, handle string) (*domain.Author, error)

	// SendDirectMessage posts a direct-visibility status addressed to handle
	SendDirectMessage(ctx context.Context, s *domain.Session, handle, text string) error

	// Account relationship actions, by account id
	Follow(ctx context.Context, s *domain.Session, accountID string) error
	Unfollow(ctx context.Context, s *domain.Session, accountID string) error
	Block(ctx context.Context, s *domain.Session, accountID string) error
	Unblock(ctx context.Context, s *domain.Session, accountID string) error
	Mute(ctx context.Context, s *domain.Session, accountID string) error
	Unmute(ctx context.Context, s *domain.Session, accountID string) error

	// Status actions
	Favourite(ctx context.Context, s *domain.Session, tootID string) error
	Reblog(ctx context.Context, s *domain.Session, tootID string) error

	// UpdateBio updates the account biography
	UpdateBio(ctx context.Context, s *domain.Session, note string) error

	// FetchProfile returns the detailed profile of an account, including
	// the owner's relationship to it and its latest toots
	FetchProfile(ctx context.Context, s *domain.Session, accountID string) (*domain.Profile, error)

	// FetchThread returns a toot with its ancestors and replies, oldest
	// first
	FetchThread(ctx context.Context, s *domain.Session, tootID string) ([]*domain.Post, error)

	// Search queries the instance for matching accounts and hashtags
	Search(ctx context.Context, s *domain.Session, query string) (*domain.SearchResults, error)
}
