package domain

import "errors"

// Bridge error taxonomy. Transport and client errors are classified into
// these sentinels at the adapter boundary so usecases can branch on them
// with errors.Is.
var (
	// ErrAuth means the credential is invalid or expired; triggers
	// re-authentication and is never retried.
	ErrAuth = errors.New("authentication failed or expired")

	// ErrInstance means the remote instance is unreachable or rejecting
	// requests (network, 5xx, rate limit); transient, retried with backoff.
	ErrInstance = errors.New("instance unreachable or rejecting requests")

	// ErrContentRejected means the instance refused the content itself
	// (length, media policy); surfaced verbatim, not retried.
	ErrContentRejected = errors.New("content rejected by the instance")

	// ErrInvalidInstance means the URL does not resolve to a usable instance.
	ErrInvalidInstance = errors.New("not a usable instance")

	// ErrInvalidCode means the OAuth authorization code was rejected.
	ErrInvalidCode = errors.New("invalid authorization code")

	ErrNotLoggedIn     = errors.New("not logged in")
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrAccountNotFound = errors.New("account not found")

	// ErrNotMapped means the conversation has no endpoint mapping.
	ErrNotMapped = errors.New("conversation is not mapped")

	// ErrReadOnlyEndpoint means the conversation only delivers remote
	// items and cannot publish (Notifications).
	ErrReadOnlyEndpoint = errors.New("conversation is read-only")

	// ErrImmutableEndpointKind means a rename tried to retarget a
	// Home/Notifications/DM conversation into a hashtag group.
	ErrImmutableEndpointKind = errors.New("conversation kind cannot be changed")

	// ErrDuplicateEndpoint means the endpoint is already mapped to
	// another conversation of the same owner.
	ErrDuplicateEndpoint = errors.New("endpoint already mapped to another conversation")
)
