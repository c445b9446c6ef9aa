package domain

import (
	"strings"
	"time"
)

// SessionStatus represents the authentication state of a bridge user
type SessionStatus string

const (
	StatusUnauthenticated SessionStatus = "unauthenticated"
	StatusPendingCode     SessionStatus = "pending_code"
	StatusAuthenticated   SessionStatus = "authenticated"
	StatusExpired         SessionStatus = "expired"
)

// Session represents one bridge user's Mastodon account link
type Session struct {
	Owner       string // chat-side identity that owns this login
	InstanceURL string
	Token       string
	Status      SessionStatus
	AccountID   string // Mastodon account id
	Acct        string // Mastodon handle, e.g. "user" or "user@other.host"
	MutedHome   bool
	MutedNotif  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Authenticated checks if the session can authorize Mastodon calls
func (s *Session) Authenticated() bool {
	return s != nil && s.Status == StatusAuthenticated && s.Token != ""
}

// InstanceHost returns the instance host without scheme
func (s *Session) InstanceHost() string {
	return InstanceHost(s.InstanceURL)
}

// Touch updates active time
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// PendingLogin represents an OAuth login waiting for its authorization code
type PendingLogin struct {
	Owner       string
	InstanceURL string
	App         AppCreds
	CreatedAt   time.Time
}

// AppCreds is an OAuth application registered on an instance
type AppCreds struct {
	ClientID     string
	ClientSecret string
}

// NormalizeInstanceURL forces https and strips trailing slashes
func NormalizeInstanceURL(url string) string {
	url = strings.TrimSpace(url)
	if strings.HasPrefix(url, "http://") {
		url = "https://" + url[len("http://"):]
	} else if !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	return strings.TrimRight(url, "/")
}

// InstanceHost returns the host part of an instance URL
func InstanceHost(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		url = url[i+3:]
	}
	return strings.TrimRight(url, "/")
}
