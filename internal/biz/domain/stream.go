package domain

import "time"

// StreamKind identifies one of the per-owner remote streams
type StreamKind string

const (
	StreamHome          StreamKind = "home"
	StreamNotifications StreamKind = "notifications"
	StreamDirect        StreamKind = "dm"
)

// Visibility represents Mastodon post visibility
type Visibility string

const (
	VisibilityDefault  Visibility = ""
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// Marker returns the emoji marker used when rendering a post footer
func (v Visibility) Marker() string {
	switch v {
	case VisibilityDirect:
		return "✉"
	case VisibilityPrivate:
		return "🔒"
	case VisibilityUnlisted:
		return "🔓"
	default:
		return "🌎"
	}
}

// Author represents a remote Mastodon account
type Author struct {
	ID          string
	Acct        string
	DisplayName string
	Bot         bool
	AvatarURL   string
}

// Name renders the author for chat display
func (a Author) Name() string {
	prefix := ""
	if a.Bot {
		prefix = "[BOT] "
	}
	if a.DisplayName != "" {
		return prefix + a.DisplayName + " (@" + a.Acct + ")"
	}
	return prefix + a.Acct
}

// Mention is an account referenced by a post
type Mention struct {
	ID   string
	Acct string
	URL  string
}

// Post represents a toot from a remote stream. For boosts, Author is the
// original author and Booster the account that boosted it.
type Post struct {
	ID          string
	StreamID    string // id used for cursor checkpointing; equals ID except for DMs
	Author      Author
	Booster     *Author
	HTML        string
	URL         string
	Visibility  Visibility
	CreatedAt   time.Time
	Tags        []string
	Mentions    []Mention
	Attachments []string // media URLs
}

// MentionsAccount checks whether the post mentions the given account id
func (p *Post) MentionsAccount(accountID string) bool {
	for _, m := range p.Mentions {
		if m.ID == accountID {
			return true
		}
	}
	return false
}

// ProfileField is one metadata row of an account profile
type ProfileField struct {
	Name  string
	Value string // HTML
}

// Relationship describes how the owner relates to another account
type Relationship struct {
	Following  bool
	FollowedBy bool
	Requested  bool
	Muting     bool
	Blocking   bool
}

// Profile is the detailed view of an account. Rel is nil when the
// profile belongs to the owner.
type Profile struct {
	Account   Author
	NoteHTML  string
	Fields    []ProfileField
	Toots     int64
	Following int64
	Followers int64
	Rel       *Relationship
	Recent    []*Post // latest toots, oldest first
}

// SearchResults groups the accounts and hashtags matching a query
type SearchResults struct {
	Accounts []Author
	Hashtags []string
}

// NotificationKind represents the type of a Mastodon notification
type NotificationKind string

const (
	NotifFollow    NotificationKind = "follow"
	NotifReblog    NotificationKind = "reblog"
	NotifFavourite NotificationKind = "favourite"
	NotifMention   NotificationKind = "mention"
)

// Notification represents an item from the notifications stream
type Notification struct {
	ID     string
	Kind   NotificationKind
	From   Author
	Status *Post // nil for follow notifications
}

// Muteable checks whether the notification is suppressed when the
// notifications stream is muted; mentions always get through
func (n *Notification) Muteable() bool {
	switch n.Kind {
	case NotifFollow, NotifReblog, NotifFavourite:
		return true
	}
	return false
}
