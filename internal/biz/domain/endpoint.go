package domain

import (
	"sort"
	"strings"
)

// EndpointKind represents the kind of bridge-side target a conversation
// is mapped to
type EndpointKind string

const (
	KindHome          EndpointKind = "home"
	KindNotifications EndpointKind = "notifications"
	KindDirect        EndpointKind = "dm"
	KindHashtag       EndpointKind = "hashtag"
)

// Endpoint is a logical bridge-side target. Its identity is
// (Owner, Kind, Key): Key is the correspondent handle for direct chats,
// the normalized tag list for hashtag groups, and empty otherwise.
type Endpoint struct {
	Owner string
	Kind  EndpointKind
	Key   string
}

// HomeEndpoint returns the owner's Home timeline endpoint
func HomeEndpoint(owner string) Endpoint {
	return Endpoint{Owner: owner, Kind: KindHome}
}

// NotificationsEndpoint returns the owner's notifications endpoint
func NotificationsEndpoint(owner string) Endpoint {
	return Endpoint{Owner: owner, Kind: KindNotifications}
}

// DirectEndpoint returns the endpoint for a private conversation with
// the given remote handle
func DirectEndpoint(owner, handle string) Endpoint {
	return Endpoint{Owner: owner, Kind: KindDirect, Key: NormalizeHandle(handle)}
}

// HashtagEndpoint returns the endpoint for a hashtag group following the
// given tags
func HashtagEndpoint(owner string, tags []string) Endpoint {
	return Endpoint{Owner: owner, Kind: KindHashtag, Key: HashtagKey(tags)}
}

// Tags returns the hashtag set of a hashtag endpoint
func (e Endpoint) Tags() []string {
	if e.Kind != KindHashtag || e.Key == "" {
		return nil
	}
	return strings.Fields(e.Key)
}

// ID is the unique identity of the endpoint within one owner's mappings
func (e Endpoint) ID() string {
	return e.Owner + "|" + string(e.Kind) + "|" + e.Key
}

// Mapping is the persisted association between one chat conversation and
// one endpoint
type Mapping struct {
	Conv     string
	Endpoint Endpoint
}

// NormalizeHandle lowercases a Mastodon handle and strips the leading @
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// HashtagKey canonicalizes a tag set: lowercased, deduplicated, sorted,
// space separated
func HashtagKey(tags []string) string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimPrefix(tag, "#"))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return strings.Join(out, " ")
}

// ParseHashtags extracts the hashtag set from a conversation display name.
// Every whitespace or comma separated token must be a #tag, otherwise the
// name is not a hashtag list and nil is returned.
func ParseHashtags(name string) []string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ','
	})
	if len(fields) == 0 {
		return nil
	}
	var tags []string
	for _, f := range fields {
		if !strings.HasPrefix(f, "#") || len(f) == 1 {
			return nil
		}
		tags = append(tags, strings.ToLower(f[1:]))
	}
	return tags
}

// TagsIntersect checks whether two tag sets share at least one tag
func TagsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[strings.ToLower(t)] = true
	}
	for _, t := range b {
		if set[strings.ToLower(t)] {
			return true
		}
	}
	return false
}
