package usecase

import (
	"fmt"
	"strings"

	"github.com/k3a/html2text"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
)

// FormatPost renders a toot as a chat message: author header, plain-text
// body, then a footer with visibility, timestamp, link and quick-action
// hints.
func FormatPost(p *domain.Post) string {
	var b strings.Builder
	if p.Booster != nil {
		b.WriteString("🔁 ")
		b.WriteString(p.Booster.Name())
		b.WriteString(" boosted\n")
	}
	b.WriteString(p.Author.Name())
	b.WriteString(":\n")
	b.WriteString(htmlToText(p.HTML))
	b.WriteString("\n")
	for _, url := range p.Attachments {
		b.WriteString(url)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(p.Visibility.Marker())
	b.WriteString(" ")
	b.WriteString(p.CreatedAt.Format("2006-01-02 15:04"))
	if p.URL != "" {
		b.WriteString(" · ")
		b.WriteString(p.URL)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "/reply_%s  /star_%s  /boost_%s", p.ID, p.ID, p.ID)
	return b.String()
}

// FormatNotification renders a non-mention notification as a one-line
// notice. Mention notifications render through FormatPost instead.
func FormatNotification(n *domain.Notification) string {
	name := n.From.Name()
	switch n.Kind {
	case domain.NotifFollow:
		return fmt.Sprintf("👤 %s followed you\n/follow_%s  /block_%s", name, n.From.ID, n.From.ID)
	case domain.NotifReblog:
		return fmt.Sprintf("🔁 %s boosted your toot:\n%s", name, excerpt(n.Status))
	case domain.NotifFavourite:
		return fmt.Sprintf("⭐ %s favorited your toot:\n%s", name, excerpt(n.Status))
	}
	return fmt.Sprintf("%s: %s", name, excerpt(n.Status))
}

func excerpt(p *domain.Post) string {
	if p == nil {
		return ""
	}
	text := htmlToText(p.HTML)
	const max = 120
	runes := []rune(text)
	if len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return text
}

const tootSeparator = "\n\n―――――――――――――――\n\n"

// FormatProfile renders an account profile: metadata fields, biography,
// counters, relationship quick actions and the latest toots
func FormatProfile(p *domain.Profile) string {
	var b strings.Builder
	b.WriteString(p.Account.Name())
	b.WriteString(":\n")
	for _, f := range p.Fields {
		fmt.Fprintf(&b, "%s: %s\n", htmlToText(f.Name), htmlToText(f.Value))
	}
	if note := htmlToText(p.NoteHTML); note != "" {
		b.WriteString("\n")
		b.WriteString(note)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nToots: %d\nFollowing: %d\nFollowers: %d", p.Toots, p.Following, p.Followers)
	if p.Rel != nil {
		if p.Rel.FollowedBy {
			b.WriteString("\n[follows you]")
		}
		id := p.Account.ID
		if p.Rel.Following || p.Rel.Requested {
			fmt.Fprintf(&b, "\n\n/unfollow_%s", id)
		} else {
			fmt.Fprintf(&b, "\n\n/follow_%s", id)
		}
		if p.Rel.Muting {
			fmt.Fprintf(&b, "\n/unmute_%s", id)
		} else {
			fmt.Fprintf(&b, "\n/mute_%s", id)
		}
		if p.Rel.Blocking {
			fmt.Fprintf(&b, "\n/unblock_%s", id)
		} else {
			fmt.Fprintf(&b, "\n/block_%s", id)
		}
		fmt.Fprintf(&b, "\n/dm_%s", id)
	}
	if len(p.Recent) > 0 {
		b.WriteString(tootSeparator)
		b.WriteString(FormatThread(p.Recent))
	}
	return b.String()
}

// FormatThread renders a list of toots joined by a separator line
func FormatThread(posts []*domain.Post) string {
	parts := make([]string, 0, len(posts))
	for _, p := range posts {
		parts = append(parts, FormatPost(p))
	}
	return strings.Join(parts, tootSeparator)
}

// FormatSearchResults lists matching accounts and hashtags. Accounts
// carry a profile quick action; hashtags can be followed by renaming a
// group to them.
func FormatSearchResults(res *domain.SearchResults) string {
	var b strings.Builder
	if len(res.Accounts) > 0 {
		b.WriteString("👤 Accounts:")
		for _, a := range res.Accounts {
			fmt.Fprintf(&b, "\n@%s /profile_%s", a.Acct, a.ID)
		}
	}
	if len(res.Hashtags) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("#️⃣ Hashtags:")
		for _, tag := range res.Hashtags {
			b.WriteString("\n#")
			b.WriteString(tag)
		}
	}
	return b.String()
}

// htmlToText converts toot HTML to plain text, keeping mention handles
// readable instead of expanding their profile links
func htmlToText(html string) string {
	text := html2text.HTML2TextWithOptions(html, html2text.WithLinksInnerText())
	return strings.TrimSpace(text)
}
