package usecase

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
)

func TestFormatPost(t *testing.T) {
	p := &domain.Post{
		ID:         "12345",
		Author:     domain.Author{Acct: "carol@masto.example", DisplayName: "Carol"},
		HTML:       "<p>Hello <b>world</b></p>",
		URL:        "https://masto.example/@carol/12345",
		Visibility: domain.VisibilityPublic,
		CreatedAt:  time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}
	out := FormatPost(p)

	for _, want := range []string{
		"Carol (@carol@masto.example):",
		"Hello world",
		"🌎 2026-03-01 12:30",
		"https://masto.example/@carol/12345",
		"/reply_12345",
		"/star_12345",
		"/boost_12345",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatPostBoost(t *testing.T) {
	p := &domain.Post{
		ID:         "9",
		Author:     domain.Author{Acct: "orig@masto.example"},
		Booster:    &domain.Author{Acct: "fan@masto.example"},
		HTML:       "<p>classic</p>",
		Visibility: domain.VisibilityUnlisted,
		CreatedAt:  time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	out := FormatPost(p)
	if !strings.HasPrefix(out, "🔁 fan@masto.example boosted\n") {
		t.Errorf("boost header missing:\n%s", out)
	}
	if !strings.Contains(out, "🔓") {
		t.Errorf("unlisted marker missing:\n%s", out)
	}
}

func TestFormatPostBotMarker(t *testing.T) {
	p := &domain.Post{
		ID:        "1",
		Author:    domain.Author{Acct: "feed@masto.example", DisplayName: "News", Bot: true},
		HTML:      "<p>headline</p>",
		CreatedAt: time.Now(),
	}
	if out := FormatPost(p); !strings.Contains(out, "[BOT] News (@feed@masto.example)") {
		t.Errorf("bot marker missing:\n%s", out)
	}
}

func TestFormatNotification(t *testing.T) {
	status := &domain.Post{ID: "5", HTML: "<p>my toot</p>"}
	cases := []struct {
		n    *domain.Notification
		want string
	}{
		{&domain.Notification{Kind: domain.NotifFollow, From: domain.Author{ID: "7", Acct: "carol@masto.example"}}, "followed you"},
		{&domain.Notification{Kind: domain.NotifReblog, From: domain.Author{Acct: "carol@masto.example"}, Status: status}, "boosted your toot"},
		{&domain.Notification{Kind: domain.NotifFavourite, From: domain.Author{Acct: "carol@masto.example"}, Status: status}, "favorited your toot"},
	}
	for _, tc := range cases {
		out := FormatNotification(tc.n)
		if !strings.Contains(out, tc.want) {
			t.Errorf("%s rendering %q missing %q", tc.n.Kind, out, tc.want)
		}
	}
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("ü", 200)
	n := &domain.Notification{
		Kind:   domain.NotifFavourite,
		From:   domain.Author{ID: "9", Acct: "carol@masto.example"},
		Status: &domain.Post{HTML: "<p>" + long + "</p>"},
	}
	got := FormatNotification(n)
	if !utf8.ValidString(got) {
		t.Fatalf("excerpt split a rune: %q", got)
	}
	if !strings.Contains(got, strings.Repeat("ü", 120)+"…") {
		t.Fatalf("excerpt = %q", got)
	}
}
