package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
)

func post(id, acct, html string, tags ...string) *domain.Post {
	return &domain.Post{
		ID:        id,
		StreamID:  id,
		Author:    domain.Author{ID: "a-" + acct, Acct: acct},
		HTML:      html,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Tags:      tags,
	}
}

func TestHomePollSeedsThenDelivers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.authedOwner(t, "alice")
	e.masto.homePosts = []*domain.Post{
		post("1", "carol@masto.example", "<p>old news</p>"),
		post("2", "carol@masto.example", "<p>older news</p>"),
	}

	// empty cursor: seed only, no backlog delivered
	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamHome); err != nil {
		t.Fatalf("seed poll: %v", err)
	}
	if names := e.chat.createdNames(); len(names) != 0 {
		t.Fatalf("seeding created conversations: %v", names)
	}
	if cur, _ := e.cursorRepo.Get(ctx, "alice", domain.StreamHome); cur != "2" {
		t.Fatalf("cursor = %q after seed, want 2", cur)
	}

	conv, err := e.mapper.Resolve(ctx, domain.HomeEndpoint(s.Owner))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	greeted := len(e.chat.sent(conv))

	e.masto.homePosts = append(e.masto.homePosts, post("3", "carol@masto.example", "<p>fresh toot</p>"))
	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamHome); err != nil {
		t.Fatalf("poll: %v", err)
	}
	sent := e.chat.sent(conv)[greeted:]
	if len(sent) != 1 || !strings.Contains(sent[0], "fresh toot") {
		t.Fatalf("delivered = %v", sent)
	}
	if cur, _ := e.cursorRepo.Get(ctx, "alice", domain.StreamHome); cur != "3" {
		t.Fatalf("cursor = %q, want 3", cur)
	}
}

func TestHomePollNoDuplicatesAcrossRestart(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.authedOwner(t, "alice")
	e.masto.homePosts = []*domain.Post{post("1", "carol@masto.example", "<p>seeded</p>")}

	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamHome); err != nil {
		t.Fatalf("seed: %v", err)
	}
	conv, _ := e.mapper.Resolve(ctx, domain.HomeEndpoint("alice"))
	greeted := len(e.chat.sent(conv))

	e.masto.homePosts = append(e.masto.homePosts, post("2", "carol@masto.example", "<p>hello</p>"))
	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamHome); err != nil {
		t.Fatalf("poll: %v", err)
	}

	// a restarted worker re-reads the cursor and must not redeliver
	fresh := NewInboundUsecase(e.sessionRepo, e.cursorRepo, e.masto, e.chat, e.mapper, time.Second, testLogger())
	if err := fresh.pollOnce(ctx, "alice", domain.StreamHome); err != nil {
		t.Fatalf("restarted poll: %v", err)
	}
	if got := len(e.chat.sent(conv)) - greeted; got != 1 {
		t.Fatalf("delivered %d times, want 1", got)
	}
}

func TestHomePollSkipsOwnerMentions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.authedOwner(t, "alice")
	e.cursorRepo.Set(ctx, "alice", domain.StreamHome, "0")

	conv, _ := e.mapper.Resolve(ctx, domain.HomeEndpoint("alice"))
	greeted := len(e.chat.sent(conv))

	mentioning := post("1", "carol@masto.example", "<p>hey you</p>")
	mentioning.Mentions = []domain.Mention{{ID: s.AccountID, Acct: s.Acct}}
	e.masto.homePosts = []*domain.Post{
		mentioning,
		post("2", "carol@masto.example", "<p>for everyone</p>"),
	}
	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamHome); err != nil {
		t.Fatalf("poll: %v", err)
	}
	sent := e.chat.sent(conv)[greeted:]
	if len(sent) != 1 || !strings.Contains(sent[0], "for everyone") {
		t.Fatalf("delivered = %v, want only the non-mentioning toot", sent)
	}
	// mention still advances the cursor
	if cur, _ := e.cursorRepo.Get(ctx, "alice", domain.StreamHome); cur != "2" {
		t.Fatalf("cursor = %q, want 2", cur)
	}
}

func TestHomePollFansOutToHashtagGroups(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.authedOwner(t, "alice")
	e.cursorRepo.Set(ctx, "alice", domain.StreamHome, "0")

	if err := e.mapper.OnNameChanged(ctx, "group-1", "#deltachat #chatmail", "alice"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	home, _ := e.mapper.Resolve(ctx, domain.HomeEndpoint("alice"))
	greeted := len(e.chat.sent(home))

	e.masto.homePosts = []*domain.Post{
		post("1", "carol@masto.example", "<p>about mail</p>", "chatmail"),
		post("2", "carol@masto.example", "<p>unrelated</p>", "cats"),
	}
	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamHome); err != nil {
		t.Fatalf("poll: %v", err)
	}

	groupSent := e.chat.sent("group-1")
	if len(groupSent) != 1 || !strings.Contains(groupSent[0], "about mail") {
		t.Fatalf("group delivery = %v", groupSent)
	}
	// both posts still land in Home
	if got := len(e.chat.sent(home)) - greeted; got != 2 {
		t.Fatalf("home delivery count = %d, want 2", got)
	}
}

func TestHomePollMutedDeliversNothing(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.authedOwner(t, "alice")
	s.MutedHome = true
	e.sessionRepo.Save(ctx, s)
	e.cursorRepo.Set(ctx, "alice", domain.StreamHome, "0")
	e.masto.homePosts = []*domain.Post{post("1", "carol@masto.example", "<p>hidden</p>")}

	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamHome); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(e.chat.createdNames()) != 0 {
		t.Fatalf("muted home still delivered")
	}
}

func TestNotificationsPoll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.authedOwner(t, "alice")
	e.cursorRepo.Set(ctx, "alice", domain.StreamNotifications, "0")

	conv, _ := e.mapper.Resolve(ctx, domain.NotificationsEndpoint("alice"))
	greeted := len(e.chat.sent(conv))

	mention := post("77", "carol@masto.example", "<p>@alice hi there</p>")
	e.masto.notifs = []*domain.Notification{
		{ID: "1", Kind: domain.NotifFollow, From: domain.Author{ID: "9", Acct: "carol@masto.example"}},
		{ID: "2", Kind: domain.NotifMention, From: mention.Author, Status: mention},
	}
	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamNotifications); err != nil {
		t.Fatalf("poll: %v", err)
	}
	sent := e.chat.sent(conv)[greeted:]
	if len(sent) != 2 {
		t.Fatalf("delivered %d notifications, want 2", len(sent))
	}
	if !strings.Contains(sent[0], "followed you") {
		t.Fatalf("follow notice = %q", sent[0])
	}
	// mentions render as full toots with quick-action hints
	if !strings.Contains(sent[1], "hi there") || !strings.Contains(sent[1], "/reply_77") {
		t.Fatalf("mention rendering = %q", sent[1])
	}
}

func TestNotificationsPollMutedKeepsMentions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.authedOwner(t, "alice")
	s.MutedNotif = true
	e.sessionRepo.Save(ctx, s)
	e.cursorRepo.Set(ctx, "alice", domain.StreamNotifications, "0")

	conv, _ := e.mapper.Resolve(ctx, domain.NotificationsEndpoint("alice"))
	greeted := len(e.chat.sent(conv))

	mention := post("77", "carol@masto.example", "<p>still important</p>")
	e.masto.notifs = []*domain.Notification{
		{ID: "1", Kind: domain.NotifFavourite, From: domain.Author{ID: "9", Acct: "carol@masto.example"}, Status: mention},
		{ID: "2", Kind: domain.NotifMention, From: mention.Author, Status: mention},
	}
	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamNotifications); err != nil {
		t.Fatalf("poll: %v", err)
	}
	sent := e.chat.sent(conv)[greeted:]
	if len(sent) != 1 || !strings.Contains(sent[0], "still important") {
		t.Fatalf("muted notifications delivered = %v, want only the mention", sent)
	}
	if cur, _ := e.cursorRepo.Get(ctx, "alice", domain.StreamNotifications); cur != "2" {
		t.Fatalf("cursor = %q, want 2", cur)
	}
}

func TestDirectPollRoutesPerCorrespondent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.authedOwner(t, "alice")
	e.cursorRepo.Set(ctx, "alice", domain.StreamDirect, "0")

	dm1 := post("100", "bob@masto.example", "<p>hi alice</p>")
	dm1.StreamID = "n-1"
	dm1.Visibility = domain.VisibilityDirect
	dm2 := post("101", "carol@other.example", "<p>hello</p>")
	dm2.StreamID = "n-2"
	dm2.Visibility = domain.VisibilityDirect
	e.masto.directPosts = []*domain.Post{dm1, dm2}

	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamDirect); err != nil {
		t.Fatalf("poll: %v", err)
	}
	bobConv, err := e.mapper.Resolve(ctx, domain.DirectEndpoint("alice", "bob@masto.example"))
	if err != nil {
		t.Fatalf("resolve bob: %v", err)
	}
	carolConv, err := e.mapper.Resolve(ctx, domain.DirectEndpoint("alice", "carol@other.example"))
	if err != nil {
		t.Fatalf("resolve carol: %v", err)
	}
	if bobConv == carolConv {
		t.Fatalf("both correspondents share one conversation")
	}
	if sent := e.chat.sent(bobConv); len(sent) != 1 || !strings.Contains(sent[0], "hi alice") {
		t.Fatalf("bob delivery = %v", sent)
	}
	// the cursor tracks the notification id, not the status id
	if cur, _ := e.cursorRepo.Get(ctx, "alice", domain.StreamDirect); cur != "n-2" {
		t.Fatalf("cursor = %q, want n-2", cur)
	}
}

func TestPollAuthFailureHandsOffOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.authedOwner(t, "alice")
	e.cursorRepo.Set(ctx, "alice", domain.StreamHome, "0")
	e.masto.fetchErr = domain.ErrAuth

	var handed string
	e.inbound.SetAuthFailureHandler(func(_ context.Context, owner string) { handed = owner })

	cancelCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		e.inbound.runStream(cancelCtx, "alice", domain.StreamHome)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop on auth failure")
	}
	cancel()
	if handed != "alice" {
		t.Fatalf("auth failure handler got %q, want alice", handed)
	}
}

func TestPollInstanceErrorRetries(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.authedOwner(t, "alice")
	e.cursorRepo.Set(ctx, "alice", domain.StreamHome, "0")
	e.masto.fetchErr = domain.ErrInstance

	// an instance error must not be treated as fatal by pollOnce
	err := e.inbound.pollOnce(ctx, "alice", domain.StreamHome)
	if err == nil || !strings.Contains(err.Error(), "instance") {
		t.Fatalf("got %v, want instance error", err)
	}

	e.masto.fetchErr = nil
	e.masto.homePosts = []*domain.Post{post("1", "carol@masto.example", "<p>back</p>")}
	if err := e.inbound.pollOnce(ctx, "alice", domain.StreamHome); err != nil {
		t.Fatalf("poll after recovery: %v", err)
	}
}
