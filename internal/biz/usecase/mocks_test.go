package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *fakeSessionRepo) GetByOwner(_ context.Context, owner string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[owner]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepo) Save(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.sessions[s.Owner] = &copied
	return nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, owner)
	return nil
}

func (r *fakeSessionRepo) SetStatus(_ context.Context, owner string, status domain.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[owner]
	if !ok {
		return fmt.Errorf("no session for %s", owner)
	}
	s.Status = status
	return nil
}

func (r *fakeSessionRepo) SetMuted(_ context.Context, owner string, stream domain.StreamKind, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[owner]
	if !ok {
		return fmt.Errorf("no session for %s", owner)
	}
	switch stream {
	case domain.StreamHome:
		s.MutedHome = muted
	case domain.StreamNotifications:
		s.MutedNotif = muted
	default:
		return fmt.Errorf("stream %s has no mute flag", stream)
	}
	return nil
}

func (r *fakeSessionRepo) ListAuthenticated(_ context.Context) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.sessions {
		if s.Status == domain.StatusAuthenticated {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakePendingRepo struct {
	mu      sync.Mutex
	pending map[string]*domain.PendingLogin
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{pending: make(map[string]*domain.PendingLogin)}
}

func (r *fakePendingRepo) Get(_ context.Context, owner string) (*domain.PendingLogin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[owner]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (r *fakePendingRepo) Save(_ context.Context, p *domain.PendingLogin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.pending[p.Owner] = &copied
	return nil
}

func (r *fakePendingRepo) Delete(_ context.Context, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, owner)
	return nil
}

type fakeAppRepo struct {
	mu   sync.Mutex
	apps map[string]domain.AppCreds
}

func newFakeAppRepo() *fakeAppRepo {
	return &fakeAppRepo{apps: make(map[string]domain.AppCreds)}
}

func (r *fakeAppRepo) Get(_ context.Context, instanceURL string) (*domain.AppCreds, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	creds, ok := r.apps[instanceURL]
	if !ok {
		return nil, nil
	}
	return &creds, nil
}

func (r *fakeAppRepo) Save(_ context.Context, instanceURL string, creds domain.AppCreds) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[instanceURL] = creds
	return nil
}

type fakeMappingRepo struct {
	mu       sync.Mutex
	byConv   map[string]domain.Mapping
	byEndpnt map[string]string // endpoint id -> conv
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{
		byConv:   make(map[string]domain.Mapping),
		byEndpnt: make(map[string]string),
	}
}

func (r *fakeMappingRepo) GetByConv(_ context.Context, conv string) (*domain.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mp, ok := r.byConv[conv]
	if !ok {
		return nil, nil
	}
	return &mp, nil
}

func (r *fakeMappingRepo) GetByEndpoint(_ context.Context, ep domain.Endpoint) (*domain.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byEndpnt[ep.ID()]
	if !ok {
		return nil, nil
	}
	mp := r.byConv[conv]
	return &mp, nil
}

func (r *fakeMappingRepo) ListByKind(_ context.Context, owner string, kind domain.EndpointKind) ([]*domain.Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Mapping
	for _, mp := range r.byConv {
		if mp.Endpoint.Owner == owner && mp.Endpoint.Kind == kind {
			copied := mp
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeMappingRepo) Save(_ context.Context, mp *domain.Mapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byEndpnt[mp.Endpoint.ID()]; taken {
		return fmt.Errorf("endpoint %s already mapped", mp.Endpoint.ID())
	}
	r.byConv[mp.Conv] = *mp
	r.byEndpnt[mp.Endpoint.ID()] = mp.Conv
	return nil
}

func (r *fakeMappingRepo) UpdateKey(_ context.Context, conv, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mp, ok := r.byConv[conv]
	if !ok {
		return fmt.Errorf("conversation %s is not mapped", conv)
	}
	delete(r.byEndpnt, mp.Endpoint.ID())
	mp.Endpoint.Key = key
	r.byConv[conv] = mp
	r.byEndpnt[mp.Endpoint.ID()] = conv
	return nil
}

func (r *fakeMappingRepo) Delete(_ context.Context, conv string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mp, ok := r.byConv[conv]
	if !ok {
		return nil
	}
	delete(r.byEndpnt, mp.Endpoint.ID())
	delete(r.byConv, conv)
	return nil
}

type fakeCursorRepo struct {
	mu      sync.Mutex
	cursors map[string]string
}

func newFakeCursorRepo() *fakeCursorRepo {
	return &fakeCursorRepo{cursors: make(map[string]string)}
}

func cursorKey(owner string, stream domain.StreamKind) string {
	return owner + "|" + string(stream)
}

func (r *fakeCursorRepo) Get(_ context.Context, owner string, stream domain.StreamKind) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursors[cursorKey(owner, stream)], nil
}

func (r *fakeCursorRepo) Set(_ context.Context, owner string, stream domain.StreamKind, lastID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursors[cursorKey(owner, stream)] = lastID
	return nil
}

func (r *fakeCursorRepo) Clear(_ context.Context, owner string, stream domain.StreamKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cursors, cursorKey(owner, stream))
	return nil
}

// fakeChat records everything sent through the chat transport
type fakeChat struct {
	mu       sync.Mutex
	nextConv int
	created  []string            // conversation names in creation order
	messages map[string][]string // conv -> sent texts
	renamed  map[string]string
	left     []string
	sendErr  error
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		messages: make(map[string][]string),
		renamed:  make(map[string]string),
	}
}

func (c *fakeChat) SendMessage(_ context.Context, conv, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.messages[conv] = append(c.messages[conv], text)
	return nil
}

func (c *fakeChat) CreateConversation(_ context.Context, name string, _ []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextConv++
	c.created = append(c.created, name)
	return fmt.Sprintf("conv-%d", c.nextConv), nil
}

func (c *fakeChat) RenameConversation(_ context.Context, conv, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renamed[conv] = name
	return nil
}

func (c *fakeChat) SetAvatar(_ context.Context, _ string, _ []byte) error { return nil }

func (c *fakeChat) LeaveConversation(_ context.Context, conv string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = append(c.left, conv)
	return nil
}

func (c *fakeChat) Events(_ context.Context) (<-chan domain.ChatEvent, error) {
	ch := make(chan domain.ChatEvent)
	close(ch)
	return ch, nil
}

func (c *fakeChat) sent(conv string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages[conv]...)
}

func (c *fakeChat) createdNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.created...)
}

// fakeMicroblog scripts the Mastodon side and records mutating calls
type fakeMicroblog struct {
	mu sync.Mutex

	registerErr error
	exchangeErr error
	passwordErr error
	account     *domain.Author
	accounts    map[string]*domain.Author // handle -> account

	homePosts   []*domain.Post
	notifs      []*domain.Notification
	directPosts []*domain.Post
	fetchErr    error

	postErr   error
	actionErr error
	profiles  map[string]*domain.Profile      // account id -> profile
	threads   map[string][]*domain.Post       // toot id -> thread
	searches  map[string]*domain.SearchResults // query -> results
	calls     []string // "method arg" log of mutating calls
}

func newFakeMicroblog() *fakeMicroblog {
	return &fakeMicroblog{
		account:  &domain.Author{ID: "1", Acct: "owner@masto.example"},
		accounts: make(map[string]*domain.Author),
		profiles: make(map[string]*domain.Profile),
		threads:  make(map[string][]*domain.Post),
		searches: make(map[string]*domain.SearchResults),
	}
}

func (m *fakeMicroblog) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *fakeMicroblog) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *fakeMicroblog) RegisterApp(_ context.Context, instanceURL string) (domain.AppCreds, string, error) {
	if m.registerErr != nil {
		return domain.AppCreds{}, "", m.registerErr
	}
	m.record("register " + instanceURL)
	return domain.AppCreds{ClientID: "cid", ClientSecret: "csec"}, instanceURL + "/oauth/authorize?client_id=cid", nil
}

func (m *fakeMicroblog) AuthorizationURL(instanceURL string, creds domain.AppCreds) string {
	return instanceURL + "/oauth/authorize?client_id=" + creds.ClientID
}

func (m *fakeMicroblog) ExchangeCode(_ context.Context, _ string, _ domain.AppCreds, code string) (string, error) {
	if m.exchangeErr != nil {
		return "", m.exchangeErr
	}
	return "token-" + code, nil
}

func (m *fakeMicroblog) PasswordLogin(_ context.Context, _, user, _ string) (string, error) {
	if m.passwordErr != nil {
		return "", m.passwordErr
	}
	return "token-" + user, nil
}

func (m *fakeMicroblog) VerifyCredentials(_ context.Context, _, _ string) (*domain.Author, error) {
	return m.account, nil
}

func (m *fakeMicroblog) PostStatus(_ context.Context, _ *domain.Session, text string, visibility domain.Visibility, inReplyTo string) error {
	if m.postErr != nil {
		return m.postErr
	}
	m.record(fmt.Sprintf("post vis=%s reply=%s %s", visibility, inReplyTo, text))
	return nil
}

func (m *fakeMicroblog) FetchHome(_ context.Context, _ *domain.Session, sinceID string) ([]*domain.Post, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return afterPost(m.homePosts, sinceID), nil
}

func (m *fakeMicroblog) FetchNotifications(_ context.Context, _ *domain.Session, sinceID string) ([]*domain.Notification, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	start := 0
	for i, n := range m.notifs {
		if n.ID == sinceID {
			start = i + 1
		}
	}
	return append([]*domain.Notification(nil), m.notifs[start:]...), nil
}

func (m *fakeMicroblog) FetchDirect(_ context.Context, _ *domain.Session, sinceID string) ([]*domain.Post, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return afterPost(m.directPosts, sinceID), nil
}

// afterPost returns the posts strictly after sinceID; an id that is not
// in the feed anymore behaves like the beginning of the feed
func afterPost(posts []*domain.Post, sinceID string) []*domain.Post {
	start := 0
	for i, p := range posts {
		if p.StreamID == sinceID {
			start = i + 1
		}
	}
	return append([]*domain.Post(nil), posts[start:]...)
}

func (m *fakeMicroblog) LookupAccount(_ context.Context, _ *domain.Session, handle string) (*domain.Author, error) {
	a, ok := m.accounts[domain.NormalizeHandle(handle)]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

func (m *fakeMicroblog) SendDirectMessage(_ context.Context, _ *domain.Session, handle, text string) error {
	if m.postErr != nil {
		return m.postErr
	}
	m.record(fmt.Sprintf("dm %s %s", handle, text))
	return nil
}

func (m *fakeMicroblog) Follow(_ context.Context, _ *domain.Session, id string) error {
	m.record("follow " + id)
	return nil
}

func (m *fakeMicroblog) Unfollow(_ context.Context, _ *domain.Session, id string) error {
	m.record("unfollow " + id)
	return nil
}

func (m *fakeMicroblog) Block(_ context.Context, _ *domain.Session, id string) error {
	m.record("block " + id)
	return nil
}

func (m *fakeMicroblog) Unblock(_ context.Context, _ *domain.Session, id string) error {
	m.record("unblock " + id)
	return nil
}

func (m *fakeMicroblog) Mute(_ context.Context, _ *domain.Session, id string) error {
	m.record("mute " + id)
	return nil
}

func (m *fakeMicroblog) Unmute(_ context.Context, _ *domain.Session, id string) error {
	m.record("unmute " + id)
	return nil
}

func (m *fakeMicroblog) Favourite(_ context.Context, _ *domain.Session, id string) error {
	if m.actionErr != nil {
		return m.actionErr
	}
	m.record("favourite " + id)
	return nil
}

func (m *fakeMicroblog) Reblog(_ context.Context, _ *domain.Session, id string) error {
	if m.actionErr != nil {
		return m.actionErr
	}
	m.record("reblog " + id)
	return nil
}

func (m *fakeMicroblog) UpdateBio(_ context.Context, _ *domain.Session, note string) error {
	m.record("bio " + note)
	return nil
}

func (m *fakeMicroblog) FetchProfile(_ context.Context, _ *domain.Session, accountID string) (*domain.Profile, error) {
	if m.actionErr != nil {
		return nil, m.actionErr
	}
	p, ok := m.profiles[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return p, nil
}

func (m *fakeMicroblog) FetchThread(_ context.Context, _ *domain.Session, tootID string) ([]*domain.Post, error) {
	if m.actionErr != nil {
		return nil, m.actionErr
	}
	return append([]*domain.Post(nil), m.threads[tootID]...), nil
}

func (m *fakeMicroblog) Search(_ context.Context, _ *domain.Session, query string) (*domain.SearchResults, error) {
	if m.actionErr != nil {
		return nil, m.actionErr
	}
	if r, ok := m.searches[query]; ok {
		return r, nil
	}
	return &domain.SearchResults{}, nil
}
