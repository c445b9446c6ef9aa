package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

// ListenerFunc runs the inbound stream workers for one owner until the
// context is canceled
type ListenerFunc func(ctx context.Context, owner string)

// SessionUsecase drives the per-owner login state machine and owns the
// lifecycle of the inbound listeners tied to authenticated sessions.
type SessionUsecase struct {
	sessions repo.SessionRepo
	pending  repo.PendingLoginRepo
	apps     repo.InstanceAppRepo
	cursors  repo.CursorRepo
	masto    repo.MicroblogRepo
	chat     repo.ChatRepo
	mapper   *MapperUsecase
	listener ListenerFunc
	log      zerolog.Logger

	mu        sync.Mutex // guards listeners
	listeners map[string]context.CancelFunc
}

func NewSessionUsecase(
	sessions repo.SessionRepo,
	pending repo.PendingLoginRepo,
	apps repo.InstanceAppRepo,
	cursors repo.CursorRepo,
	masto repo.MicroblogRepo,
	chat repo.ChatRepo,
	mapper *MapperUsecase,
	listener ListenerFunc,
	log zerolog.Logger,
) *SessionUsecase {
	return &SessionUsecase{
		sessions:  sessions,
		pending:   pending,
		apps:      apps,
		cursors:   cursors,
		masto:     masto,
		chat:      chat,
		mapper:    mapper,
		listener:  listener,
		log:       log.With().Str("component", "sessions").Logger(),
		listeners: make(map[string]context.CancelFunc),
	}
}

// Session returns the owner's session, nil if none exists
func (u *SessionUsecase) Session(ctx context.Context, owner string) (*domain.Session, error) {
	return u.sessions.GetByOwner(ctx, owner)
}

// Authorized reports whether the owner holds an authenticated session
func (u *SessionUsecase) Authorized(ctx context.Context, owner string) (*domain.Session, error) {
	s, err := u.sessions.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if s == nil || !s.Authenticated() {
		return nil, domain.ErrNotLoggedIn
	}
	return s, nil
}

// StartLogin begins an OAuth login against the given instance and returns
// the authorization URL the owner must open. App credentials are
// registered once per instance and shared between owners.
func (u *SessionUsecase) StartLogin(ctx context.Context, owner, instanceURL string) (string, error) {
	instanceURL = domain.NormalizeInstanceURL(instanceURL)
	existing, err := u.sessions.GetByOwner(ctx, owner)
	if err != nil {
		return "", err
	}
	// re-login to the same instance refreshes the credential in place;
	// switching instances requires an explicit logout
	if existing.Authenticated() && existing.InstanceURL != instanceURL {
		return "", domain.ErrAlreadyLoggedIn
	}

	creds, err := u.apps.Get(ctx, instanceURL)
	if err != nil {
		return "", err
	}
	var authURL string
	if creds == nil {
		var registered domain.AppCreds
		registered, authURL, err = u.masto.RegisterApp(ctx, instanceURL)
		if err != nil {
			if errors.Is(err, domain.ErrInstance) || errors.Is(err, domain.ErrAuth) {
				return "", fmt.Errorf("%w: cannot reach %s", domain.ErrInvalidInstance, instanceURL)
			}
			return "", err
		}
		if err := u.apps.Save(ctx, instanceURL, registered); err != nil {
			return "", err
		}
		creds = &registered
	} else {
		authURL = u.masto.AuthorizationURL(instanceURL, *creds)
	}

	now := time.Now()
	if err := u.pending.Save(ctx, &domain.PendingLogin{
		Owner:       owner,
		InstanceURL: instanceURL,
		App:         *creds,
		CreatedAt:   now,
	}); err != nil {
		return "", err
	}
	session := existing
	if session == nil {
		session = &domain.Session{Owner: owner, CreatedAt: now}
	}
	session.InstanceURL = instanceURL
	session.Status = domain.StatusPendingCode
	session.Touch()
	if err := u.sessions.Save(ctx, session); err != nil {
		return "", err
	}
	u.log.Info().Str("owner", owner).Str("instance", instanceURL).Msg("oauth login started")
	return authURL, nil
}

// PendingLogin returns the owner's in-flight OAuth login, nil if none
func (u *SessionUsecase) PendingLogin(ctx context.Context, owner string) (*domain.PendingLogin, error) {
	return u.pending.Get(ctx, owner)
}

// CompleteLogin finishes an OAuth login with the authorization code the
// owner pasted back. A bad code leaves the login pending so the owner can
// retry with a fresh code.
func (u *SessionUsecase) CompleteLogin(ctx context.Context, owner, code string) (*domain.Session, error) {
	p, err := u.pending.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotLoggedIn
	}
	token, err := u.masto.ExchangeCode(ctx, p.InstanceURL, p.App, code)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			return nil, domain.ErrInvalidCode
		}
		return nil, err
	}
	return u.finishLogin(ctx, owner, p.InstanceURL, token)
}

// LoginWithPassword performs the direct credential login
func (u *SessionUsecase) LoginWithPassword(ctx context.Context, owner, instanceURL, user, password string) (*domain.Session, error) {
	instanceURL = domain.NormalizeInstanceURL(instanceURL)
	existing, err := u.sessions.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if existing.Authenticated() && existing.InstanceURL != instanceURL {
		return nil, domain.ErrAlreadyLoggedIn
	}
	token, err := u.masto.PasswordLogin(ctx, instanceURL, user, password)
	if err != nil {
		return nil, err
	}
	return u.finishLogin(ctx, owner, instanceURL, token)
}

// finishLogin persists the authenticated session, seeds delivery to start
// from now, provisions the owner's conversations and starts the listener
func (u *SessionUsecase) finishLogin(ctx context.Context, owner, instanceURL, token string) (*domain.Session, error) {
	account, err := u.masto.VerifyCredentials(ctx, instanceURL, token)
	if err != nil {
		return nil, err
	}
	existing, err := u.sessions.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	session := existing
	if session == nil {
		session = &domain.Session{Owner: owner, CreatedAt: now}
	}
	session.InstanceURL = instanceURL
	session.Token = token
	session.Status = domain.StatusAuthenticated
	session.AccountID = account.ID
	session.Acct = account.Acct
	session.Touch()
	if err := u.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	if err := u.pending.Delete(ctx, owner); err != nil {
		return nil, err
	}
	// empty cursors make the workers seed from the newest items, so the
	// owner does not receive pre-login backlog
	for _, stream := range []domain.StreamKind{domain.StreamHome, domain.StreamNotifications, domain.StreamDirect} {
		if err := u.cursors.Clear(ctx, owner, stream); err != nil {
			return nil, err
		}
	}
	if err := u.mapper.EnsureOwnerChats(ctx, owner); err != nil {
		u.log.Warn().Err(err).Str("owner", owner).Msg("failed to provision owner conversations")
	}
	u.startListener(owner)
	u.log.Info().Str("owner", owner).Str("acct", session.Acct).Msg("login complete")
	return session, nil
}

// Logout stops the owner's listener and forgets the session. Mappings and
// cursors survive so a later login resumes into the same conversations.
func (u *SessionUsecase) Logout(ctx context.Context, owner string) error {
	s, err := u.sessions.GetByOwner(ctx, owner)
	if err != nil {
		return err
	}
	if s == nil {
		return domain.ErrNotLoggedIn
	}
	u.stopListener(owner)
	if err := u.pending.Delete(ctx, owner); err != nil {
		return err
	}
	if err := u.sessions.Delete(ctx, owner); err != nil {
		return err
	}
	u.log.Info().Str("owner", owner).Msg("logged out")
	return nil
}

// Reauthenticate marks an authenticated session expired after the
// instance rejected its token, stops the listener and tells the owner.
// It is a no-op unless the session is currently authenticated, so
// concurrent workers produce a single notice.
func (u *SessionUsecase) Reauthenticate(ctx context.Context, owner string) {
	s, err := u.sessions.GetByOwner(ctx, owner)
	if err != nil || s == nil || s.Status != domain.StatusAuthenticated {
		return
	}
	if err := u.sessions.SetStatus(ctx, owner, domain.StatusExpired); err != nil {
		u.log.Error().Err(err).Str("owner", owner).Msg("failed to expire session")
		return
	}
	u.stopListener(owner)
	u.log.Warn().Str("owner", owner).Str("instance", s.InstanceURL).Msg("session expired")
	if conv, err := u.mapper.Resolve(ctx, domain.HomeEndpoint(owner)); err == nil {
		msg := fmt.Sprintf("Your session on %s is no longer valid. Use /login %s to sign in again.", s.InstanceHost(), s.InstanceURL)
		if err := u.chat.SendMessage(ctx, conv, msg); err != nil {
			u.log.Debug().Err(err).Str("owner", owner).Msg("failed to send expiry notice")
		}
	}
}

// MuteStream toggles delivery of the home or notifications stream. Muting
// clears the cursor so unmuting resumes from now instead of replaying the
// muted window.
func (u *SessionUsecase) MuteStream(ctx context.Context, owner string, stream domain.StreamKind, muted bool) error {
	if _, err := u.Authorized(ctx, owner); err != nil {
		return err
	}
	if err := u.sessions.SetMuted(ctx, owner, stream, muted); err != nil {
		return err
	}
	if muted {
		if err := u.cursors.Clear(ctx, owner, stream); err != nil {
			return err
		}
	}
	u.log.Info().Str("owner", owner).Str("stream", string(stream)).Bool("muted", muted).Msg("stream mute changed")
	return nil
}

// StartListeners rebuilds inbound listeners for every authenticated
// session, called once at startup
func (u *SessionUsecase) StartListeners(ctx context.Context) error {
	sessions, err := u.sessions.ListAuthenticated(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		u.startListener(s.Owner)
	}
	u.log.Info().Int("count", len(sessions)).Msg("inbound listeners started")
	return nil
}

// StopListeners cancels every running listener
func (u *SessionUsecase) StopListeners() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for owner, cancel := range u.listeners {
		cancel()
		delete(u.listeners, owner)
	}
}

func (u *SessionUsecase) startListener(owner string) {
	if u.listener == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, running := u.listeners[owner]; running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	u.listeners[owner] = cancel
	go u.listener(ctx, owner)
}

func (u *SessionUsecase) stopListener(owner string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if cancel, ok := u.listeners[owner]; ok {
		cancel()
		delete(u.listeners, owner)
	}
}
