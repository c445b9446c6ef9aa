package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

// InboundUsecase polls the remote streams of authenticated owners and
// delivers new items into their mapped conversations. Each owner runs
// three independent workers (home, notifications, direct messages) with
// their own cursors, so a failure in one stream never stalls the others.
type InboundUsecase struct {
	sessions repo.SessionRepo
	cursors  repo.CursorRepo
	masto    repo.MicroblogRepo
	chat     repo.ChatRepo
	mapper   *MapperUsecase
	log      zerolog.Logger

	pollInterval  time.Duration
	onAuthFailure func(ctx context.Context, owner string)
}

func NewInboundUsecase(
	sessions repo.SessionRepo,
	cursors repo.CursorRepo,
	masto repo.MicroblogRepo,
	chat repo.ChatRepo,
	mapper *MapperUsecase,
	pollInterval time.Duration,
	log zerolog.Logger,
) *InboundUsecase {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &InboundUsecase{
		sessions:     sessions,
		cursors:      cursors,
		masto:        masto,
		chat:         chat,
		mapper:       mapper,
		log:          log.With().Str("component", "inbound").Logger(),
		pollInterval: pollInterval,
	}
}

// SetAuthFailureHandler installs the callback invoked when an instance
// rejects the owner's token. Set once during wiring, before any worker
// starts.
func (u *InboundUsecase) SetAuthFailureHandler(fn func(ctx context.Context, owner string)) {
	u.onAuthFailure = fn
}

// RunOwner runs the three stream workers for one owner until ctx is
// canceled or the session stops being usable
func (u *InboundUsecase) RunOwner(ctx context.Context, owner string) {
	g, ctx := errgroup.WithContext(ctx)
	for _, stream := range []domain.StreamKind{domain.StreamHome, domain.StreamNotifications, domain.StreamDirect} {
		stream := stream
		g.Go(func() error {
			return u.runStream(ctx, owner, stream)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		u.log.Warn().Err(err).Str("owner", owner).Msg("stream workers stopped")
	}
}

// runStream polls one stream in a loop. Instance trouble backs off
// exponentially and resets on the next success; an auth failure hands the
// owner to the failure handler and ends the worker.
func (u *InboundUsecase) runStream(ctx context.Context, owner string, stream domain.StreamKind) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Second
	policy.MaxInterval = 5 * time.Minute
	policy.MaxElapsedTime = 0
	policy.Reset()

	wait := u.pollInterval
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		err := u.pollOnce(ctx, owner, stream)
		switch {
		case err == nil:
			policy.Reset()
			wait = u.pollInterval
		case errors.Is(err, context.Canceled):
			return err
		case errors.Is(err, domain.ErrAuth):
			u.log.Warn().Str("owner", owner).Str("stream", string(stream)).Msg("token rejected")
			if u.onAuthFailure != nil {
				u.onAuthFailure(ctx, owner)
			}
			return nil
		default:
			wait = policy.NextBackOff()
			u.log.Warn().Err(err).Str("owner", owner).Str("stream", string(stream)).Dur("retry_in", wait).Msg("poll failed")
		}
	}
}

// pollOnce fetches and delivers everything new on one stream
func (u *InboundUsecase) pollOnce(ctx context.Context, owner string, stream domain.StreamKind) error {
	s, err := u.sessions.GetByOwner(ctx, owner)
	if err != nil {
		return err
	}
	if s == nil || !s.Authenticated() {
		return domain.ErrAuth
	}
	switch stream {
	case domain.StreamHome:
		return u.pollHome(ctx, s)
	case domain.StreamNotifications:
		return u.pollNotifications(ctx, s)
	case domain.StreamDirect:
		return u.pollDirect(ctx, s)
	}
	return nil
}

func (u *InboundUsecase) pollHome(ctx context.Context, s *domain.Session) error {
	if s.MutedHome {
		return nil
	}
	since, err := u.cursors.Get(ctx, s.Owner, domain.StreamHome)
	if err != nil {
		return err
	}
	posts, err := u.masto.FetchHome(ctx, s, since)
	if err != nil {
		return err
	}
	if since == "" {
		return u.seed(ctx, s.Owner, domain.StreamHome, lastStreamID(posts))
	}

	groups, err := u.mapper.HashtagGroupsFor(ctx, s.Owner)
	if err != nil {
		return err
	}
	for _, p := range posts {
		// the owner's own mentions arrive through the notifications stream
		if !p.MentionsAccount(s.AccountID) {
			conv, err := u.mapper.Resolve(ctx, domain.HomeEndpoint(s.Owner))
			if err != nil {
				return err
			}
			if err := u.chat.SendMessage(ctx, conv, FormatPost(p)); err != nil {
				return err
			}
			for _, g := range groups {
				if domain.TagsIntersect(p.Tags, g.Endpoint.Tags()) {
					if err := u.chat.SendMessage(ctx, g.Conv, FormatPost(p)); err != nil {
						return err
					}
				}
			}
		}
		if err := u.cursors.Set(ctx, s.Owner, domain.StreamHome, p.StreamID); err != nil {
			return err
		}
	}
	return nil
}

func (u *InboundUsecase) pollNotifications(ctx context.Context, s *domain.Session) error {
	since, err := u.cursors.Get(ctx, s.Owner, domain.StreamNotifications)
	if err != nil {
		return err
	}
	notifs, err := u.masto.FetchNotifications(ctx, s, since)
	if err != nil {
		return err
	}
	if since == "" {
		return u.seed(ctx, s.Owner, domain.StreamNotifications, lastNotifID(notifs))
	}
	for _, n := range notifs {
		if !(s.MutedNotif && n.Muteable()) {
			conv, err := u.mapper.Resolve(ctx, domain.NotificationsEndpoint(s.Owner))
			if err != nil {
				return err
			}
			var msg string
			if n.Kind == domain.NotifMention && n.Status != nil {
				msg = FormatPost(n.Status)
			} else {
				msg = FormatNotification(n)
			}
			if err := u.chat.SendMessage(ctx, conv, msg); err != nil {
				return err
			}
		}
		if err := u.cursors.Set(ctx, s.Owner, domain.StreamNotifications, n.ID); err != nil {
			return err
		}
	}
	return nil
}

func (u *InboundUsecase) pollDirect(ctx context.Context, s *domain.Session) error {
	since, err := u.cursors.Get(ctx, s.Owner, domain.StreamDirect)
	if err != nil {
		return err
	}
	posts, err := u.masto.FetchDirect(ctx, s, since)
	if err != nil {
		return err
	}
	if since == "" {
		return u.seed(ctx, s.Owner, domain.StreamDirect, lastStreamID(posts))
	}
	for _, p := range posts {
		conv, err := u.mapper.Resolve(ctx, domain.DirectEndpoint(s.Owner, p.Author.Acct))
		if err != nil {
			return err
		}
		if err := u.chat.SendMessage(ctx, conv, FormatPost(p)); err != nil {
			return err
		}
		if err := u.cursors.Set(ctx, s.Owner, domain.StreamDirect, p.StreamID); err != nil {
			return err
		}
	}
	return nil
}

// seed checkpoints the newest remote id without delivering anything, so a
// fresh or reset cursor starts the stream from now
func (u *InboundUsecase) seed(ctx context.Context, owner string, stream domain.StreamKind, newest string) error {
	if newest == "" {
		return nil
	}
	u.log.Debug().Str("owner", owner).Str("stream", string(stream)).Str("cursor", newest).Msg("cursor seeded")
	return u.cursors.Set(ctx, owner, stream, newest)
}

func lastStreamID(posts []*domain.Post) string {
	if len(posts) == 0 {
		return ""
	}
	return posts[len(posts)-1].StreamID
}

func lastNotifID(notifs []*domain.Notification) string {
	if len(notifs) == 0 {
		return ""
	}
	return notifs[len(notifs)-1].ID
}
