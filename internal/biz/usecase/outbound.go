package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

// OutboundUsecase publishes chat messages written into mapped
// conversations to the owner's Mastodon account. How a message publishes
// depends on the endpoint kind of the conversation.
type OutboundUsecase struct {
	sessions *SessionUsecase
	mapper   *MapperUsecase
	masto    repo.MicroblogRepo
	chat     repo.ChatRepo
	log      zerolog.Logger
}

func NewOutboundUsecase(sessions *SessionUsecase, mapper *MapperUsecase, masto repo.MicroblogRepo, chat repo.ChatRepo, log zerolog.Logger) *OutboundUsecase {
	return &OutboundUsecase{
		sessions: sessions,
		mapper:   mapper,
		masto:    masto,
		chat:     chat,
		log:      log.With().Str("component", "outbound").Logger(),
	}
}

// Post publishes a plain chat message from a mapped conversation. Errors
// the sender can act on become chat replies; only infrastructure errors
// propagate.
func (u *OutboundUsecase) Post(ctx context.Context, conv, sender, text string) error {
	ep, err := u.mapper.LookupEndpoint(ctx, conv)
	if err != nil {
		return err
	}
	if ep.Owner != sender {
		return nil
	}
	s, err := u.sessions.Authorized(ctx, sender)
	if err != nil {
		if errors.Is(err, domain.ErrNotLoggedIn) {
			return u.chat.SendMessage(ctx, conv, "You are not logged in. Use /login <instance-url> to connect an account.")
		}
		return err
	}

	switch ep.Kind {
	case domain.KindHome:
		err = u.masto.PostStatus(ctx, s, text, domain.VisibilityDefault, "")
	case domain.KindDirect:
		err = u.masto.SendDirectMessage(ctx, s, ep.Key, text)
	case domain.KindHashtag:
		err = u.masto.PostStatus(ctx, s, withTags(text, ep.Tags()), domain.VisibilityPublic, "")
	case domain.KindNotifications:
		err = domain.ErrReadOnlyEndpoint
	default:
		return fmt.Errorf("unknown endpoint kind %q", ep.Kind)
	}

	if errors.Is(err, domain.ErrReadOnlyEndpoint) {
		return u.chat.SendMessage(ctx, conv, "The notifications chat is read-only. Write in your Home chat to post a toot.")
	}
	if errors.Is(err, domain.ErrContentRejected) {
		return u.chat.SendMessage(ctx, conv, fmt.Sprintf("Your instance rejected the post: %v", err))
	}
	if errors.Is(err, domain.ErrAuth) {
		u.sessions.Reauthenticate(ctx, sender)
		return nil
	}
	if err != nil {
		u.log.Warn().Err(err).Str("owner", sender).Str("endpoint", ep.ID()).Msg("outbound post failed")
		return err
	}
	u.log.Info().Str("owner", sender).Str("endpoint", ep.ID()).Msg("posted")
	return nil
}

// withTags appends the group's hashtags that the text does not already
// carry, so every post from a hashtag group lands in its own feed
func withTags(text string, tags []string) string {
	present := make(map[string]bool)
	for _, f := range strings.Fields(text) {
		if strings.HasPrefix(f, "#") {
			present[strings.ToLower(strings.TrimPrefix(f, "#"))] = true
		}
	}
	var missing []string
	for _, tag := range tags {
		if !present[tag] {
			missing = append(missing, "#"+tag)
		}
	}
	if len(missing) == 0 {
		return text
	}
	return text + "\n" + strings.Join(missing, " ")
}
