package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

// MapperUsecase owns the conversation <-> endpoint mapping. Resolve is
// the only place conversations are created, so every endpoint maps to at
// most one conversation even under concurrent delivery.
type MapperUsecase struct {
	mappings repo.MappingRepo
	sessions repo.SessionRepo
	chat     repo.ChatRepo
	log      zerolog.Logger

	avatarPath string

	mu    sync.Mutex // guards locks
	locks map[string]*sync.Mutex
}

func NewMapperUsecase(mappings repo.MappingRepo, sessions repo.SessionRepo, chat repo.ChatRepo, avatarPath string, log zerolog.Logger) *MapperUsecase {
	return &MapperUsecase{
		mappings:   mappings,
		sessions:   sessions,
		chat:       chat,
		log:        log.With().Str("component", "mapper").Logger(),
		avatarPath: avatarPath,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (m *MapperUsecase) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Resolve returns the conversation mapped to the endpoint, creating it
// on first use. Concurrent calls for the same endpoint serialize on a
// per-endpoint lock and all return the same conversation.
func (m *MapperUsecase) Resolve(ctx context.Context, ep domain.Endpoint) (string, error) {
	l := m.lockFor(ep.ID())
	l.Lock()
	defer l.Unlock()

	existing, err := m.mappings.GetByEndpoint(ctx, ep)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.Conv, nil
	}

	name, greeting, err := m.presentation(ctx, ep)
	if err != nil {
		return "", err
	}
	conv, err := m.chat.CreateConversation(ctx, name, []string{ep.Owner})
	if err != nil {
		return "", fmt.Errorf("failed to create conversation for %s: %w", ep.ID(), err)
	}
	if err := m.mappings.Save(ctx, &domain.Mapping{Conv: conv, Endpoint: ep}); err != nil {
		// lost a race we should not be able to lose; fall back to the winner
		if winner, lookupErr := m.mappings.GetByEndpoint(ctx, ep); lookupErr == nil && winner != nil {
			return winner.Conv, nil
		}
		return "", err
	}

	m.decorate(ctx, conv, greeting)
	m.log.Info().Str("owner", ep.Owner).Str("endpoint", ep.ID()).Str("conv", conv).Msg("conversation created")
	return conv, nil
}

// presentation picks the display name and greeting for a new conversation
func (m *MapperUsecase) presentation(ctx context.Context, ep domain.Endpoint) (name, greeting string, err error) {
	host := ""
	if s, err := m.sessions.GetByOwner(ctx, ep.Owner); err == nil && s != nil {
		host = s.InstanceHost()
	}
	switch ep.Kind {
	case domain.KindHome:
		if host == "" {
			return "Home", "", nil
		}
		return fmt.Sprintf("Home (%s)", host),
			"This chat shows your home timeline. Send a message here to post a public toot.", nil
	case domain.KindNotifications:
		if host == "" {
			return "Notifications", "", nil
		}
		return fmt.Sprintf("Notifications (%s)", host),
			"This chat shows your notifications. It is read-only.", nil
	case domain.KindDirect:
		return ep.Key, "", nil
	case domain.KindHashtag:
		name = ""
		for _, tag := range ep.Tags() {
			if name != "" {
				name += " "
			}
			name += "#" + tag
		}
		return name, "", nil
	}
	return "", "", fmt.Errorf("unknown endpoint kind %q", ep.Kind)
}

// decorate applies avatar and greeting to a fresh conversation, best effort
func (m *MapperUsecase) decorate(ctx context.Context, conv, greeting string) {
	if m.avatarPath != "" {
		if img, err := os.ReadFile(m.avatarPath); err == nil {
			if err := m.chat.SetAvatar(ctx, conv, img); err != nil {
				m.log.Debug().Err(err).Str("conv", conv).Msg("failed to set avatar")
			}
		}
	}
	if greeting != "" {
		if err := m.chat.SendMessage(ctx, conv, greeting); err != nil {
			m.log.Debug().Err(err).Str("conv", conv).Msg("failed to send greeting")
		}
	}
}

// LookupEndpoint returns the endpoint mapped to a conversation, or
// domain.ErrNotMapped when the conversation is not a bridge conversation.
func (m *MapperUsecase) LookupEndpoint(ctx context.Context, conv string) (domain.Endpoint, error) {
	mp, err := m.mappings.GetByConv(ctx, conv)
	if err != nil {
		return domain.Endpoint{}, err
	}
	if mp == nil {
		return domain.Endpoint{}, domain.ErrNotMapped
	}
	return mp.Endpoint, nil
}

// EnsureOwnerChats resolves the Home and Notifications conversations for
// an owner, creating them when missing. Called right after login; a
// conversation surviving from a previous login gets its name refreshed so
// it shows the current instance.
func (m *MapperUsecase) EnsureOwnerChats(ctx context.Context, owner string) error {
	for _, ep := range []domain.Endpoint{domain.HomeEndpoint(owner), domain.NotificationsEndpoint(owner)} {
		existed, err := m.mappings.GetByEndpoint(ctx, ep)
		if err != nil {
			return err
		}
		conv, err := m.Resolve(ctx, ep)
		if err != nil {
			return err
		}
		if existed != nil {
			name, _, err := m.presentation(ctx, ep)
			if err != nil {
				return err
			}
			if err := m.chat.RenameConversation(ctx, conv, name); err != nil {
				m.log.Debug().Err(err).Str("conv", conv).Msg("failed to refresh conversation name")
			}
		}
	}
	return nil
}

// HashtagGroupsFor lists the hashtag group mappings of an owner
func (m *MapperUsecase) HashtagGroupsFor(ctx context.Context, owner string) ([]*domain.Mapping, error) {
	return m.mappings.ListByKind(ctx, owner, domain.KindHashtag)
}

// OnNameChanged reacts to a conversation rename. Renaming an unmapped
// conversation to a name made only of hashtags turns it into a hashtag
// group for the renaming member; renaming an existing hashtag group
// changes its tag set in place. Renames of other bridge conversations
// are cosmetic.
func (m *MapperUsecase) OnNameChanged(ctx context.Context, conv, name, actor string) error {
	tags := domain.ParseHashtags(name)

	mp, err := m.mappings.GetByConv(ctx, conv)
	if err != nil {
		return err
	}
	if mp == nil {
		if tags == nil || actor == "" {
			return nil
		}
		s, err := m.sessions.GetByOwner(ctx, actor)
		if err != nil {
			return err
		}
		if s == nil || !s.Authenticated() {
			return nil
		}
		ep := domain.HashtagEndpoint(actor, tags)
		if existing, err := m.mappings.GetByEndpoint(ctx, ep); err != nil {
			return err
		} else if existing != nil {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateEndpoint, ep.Key)
		}
		if err := m.mappings.Save(ctx, &domain.Mapping{Conv: conv, Endpoint: ep}); err != nil {
			return err
		}
		m.log.Info().Str("owner", actor).Str("tags", ep.Key).Str("conv", conv).Msg("hashtag group created")
		return nil
	}

	if mp.Endpoint.Kind != domain.KindHashtag {
		if tags != nil {
			return domain.ErrImmutableEndpointKind
		}
		return nil
	}
	if tags == nil {
		// hashtag group renamed to a non-tag name; keep the old tag set
		return nil
	}
	newKey := domain.HashtagKey(tags)
	if newKey == mp.Endpoint.Key {
		return nil
	}
	if existing, err := m.mappings.GetByEndpoint(ctx, domain.HashtagEndpoint(mp.Endpoint.Owner, tags)); err != nil {
		return err
	} else if existing != nil && existing.Conv != conv {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateEndpoint, newKey)
	}
	if err := m.mappings.UpdateKey(ctx, conv, newKey); err != nil {
		return err
	}
	m.log.Info().Str("owner", mp.Endpoint.Owner).Str("tags", newKey).Str("conv", conv).Msg("hashtag group retargeted")
	return nil
}

// OnMemberLeft reacts to the owner leaving a conversation. Leaving a DM
// or hashtag group drops its mapping so the endpoint can map to a fresh
// conversation later; Home and Notifications mappings are permanent.
func (m *MapperUsecase) OnMemberLeft(ctx context.Context, conv, member string) error {
	mp, err := m.mappings.GetByConv(ctx, conv)
	if err != nil {
		return err
	}
	if mp == nil || mp.Endpoint.Owner != member {
		return nil
	}
	switch mp.Endpoint.Kind {
	case domain.KindDirect, domain.KindHashtag:
		if err := m.mappings.Delete(ctx, conv); err != nil {
			return err
		}
		if err := m.chat.LeaveConversation(ctx, conv); err != nil && !errors.Is(err, context.Canceled) {
			m.log.Debug().Err(err).Str("conv", conv).Msg("failed to leave conversation")
		}
		m.log.Info().Str("owner", mp.Endpoint.Owner).Str("endpoint", mp.Endpoint.ID()).Msg("mapping removed after owner left")
	}
	return nil
}
