// Package service wires the chat event feed to the usecase layer.
package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
	"github.com/mastobridge/mastobridge/internal/biz/usecase"
)

// Bridge runs the main event loop: chat events come in, commands and
// content are dispatched, conversation lifecycle changes reach the mapper.
type Bridge struct {
	sessions *usecase.SessionUsecase
	mapper   *usecase.MapperUsecase
	outbound *usecase.OutboundUsecase
	commands *usecase.CommandUsecase
	chat     repo.ChatRepo
	log      zerolog.Logger
}

func NewBridge(
	sessions *usecase.SessionUsecase,
	mapper *usecase.MapperUsecase,
	outbound *usecase.OutboundUsecase,
	commands *usecase.CommandUsecase,
	chat repo.ChatRepo,
	log zerolog.Logger,
) *Bridge {
	return &Bridge{
		sessions: sessions,
		mapper:   mapper,
		outbound: outbound,
		commands: commands,
		chat:     chat,
		log:      log.With().Str("component", "bridge").Logger(),
	}
}

// Run starts the inbound listeners and consumes chat events until ctx is
// canceled or the event feed closes
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.sessions.StartListeners(ctx); err != nil {
		return err
	}
	defer b.sessions.StopListeners()

	events, err := b.chat.Events(ctx)
	if err != nil {
		return err
	}
	b.log.Info().Msg("bridge running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				b.log.Warn().Msg("event feed closed")
				return nil
			}
			b.handle(ctx, ev)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, ev domain.ChatEvent) {
	switch ev.Kind {
	case domain.EventMessage:
		if b.commands.Dispatch(ctx, ev.Conv, ev.Sender, ev.Text) {
			return
		}
		if err := b.outbound.Post(ctx, ev.Conv, ev.Sender, ev.Text); err != nil {
			b.log.Error().Err(err).Str("conv", ev.Conv).Msg("outbound post failed")
		}
	case domain.EventRenamed:
		if err := b.mapper.OnNameChanged(ctx, ev.Conv, ev.Name, ev.Actor); err != nil {
			if errors.Is(err, domain.ErrImmutableEndpointKind) {
				b.notify(ctx, ev.Conv, "This chat is tied to its stream and cannot become a hashtag group. Rename a fresh group instead.")
				return
			}
			if errors.Is(err, domain.ErrDuplicateEndpoint) {
				b.notify(ctx, ev.Conv, "You already follow those hashtags in another group. Post there, or rename this group to a different tag set.")
				return
			}
			b.log.Error().Err(err).Str("conv", ev.Conv).Msg("rename handling failed")
		}
	case domain.EventMemberLeft:
		if err := b.mapper.OnMemberLeft(ctx, ev.Conv, ev.Member); err != nil {
			b.log.Error().Err(err).Str("conv", ev.Conv).Msg("member-left handling failed")
		}
	}
}

func (b *Bridge) notify(ctx context.Context, conv, text string) {
	if err := b.chat.SendMessage(ctx, conv, text); err != nil {
		b.log.Warn().Err(err).Str("conv", conv).Msg("failed to send notice")
	}
}
