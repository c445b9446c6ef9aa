package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mastobridge/mastobridge/internal/biz/domain"
	"github.com/mastobridge/mastobridge/internal/biz/repo"
)

const helpText = `Commands:
/login <instance-url> - sign in via OAuth (paste the code back here)
/login <instance-url> <user> <password> - sign in with credentials
/logout - sign out (your chats are kept)
/dm <handle> - open a private chat with an account
/reply <toot-id> <text> - reply to a toot
/star <toot-id> - favorite a toot
/boost <toot-id> - boost a toot
/follow <handle> | /unfollow <handle>
/block <handle> | /unblock <handle>
/mute <handle> | /unmute <handle> - mute or unmute an account
/mute | /unmute - in Home or Notifications, pause or resume that stream
/bio <text> - update your profile biography
/profile [handle] - show a profile, yours without an argument
/open <toot-id> - show a toot with its whole thread
/search <query> - search accounts and hashtags
/help - this message

Rename any fresh group to a list of hashtags (like "#cats #dogs") to
follow those tags there. Write a plain message in Home to post a toot.`

const loginHint = "You are not logged in. Use /login <instance-url> to connect a Mastodon account."

// CommandUsecase interprets slash commands arriving in chat messages and
// routes everything else: non-commands in mapped conversations fall
// through to the outbound poster.
type CommandUsecase struct {
	sessions *SessionUsecase
	mapper   *MapperUsecase
	masto    repo.MicroblogRepo
	chat     repo.ChatRepo
	log      zerolog.Logger
}

func NewCommandUsecase(sessions *SessionUsecase, mapper *MapperUsecase, masto repo.MicroblogRepo, chat repo.ChatRepo, log zerolog.Logger) *CommandUsecase {
	return &CommandUsecase{
		sessions: sessions,
		mapper:   mapper,
		masto:    masto,
		chat:     chat,
		log:      log.With().Str("component", "commands").Logger(),
	}
}

// Dispatch handles one inbound chat message. It returns true when the
// message was consumed here (command or login code) and false when it is
// plain content for the outbound poster.
func (u *CommandUsecase) Dispatch(ctx context.Context, conv, sender, text string) bool {
	cmd, isCommand := domain.ParseCommand(text)
	if !isCommand {
		return u.handlePlainText(ctx, conv, sender, text)
	}

	reply := func(msg string) {
		if err := u.chat.SendMessage(ctx, conv, msg); err != nil {
			u.log.Warn().Err(err).Str("conv", conv).Msg("failed to send command reply")
		}
	}

	switch cmd.Kind {
	case domain.CmdHelp:
		reply(helpText)
	case domain.CmdLogin:
		u.handleLogin(ctx, conv, sender, cmd, reply)
	case domain.CmdLogout:
		u.handleLogout(ctx, sender, reply)
	case domain.CmdDM:
		u.handleDM(ctx, sender, cmd, reply)
	case domain.CmdReply:
		u.handleReply(ctx, sender, cmd, reply)
	case domain.CmdStar, domain.CmdBoost:
		u.handleStatusAction(ctx, sender, cmd, reply)
	case domain.CmdFollow, domain.CmdUnfollow, domain.CmdBlock, domain.CmdUnblock:
		u.handleAccountAction(ctx, sender, cmd, reply)
	case domain.CmdMute, domain.CmdUnmute:
		u.handleMute(ctx, conv, sender, cmd, reply)
	case domain.CmdBio:
		u.handleBio(ctx, sender, cmd, reply)
	case domain.CmdProfile:
		u.handleProfile(ctx, sender, cmd, reply)
	case domain.CmdOpen:
		u.handleOpen(ctx, sender, cmd, reply)
	case domain.CmdSearch:
		u.handleSearch(ctx, sender, cmd, reply)
	default:
		reply(fmt.Sprintf("Unknown command /%s. Send /help for the command list.", cmd.Verb))
	}
	return true
}

// handlePlainText deals with non-command messages in unmapped
// conversations: during a pending OAuth login the text is the
// authorization code, otherwise the user gets a usage hint. Messages in
// mapped conversations are not consumed.
func (u *CommandUsecase) handlePlainText(ctx context.Context, conv, sender, text string) bool {
	_, err := u.mapper.LookupEndpoint(ctx, conv)
	if err == nil {
		return false
	}
	if !errors.Is(err, domain.ErrNotMapped) {
		u.log.Error().Err(err).Str("conv", conv).Msg("failed to look up conversation")
		return true
	}

	reply := func(msg string) {
		if err := u.chat.SendMessage(ctx, conv, msg); err != nil {
			u.log.Warn().Err(err).Str("conv", conv).Msg("failed to send reply")
		}
	}
	p, err := u.sessions.PendingLogin(ctx, sender)
	if err != nil {
		u.log.Error().Err(err).Str("owner", sender).Msg("failed to check pending login")
		return true
	}
	if p != nil {
		s, err := u.sessions.CompleteLogin(ctx, sender, text)
		switch {
		case err == nil:
			reply(fmt.Sprintf("Logged in as @%s. Your Home and Notifications chats are ready.", s.Acct))
		case errors.Is(err, domain.ErrInvalidCode):
			reply("That code was not accepted. Open the authorization link again and paste a fresh code.")
		default:
			u.log.Error().Err(err).Str("owner", sender).Msg("login completion failed")
			reply("Login failed. Try /login again.")
		}
		return true
	}
	reply("Send /help for the command list.")
	return true
}

func (u *CommandUsecase) handleLogin(ctx context.Context, conv, sender string, cmd *domain.Command, reply func(string)) {
	if cmd.Instance == "" {
		reply("Usage: /login <instance-url> or /login <instance-url> <user> <password>")
		return
	}
	if cmd.User != "" {
		s, err := u.sessions.LoginWithPassword(ctx, sender, cmd.Instance, cmd.User, cmd.Password)
		if err != nil {
			reply(loginErrorMessage(err))
			return
		}
		reply(fmt.Sprintf("Logged in as @%s. Your Home and Notifications chats are ready.", s.Acct))
		return
	}
	authURL, err := u.sessions.StartLogin(ctx, sender, cmd.Instance)
	if err != nil {
		reply(loginErrorMessage(err))
		return
	}
	reply(fmt.Sprintf("Open this link, authorize the app and paste the code back here:\n%s", authURL))
}

func loginErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyLoggedIn):
		return "You are already logged in. Use /logout first to switch accounts."
	case errors.Is(err, domain.ErrInvalidInstance):
		return "That does not look like a reachable Mastodon instance. Check the URL and try again."
	case errors.Is(err, domain.ErrAuth):
		return "The instance rejected those credentials."
	default:
		return "Login failed. Try again in a moment."
	}
}

func (u *CommandUsecase) handleLogout(ctx context.Context, sender string, reply func(string)) {
	err := u.sessions.Logout(ctx, sender)
	switch {
	case errors.Is(err, domain.ErrNotLoggedIn):
		reply("You are not logged in.")
	case err != nil:
		u.log.Error().Err(err).Str("owner", sender).Msg("logout failed")
		reply("Logout failed. Try again in a moment.")
	default:
		reply("Logged out. Your chats stay in place for the next login.")
	}
}

func (u *CommandUsecase) handleDM(ctx context.Context, sender string, cmd *domain.Command, reply func(string)) {
	s, err := u.sessions.Authorized(ctx, sender)
	if err != nil {
		reply(loginHint)
		return
	}
	if cmd.Handle == "" {
		reply("Usage: /dm <handle>")
		return
	}
	account, err := u.masto.LookupAccount(ctx, s, cmd.Handle)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			reply(fmt.Sprintf("No account found for %s.", cmd.Handle))
			return
		}
		reply("Could not look up that account right now.")
		return
	}
	conv, err := u.mapper.Resolve(ctx, domain.DirectEndpoint(sender, account.Acct))
	if err != nil {
		u.log.Error().Err(err).Str("owner", sender).Msg("failed to open dm conversation")
		reply("Could not open the chat right now.")
		return
	}
	u.log.Info().Str("owner", sender).Str("peer", account.Acct).Str("conv", conv).Msg("dm conversation opened")
	reply(fmt.Sprintf("Opened a private chat with %s. Messages there go out as direct toots.", account.Name()))
}

func (u *CommandUsecase) handleReply(ctx context.Context, sender string, cmd *domain.Command, reply func(string)) {
	s, err := u.sessions.Authorized(ctx, sender)
	if err != nil {
		reply(loginHint)
		return
	}
	if cmd.TootID == "" || cmd.Text == "" {
		reply("Usage: /reply <toot-id> <text>")
		return
	}
	if err := u.masto.PostStatus(ctx, s, cmd.Text, domain.VisibilityDefault, cmd.TootID); err != nil {
		reply(u.actionFailed(ctx, sender, "Reply", err))
		return
	}
	reply("Reply posted.")
}

func (u *CommandUsecase) handleStatusAction(ctx context.Context, sender string, cmd *domain.Command, reply func(string)) {
	s, err := u.sessions.Authorized(ctx, sender)
	if err != nil {
		reply(loginHint)
		return
	}
	if cmd.TootID == "" {
		reply(fmt.Sprintf("Usage: /%s <toot-id>", cmd.Verb))
		return
	}
	var label string
	switch cmd.Kind {
	case domain.CmdStar:
		err = u.masto.Favourite(ctx, s, cmd.TootID)
		label = "Favorited"
	case domain.CmdBoost:
		err = u.masto.Reblog(ctx, s, cmd.TootID)
		label = "Boosted"
	}
	if err != nil {
		reply(u.actionFailed(ctx, sender, label, err))
		return
	}
	reply(label + ".")
}

func (u *CommandUsecase) handleAccountAction(ctx context.Context, sender string, cmd *domain.Command, reply func(string)) {
	s, err := u.sessions.Authorized(ctx, sender)
	if err != nil {
		reply(loginHint)
		return
	}
	if cmd.Handle == "" {
		reply(fmt.Sprintf("Usage: /%s <handle>", cmd.Verb))
		return
	}
	account, err := u.masto.LookupAccount(ctx, s, cmd.Handle)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			reply(fmt.Sprintf("No account found for %s.", cmd.Handle))
			return
		}
		reply("Could not look up that account right now.")
		return
	}
	var label string
	switch cmd.Kind {
	case domain.CmdFollow:
		err, label = u.masto.Follow(ctx, s, account.ID), "Now following"
	case domain.CmdUnfollow:
		err, label = u.masto.Unfollow(ctx, s, account.ID), "Unfollowed"
	case domain.CmdBlock:
		err, label = u.masto.Block(ctx, s, account.ID), "Blocked"
	case domain.CmdUnblock:
		err, label = u.masto.Unblock(ctx, s, account.ID), "Unblocked"
	}
	if err != nil {
		reply(u.actionFailed(ctx, sender, label, err))
		return
	}
	reply(fmt.Sprintf("%s @%s.", label, account.Acct))
}

// handleMute covers both forms: with a handle it mutes an account, with
// no argument inside the Home or Notifications chat it pauses that stream
func (u *CommandUsecase) handleMute(ctx context.Context, conv, sender string, cmd *domain.Command, reply func(string)) {
	mute := cmd.Kind == domain.CmdMute
	if cmd.Handle != "" {
		u.muteAccount(ctx, sender, cmd, mute, reply)
		return
	}

	ep, err := u.mapper.LookupEndpoint(ctx, conv)
	if err != nil || (ep.Kind != domain.KindHome && ep.Kind != domain.KindNotifications) {
		reply(fmt.Sprintf("Usage: /%s <handle>, or /%s without arguments in your Home or Notifications chat.", cmd.Verb, cmd.Verb))
		return
	}
	stream := domain.StreamHome
	name := "Home timeline"
	if ep.Kind == domain.KindNotifications {
		stream = domain.StreamNotifications
		name = "Notifications"
	}
	if err := u.sessions.MuteStream(ctx, sender, stream, mute); err != nil {
		if errors.Is(err, domain.ErrNotLoggedIn) {
			reply(loginHint)
			return
		}
		u.log.Error().Err(err).Str("owner", sender).Msg("failed to change stream mute")
		reply("Could not change that right now.")
		return
	}
	if mute {
		reply(name + " paused. Send /unmute here to resume.")
	} else {
		reply(name + " resumed from now.")
	}
}

func (u *CommandUsecase) muteAccount(ctx context.Context, sender string, cmd *domain.Command, mute bool, reply func(string)) {
	s, err := u.sessions.Authorized(ctx, sender)
	if err != nil {
		reply(loginHint)
		return
	}
	account, err := u.masto.LookupAccount(ctx, s, cmd.Handle)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			reply(fmt.Sprintf("No account found for %s.", cmd.Handle))
			return
		}
		reply("Could not look up that account right now.")
		return
	}
	label := "Muted"
	if mute {
		err = u.masto.Mute(ctx, s, account.ID)
	} else {
		err = u.masto.Unmute(ctx, s, account.ID)
		label = "Unmuted"
	}
	if err != nil {
		reply(u.actionFailed(ctx, sender, label, err))
		return
	}
	reply(fmt.Sprintf("%s @%s.", label, account.Acct))
}

func (u *CommandUsecase) handleBio(ctx context.Context, sender string, cmd *domain.Command, reply func(string)) {
	s, err := u.sessions.Authorized(ctx, sender)
	if err != nil {
		reply(loginHint)
		return
	}
	if cmd.Text == "" {
		reply("Usage: /bio <text>")
		return
	}
	if err := u.masto.UpdateBio(ctx, s, cmd.Text); err != nil {
		reply(u.actionFailed(ctx, sender, "Bio update", err))
		return
	}
	reply("Biography updated.")
}

// handleProfile shows an account profile, the owner's own when no
// handle is given
func (u *CommandUsecase) handleProfile(ctx context.Context, sender string, cmd *domain.Command, reply func(string)) {
	s, err := u.sessions.Authorized(ctx, sender)
	if err != nil {
		reply(loginHint)
		return
	}
	accountID := s.AccountID
	if cmd.Handle != "" {
		account, err := u.masto.LookupAccount(ctx, s, cmd.Handle)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				reply(fmt.Sprintf("No account found for %s.", cmd.Handle))
				return
			}
			reply("Could not look up that account right now.")
			return
		}
		accountID = account.ID
	}
	p, err := u.masto.FetchProfile(ctx, s, accountID)
	if err != nil {
		reply(u.actionFailed(ctx, sender, "Profile lookup", err))
		return
	}
	reply(FormatProfile(p))
}

func (u *CommandUsecase) handleOpen(ctx context.Context, sender string, cmd *domain.Command, reply func(string)) {
	s, err := u.sessions.Authorized(ctx, sender)
	if err != nil {
		reply(loginHint)
		return
	}
	if cmd.TootID == "" {
		reply("Usage: /open <toot-id>")
		return
	}
	thread, err := u.masto.FetchThread(ctx, s, cmd.TootID)
	if err != nil {
		reply(u.actionFailed(ctx, sender, "Thread lookup", err))
		return
	}
	if len(thread) == 0 {
		reply("Nothing found.")
		return
	}
	reply(FormatThread(thread))
}

func (u *CommandUsecase) handleSearch(ctx context.Context, sender string, cmd *domain.Command, reply func(string)) {
	s, err := u.sessions.Authorized(ctx, sender)
	if err != nil {
		reply(loginHint)
		return
	}
	if cmd.Text == "" {
		reply("Usage: /search <query>")
		return
	}
	res, err := u.masto.Search(ctx, s, cmd.Text)
	if err != nil {
		reply(u.actionFailed(ctx, sender, "Search", err))
		return
	}
	text := FormatSearchResults(res)
	if text == "" {
		text = "Nothing found."
	}
	reply(text)
}

// actionFailed turns a failed remote action into a chat reply. A
// rejected token additionally expires the session so the owner gets the
// re-login notice in their Home chat.
func (u *CommandUsecase) actionFailed(ctx context.Context, sender, label string, err error) string {
	switch {
	case errors.Is(err, domain.ErrAuth):
		u.sessions.Reauthenticate(ctx, sender)
		return loginHint
	case errors.Is(err, domain.ErrContentRejected):
		return fmt.Sprintf("%s rejected by your instance: %v", label, err)
	default:
		return fmt.Sprintf("%s failed. The instance may be unreachable, try again in a moment.", label)
	}
}
