package domain

import "strings"

// CommandKind identifies a slash command
type CommandKind string

const (
	CmdHelp     CommandKind = "help"
	CmdLogin    CommandKind = "login"
	CmdLogout   CommandKind = "logout"
	CmdDM       CommandKind = "dm"
	CmdReply    CommandKind = "reply"
	CmdStar     CommandKind = "star"
	CmdBoost    CommandKind = "boost"
	CmdFollow   CommandKind = "follow"
	CmdUnfollow CommandKind = "unfollow"
	CmdMute     CommandKind = "mute"
	CmdUnmute   CommandKind = "unmute"
	CmdBlock    CommandKind = "block"
	CmdUnblock  CommandKind = "unblock"
	CmdBio      CommandKind = "bio"
	CmdProfile  CommandKind = "profile"
	CmdOpen     CommandKind = "open"
	CmdSearch   CommandKind = "search"
	CmdUnknown  CommandKind = "unknown"
)

// Command is a parsed user directive
type Command struct {
	Kind    CommandKind
	Verb    string // raw verb as typed, for error messages
	Payload string // everything after the verb, trimmed

	// Login arguments
	Instance string
	User     string
	Password string

	// Target arguments
	Handle string // account handle or id
	TootID string
	Text   string // free text for /reply and /bio
}

var commandVerbs = map[string]CommandKind{
	"help":     CmdHelp,
	"login":    CmdLogin,
	"logout":   CmdLogout,
	"dm":       CmdDM,
	"reply":    CmdReply,
	"star":     CmdStar,
	"boost":    CmdBoost,
	"follow":   CmdFollow,
	"unfollow": CmdUnfollow,
	"mute":     CmdMute,
	"unmute":   CmdUnmute,
	"block":    CmdBlock,
	"unblock":  CmdUnblock,
	"bio":      CmdBio,
	"profile":  CmdProfile,
	"open":     CmdOpen,
	"search":   CmdSearch,
}

// ParseCommand parses the first line of a chat message against the fixed
// command grammar. The second return value is false when the message is
// not a command at all (no leading slash) and should be treated as plain
// content. Unrecognized verbs yield CmdUnknown.
//
// Both "/star 123" and the quick-action form "/star_123" are accepted.
func ParseCommand(text string) (*Command, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return nil, false
	}

	firstLine := trimmed
	rest := ""
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		firstLine = strings.TrimSpace(trimmed[:i])
		rest = strings.TrimSpace(trimmed[i+1:])
	}

	verb, payload, _ := strings.Cut(firstLine[1:], " ")
	// Quick-action form: /verb_arg
	if i := strings.IndexByte(verb, '_'); i >= 0 {
		if _, ok := commandVerbs[verb[:i]]; ok {
			payload = strings.TrimSpace(verb[i+1:] + " " + payload)
			verb = verb[:i]
		}
	}
	payload = strings.TrimSpace(payload)
	if rest != "" {
		if payload == "" {
			payload = rest
		} else {
			payload = payload + "\n" + rest
		}
	}

	cmd := &Command{Verb: verb, Payload: payload}
	kind, ok := commandVerbs[strings.ToLower(verb)]
	if !ok {
		cmd.Kind = CmdUnknown
		return cmd, true
	}
	cmd.Kind = kind

	switch kind {
	case CmdLogin:
		args := strings.Fields(payload)
		switch len(args) {
		case 1:
			cmd.Instance = args[0]
		case 3:
			cmd.Instance, cmd.User, cmd.Password = args[0], args[1], args[2]
		}
	case CmdDM, CmdFollow, CmdUnfollow, CmdMute, CmdUnmute, CmdBlock, CmdUnblock, CmdProfile:
		cmd.Handle = strings.TrimSpace(payload)
	case CmdStar, CmdBoost, CmdOpen:
		cmd.TootID = strings.TrimSpace(payload)
	case CmdSearch:
		cmd.Text = payload
	case CmdReply:
		if i := strings.IndexAny(payload, " \n"); i >= 0 {
			cmd.TootID = strings.TrimSpace(payload[:i])
			cmd.Text = strings.TrimSpace(payload[i+1:])
		} else {
			cmd.TootID = payload
		}
	case CmdBio:
		cmd.Text = payload
	}
	return cmd, true
}
