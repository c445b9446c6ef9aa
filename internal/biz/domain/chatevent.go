package domain

// ChatEventKind identifies an event from the chat transport feed
type ChatEventKind string

const (
	EventMessage    ChatEventKind = "message"
	EventMemberLeft ChatEventKind = "member_left"
	EventRenamed    ChatEventKind = "renamed"
)

// ChatEvent is one event from the chat transport's inbound feed
type ChatEvent struct {
	Kind ChatEventKind
	Conv string

	// Message fields
	Sender string
	Text   string

	// MemberLeft fields
	Member string

	// Renamed fields
	Name  string
	Actor string // who performed the rename
}
