package core

import "time"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomsList delivers the room roster with member counts.
	EventRoomsList EventKind = iota
	// EventAuthenticated confirms a successful login to the session owner.
	EventAuthenticated
	// EventUserJoined notifies everyone else about a newly online user.
	EventUserJoined
	// EventUserLeft notifies everyone about a user going offline.
	EventUserLeft
	// EventUsersOnline delivers the online snapshot to a client.
	EventUsersOnline
	// EventRoomHistory delivers buffered messages and members upon joining.
	EventRoomHistory
	// EventRoomUserJoined notifies a room about a new member.
	EventRoomUserJoined
	// EventRoomUserLeft notifies a room about a departed member.
	EventRoomUserLeft
	// EventMessageNew delivers a room message to its members.
	EventMessageNew
	// EventMessageSent acknowledges a send to its author.
	EventMessageSent
	// EventPrivate delivers a private message to the recipient.
	EventPrivate
	// EventPrivateSent acknowledges a private send to its author.
	EventPrivateSent
	// EventTypingOn notifies a room that a user started typing.
	EventTypingOn
	// EventTypingOff notifies a room that a user stopped typing.
	EventTypingOff
	// EventReadReceipt notifies a room that a user read a message.
	EventReadReceipt
	// EventMessageEdited notifies a room about an edited message.
	EventMessageEdited
	// EventMessageDeleted notifies a room about a deleted message.
	EventMessageDeleted
	// EventError notifies a client about a domain error.
	EventError
)

// RoomSummary is one entry of the rooms:list payload.
type RoomSummary struct {
	ID          string
	Name        string
	Description string
	MemberCount int
}

// Event is sent to clients to describe what happened in the system.
// Events are immutable once emitted; the same instance may fan out to
// many clients.
type Event struct {
	Kind      EventKind
	Room      string
	User      OnlineUser
	Users     []OnlineUser
	Rooms     []RoomSummary
	Message   *Message
	Messages  []Message
	MessageID string
	Session   *Session
	Timestamp time.Time
	Error     *CoreError
}
