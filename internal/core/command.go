package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandLogin binds a verified identity to the client's connection.
	CommandLogin CommandKind = iota
	// CommandJoinRoom subscribes the connection to a room.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the connection from a room.
	CommandLeaveRoom
	// CommandSendMessage broadcasts a chat message to room members.
	CommandSendMessage
	// CommandSendPrivate routes a message to a single online user.
	CommandSendPrivate
	// CommandTyping toggles the typing indicator for a room.
	CommandTyping
	// CommandMarkRead acknowledges reading a message.
	CommandMarkRead
	// CommandEditMessage replaces the text of a previously sent message.
	CommandEditMessage
	// CommandDeleteMessage marks a previously sent message as deleted.
	CommandDeleteMessage

	// commandTypingExpired is posted by typing timers, never by clients.
	commandTypingExpired
	// commandRoomsSnapshot requests the room roster over a reply channel.
	commandRoomsSnapshot
)

// Command represents an action requested by a client, or an internal
// follow-up the hub posts to itself (timer expiry, snapshot request).
type Command struct {
	Kind   CommandKind
	Client *Client

	// Login fields, populated from the identity verification service.
	UserID   string
	Username string
	Avatar   string

	Room        string
	Text        string
	RecipientID string
	MessageID   string
	IsTyping    bool

	// Typing-expiry bookkeeping.
	gen uint64

	// Reply channel for snapshot requests.
	roomsReply chan []RoomSummary
}
