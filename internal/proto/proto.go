package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for events coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound event names.
const (
	InboundLogin       = "login"
	InboundRoomJoin    = "room:join"
	InboundRoomLeave   = "room:leave"
	InboundMessageSend = "message:send"
	InboundPrivate     = "message:private"
	InboundTyping      = "typing"
	InboundMessageRead = "message:read"
	InboundEdit        = "message:edit"
	InboundDelete      = "message:delete"
)

// Outbound event names.
const (
	OutboundRoomsList       = "rooms:list"
	OutboundAuthenticated   = "user:authenticated"
	OutboundUserJoined      = "user:joined"
	OutboundUserLeft        = "user:left"
	OutboundUsersOnline     = "users:online"
	OutboundRoomHistory     = "room:history"
	OutboundRoomUserJoined  = "room:user-joined"
	OutboundRoomUserLeft    = "room:user-left"
	OutboundMessageNew      = "message:new"
	OutboundMessageSent     = "message:sent"
	OutboundPrivate         = "message:private"
	OutboundPrivateSent     = "message:private-sent"
	OutboundTypingOn        = "typing-on"
	OutboundTypingOff       = "typing-off"
	OutboundReadReceipt     = "message:read-receipt"
	OutboundMessageEdited   = "message:edited"
	OutboundMessageDeleted  = "message:deleted"
	OutboundError           = "error"
)

// LoginData introduces the client. Token, when present, carries a verified
// identity from the REST auth endpoints; otherwise a guest identity is
// minted from the username.
type LoginData struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Token    string `json:"token,omitempty"`
}

// RoomData targets a room by id.
type RoomData struct {
	RoomID string `json:"roomId"`
}

// SendData is a room-scoped chat message from the client.
type SendData struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

// PrivateData is a point-to-point message from the client.
type PrivateData struct {
	RecipientID string `json:"recipientUserId"`
	Text        string `json:"text"`
}

// TypingData toggles the typing indicator for a room.
type TypingData struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// ReadData acknowledges reading a message.
type ReadData struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// EditData modifies a previously sent message.
type EditData struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	Text      string `json:"text"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// User is the identity snapshot carried in outbound payloads.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Status   string `json:"status,omitempty"`
}

// RoomInfo describes a room in the rooms:list payload.
type RoomInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MemberCount int    `json:"memberCount"`
}

// Message is the wire form of a chat message.
type Message struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"roomId,omitempty"`
	RecipientID string     `json:"recipientUserId,omitempty"`
	Sender      User       `json:"sender"`
	Text        string     `json:"text"`
	Timestamp   time.Time  `json:"timestamp"`
	ReadBy      []string   `json:"readBy,omitempty"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
	Deleted     bool       `json:"deleted,omitempty"`
}

// RoomHistory is the initial sync sent on join.
type RoomHistory struct {
	RoomID   string    `json:"roomId"`
	Messages []Message `json:"messages"`
	Members  []User    `json:"members"`
}

// RoomPresence notifies a room about a membership change.
type RoomPresence struct {
	RoomID    string    `json:"roomId"`
	User      User      `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

// Typing notifies a room about a typing transition.
type Typing struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ReadReceipt notifies a room that a user read a message.
type ReadReceipt struct {
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the payload of user:authenticated.
type Session struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Avatar      string    `json:"avatar,omitempty"`
	Status      string    `json:"status"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// MessageRef points at a message inside a room.
type MessageRef struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}
