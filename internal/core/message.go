package core

import "time"

// Sender is an identity snapshot captured when a message is created.
// It is a copy, not a live reference to the session.
type Sender struct {
	ID       string
	Username string
	Avatar   string
}

// Message is the domain model for a chat message. A message is either
// room-scoped (RoomID set) or private (RecipientID set), never both.
type Message struct {
	ID          string
	RoomID      string
	RecipientID string
	Sender      Sender
	Text        string
	CreatedAt   time.Time
	ReadBy      []string
	EditedAt    *time.Time
	Deleted     bool
}

// MarkRead records that userID has read the message. Returns false if the
// user was already recorded. ReadBy only ever grows.
func (m *Message) MarkRead(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return false
		}
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}
