package core

// DefaultHistoryLimit bounds the per-room recent-message buffer.
const DefaultHistoryLimit = 100

// Room groups connections subscribed to the same channel and keeps a
// bounded buffer of recent messages, oldest evicted first.
type Room struct {
	ID          string
	Name        string
	Description string

	members map[string]struct{} // connection ids
	history []Message
	limit   int
}

func newRoom(id, name, description string, limit int) *Room {
	return &Room{
		ID:          id,
		Name:        name,
		Description: description,
		members:     make(map[string]struct{}),
		limit:       limit,
	}
}

// Add inserts a connection into the member set. Returns true if newly added.
func (r *Room) Add(connID string) bool {
	if _, ok := r.members[connID]; ok {
		return false
	}
	r.members[connID] = struct{}{}
	return true
}

// Remove deletes a connection from the member set. Returns true if removed.
func (r *Room) Remove(connID string) bool {
	if _, ok := r.members[connID]; !ok {
		return false
	}
	delete(r.members, connID)
	return true
}

// Has reports membership of a connection.
func (r *Room) Has(connID string) bool {
	_, ok := r.members[connID]
	return ok
}

// MemberCount reports the number of member connections.
func (r *Room) MemberCount() int {
	return len(r.members)
}

// Members returns a copy of the member connection ids.
func (r *Room) Members() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// Append pushes a message onto the history buffer, evicting the oldest
// entries once capacity is exceeded. Newest is always last.
func (r *Room) Append(msg Message) {
	r.history = append(r.history, msg)
	if len(r.history) > r.limit {
		r.history = r.history[len(r.history)-r.limit:]
	}
}

// History returns a copy of the buffered messages, newest last.
func (r *Room) History() []Message {
	out := make([]Message, len(r.history))
	copy(out, r.history)
	return out
}

// Message returns a pointer to the buffered message with the given id so
// callers can update its read receipts or edit markers in place.
func (r *Room) Message(id string) (*Message, bool) {
	for i := range r.history {
		if r.history[i].ID == id {
			return &r.history[i], true
		}
	}
	return nil, false
}

// Rooms tracks which connections belong to which room. Membership is keyed
// by connection, not user, so a user with two tabs open occupies two slots,
// each cleaned up on its own disconnect. Not safe for concurrent use: all
// access happens on the hub goroutine.
type Rooms struct {
	rooms map[string]*Room
	order []string // stable listing order: defaults first, then creation order
	limit int
}

// defaultRooms are created at process start and never destroyed.
var defaultRooms = []struct {
	id, name, description string
}{
	{"general", "General Chat", "General discussion"},
	{"random", "Random", "Random topics"},
	{"help", "Help & Support", "Get help here"},
	{"tech", "Tech Talk", "Technology discussions"},
}

// NewRooms constructs the membership table seeded with the default rooms.
// historyLimit <= 0 falls back to DefaultHistoryLimit.
func NewRooms(historyLimit int) *Rooms {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	t := &Rooms{
		rooms: make(map[string]*Room),
		limit: historyLimit,
	}
	for _, d := range defaultRooms {
		t.rooms[d.id] = newRoom(d.id, d.name, d.description, historyLimit)
		t.order = append(t.order, d.id)
	}
	return t
}

// Get returns a room by id.
func (t *Rooms) Get(id string) (*Room, bool) {
	r, ok := t.rooms[id]
	return r, ok
}

// Join adds a connection to the room, creating the room lazily when the id
// is not known (ad-hoc rooms are allowed). Joining twice has no additional
// effect. Returns the room and whether the connection was newly added.
func (t *Rooms) Join(roomID, connID string) (*Room, bool) {
	room := t.ensure(roomID)
	return room, room.Add(connID)
}

// Leave removes a connection from the room's member set. Returns false when
// the room is unknown or the connection was not a member.
func (t *Rooms) Leave(roomID, connID string) bool {
	room, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	return room.Remove(connID)
}

// RemoveFromAllRooms removes the connection from every room and returns the
// ids of the rooms that changed, so leave events can be targeted. Iteration
// covers all rooms even if handling of one room fails downstream.
func (t *Rooms) RemoveFromAllRooms(connID string) []string {
	var affected []string
	for _, id := range t.order {
		if t.rooms[id].Remove(connID) {
			affected = append(affected, id)
		}
	}
	return affected
}

// AppendMessage pushes a message onto a room's buffer, creating the room
// lazily for ad-hoc ids.
func (t *Rooms) AppendMessage(roomID string, msg Message) {
	t.ensure(roomID).Append(msg)
}

// List returns all rooms in stable order.
func (t *Rooms) List() []*Room {
	out := make([]*Room, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.rooms[id])
	}
	return out
}

func (t *Rooms) ensure(roomID string) *Room {
	room, ok := t.rooms[roomID]
	if !ok {
		room = newRoom(roomID, roomID, "", t.limit)
		t.rooms[roomID] = room
		t.order = append(t.order, roomID)
	}
	return room
}
