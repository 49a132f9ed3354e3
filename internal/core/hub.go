package core

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/store"
)

// MaxMessageLen bounds message text, counted in runes.
const MaxMessageLen = 5000

const (
	commandBuffer  = 256
	persistTimeout = 5 * time.Second
)

// Hub routes chat events among connected clients. A single Run goroutine
// owns the registry, the room table and the typing tracker; websocket
// read loops and timer callbacks only post commands into the command
// channel, which gives per-connection FIFO handling and exclusive access
// to shared state without locks.
type Hub struct {
	store store.Store // nil means memory-only operation
	log   *zerolog.Logger

	clock         clock.Clock
	typingTimeout time.Duration
	historyLimit  int

	commands     chan *Command
	registerCh   chan *Client
	unregisterCh chan *Client
	done         chan struct{} // closed when Run exits

	clients  map[string]*Client // by connection id
	registry *Registry
	rooms    *Rooms
	typing   *typingTracker

	connected atomic.Int64
}

// Option customizes hub construction.
type Option func(*Hub)

// WithClock injects a clock, letting tests drive typing expiry with
// virtual time.
func WithClock(clk clock.Clock) Option {
	return func(h *Hub) { h.clock = clk }
}

// WithTypingTimeout overrides the typing auto-expiry window.
func WithTypingTimeout(d time.Duration) Option {
	return func(h *Hub) { h.typingTimeout = d }
}

// WithHistoryLimit overrides the per-room message buffer capacity.
func WithHistoryLimit(n int) Option {
	return func(h *Hub) { h.historyLimit = n }
}

// NewHub creates a hub. The store may be nil; the hub then runs from
// in-memory state alone and observable behavior does not change.
func NewHub(st store.Store, logger *zerolog.Logger, opts ...Option) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	h := &Hub{
		store:         st,
		log:           logger,
		clock:         clock.New(),
		typingTimeout: DefaultTypingTimeout,
		historyLimit:  DefaultHistoryLimit,
		commands:      make(chan *Command, commandBuffer),
		registerCh:    make(chan *Client),
		unregisterCh:  make(chan *Client),
		done:          make(chan struct{}),
		clients:       make(map[string]*Client),
		registry:      NewRegistry(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.rooms = NewRooms(h.historyLimit)
	h.typing = newTypingTracker(h.clock, h.typingTimeout, h.typingExpired)
	return h
}

// RegisterClient attaches a connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.registerCh <- c
}

// UnregisterClient detaches a connection, running disconnect cleanup.
// Safe to call for a client that was never registered or already removed.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregisterCh <- c
}

// Dispatch posts a client command for processing on the hub goroutine.
func (h *Hub) Dispatch(cmd *Command) {
	h.commands <- cmd
}

// ClientCount reports the number of attached connections.
func (h *Hub) ClientCount() int64 {
	return h.connected.Load()
}

// RoomsSnapshot returns the room roster. Callable from any goroutine;
// returns nil once the hub has stopped instead of blocking.
func (h *Hub) RoomsSnapshot() []RoomSummary {
	reply := make(chan []RoomSummary, 1)
	select {
	case h.commands <- &Command{Kind: commandRoomsSnapshot, roomsReply: reply}:
	case <-h.done:
		return nil
	}
	select {
	case out := <-reply:
		return out
	case <-h.done:
		return nil
	}
}

// Run processes commands until the context is cancelled. All mutation of
// hub state happens here.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.registerCh:
			h.handleConnect(c)
		case c := <-h.unregisterCh:
			h.handleDisconnect(c)
		case cmd := <-h.commands:
			h.handleCommand(cmd)
		}
	}
}

// typingExpired runs on the timer goroutine; it re-enters the hub loop
// through the command channel so the tracker is only touched there.
func (h *Hub) typingExpired(roomID, userID string, gen uint64) {
	h.commands <- &Command{
		Kind:   commandTypingExpired,
		Room:   roomID,
		UserID: userID,
		gen:    gen,
	}
}

func (h *Hub) handleConnect(c *Client) {
	if _, ok := h.clients[c.ConnID]; ok {
		return
	}
	h.clients[c.ConnID] = c
	h.connected.Add(1)

	// The room roster goes out before login, like everything room-scoped
	// a client can see without a session.
	c.deliver(h.roomsListEvent())
	h.log.Debug().Str("conn_id", c.ConnID).Msg("client connected")
}

func (h *Hub) handleDisconnect(c *Client) {
	if _, ok := h.clients[c.ConnID]; !ok {
		return
	}
	delete(h.clients, c.ConnID)
	h.connected.Add(-1)

	sess, ok := h.registry.Unregister(c.ConnID)
	if !ok {
		h.log.Debug().Str("conn_id", c.ConnID).Msg("unauthenticated client disconnected")
		return
	}

	now := h.clock.Now()
	user := snapshotUser(sess)

	// Cleanup is isolated per room: every room gets its leave event even
	// if emission for one of them goes wrong.
	for _, roomID := range h.rooms.RemoveFromAllRooms(c.ConnID) {
		room, ok := h.rooms.Get(roomID)
		if !ok {
			continue
		}
		h.broadcastRoom(room, &Event{
			Kind:      EventRoomUserLeft,
			Room:      roomID,
			User:      user,
			Timestamp: now,
		}, "")
	}

	for _, roomID := range h.typing.StopAllForUser(sess.UserID) {
		if room, ok := h.rooms.Get(roomID); ok {
			h.broadcastRoom(room, &Event{
				Kind: EventTypingOff,
				Room: roomID,
				User: user,
			}, "")
		}
	}

	h.broadcastAll(&Event{Kind: EventUserLeft, User: user, Timestamp: now}, "")
	h.broadcastAll(h.roomsListEvent(), "")
	h.persistStatus(sess.UserID, "offline")

	h.log.Info().Str("conn_id", c.ConnID).Str("username", sess.Username).Msg("user disconnected")
}

func (h *Hub) handleCommand(cmd *Command) {
	switch cmd.Kind {
	case commandTypingExpired:
		h.handleTypingExpired(cmd)
		return
	case commandRoomsSnapshot:
		cmd.roomsReply <- h.roomSummaries()
		return
	case CommandLogin:
		h.handleLogin(cmd)
		return
	}

	// Everything else requires a bound session and must not mutate state
	// without one.
	sess, ok := h.registry.Lookup(cmd.Client.ConnID)
	if !ok {
		h.sendError(cmd.Client, coreError(ErrCodeUnauthenticated, "not authenticated"))
		return
	}

	switch cmd.Kind {
	case CommandJoinRoom:
		h.handleJoin(sess, cmd)
	case CommandLeaveRoom:
		h.handleLeave(sess, cmd)
	case CommandSendMessage:
		h.handleSend(sess, cmd)
	case CommandSendPrivate:
		h.handlePrivate(sess, cmd)
	case CommandTyping:
		h.handleTyping(sess, cmd)
	case CommandMarkRead:
		h.handleMarkRead(sess, cmd)
	case CommandEditMessage:
		h.handleEdit(sess, cmd)
	case CommandDeleteMessage:
		h.handleDelete(sess, cmd)
	default:
		h.sendError(cmd.Client, coreError(ErrCodeInvalidMessage, "unknown command"))
	}
}

func (h *Hub) handleLogin(cmd *Command) {
	if cmd.UserID == "" || cmd.Username == "" {
		h.sendError(cmd.Client, coreError(ErrCodeValidation, "identity is required"))
		return
	}

	prior, hadSession := h.registry.Lookup(cmd.Client.ConnID)

	sess, evicted := h.registry.Register(cmd.Client.ConnID, cmd.UserID, cmd.Username, cmd.Avatar, h.clock.Now())
	if hadSession && prior.UserID != sess.UserID {
		// The connection switched identity; the old user's typing timers
		// must not fire under the ghost name.
		h.typing.StopAllForUser(prior.UserID)
	}
	if evicted != nil {
		// The superseded connection keeps its transport but loses its
		// presence: purge its room slots and typing state without
		// emitting an offline signal.
		h.rooms.RemoveFromAllRooms(evicted.ConnID)
		h.typing.StopAllForUser(evicted.UserID)
		h.log.Debug().
			Str("username", sess.Username).
			Str("old_conn_id", evicted.ConnID).
			Msg("prior session superseded")
	}

	cmd.Client.deliver(&Event{Kind: EventAuthenticated, Session: sess, Timestamp: sess.ConnectedAt})
	cmd.Client.deliver(&Event{Kind: EventUsersOnline, Users: h.registry.OnlineSnapshot()})
	h.broadcastAll(&Event{Kind: EventUserJoined, User: snapshotUser(sess), Timestamp: sess.ConnectedAt}, cmd.Client.ConnID)
	h.broadcastAll(h.roomsListEvent(), "")
	h.persistStatus(sess.UserID, "online")

	h.log.Info().Str("conn_id", sess.ConnID).Str("username", sess.Username).Msg("user logged in")
}

func (h *Hub) handleJoin(sess *Session, cmd *Command) {
	room, added := h.rooms.Join(cmd.Room, sess.ConnID)
	now := h.clock.Now()

	if added {
		h.broadcastRoom(room, &Event{
			Kind:      EventRoomUserJoined,
			Room:      room.ID,
			User:      snapshotUser(sess),
			Timestamp: now,
		}, sess.ConnID)
	}

	cmd.Client.deliver(&Event{
		Kind:     EventRoomHistory,
		Room:     room.ID,
		Messages: room.History(),
		Users:    h.roomMembers(room),
	})
	h.broadcastAll(h.roomsListEvent(), "")

	h.log.Debug().Str("username", sess.Username).Str("room", room.ID).Msg("joined room")
}

func (h *Hub) handleLeave(sess *Session, cmd *Command) {
	if !h.rooms.Leave(cmd.Room, sess.ConnID) {
		return
	}
	room, _ := h.rooms.Get(cmd.Room)
	h.broadcastRoom(room, &Event{
		Kind:      EventRoomUserLeft,
		Room:      cmd.Room,
		User:      snapshotUser(sess),
		Timestamp: h.clock.Now(),
	}, "")
	h.broadcastAll(h.roomsListEvent(), "")
}

func (h *Hub) handleSend(sess *Session, cmd *Command) {
	text, cerr := validateText(cmd.Text)
	if cerr != nil {
		h.sendError(cmd.Client, cerr)
		return
	}

	msg := Message{
		ID:        uuid.NewString(),
		RoomID:    cmd.Room,
		Sender:    snapshotSender(sess),
		Text:      text,
		CreatedAt: h.clock.Now(),
		ReadBy:    []string{sess.UserID},
	}
	h.rooms.AppendMessage(cmd.Room, msg)

	room, _ := h.rooms.Get(cmd.Room)
	h.broadcastRoom(room, &Event{
		Kind:      EventMessageNew,
		Room:      cmd.Room,
		Message:   &msg,
		Timestamp: msg.CreatedAt,
	}, "")
	cmd.Client.deliver(&Event{
		Kind:      EventMessageSent,
		Room:      cmd.Room,
		Message:   &msg,
		Timestamp: msg.CreatedAt,
	})
	h.persistMessage(msg)

	h.log.Debug().Str("username", sess.Username).Str("room", cmd.Room).Str("message_id", msg.ID).Msg("message sent")
}

func (h *Hub) handlePrivate(sess *Session, cmd *Command) {
	text, cerr := validateText(cmd.Text)
	if cerr != nil {
		h.sendError(cmd.Client, cerr)
		return
	}

	recipient, ok := h.registry.LookupByUser(cmd.RecipientID)
	if !ok {
		// Expected outcome, not a system fault; the sender's client
		// surfaces it.
		h.sendError(cmd.Client, coreErrorCtx(ErrCodeRecipientOffline, "recipient is offline", cmd.RecipientID))
		return
	}

	msg := Message{
		ID:          uuid.NewString(),
		RecipientID: cmd.RecipientID,
		Sender:      snapshotSender(sess),
		Text:        text,
		CreatedAt:   h.clock.Now(),
		ReadBy:      []string{sess.UserID},
	}

	if target, ok := h.clients[recipient.ConnID]; ok {
		target.deliver(&Event{Kind: EventPrivate, Message: &msg, Timestamp: msg.CreatedAt})
	}
	cmd.Client.deliver(&Event{Kind: EventPrivateSent, Message: &msg, Timestamp: msg.CreatedAt})
	h.persistMessage(msg)

	h.log.Debug().Str("from", sess.Username).Str("to", cmd.RecipientID).Msg("private message sent")
}

func (h *Hub) handleTyping(sess *Session, cmd *Command) {
	if cmd.IsTyping {
		if h.typing.Start(cmd.Room, sess.UserID) {
			if room, ok := h.rooms.Get(cmd.Room); ok {
				h.broadcastRoom(room, &Event{
					Kind: EventTypingOn,
					Room: cmd.Room,
					User: snapshotUser(sess),
				}, sess.ConnID)
			}
		}
		return
	}

	if h.typing.Stop(cmd.Room, sess.UserID) {
		if room, ok := h.rooms.Get(cmd.Room); ok {
			h.broadcastRoom(room, &Event{
				Kind: EventTypingOff,
				Room: cmd.Room,
				User: snapshotUser(sess),
			}, sess.ConnID)
		}
	}
}

func (h *Hub) handleTypingExpired(cmd *Command) {
	if !h.typing.Expire(cmd.Room, cmd.UserID, cmd.gen) {
		return // renewed or cancelled after the callback was scheduled
	}

	sess, ok := h.registry.LookupByUser(cmd.UserID)
	if !ok {
		return
	}
	if room, ok := h.rooms.Get(cmd.Room); ok {
		h.broadcastRoom(room, &Event{
			Kind: EventTypingOff,
			Room: cmd.Room,
			User: snapshotUser(sess),
		}, sess.ConnID)
	}
}

func (h *Hub) handleMarkRead(sess *Session, cmd *Command) {
	room, ok := h.rooms.Get(cmd.Room)
	if !ok {
		h.sendError(cmd.Client, coreErrorCtx(ErrCodeRoomNotFound, "room not found", cmd.Room))
		return
	}
	msg, ok := room.Message(cmd.MessageID)
	if !ok {
		h.sendError(cmd.Client, coreErrorCtx(ErrCodeMessageNotFound, "message not found", cmd.MessageID))
		return
	}
	if !msg.MarkRead(sess.UserID) {
		return
	}

	h.broadcastRoom(room, &Event{
		Kind:      EventReadReceipt,
		Room:      cmd.Room,
		MessageID: cmd.MessageID,
		User:      snapshotUser(sess),
		Timestamp: h.clock.Now(),
	}, sess.ConnID)
}

func (h *Hub) handleEdit(sess *Session, cmd *Command) {
	room, msg, cerr := h.findOwnMessage(sess, cmd.Room, cmd.MessageID)
	if cerr != nil {
		h.sendError(cmd.Client, cerr)
		return
	}
	text, verr := validateText(cmd.Text)
	if verr != nil {
		h.sendError(cmd.Client, verr)
		return
	}

	now := h.clock.Now()
	msg.Text = text
	msg.EditedAt = &now

	edited := *msg
	h.broadcastRoom(room, &Event{
		Kind:      EventMessageEdited,
		Room:      cmd.Room,
		Message:   &edited,
		Timestamp: now,
	}, "")
}

func (h *Hub) handleDelete(sess *Session, cmd *Command) {
	room, msg, cerr := h.findOwnMessage(sess, cmd.Room, cmd.MessageID)
	if cerr != nil {
		h.sendError(cmd.Client, cerr)
		return
	}

	msg.Deleted = true
	msg.Text = ""

	h.broadcastRoom(room, &Event{
		Kind:      EventMessageDeleted,
		Room:      cmd.Room,
		MessageID: cmd.MessageID,
		Timestamp: h.clock.Now(),
	}, "")
}

func (h *Hub) findOwnMessage(sess *Session, roomID, messageID string) (*Room, *Message, *CoreError) {
	room, ok := h.rooms.Get(roomID)
	if !ok {
		return nil, nil, coreErrorCtx(ErrCodeRoomNotFound, "room not found", roomID)
	}
	msg, ok := room.Message(messageID)
	if !ok {
		return nil, nil, coreErrorCtx(ErrCodeMessageNotFound, "message not found", messageID)
	}
	if msg.Sender.ID != sess.UserID {
		return nil, nil, coreError(ErrCodeForbidden, "not the message author")
	}
	return room, msg, nil
}

func validateText(text string) (string, *CoreError) {
	if strings.TrimSpace(text) == "" {
		return "", coreError(ErrCodeValidation, "text is required")
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return "", coreError(ErrCodeValidation, "text exceeds maximum length")
	}
	return text, nil
}

// broadcastRoom fans an event out to every member connection of the room,
// skipping exceptConn when non-empty. Delivery is best-effort and
// independent per recipient.
func (h *Hub) broadcastRoom(room *Room, ev *Event, exceptConn string) {
	for connID := range room.members {
		if connID == exceptConn {
			continue
		}
		if c, ok := h.clients[connID]; ok {
			if !c.deliver(ev) {
				h.log.Warn().Str("conn_id", connID).Str("room", room.ID).Msg("dropped event for slow consumer")
			}
		}
	}
}

// broadcastAll fans an event out to every attached connection, skipping
// exceptConn when non-empty.
func (h *Hub) broadcastAll(ev *Event, exceptConn string) {
	for connID, c := range h.clients {
		if connID == exceptConn {
			continue
		}
		if !c.deliver(ev) {
			h.log.Warn().Str("conn_id", connID).Msg("dropped event for slow consumer")
		}
	}
}

func (h *Hub) sendError(c *Client, cerr *CoreError) {
	c.deliver(&Event{Kind: EventError, Error: cerr})
}

func (h *Hub) roomsListEvent() *Event {
	return &Event{Kind: EventRoomsList, Rooms: h.roomSummaries()}
}

func (h *Hub) roomSummaries() []RoomSummary {
	rooms := h.rooms.List()
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomSummary{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			MemberCount: r.MemberCount(),
		})
	}
	return out
}

// roomMembers resolves member connections to their user snapshots.
func (h *Hub) roomMembers(room *Room) []OnlineUser {
	members := make([]OnlineUser, 0, room.MemberCount())
	for connID := range room.members {
		if sess, ok := h.registry.Lookup(connID); ok {
			members = append(members, snapshotUser(sess))
		}
	}
	return members
}

func (h *Hub) persistMessage(msg Message) {
	if h.store == nil {
		return
	}
	rec := &store.Message{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		RecipientID: msg.RecipientID,
		SenderID:    msg.Sender.ID,
		SenderName:  msg.Sender.Username,
		Text:        msg.Text,
		CreatedAt:   msg.CreatedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := h.store.SaveMessage(ctx, rec); err != nil {
			h.log.Warn().Err(err).Str("message_id", rec.ID).Msg("save message")
		}
	}()
}

func (h *Hub) persistStatus(userID, status string) {
	if h.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := h.store.SetUserStatus(ctx, userID, status); err != nil {
			h.log.Warn().Err(err).Str("user_id", userID).Msg("set user status")
		}
	}()
}

func snapshotUser(s *Session) OnlineUser {
	return OnlineUser{
		ID:       s.UserID,
		Username: s.Username,
		Avatar:   s.Avatar,
		Status:   "online",
	}
}

func snapshotSender(s *Session) Sender {
	return Sender{
		ID:       s.UserID,
		Username: s.Username,
		Avatar:   s.Avatar,
	}
}
