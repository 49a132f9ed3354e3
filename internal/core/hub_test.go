package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

// drain empties a client's event queue. Call barrier first so every
// dispatched command has been processed.
func drain(ch chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func connect(t *testing.T, h *Hub, connID string) *Client {
	t.Helper()
	c := NewClient(connID)
	h.RegisterClient(c)
	return c
}

func TestHubConnectDeliversRoomsList(t *testing.T) {
	h, _ := newTestHub(t)
	c := connect(t, h, "c1")

	ev := mustEvent(t, c.Events, EventRoomsList)
	if len(ev.Rooms) != 4 {
		t.Fatalf("expected 4 default rooms before login, got %d", len(ev.Rooms))
	}
	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 connected client, got %d", h.ClientCount())
	}
}

func TestHubRejectsCommandsWithoutSession(t *testing.T) {
	h, _ := newTestHub(t)
	c := connect(t, h, "c1")

	h.Dispatch(&Command{Kind: CommandSendMessage, Client: c, Room: "general", Text: "hi"})

	ev := mustEvent(t, c.Events, EventError)
	if ev.Error.Code != ErrCodeUnauthenticated {
		t.Fatalf("expected unauthenticated error, got %q", ev.Error.Code)
	}
	barrier(h)
	if room, ok := h.rooms.Get("general"); ok && len(room.History()) != 0 {
		t.Fatalf("rejected command must not mutate state")
	}
}

func TestHubLoginNotifiesEveryoneElse(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")

	login(h, b, "u2", "bob")
	barrier(h)
	drain(a.Events)
	drain(b.Events)

	login(h, a, "u1", "alice")

	auth := mustEvent(t, a.Events, EventAuthenticated)
	if auth.Session.UserID != "u1" || auth.Session.Username != "alice" {
		t.Fatalf("unexpected session: %+v", auth.Session)
	}

	online := mustEvent(t, a.Events, EventUsersOnline)
	if len(online.Users) != 2 {
		t.Fatalf("expected 2 online users, got %d", len(online.Users))
	}

	joined := mustEvent(t, b.Events, EventUserJoined)
	if joined.User.Username != "alice" {
		t.Fatalf("expected join notification for alice, got %q", joined.User.Username)
	}
	// The joining user does not hear about themselves.
	assertNoEvent(t, a.Events, EventUserJoined)
}

func TestHubLoginRequiresIdentity(t *testing.T) {
	h, _ := newTestHub(t)
	c := connect(t, h, "c1")

	h.Dispatch(&Command{Kind: CommandLogin, Client: c, UserID: "", Username: ""})

	ev := mustEvent(t, c.Events, EventError)
	if ev.Error.Code != ErrCodeValidation {
		t.Fatalf("expected validation error, got %q", ev.Error.Code)
	}
}

func TestHubJoinDeliversHistoryAndMembers(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")

	joinRoom(h, a, "general")
	h.Dispatch(&Command{Kind: CommandSendMessage, Client: a, Room: "general", Text: "hello"})
	barrier(h)
	drain(a.Events)

	joinRoom(h, b, "general")

	hist := mustEvent(t, b.Events, EventRoomHistory)
	if hist.Room != "general" {
		t.Fatalf("history for wrong room: %q", hist.Room)
	}
	if len(hist.Messages) != 1 || hist.Messages[0].Text != "hello" {
		t.Fatalf("expected buffered message in history, got %+v", hist.Messages)
	}
	if len(hist.Users) != 2 {
		t.Fatalf("expected both members in roster, got %d", len(hist.Users))
	}

	notice := mustEvent(t, a.Events, EventRoomUserJoined)
	if notice.User.Username != "bob" || notice.Room != "general" {
		t.Fatalf("unexpected join notice: %+v", notice)
	}

	// Re-joining is idempotent and does not re-announce.
	barrier(h)
	drain(a.Events)
	joinRoom(h, b, "general")
	barrier(h)
	assertNoEvent(t, a.Events, EventRoomUserJoined)
}

func TestHubBroadcastReachesMembersOnly(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	c := connect(t, h, "c3")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	login(h, c, "u3", "carol")
	joinRoom(h, a, "general")
	joinRoom(h, b, "general")
	barrier(h)
	drain(a.Events)
	drain(b.Events)
	drain(c.Events)

	h.Dispatch(&Command{Kind: CommandSendMessage, Client: a, Room: "general", Text: "hi all"})

	got := mustEvent(t, b.Events, EventMessageNew)
	if got.Message.Text != "hi all" || got.Message.Sender.Username != "alice" {
		t.Fatalf("unexpected message: %+v", got.Message)
	}
	if len(got.Message.ReadBy) != 1 || got.Message.ReadBy[0] != "u1" {
		t.Fatalf("new message should be read by its sender only, got %v", got.Message.ReadBy)
	}

	// Sender gets the room copy and an ack carrying the same id.
	senderCopy := mustEvent(t, a.Events, EventMessageNew)
	ack := mustEvent(t, a.Events, EventMessageSent)
	if ack.Message.ID != senderCopy.Message.ID || ack.Message.ID != got.Message.ID {
		t.Fatalf("ack and broadcast must share one message id")
	}

	assertNoEvent(t, c.Events, EventMessageNew)
}

func TestHubSendValidation(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	login(h, a, "u1", "alice")
	joinRoom(h, a, "general")
	barrier(h)
	drain(a.Events)

	for i, text := range []string{"", "   \n\t ", strings.Repeat("あ", MaxMessageLen+1)} {
		h.Dispatch(&Command{Kind: CommandSendMessage, Client: a, Room: "general", Text: text})
		ev := mustEvent(t, a.Events, EventError)
		if ev.Error.Code != ErrCodeValidation {
			t.Fatalf("case %d: expected validation error, got %q", i, ev.Error.Code)
		}
	}

	// A text of exactly the limit passes.
	h.Dispatch(&Command{Kind: CommandSendMessage, Client: a, Room: "general", Text: strings.Repeat("あ", MaxMessageLen)})
	mustEvent(t, a.Events, EventMessageSent)

	barrier(h)
	room, _ := h.rooms.Get("general")
	if len(room.History()) != 1 {
		t.Fatalf("rejected sends must not reach the buffer, got %d", len(room.History()))
	}
}

func TestHubPrivateMessageDelivery(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	barrier(h)
	drain(a.Events)
	drain(b.Events)

	h.Dispatch(&Command{Kind: CommandSendPrivate, Client: a, RecipientID: "u2", Text: "psst"})

	got := mustEvent(t, b.Events, EventPrivate)
	if got.Message.Text != "psst" || got.Message.RecipientID != "u2" {
		t.Fatalf("unexpected private message: %+v", got.Message)
	}
	ack := mustEvent(t, a.Events, EventPrivateSent)
	if ack.Message.ID != got.Message.ID {
		t.Fatalf("ack must carry the delivered message id")
	}
}

func TestHubPrivateMessageToOfflineUser(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	login(h, a, "u1", "alice")
	barrier(h)
	drain(a.Events)

	h.Dispatch(&Command{Kind: CommandSendPrivate, Client: a, RecipientID: "ghost", Text: "anyone?"})

	ev := mustEvent(t, a.Events, EventError)
	if ev.Error.Code != ErrCodeRecipientOffline {
		t.Fatalf("expected recipient_offline, got %q", ev.Error.Code)
	}
	if ev.Error.Context != "ghost" {
		t.Fatalf("error should name the recipient, got %q", ev.Error.Context)
	}
	assertNoEvent(t, a.Events, EventPrivateSent)
}

func TestHubTypingAutoExpires(t *testing.T) {
	h, mock := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	joinRoom(h, a, "general")
	joinRoom(h, b, "general")
	barrier(h)
	drain(a.Events)
	drain(b.Events)

	h.Dispatch(&Command{Kind: CommandTyping, Client: a, Room: "general", IsTyping: true})

	on := mustEvent(t, b.Events, EventTypingOn)
	if on.User.Username != "alice" || on.Room != "general" {
		t.Fatalf("unexpected typing-on: %+v", on)
	}
	// The typist never hears their own indicator.
	assertNoEvent(t, a.Events, EventTypingOn)

	barrier(h)
	mock.Add(DefaultTypingTimeout)
	barrier(h)

	off := mustEvent(t, b.Events, EventTypingOff)
	if off.User.Username != "alice" {
		t.Fatalf("expected typing-off for alice, got %+v", off)
	}
}

func TestHubTypingRenewalKeepsIndicatorOn(t *testing.T) {
	h, mock := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	joinRoom(h, a, "general")
	joinRoom(h, b, "general")
	barrier(h)
	drain(a.Events)
	drain(b.Events)

	h.Dispatch(&Command{Kind: CommandTyping, Client: a, Room: "general", IsTyping: true})
	mustEvent(t, b.Events, EventTypingOn)

	barrier(h)
	mock.Add(2 * time.Second)

	// A keystroke inside the window renews without a duplicate typing-on.
	h.Dispatch(&Command{Kind: CommandTyping, Client: a, Room: "general", IsTyping: true})
	barrier(h)
	assertNoEvent(t, b.Events, EventTypingOn)

	mock.Add(2 * time.Second)
	barrier(h)
	assertNoEvent(t, b.Events, EventTypingOff)

	mock.Add(1 * time.Second)
	barrier(h)
	mustEvent(t, b.Events, EventTypingOff)
}

func TestHubTypingExplicitStop(t *testing.T) {
	h, mock := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	joinRoom(h, a, "general")
	joinRoom(h, b, "general")
	barrier(h)
	drain(a.Events)
	drain(b.Events)

	// Stop while idle is a no-op.
	h.Dispatch(&Command{Kind: CommandTyping, Client: a, Room: "general", IsTyping: false})
	barrier(h)
	assertNoEvent(t, b.Events, EventTypingOff)

	h.Dispatch(&Command{Kind: CommandTyping, Client: a, Room: "general", IsTyping: true})
	mustEvent(t, b.Events, EventTypingOn)
	h.Dispatch(&Command{Kind: CommandTyping, Client: a, Room: "general", IsTyping: false})
	mustEvent(t, b.Events, EventTypingOff)

	// The cancelled timer must not fire a second typing-off later.
	barrier(h)
	drain(b.Events)
	mock.Add(2 * DefaultTypingTimeout)
	barrier(h)
	assertNoEvent(t, b.Events, EventTypingOff)
}

func TestHubDisconnectCleanup(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	joinRoom(h, a, "general")
	joinRoom(h, a, "random")
	joinRoom(h, b, "general")
	joinRoom(h, b, "random")
	h.Dispatch(&Command{Kind: CommandTyping, Client: a, Room: "general", IsTyping: true})
	barrier(h)
	drain(b.Events)

	h.UnregisterClient(a)

	left := map[string]bool{}
	left[mustEvent(t, b.Events, EventRoomUserLeft).Room] = true
	left[mustEvent(t, b.Events, EventRoomUserLeft).Room] = true
	if !left["general"] || !left["random"] {
		t.Fatalf("expected leave notices for both rooms, got %v", left)
	}

	off := mustEvent(t, b.Events, EventTypingOff)
	if off.User.Username != "alice" {
		t.Fatalf("typing state must be cleared on disconnect")
	}

	gone := mustEvent(t, b.Events, EventUserLeft)
	if gone.User.Username != "alice" {
		t.Fatalf("expected global offline notice for alice")
	}

	barrier(h)
	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 remaining client, got %d", h.ClientCount())
	}
	for _, summary := range h.RoomsSnapshot() {
		if summary.ID == "general" && summary.MemberCount != 1 {
			t.Fatalf("general should have 1 member left, got %d", summary.MemberCount)
		}
	}

	// A second unregister for the same client is harmless.
	h.UnregisterClient(a)
	barrier(h)
	assertNoEvent(t, b.Events, EventUserLeft)
}

func TestHubLeaveRoomSilentWhenNotMember(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	joinRoom(h, b, "general")
	barrier(h)
	drain(a.Events)
	drain(b.Events)

	h.Dispatch(&Command{Kind: CommandLeaveRoom, Client: a, Room: "general"})
	barrier(h)
	assertNoEvent(t, b.Events, EventRoomUserLeft)

	joinRoom(h, a, "general")
	barrier(h)
	drain(b.Events)
	h.Dispatch(&Command{Kind: CommandLeaveRoom, Client: a, Room: "general"})
	left := mustEvent(t, b.Events, EventRoomUserLeft)
	if left.User.Username != "alice" {
		t.Fatalf("expected leave notice for alice, got %+v", left)
	}
}

func TestHubReadReceipts(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	joinRoom(h, a, "general")
	joinRoom(h, b, "general")
	h.Dispatch(&Command{Kind: CommandSendMessage, Client: a, Room: "general", Text: "read me"})

	msgID := mustEvent(t, b.Events, EventMessageNew).Message.ID
	barrier(h)
	drain(a.Events)
	drain(b.Events)

	h.Dispatch(&Command{Kind: CommandMarkRead, Client: b, Room: "general", MessageID: msgID})

	receipt := mustEvent(t, a.Events, EventReadReceipt)
	if receipt.MessageID != msgID || receipt.User.ID != "u2" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	// Receipts are monotonic: repeating the ack emits nothing.
	h.Dispatch(&Command{Kind: CommandMarkRead, Client: b, Room: "general", MessageID: msgID})
	barrier(h)
	assertNoEvent(t, a.Events, EventReadReceipt)

	// The author is already a reader of their own message.
	h.Dispatch(&Command{Kind: CommandMarkRead, Client: a, Room: "general", MessageID: msgID})
	barrier(h)
	assertNoEvent(t, b.Events, EventReadReceipt)

	h.Dispatch(&Command{Kind: CommandMarkRead, Client: b, Room: "nowhere", MessageID: msgID})
	if ev := mustEvent(t, b.Events, EventError); ev.Error.Code != ErrCodeRoomNotFound {
		t.Fatalf("expected room_not_found, got %q", ev.Error.Code)
	}
	h.Dispatch(&Command{Kind: CommandMarkRead, Client: b, Room: "general", MessageID: "missing"})
	if ev := mustEvent(t, b.Events, EventError); ev.Error.Code != ErrCodeMessageNotFound {
		t.Fatalf("expected message_not_found, got %q", ev.Error.Code)
	}
}

func TestHubReauthenticationIsSilent(t *testing.T) {
	h, _ := newTestHub(t)
	first := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, first, "u1", "alice")
	login(h, b, "u2", "bob")
	joinRoom(h, first, "general")
	joinRoom(h, b, "general")
	barrier(h)
	drain(b.Events)

	// The same user authenticates over a new connection.
	second := connect(t, h, "c3")
	login(h, second, "u1", "alice")

	mustEvent(t, second.Events, EventAuthenticated)
	barrier(h)

	// The superseded session vanishes without offline or leave signals.
	for done := false; !done; {
		select {
		case ev := <-b.Events:
			if ev.Kind == EventUserLeft || ev.Kind == EventRoomUserLeft {
				t.Fatalf("eviction must be silent, got event kind %v", ev.Kind)
			}
		default:
			done = true
		}
	}

	for _, summary := range h.RoomsSnapshot() {
		if summary.ID == "general" && summary.MemberCount != 1 {
			t.Fatalf("evicted connection should lose its room slot, count %d", summary.MemberCount)
		}
	}
	if sess, ok := h.registry.LookupByUser("u1"); !ok || sess.ConnID != "c3" {
		t.Fatalf("user should resolve to the newest connection")
	}
}

func TestHubRoomsSnapshotAfterShutdown(t *testing.T) {
	h := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	if got := h.RoomsSnapshot(); len(got) != 4 {
		t.Fatalf("expected the default roster while running, got %+v", got)
	}

	cancel()
	<-stopped

	finished := make(chan []RoomSummary, 1)
	go func() { finished <- h.RoomsSnapshot() }()
	select {
	case got := <-finished:
		if got != nil {
			t.Fatalf("stopped hub should report no rooms, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("snapshot must not block after shutdown")
	}
}

func TestHubIdentitySwitchLeavesNoGhost(t *testing.T) {
	h, mock := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	joinRoom(h, a, "general")
	joinRoom(h, b, "general")
	h.Dispatch(&Command{Kind: CommandTyping, Client: a, Room: "general", IsTyping: true})
	mustEvent(t, b.Events, EventTypingOn)

	// The same connection logs in again under a new identity.
	login(h, a, "u3", "casey")
	mustEvent(t, a.Events, EventAuthenticated)
	barrier(h)
	drain(b.Events)

	if _, ok := h.registry.LookupByUser("u1"); ok {
		t.Fatalf("old identity must not resolve after the switch")
	}
	users := h.registry.OnlineSnapshot()
	if len(users) != 2 {
		t.Fatalf("expected 2 online users, got %+v", users)
	}
	for _, u := range users {
		if u.Username == "alice" {
			t.Fatalf("ghost identity still in presence: %+v", users)
		}
	}

	// Messages addressed to the old identity no longer reach the socket.
	h.Dispatch(&Command{Kind: CommandSendPrivate, Client: b, RecipientID: "u1", Text: "still there?"})
	if ev := mustEvent(t, b.Events, EventError); ev.Error.Code != ErrCodeRecipientOffline {
		t.Fatalf("expected recipient_offline for the ghost, got %q", ev.Error.Code)
	}
	assertNoEvent(t, a.Events, EventPrivate)

	// The old identity's typing timer was cancelled, not orphaned.
	mock.Add(DefaultTypingTimeout)
	barrier(h)
	assertNoEvent(t, b.Events, EventTypingOff)
}

func TestHubEditMessage(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	joinRoom(h, a, "general")
	joinRoom(h, b, "general")
	h.Dispatch(&Command{Kind: CommandSendMessage, Client: a, Room: "general", Text: "first draft"})

	msgID := mustEvent(t, b.Events, EventMessageNew).Message.ID
	barrier(h)
	drain(a.Events)
	drain(b.Events)

	// Only the author may edit.
	h.Dispatch(&Command{Kind: CommandEditMessage, Client: b, Room: "general", MessageID: msgID, Text: "hijacked"})
	if ev := mustEvent(t, b.Events, EventError); ev.Error.Code != ErrCodeForbidden {
		t.Fatalf("expected forbidden, got %q", ev.Error.Code)
	}

	h.Dispatch(&Command{Kind: CommandEditMessage, Client: a, Room: "general", MessageID: msgID, Text: "final version"})

	edited := mustEvent(t, b.Events, EventMessageEdited)
	if edited.Message.Text != "final version" || edited.Message.EditedAt == nil {
		t.Fatalf("unexpected edited message: %+v", edited.Message)
	}

	barrier(h)
	room, _ := h.rooms.Get("general")
	msg, _ := room.Message(msgID)
	if msg.Text != "final version" {
		t.Fatalf("buffer should hold the edited text, got %q", msg.Text)
	}
}

func TestHubDeleteMessage(t *testing.T) {
	h, _ := newTestHub(t)
	a := connect(t, h, "c1")
	b := connect(t, h, "c2")
	login(h, a, "u1", "alice")
	login(h, b, "u2", "bob")
	joinRoom(h, a, "general")
	joinRoom(h, b, "general")
	h.Dispatch(&Command{Kind: CommandSendMessage, Client: a, Room: "general", Text: "delete me"})

	msgID := mustEvent(t, b.Events, EventMessageNew).Message.ID
	barrier(h)
	drain(a.Events)
	drain(b.Events)

	h.Dispatch(&Command{Kind: CommandDeleteMessage, Client: b, Room: "general", MessageID: msgID})
	if ev := mustEvent(t, b.Events, EventError); ev.Error.Code != ErrCodeForbidden {
		t.Fatalf("expected forbidden, got %q", ev.Error.Code)
	}

	h.Dispatch(&Command{Kind: CommandDeleteMessage, Client: a, Room: "general", MessageID: msgID})

	deleted := mustEvent(t, b.Events, EventMessageDeleted)
	if deleted.MessageID != msgID {
		t.Fatalf("deletion should reference the message id")
	}

	barrier(h)
	room, _ := h.rooms.Get("general")
	msg, _ := room.Message(msgID)
	if !msg.Deleted || msg.Text != "" {
		t.Fatalf("buffer entry should be tombstoned, got %+v", msg)
	}
}
