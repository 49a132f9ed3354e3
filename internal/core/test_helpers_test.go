package core

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// newTestHub starts a hub on a mock clock so tests can drive typing
// expiry deterministically.
func newTestHub(t *testing.T, opts ...Option) (*Hub, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	hub := NewHub(nil, nil, append([]Option{WithClock(mock)}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return hub, mock
}

func login(h *Hub, c *Client, userID, username string) {
	h.Dispatch(&Command{Kind: CommandLogin, Client: c, UserID: userID, Username: username})
}

func joinRoom(h *Hub, c *Client, room string) {
	h.Dispatch(&Command{Kind: CommandJoinRoom, Client: c, Room: room})
}

// barrier waits until every previously dispatched command has been
// processed, using the FIFO command channel.
func barrier(h *Hub) {
	h.RoomsSnapshot()
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// assertNoEvent drains the channel for a short window and fails if an
// event of the given kind shows up.
func assertNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v received", kind)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}
