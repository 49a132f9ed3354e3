package core

import (
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTypingTimeout is how long a typing indicator stays on without
// renewal before auto-expiring.
const DefaultTypingTimeout = 3 * time.Second

type typingKey struct {
	roomID string
	userID string
}

type typingEntry struct {
	timer *clock.Timer
	gen   uint64
}

// typingTracker is the per (room, user) debounce state machine. An entry
// exists only while the user is actively typing; absence means idle. A
// renewed start cancels and replaces the prior timer instead of stacking.
// Expiry callbacks carry a generation token: a stale callback from a timer
// that was cancelled after its function was already in flight must have no
// observable effect, so the hub validates the token via Expire before
// acting. Not safe for concurrent use: all access happens on the hub
// goroutine; the expired callback itself runs on the timer goroutine and
// must only re-enter through the hub's command channel.
type typingTracker struct {
	clock   clock.Clock
	timeout time.Duration
	entries map[typingKey]*typingEntry
	gen     uint64

	// expired is invoked from the timer goroutine when an armed timer
	// fires; it must hand the expiry back to the hub loop.
	expired func(roomID, userID string, gen uint64)
}

func newTypingTracker(clk clock.Clock, timeout time.Duration, expired func(roomID, userID string, gen uint64)) *typingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &typingTracker{
		clock:   clk,
		timeout: timeout,
		entries: make(map[typingKey]*typingEntry),
		expired: expired,
	}
}

// Start transitions (room, user) into Typing, arming the expiry timer.
// Returns true only on the Idle -> Typing transition; a renewed start
// re-arms the timer but reports false so the caller does not re-emit.
func (t *typingTracker) Start(roomID, userID string) bool {
	key := typingKey{roomID: roomID, userID: userID}
	fresh := true
	if entry, ok := t.entries[key]; ok {
		entry.timer.Stop()
		fresh = false
	}

	t.gen++
	gen := t.gen
	t.entries[key] = &typingEntry{
		gen: gen,
		timer: t.clock.AfterFunc(t.timeout, func() {
			t.expired(roomID, userID, gen)
		}),
	}
	return fresh
}

// Stop cancels the timer and transitions to Idle. Returns false if the
// pair was already idle.
func (t *typingTracker) Stop(roomID, userID string) bool {
	key := typingKey{roomID: roomID, userID: userID}
	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.entries, key)
	return true
}

// Expire handles a fired timer. Returns true when the generation matches
// the active entry, in which case the entry is cleared and the caller
// should emit typing-off. A stale generation means the timer was renewed
// or cancelled after the callback was scheduled.
func (t *typingTracker) Expire(roomID, userID string, gen uint64) bool {
	key := typingKey{roomID: roomID, userID: userID}
	entry, ok := t.entries[key]
	if !ok || entry.gen != gen {
		return false
	}
	delete(t.entries, key)
	return true
}

// StopAllForUser forces every room entry for the user to Idle, cancelling
// timers, and returns the affected room ids. Used on disconnect so no
// orphaned typing state survives the session.
func (t *typingTracker) StopAllForUser(userID string) []string {
	var affected []string
	for key, entry := range t.entries {
		if key.userID != userID {
			continue
		}
		entry.timer.Stop()
		delete(t.entries, key)
		affected = append(affected, key.roomID)
	}
	return affected
}
