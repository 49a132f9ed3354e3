package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftchat/driftchat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCreateAndGetUser(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateUser(ctx, "alice", "hashed-password")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("user id should be generated")
	}

	byID, err := st.GetUserByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.Username != "alice" || byID.PasswordHash != "hashed-password" || byID.IsGuest {
		t.Fatalf("unexpected user: %+v", byID)
	}

	byName, err := st.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if byName.ID != created.ID {
		t.Fatalf("lookups should resolve the same user")
	}

	if _, err := st.GetUserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetUserByID(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsernameUniqueness(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.CreateUser(ctx, "alice", "h1"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := st.CreateUser(ctx, "alice", "h2"); err == nil {
		t.Fatalf("duplicate username should violate the unique constraint")
	}
}

func TestCreateGuestUser(t *testing.T) {
	st := newTestStore(t)

	guest, err := st.CreateGuestUser(context.Background(), "guest-ab12")
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}

	got, err := st.GetUserByID(context.Background(), guest.ID)
	if err != nil {
		t.Fatalf("get guest: %v", err)
	}
	if !got.IsGuest || got.PasswordHash != "" {
		t.Fatalf("guest should have no password and the guest flag set: %+v", got)
	}
}

func TestSaveMessage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	msg := &store.Message{
		ID:         "m1",
		RoomID:     "general",
		SenderID:   "u1",
		SenderName: "alice",
		Text:       "hello",
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save room message: %v", err)
	}

	private := &store.Message{
		ID:          "m2",
		RecipientID: "u2",
		SenderID:    "u1",
		SenderName:  "alice",
		Text:        "psst",
		CreatedAt:   time.Now().UTC(),
	}
	if err := st.SaveMessage(ctx, private); err != nil {
		t.Fatalf("save private message: %v", err)
	}

	if err := st.SaveMessage(ctx, msg); err == nil {
		t.Fatalf("duplicate message id should fail")
	}

	var count int
	if err := st.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stored messages, got %d", count)
	}
}

func TestSetUserStatusUpserts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SetUserStatus(ctx, "u1", "online"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := st.SetUserStatus(ctx, "u1", "offline"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	var status string
	if err := st.db.QueryRowContext(ctx, "SELECT status FROM user_status WHERE user_id = ?", "u1").Scan(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status != "offline" {
		t.Fatalf("expected latest status to win, got %q", status)
	}

	var rows int
	if err := st.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_status").Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("upsert should keep one row per user, got %d", rows)
	}
}
