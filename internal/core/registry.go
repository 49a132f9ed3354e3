package core

import (
	"sort"
	"time"
)

// Session is the live binding between a transport connection and an
// authenticated identity. Owned exclusively by the Registry; other
// components borrow it for the duration of a single event.
type Session struct {
	ConnID      string
	UserID      string
	Username    string
	Avatar      string
	ConnectedAt time.Time
}

// OnlineUser is one entry of the point-in-time online snapshot.
type OnlineUser struct {
	ID       string
	Username string
	Avatar   string
	Status   string
}

// Registry maps live connections to authenticated identities and is the
// source of presence. Not safe for concurrent use: all access happens on
// the hub goroutine.
type Registry struct {
	byConn map[string]*Session
	byUser map[string]*Session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[string]*Session),
		byUser: make(map[string]*Session),
	}
}

// Register binds a connection to an identity. If the identity already has
// a live session on a different connection, that session is evicted and
// returned; its presence is superseded without an offline signal. A
// connection re-registering as a different user drops its old identity
// binding so no ghost stays in the presence snapshot.
func (r *Registry) Register(connID, userID, username, avatar string, now time.Time) (session, evicted *Session) {
	if prior, ok := r.byConn[connID]; ok && prior.UserID != userID {
		if bound, ok := r.byUser[prior.UserID]; ok && bound.ConnID == connID {
			delete(r.byUser, prior.UserID)
		}
	}

	if prior, ok := r.byUser[userID]; ok && prior.ConnID != connID {
		delete(r.byConn, prior.ConnID)
		evicted = prior
	}

	session = &Session{
		ConnID:      connID,
		UserID:      userID,
		Username:    username,
		Avatar:      avatar,
		ConnectedAt: now,
	}
	r.byConn[connID] = session
	r.byUser[userID] = session
	return session, evicted
}

// Lookup returns the session bound to the connection, if any.
func (r *Registry) Lookup(connID string) (*Session, bool) {
	s, ok := r.byConn[connID]
	return s, ok
}

// LookupByUser returns the live session for a user identity, if any.
func (r *Registry) LookupByUser(userID string) (*Session, bool) {
	s, ok := r.byUser[userID]
	return s, ok
}

// Unregister removes and returns the session for a connection. Idempotent:
// unregistering an unknown connection returns nil, false.
func (r *Registry) Unregister(connID string) (*Session, bool) {
	s, ok := r.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(r.byConn, connID)
	if bound, ok := r.byUser[s.UserID]; ok && bound.ConnID == connID {
		delete(r.byUser, s.UserID)
	}
	return s, true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return len(r.byConn)
}

// OnlineSnapshot returns a point-in-time copy of the online users,
// ordered by connect time. Callers must not assume it stays live.
func (r *Registry) OnlineSnapshot() []OnlineUser {
	sessions := make([]*Session, 0, len(r.byUser))
	for _, s := range r.byUser {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].ConnectedAt.Equal(sessions[j].ConnectedAt) {
			return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt)
		}
		return sessions[i].UserID < sessions[j].UserID
	})

	users := make([]OnlineUser, 0, len(sessions))
	for _, s := range sessions {
		users = append(users, OnlineUser{
			ID:       s.UserID,
			Username: s.Username,
			Avatar:   s.Avatar,
			Status:   "online",
		})
	}
	return users
}
