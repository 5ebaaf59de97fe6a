package router

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrAlreadyBound is returned when a user already has a live connection on this instance.
var ErrAlreadyBound = errors.New("user already bound on this instance")

// Conn is the connection surface the router needs: a stable identity and a write. The server layer owns the
// underlying socket; the router never closes a connection.
type Conn interface {
	ID() uuid.UUID
	Send(payload []byte) error
}

// Registry is the per-instance map from user id to live connection. A single mutex guards the map, and Send performs
// its lookup and write while holding it: the entry's presence under the lock is the proof that the connection has not
// been torn down by a concurrent disconnect.
type Registry struct {
	mu    sync.Mutex
	conns map[int64]Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]Conn)}
}

// Bind inserts the user's connection. It fails with ErrAlreadyBound instead of silently overwriting; the login
// handler rejects duplicates before binding, so a failure here means a lost race.
func (r *Registry) Bind(userID int64, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[userID]; ok {
		return ErrAlreadyBound
	}
	r.conns[userID] = conn
	return nil
}

// Unbind removes the user's entry. Returns false if the user was not bound.
func (r *Registry) Unbind(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[userID]; !ok {
		return false
	}
	delete(r.conns, userID)
	return true
}

// UnbindConn removes the entry holding the given connection id and returns the user it belonged to. The linear scan
// is acceptable: sessions per instance are bounded by kernel descriptor limits.
func (r *Registry) UnbindConn(connID uuid.UUID) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, conn := range r.conns {
		if conn.ID() == connID {
			delete(r.conns, userID)
			return userID, true
		}
	}
	return 0, false
}

// Lookup returns the user's connection if bound.
func (r *Registry) Lookup(userID int64) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

// Send writes the payload to the user's connection if one is bound here, holding the lock across lookup and write so
// that "is the user local" and "deliver to it" are atomic as a pair. Returns false when the user is not bound. Write
// errors are not reported here; they surface through the connection layer as a disconnect.
func (r *Registry) Send(userID int64, payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[userID]
	if !ok {
		return false
	}
	_ = conn.Send(payload)
	return true
}

// Len returns the number of bound users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
