// Package ws tracks which users have a live chat connection and owns the
// websocket write side of each connection.
package ws

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/Vasu1712/legalwise-backend/internal/metrics"
	"github.com/Vasu1712/legalwise-backend/internal/models"
)

// Conn is an outbound channel to one connected user.
// Send must not block; an error means the connection is dead.
type Conn interface {
	Send(payload []byte) error
	Close(code int, reason string)
}

type entry struct {
	conn Conn
	role models.Role
	name string
}

// Registry is the directory of online users. It holds at most one Conn per
// user id; registering again replaces the previous entry.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]entry
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]entry),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Register stores conn as the connection of userID and returns the connection
// it replaced, if any. The registry does not close the replaced connection.
func (r *Registry) Register(userID string, conn Conn, role models.Role, name string) Conn {
	r.mu.Lock()
	prev, replaced := r.conns[userID]
	r.conns[userID] = entry{conn: conn, role: role, name: name}
	count := len(r.conns)
	metrics.ActiveConnections.Set(float64(count))
	r.mu.Unlock()

	r.logger.Debug().Str("user_id", userID).Str("role", string(role)).Bool("replaced", replaced).
		Int("online", count).Msg("connection registered")
	if !replaced {
		return nil
	}
	return prev.conn
}

// Unregister removes userID. It is a no-op if the user is not registered.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	_, ok := r.conns[userID]
	delete(r.conns, userID)
	count := len(r.conns)
	metrics.ActiveConnections.Set(float64(count))
	r.mu.Unlock()

	if ok {
		r.logger.Debug().Str("user_id", userID).Int("online", count).Msg("connection unregistered")
	}
}

// UnregisterConn removes userID only while conn is still its registered
// connection, so a replaced session cannot evict its successor.
func (r *Registry) UnregisterConn(userID string, conn Conn) bool {
	r.mu.Lock()
	current, ok := r.conns[userID]
	if !ok || current.conn != conn {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	count := len(r.conns)
	metrics.ActiveConnections.Set(float64(count))
	r.mu.Unlock()

	r.logger.Debug().Str("user_id", userID).Int("online", count).Msg("connection unregistered")
	return true
}

// IsOnline reports whether userID currently has a registered connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// IsCurrent reports whether conn is the registered connection of userID.
func (r *Registry) IsCurrent(userID string, conn Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[userID]
	return ok && e.conn == conn
}

// Lookup returns the cached identity of an online user.
func (r *Registry) Lookup(userID string) (models.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[userID]
	if !ok {
		return models.User{}, false
	}
	return models.User{ID: userID, Role: e.role, Name: e.name}, true
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SendTo pushes payload to userID. It returns false when the user is offline
// or the push failed; a failed connection is unregistered.
func (r *Registry) SendTo(userID string, payload []byte) bool {
	r.mu.RLock()
	e, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if err := e.conn.Send(payload); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("send failed, dropping connection")
		r.UnregisterConn(userID, e.conn)
		return false
	}
	return true
}

// Broadcast pushes payload to every online user and returns how many accepted it.
// Connections that fail are unregistered.
func (r *Registry) Broadcast(payload []byte) int {
	snapshot := r.snapshot()

	delivered := 0
	for userID, conn := range snapshot {
		if err := conn.Send(payload); err != nil {
			r.logger.Warn().Err(err).Str("user_id", userID).Msg("broadcast failed, dropping connection")
			r.UnregisterConn(userID, conn)
			continue
		}
		delivered++
	}
	return delivered
}

// CloseAll closes and removes every registered connection.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.conns))
	for _, e := range r.conns {
		conns = append(conns, e.conn)
	}
	r.conns = make(map[string]entry)
	metrics.ActiveConnections.Set(0)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(code, reason)
	}
	r.logger.Info().Int("closed", len(conns)).Msg("closed all chat connections")
}

func (r *Registry) snapshot() map[string]Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Conn, len(r.conns))
	for userID, e := range r.conns {
		out[userID] = e.conn
	}
	return out
}
