package wsgateway

import (
	"sync"
)

// ConnectionRegistry tracks active WebSocket connections and how many each
// user holds, so the gateway can enforce per-user connection limits.
type ConnectionRegistry struct {
	mu        sync.RWMutex
	conns     map[string]*Connection // connection id -> connection
	userConns map[string]int         // user id -> open connection count
}

// NewConnectionRegistry creates a new connection registry
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns:     make(map[string]*Connection),
		userConns: make(map[string]int),
	}
}

// Add adds a connection to the registry
func (r *ConnectionRegistry) Add(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID] = conn
	r.userConns[conn.UserID]++
}

// Remove deletes the connection and reports whether it was present. For a
// given id, exactly one of any concurrent callers observes true; the caller
// that does owns tearing the connection down.
func (r *ConnectionRegistry) Remove(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.conns[connectionID]
	if !exists {
		return false
	}
	delete(r.conns, connectionID)

	if n := r.userConns[conn.UserID]; n <= 1 {
		delete(r.userConns, conn.UserID)
	} else {
		r.userConns[conn.UserID] = n - 1
	}
	return true
}

// Get retrieves a connection by ID
func (r *ConnectionRegistry) Get(connectionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, exists := r.conns[connectionID]
	return conn, exists
}

// GetAll retrieves all connections
func (r *ConnectionRegistry) GetAll() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		connections = append(connections, conn)
	}
	return connections
}

// Count returns the total number of connections
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CountByUser returns the number of connections a user currently holds
func (r *ConnectionRegistry) CountByUser(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userConns[userID]
}
