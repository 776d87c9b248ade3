package realtime

import "sync"

// Registry tracks live connections by connection ID with a reverse index by
// user ID, so targeted dispatch reaches every device a user has open.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	byUser map[string]map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		byUser: make(map[string]map[string]*Conn),
	}
}

// Register adds a connection under its ID. Registering the same ID twice is
// a no-op; the first registration wins.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID]; ok {
		return
	}
	r.conns[c.ID] = c
	userConns := r.byUser[c.Identity.ID]
	if userConns == nil {
		userConns = make(map[string]*Conn)
		r.byUser[c.Identity.ID] = userConns
	}
	userConns[c.ID] = c
}

// Unregister removes a connection and prunes the reverse index entry once
// the user's last connection is gone. Unknown IDs are ignored.
func (r *Registry) Unregister(connID string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)
	userConns := r.byUser[c.Identity.ID]
	delete(userConns, connID)
	if len(userConns) == 0 {
		delete(r.byUser, c.Identity.ID)
	}
	return c
}

// Get returns the connection registered under connID, or nil.
func (r *Registry) Get(connID string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[connID]
}

// ConnectionsFor returns every live connection for a user. The slice is a
// snapshot; callers may enqueue on it without holding registry locks.
func (r *Registry) ConnectionsFor(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userConns := r.byUser[userID]
	if len(userConns) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(userConns))
	for _, c := range userConns {
		out = append(out, c)
	}
	return out
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
