// Package session tracks the peers that completed the /connect handshake.
package session

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Session represents a connected peer.
type Session struct {
	ID       string
	Addr     net.Addr
	Since    time.Time
	LastSeen time.Time
}

// Registry manages all sessions, keyed by peer address.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // addr -> Session
	timeout  time.Duration
	clock    clock.Clock
}

// NewRegistry creates a registry that expires sessions idle for longer than
// timeout. A zero timeout keeps sessions until they are removed.
func NewRegistry(clk clock.Clock, timeout time.Duration) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		clock:    clk,
	}
}

// Connect registers addr and returns its session. A peer that connects again
// keeps its session id.
func (r *Registry) Connect(addr net.Addr) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	key := addr.String()
	if s, ok := r.sessions[key]; ok {
		s.LastSeen = now
		return *s
	}

	s := &Session{
		ID:       uuid.NewString(),
		Addr:     addr,
		Since:    now,
		LastSeen: now,
	}
	r.sessions[key] = s
	return *s
}

// Touch updates the last seen time of the session for addr and reports
// whether there is one.
func (r *Registry) Touch(addr net.Addr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[addr.String()]
	if ok {
		s.LastSeen = r.clock.Now()
	}
	return ok
}

// Lookup returns the session for addr.
func (r *Registry) Lookup(addr net.Addr) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[addr.String()]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Remove removes the session for addr.
func (r *Registry) Remove(addr net.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, addr.String())
}

// All returns a snapshot of all sessions, oldest first.
func (r *Registry) All() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, *s)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Since.Equal(all[j].Since) {
			return all[i].ID < all[j].ID
		}
		return all[i].Since.Before(all[j].Since)
	})
	return all
}

// Count returns the number of sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Expire removes sessions idle for longer than the timeout and returns them.
func (r *Registry) Expire() []Session {
	if r.timeout <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []Session
	now := r.clock.Now()
	for key, s := range r.sessions {
		if now.Sub(s.LastSeen) > r.timeout {
			expired = append(expired, *s)
			delete(r.sessions, key)
		}
	}
	return expired
}

// Run expires idle sessions every interval until ctx is done. onExpire, if
// not nil, is called with every batch of expired sessions.
func (r *Registry) Run(ctx context.Context, interval time.Duration, onExpire func([]Session)) error {
	ticker := r.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if expired := r.Expire(); len(expired) > 0 && onExpire != nil {
				onExpire(expired)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
