package mqttsn

import (
	"sync"
	"time"
)

// ActivityTracker records last-sent, last-received and last-active
// timestamps per peer. The active clock only advances on message kinds
// the codec classifies as active, and never on error frames; it drives
// idle eviction of peer contexts.
type ActivityTracker struct {
	mu           sync.RWMutex
	lastActive   map[*Peer]time.Time
	lastSent     map[*Peer]time.Time
	lastReceived map[*Peer]time.Time
}

// NewActivityTracker creates an empty activity tracker.
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{
		lastActive:   make(map[*Peer]time.Time),
		lastSent:     make(map[*Peer]time.Time),
		lastReceived: make(map[*Peer]time.Time),
	}
}

// TouchSent records a successful transport write.
func (a *ActivityTracker) TouchSent(p *Peer, active bool) {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastSent[p] = now
	if active {
		a.lastActive[p] = now
	}
}

// TouchReceived records a received frame.
func (a *ActivityTracker) TouchReceived(p *Peer, active bool) {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastReceived[p] = now
	if active {
		a.lastActive[p] = now
	}
}

// LastSent returns the last successful write time for the peer.
func (a *ActivityTracker) LastSent(p *Peer) (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.lastSent[p]
	return t, ok
}

// LastReceived returns the last receive time for the peer.
func (a *ActivityTracker) LastReceived(p *Peer) (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.lastReceived[p]
	return t, ok
}

// LastActive returns the last active-message time for the peer.
func (a *ActivityTracker) LastActive(p *Peer) (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.lastActive[p]
	return t, ok
}

// Drop removes all activity state for a peer.
func (a *ActivityTracker) Drop(p *Peer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.lastActive, p)
	delete(a.lastSent, p)
	delete(a.lastReceived, p)
}

// SweepIdle invokes fn for each peer whose last active message is older
// than timeout, removing its active entry. Each idle peer fires once;
// the entry is only recreated by new active traffic.
func (a *ActivityTracker) SweepIdle(timeout time.Duration, fn func(*Peer)) {
	if timeout <= 0 {
		return
	}

	now := time.Now()
	a.mu.Lock()
	var idle []*Peer
	for p, t := range a.lastActive {
		if now.Sub(t) > timeout {
			idle = append(idle, p)
			delete(a.lastActive, p)
		}
	}
	a.mu.Unlock()

	for _, p := range idle {
		fn(p)
	}
}
