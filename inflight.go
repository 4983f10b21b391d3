package mqttsn

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Direction identifies which side originated an inflight exchange.
type Direction int

const (
	// DirLocal marks exchanges this runtime originated.
	DirLocal Direction = 0

	// DirRemote marks exchanges the peer originated.
	DirRemote Direction = 1
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	if d == DirLocal {
		return "local"
	}
	return "remote"
}

// WeakAttachID tables entries that carry no wire-level message ID,
// such as inbound QoS 2 publishes awaiting PUBREL. Never transmitted.
const WeakAttachID uint32 = 65536

// maxMessageID is the size of the 16-bit message ID space. Allocation
// wraps modulo this value, so the largest assignable ID is 65535.
const maxMessageID = 65536

// QueuedPublish is a publish waiting in a peer's send queue. The
// payload lives in the message registry under MessageID.
type QueuedPublish struct {
	// MessageID keys the payload in the message registry.
	MessageID uuid.UUID

	// TopicPath is the resolved topic name.
	TopicPath string

	// QoS is the requested quality of service.
	QoS int

	// Retained indicates a retained publish.
	Retained bool

	// RetryCount is the number of delivery attempts so far.
	RetryCount int

	// MsgID is the wire message ID assigned on first send; reused on
	// re-delivery so DUP retransmits carry the same identifier.
	MsgID uint16
}

// InflightEntry is a request that has been transmitted (or received,
// for QoS 2) and awaits its terminal response.
type InflightEntry struct {
	// Message is the sent or received-and-pending frame.
	Message Message

	// Source records which side originated the exchange.
	Source Direction

	// Token releases callers waiting on the exchange. May be nil for
	// remote entries without a waiter.
	Token *WaitToken

	// Queued back-references the queued publish for local PUBLISH
	// entries, enabling requeue on timeout.
	Queued *QueuedPublish

	// CreatedAt is the insertion timestamp.
	CreatedAt time.Time
}

// Requeueable reports whether the entry references a queued publish
// eligible for reintroduction to the send queue.
func (e *InflightEntry) Requeueable() bool {
	return e.Queued != nil
}

// peerInflight holds both direction tables and the ID allocator state
// for one peer, guarded by a single per-peer mutex.
type peerInflight struct {
	mu       sync.Mutex
	tables   [2]map[uint32]*InflightEntry
	lastUsed [2]uint16
	hasLast  [2]bool
}

func newPeerInflight() *peerInflight {
	return &peerInflight{
		tables: [2]map[uint32]*InflightEntry{
			make(map[uint32]*InflightEntry),
			make(map[uint32]*InflightEntry),
		},
	}
}

// InflightTable is the per-peer, per-direction inflight store with a
// contiguous message ID allocator. ID allocation and the corresponding
// insert are serialized under the peer's lock so two concurrent sends
// never receive the same ID.
type InflightTable struct {
	mu          sync.Mutex
	peers       map[*Peer]*peerInflight
	maxInflight int
	msgIDStart  uint16
}

// NewInflightTable creates an inflight table. maxInflight bounds each
// (peer, direction) table; msgIDStart is the allocation floor (>= 1).
func NewInflightTable(maxInflight int, msgIDStart uint16) *InflightTable {
	if maxInflight <= 0 {
		maxInflight = 1
	}
	if msgIDStart < 1 {
		msgIDStart = 1
	}
	return &InflightTable{
		peers:       make(map[*Peer]*peerInflight),
		maxInflight: maxInflight,
		msgIDStart:  msgIDStart,
	}
}

func (t *InflightTable) peer(p *Peer) *peerInflight {
	t.mu.Lock()
	defer t.mu.Unlock()

	pi, ok := t.peers[p]
	if !ok {
		pi = newPeerInflight()
		t.peers[p] = pi
	}
	return pi
}

func (t *InflightTable) peerIfPresent(p *Peer) (*peerInflight, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pi, ok := t.peers[p]
	return pi, ok
}

// Add inserts an entry, failing when the (peer, direction) table is at
// capacity.
func (t *InflightTable) Add(p *Peer, dir Direction, id uint32, entry *InflightEntry) error {
	pi := t.peer(p)
	pi.mu.Lock()
	defer pi.mu.Unlock()

	if len(pi.tables[dir]) >= t.maxInflight {
		return ErrExpectationFailed
	}
	pi.tables[dir][id] = entry
	return nil
}

// Remove detaches and returns the entry under id, if present.
func (t *InflightTable) Remove(p *Peer, dir Direction, id uint32) (*InflightEntry, bool) {
	pi, ok := t.peerIfPresent(p)
	if !ok {
		return nil, false
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()

	entry, ok := pi.tables[dir][id]
	if !ok {
		return nil, false
	}
	delete(pi.tables[dir], id)
	return entry, true
}

// Get returns the entry under id without removing it.
func (t *InflightTable) Get(p *Peer, dir Direction, id uint32) (*InflightEntry, bool) {
	pi, ok := t.peerIfPresent(p)
	if !ok {
		return nil, false
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()

	entry, ok := pi.tables[dir][id]
	return entry, ok
}

// Exists reports whether an entry is tabled under id.
func (t *InflightTable) Exists(p *Peer, dir Direction, id uint32) bool {
	_, ok := t.Get(p, dir, id)
	return ok
}

// Count returns the number of entries in the (peer, direction) table.
func (t *InflightTable) Count(p *Peer, dir Direction) int {
	pi, ok := t.peerIfPresent(p)
	if !ok {
		return 0
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return len(pi.tables[dir])
}

// First returns an arbitrary entry from the (peer, direction) table.
func (t *InflightTable) First(p *Peer, dir Direction) (*InflightEntry, bool) {
	pi, ok := t.peerIfPresent(p)
	if !ok {
		return nil, false
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()

	for _, entry := range pi.tables[dir] {
		return entry, true
	}
	return nil, false
}

// NextID allocates the next free message ID for the (peer, direction)
// table. Exposed for inspection; Insert performs allocation and insert
// under one critical section.
func (t *InflightTable) NextID(p *Peer, dir Direction) (uint16, error) {
	pi := t.peer(p)
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return t.nextIDLocked(pi, dir)
}

// nextIDLocked implements the allocator. Caller holds pi.mu.
func (t *InflightTable) nextIDLocked(pi *peerInflight, dir Direction) (uint16, error) {
	start := uint32(t.msgIDStart)
	candidate := start
	if pi.hasLast[dir] {
		candidate = uint32(pi.lastUsed[dir]) + 1
		if candidate < start {
			candidate = start
		}
	}
	candidate %= maxMessageID
	if candidate < start {
		candidate = start
	}

	usable := maxMessageID - start
	table := pi.tables[dir]
	for i := uint32(0); i <= usable; i++ {
		if _, taken := table[candidate]; !taken {
			id := uint16(candidate)
			pi.lastUsed[dir] = id
			pi.hasLast[dir] = true
			return id, nil
		}
		candidate = (candidate + 1) % maxMessageID
		if candidate < start {
			candidate = start
		}
	}
	return 0, ErrIDExhausted
}

// Insert tables an entry, allocating a message ID when the message
// needs one and has none assigned. A message arriving with an ID keeps
// it, which re-delivers DUP retransmits under their original ID. When
// tolerateOverflow is set a full table is accepted anyway (inbound
// overflow is tolerated for liveness).
//
// Returns the table key: the message ID, or WeakAttachID for messages
// that carry none.
func (t *InflightTable) Insert(p *Peer, dir Direction, msg Message, needsID bool, entry *InflightEntry, tolerateOverflow bool) (uint32, error) {
	pi := t.peer(p)
	pi.mu.Lock()
	defer pi.mu.Unlock()

	if len(pi.tables[dir]) >= t.maxInflight && !tolerateOverflow {
		return 0, ErrExpectationFailed
	}

	key := WeakAttachID
	if needsID {
		wid, ok := msg.(MessageWithID)
		if !ok {
			return 0, ErrExpectationFailed
		}
		if existing := wid.MessageID(); existing > 0 {
			key = uint32(existing)
		} else {
			id, err := t.nextIDLocked(pi, dir)
			if err != nil {
				return 0, err
			}
			wid.SetMessageID(id)
			key = uint32(id)
		}
		pi.lastUsed[dir] = uint16(key)
		pi.hasLast[dir] = true
	}

	pi.tables[dir][key] = entry
	return key, nil
}

// LastUsedID returns the most recent ID assigned for the direction.
func (t *InflightTable) LastUsedID(p *Peer, dir Direction) (uint16, bool) {
	pi, ok := t.peerIfPresent(p)
	if !ok {
		return 0, false
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return pi.lastUsed[dir], pi.hasLast[dir]
}

// Sweep removes and returns entries matching the predicate.
func (t *InflightTable) Sweep(p *Peer, dir Direction, match func(*InflightEntry) bool) []*InflightEntry {
	pi, ok := t.peerIfPresent(p)
	if !ok {
		return nil
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()

	var removed []*InflightEntry
	for id, entry := range pi.tables[dir] {
		if match(entry) {
			delete(pi.tables[dir], id)
			removed = append(removed, entry)
		}
	}
	return removed
}

// ClearIDs drops the last-used ID state for both directions of a peer.
func (t *InflightTable) ClearIDs(p *Peer) {
	pi, ok := t.peerIfPresent(p)
	if !ok {
		return
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.hasLast[DirLocal] = false
	pi.hasLast[DirRemote] = false
}

// DropPeer removes all state for a peer.
func (t *InflightTable) DropPeer(p *Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, p)
}

// InflightPeers returns peers that currently hold inflight entries.
func (t *InflightTable) InflightPeers() []*Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*Peer
	for p, pi := range t.peers {
		pi.mu.Lock()
		active := len(pi.tables[DirLocal]) > 0 || len(pi.tables[DirRemote]) > 0
		pi.mu.Unlock()
		if active {
			out = append(out, p)
		}
	}
	return out
}
