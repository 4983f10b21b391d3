package mqttsn

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeer(id string) *Peer {
	return &Peer{
		ClientID: id,
		Addr:     &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2442},
		Version:  ProtocolV1,
	}
}

func testEntry(msg Message) *InflightEntry {
	return &InflightEntry{
		Message:   msg,
		Source:    DirLocal,
		Token:     NewWaitToken(msg),
		CreatedAt: time.Now(),
	}
}

func TestInflightTable(t *testing.T) {
	t.Run("add get remove", func(t *testing.T) {
		table := NewInflightTable(4, 1)
		peer := testPeer("c1")
		entry := testEntry(&SubscribeMessage{MsgID: 7})

		require.NoError(t, table.Add(peer, DirLocal, 7, entry))
		assert.True(t, table.Exists(peer, DirLocal, 7))
		assert.Equal(t, 1, table.Count(peer, DirLocal))
		assert.Equal(t, 0, table.Count(peer, DirRemote))

		got, ok := table.Get(peer, DirLocal, 7)
		require.True(t, ok)
		assert.Equal(t, entry, got)

		removed, ok := table.Remove(peer, DirLocal, 7)
		require.True(t, ok)
		assert.Equal(t, entry, removed)
		assert.False(t, table.Exists(peer, DirLocal, 7))
	})

	t.Run("capacity enforced per direction", func(t *testing.T) {
		table := NewInflightTable(1, 1)
		peer := testPeer("c1")

		require.NoError(t, table.Add(peer, DirLocal, 1, testEntry(&SubscribeMessage{MsgID: 1})))
		err := table.Add(peer, DirLocal, 2, testEntry(&SubscribeMessage{MsgID: 2}))
		assert.ErrorIs(t, err, ErrExpectationFailed)

		// The remote direction has its own budget.
		require.NoError(t, table.Add(peer, DirRemote, 1, testEntry(&PublishMessage{QoS: 2, MsgID: 1})))
	})

	t.Run("directions are independent tables", func(t *testing.T) {
		table := NewInflightTable(4, 1)
		peer := testPeer("c1")

		require.NoError(t, table.Add(peer, DirLocal, 5, testEntry(&SubscribeMessage{MsgID: 5})))
		assert.False(t, table.Exists(peer, DirRemote, 5))
	})

	t.Run("peers are independent", func(t *testing.T) {
		table := NewInflightTable(4, 1)
		p1, p2 := testPeer("c1"), testPeer("c2")

		require.NoError(t, table.Add(p1, DirLocal, 5, testEntry(&SubscribeMessage{MsgID: 5})))
		assert.False(t, table.Exists(p2, DirLocal, 5))
	})
}

func TestInflightAllocator(t *testing.T) {
	t.Run("ids are sequential from the start floor", func(t *testing.T) {
		table := NewInflightTable(8, 1)
		peer := testPeer("c1")

		for want := uint16(1); want <= 3; want++ {
			id, err := table.NextID(peer, DirLocal)
			require.NoError(t, err)
			assert.Equal(t, want, id)
		}
	})

	t.Run("start floor respected", func(t *testing.T) {
		table := NewInflightTable(8, 100)
		peer := testPeer("c1")

		id, err := table.NextID(peer, DirLocal)
		require.NoError(t, err)
		assert.Equal(t, uint16(100), id)
	})

	t.Run("allocator skips occupied slots", func(t *testing.T) {
		table := NewInflightTable(8, 1)
		peer := testPeer("c1")

		require.NoError(t, table.Add(peer, DirLocal, 2, testEntry(&SubscribeMessage{MsgID: 2})))

		id, err := table.NextID(peer, DirLocal)
		require.NoError(t, err)
		assert.Equal(t, uint16(1), id)

		id, err = table.NextID(peer, DirLocal)
		require.NoError(t, err)
		assert.Equal(t, uint16(3), id)
	})

	t.Run("freed ids are not reused before wrap", func(t *testing.T) {
		// Allocation continues from the last used ID even when a
		// lower slot has been freed.
		table := NewInflightTable(3, 1)
		peer := testPeer("c1")

		msgs := make([]*PublishMessage, 3)
		for i := range msgs {
			msgs[i] = &PublishMessage{QoS: 1}
			_, err := table.Insert(peer, DirLocal, msgs[i], true, testEntry(msgs[i]), false)
			require.NoError(t, err)
		}
		assert.Equal(t, uint16(1), msgs[0].MsgID)
		assert.Equal(t, uint16(2), msgs[1].MsgID)
		assert.Equal(t, uint16(3), msgs[2].MsgID)

		_, ok := table.Remove(peer, DirLocal, 2)
		require.True(t, ok)

		next := &PublishMessage{QoS: 1}
		_, err := table.Insert(peer, DirLocal, next, true, testEntry(next), false)
		require.NoError(t, err)
		assert.Equal(t, uint16(4), next.MsgID)
	})

	t.Run("insert reuses an assigned id", func(t *testing.T) {
		table := NewInflightTable(4, 1)
		peer := testPeer("c1")

		msg := &PublishMessage{QoS: 1, MsgID: 9}
		key, err := table.Insert(peer, DirLocal, msg, true, testEntry(msg), false)
		require.NoError(t, err)
		assert.Equal(t, uint32(9), key)
		assert.Equal(t, uint16(9), msg.MsgID)

		last, ok := table.LastUsedID(peer, DirLocal)
		require.True(t, ok)
		assert.Equal(t, uint16(9), last)
	})

	t.Run("weak attach entries take no id", func(t *testing.T) {
		table := NewInflightTable(4, 1)
		peer := testPeer("c1")

		msg := &PingreqMessage{}
		key, err := table.Insert(peer, DirLocal, msg, false, testEntry(msg), false)
		require.NoError(t, err)
		assert.Equal(t, WeakAttachID, key)

		_, ok := table.LastUsedID(peer, DirLocal)
		assert.False(t, ok)
	})

	t.Run("exhaustion near the top of the range", func(t *testing.T) {
		table := NewInflightTable(4, 65533)
		peer := testPeer("c1")

		for want := uint16(65533); want >= 65533; want++ {
			id, err := table.NextID(peer, DirLocal)
			require.NoError(t, err)
			assert.Equal(t, want, id)
			require.NoError(t, table.Add(peer, DirLocal, uint32(id), testEntry(&SubscribeMessage{MsgID: id})))
			if want == 65535 {
				break
			}
		}

		_, err := table.NextID(peer, DirLocal)
		assert.ErrorIs(t, err, ErrIDExhausted)
	})

	t.Run("wraps back to the floor", func(t *testing.T) {
		table := NewInflightTable(4, 10)
		peer := testPeer("c1")

		msg := &PublishMessage{QoS: 1, MsgID: 65535}
		_, err := table.Insert(peer, DirLocal, msg, true, testEntry(msg), false)
		require.NoError(t, err)

		id, err := table.NextID(peer, DirLocal)
		require.NoError(t, err)
		assert.Equal(t, uint16(10), id)
	})

	t.Run("clear ids resets the allocator", func(t *testing.T) {
		table := NewInflightTable(4, 1)
		peer := testPeer("c1")

		msg := &PublishMessage{QoS: 1}
		_, err := table.Insert(peer, DirLocal, msg, true, testEntry(msg), false)
		require.NoError(t, err)
		table.Remove(peer, DirLocal, uint32(msg.MsgID))

		table.ClearIDs(peer)

		id, err := table.NextID(peer, DirLocal)
		require.NoError(t, err)
		assert.Equal(t, uint16(1), id)
	})
}

func TestInflightConcurrentAllocation(t *testing.T) {
	table := NewInflightTable(128, 1)
	peer := testPeer("c1")

	var wg sync.WaitGroup
	ids := make(chan uint16, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := &PublishMessage{QoS: 1}
			_, err := table.Insert(peer, DirLocal, msg, true, testEntry(msg), false)
			if err == nil {
				ids <- msg.MsgID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint16]struct{})
	for id := range ids {
		_, dup := seen[id]
		assert.False(t, dup, "id %d allocated twice", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func TestInflightSweep(t *testing.T) {
	table := NewInflightTable(8, 1)
	peer := testPeer("c1")

	old := testEntry(&SubscribeMessage{MsgID: 1})
	old.CreatedAt = time.Now().Add(-time.Minute)
	fresh := testEntry(&SubscribeMessage{MsgID: 2})

	require.NoError(t, table.Add(peer, DirLocal, 1, old))
	require.NoError(t, table.Add(peer, DirLocal, 2, fresh))

	cutoff := time.Now().Add(-30 * time.Second)
	removed := table.Sweep(peer, DirLocal, func(e *InflightEntry) bool {
		return e.CreatedAt.Before(cutoff)
	})

	require.Len(t, removed, 1)
	assert.Equal(t, old, removed[0])
	assert.Equal(t, 1, table.Count(peer, DirLocal))
}
