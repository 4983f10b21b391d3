package mqttsn

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// scriptedProcessor returns queued results in order, then FlushRemove.
type scriptedProcessor struct {
	mu      sync.Mutex
	results []FlushResult
	calls   int
	panics  bool
}

func (p *scriptedProcessor) Process(_ *Peer) (FlushResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.panics {
		panic("processor exploded")
	}
	if len(p.results) == 0 {
		return FlushRemove, nil
	}
	result := p.results[0]
	p.results = p.results[1:]
	return result, nil
}

func (p *scriptedProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestScheduler(proc QueueProcessor, activity *ActivityTracker) *FlushScheduler {
	if activity == nil {
		activity = NewActivityTracker()
	}
	return NewFlushScheduler(proc, activity, 10*time.Millisecond, 100*time.Millisecond, NewNoOpLogger())
}

func TestFlushScheduler(t *testing.T) {
	t.Run("remove drops the task", func(t *testing.T) {
		proc := &scriptedProcessor{results: []FlushResult{FlushRemove}}
		s := newTestScheduler(proc, nil)
		defer s.Close()
		peer := testPeer("c1")

		s.ScheduleFlush(peer)
		assert.True(t, s.Scheduled(peer))

		assert.Eventually(t, func() bool {
			return !s.Scheduled(peer) && proc.callCount() == 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("at most one live task per peer", func(t *testing.T) {
		proc := &scriptedProcessor{results: []FlushResult{FlushRemove}}
		s := newTestScheduler(proc, nil)
		defer s.Close()
		peer := testPeer("c1")

		s.ScheduleFlush(peer)
		s.ScheduleFlush(peer)
		s.ScheduleFlush(peer)

		assert.Eventually(t, func() bool {
			return !s.Scheduled(peer)
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, 1, proc.callCount())
	})

	t.Run("reprocess runs again", func(t *testing.T) {
		proc := &scriptedProcessor{results: []FlushResult{FlushReprocess, FlushReprocess, FlushRemove}}
		s := newTestScheduler(proc, nil)
		defer s.Close()
		peer := testPeer("c1")

		s.ScheduleFlush(peer)

		assert.Eventually(t, func() bool {
			return proc.callCount() == 3 && !s.Scheduled(peer)
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("backoff reschedules while the peer is active", func(t *testing.T) {
		activity := NewActivityTracker()
		peer := testPeer("c1")
		activity.TouchReceived(peer, true)

		proc := &scriptedProcessor{results: []FlushResult{FlushBackoff, FlushRemove}}
		// The idle threshold must outlast the initial jitter (up to 250ms)
		// plus the backoff delay, or the peer already counts as idle.
		s := NewFlushScheduler(proc, activity, 10*time.Millisecond, time.Minute, NewNoOpLogger())
		defer s.Close()

		s.ScheduleFlush(peer)

		assert.Eventually(t, func() bool {
			return proc.callCount() == 2
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("backoff drops an idle peer", func(t *testing.T) {
		activity := NewActivityTracker()
		peer := testPeer("c1")
		activity.TouchReceived(peer, true)

		proc := &scriptedProcessor{results: []FlushResult{FlushBackoff}}
		s := NewFlushScheduler(proc, activity, 10*time.Millisecond, time.Nanosecond, NewNoOpLogger())
		defer s.Close()

		time.Sleep(time.Millisecond)
		s.ScheduleFlush(peer)

		assert.Eventually(t, func() bool {
			return proc.callCount() == 1 && !s.Scheduled(peer)
		}, time.Second, 5*time.Millisecond)

		// Dropped, not rescheduled.
		time.Sleep(150 * time.Millisecond)
		assert.Equal(t, 1, proc.callCount())
	})

	t.Run("unschedule cancels a pending task", func(t *testing.T) {
		proc := &scriptedProcessor{results: []FlushResult{FlushRemove}}
		s := newTestScheduler(proc, nil)
		defer s.Close()
		peer := testPeer("c1")

		s.ScheduleFlush(peer)
		s.UnscheduleFlush(peer)
		assert.False(t, s.Scheduled(peer))

		time.Sleep(300 * time.Millisecond)
		assert.Equal(t, 0, proc.callCount())
	})

	t.Run("panic in the processor removes the task", func(t *testing.T) {
		proc := &scriptedProcessor{panics: true}
		s := newTestScheduler(proc, nil)
		defer s.Close()
		peer := testPeer("c1")

		s.ScheduleFlush(peer)

		assert.Eventually(t, func() bool {
			return proc.callCount() == 1 && !s.Scheduled(peer)
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("closed scheduler ignores new work", func(t *testing.T) {
		proc := &scriptedProcessor{}
		s := newTestScheduler(proc, nil)
		s.Close()
		peer := testPeer("c1")

		s.ScheduleFlush(peer)
		assert.False(t, s.Scheduled(peer))
	})
}
