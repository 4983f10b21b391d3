package mqttsn

import (
	"math/rand/v2"
	"sync"
	"time"
)

// FlushResult is returned by a queue processor run to steer the flush
// scheduler.
type FlushResult int

const (
	// FlushRemove drops the peer's flush task; the queue is drained or
	// unrecoverable.
	FlushRemove FlushResult = 0

	// FlushReprocess reschedules the task after MinFlushTime; more
	// work remains.
	FlushReprocess FlushResult = 1

	// FlushBackoff reschedules with backoff while the peer's inflight
	// window is blocked, dropping the task once the peer goes idle.
	FlushBackoff FlushResult = 2
)

// String returns the string representation of the flush result.
func (r FlushResult) String() string {
	switch r {
	case FlushRemove:
		return "remove"
	case FlushReprocess:
		return "reprocess"
	case FlushBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// QueueProcessor drains a peer's message queue. Implementations are
// invoked from the flush scheduler's timer pool and must not block
// indefinitely.
type QueueProcessor interface {
	// Process attempts to flush queued publishes for the peer.
	Process(p *Peer) (FlushResult, error)
}

// FlushScheduler maintains at most one live flush task per peer. The
// initial delay is jittered across [1,250]ms so a fleet of peers
// reconnecting after a gateway restart does not flush in lockstep.
type FlushScheduler struct {
	mu        sync.Mutex
	tasks     map[*Peer]*time.Timer
	closed    bool
	processor QueueProcessor
	activity  *ActivityTracker
	log       Logger

	minFlushTime         time.Duration
	activeContextTimeout time.Duration
}

// NewFlushScheduler creates a flush scheduler bound to a queue
// processor and the peer activity clock.
func NewFlushScheduler(processor QueueProcessor, activity *ActivityTracker, minFlushTime, activeContextTimeout time.Duration, log Logger) *FlushScheduler {
	if log == nil {
		log = NewNoOpLogger()
	}
	return &FlushScheduler{
		tasks:                make(map[*Peer]*time.Timer),
		processor:            processor,
		activity:             activity,
		log:                  log,
		minFlushTime:         minFlushTime,
		activeContextTimeout: activeContextTimeout,
	}
}

// ScheduleFlush enqueues a flush task for the peer unless one is
// already live.
func (s *FlushScheduler) ScheduleFlush(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if _, live := s.tasks[p]; live {
		return
	}

	delay := time.Duration(1+rand.IntN(250)) * time.Millisecond
	s.tasks[p] = time.AfterFunc(delay, func() { s.run(p) })
}

// UnscheduleFlush cancels any pending task for the peer and drops the
// handle. A task already running completes its current pass.
func (s *FlushScheduler) UnscheduleFlush(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.tasks[p]; ok {
		delete(s.tasks, p)
		timer.Stop()
	}
}

// Scheduled reports whether a live task exists for the peer.
func (s *FlushScheduler) Scheduled(p *Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, live := s.tasks[p]
	return live
}

// Close cancels all pending tasks.
func (s *FlushScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for p, timer := range s.tasks {
		timer.Stop()
		delete(s.tasks, p)
	}
}

func (s *FlushScheduler) run(p *Peer) {
	result := FlushRemove
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("queue processor panic", LogFields{
					LogFieldClientID: p.ClientID,
					LogFieldError:    r,
				})
				result = FlushRemove
			}
		}()

		var err error
		result, err = s.processor.Process(p)
		if err != nil {
			s.log.Error("queue processor failed", LogFields{
				LogFieldClientID: p.ClientID,
				LogFieldError:    err,
			})
			result = FlushRemove
		}
	}()

	switch result {
	case FlushReprocess:
		s.reschedule(p, s.minFlushTime)

	case FlushBackoff:
		var delta time.Duration
		if last, ok := s.activity.LastReceived(p); ok {
			delta = time.Since(last)
		}
		if delta > s.activeContextTimeout {
			s.drop(p)
			return
		}
		delay := s.minFlushTime
		if delay < 100*time.Millisecond {
			delay = 100 * time.Millisecond
		}
		s.reschedule(p, delay)

	default:
		s.drop(p)
	}
}

func (s *FlushScheduler) reschedule(p *Peer, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		delete(s.tasks, p)
		return
	}
	s.tasks[p] = time.AfterFunc(delay, func() { s.run(p) })
}

func (s *FlushScheduler) drop(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, p)
}
