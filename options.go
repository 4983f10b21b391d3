package mqttsn

import "time"

// Options holds the tunables of the message state layer.
type Options struct {
	// MaxMessagesInflight bounds each (peer, direction) inflight table.
	MaxMessagesInflight int

	// MaxErrorRetries is the number of requeue attempts before a
	// publish is discarded and the application notified.
	MaxErrorRetries int

	// MaxErrorRetryTime is the lower bound on the effective await
	// duration, so error-retry pathways can finish even under
	// aggressive caller deadlines.
	MaxErrorRetryTime time.Duration

	// MaxTimeInflight is the age after which the reaper evicts an
	// inflight entry.
	MaxTimeInflight time.Duration

	// MaxWait is the default caller await timeout.
	MaxWait time.Duration

	// MsgIDStart is the lower bound for message ID allocation (>= 1).
	MsgIDStart uint16

	// MinFlushTime is the reschedule delay for REPROCESS and BACKOFF
	// flush results.
	MinFlushTime time.Duration

	// ActiveContextTimeout is the idle threshold that fires the
	// active-timeout handler.
	ActiveContextTimeout time.Duration

	// QueueProcessorThreadCount sizes the commit dispatch pool.
	QueueProcessorThreadCount int

	// RequeueOnInflightTimeout re-offers reaped publishes to the queue.
	RequeueOnInflightTimeout bool

	// ReapReceivingMessages also reaps the remote inflight table.
	ReapReceivingMessages bool

	// StateLoopTimeout is the period of the activity-sweep loop.
	StateLoopTimeout time.Duration

	// MaxQueueSize bounds each peer's message queue (0 = unbounded).
	MaxQueueSize int

	// RegistryTTL expires untouched payloads in the message registry.
	RegistryTTL time.Duration

	// PredefinedTopics is the predefined topic table.
	PredefinedTopics map[uint16]string
}

// DefaultOptions returns the default option set.
func DefaultOptions() *Options {
	return &Options{
		MaxMessagesInflight:       1,
		MaxErrorRetries:           3,
		MaxErrorRetryTime:         10 * time.Second,
		MaxTimeInflight:           20 * time.Second,
		MaxWait:                   30 * time.Second,
		MsgIDStart:                1,
		MinFlushTime:              25 * time.Millisecond,
		ActiveContextTimeout:      90 * time.Second,
		QueueProcessorThreadCount: 2,
		RequeueOnInflightTimeout:  true,
		ReapReceivingMessages:     false,
		StateLoopTimeout:          time.Second,
		MaxQueueSize:              128,
		RegistryTTL:               5 * time.Minute,
	}
}

// Option configures Options.
type Option func(*Options)

// WithMaxMessagesInflight sets the per-direction inflight bound.
func WithMaxMessagesInflight(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxMessagesInflight = n
		}
	}
}

// WithMaxErrorRetries sets the requeue attempt bound.
func WithMaxErrorRetries(n int) Option {
	return func(o *Options) {
		o.MaxErrorRetries = n
	}
}

// WithMaxErrorRetryTime sets the lower bound on the effective await
// duration.
func WithMaxErrorRetryTime(d time.Duration) Option {
	return func(o *Options) {
		o.MaxErrorRetryTime = d
	}
}

// WithMaxTimeInflight sets the reaper eviction age.
func WithMaxTimeInflight(d time.Duration) Option {
	return func(o *Options) {
		o.MaxTimeInflight = d
	}
}

// WithMaxWait sets the default caller await timeout.
func WithMaxWait(d time.Duration) Option {
	return func(o *Options) {
		o.MaxWait = d
	}
}

// WithMsgIDStart sets the message ID allocation floor.
func WithMsgIDStart(id uint16) Option {
	return func(o *Options) {
		if id >= 1 {
			o.MsgIDStart = id
		}
	}
}

// WithMinFlushTime sets the flush reschedule delay.
func WithMinFlushTime(d time.Duration) Option {
	return func(o *Options) {
		o.MinFlushTime = d
	}
}

// WithActiveContextTimeout sets the idle threshold for active-timeout
// notifications. Zero disables the sweep.
func WithActiveContextTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ActiveContextTimeout = d
	}
}

// WithQueueProcessorThreadCount sizes the commit dispatch pool.
func WithQueueProcessorThreadCount(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.QueueProcessorThreadCount = n
		}
	}
}

// WithRequeueOnInflightTimeout controls requeue of reaped publishes.
func WithRequeueOnInflightTimeout(requeue bool) Option {
	return func(o *Options) {
		o.RequeueOnInflightTimeout = requeue
	}
}

// WithReapReceivingMessages also reaps the remote inflight table.
func WithReapReceivingMessages(reap bool) Option {
	return func(o *Options) {
		o.ReapReceivingMessages = reap
	}
}

// WithStateLoopTimeout sets the activity-sweep period.
func WithStateLoopTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.StateLoopTimeout = d
		}
	}
}

// WithMaxQueueSize bounds each peer's message queue.
func WithMaxQueueSize(n int) Option {
	return func(o *Options) {
		o.MaxQueueSize = n
	}
}

// WithRegistryTTL sets the message registry payload TTL.
func WithRegistryTTL(d time.Duration) Option {
	return func(o *Options) {
		o.RegistryTTL = d
	}
}

// WithPredefinedTopics sets the predefined topic table.
func WithPredefinedTopics(topics map[uint16]string) Option {
	return func(o *Options) {
		o.PredefinedTopics = topics
	}
}
