package mqttsn

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxSendRetries caps the client-mode wait-and-retry loop when the
// inflight window is saturated.
const maxSendRetries = 8

// CommitOperation is the delivery of a confirmed publish: inbound to
// the application, or outbound as a sent notification. Created at
// commit points and consumed by the dispatch pool.
type CommitOperation struct {
	// Peer is the remote endpoint of the exchange.
	Peer *Peer

	// Data is the publish data being committed.
	Data PublishData

	// Message is the original publish frame.
	Message Message

	// Inbound distinguishes received deliveries from sent confirmations.
	Inbound bool

	// MessageID keys the payload in the message registry (outbound).
	MessageID uuid.UUID

	// Timestamp records when the commit point was reached.
	Timestamp time.Time
}

// StateConfig wires the message state service to its collaborators.
type StateConfig struct {
	// ClientMode selects client semantics: saturation waits for the
	// blocking exchange instead of failing fast.
	ClientMode bool

	// Transport performs datagram writes.
	Transport Transport

	// Queue is the per-peer send queue.
	Queue *MessageQueue

	// Registry stores publish payloads.
	Registry *MessageRegistry

	// Topics resolves topic encodings.
	Topics *TopicRegistry

	// Security optionally wraps payloads with integrity digests.
	Security *SecurityService

	// Handlers receives application callbacks.
	Handlers Handlers

	// Logger receives state layer logging. Defaults to no-op.
	Logger Logger

	// Metrics receives state layer metrics. Defaults to no-op.
	Metrics Metrics

	// AllowedToSend gates outbound messages. Nil allows everything.
	AllowedToSend func(*Peer, Message) bool
}

// MessageState is the per-peer message state service. It owns the
// inflight tables, assigns and recycles message IDs, enforces QoS
// delivery semantics in both directions, schedules per-peer queue
// flushes, times out stalled publishes, and releases callers waiting
// on confirmation tokens.
type MessageState struct {
	opts       *Options
	clientMode bool

	transport Transport
	inflight  *InflightTable
	activity  *ActivityTracker
	flush     *FlushScheduler
	queue     *MessageQueue
	registry  *MessageRegistry
	topics    *TopicRegistry
	security  *SecurityService
	handlers  Handlers
	log       Logger
	metrics   Metrics

	allowedToSend func(*Peer, Message) bool

	codecV1 Codec
	codecV2 Codec

	commits *dispatchPool

	inflightGauge   Gauge
	commitsInbound  Counter
	commitsOutbound Counter
	reapedCounter   Counter

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewMessageState creates the message state service.
func NewMessageState(cfg StateConfig, opts *Options) *MessageState {
	if opts == nil {
		opts = DefaultOptions()
	}
	log := cfg.Logger
	if log == nil {
		log = NewNoOpLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}

	s := &MessageState{
		opts:          opts,
		clientMode:    cfg.ClientMode,
		transport:     cfg.Transport,
		inflight:      NewInflightTable(opts.MaxMessagesInflight, opts.MsgIDStart),
		activity:      NewActivityTracker(),
		queue:         cfg.Queue,
		registry:      cfg.Registry,
		topics:        cfg.Topics,
		security:      cfg.Security,
		handlers:      cfg.Handlers,
		log:           log,
		metrics:       metrics,
		allowedToSend: cfg.AllowedToSend,
		codecV1:       NewCodecV1(),
		codecV2:       NewCodecV2(),
		commits:       newDispatchPool(opts.QueueProcessorThreadCount),
		stop:          make(chan struct{}),
	}

	s.inflightGauge = metrics.Gauge("mqttsn_inflight_messages", nil)
	s.commitsInbound = metrics.Counter("mqttsn_commits_inbound_total", nil)
	s.commitsOutbound = metrics.Counter("mqttsn_commits_outbound_total", nil)
	s.reapedCounter = metrics.Counter("mqttsn_inflight_reaped_total", nil)

	return s
}

// SetQueueProcessor binds the queue processor and creates the flush
// scheduler. Must be called before ScheduleFlush.
func (s *MessageState) SetQueueProcessor(qp QueueProcessor) {
	s.flush = NewFlushScheduler(qp, s.activity, s.opts.MinFlushTime, s.opts.ActiveContextTimeout, s.log)
}

// Start launches the state loop: activity sweep, registry tidy and
// inflight reaping.
func (s *MessageState) Start() {
	s.wg.Add(1)
	go s.stateLoop()
}

// Stop terminates the state loop, the flush scheduler and the commit
// dispatch pool.
func (s *MessageState) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
	if s.flush != nil {
		s.flush.Close()
	}
	s.commits.close()
}

// Activity exposes the peer activity clock.
func (s *MessageState) Activity() *ActivityTracker {
	return s.activity
}

// Inflight exposes the inflight table.
func (s *MessageState) Inflight() *InflightTable {
	return s.inflight
}

// ScheduleFlush enqueues a flush task for the peer.
func (s *MessageState) ScheduleFlush(p *Peer) {
	if s.flush != nil {
		s.flush.ScheduleFlush(p)
	}
}

// UnscheduleFlush cancels any pending flush task for the peer.
func (s *MessageState) UnscheduleFlush(p *Peer) {
	if s.flush != nil {
		s.flush.UnscheduleFlush(p)
	}
}

// CodecFor returns the codec for the peer's protocol version.
func (s *MessageState) CodecFor(p *Peer) Codec {
	if p.Version == ProtocolV2 {
		return s.codecV2
	}
	return s.codecV1
}

// CanSend reports whether the peer's local inflight window has room.
func (s *MessageState) CanSend(p *Peer) bool {
	return s.inflight.Count(p, DirLocal) < s.opts.MaxMessagesInflight
}

// SendMessage transmits a message, opening an inflight slot when the
// message requires a response. Returns the wait token, or nil when no
// response is expected.
func (s *MessageState) SendMessage(p *Peer, msg Message) (*WaitToken, error) {
	return s.sendInternal(p, msg, nil)
}

// SendPublish builds and transmits a publish from a queued entry. The
// payload is fetched from the message registry and wrapped when
// integrity protection is enabled. Re-deliveries reuse the originally
// assigned message ID and set the DUP flag.
func (s *MessageState) SendPublish(p *Peer, info TopicInfo, q *QueuedPublish) (*WaitToken, error) {
	payload, ok := s.registry.Get(q.MessageID)
	if !ok {
		return nil, fmt.Errorf("%w: payload %s missing from registry", ErrExpectationFailed, q.MessageID)
	}
	if s.security.PayloadIntegrityEnabled() {
		payload = s.security.WriteVerified(p, payload)
	}

	topicID := info.TopicID
	if info.Type == TopicIDShort && topicID == 0 {
		var err error
		topicID, err = EncodeShortTopic(info.TopicPath)
		if err != nil {
			return nil, err
		}
	}

	codec := s.CodecFor(p)
	publish := codec.NewPublish(q.QoS, q.RetryCount > 1 || q.MsgID > 0, q.Retained, info.Type, topicID, payload)
	if q.MsgID != 0 {
		// Re-deliveries must carry the same message ID.
		publish.(MessageWithID).SetMessageID(q.MsgID)
	}
	return s.sendInternal(p, publish, q)
}

func (s *MessageState) sendInternal(p *Peer, msg Message, q *QueuedPublish) (*WaitToken, error) {
	codec := s.CodecFor(p)

	if s.allowedToSend != nil && !s.allowedToSend(p, msg) {
		s.log.Warn("allowed to send check failed", LogFields{
			LogFieldClientID:    p.ClientID,
			LogFieldMessageType: msg.Type().String(),
		})
		return nil, fmt.Errorf("%w: allowed to send check failed", ErrExpectationFailed)
	}

	source := DirRemote
	if codec.PartOfOriginatingExchange(msg) {
		source = DirLocal
	}

	// Only sends that open a new inflight slot contend for the window.
	// Continuations of a tabled exchange (PUBREL, PUBREC, plain
	// responses) must pass or the flow they complete could never
	// drain the very slot blocking them.
	requiresResponse := codec.RequiresResponse(msg)

	for attempt := 0; requiresResponse && s.inflight.Count(p, source) >= s.opts.MaxMessagesInflight; attempt++ {
		if !s.clientMode || attempt >= maxSendRetries {
			return nil, fmt.Errorf("%w: max number of inflight messages reached", ErrExpectationFailed)
		}

		// Client mode: wait for the blocking exchange to finish,
		// then retry.
		blocking, ok := s.inflight.First(p, source)
		if !ok {
			break
		}
		token := blocking.Token
		if token == nil {
			return nil, fmt.Errorf("%w: max number of inflight messages reached", ErrExpectationFailed)
		}
		if _, err := s.WaitForCompletion(p, token); err != nil {
			s.log.Warn("unable to send, partial send in progress", LogFields{
				LogFieldClientID: p.ClientID,
				LogFieldError:    err,
			})
			return nil, fmt.Errorf("%w: partial send in progress", ErrExpectationFailed)
		}
	}

	var token *WaitToken
	if requiresResponse {
		var err error
		token, err = s.markInflight(p, msg, q)
		if err != nil {
			return nil, err
		}
	}

	frame, err := msg.Encode()
	if err != nil {
		return nil, err
	}

	active := codec.IsActive(msg) && !codec.IsError(msg)

	var commit *CommitOperation
	if !requiresResponse && codec.IsPublish(msg) {
		// QoS 0 outbound commits at write confirmation, so the
		// confirm cannot overtake backpressure relief.
		if data, ok := codec.GetData(msg); ok {
			op := &CommitOperation{
				Peer:      p,
				Data:      data,
				Message:   msg,
				Inbound:   false,
				Timestamp: time.Now(),
			}
			if q != nil {
				op.MessageID = q.MessageID
				op.Data.TopicPath = q.TopicPath
			}
			commit = op
		}
	}

	s.transport.WriteTo(p.Addr, frame, func(writeErr error) {
		if writeErr != nil {
			s.log.Error("transport write failed", LogFields{
				LogFieldClientID: p.ClientID,
				LogFieldError:    writeErr,
			})
			if token != nil {
				token.Fail("transport write failed: " + writeErr.Error())
			}
			return
		}
		s.activity.TouchSent(p, active)
		if commit != nil {
			s.confirmPublish(commit)
		}
	})

	return token, nil
}

// markInflight tables a message awaiting its terminal response,
// allocating a message ID when needed.
func (s *MessageState) markInflight(p *Peer, msg Message, q *QueuedPublish) (*WaitToken, error) {
	codec := s.CodecFor(p)

	var source Direction
	if codec.IsPublish(msg) {
		// A publish is local iff it came off our send queue; a
		// received QoS 2 publish is pinned in the remote table.
		source = DirRemote
		if q != nil {
			source = DirLocal
		}
	} else {
		source = DirRemote
		if codec.PartOfOriginatingExchange(msg) {
			source = DirLocal
		}
	}

	tolerate := source == DirRemote
	if tolerate && s.inflight.Count(p, source) >= s.opts.MaxMessagesInflight {
		// Old inbound exchanges may linger depending on reap
		// settings; accept the new one for liveness.
		s.log.Warn("max inflight reached, allowing for receiving", LogFields{
			LogFieldClientID:    p.ClientID,
			LogFieldMessageType: msg.Type().String(),
		})
	}

	entry := &InflightEntry{
		Message:   msg,
		Source:    source,
		Token:     NewWaitToken(msg),
		Queued:    q,
		CreatedAt: time.Now(),
	}

	key, err := s.inflight.Insert(p, source, msg, codec.NeedsID(msg), entry, tolerate)
	if err != nil {
		return nil, err
	}
	if q != nil && key != WeakAttachID {
		// Keep the queued copy in sync so a failed delivery
		// re-sends under the same ID.
		q.MsgID = uint16(key)
	}
	s.inflightGauge.Inc()

	return entry.Token, nil
}

// WaitForCompletion blocks until the token completes, using the
// default caller timeout.
func (s *MessageState) WaitForCompletion(p *Peer, token *WaitToken) (Message, error) {
	return s.WaitForCompletionTimeout(p, token, s.opts.MaxWait)
}

// WaitForCompletionTimeout blocks until the token completes or the
// timeout elapses. The effective wait is never shorter than
// MaxErrorRetryTime so error-retry pathways can finish. A timeout
// forces a full inflight clear for the peer.
func (s *MessageState) WaitForCompletionTimeout(p *Peer, token *WaitToken, timeout time.Duration) (Message, error) {
	if token == nil {
		s.log.Warn("cannot wait for a nil token", LogFields{LogFieldClientID: p.ClientID})
		return nil, nil
	}

	effective := timeout
	if s.opts.MaxErrorRetryTime > effective {
		effective = s.opts.MaxErrorRetryTime
	}

	start := time.Now()
	response, err := token.Await(effective)
	if err == nil {
		return response, nil
	}

	if err == ErrTimeout {
		s.log.Warn("timed out waiting for response", LogFields{
			LogFieldClientID: p.ClientID,
			LogFieldDuration: time.Since(start),
		})
		token.Fail("timed out waiting for response")
		s.ClearInflight(p)
		return nil, fmt.Errorf("%w after %s", ErrTimeout, effective)
	}
	return response, err
}

// NotifyReceived drives the state machine for a received frame,
// matching it against the inflight tables. Returns the confirmed
// original message when a terminal response closed an exchange.
func (s *MessageState) NotifyReceived(p *Peer, msg Message) (Message, error) {
	codec := s.CodecFor(p)

	s.activity.TouchReceived(p, codec.IsActive(msg) && !codec.IsError(msg))

	// A frame from the exchange originator matches the remote table;
	// a response matches the local exchange it answers.
	source := DirLocal
	if codec.PartOfOriginatingExchange(msg) {
		source = DirRemote
	}

	lookupID := WeakAttachID
	if codec.NeedsID(msg) {
		if wid, ok := msg.(MessageWithID); ok {
			lookupID = uint32(wid.MessageID())
		}
	}

	matched := s.inflight.Exists(p, source, lookupID)
	terminal := codec.IsTerminal(msg)

	s.log.Debug("matched received message", LogFields{
		LogFieldClientID:    p.ClientID,
		LogFieldMessageType: msg.Type().String(),
		LogFieldMessageID:   lookupID,
		"matched":           matched,
		"terminal":          terminal,
	})

	switch {
	case matched && terminal:
		return s.receiveTerminal(p, codec, source, lookupID, msg)
	case matched:
		s.receiveMidFlow(p, codec, source, lookupID, msg)
		return nil, nil
	default:
		return nil, s.receiveUnmatched(p, codec, msg)
	}
}

func (s *MessageState) receiveTerminal(p *Peer, codec Codec, source Direction, lookupID uint32, msg Message) (Message, error) {
	entry, ok := s.inflight.Remove(p, source, lookupID)
	if !ok {
		// Reaped concurrently.
		s.log.Warn("inflight message was cleared during receive", LogFields{
			LogFieldClientID:  p.ClientID,
			LogFieldMessageID: lookupID,
		})
		return nil, nil
	}
	s.inflightGauge.Dec()

	if !codec.ValidResponse(entry.Message, msg) {
		if codec.IsDisconnect(msg) {
			s.log.Warn("distant disconnect received whilst awaiting response", LogFields{
				LogFieldClientID:    p.ClientID,
				LogFieldMessageType: entry.Message.Type().String(),
			})
			if entry.Token != nil {
				entry.Token.SetResponse(msg)
				entry.Token.Fail("unexpected disconnect received whilst awaiting response")
			}
			if s.handlers.OnRemoteDisconnect != nil {
				s.commits.submit(func() { s.handlers.OnRemoteDisconnect(p) })
			}
			return nil, nil
		}

		s.log.Warn("invalid response message", LogFields{
			LogFieldClientID:    p.ClientID,
			LogFieldMessageType: msg.Type().String(),
		})
		if entry.Token != nil {
			entry.Token.SetResponse(msg)
			entry.Token.Fail("invalid response received " + msg.Type().String())
		}
		return nil, fmt.Errorf("%w: %s in response to %s", ErrInvalidResponse, msg.Type(), entry.Message.Type())
	}

	confirmed := entry.Message
	isError := codec.IsError(msg)

	if entry.Token != nil {
		entry.Token.SetResponse(msg)
		if isError {
			code, _ := codec.ReturnCode(msg)
			entry.Token.Fail("protocol error message received - " + code.String())
		} else {
			entry.Token.Complete(msg)
		}
	}

	if isError {
		code, _ := codec.ReturnCode(msg)
		s.log.Warn("error response received", LogFields{
			LogFieldClientID:   p.ClientID,
			LogFieldReturnCode: code.String(),
		})
		if entry.Requeueable() {
			s.requeueAfterError(p, codec, entry, confirmed)
		}
		return confirmed, nil
	}

	// Inbound QoS 2 commit point.
	if codec.IsPubrel(msg) {
		if data, ok := codec.GetData(confirmed); ok {
			s.confirmPublish(&CommitOperation{
				Peer:      p,
				Data:      data,
				Message:   confirmed,
				Inbound:   true,
				Timestamp: time.Now(),
			})
		}
	}

	// Outbound QoS 1 commit point.
	if codec.IsPuback(msg) && entry.Requeueable() {
		if data, ok := codec.GetData(confirmed); ok {
			data.TopicPath = entry.Queued.TopicPath
			s.confirmPublish(&CommitOperation{
				Peer:      p,
				Data:      data,
				Message:   confirmed,
				Inbound:   false,
				MessageID: entry.Queued.MessageID,
				Timestamp: time.Now(),
			})
		}
	}

	return confirmed, nil
}

func (s *MessageState) requeueAfterError(p *Peer, codec Codec, entry *InflightEntry, confirmed Message) {
	q := entry.Queued
	if q.RetryCount >= s.opts.MaxErrorRetries {
		s.log.Warn("publish exceeded max retries, discarding", LogFields{
			LogFieldClientID: p.ClientID,
			"retry_count":    q.RetryCount,
		})
		if s.handlers.OnMessageSendFailure != nil {
			data, _ := codec.GetData(confirmed)
			payload := data.Payload
			qos, retained := data.QoS, data.Retained
			s.commits.submit(func() {
				s.handlers.OnMessageSendFailure(p, q.MessageID, q.TopicPath, qos, retained, payload, confirmed, q.RetryCount)
			})
		}
		return
	}

	if err := s.queue.Offer(p, q); err != nil {
		s.log.Warn("requeue refused by message queue", LogFields{
			LogFieldClientID: p.ClientID,
			LogFieldError:    err,
		})
		return
	}
	s.ScheduleFlush(p)
}

func (s *MessageState) receiveMidFlow(p *Peer, codec Codec, source Direction, lookupID uint32, msg Message) {
	// Mid-flow response such as PUBREC; the entry stays tabled and the
	// PUBREL/PUBCOMP turn reuses the same ID.
	if !codec.IsPubrec(msg) {
		return
	}

	entry, ok := s.inflight.Get(p, source, lookupID)
	if !ok || !entry.Requeueable() {
		return
	}

	// Outbound QoS 2 commit point.
	if data, ok := codec.GetData(entry.Message); ok {
		data.TopicPath = entry.Queued.TopicPath
		s.confirmPublish(&CommitOperation{
			Peer:      p,
			Data:      data,
			Message:   entry.Message,
			Inbound:   false,
			MessageID: entry.Queued.MessageID,
			Timestamp: time.Now(),
		})
	}
}

func (s *MessageState) receiveUnmatched(p *Peer, codec Codec, msg Message) error {
	if !codec.IsPublish(msg) {
		return nil
	}

	data, ok := codec.GetData(msg)
	if !ok {
		return nil
	}

	if data.QoS == 2 {
		// QoS 2 needs the PUBREL turn before delivery; pin the
		// publish awaiting it.
		_, err := s.markInflight(p, msg, nil)
		return err
	}

	// QoS 0 and 1 inbound commit on receipt.
	s.confirmPublish(&CommitOperation{
		Peer:      p,
		Data:      data,
		Message:   msg,
		Inbound:   true,
		Timestamp: time.Now(),
	})
	return nil
}

// confirmPublish hands a commit operation to the dispatch pool.
// Integrity-protected payloads are verified there; a failed inbound
// verification drops the message with a warning.
func (s *MessageState) confirmPublish(op *CommitOperation) {
	s.commits.submit(func() {
		payload := op.Data.Payload
		if s.security.PayloadIntegrityEnabled() {
			verified, err := s.security.ReadVerified(op.Peer, payload)
			if err != nil {
				s.log.Warn("dropping publish which did not pass integrity checks", LogFields{
					LogFieldClientID: op.Peer.ClientID,
					LogFieldError:    err,
				})
				return
			}
			payload = verified
		}

		topicPath := op.Data.TopicPath
		if topicPath == "" && s.topics != nil {
			resolved, err := s.topics.TopicPath(op.Peer, op.Data.TopicIDType, op.Data.TopicID)
			if err != nil {
				s.log.Warn("cannot resolve topic for commit", LogFields{
					LogFieldClientID: op.Peer.ClientID,
					LogFieldError:    err,
				})
				return
			}
			topicPath = resolved
		}

		if op.Inbound {
			s.commitsInbound.Inc()
			if s.handlers.OnMessageReceived != nil {
				s.handlers.OnMessageReceived(op.Peer, topicPath, op.Data.QoS, op.Data.Retained, payload, op.Message)
			}
		} else {
			s.commitsOutbound.Inc()
			if s.handlers.OnMessageSent != nil {
				s.handlers.OnMessageSent(op.Peer, op.MessageID, topicPath, op.Data.QoS, op.Data.Retained, payload, op.Message)
			}
		}
	})
}

// ClearInflight forcibly clears all inflight entries for a peer,
// failing their tokens and requeueing eligible publishes.
func (s *MessageState) ClearInflight(p *Peer) {
	s.clearInflightInternal(p, time.Time{})
}

// ReapInflight evicts inflight entries older than MaxTimeInflight
// relative to the eviction time.
func (s *MessageState) ReapInflight(p *Peer, evictionTime time.Time) {
	s.clearInflightInternal(p, evictionTime)
}

func (s *MessageState) clearInflightInternal(p *Peer, evictionTime time.Time) {
	forced := evictionTime.IsZero()

	match := func(entry *InflightEntry) bool {
		return forced || entry.CreatedAt.Add(s.opts.MaxTimeInflight).Before(evictionTime)
	}

	if s.opts.ReapReceivingMessages {
		for _, entry := range s.inflight.Sweep(p, DirRemote, match) {
			s.reapEntry(p, entry)
		}
	}
	for _, entry := range s.inflight.Sweep(p, DirLocal, match) {
		s.reapEntry(p, entry)
	}
}

func (s *MessageState) reapEntry(p *Peer, entry *InflightEntry) {
	s.inflightGauge.Dec()
	s.reapedCounter.Inc()

	s.log.Warn("clearing inflight message", LogFields{
		LogFieldClientID:    p.ClientID,
		LogFieldMessageType: entry.Message.Type().String(),
		LogFieldDuration:    time.Since(entry.CreatedAt),
	})

	if entry.Token != nil && !entry.Token.IsComplete() {
		entry.Token.Fail("timed out waiting for reply")
	}

	if !entry.Requeueable() || !s.opts.RequeueOnInflightTimeout || s.queue == nil {
		return
	}

	q := entry.Queued
	maxRetries := q.RetryCount >= s.opts.MaxErrorRetries
	if maxRetries {
		// The runtime is disconnecting; reset the counter so the next
		// active session can retry from scratch.
		q.RetryCount = 0
	}
	if err := s.queue.Offer(p, q); err != nil {
		s.log.Warn("requeue refused by message queue", LogFields{
			LogFieldClientID: p.ClientID,
			LogFieldError:    err,
		})
	}
	if maxRetries && s.handlers.OnConnectionLost != nil {
		s.commits.submit(func() { s.handlers.OnConnectionLost(p, ErrTimeout) })
	}
}

// Clear tears down scheduling and bookkeeping state for a peer:
// pending flushes, activity entries and last-used IDs. Inflight
// entries are purged separately via ClearInflight when desired.
func (s *MessageState) Clear(p *Peer) {
	s.log.Info("clearing message state", LogFields{LogFieldClientID: p.ClientID})
	s.UnscheduleFlush(p)
	s.activity.Drop(p)
	s.inflight.ClearIDs(p)
}

func (s *MessageState) stateLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.StateLoopTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.activity.SweepIdle(s.opts.ActiveContextTimeout, func(p *Peer) {
				if s.handlers.OnActiveTimeout != nil {
					s.commits.submit(func() { s.handlers.OnActiveTimeout(p) })
				}
			})

			now := time.Now()
			for _, p := range s.inflight.InflightPeers() {
				s.ReapInflight(p, now)
			}

			if s.registry != nil {
				s.registry.Tidy()
			}
		}
	}
}

// dispatchPool delivers commit operations and advisory callbacks on
// worker goroutines, decoupled from the protocol threads.
type dispatchPool struct {
	jobs      chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newDispatchPool(workers int) *dispatchPool {
	if workers <= 0 {
		workers = 1
	}
	p := &dispatchPool{
		jobs: make(chan func(), 256),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

func (p *dispatchPool) submit(job func()) {
	defer func() {
		// Submitting after close drops the job.
		_ = recover()
	}()
	p.jobs <- job
}

func (p *dispatchPool) close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}
