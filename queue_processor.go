package mqttsn

// StateQueueProcessor is the default queue processor: it drains a
// peer's send queue through the message state service while the local
// inflight window has room.
type StateQueueProcessor struct {
	state      *MessageState
	queue      *MessageQueue
	topics     *TopicRegistry
	log        Logger
	clientMode bool
}

// NewStateQueueProcessor creates the default queue processor.
func NewStateQueueProcessor(state *MessageState, queue *MessageQueue, topics *TopicRegistry, log Logger, clientMode bool) *StateQueueProcessor {
	if log == nil {
		log = NewNoOpLogger()
	}
	return &StateQueueProcessor{
		state:      state,
		queue:      queue,
		topics:     topics,
		log:        log,
		clientMode: clientMode,
	}
}

// Process attempts to flush queued publishes for the peer.
func (qp *StateQueueProcessor) Process(p *Peer) (FlushResult, error) {
	if qp.queue.Size(p) == 0 {
		return FlushRemove, nil
	}
	if !qp.state.CanSend(p) {
		return FlushBackoff, nil
	}

	next, ok := qp.queue.Peek(p)
	if !ok {
		return FlushRemove, nil
	}

	info, ok := qp.topics.Lookup(p, next.TopicPath)
	if !ok {
		// Establish the alias first; the publish goes on the next pass.
		return qp.registerTopic(p, next.TopicPath)
	}

	q, ok := qp.queue.Poll(p)
	if !ok {
		return FlushRemove, nil
	}

	q.RetryCount++
	token, err := qp.state.SendPublish(p, info, q)
	if err != nil {
		// Put it back and retry later under backoff.
		q.RetryCount--
		if offerErr := qp.queue.Offer(p, q); offerErr != nil {
			qp.log.Warn("dropping publish, queue refused re-offer", LogFields{
				LogFieldClientID: p.ClientID,
				LogFieldError:    offerErr,
			})
			return FlushRemove, nil
		}
		return FlushBackoff, nil
	}

	if qp.clientMode && token != nil {
		if _, err := qp.state.WaitForCompletion(p, token); err != nil {
			qp.log.Warn("publish confirmation failed", LogFields{
				LogFieldClientID: p.ClientID,
				LogFieldError:    err,
			})
			return FlushBackoff, nil
		}
	}

	if qp.queue.Size(p) > 0 {
		return FlushReprocess, nil
	}
	return FlushRemove, nil
}

// registerTopic establishes an alias for an unregistered normal topic.
// Gateways assign the alias and push a REGISTER to the client; clients
// request one and wait for the REGACK.
func (qp *StateQueueProcessor) registerTopic(p *Peer, topicPath string) (FlushResult, error) {
	if !qp.clientMode {
		id, err := qp.topics.Register(p, topicPath)
		if err != nil {
			return FlushRemove, err
		}
		if _, err := qp.state.SendMessage(p, &RegisterMessage{TopicID: id, TopicName: topicPath}); err != nil {
			return FlushBackoff, nil
		}
		return FlushReprocess, nil
	}

	token, err := qp.state.SendMessage(p, &RegisterMessage{TopicName: topicPath})
	if err != nil {
		return FlushBackoff, nil
	}
	response, err := qp.state.WaitForCompletion(p, token)
	if err != nil {
		return FlushBackoff, nil
	}
	if regack, ok := response.(*RegackMessage); ok && regack.ReturnCode == ReturnAccepted {
		qp.topics.RegisterAssigned(p, regack.TopicID, topicPath)
		return FlushReprocess, nil
	}
	qp.log.Warn("topic registration rejected", LogFields{
		LogFieldClientID: p.ClientID,
		LogFieldTopic:    topicPath,
	})
	return FlushRemove, nil
}
