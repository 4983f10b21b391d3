package mqttsn

import "github.com/google/uuid"

// Handlers carries the application callbacks invoked by the message
// state layer. All callbacks fire on the commit dispatch pool, never on
// the protocol threads, so slow application code cannot stall the
// protocol. Nil callbacks are skipped.
type Handlers struct {
	// OnMessageReceived delivers a confirmed inbound publish.
	OnMessageReceived func(p *Peer, topicPath string, qos int, retained bool, payload []byte, msg Message)

	// OnMessageSent confirms an outbound publish: at write time for
	// QoS 0, at PUBACK for QoS 1 and at PUBREC for QoS 2.
	OnMessageSent func(p *Peer, id uuid.UUID, topicPath string, qos int, retained bool, payload []byte, msg Message)

	// OnMessageSendFailure reports a publish discarded after exceeding
	// the retry bound.
	OnMessageSendFailure func(p *Peer, id uuid.UUID, topicPath string, qos int, retained bool, payload []byte, msg Message, retryCount int)

	// OnConnectionLost reports a peer whose publishes exhausted their
	// retries during reaping.
	OnConnectionLost func(p *Peer, err error)

	// OnActiveTimeout reports a peer idle past ActiveContextTimeout.
	// Advisory; the application decides whether to disconnect.
	OnActiveTimeout func(p *Peer)

	// OnRemoteDisconnect reports an unexpected DISCONNECT received
	// while awaiting a different response.
	OnRemoteDisconnect func(p *Peer)
}
