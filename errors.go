package mqttsn

import "errors"

// Errors surfaced by the message state layer.
var (
	// ErrExpectationFailed indicates a send precondition was violated:
	// the allowed-to-send gate denied the message, the inflight window
	// is saturated, or a partial send is in progress.
	ErrExpectationFailed = errors.New("mqttsn: expectation failed")

	// ErrTimeout indicates a wait token deadline elapsed before a
	// response arrived.
	ErrTimeout = errors.New("mqttsn: timed out waiting for response")

	// ErrInvalidResponse indicates a received frame did not match the
	// stored request.
	ErrInvalidResponse = errors.New("mqttsn: invalid response received")

	// ErrProtocolError indicates a terminal response carried a non-zero
	// return code.
	ErrProtocolError = errors.New("mqttsn: protocol error")

	// ErrIDExhausted indicates no free message ID exists in the usable
	// range.
	ErrIDExhausted = errors.New("mqttsn: no available message IDs")

	// ErrQueueAccept indicates the message queue refused an offer.
	ErrQueueAccept = errors.New("mqttsn: message queue refused offer")

	// ErrSecurityCheckFailed indicates inbound payload integrity
	// verification failed.
	ErrSecurityCheckFailed = errors.New("mqttsn: payload integrity check failed")

	// ErrTransportFailure indicates the transport reported a send
	// failure.
	ErrTransportFailure = errors.New("mqttsn: transport write failed")
)
