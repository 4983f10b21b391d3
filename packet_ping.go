package mqttsn

// PingreqMessage represents a PINGREQ message.
// MQTT-SN spec v1.2: Section 5.4.19
type PingreqMessage struct {
	// ClientID is set by sleeping clients signalling a wake-up,
	// prompting the gateway to flush buffered messages.
	ClientID string
}

// Type returns the message type.
func (m *PingreqMessage) Type() MessageType {
	return TypePINGREQ
}

// Encode returns the wire representation.
func (m *PingreqMessage) Encode() ([]byte, error) {
	return encodeFrame(TypePINGREQ, []byte(m.ClientID))
}

// Decode parses the message body.
func (m *PingreqMessage) Decode(body []byte) error {
	m.ClientID = string(body)
	return nil
}

// PingrespMessage represents a PINGRESP message.
// MQTT-SN spec v1.2: Section 5.4.20
type PingrespMessage struct{}

// Type returns the message type.
func (m *PingrespMessage) Type() MessageType {
	return TypePINGRESP
}

// Encode returns the wire representation.
func (m *PingrespMessage) Encode() ([]byte, error) {
	return encodeFrame(TypePINGRESP, nil)
}

// Decode parses the message body.
func (m *PingrespMessage) Decode(_ []byte) error {
	return nil
}
