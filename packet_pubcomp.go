package mqttsn

// PubcompMessage represents a PUBCOMP message.
// MQTT-SN spec v1.2: Section 5.4.14
type PubcompMessage struct {
	// MsgID is the message identifier of the QoS 2 publish.
	MsgID uint16
}

// Type returns the message type.
func (m *PubcompMessage) Type() MessageType {
	return TypePUBCOMP
}

// MessageID returns the message identifier.
func (m *PubcompMessage) MessageID() uint16 {
	return m.MsgID
}

// SetMessageID sets the message identifier.
func (m *PubcompMessage) SetMessageID(id uint16) {
	m.MsgID = id
}

// Encode returns the wire representation.
func (m *PubcompMessage) Encode() ([]byte, error) {
	body := make([]byte, 2)
	put16(body, m.MsgID)
	return encodeFrame(TypePUBCOMP, body)
}

// Decode parses the message body.
func (m *PubcompMessage) Decode(body []byte) error {
	if len(body) < 2 {
		return ErrMessageTooShort
	}
	m.MsgID = read16(body)
	return nil
}
