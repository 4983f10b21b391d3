package mqttsn

// RegisterMessage represents a REGISTER message.
// MQTT-SN spec v1.2: Section 5.4.10
type RegisterMessage struct {
	// TopicID is the topic alias being assigned (0 when client initiated).
	TopicID uint16

	// MsgID is the message identifier.
	MsgID uint16

	// TopicName is the full topic name being registered.
	TopicName string
}

// Type returns the message type.
func (m *RegisterMessage) Type() MessageType {
	return TypeREGISTER
}

// MessageID returns the message identifier.
func (m *RegisterMessage) MessageID() uint16 {
	return m.MsgID
}

// SetMessageID sets the message identifier.
func (m *RegisterMessage) SetMessageID(id uint16) {
	m.MsgID = id
}

// Encode returns the wire representation.
func (m *RegisterMessage) Encode() ([]byte, error) {
	if m.TopicName == "" {
		return nil, ErrMalformed
	}
	body := make([]byte, 4, 4+len(m.TopicName))
	put16(body[0:2], m.TopicID)
	put16(body[2:4], m.MsgID)
	body = append(body, m.TopicName...)
	return encodeFrame(TypeREGISTER, body)
}

// Decode parses the message body.
func (m *RegisterMessage) Decode(body []byte) error {
	if len(body) < 5 {
		return ErrMessageTooShort
	}
	m.TopicID = read16(body[0:2])
	m.MsgID = read16(body[2:4])
	m.TopicName = string(body[4:])
	return nil
}
