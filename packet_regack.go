package mqttsn

// RegackMessage represents a REGACK message.
// MQTT-SN spec v1.2: Section 5.4.11
type RegackMessage struct {
	// TopicID is the assigned topic alias.
	TopicID uint16

	// MsgID is the message identifier being acknowledged.
	MsgID uint16

	// ReturnCode indicates the result of the registration.
	ReturnCode ReturnCode
}

// Type returns the message type.
func (m *RegackMessage) Type() MessageType {
	return TypeREGACK
}

// MessageID returns the message identifier.
func (m *RegackMessage) MessageID() uint16 {
	return m.MsgID
}

// SetMessageID sets the message identifier.
func (m *RegackMessage) SetMessageID(id uint16) {
	m.MsgID = id
}

// Encode returns the wire representation.
func (m *RegackMessage) Encode() ([]byte, error) {
	body := make([]byte, 5)
	put16(body[0:2], m.TopicID)
	put16(body[2:4], m.MsgID)
	body[4] = byte(m.ReturnCode)
	return encodeFrame(TypeREGACK, body)
}

// Decode parses the message body.
func (m *RegackMessage) Decode(body []byte) error {
	if len(body) < 5 {
		return ErrMessageTooShort
	}
	m.TopicID = read16(body[0:2])
	m.MsgID = read16(body[2:4])
	m.ReturnCode = ReturnCode(body[4])
	return nil
}
