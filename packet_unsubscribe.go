package mqttsn

// UnsubscribeMessage represents an UNSUBSCRIBE message.
// MQTT-SN spec v1.2: Section 5.4.17
type UnsubscribeMessage struct {
	// TopicIDType identifies the topic encoding.
	TopicIDType TopicIDType

	// MsgID is the message identifier.
	MsgID uint16

	// TopicName is the topic name or filter (normal and short topics).
	TopicName string

	// TopicID is the predefined topic ID (predefined topics only).
	TopicID uint16
}

// Type returns the message type.
func (m *UnsubscribeMessage) Type() MessageType {
	return TypeUNSUBSCRIBE
}

// MessageID returns the message identifier.
func (m *UnsubscribeMessage) MessageID() uint16 {
	return m.MsgID
}

// SetMessageID sets the message identifier.
func (m *UnsubscribeMessage) SetMessageID(id uint16) {
	m.MsgID = id
}

// Encode returns the wire representation.
func (m *UnsubscribeMessage) Encode() ([]byte, error) {
	body := make([]byte, 3, 5+len(m.TopicName))
	body[0] = byte(m.TopicIDType) & flagTopicIDMask
	put16(body[1:3], m.MsgID)

	switch m.TopicIDType {
	case TopicIDPredefined:
		body = append(body, 0, 0)
		put16(body[3:5], m.TopicID)
	default:
		if m.TopicName == "" {
			return nil, ErrMalformed
		}
		body = append(body, m.TopicName...)
	}
	return encodeFrame(TypeUNSUBSCRIBE, body)
}

// Decode parses the message body.
func (m *UnsubscribeMessage) Decode(body []byte) error {
	if len(body) < 4 {
		return ErrMessageTooShort
	}
	m.TopicIDType = TopicIDType(body[0] & flagTopicIDMask)
	m.MsgID = read16(body[1:3])

	switch m.TopicIDType {
	case TopicIDPredefined:
		if len(body) < 5 {
			return ErrMessageTooShort
		}
		m.TopicID = read16(body[3:5])
	default:
		m.TopicName = string(body[3:])
	}
	return nil
}

// UnsubackMessage represents an UNSUBACK message.
// MQTT-SN spec v1.2: Section 5.4.18
type UnsubackMessage struct {
	// MsgID is the message identifier being acknowledged.
	MsgID uint16
}

// Type returns the message type.
func (m *UnsubackMessage) Type() MessageType {
	return TypeUNSUBACK
}

// MessageID returns the message identifier.
func (m *UnsubackMessage) MessageID() uint16 {
	return m.MsgID
}

// SetMessageID sets the message identifier.
func (m *UnsubackMessage) SetMessageID(id uint16) {
	m.MsgID = id
}

// Encode returns the wire representation.
func (m *UnsubackMessage) Encode() ([]byte, error) {
	body := make([]byte, 2)
	put16(body, m.MsgID)
	return encodeFrame(TypeUNSUBACK, body)
}

// Decode parses the message body.
func (m *UnsubackMessage) Decode(body []byte) error {
	if len(body) < 2 {
		return ErrMessageTooShort
	}
	m.MsgID = read16(body)
	return nil
}
