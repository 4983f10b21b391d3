package mqttsn

// SubscribeMessage represents a SUBSCRIBE message.
// MQTT-SN spec v1.2: Section 5.4.15
type SubscribeMessage struct {
	// DUP indicates a re-delivery of an earlier attempt.
	DUP bool

	// QoS is the requested maximum quality of service.
	QoS int

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
func (m *SubscribeMessage) Type() MessageType {
	return TypeSUBSCRIBE
}

// MessageID returns the message identifier.
func (m *SubscribeMessage) MessageID() uint16 {
	return m.MsgID
}

// SetMessageID sets the message identifier.
func (m *SubscribeMessage) SetMessageID(id uint16) {
	m.MsgID = id
}

// Encode returns the wire representation.
func (m *SubscribeMessage) Encode() ([]byte, error) {
	if m.QoS < 0 || m.QoS > 2 {
		return nil, ErrMalformed
	}

	var flags byte
	if m.DUP {
		flags |= flagDUP
	}
	flags |= byte(m.QoS) << flagQoSShift
	flags |= byte(m.TopicIDType) & flagTopicIDMask

	body := make([]byte, 3, 5+len(m.TopicName))
	body[0] = flags
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
	return encodeFrame(TypeSUBSCRIBE, body)
}

// Decode parses the message body.
func (m *SubscribeMessage) Decode(body []byte) error {
	if len(body) < 4 {
		return ErrMessageTooShort
	}
	flags := body[0]
	m.DUP = flags&flagDUP != 0
	m.QoS = int(flags&flagQoSMask) >> flagQoSShift
	m.TopicIDType = TopicIDType(flags & flagTopicIDMask)
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
