package mqttsn

// Publish2Message represents a PUBLISH message in the v2.0 encoding.
// The v2.0 wire format carries an explicit topic-data length so that
// full topic names can travel in the publish itself.
type Publish2Message struct {
	// DUP indicates a re-delivery of an earlier attempt.
	DUP bool

	// QoS is the quality of service level (-1, 0, 1 or 2).
	QoS int

	// Retain indicates a retained publish.
	Retain bool

	// TopicIDType identifies the encoding of the topic data.
	TopicIDType TopicIDType

	// TopicID is the alias, predefined ID, or short topic encoding.
	TopicID uint16

	// Topic is the full topic name for normal topics carried inline.
	Topic string

	// MsgID is the message identifier (0 for QoS 0 and -1).
	MsgID uint16

	// Data is the publish payload.
	Data []byte
}

// Type returns the message type.
func (m *Publish2Message) Type() MessageType {
	return TypePUBLISH
}

// MessageID returns the message identifier.
func (m *Publish2Message) MessageID() uint16 {
	return m.MsgID
}

// SetMessageID sets the message identifier.
func (m *Publish2Message) SetMessageID(id uint16) {
	m.MsgID = id
}

// EffectiveQoS returns the QoS used for delivery semantics.
func (m *Publish2Message) EffectiveQoS() int {
	if m.QoS < 0 {
		return 0
	}
	return m.QoS
}

// NeedsID reports whether the message carries a meaningful message ID.
func (m *Publish2Message) NeedsID() bool {
	return m.EffectiveQoS() > 0
}

// Encode returns the wire representation.
func (m *Publish2Message) Encode() ([]byte, error) {
	if m.QoS < -1 || m.QoS > 2 {
		return nil, ErrMalformed
	}

	var flags byte
	if m.DUP {
		flags |= flagDUP
	}
	qos := m.QoS
	if qos == -1 {
		qos = QoSMinusOne
	}
	flags |= byte(qos) << flagQoSShift
	if m.Retain {
		flags |= flagRetain
	}
	flags |= byte(m.TopicIDType) & flagTopicIDMask

	var topicData []byte
	if m.Topic != "" && m.TopicIDType == TopicIDNormal {
		if len(m.Topic) > 255 {
			return nil, ErrMessageTooLong
		}
		topicData = []byte(m.Topic)
	} else {
		topicData = make([]byte, 2)
		put16(topicData, m.TopicID)
	}

	body := make([]byte, 0, 4+len(topicData)+len(m.Data))
	body = append(body, flags, byte(len(topicData)))
	body = append(body, topicData...)
	var msgID [2]byte
	put16(msgID[:], m.MsgID)
	body = append(body, msgID[:]...)
	body = append(body, m.Data...)
	return encodeFrame(TypePUBLISH, body)
}

// Decode parses the message body.
func (m *Publish2Message) Decode(body []byte) error {
	if len(body) < 4 {
		return ErrMessageTooShort
	}
	flags := body[0]
	m.DUP = flags&flagDUP != 0
	qos := int(flags&flagQoSMask) >> flagQoSShift
	if qos == QoSMinusOne {
		qos = -1
	}
	m.QoS = qos
	m.Retain = flags&flagRetain != 0
	m.TopicIDType = TopicIDType(flags & flagTopicIDMask)

	topicLen := int(body[1])
	if len(body) < 2+topicLen+2 {
		return ErrMessageTooShort
	}
	topicData := body[2 : 2+topicLen]
	if m.TopicIDType == TopicIDNormal && topicLen != 2 {
		m.Topic = string(topicData)
	} else {
		if topicLen != 2 {
			return ErrMalformed
		}
		m.TopicID = read16(topicData)
	}
	m.MsgID = read16(body[2+topicLen : 4+topicLen])
	m.Data = append([]byte(nil), body[4+topicLen:]...)
	return nil
}
