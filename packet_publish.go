package mqttsn

// PublishMessage represents a PUBLISH message.
// MQTT-SN spec v1.2: Section 5.4.12
type PublishMessage struct {
	// DUP indicates a re-delivery of an earlier attempt.
	DUP bool

	// QoS is the quality of service level (-1, 0, 1 or 2).
	// -1 is the publish-only flag encoding and is treated as 0
	// by the state layer.
	QoS int

	// Retain indicates a retained publish.
	Retain bool

	// TopicIDType identifies the encoding of TopicID.
	TopicIDType TopicIDType

	// TopicID is the topic alias, predefined ID, or short topic encoding.
	TopicID uint16

	// MsgID is the message identifier (0 for QoS 0 and -1).
	MsgID uint16

	// Data is the publish payload.
	Data []byte
}

// Type returns the message type.
func (m *PublishMessage) Type() MessageType {
	return TypePUBLISH
}

// MessageID returns the message identifier.
func (m *PublishMessage) MessageID() uint16 {
	return m.MsgID
}

// SetMessageID sets the message identifier.
func (m *PublishMessage) SetMessageID(id uint16) {
	m.MsgID = id
}

// EffectiveQoS returns the QoS used for delivery semantics.
// QoS -1 deliveries are handled as QoS 0.
func (m *PublishMessage) EffectiveQoS() int {
	if m.QoS < 0 {
		return 0
	}
	return m.QoS
}

// NeedsID reports whether the message carries a meaningful message ID.
func (m *PublishMessage) NeedsID() bool {
	return m.EffectiveQoS() > 0
}

// Encode returns the wire representation.
func (m *PublishMessage) Encode() ([]byte, error) {
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

	body := make([]byte, 5, 5+len(m.Data))
	body[0] = flags
	put16(body[1:3], m.TopicID)
	put16(body[3:5], m.MsgID)
	body = append(body, m.Data...)
	return encodeFrame(TypePUBLISH, body)
}

// Decode parses the message body.
func (m *PublishMessage) Decode(body []byte) error {
	if len(body) < 5 {
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
	m.TopicID = read16(body[1:3])
	m.MsgID = read16(body[3:5])
	m.Data = append([]byte(nil), body[5:]...)
	return nil
}
