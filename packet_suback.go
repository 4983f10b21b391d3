package mqttsn

// SubackMessage represents a SUBACK message.
// MQTT-SN spec v1.2: Section 5.4.16
type SubackMessage struct {
	// QoS is the granted maximum quality of service.
	QoS int

	// TopicID is the topic alias assigned to the subscription.
	TopicID uint16

	// MsgID is the message identifier being acknowledged.
	MsgID uint16

	// ReturnCode indicates the result of the subscription.
	ReturnCode ReturnCode
}

// Type returns the message type.
func (m *SubackMessage) Type() MessageType {
	return TypeSUBACK
}

// MessageID returns the message identifier.
func (m *SubackMessage) MessageID() uint16 {
	return m.MsgID
}

// SetMessageID sets the message identifier.
func (m *SubackMessage) SetMessageID(id uint16) {
	m.MsgID = id
}

// Encode returns the wire representation.
func (m *SubackMessage) Encode() ([]byte, error) {
	if m.QoS < 0 || m.QoS > 2 {
		return nil, ErrMalformed
	}
	body := make([]byte, 6)
	body[0] = byte(m.QoS) << flagQoSShift
	put16(body[1:3], m.TopicID)
	put16(body[3:5], m.MsgID)
	body[5] = byte(m.ReturnCode)
	return encodeFrame(TypeSUBACK, body)
}

// Decode parses the message body.
func (m *SubackMessage) Decode(body []byte) error {
	if len(body) < 6 {
		return ErrMessageTooShort
	}
	m.QoS = int(body[0]&flagQoSMask) >> flagQoSShift
	m.TopicID = read16(body[1:3])
	m.MsgID = read16(body[3:5])
	m.ReturnCode = ReturnCode(body[5])
	return nil
}
