package mqttsn

// WilltopicreqMessage represents a WILLTOPICREQ message.
// MQTT-SN spec v1.2: Section 5.4.6
type WilltopicreqMessage struct{}

// Type returns the message type.
func (m *WilltopicreqMessage) Type() MessageType { return TypeWILLTOPICREQ }

// Encode returns the wire representation.
func (m *WilltopicreqMessage) Encode() ([]byte, error) {
	return encodeFrame(TypeWILLTOPICREQ, nil)
}

// Decode parses the message body.
func (m *WilltopicreqMessage) Decode(_ []byte) error { return nil }

// WilltopicMessage represents a WILLTOPIC message.
// MQTT-SN spec v1.2: Section 5.4.7
type WilltopicMessage struct {
	// QoS is the will publish quality of service.
	QoS int

	// Retain indicates a retained will publish.
	Retain bool

	// WillTopic is the will topic name. An empty topic in response to
	// WILLTOPICREQ deletes the will.
	WillTopic string
}

// Type returns the message type.
func (m *WilltopicMessage) Type() MessageType { return TypeWILLTOPIC }

// Encode returns the wire representation.
func (m *WilltopicMessage) Encode() ([]byte, error) {
	if m.WillTopic == "" {
		return encodeFrame(TypeWILLTOPIC, nil)
	}
	if m.QoS < 0 || m.QoS > 2 {
		return nil, ErrMalformed
	}
	var flags byte
	flags |= byte(m.QoS) << flagQoSShift
	if m.Retain {
		flags |= flagRetain
	}
	body := make([]byte, 1, 1+len(m.WillTopic))
	body[0] = flags
	body = append(body, m.WillTopic...)
	return encodeFrame(TypeWILLTOPIC, body)
}

// Decode parses the message body.
func (m *WilltopicMessage) Decode(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	m.QoS = int(body[0]&flagQoSMask) >> flagQoSShift
	m.Retain = body[0]&flagRetain != 0
	m.WillTopic = string(body[1:])
	return nil
}

// WillmsgreqMessage represents a WILLMSGREQ message.
// MQTT-SN spec v1.2: Section 5.4.8
type WillmsgreqMessage struct{}

// Type returns the message type.
func (m *WillmsgreqMessage) Type() MessageType { return TypeWILLMSGREQ }

// Encode returns the wire representation.
func (m *WillmsgreqMessage) Encode() ([]byte, error) {
	return encodeFrame(TypeWILLMSGREQ, nil)
}

// Decode parses the message body.
func (m *WillmsgreqMessage) Decode(_ []byte) error { return nil }

// WillmsgMessage represents a WILLMSG message.
// MQTT-SN spec v1.2: Section 5.4.9
type WillmsgMessage struct {
	// WillMsg is the will message payload.
	WillMsg []byte
}

// Type returns the message type.
func (m *WillmsgMessage) Type() MessageType { return TypeWILLMSG }

// Encode returns the wire representation.
func (m *WillmsgMessage) Encode() ([]byte, error) {
	return encodeFrame(TypeWILLMSG, m.WillMsg)
}

// Decode parses the message body.
func (m *WillmsgMessage) Decode(body []byte) error {
	m.WillMsg = append([]byte(nil), body...)
	return nil
}

// WilltopicupdMessage represents a WILLTOPICUPD message.
// MQTT-SN spec v1.2: Section 5.4.22
type WilltopicupdMessage struct {
	// QoS is the will publish quality of service.
	QoS int

	// Retain indicates a retained will publish.
	Retain bool

	// WillTopic is the new will topic. Empty deletes the will.
	WillTopic string
}

// Type returns the message type.
func (m *WilltopicupdMessage) Type() MessageType { return TypeWILLTOPICUPD }

// Encode returns the wire representation.
func (m *WilltopicupdMessage) Encode() ([]byte, error) {
	if m.WillTopic == "" {
		return encodeFrame(TypeWILLTOPICUPD, nil)
	}
	if m.QoS < 0 || m.QoS > 2 {
		return nil, ErrMalformed
	}
	var flags byte
	flags |= byte(m.QoS) << flagQoSShift
	if m.Retain {
		flags |= flagRetain
	}
	body := make([]byte, 1, 1+len(m.WillTopic))
	body[0] = flags
	body = append(body, m.WillTopic...)
	return encodeFrame(TypeWILLTOPICUPD, body)
}

// Decode parses the message body.
func (m *WilltopicupdMessage) Decode(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	m.QoS = int(body[0]&flagQoSMask) >> flagQoSShift
	m.Retain = body[0]&flagRetain != 0
	m.WillTopic = string(body[1:])
	return nil
}

// WilltopicrespMessage represents a WILLTOPICRESP message.
// MQTT-SN spec v1.2: Section 5.4.23
type WilltopicrespMessage struct {
	// ReturnCode indicates the result of the will topic update.
	ReturnCode ReturnCode
}

// Type returns the message type.
func (m *WilltopicrespMessage) Type() MessageType { return TypeWILLTOPICRESP }

// Encode returns the wire representation.
func (m *WilltopicrespMessage) Encode() ([]byte, error) {
	return encodeFrame(TypeWILLTOPICRESP, []byte{byte(m.ReturnCode)})
}

// Decode parses the message body.
func (m *WilltopicrespMessage) Decode(body []byte) error {
	if len(body) < 1 {
		return ErrMessageTooShort
	}
	m.ReturnCode = ReturnCode(body[0])
	return nil
}

// WillmsgupdMessage represents a WILLMSGUPD message.
// MQTT-SN spec v1.2: Section 5.4.24
type WillmsgupdMessage struct {
	// WillMsg is the new will message payload.
	WillMsg []byte
}

// Type returns the message type.
func (m *WillmsgupdMessage) Type() MessageType { return TypeWILLMSGUPD }

// Encode returns the wire representation.
func (m *WillmsgupdMessage) Encode() ([]byte, error) {
	return encodeFrame(TypeWILLMSGUPD, m.WillMsg)
}

// Decode parses the message body.
func (m *WillmsgupdMessage) Decode(body []byte) error {
	m.WillMsg = append([]byte(nil), body...)
	return nil
}

// WillmsgrespMessage represents a WILLMSGRESP message.
// MQTT-SN spec v1.2: Section 5.4.25
type WillmsgrespMessage struct {
	// ReturnCode indicates the result of the will message update.
	ReturnCode ReturnCode
}

// Type returns the message type.
func (m *WillmsgrespMessage) Type() MessageType { return TypeWILLMSGRESP }

// Encode returns the wire representation.
func (m *WillmsgrespMessage) Encode() ([]byte, error) {
	return encodeFrame(TypeWILLMSGRESP, []byte{byte(m.ReturnCode)})
}

// Decode parses the message body.
func (m *WillmsgrespMessage) Decode(body []byte) error {
	if len(body) < 1 {
		return ErrMessageTooShort
	}
	m.ReturnCode = ReturnCode(body[0])
	return nil
}
