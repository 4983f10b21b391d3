package mqttsn

// ConnectMessage represents a CONNECT message.
// MQTT-SN spec v1.2: Section 5.4.4
type ConnectMessage struct {
	// Will requests will topic and will message prompting.
	Will bool

	// CleanSession requests a clean session.
	CleanSession bool

	// ProtocolID identifies the protocol version (0x01 for v1.2).
	ProtocolID byte

	// Duration is the keep alive duration in seconds.
	Duration uint16

	// ClientID is the client identifier (1-23 characters in v1.2).
	ClientID string
}

// Type returns the message type.
func (m *ConnectMessage) Type() MessageType {
	return TypeCONNECT
}

// Encode returns the wire representation.
func (m *ConnectMessage) Encode() ([]byte, error) {
	if m.ClientID == "" {
		return nil, ErrMalformed
	}

	var flags byte
	if m.Will {
		flags |= flagWill
	}
	if m.CleanSession {
		flags |= flagCleanSession
	}

	protocolID := m.ProtocolID
	if protocolID == 0 {
		protocolID = byte(ProtocolV1)
	}

	body := make([]byte, 4, 4+len(m.ClientID))
	body[0] = flags
	body[1] = protocolID
	put16(body[2:4], m.Duration)
	body = append(body, m.ClientID...)
	return encodeFrame(TypeCONNECT, body)
}

// Decode parses the message body.
func (m *ConnectMessage) Decode(body []byte) error {
	if len(body) < 5 {
		return ErrMessageTooShort
	}
	m.Will = body[0]&flagWill != 0
	m.CleanSession = body[0]&flagCleanSession != 0
	m.ProtocolID = body[1]
	m.Duration = read16(body[2:4])
	m.ClientID = string(body[4:])
	return nil
}
