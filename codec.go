package mqttsn

// PublishData is the version-neutral view of a publish message used by
// the state layer and application callbacks.
type PublishData struct {
	// TopicPath is the resolved topic name. Filled in by the topic
	// registry at commit time; empty on the wire for alias publishes.
	TopicPath string

	// QoS is the effective quality of service (QoS -1 maps to 0).
	QoS int

	// Retained indicates a retained publish.
	Retained bool

	// Payload is the publish payload.
	Payload []byte

	// TopicIDType identifies the wire encoding of the topic.
	TopicIDType TopicIDType

	// TopicID is the wire topic ID field.
	TopicID uint16
}

// Codec classifies messages for the state layer and constructs
// version-specific publish frames. The state machine treats v1.2 and
// v2.0 peers uniformly through this interface.
type Codec interface {
	// Version returns the protocol version this codec speaks.
	Version() ProtocolVersion

	// Decode parses a datagram into a message.
	Decode(data []byte) (Message, error)

	// NewPublish constructs a publish frame in this codec's encoding.
	NewPublish(qos int, dup, retain bool, typ TopicIDType, topicID uint16, payload []byte) Message

	// PartOfOriginatingExchange reports whether the message kind belongs
	// to the originator's side of an exchange (PUBLISH and PUBREL travel
	// originator to responder; PUBACK, PUBREC and PUBCOMP travel back).
	PartOfOriginatingExchange(msg Message) bool

	// RequiresResponse reports whether sending the message opens an
	// inflight slot awaiting a terminal response.
	RequiresResponse(msg Message) bool

	// IsTerminal reports whether the message closes an inflight exchange.
	IsTerminal(msg Message) bool

	// ValidResponse reports whether response is an acceptable terminal
	// response to request.
	ValidResponse(request, response Message) bool

	// IsActive reports whether the message advances the session's
	// liveness clock. Keepalives and discovery frames do not.
	IsActive(msg Message) bool

	// IsError reports whether the message carries a non-zero return code.
	IsError(msg Message) bool

	// ReturnCode extracts the return code from messages that carry one.
	ReturnCode(msg Message) (ReturnCode, bool)

	// IsPublish reports whether the message is a publish.
	IsPublish(msg Message) bool

	// IsPuback reports whether the message is a PUBACK.
	IsPuback(msg Message) bool

	// IsPubrec reports whether the message is a PUBREC.
	IsPubrec(msg Message) bool

	// IsPubrel reports whether the message is a PUBREL.
	IsPubrel(msg Message) bool

	// IsDisconnect reports whether the message is a DISCONNECT.
	IsDisconnect(msg Message) bool

	// GetData extracts the publish data from a publish message.
	GetData(msg Message) (PublishData, bool)

	// NeedsID reports whether the message carries a meaningful 16-bit
	// message identifier on the wire.
	NeedsID(msg Message) bool
}

// ReadMessage parses a datagram in the given protocol version.
func ReadMessage(data []byte, version ProtocolVersion) (Message, error) {
	t, body, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}

	var msg Message
	switch t {
	case TypeADVERTISE:
		msg = &AdvertiseMessage{}
	case TypeSEARCHGW:
		msg = &SearchgwMessage{}
	case TypeGWINFO:
		msg = &GwinfoMessage{}
	case TypeCONNECT:
		msg = &ConnectMessage{}
	case TypeCONNACK:
		msg = &ConnackMessage{}
	case TypeWILLTOPICREQ:
		msg = &WilltopicreqMessage{}
	case TypeWILLTOPIC:
		msg = &WilltopicMessage{}
	case TypeWILLMSGREQ:
		msg = &WillmsgreqMessage{}
	case TypeWILLMSG:
		msg = &WillmsgMessage{}
	case TypeREGISTER:
		msg = &RegisterMessage{}
	case TypeREGACK:
		msg = &RegackMessage{}
	case TypePUBLISH:
		if version == ProtocolV2 {
			msg = &Publish2Message{}
		} else {
			msg = &PublishMessage{}
		}
	case TypePUBACK:
		msg = &PubackMessage{}
	case TypePUBCOMP:
		msg = &PubcompMessage{}
	case TypePUBREC:
		msg = &PubrecMessage{}
	case TypePUBREL:
		msg = &PubrelMessage{}
	case TypeSUBSCRIBE:
		msg = &SubscribeMessage{}
	case TypeSUBACK:
		msg = &SubackMessage{}
	case TypeUNSUBSCRIBE:
		msg = &UnsubscribeMessage{}
	case TypeUNSUBACK:
		msg = &UnsubackMessage{}
	case TypePINGREQ:
		msg = &PingreqMessage{}
	case TypePINGRESP:
		msg = &PingrespMessage{}
	case TypeDISCONNECT:
		msg = &DisconnectMessage{}
	case TypeWILLTOPICUPD:
		msg = &WilltopicupdMessage{}
	case TypeWILLTOPICRESP:
		msg = &WilltopicrespMessage{}
	case TypeWILLMSGUPD:
		msg = &WillmsgupdMessage{}
	case TypeWILLMSGRESP:
		msg = &WillmsgrespMessage{}
	default:
		return nil, ErrUnknownType
	}

	if err := msg.Decode(body); err != nil {
		return nil, err
	}
	return msg, nil
}

// baseCodec implements the classification rules shared by both
// protocol versions.
type baseCodec struct {
	version ProtocolVersion
}

// CodecV1 speaks MQTT-SN v1.2.
type CodecV1 struct {
	baseCodec
}

// NewCodecV1 creates a v1.2 codec.
func NewCodecV1() *CodecV1 {
	return &CodecV1{baseCodec{version: ProtocolV1}}
}

// NewPublish constructs a v1.2 publish frame.
func (c *CodecV1) NewPublish(qos int, dup, retain bool, typ TopicIDType, topicID uint16, payload []byte) Message {
	return &PublishMessage{
		DUP:         dup,
		QoS:         qos,
		Retain:      retain,
		TopicIDType: typ,
		TopicID:     topicID,
		Data:        payload,
	}
}

// CodecV2 speaks MQTT-SN v2.0. Classification is identical to v1.2;
// only the publish encoding differs.
type CodecV2 struct {
	baseCodec
}

// NewCodecV2 creates a v2.0 codec.
func NewCodecV2() *CodecV2 {
	return &CodecV2{baseCodec{version: ProtocolV2}}
}

// NewPublish constructs a v2.0 publish frame.
func (c *CodecV2) NewPublish(qos int, dup, retain bool, typ TopicIDType, topicID uint16, payload []byte) Message {
	return &Publish2Message{
		DUP:         dup,
		QoS:         qos,
		Retain:      retain,
		TopicIDType: typ,
		TopicID:     topicID,
		Data:        payload,
	}
}

// CodecForVersion returns the codec for a peer's protocol version.
func CodecForVersion(version ProtocolVersion) Codec {
	if version == ProtocolV2 {
		return NewCodecV2()
	}
	return NewCodecV1()
}

// Version returns the protocol version this codec speaks.
func (c *baseCodec) Version() ProtocolVersion {
	return c.version
}

// Decode parses a datagram into a message.
func (c *baseCodec) Decode(data []byte) (Message, error) {
	return ReadMessage(data, c.version)
}

// PartOfOriginatingExchange reports whether the message kind belongs to
// the originator's side of an exchange.
func (c *baseCodec) PartOfOriginatingExchange(msg Message) bool {
	switch msg.Type() {
	case TypeCONNECT, TypeREGISTER, TypePUBLISH, TypePUBREL,
		TypeSUBSCRIBE, TypeUNSUBSCRIBE, TypePINGREQ,
		TypeWILLTOPICUPD, TypeWILLMSGUPD, TypeSEARCHGW:
		return true
	default:
		return false
	}
}

// RequiresResponse reports whether sending the message opens an
// inflight slot awaiting a terminal response.
//
// PUBREL and PUBREC continue an exchange already tabled under the
// publish's message ID and must not open a second slot.
func (c *baseCodec) RequiresResponse(msg Message) bool {
	switch msg.Type() {
	case TypeCONNECT, TypeREGISTER, TypeSUBSCRIBE, TypeUNSUBSCRIBE,
		TypePINGREQ, TypeWILLTOPICUPD, TypeWILLMSGUPD:
		return true
	case TypePUBLISH:
		data, ok := c.GetData(msg)
		return ok && data.QoS > 0
	default:
		return false
	}
}

// IsTerminal reports whether the message closes an inflight exchange.
func (c *baseCodec) IsTerminal(msg Message) bool {
	switch msg.Type() {
	case TypeCONNACK, TypeREGACK, TypeSUBACK, TypeUNSUBACK,
		TypePUBACK, TypePUBCOMP, TypePUBREL, TypePINGRESP,
		TypeDISCONNECT, TypeWILLTOPICRESP, TypeWILLMSGRESP:
		return true
	default:
		return false
	}
}

// ValidResponse reports whether response is an acceptable terminal
// response to request.
func (c *baseCodec) ValidResponse(request, response Message) bool {
	switch request.Type() {
	case TypeCONNECT:
		return response.Type() == TypeCONNACK
	case TypeREGISTER:
		return response.Type() == TypeREGACK
	case TypeSUBSCRIBE:
		return response.Type() == TypeSUBACK
	case TypeUNSUBSCRIBE:
		return response.Type() == TypeUNSUBACK
	case TypePINGREQ:
		return response.Type() == TypePINGRESP
	case TypePUBLISH:
		// QoS 1 closes with PUBACK; QoS 2 closes with PUBCOMP
		// locally or PUBREL for the receiving side. An error PUBACK
		// closes either flow.
		switch response.Type() {
		case TypePUBACK, TypePUBCOMP, TypePUBREL:
			return true
		default:
			return false
		}
	case TypeWILLTOPICUPD:
		return response.Type() == TypeWILLTOPICRESP
	case TypeWILLMSGUPD:
		return response.Type() == TypeWILLMSGRESP
	default:
		return false
	}
}

// IsActive reports whether the message advances the session's liveness
// clock.
func (c *baseCodec) IsActive(msg Message) bool {
	switch msg.Type() {
	case TypePINGREQ, TypePINGRESP, TypeADVERTISE, TypeSEARCHGW, TypeGWINFO:
		return false
	default:
		return true
	}
}

// IsError reports whether the message carries a non-zero return code.
func (c *baseCodec) IsError(msg Message) bool {
	code, ok := c.ReturnCode(msg)
	return ok && code != ReturnAccepted
}

// ReturnCode extracts the return code from messages that carry one.
func (c *baseCodec) ReturnCode(msg Message) (ReturnCode, bool) {
	switch m := msg.(type) {
	case *ConnackMessage:
		return m.ReturnCode, true
	case *RegackMessage:
		return m.ReturnCode, true
	case *SubackMessage:
		return m.ReturnCode, true
	case *PubackMessage:
		return m.ReturnCode, true
	case *WilltopicrespMessage:
		return m.ReturnCode, true
	case *WillmsgrespMessage:
		return m.ReturnCode, true
	default:
		return 0, false
	}
}

// IsPublish reports whether the message is a publish.
func (c *baseCodec) IsPublish(msg Message) bool {
	return msg.Type() == TypePUBLISH
}

// IsPuback reports whether the message is a PUBACK.
func (c *baseCodec) IsPuback(msg Message) bool {
	return msg.Type() == TypePUBACK
}

// IsPubrec reports whether the message is a PUBREC.
func (c *baseCodec) IsPubrec(msg Message) bool {
	return msg.Type() == TypePUBREC
}

// IsPubrel reports whether the message is a PUBREL.
func (c *baseCodec) IsPubrel(msg Message) bool {
	return msg.Type() == TypePUBREL
}

// IsDisconnect reports whether the message is a DISCONNECT.
func (c *baseCodec) IsDisconnect(msg Message) bool {
	return msg.Type() == TypeDISCONNECT
}

// GetData extracts the publish data from a publish message.
func (c *baseCodec) GetData(msg Message) (PublishData, bool) {
	switch m := msg.(type) {
	case *PublishMessage:
		return PublishData{
			QoS:         m.EffectiveQoS(),
			Retained:    m.Retain,
			Payload:     m.Data,
			TopicIDType: m.TopicIDType,
			TopicID:     m.TopicID,
		}, true
	case *Publish2Message:
		return PublishData{
			TopicPath:   m.Topic,
			QoS:         m.EffectiveQoS(),
			Retained:    m.Retain,
			Payload:     m.Data,
			TopicIDType: m.TopicIDType,
			TopicID:     m.TopicID,
		}, true
	default:
		return PublishData{}, false
	}
}

// NeedsID reports whether the message carries a meaningful 16-bit
// message identifier on the wire. QoS 0 publishes carry a zero ID.
func (c *baseCodec) NeedsID(msg Message) bool {
	switch m := msg.(type) {
	case *PublishMessage:
		return m.NeedsID()
	case *Publish2Message:
		return m.NeedsID()
	case MessageWithID:
		return true
	default:
		return false
	}
}
