package mqttsn

import (
	"context"
	"net"
	"sync"
)

// Subscription records one peer subscription at the gateway.
type Subscription struct {
	// Filter is the subscribed topic filter.
	Filter string

	// QoS is the granted maximum quality of service.
	QoS int
}

// willNegotiation tracks the WILLTOPICREQ/WILLMSGREQ exchange that
// precedes CONNACK for connects carrying the Will flag.
type willNegotiation struct {
	connect *ConnectMessage
	topic   *WilltopicMessage
}

// Gateway is an MQTT-SN gateway runtime: it terminates client
// sessions, owns the per-peer message state in gateway mode, and fans
// confirmed publishes out to subscribers through their send queues.
type Gateway struct {
	gatewayID byte
	opts      *Options
	log       Logger
	metrics   Metrics
	gwMetrics *GatewayMetrics

	transport Transport
	state     *MessageState
	queue     *MessageQueue
	registry  *MessageRegistry
	topics    *TopicRegistry
	security  *SecurityService
	peers     *PeerRegistry
	handlers  Handlers

	mu       sync.Mutex
	subs     map[*Peer][]Subscription
	sleeping map[*Peer]bool
	wills    map[*Peer]*WillData
	pending  map[*Peer]*willNegotiation

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the gateway logger.
func WithGatewayLogger(log Logger) GatewayOption {
	return func(g *Gateway) {
		g.log = log
	}
}

// WithGatewayMetrics sets the gateway metrics collector.
func WithGatewayMetrics(m Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithGatewayHandlers sets the application callbacks.
func WithGatewayHandlers(h Handlers) GatewayOption {
	return func(g *Gateway) {
		g.handlers = h
	}
}

// WithGatewaySecurity enables payload integrity protection.
func WithGatewaySecurity(secret, salt []byte) GatewayOption {
	return func(g *Gateway) {
		g.security = NewSecurityService(secret, salt)
	}
}

// WithGatewayOptions applies state layer options.
func WithGatewayOptions(opts ...Option) GatewayOption {
	return func(g *Gateway) {
		for _, opt := range opts {
			opt(g.opts)
		}
	}
}

// NewGateway creates a gateway on the given transport.
func NewGateway(gatewayID byte, transport Transport, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		gatewayID: gatewayID,
		opts:      DefaultOptions(),
		log:       NewNoOpLogger(),
		metrics:   &NoOpMetrics{},
		transport: transport,
		peers:     NewPeerRegistry(),
		subs:      make(map[*Peer][]Subscription),
		sleeping:  make(map[*Peer]bool),
		wills:     make(map[*Peer]*WillData),
		pending:   make(map[*Peer]*willNegotiation),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.gwMetrics = NewGatewayMetrics(g.metrics)
	g.queue = NewMessageQueue(g.opts.MaxQueueSize)
	g.registry = NewMessageRegistry(0, g.opts.RegistryTTL)
	g.topics = NewTopicRegistry(g.opts.PredefinedTopics)
	if g.security == nil {
		g.security = NewSecurityService(nil, nil)
	}

	stateHandlers := g.handlers
	userReceived := g.handlers.OnMessageReceived
	stateHandlers.OnMessageReceived = func(p *Peer, topicPath string, qos int, retained bool, payload []byte, msg Message) {
		g.route(p, topicPath, qos, retained, payload)
		if userReceived != nil {
			userReceived(p, topicPath, qos, retained, payload, msg)
		}
	}
	userLost := g.handlers.OnConnectionLost
	stateHandlers.OnConnectionLost = func(p *Peer, err error) {
		g.publishWill(p)
		if userLost != nil {
			userLost(p, err)
		}
	}

	g.state = NewMessageState(StateConfig{
		ClientMode: false,
		Transport:  transport,
		Queue:      g.queue,
		Registry:   g.registry,
		Topics:     g.topics,
		Security:   g.security,
		Handlers:   stateHandlers,
		Logger:     g.log,
		Metrics:    g.metrics,
	}, g.opts)
	g.state.SetQueueProcessor(NewStateQueueProcessor(g.state, g.queue, g.topics, g.log, false))

	return g
}

// Start launches the state loop and the transport receive loop.
func (g *Gateway) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel

	g.state.Start()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.transport.Listen(ctx, g.onDatagram); err != nil && ctx.Err() == nil {
			g.log.Error("transport listen failed", LogFields{LogFieldError: err})
		}
	}()
}

// Stop tears the gateway down.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.state.Stop()
	g.transport.Close()
	g.wg.Wait()
}

// Publish enqueues a gateway-originated publish to every subscriber of
// the topic.
func (g *Gateway) Publish(topicPath string, qos int, retained bool, payload []byte) error {
	if err := ValidateTopicName(topicPath); err != nil {
		return err
	}
	g.route(nil, topicPath, qos, retained, payload)
	return nil
}

// Peers exposes the peer registry.
func (g *Gateway) Peers() *PeerRegistry {
	return g.peers
}

// route fans a publish out to matching subscribers. The sender (when
// any) is included; MQTT delivery is not suppressed for the origin.
func (g *Gateway) route(_ *Peer, topicPath string, qos int, retained bool, payload []byte) {
	g.mu.Lock()
	type delivery struct {
		peer *Peer
		qos  int
	}
	var deliveries []delivery
	for peer, subs := range g.subs {
		for _, sub := range subs {
			if !TopicMatch(sub.Filter, topicPath) {
				continue
			}
			effective := qos
			if sub.QoS < effective {
				effective = sub.QoS
			}
			deliveries = append(deliveries, delivery{peer: peer, qos: effective})
			break
		}
	}
	g.mu.Unlock()

	for _, d := range deliveries {
		id := g.registry.Add(payload)
		q := &QueuedPublish{
			MessageID: id,
			TopicPath: topicPath,
			QoS:       d.qos,
			Retained:  retained,
		}
		if err := g.queue.Offer(d.peer, q); err != nil {
			g.registry.Remove(id)
			g.log.Warn("subscriber queue full, dropping publish", LogFields{
				LogFieldClientID: d.peer.ClientID,
				LogFieldTopic:    topicPath,
			})
			continue
		}
		if !g.isSleeping(d.peer) {
			g.state.ScheduleFlush(d.peer)
		}
	}
}

func (g *Gateway) isSleeping(p *Peer) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sleeping[p]
}

// publishWill routes a peer's will publish after a connection loss.
func (g *Gateway) publishWill(p *Peer) {
	g.mu.Lock()
	will := g.wills[p]
	g.mu.Unlock()

	if will == nil || will.Topic == "" {
		return
	}
	g.route(p, will.Topic, will.QoS, will.Retain, will.Payload)
}

func (g *Gateway) onDatagram(addr net.Addr, data []byte) {
	version := ProtocolV1
	peer, known := g.peers.Resolve(addr)
	if known {
		version = peer.Version
	}

	msg, err := ReadMessage(data, version)
	if err != nil {
		g.log.Warn("dropping malformed datagram", LogFields{
			LogFieldRemoteAddr: addr.String(),
			LogFieldError:      err,
		})
		return
	}
	g.gwMetrics.MessageReceived(msg.Type())
	g.gwMetrics.BytesReceived(len(data))

	switch m := msg.(type) {
	case *SearchgwMessage:
		g.send(addr, &GwinfoMessage{GatewayID: g.gatewayID})
		return

	case *ConnectMessage:
		g.handleConnect(addr, m)
		return
	}

	if !known {
		g.log.Warn("dropping datagram from unknown peer", LogFields{
			LogFieldRemoteAddr:  addr.String(),
			LogFieldMessageType: msg.Type().String(),
		})
		return
	}

	codec := g.state.CodecFor(peer)
	g.state.Activity().TouchReceived(peer, codec.IsActive(msg) && !codec.IsError(msg))

	switch m := msg.(type) {
	case *WilltopicMessage:
		g.handleWilltopic(peer, m)

	case *WillmsgMessage:
		g.handleWillmsg(peer, m)

	case *PingreqMessage:
		g.handlePingreq(peer, m)

	case *RegisterMessage:
		g.handleRegister(peer, m)

	case *SubscribeMessage:
		g.handleSubscribe(peer, m)

	case *UnsubscribeMessage:
		g.handleUnsubscribe(peer, m)

	case *DisconnectMessage:
		g.handleDisconnect(peer, m)

	case *WilltopicupdMessage:
		g.setWillTopic(peer, m.WillTopic, m.QoS, m.Retain)
		g.respond(peer, &WilltopicrespMessage{ReturnCode: ReturnAccepted})

	case *WillmsgupdMessage:
		g.setWillPayload(peer, m.WillMsg)
		g.respond(peer, &WillmsgrespMessage{ReturnCode: ReturnAccepted})

	default:
		g.handleStateMessage(peer, msg)
	}
}

func (g *Gateway) handleConnect(addr net.Addr, m *ConnectMessage) {
	version := ProtocolV1
	if m.ProtocolID == byte(ProtocolV2) {
		version = ProtocolV2
	}
	peer := g.peers.Bind(m.ClientID, addr, version)
	g.gwMetrics.PeerConnected()

	if m.CleanSession {
		g.state.ClearInflight(peer)
		g.state.Clear(peer)
		g.queue.Clear(peer)
		g.topics.Clear(peer)
		g.mu.Lock()
		delete(g.subs, peer)
		delete(g.wills, peer)
		g.mu.Unlock()
	}

	g.mu.Lock()
	delete(g.sleeping, peer)
	g.mu.Unlock()

	g.state.Activity().TouchReceived(peer, true)

	if m.Will {
		g.mu.Lock()
		g.pending[peer] = &willNegotiation{connect: m}
		g.mu.Unlock()
		g.respond(peer, &WilltopicreqMessage{})
		return
	}

	g.respond(peer, &ConnackMessage{ReturnCode: ReturnAccepted})
	g.state.ScheduleFlush(peer)
}

func (g *Gateway) handleWilltopic(peer *Peer, m *WilltopicMessage) {
	g.mu.Lock()
	neg, ok := g.pending[peer]
	if ok {
		neg.topic = m
	}
	g.mu.Unlock()

	if !ok {
		g.log.Warn("unexpected WILLTOPIC", LogFields{LogFieldClientID: peer.ClientID})
		return
	}
	g.respond(peer, &WillmsgreqMessage{})
}

func (g *Gateway) handleWillmsg(peer *Peer, m *WillmsgMessage) {
	g.mu.Lock()
	neg, ok := g.pending[peer]
	if ok {
		delete(g.pending, peer)
		if neg.topic != nil {
			g.wills[peer] = &WillData{
				Topic:   neg.topic.WillTopic,
				QoS:     neg.topic.QoS,
				Retain:  neg.topic.Retain,
				Payload: m.WillMsg,
			}
		}
	}
	g.mu.Unlock()

	if !ok {
		g.log.Warn("unexpected WILLMSG", LogFields{LogFieldClientID: peer.ClientID})
		return
	}
	g.respond(peer, &ConnackMessage{ReturnCode: ReturnAccepted})
	g.state.ScheduleFlush(peer)
}

func (g *Gateway) handlePingreq(peer *Peer, m *PingreqMessage) {
	if m.ClientID != "" {
		// Sleeping client waking up: flush buffered messages first.
		g.mu.Lock()
		delete(g.sleeping, peer)
		g.mu.Unlock()
		g.state.ScheduleFlush(peer)
	}
	g.respond(peer, &PingrespMessage{})
}

func (g *Gateway) handleRegister(peer *Peer, m *RegisterMessage) {
	id, err := g.topics.Register(peer, m.TopicName)
	code := ReturnAccepted
	if err != nil {
		code = ReturnRejectedNotSupported
	}
	g.respond(peer, &RegackMessage{TopicID: id, MsgID: m.MsgID, ReturnCode: code})
}

func (g *Gateway) handleSubscribe(peer *Peer, m *SubscribeMessage) {
	var filter string
	var topicID uint16

	switch m.TopicIDType {
	case TopicIDPredefined:
		path, err := g.topics.TopicPath(peer, TopicIDPredefined, m.TopicID)
		if err != nil {
			g.respond(peer, &SubackMessage{MsgID: m.MsgID, ReturnCode: ReturnRejectedInvalidTopic})
			return
		}
		filter = path
		topicID = m.TopicID
	case TopicIDShort:
		filter = m.TopicName
	default:
		filter = m.TopicName
		if err := ValidateTopicFilter(filter); err != nil {
			g.respond(peer, &SubackMessage{MsgID: m.MsgID, ReturnCode: ReturnRejectedNotSupported})
			return
		}
		if !containsWildcard(filter) && len(filter) > 2 {
			id, err := g.topics.Register(peer, filter)
			if err != nil {
				g.respond(peer, &SubackMessage{MsgID: m.MsgID, ReturnCode: ReturnRejectedNotSupported})
				return
			}
			topicID = id
		}
	}

	granted := m.QoS
	if granted > 2 {
		granted = 2
	}

	g.mu.Lock()
	subs := g.subs[peer]
	replaced := false
	for i, sub := range subs {
		if sub.Filter == filter {
			subs[i].QoS = granted
			replaced = true
			break
		}
	}
	if !replaced {
		g.subs[peer] = append(subs, Subscription{Filter: filter, QoS: granted})
	}
	g.mu.Unlock()

	if !replaced {
		g.gwMetrics.SubscriptionAdded()
	}
	g.respond(peer, &SubackMessage{QoS: granted, TopicID: topicID, MsgID: m.MsgID, ReturnCode: ReturnAccepted})
}

func (g *Gateway) handleUnsubscribe(peer *Peer, m *UnsubscribeMessage) {
	filter := m.TopicName
	if m.TopicIDType == TopicIDPredefined {
		if path, err := g.topics.TopicPath(peer, TopicIDPredefined, m.TopicID); err == nil {
			filter = path
		}
	}

	g.mu.Lock()
	subs := g.subs[peer]
	for i, sub := range subs {
		if sub.Filter == filter {
			g.subs[peer] = append(subs[:i], subs[i+1:]...)
			g.gwMetrics.SubscriptionRemoved()
			break
		}
	}
	g.mu.Unlock()

	g.respond(peer, &UnsubackMessage{MsgID: m.MsgID})
}

func (g *Gateway) handleDisconnect(peer *Peer, m *DisconnectMessage) {
	if m.HasDuration {
		// Sleep request: buffer publishes until the client pings.
		g.mu.Lock()
		g.sleeping[peer] = true
		g.mu.Unlock()
		g.state.UnscheduleFlush(peer)
		g.respond(peer, &DisconnectMessage{})
		return
	}

	g.state.ClearInflight(peer)
	g.state.Clear(peer)
	g.mu.Lock()
	delete(g.wills, peer)
	delete(g.sleeping, peer)
	g.mu.Unlock()
	g.gwMetrics.PeerDisconnected()
	g.respond(peer, &DisconnectMessage{})
}

// handleStateMessage drives the message state machine for publish
// traffic and terminal responses, then issues the protocol turn the
// received frame requires.
func (g *Gateway) handleStateMessage(peer *Peer, msg Message) {
	codec := g.state.CodecFor(peer)

	// An inbound publish must resolve to a topic before it is accepted
	// into the state layer.
	if data, ok := codec.GetData(msg); ok && data.TopicPath == "" {
		if _, err := g.topics.TopicPath(peer, data.TopicIDType, data.TopicID); err != nil {
			wid, _ := msg.(MessageWithID)
			var msgID uint16
			if wid != nil {
				msgID = wid.MessageID()
			}
			g.respond(peer, &PubackMessage{TopicID: data.TopicID, MsgID: msgID, ReturnCode: ReturnRejectedInvalidTopic})
			return
		}
	}

	if _, err := g.state.NotifyReceived(peer, msg); err != nil {
		g.log.Warn("receive handling failed", LogFields{
			LogFieldClientID:    peer.ClientID,
			LogFieldMessageType: msg.Type().String(),
			LogFieldError:       err,
		})
	}

	switch m := msg.(type) {
	case *PubrecMessage:
		g.respond(peer, &PubrelMessage{MsgID: m.MsgID})

	case *PubrelMessage:
		g.respond(peer, &PubcompMessage{MsgID: m.MsgID})

	default:
		if data, ok := codec.GetData(msg); ok {
			wid, _ := msg.(MessageWithID)
			switch data.QoS {
			case 1:
				g.respond(peer, &PubackMessage{TopicID: data.TopicID, MsgID: wid.MessageID(), ReturnCode: ReturnAccepted})
			case 2:
				g.respond(peer, &PubrecMessage{MsgID: wid.MessageID()})
			}
		}
	}
}

func (g *Gateway) respond(peer *Peer, msg Message) {
	if _, err := g.state.SendMessage(peer, msg); err != nil {
		g.log.Warn("response send failed", LogFields{
			LogFieldClientID:    peer.ClientID,
			LogFieldMessageType: msg.Type().String(),
			LogFieldError:       err,
		})
		return
	}
	g.gwMetrics.MessageSent(msg.Type())
}

func (g *Gateway) send(addr net.Addr, msg Message) {
	frame, err := msg.Encode()
	if err != nil {
		return
	}
	g.transport.WriteTo(addr, frame, nil)
	g.gwMetrics.MessageSent(msg.Type())
}

func (g *Gateway) setWillTopic(peer *Peer, topic string, qos int, retain bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	will := g.wills[peer]
	if will == nil {
		will = &WillData{}
		g.wills[peer] = will
	}
	will.Topic = topic
	will.QoS = qos
	will.Retain = retain
	if topic == "" {
		delete(g.wills, peer)
	}
}

func (g *Gateway) setWillPayload(peer *Peer, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	will := g.wills[peer]
	if will == nil {
		will = &WillData{}
		g.wills[peer] = will
	}
	will.Payload = payload
}
