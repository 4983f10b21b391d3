package mqttsn

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
)

// WillData holds a client's will topic and message.
type WillData struct {
	// Topic is the will topic name.
	Topic string

	// QoS is the will publish quality of service.
	QoS int

	// Retain indicates a retained will publish.
	Retain bool

	// Payload is the will message payload.
	Payload []byte
}

// Client is an MQTT-SN client runtime: it binds the message state
// service to a transport in client mode and exposes the protocol
// operations (connect, register, subscribe, publish, ping, sleep).
type Client struct {
	clientID string
	opts     *Options
	log      Logger
	metrics  Metrics

	transport Transport
	state     *MessageState
	queue     *MessageQueue
	registry  *MessageRegistry
	topics    *TopicRegistry
	security  *SecurityService
	handlers  Handlers

	gateway *Peer

	mu        sync.Mutex
	connected bool
	will      *WillData

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(log Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithClientMetrics sets the client metrics collector.
func WithClientMetrics(m Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClientHandlers sets the application callbacks.
func WithClientHandlers(h Handlers) ClientOption {
	return func(c *Client) {
		c.handlers = h
	}
}

// WithClientSecurity enables payload integrity protection with the
// given pre-shared secret and salt.
func WithClientSecurity(secret, salt []byte) ClientOption {
	return func(c *Client) {
		c.security = NewSecurityService(secret, salt)
	}
}

// WithClientWill sets the will data offered during connect.
func WithClientWill(will WillData) ClientOption {
	return func(c *Client) {
		c.will = &will
	}
}

// WithClientOptions applies state layer options.
func WithClientOptions(opts ...Option) ClientOption {
	return func(c *Client) {
		for _, opt := range opts {
			opt(c.opts)
		}
	}
}

// WithClientProtocolVersion selects the protocol version spoken to the
// gateway. Defaults to v1.2.
func WithClientProtocolVersion(v ProtocolVersion) ClientOption {
	return func(c *Client) {
		c.gateway.Version = v
	}
}

// NewClient creates a client bound to a gateway address over the given
// transport. Start must be called before any protocol operation.
func NewClient(clientID string, transport Transport, gatewayAddr net.Addr, opts ...ClientOption) *Client {
	c := &Client{
		clientID:  clientID,
		opts:      DefaultOptions(),
		log:       NewNoOpLogger(),
		metrics:   &NoOpMetrics{},
		transport: transport,
		gateway:   &Peer{ClientID: "gateway", Addr: gatewayAddr, Version: ProtocolV1},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.queue = NewMessageQueue(c.opts.MaxQueueSize)
	c.registry = NewMessageRegistry(0, c.opts.RegistryTTL)
	c.topics = NewTopicRegistry(c.opts.PredefinedTopics)
	if c.security == nil {
		c.security = NewSecurityService(nil, nil)
	}

	c.state = NewMessageState(StateConfig{
		ClientMode: true,
		Transport:  transport,
		Queue:      c.queue,
		Registry:   c.registry,
		Topics:     c.topics,
		Security:   c.security,
		Handlers:   c.handlers,
		Logger:     c.log,
		Metrics:    c.metrics,
	}, c.opts)
	c.state.SetQueueProcessor(NewStateQueueProcessor(c.state, c.queue, c.topics, c.log, true))

	return c
}

// Start launches the state loop and the transport receive loop.
func (c *Client) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.state.Start()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.transport.Listen(ctx, c.onDatagram); err != nil && ctx.Err() == nil {
			c.log.Error("transport listen failed", LogFields{LogFieldError: err})
		}
	}()
}

// Stop tears the client down without sending DISCONNECT.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.state.Stop()
	c.transport.Close()
	c.wg.Wait()
}

// Connect performs the connect exchange. keepAlive is the keep alive
// duration in seconds.
func (c *Client) Connect(keepAlive uint16, cleanSession bool) error {
	connect := &ConnectMessage{
		Will:         c.will != nil,
		CleanSession: cleanSession,
		ProtocolID:   byte(c.gateway.Version),
		Duration:     keepAlive,
		ClientID:     c.clientID,
	}

	token, err := c.state.SendMessage(c.gateway, connect)
	if err != nil {
		return err
	}
	response, err := c.state.WaitForCompletion(c.gateway, token)
	if err != nil {
		return err
	}
	connack, ok := response.(*ConnackMessage)
	if !ok {
		return fmt.Errorf("%w: expected CONNACK", ErrInvalidResponse)
	}
	if connack.ReturnCode != ReturnAccepted {
		return fmt.Errorf("%w: %s", ErrProtocolError, connack.ReturnCode)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Disconnect sends DISCONNECT and tears down session scheduling.
func (c *Client) Disconnect() error {
	_, err := c.state.SendMessage(c.gateway, &DisconnectMessage{})
	c.state.ClearInflight(c.gateway)
	c.state.Clear(c.gateway)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return err
}

// Sleep sends DISCONNECT with a sleep duration. The gateway buffers
// publishes until the next Ping.
func (c *Client) Sleep(duration uint16) error {
	_, err := c.state.SendMessage(c.gateway, &DisconnectMessage{Duration: duration, HasDuration: true})
	return err
}

// Ping performs a PINGREQ exchange. A sleeping client identifies
// itself so the gateway flushes buffered messages.
func (c *Client) Ping(identify bool) error {
	ping := &PingreqMessage{}
	if identify {
		ping.ClientID = c.clientID
	}
	token, err := c.state.SendMessage(c.gateway, ping)
	if err != nil {
		return err
	}
	_, err = c.state.WaitForCompletion(c.gateway, token)
	return err
}

// Register establishes a topic alias for a normal topic name.
func (c *Client) Register(topicPath string) (uint16, error) {
	if err := ValidateTopicName(topicPath); err != nil {
		return 0, err
	}

	token, err := c.state.SendMessage(c.gateway, &RegisterMessage{TopicName: topicPath})
	if err != nil {
		return 0, err
	}
	response, err := c.state.WaitForCompletion(c.gateway, token)
	if err != nil {
		return 0, err
	}
	regack, ok := response.(*RegackMessage)
	if !ok {
		return 0, fmt.Errorf("%w: expected REGACK", ErrInvalidResponse)
	}
	if regack.ReturnCode != ReturnAccepted {
		return 0, fmt.Errorf("%w: %s", ErrProtocolError, regack.ReturnCode)
	}

	c.topics.RegisterAssigned(c.gateway, regack.TopicID, topicPath)
	return regack.TopicID, nil
}

// Subscribe subscribes to a topic filter and returns the granted QoS.
func (c *Client) Subscribe(topicFilter string, qos int) (int, error) {
	if err := ValidateTopicFilter(topicFilter); err != nil {
		return 0, err
	}

	subscribe := &SubscribeMessage{QoS: qos, TopicName: topicFilter}
	if info, ok := c.topics.Lookup(c.gateway, topicFilter); ok && info.Type == TopicIDPredefined {
		subscribe.TopicIDType = TopicIDPredefined
		subscribe.TopicID = info.TopicID
		subscribe.TopicName = ""
	} else if len(topicFilter) <= 2 && !containsWildcard(topicFilter) {
		subscribe.TopicIDType = TopicIDShort
	}

	token, err := c.state.SendMessage(c.gateway, subscribe)
	if err != nil {
		return 0, err
	}
	response, err := c.state.WaitForCompletion(c.gateway, token)
	if err != nil {
		return 0, err
	}
	suback, ok := response.(*SubackMessage)
	if !ok {
		return 0, fmt.Errorf("%w: expected SUBACK", ErrInvalidResponse)
	}
	if suback.ReturnCode != ReturnAccepted {
		return 0, fmt.Errorf("%w: %s", ErrProtocolError, suback.ReturnCode)
	}

	if suback.TopicID != 0 && subscribe.TopicIDType == TopicIDNormal && !containsWildcard(topicFilter) {
		c.topics.RegisterAssigned(c.gateway, suback.TopicID, topicFilter)
	}
	return suback.QoS, nil
}

// Unsubscribe removes a subscription.
func (c *Client) Unsubscribe(topicFilter string) error {
	unsubscribe := &UnsubscribeMessage{TopicName: topicFilter}
	if info, ok := c.topics.Lookup(c.gateway, topicFilter); ok && info.Type == TopicIDPredefined {
		unsubscribe.TopicIDType = TopicIDPredefined
		unsubscribe.TopicID = info.TopicID
		unsubscribe.TopicName = ""
	} else if len(topicFilter) <= 2 && !containsWildcard(topicFilter) {
		unsubscribe.TopicIDType = TopicIDShort
	}

	token, err := c.state.SendMessage(c.gateway, unsubscribe)
	if err != nil {
		return err
	}
	_, err = c.state.WaitForCompletion(c.gateway, token)
	return err
}

// Publish queues a publish for delivery and schedules a flush. The
// returned UUID keys the payload in the message registry and is echoed
// in the sent confirmation callback.
func (c *Client) Publish(topicPath string, qos int, retain bool, payload []byte) (uuid.UUID, error) {
	if err := ValidateTopicName(topicPath); err != nil {
		return uuid.Nil, err
	}
	if qos < -1 || qos > 2 {
		return uuid.Nil, fmt.Errorf("%w: invalid QoS %d", ErrExpectationFailed, qos)
	}

	id := c.registry.Add(payload)
	q := &QueuedPublish{
		MessageID: id,
		TopicPath: topicPath,
		QoS:       qos,
		Retained:  retain,
	}
	if err := c.queue.Offer(c.gateway, q); err != nil {
		c.registry.Remove(id)
		return uuid.Nil, err
	}
	c.state.ScheduleFlush(c.gateway)
	return id, nil
}

// UpdateWillTopic updates the will topic on the gateway.
func (c *Client) UpdateWillTopic(topic string, qos int, retain bool) error {
	token, err := c.state.SendMessage(c.gateway, &WilltopicupdMessage{QoS: qos, Retain: retain, WillTopic: topic})
	if err != nil {
		return err
	}
	response, err := c.state.WaitForCompletion(c.gateway, token)
	if err != nil {
		return err
	}
	if resp, ok := response.(*WilltopicrespMessage); ok && resp.ReturnCode != ReturnAccepted {
		return fmt.Errorf("%w: %s", ErrProtocolError, resp.ReturnCode)
	}
	return nil
}

// UpdateWillMessage updates the will message on the gateway.
func (c *Client) UpdateWillMessage(payload []byte) error {
	token, err := c.state.SendMessage(c.gateway, &WillmsgupdMessage{WillMsg: payload})
	if err != nil {
		return err
	}
	response, err := c.state.WaitForCompletion(c.gateway, token)
	if err != nil {
		return err
	}
	if resp, ok := response.(*WillmsgrespMessage); ok && resp.ReturnCode != ReturnAccepted {
		return fmt.Errorf("%w: %s", ErrProtocolError, resp.ReturnCode)
	}
	return nil
}

// Connected reports whether a connect exchange has completed.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) onDatagram(_ net.Addr, data []byte) {
	msg, err := ReadMessage(data, c.gateway.Version)
	if err != nil {
		c.log.Warn("dropping malformed datagram", LogFields{LogFieldError: err})
		return
	}

	switch m := msg.(type) {
	case *RegisterMessage:
		// Gateway-initiated topic registration.
		c.topics.RegisterAssigned(c.gateway, m.TopicID, m.TopicName)
		c.respond(&RegackMessage{TopicID: m.TopicID, MsgID: m.MsgID, ReturnCode: ReturnAccepted})
		return

	case *WilltopicreqMessage:
		will := c.willData()
		c.respond(&WilltopicMessage{QoS: will.QoS, Retain: will.Retain, WillTopic: will.Topic})
		return

	case *WillmsgreqMessage:
		c.respond(&WillmsgMessage{WillMsg: c.willData().Payload})
		return

	case *PingreqMessage:
		c.respond(&PingrespMessage{})
		return
	}

	if _, err := c.state.NotifyReceived(c.gateway, msg); err != nil {
		c.log.Warn("receive handling failed", LogFields{
			LogFieldMessageType: msg.Type().String(),
			LogFieldError:       err,
		})
	}

	c.continueExchange(msg)
}

// continueExchange sends the protocol turns that follow a received
// frame: PUBREC/PUBACK for inbound publishes, PUBREL after PUBREC,
// PUBCOMP after PUBREL.
func (c *Client) continueExchange(msg Message) {
	codec := c.state.CodecFor(c.gateway)

	switch m := msg.(type) {
	case *PubrecMessage:
		c.respond(&PubrelMessage{MsgID: m.MsgID})

	case *PubrelMessage:
		c.respond(&PubcompMessage{MsgID: m.MsgID})

	case *DisconnectMessage:
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

	default:
		if data, ok := codec.GetData(msg); ok {
			wid, _ := msg.(MessageWithID)
			switch data.QoS {
			case 1:
				c.respond(&PubackMessage{TopicID: data.TopicID, MsgID: wid.MessageID(), ReturnCode: ReturnAccepted})
			case 2:
				c.respond(&PubrecMessage{MsgID: wid.MessageID()})
			}
		}
	}
}

func (c *Client) respond(msg Message) {
	if _, err := c.state.SendMessage(c.gateway, msg); err != nil {
		c.log.Warn("response send failed", LogFields{
			LogFieldMessageType: msg.Type().String(),
			LogFieldError:       err,
		})
	}
}

func (c *Client) willData() WillData {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.will == nil {
		return WillData{}
	}
	return *c.will
}
