package mqttsn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type e2eFixture struct {
	gateway *Gateway
	client  *Client

	clientReceived chan commitEvent
	gatewaySeen    chan commitEvent
}

func newE2EFixture(t *testing.T, clientOpts ...ClientOption) *e2eFixture {
	t.Helper()

	f := &e2eFixture{
		clientReceived: make(chan commitEvent, 16),
		gatewaySeen:    make(chan commitEvent, 16),
	}

	gwTransport, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)

	f.gateway = NewGateway(1, gwTransport,
		WithGatewayHandlers(Handlers{
			OnMessageReceived: func(p *Peer, topic string, qos int, retained bool, payload []byte, _ Message) {
				f.gatewaySeen <- commitEvent{peer: p, topic: topic, qos: qos, retained: retained, payload: payload}
			},
		}),
		WithGatewayOptions(WithMinFlushTime(5*time.Millisecond)),
	)
	f.gateway.Start()
	t.Cleanup(f.gateway.Stop)

	clientTransport, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)

	opts := append([]ClientOption{
		WithClientHandlers(Handlers{
			OnMessageReceived: func(p *Peer, topic string, qos int, retained bool, payload []byte, _ Message) {
				f.clientReceived <- commitEvent{peer: p, topic: topic, qos: qos, retained: retained, payload: payload}
			},
		}),
		WithClientOptions(WithMinFlushTime(5 * time.Millisecond)),
	}, clientOpts...)

	f.client = NewClient("e2e-client", clientTransport, gwTransport.LocalAddr(), opts...)
	f.client.Start()
	t.Cleanup(f.client.Stop)

	return f
}

func TestE2EConnectPingDisconnect(t *testing.T) {
	f := newE2EFixture(t)

	require.NoError(t, f.client.Connect(60, true))
	assert.True(t, f.client.Connected())
	assert.Equal(t, 1, f.gateway.Peers().Count())

	require.NoError(t, f.client.Ping(false))
	require.NoError(t, f.client.Disconnect())
	assert.False(t, f.client.Connected())
}

func TestE2ERegister(t *testing.T) {
	f := newE2EFixture(t)
	require.NoError(t, f.client.Connect(60, true))

	id, err := f.client.Register("devices/1/state")
	require.NoError(t, err)
	assert.NotZero(t, id)

	// Registering the same topic again yields the same alias.
	again, err := f.client.Register("devices/1/state")
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestE2EPublishSubscribeQoS1(t *testing.T) {
	f := newE2EFixture(t)
	require.NoError(t, f.client.Connect(60, true))

	granted, err := f.client.Subscribe("sensors/+/temp", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, granted)

	_, err = f.client.Publish("sensors/1/temp", 1, false, []byte("21.5"))
	require.NoError(t, err)

	// The gateway commits the inbound publish and routes it back to
	// the subscribing client.
	seen := waitCommit(t, f.gatewaySeen)
	assert.Equal(t, "sensors/1/temp", seen.topic)
	assert.Equal(t, []byte("21.5"), seen.payload)

	received := waitCommit(t, f.clientReceived)
	assert.Equal(t, "sensors/1/temp", received.topic)
	assert.Equal(t, 1, received.qos)
	assert.Equal(t, []byte("21.5"), received.payload)
}

func TestE2EPublishQoS2(t *testing.T) {
	f := newE2EFixture(t)
	require.NoError(t, f.client.Connect(60, true))

	_, err := f.client.Subscribe("alarms/#", 2)
	require.NoError(t, err)

	_, err = f.client.Publish("alarms/door", 2, false, []byte("open"))
	require.NoError(t, err)

	seen := waitCommit(t, f.gatewaySeen)
	assert.Equal(t, "alarms/door", seen.topic)
	assert.Equal(t, 2, seen.qos)

	received := waitCommit(t, f.clientReceived)
	assert.Equal(t, []byte("open"), received.payload)
}

func TestE2EShortTopic(t *testing.T) {
	f := newE2EFixture(t)
	require.NoError(t, f.client.Connect(60, true))

	_, err := f.client.Subscribe("ab", 1)
	require.NoError(t, err)

	_, err = f.client.Publish("ab", 1, false, []byte("short"))
	require.NoError(t, err)

	received := waitCommit(t, f.clientReceived)
	assert.Equal(t, "ab", received.topic)
	assert.Equal(t, []byte("short"), received.payload)
}

func TestE2ESleepAndWake(t *testing.T) {
	f := newE2EFixture(t)
	require.NoError(t, f.client.Connect(60, true))

	_, err := f.client.Subscribe("news", 1)
	require.NoError(t, err)

	require.NoError(t, f.client.Sleep(30))

	// The gateway confirms the sleep with DISCONNECT.
	assert.Eventually(t, func() bool { return !f.client.Connected() },
		2*time.Second, 10*time.Millisecond)

	// Published while asleep: buffered, not delivered.
	require.NoError(t, f.gateway.Publish("news", 1, false, []byte("buffered")))
	assertNoCommit(t, f.clientReceived)

	// Waking ping flushes the buffer.
	require.NoError(t, f.client.Ping(true))

	received := waitCommit(t, f.clientReceived)
	assert.Equal(t, []byte("buffered"), received.payload)
}
