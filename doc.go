// Package mqttsn implements MQTT-SN (MQTT for Sensor Networks) for Go:
// the wire codec for protocol versions 1.2 and 2.0, a client runtime,
// and a gateway runtime, built around a per-peer message state service.
//
// # Message state service
//
// The core of the package is MessageState. It owns the inflight tables
// for both directions of every peer, assigns and recycles 16-bit
// message identifiers, enforces QoS 0/1/2 delivery semantics,
// schedules per-peer queue flushes with jitter and backoff, times out
// and requeues stalled publishes, and releases callers blocked on
// confirmation tokens.
//
// Sending a message that requires a response returns a WaitToken; the
// caller may block on it:
//
//	token, err := state.SendMessage(peer, connect)
//	if err != nil {
//		return err
//	}
//	response, err := state.WaitForCompletion(peer, token)
//
// Received frames are fed to NotifyReceived, which matches them
// against the inflight tables and drives the exchange to completion.
// Confirmed publishes are committed to the application on a dispatch
// pool, decoupled from the protocol threads.
//
// # Client
//
//	transport, _ := mqttsn.NewUDPTransport(":0")
//	client := mqttsn.NewClient("sensor-1", transport, gatewayAddr)
//	client.Start()
//	defer client.Stop()
//
//	if err := client.Connect(60, true); err != nil {
//		log.Fatal(err)
//	}
//	client.Subscribe("sensors/+/temp", 1)
//	client.Publish("sensors/1/temp", 1, false, []byte("21.5"))
//
// # Gateway
//
//	transport, _ := mqttsn.NewUDPTransport(":2442")
//	gw := mqttsn.NewGateway(1, transport)
//	gw.Start()
//	defer gw.Stop()
//
// # Transports
//
// UDP is the standard MQTT-SN transport; UDPTransport adds optional
// multicast group membership for discovery frames and per-sender rate
// limiting. QUICClientTransport and QUICGatewayTransport carry the
// same datagrams in QUIC DATAGRAM frames for deployments that need
// encryption.
//
// # Observability
//
// Logging goes through the Logger interface (NoOpLogger, StdLogger,
// and a logrus adapter are provided). Metrics go through the Metrics
// interface with an in-memory implementation for tests.
package mqttsn
