package mqttsn

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"github.com/quic-go/quic-go"
)

// ErrTLSRequired is returned when TLS configuration is required but
// not provided. QUIC mandates TLS 1.3.
var ErrTLSRequired = errors.New("mqttsn: TLS configuration is required for QUIC")

const quicALPN = "mqtt-sn"

func quicConfig(cfg *quic.Config) *quic.Config {
	if cfg == nil {
		cfg = &quic.Config{}
	}
	cfg.EnableDatagrams = true
	return cfg
}

func quicTLSConfig(cfg *tls.Config) *tls.Config {
	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS13}
	}
	if cfg.MinVersion < tls.VersionTLS13 {
		cfg = cfg.Clone()
		cfg.MinVersion = tls.VersionTLS13
	}
	if len(cfg.NextProtos) == 0 {
		cfg = cfg.Clone()
		cfg.NextProtos = []string{quicALPN}
	}
	return cfg
}

// QUICClientTransport carries MQTT-SN datagrams in QUIC DATAGRAM
// frames over a single connection to a gateway. The unreliable
// datagram semantics match the UDP transport; QUIC adds encryption
// and path migration.
type QUICClientTransport struct {
	conn *quic.Conn

	mu     sync.Mutex
	closed bool
}

// DialQUIC connects to a gateway over QUIC.
func DialQUIC(ctx context.Context, address string, tlsConfig *tls.Config, cfg *quic.Config) (*QUICClientTransport, error) {
	conn, err := quic.DialAddr(ctx, address, quicTLSConfig(tlsConfig), quicConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &QUICClientTransport{conn: conn}, nil
}

// WriteTo sends a datagram. The address is ignored; the connection
// already targets the gateway.
func (t *QUICClientTransport) WriteTo(_ net.Addr, frame []byte, done func(error)) {
	err := t.conn.SendDatagram(frame)
	if done != nil {
		done(err)
	}
}

// Listen delivers inbound datagrams to the handler.
func (t *QUICClientTransport) Listen(ctx context.Context, handler DatagramHandler) error {
	for {
		data, err := t.conn.ReceiveDatagram(ctx)
		if err != nil {
			return err
		}
		handler(t.conn.RemoteAddr(), data)
	}
}

// LocalAddr returns the local network address.
func (t *QUICClientTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close closes the connection.
func (t *QUICClientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.CloseWithError(0, "")
}

// QUICGatewayTransport accepts QUIC connections and multiplexes their
// DATAGRAM frames into a single datagram stream keyed by remote
// address, mirroring the UDP transport's addressing model.
type QUICGatewayTransport struct {
	listener *quic.Listener

	mu     sync.Mutex
	conns  map[string]*quic.Conn
	closed bool
}

// ListenQUIC creates a QUIC gateway transport. TLS configuration is
// required.
func ListenQUIC(address string, tlsConfig *tls.Config, cfg *quic.Config) (*QUICGatewayTransport, error) {
	if tlsConfig == nil {
		return nil, ErrTLSRequired
	}
	listener, err := quic.ListenAddr(address, quicTLSConfig(tlsConfig), quicConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &QUICGatewayTransport{
		listener: listener,
		conns:    make(map[string]*quic.Conn),
	}, nil
}

// WriteTo sends a datagram to the connection bound to the address.
func (t *QUICGatewayTransport) WriteTo(addr net.Addr, frame []byte, done func(error)) {
	t.mu.Lock()
	conn, ok := t.conns[addr.String()]
	t.mu.Unlock()

	var err error
	if !ok {
		err = ErrTransportClosed
	} else {
		err = conn.SendDatagram(frame)
	}
	if done != nil {
		done(err)
	}
}

// Listen accepts connections and delivers their datagrams to the
// handler until the context is cancelled.
func (t *QUICGatewayTransport) Listen(ctx context.Context, handler DatagramHandler) error {
	for {
		conn, err := t.listener.Accept(ctx)
		if err != nil {
			return err
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.CloseWithError(0, "")
			return ErrTransportClosed
		}
		t.conns[conn.RemoteAddr().String()] = conn
		t.mu.Unlock()

		go t.receive(ctx, conn, handler)
	}
}

func (t *QUICGatewayTransport) receive(ctx context.Context, conn *quic.Conn, handler DatagramHandler) {
	defer func() {
		t.mu.Lock()
		delete(t.conns, conn.RemoteAddr().String())
		t.mu.Unlock()
	}()

	for {
		data, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			return
		}
		handler(conn.RemoteAddr(), data)
	}
}

// LocalAddr returns the listener's network address.
func (t *QUICGatewayTransport) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// Close shuts the transport down.
func (t *QUICGatewayTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, conn := range t.conns {
		conn.CloseWithError(0, "")
	}
	return t.listener.Close()
}
