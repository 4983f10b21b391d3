package mqttsn

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"
)

// Transport errors.
var (
	ErrTransportClosed = errors.New("mqttsn: transport closed")
)

// DatagramHandler receives inbound datagrams from a transport.
type DatagramHandler func(addr net.Addr, data []byte)

// Transport is an unreliable datagram transport. Writes are
// non-blocking; the done callback fires once the datagram has been
// handed to the network (or failed).
type Transport interface {
	// WriteTo sends a datagram to the address. done may be nil.
	WriteTo(addr net.Addr, frame []byte, done func(error))

	// Listen delivers inbound datagrams to the handler until the
	// context is cancelled or the transport closes.
	Listen(ctx context.Context, handler DatagramHandler) error

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// Close shuts the transport down.
	Close() error
}

type udpWrite struct {
	addr  net.Addr
	frame []byte
	done  func(error)
}

// UDPTransport is the standard MQTT-SN transport. Writes are queued to
// a single writer goroutine so callers never block on the socket.
// Optional per-sender rate limiting protects a gateway from chatty
// peers, and multicast group membership supports gateway discovery
// broadcasts.
type UDPTransport struct {
	conn   *net.UDPConn
	writes chan udpWrite
	log    Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	closed   bool

	ingressRate  rate.Limit
	ingressBurst int

	wg sync.WaitGroup
}

// UDPOption configures a UDPTransport.
type UDPOption func(*UDPTransport)

// WithIngressRateLimit drops datagrams from senders exceeding the
// per-address rate.
func WithIngressRateLimit(r rate.Limit, burst int) UDPOption {
	return func(t *UDPTransport) {
		t.ingressRate = r
		t.ingressBurst = burst
	}
}

// WithTransportLogger sets the transport logger.
func WithTransportLogger(log Logger) UDPOption {
	return func(t *UDPTransport) {
		t.log = log
	}
}

// NewUDPTransport binds a UDP socket on the given address.
func NewUDPTransport(bind string, opts ...UDPOption) (*UDPTransport, error) {
	addr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	t := &UDPTransport{
		conn:     conn,
		writes:   make(chan udpWrite, 128),
		limiters: make(map[string]*rate.Limiter),
		log:      NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.wg.Add(1)
	go t.writeLoop()
	return t, nil
}

// JoinMulticast joins the transport's socket to a multicast group so
// gateway discovery broadcasts (ADVERTISE, SEARCHGW) are received.
func (t *UDPTransport) JoinMulticast(group string, ifi *net.Interface) error {
	addr, err := net.ResolveUDPAddr("udp", group)
	if err != nil {
		return err
	}
	pc := ipv4.NewPacketConn(t.conn)
	return pc.JoinGroup(ifi, addr)
}

// WriteTo sends a datagram to the address. done may be nil.
func (t *UDPTransport) WriteTo(addr net.Addr, frame []byte, done func(error)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		if done != nil {
			done(ErrTransportClosed)
		}
		return
	}
	// Enqueued under the lock so Close cannot close the channel
	// between the check and the send.
	t.writes <- udpWrite{addr: addr, frame: frame, done: done}
	t.mu.Unlock()
}

func (t *UDPTransport) writeLoop() {
	defer t.wg.Done()

	for w := range t.writes {
		_, err := t.conn.WriteTo(w.frame, w.addr)
		if w.done != nil {
			w.done(err)
		}
	}
}

// Listen delivers inbound datagrams to the handler.
func (t *UDPTransport) Listen(ctx context.Context, handler DatagramHandler) error {
	buf := make([]byte, 65535)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return ErrTransportClosed
			}
			return err
		}

		if !t.allow(addr) {
			t.log.Warn("dropping datagram, sender rate limited", LogFields{
				LogFieldRemoteAddr: addr.String(),
			})
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		handler(addr, data)
	}
}

func (t *UDPTransport) allow(addr net.Addr) bool {
	if t.ingressRate == 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	limiter, ok := t.limiters[addr.String()]
	if !ok {
		limiter = rate.NewLimiter(t.ingressRate, t.ingressBurst)
		t.limiters[addr.String()] = limiter
	}
	return limiter.Allow()
}

// LocalAddr returns the bound address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Close shuts the transport down.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.writes)
	err := t.conn.Close()
	t.wg.Wait()
	return err
}
