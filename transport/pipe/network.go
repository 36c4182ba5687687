package pipe

import (
	"context"
	"sync"

	"httpwire/transport"

	"github.com/benbjohnson/clock"
)

// DefaultBufSize is the buffer size of connections opened through a Network.
const DefaultBufSize = 4096

type dialRequest struct {
	conn     *Conn
	accepted chan struct{}
}

// Network connects dialers to listeners by name.
type Network struct {
	listeners map[string]*Listener
	clock     clock.Clock
	bufSize   uint

	mu sync.Mutex
}

func NewNetwork(clock clock.Clock, bufSize uint) *Network {
	if bufSize == 0 {
		bufSize = DefaultBufSize
	}
	return &Network{
		listeners: make(map[string]*Listener),
		clock:     clock,
		bufSize:   bufSize,
	}
}

var _ transport.ConnDialer = (*Network)(nil)

func (n *Network) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	n.mu.Lock()
	listener, ok := n.listeners[addr]
	n.mu.Unlock()

	if !ok {
		return nil, transport.ErrNetUnreachable
	}

	local, remote := New("dialer", addr, n.clock, n.bufSize)

	req := dialRequest{
		conn:     remote,
		accepted: make(chan struct{}, 1),
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-listener.closed:
		return nil, transport.ErrConnRefused
	case listener.requests <- req:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case _, accepted := <-req.accepted:
		if !accepted {
			return nil, transport.ErrConnRefused
		}
	}

	return local, nil
}

func (n *Network) Listen(name string) (*Listener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.listeners[name]; ok {
		return nil, transport.ErrAddrAlreadyInUse
	}

	l := &Listener{
		addr:     Addr{Name: name},
		network:  n,
		requests: make(chan dialRequest),
		closed:   make(chan struct{}),
	}
	n.listeners[name] = l

	return l, nil
}

type Listener struct {
	addr    Addr
	network *Network

	requests chan dialRequest
	closed   chan struct{}

	once sync.Once
}

var _ transport.ConnListener = (*Listener)(nil)

func (l *Listener) Addr() transport.Addr { return l.addr }

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, transport.ErrConnListenerClosed
	case req := <-l.requests:
		// accepted is buffered, so this never blocks.
		req.accepted <- struct{}{}
		return req.conn, nil
	}
}

// Close stops accepting. Dials waiting on the listener are refused.
func (l *Listener) Close() error {
	err := transport.ErrConnListenerClosed
	l.once.Do(func() {
		err = nil
		close(l.closed)

		l.network.mu.Lock()
		delete(l.network.listeners, l.addr.Name)
		l.network.mu.Unlock()
	})
	return err
}
