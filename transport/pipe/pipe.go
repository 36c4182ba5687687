// Package pipe provides in-memory connections.
// Their deadlines run on a [clock.Clock], so tests can drive time.
package pipe

import (
	"bytes"
	"sync"
	"time"

	"httpwire/transport"

	"github.com/benbjohnson/clock"
)

type Addr struct {
	Name string
}

func (a Addr) Network() string { return string(transport.Pipe) }
func (a Addr) String() string  { return a.Name }

var _ transport.Addr = Addr{}

// Conn is one end of a buffered pipe.
// Writes wait only when the peer's buffer is full.
//
// See:
// - https://github.com/golang/go/issues/24205
// - https://github.com/golang/go/issues/34502
type Conn struct {
	addr Addr

	buf *bytes.Buffer // protected by in.L.

	in, out  sync.Cond
	serialMu sync.Mutex

	closedMu sync.Mutex
	closed   bool

	rdeadLine, wdeadLine *deadline

	peer *Conn
}

var _ transport.Conn = (*Conn)(nil)
var _ transport.BufferedConn = (*Conn)(nil)

// New creates a connected pair. bufSize MUST be more than 0, since all bytes pass through the buffers.
func New(name1, name2 string, clock clock.Clock, bufSize uint) (c1, c2 *Conn) {
	if bufSize == 0 {
		panic("buffer size cannot be 0")
	}

	c1 = newConn(name1, clock, bufSize)
	c2 = newConn(name2, clock, bufSize)
	c1.peer, c2.peer = c2, c1
	return
}

func newConn(name string, clock clock.Clock, bufSize uint) *Conn {
	c := &Conn{
		addr:      Addr{Name: name},
		buf:       bytes.NewBuffer(make([]byte, 0, bufSize)),
		rdeadLine: newDeadLine(clock),
		wdeadLine: newDeadLine(clock),
	}
	c.in.L, c.out.L = &sync.Mutex{}, &sync.Mutex{}
	return c
}

func (c *Conn) ReadBufSize() uint          { return uint(c.buf.Cap()) }
func (c *Conn) WriteBufSize() uint         { return uint(c.peer.buf.Cap()) }
func (c *Conn) LocalAddr() transport.Addr  { return c.addr }
func (c *Conn) RemoteAddr() transport.Addr { return c.peer.addr }

func (c *Conn) Close() error {
	c.closedMu.Lock()
	c.closed = true
	c.closedMu.Unlock()

	c.wakeAll()
	c.peer.wakeAll()
	return nil
}

func (c *Conn) wakeAll() {
	c.wakeRead()
	c.wakeWrite()
}

func (c *Conn) wakeRead() {
	c.in.L.Lock()
	c.in.Broadcast()
	c.in.L.Unlock()
}

func (c *Conn) wakeWrite() {
	c.out.L.Lock()
	c.out.Broadcast()
	c.out.L.Unlock()
}

func (c *Conn) Read(b []byte) (n int, err error) {
	defer func() {
		if err == nil {
			// The peer may be waiting for room in our buffer.
			c.peer.wakeWrite()
		}
	}()

	c.in.L.Lock()
	defer c.in.L.Unlock()

	for {
		if c.rdeadLine.exceeded() {
			return 0, transport.ErrDeadLineExceeded
		}

		// Buffered bytes stay readable after either side closes.
		if c.buf.Len() > 0 {
			return c.buf.Read(b)
		}

		if c.isClosed() || c.peer.isClosed() {
			return 0, transport.ErrConnClosed
		}

		c.in.Wait()
	}
}

func (c *Conn) Write(b []byte) (n int, err error) {
	c.serialMu.Lock()
	defer c.serialMu.Unlock()

	c.out.L.Lock()
	defer c.out.L.Unlock()

	for once := true; once || len(b) > 0; once = false {
		if c.wdeadLine.exceeded() {
			return n, transport.ErrDeadLineExceeded
		}

		if c.isClosed() || c.peer.isClosed() {
			return n, transport.ErrConnClosed
		}

		if len(b) == 0 {
			return n, nil
		}

		c.peer.in.L.Lock()
		room := c.peer.buf.Cap() - c.peer.buf.Len()
		if written := min(len(b), room); written > 0 {
			c.peer.buf.Write(b[:written])
			b = b[written:]
			n += written

			c.peer.in.Broadcast()
			c.peer.in.L.Unlock()
			continue
		}
		c.peer.in.L.Unlock()

		c.out.Wait()
	}

	return n, nil
}

func (c *Conn) isClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	return c.closed
}

func (c *Conn) SetReadDeadLine(t time.Time)  { c.rdeadLine.set(t, c.wakeRead) }
func (c *Conn) SetWriteDeadLine(t time.Time) { c.wdeadLine.set(t, c.wakeWrite) }
