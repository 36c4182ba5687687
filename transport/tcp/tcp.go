// Package tcp dials TCP connections, optionally secured with TLS.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9293
package tcp

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"os"
	"time"

	"httpwire/transport"

	"github.com/pkg/errors"
)

type Options struct {
	// Timeout bounds connecting, including the TLS handshake. Zero means no timeout.
	Timeout   time.Duration
	KeepAlive time.Duration

	// NoDelay disables Nagle's algorithm.
	NoDelay bool

	// Socket buffer sizes. Zero keeps the system default.
	ReadBuffer  int
	WriteBuffer int

	// TLS secures every dialed connection when set.
	TLS *tls.Config
}

var DefaultOptions = Options{
	Timeout:   30 * time.Second,
	KeepAlive: 15 * time.Second,
	NoDelay:   true,
}

type Dialer struct {
	opts Options
	nd   net.Dialer
}

var _ transport.ConnDialer = (*Dialer)(nil)

func NewDialer(opts Options) *Dialer {
	return &Dialer{
		opts: opts,
		nd: net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: opts.KeepAlive,
			Control:   control(opts),
		},
	}
}

// Dial connects to addr, given as "host:port".
func (d *Dialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	nc, err := d.nd.DialContext(ctx, string(transport.TCP), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	if d.opts.TLS == nil {
		return &conn{nc: nc}, nil
	}

	cfg := d.opts.TLS.Clone()
	if cfg.ServerName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			nc.Close()
			return nil, errors.Wrapf(err, "splitting %s", addr)
		}
		cfg.ServerName = host
	}

	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	tc := tls.Client(nc, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		nc.Close()
		return nil, errors.Wrapf(err, "tls handshake with %s", addr)
	}

	return &conn{nc: tc}, nil
}

// Listener accepts TCP connections. It mostly serves tests dialing a local server.
type Listener struct {
	nl net.Listener
}

var _ transport.ConnListener = (*Listener)(nil)

func Listen(addr string) (*Listener, error) {
	nl, err := net.Listen(string(transport.TCP), addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	return &Listener{nl: nl}, nil
}

func (l *Listener) Addr() transport.Addr { return l.nl.Addr() }

// Accept waits for a connection. Cancelling ctx does not close the listener.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	type result struct {
		nc  net.Conn
		err error
	}

	done := make(chan result, 1)
	go func() {
		nc, err := l.nl.Accept()
		done <- result{nc, err}
	}()

	select {
	case <-ctx.Done():
		// Unblock the pending Accept by expiring it, then drop what it returns.
		if tl, ok := l.nl.(*net.TCPListener); ok {
			tl.SetDeadline(time.Unix(1, 0))
			r := <-done
			tl.SetDeadline(time.Time{})
			if r.nc != nil {
				r.nc.Close()
			}
		}
		return nil, ctx.Err()
	case r := <-done:
		if errors.Is(r.err, net.ErrClosed) {
			return nil, transport.ErrConnListenerClosed
		}
		if r.err != nil {
			return nil, r.err
		}
		return &conn{nc: r.nc}, nil
	}
}

func (l *Listener) Close() error {
	if err := l.nl.Close(); err != nil {
		return convertError(err)
	}
	return nil
}

type conn struct {
	nc net.Conn
}

var _ transport.Conn = (*conn)(nil)

func (c *conn) Read(p []byte) (int, error) {
	n, err := c.nc.Read(p)
	return n, convertError(err)
}

func (c *conn) Write(p []byte) (int, error) {
	n, err := c.nc.Write(p)
	return n, convertError(err)
}

func (c *conn) Close() error {
	return convertError(c.nc.Close())
}

func (c *conn) LocalAddr() transport.Addr  { return c.nc.LocalAddr() }
func (c *conn) RemoteAddr() transport.Addr { return c.nc.RemoteAddr() }

// Deadline errors are reported by the following Read or Write.
func (c *conn) SetReadDeadLine(t time.Time)  { c.nc.SetReadDeadline(t) }
func (c *conn) SetWriteDeadLine(t time.Time) { c.nc.SetWriteDeadline(t) }

// convertError maps net errors onto the transport ones.
func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return transport.ErrConnClosed
	case errors.Is(err, os.ErrDeadlineExceeded):
		return transport.ErrDeadLineExceeded
	}
	return err
}
