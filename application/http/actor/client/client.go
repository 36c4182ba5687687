// Package client sends requests and opens WebSocket connections over a [transport.ConnDialer].
// Every exchange uses its own connection, closed once the response is read.
package client

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"httpwire/application/http"
	"httpwire/application/util/rule"
	"httpwire/application/util/uri"
	"httpwire/application/websocket"
	iolib "httpwire/lib/io"
	"httpwire/transport"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

type Client struct {
	dialer transport.ConnDialer
	logger *zerolog.Logger
	clock  clock.Clock

	opts Options
}

// New creates a client. A nil logger discards logs.
func New(d transport.ConnDialer, logger *zerolog.Logger, clock clock.Clock, opts Options) *Client {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Client{
		dialer: d,
		logger: logger,
		clock:  clock,
		opts:   opts,
	}
}

// Do sends req and returns its response, following redirects when enabled.
// With strict parsing, a final 4xx or 5xx response is returned as [*http.StatusError],
// and a final 3xx response comes with [http.OutcomeContinuation].
func (c *Client) Do(ctx context.Context, req http.Request) (*http.Response, http.Outcome, error) {
	// Each exchange reads the response until the server closes.
	req = req.WithHeader("Connection", "close")

	raw, err := http.EncodeRequest(req, c.opts.Send.Encode)
	if err != nil {
		return nil, http.OutcomeOK, errors.Wrap(err, "encoding request")
	}

	rawResp, err := c.Exchange(ctx, req, raw)
	if err != nil {
		return nil, http.OutcomeOK, err
	}

	parseOpts := c.opts.Receive.Parse
	parseOpts.Strict = false

	resp, _, err := http.ParseResponse(rawResp, parseOpts)
	if err != nil {
		return nil, http.OutcomeOK, errors.Wrap(err, "parsing response")
	}

	if c.opts.Redirect.Follow {
		policy := c.opts.Redirect.Policy
		policy.EncodeOptions = c.opts.Send.Encode
		policy.ParseOptions = parseOpts

		if resp, err = policy.Follow(ctx, c, req, resp); err != nil {
			return nil, http.OutcomeOK, errors.Wrap(err, "following redirect")
		}
	}

	if !c.opts.Receive.Parse.Strict {
		return resp, http.OutcomeOK, nil
	}

	switch {
	case resp.StatusCode >= 400:
		return nil, http.OutcomeOK, http.NewStatusError(resp)
	case resp.StatusCode >= 300:
		return resp, http.OutcomeContinuation, nil
	}

	return resp, http.OutcomeOK, nil
}

// Exchange writes raw to the server of req and reads everything the server sends until it closes.
// It satisfies [redirect.Exchanger].
func (c *Client) Exchange(ctx context.Context, req http.Request, raw []byte) ([]byte, error) {
	logger := c.logger.With().
		Str("exchange", uuid.NewString()).
		Str("method", req.Method.String()).
		Str("host", req.Host).
		Str("target", req.Target).
		Logger()
	start := c.clock.Now()

	conn, cancel, err := c.dial(ctx, req.Scheme, req.Host)
	if err != nil {
		logger.Error().Stack().Err(err).Msg("dial failed")
		return nil, err
	}
	defer cancel()
	defer conn.Close()

	if _, err := iolib.WriteFull(conn, raw); err != nil {
		err = c.ctxErr(ctx, errors.Wrap(err, "writing request"))
		logger.Error().Stack().Err(err).Msg("write failed")
		return nil, err
	}

	rawResp, err := iolib.ReadAllLimit(closedAsEOF{conn}, c.opts.Receive.MaxResponseSize)
	if err != nil {
		err = c.ctxErr(ctx, errors.Wrap(err, "reading response"))
		logger.Error().Stack().Err(err).Int("received", len(rawResp)).Msg("read failed")
		return nil, err
	}

	logger.Debug().
		Int("sent", len(raw)).
		Int("received", len(rawResp)).
		Dur("elapsed", c.clock.Since(start)).
		Msg("exchange done")

	return rawResp, nil
}

// Dial opens a WebSocket connection to rawURL, a ws or wss URI.
// The handshake is returned along, carrying the selected subprotocol.
func (c *Client) Dial(ctx context.Context, rawURL string) (*websocket.Conn, *websocket.Handshake, error) {
	u, err := uri.Parse(rawURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing url")
	}
	if u.Authority == nil || u.Authority.Host == "" {
		return nil, nil, errors.Errorf("url %q has no host", rawURL)
	}

	logger := c.logger.With().
		Str("exchange", uuid.NewString()).
		Str("url", rawURL).
		Logger()

	raw, hs, err := websocket.NewHandshake(u.Authority.HostPort(), u.RequestTarget(), c.opts.WebSocket.Handshake)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building handshake")
	}

	conn, cancel, err := c.dial(ctx, u.Scheme, u.Authority.HostPort())
	if err != nil {
		logger.Error().Stack().Err(err).Msg("dial failed")
		return nil, nil, err
	}
	defer cancel()

	ws, err := c.handshake(ctx, conn, raw, hs)
	if err != nil {
		conn.Close()
		logger.Error().Stack().Err(err).Str("state", hs.State().String()).Msg("handshake failed")
		return nil, nil, err
	}

	logger.Debug().Str("protocol", hs.Protocol).Msg("websocket opened")
	return ws, hs, nil
}

func (c *Client) handshake(ctx context.Context, conn transport.Conn, raw []byte, hs *websocket.Handshake) (*websocket.Conn, error) {
	if _, err := iolib.WriteFull(conn, raw); err != nil {
		return nil, c.ctxErr(ctx, errors.Wrap(err, "writing handshake"))
	}

	r := iolib.NewUntilReader(closedAsEOF{conn})
	head, err := r.ReadUntilLimit(rule.HeaderTerminator, c.opts.WebSocket.MaxHandshakeSize)
	if err != nil {
		return nil, c.ctxErr(ctx, errors.Wrap(err, "reading handshake response"))
	}

	if err := hs.Validate(head); err != nil {
		return nil, err
	}

	// The exchange deadline does not apply to the upgraded stream.
	conn.SetReadDeadLine(time.Time{})
	conn.SetWriteDeadLine(time.Time{})

	// Frames the server sent right after the response stay buffered in r.
	return websocket.NewConn(r, conn, c.opts.WebSocket.MaxPayload), nil
}

// dial connects to the server of host, and arranges for the exchange timeout and ctx to cut it.
// cancel must be called once the exchange is over.
func (c *Client) dial(ctx context.Context, scheme, host string) (transport.Conn, func(), error) {
	addr, err := dialAddr(scheme, host)
	if err != nil {
		return nil, nil, err
	}

	cancelTimeout := func() {}
	if timeout := c.opts.Timeout.Exchange; timeout > 0 {
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
	}

	conn, err := c.dialer.Dial(ctx, addr)
	if err != nil {
		cancelTimeout()
		return nil, nil, errors.Wrapf(err, "dialing %s", addr)
	}

	if timeout := c.opts.Timeout.Exchange; timeout > 0 {
		deadline := c.clock.Now().Add(timeout)
		conn.SetReadDeadLine(deadline)
		conn.SetWriteDeadLine(deadline)
	}

	// Cancelling ctx expires the deadlines, which unblocks pending I/O.
	stop := context.AfterFunc(ctx, func() {
		expired := c.clock.Now().Add(-time.Second)
		conn.SetReadDeadLine(expired)
		conn.SetWriteDeadLine(expired)
	})

	return conn, func() { stop(); cancelTimeout() }, nil
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, transport.ErrDeadLineExceeded) {
		return errors.Wrap(ctxErr, err.Error())
	}
	return err
}

// dialAddr returns "host:port" for host, filling in the default port of scheme.
func dialAddr(scheme, host string) (string, error) {
	host, err := http.ASCIIHost(host)
	if err != nil {
		return "", err
	}

	auth, err := uri.ParseAuthority(host)
	if err != nil {
		return "", errors.Wrapf(err, "parsing host %q", host)
	}

	port := auth.Port
	if port == "" {
		p, ok := http.DefaultPort(scheme)
		if !ok {
			return "", errors.Errorf("no default port for scheme %q", scheme)
		}
		port = p
	}

	// JoinHostPort brackets IPv6 literals again.
	return net.JoinHostPort(strings.Trim(auth.Host, "[]"), port), nil
}

// closedAsEOF ends reads at the peer's close.
type closedAsEOF struct {
	transport.Conn
}

func (r closedAsEOF) Read(p []byte) (int, error) {
	n, err := r.Conn.Read(p)
	if errors.Is(err, transport.ErrConnClosed) {
		err = io.EOF
	}
	return n, err
}
