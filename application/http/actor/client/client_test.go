package client

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"httpwire/application/http"
	"httpwire/application/util/rule"
	"httpwire/application/websocket"
	iolib "httpwire/lib/io"
	"httpwire/transport"
	"httpwire/transport/pipe"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// handleFunc serves one connection, given the request head already read from it.
type handleFunc func(conn transport.Conn, r *iolib.UntilReader, head []byte)

func respond(raw string) handleFunc {
	return func(conn transport.Conn, _ *iolib.UntilReader, _ []byte) {
		iolib.WriteFull(conn, []byte(raw))
	}
}

type ClientTestSuite struct {
	suite.Suite

	network *pipe.Network
	clock   *clock.Mock
	logs    bytes.Buffer

	mu       sync.Mutex
	received []string

	wg        sync.WaitGroup
	listeners []*pipe.Listener
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func (s *ClientTestSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.network = pipe.NewNetwork(s.clock, 0)
	s.logs.Reset()
	s.received = nil
	s.listeners = nil
}

func (s *ClientTestSuite) TearDownTest() {
	for _, l := range s.listeners {
		s.NoError(l.Close())
	}
	s.wg.Wait()
}

func (s *ClientTestSuite) newClient(opts Options) *Client {
	logger := zerolog.New(&s.logs).Level(zerolog.DebugLevel)
	return New(s.network, &logger, s.clock, opts)
}

// serve answers every connection made to name with handle.
func (s *ClientTestSuite) serve(name string, handle handleFunc) {
	lis, err := s.network.Listen(name)
	s.Require().NoError(err)
	s.listeners = append(s.listeners, lis)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := lis.Accept(context.Background())
			if err != nil {
				return
			}

			r := iolib.NewUntilReader(conn)
			head, err := r.ReadUntil(rule.HeaderTerminator)
			if err == nil {
				s.mu.Lock()
				s.received = append(s.received, string(head))
				s.mu.Unlock()

				handle(conn, r, head)
			}
			conn.Close()
		}
	}()
}

func (s *ClientTestSuite) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func (s *ClientTestSuite) TestDo() {
	s.serve("example.com:80", respond("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello"))

	c := s.newClient(DefaultOptions)
	resp, outcome, err := c.Do(context.Background(), http.NewRequest(http.MethodGet, "example.com", "/greeting"))
	s.Require().NoError(err)
	s.Equal(http.OutcomeOK, outcome)

	s.Equal(uint(200), resp.StatusCode)
	s.Equal([]byte("hello"), resp.Body)

	reqs := s.requests()
	s.Require().Len(reqs, 1)
	s.Equal(""+
		"GET /greeting HTTP/1.1\r\n"+
		"User-Agent: httpwire/0.1.0\r\n"+
		"Accept: */*\r\n"+
		"Host: example.com\r\n"+
		"Connection: close\r\n"+
		"\r\n",
		reqs[0],
	)

	s.Contains(s.logs.String(), `"message":"exchange done"`)
	s.Contains(s.logs.String(), `"exchange":"`)
	s.Contains(s.logs.String(), `"target":"/greeting"`)
}

func (s *ClientTestSuite) TestDoExplicitPort() {
	s.serve("127.0.0.1:8080", respond("HTTP/1.1 204 No Content\r\n\r\n"))

	c := s.newClient(DefaultOptions)
	resp, _, err := c.Do(context.Background(), http.NewRequest(http.MethodDelete, "127.0.0.1:8080", "/items/1"))
	s.Require().NoError(err)
	s.Equal(uint(204), resp.StatusCode)
	s.Empty(resp.Body)
}

func (s *ClientTestSuite) TestDoRedirect() {
	s.serve("example.com:80", respond("HTTP/1.1 303 See Other\r\nLocation: http://other.example:8080/done\r\n\r\n"))
	s.serve("other.example:8080", respond("HTTP/1.1 200 OK\r\n\r\nfinal"))

	c := s.newClient(DefaultOptions)
	req := http.NewRequest(http.MethodPost, "example.com", "/submit").WithBody([]byte("a=1"))

	resp, _, err := c.Do(context.Background(), req)
	s.Require().NoError(err)
	s.Equal(uint(200), resp.StatusCode)
	s.Equal([]byte("final"), resp.Body)

	reqs := s.requests()
	s.Require().Len(reqs, 2)
	s.True(strings.HasPrefix(reqs[0], "POST /submit HTTP/1.1\r\n"))
	s.True(strings.HasPrefix(reqs[1], "GET /done HTTP/1.1\r\n"))
	s.Contains(reqs[1], "Host: other.example:8080\r\n")
	s.NotContains(reqs[1], "Content-Length")
}

func (s *ClientTestSuite) TestDoNoFollow() {
	s.serve("example.com:80", respond("HTTP/1.1 301 Moved Permanently\r\nLocation: /elsewhere\r\n\r\n"))

	opts := DefaultOptions
	opts.Redirect.Follow = false

	resp, _, err := s.newClient(opts).Do(context.Background(), http.NewRequest(http.MethodGet, "example.com", "/"))
	s.Require().NoError(err)
	s.Equal(uint(301), resp.StatusCode)
	s.Len(s.requests(), 1)
}

func (s *ClientTestSuite) TestDoStrictNoFollow() {
	s.serve("example.com:80", respond("HTTP/1.1 301 Moved Permanently\r\nLocation: /elsewhere\r\n\r\n"))

	opts := DefaultOptions
	opts.Redirect.Follow = false
	opts.Receive.Parse.Strict = true

	resp, outcome, err := s.newClient(opts).Do(context.Background(), http.NewRequest(http.MethodGet, "example.com", "/"))
	s.Require().NoError(err)
	s.Equal(http.OutcomeContinuation, outcome)
	s.Equal(uint(301), resp.StatusCode)
}

func (s *ClientTestSuite) TestDoStrict() {
	s.serve("example.com:80", respond("HTTP/1.1 404 Nope\r\n\r\n"))

	opts := DefaultOptions
	opts.Receive.Parse.Strict = true

	resp, _, err := s.newClient(opts).Do(context.Background(), http.NewRequest(http.MethodGet, "example.com", "/missing"))
	s.Nil(resp)

	var serr *http.StatusError
	s.Require().True(errors.As(err, &serr))
	s.Equal(uint(404), serr.Status.Code)
	s.Equal("Not Found", serr.Status.ReasonPhrase)
	s.Equal("Nope", serr.Response.ReasonPhrase)
}

func (s *ClientTestSuite) TestDoUnreachable() {
	resp, _, err := s.newClient(DefaultOptions).Do(context.Background(), http.NewRequest(http.MethodGet, "example.com", "/"))
	s.Nil(resp)
	s.ErrorIs(err, transport.ErrNetUnreachable)
	s.Contains(s.logs.String(), `"message":"dial failed"`)
}

func (s *ClientTestSuite) TestDoResponseTooLarge() {
	s.serve("example.com:80", respond("HTTP/1.1 200 OK\r\n\r\n"+strings.Repeat("x", 100)))

	opts := DefaultOptions
	opts.Receive.MaxResponseSize = 32

	resp, _, err := s.newClient(opts).Do(context.Background(), http.NewRequest(http.MethodGet, "example.com", "/"))
	s.Nil(resp)
	s.ErrorIs(err, iolib.ErrTooLarge)
}

func (s *ClientTestSuite) TestDoInvalidRequest() {
	resp, _, err := s.newClient(DefaultOptions).Do(context.Background(), http.NewRequest(http.MethodGet, "example.com", "relative"))
	s.Nil(resp)
	s.ErrorIs(err, http.ErrEncoding)
}

func (s *ClientTestSuite) TestDoCanceled() {
	release := make(chan struct{})
	defer close(release)

	s.serve("example.com:80", func(transport.Conn, *iolib.UntilReader, []byte) { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	resp, _, err := s.newClient(DefaultOptions).Do(ctx, http.NewRequest(http.MethodGet, "example.com", "/slow"))
	s.Nil(resp)
	s.ErrorIs(err, context.Canceled)
}

func acceptUpgrade(conn transport.Conn, head []byte) string {
	var key string
	for _, line := range strings.Split(string(head), "\r\n") {
		if v, ok := strings.CutPrefix(line, "Sec-WebSocket-Key: "); ok {
			key = v
		}
	}

	iolib.WriteFull(conn, []byte(""+
		"HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: "+websocket.AcceptKey(key)+"\r\n"+
		"\r\n"))
	return key
}

func serverFrame(opcode websocket.Opcode, payload []byte) []byte {
	raw, err := websocket.EncodeFrameWith(websocket.Frame{Final: true, Opcode: opcode, Payload: payload})
	if err != nil {
		panic(err)
	}
	return raw
}

func (s *ClientTestSuite) TestDial() {
	s.serve("chat.example:80", func(conn transport.Conn, r *iolib.UntilReader, head []byte) {
		acceptUpgrade(conn, head)
		iolib.WriteFull(conn, serverFrame(websocket.OpcodeText, []byte("welcome")))

		fr := websocket.NewFrameReader(r, 0)
		for {
			f, err := fr.ReadFrame()
			if err != nil {
				return
			}
			switch f.Opcode {
			case websocket.OpcodeClose:
				iolib.WriteFull(conn, serverFrame(websocket.OpcodeClose, f.Payload))
				return
			default:
				iolib.WriteFull(conn, serverFrame(f.Opcode, f.Payload))
			}
		}
	})

	ws, hs, err := s.newClient(DefaultOptions).Dial(context.Background(), "ws://chat.example/room?id=1")
	s.Require().NoError(err)
	s.Equal(websocket.StateAccepted, hs.State())

	reqs := s.requests()
	s.Require().Len(reqs, 1)
	s.True(strings.HasPrefix(reqs[0], "GET /room?id=1 HTTP/1.1\r\n"))
	s.Contains(reqs[0], "Host: chat.example\r\n")

	opcode, message, err := ws.ReadMessage()
	s.Require().NoError(err)
	s.Equal(websocket.OpcodeText, opcode)
	s.Equal([]byte("welcome"), message)

	s.Require().NoError(ws.WriteMessage(websocket.OpcodeBinary, []byte{1, 2, 3}))
	opcode, message, err = ws.ReadMessage()
	s.Require().NoError(err)
	s.Equal(websocket.OpcodeBinary, opcode)
	s.Equal([]byte{1, 2, 3}, message)

	s.NoError(ws.Close(websocket.CloseNormalClosure, "bye"))
	s.Contains(s.logs.String(), `"message":"websocket opened"`)
}

func (s *ClientTestSuite) TestDialRejected() {
	s.serve("chat.example:443", respond("HTTP/1.1 403 Forbidden\r\n\r\n"))

	ws, hs, err := s.newClient(DefaultOptions).Dial(context.Background(), "wss://chat.example/")
	s.Nil(ws)
	s.Nil(hs)
	s.ErrorIs(err, websocket.ErrImproperStatusCode)
	s.Contains(s.logs.String(), `"state":"rejected"`)
}

func (s *ClientTestSuite) TestDialBadAccept() {
	s.serve("chat.example:80", func(conn transport.Conn, _ *iolib.UntilReader, _ []byte) {
		acceptUpgrade(conn, []byte("Sec-WebSocket-Key: forged"))
	})

	_, _, err := s.newClient(DefaultOptions).Dial(context.Background(), "ws://chat.example/")
	var herr *websocket.HandshakeError
	s.Require().True(errors.As(err, &herr))
	s.Equal("Sec-WebSocket-Accept", herr.Header)
}

func (s *ClientTestSuite) TestDialInvalidURL() {
	_, _, err := s.newClient(DefaultOptions).Dial(context.Background(), "/no/host")
	s.Error(err)
}

func TestDialAddr(t *testing.T) {
	testcases := []struct {
		desc     string
		scheme   string
		host     string
		expected string
		wantErr  bool
	}{
		{desc: "default http port", scheme: "http", host: "example.com", expected: "example.com:80"},
		{desc: "default wss port", scheme: "wss", host: "example.com", expected: "example.com:443"},
		{desc: "explicit port", scheme: "https", host: "Example.COM:8443", expected: "example.com:8443"},
		{desc: "ipv6 literal", scheme: "http", host: "[::1]:8080", expected: "[::1]:8080"},
		{desc: "internationalized", scheme: "http", host: "bücher.example", expected: "xn--bcher-kva.example:80"},
		{desc: "unknown scheme", scheme: "ftp", host: "example.com", wantErr: true},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := dialAddr(tc.scheme, tc.host)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
