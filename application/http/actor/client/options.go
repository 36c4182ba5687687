package client

import (
	"time"

	"httpwire/application/http"
	"httpwire/application/http/redirect"
	"httpwire/application/websocket"
)

type Options struct {
	Send      SendOptions
	Receive   ReceiveOptions
	Redirect  RedirectOptions
	Timeout   TimeoutOptions
	WebSocket WebSocketOptions
}

type SendOptions struct {
	Encode http.EncodeOptions
}

type ReceiveOptions struct {
	Parse http.ParseOptions

	// MaxResponseSize bounds the bytes read for one response. Zero means no limit.
	MaxResponseSize uint
}

type RedirectOptions struct {
	Follow bool
	Policy redirect.Policy
}

type TimeoutOptions struct {
	// Exchange bounds a whole exchange, from dialing to the last byte of the response.
	// Zero means no timeout.
	Exchange time.Duration
}

type WebSocketOptions struct {
	Handshake websocket.HandshakeOptions

	// MaxHandshakeSize bounds the handshake response header.
	MaxHandshakeSize uint
	MaxPayload       uint64
}

var DefaultOptions = Options{
	Send:    SendOptions{Encode: http.DefaultEncodeOptions},
	Receive: ReceiveOptions{Parse: http.DefaultParseOptions, MaxResponseSize: 64 << 20},
	Redirect: RedirectOptions{
		Follow: true,
		Policy: redirect.DefaultPolicy,
	},
	Timeout: TimeoutOptions{Exchange: 30 * time.Second},
	WebSocket: WebSocketOptions{
		Handshake:        websocket.DefaultHandshakeOptions,
		MaxHandshakeSize: 64 << 10,
		MaxPayload:       websocket.DefaultMaxPayload,
	},
}
