package websocket

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"httpwire/application/http"

	"github.com/pkg/errors"
)

// Reference: https://datatracker.ietf.org/doc/html/rfc6455#section-1.3
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const Version = "13"

// AcceptKey computes the Sec-WebSocket-Accept value expected for key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

type State uint8

const (
	StatePending State = iota
	StateAccepted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

var (
	ErrHandshakeFailed    = errors.New("websocket handshake failed")
	ErrImproperStatusCode = errors.New("improper websocket handshake status code")
	ErrHandshakeDone      = errors.New("websocket handshake is already validated")
)

// HandshakeError names the response field which failed validation.
type HandshakeError struct {
	Header string
	Reason string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrHandshakeFailed, e.Header, e.Reason)
}

func (e *HandshakeError) Unwrap() error { return ErrHandshakeFailed }

type StatusCodeError struct {
	Code         uint
	ReasonPhrase string
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("%s: got %d %s, want 101", ErrImproperStatusCode, e.Code, e.ReasonPhrase)
}

func (e *StatusCodeError) Unwrap() error { return ErrImproperStatusCode }

type HandshakeOptions struct {
	// Protocols are offered in Sec-WebSocket-Protocol, in order of preference.
	Protocols []string

	// Headers are sent along with the handshake fields.
	Headers http.Headers

	EncodeOptions http.EncodeOptions

	// Rand supplies the nonce. nil means crypto/rand.
	Rand io.Reader
}

var DefaultHandshakeOptions = HandshakeOptions{
	EncodeOptions: http.DefaultEncodeOptions,
}

// Handshake is the client side of an opening handshake.
// It is validated once, and its state never goes back to pending.
type Handshake struct {
	Key       string
	Accept    string
	Protocols []string

	// Protocol is the subprotocol selected by the server.
	Protocol string
	Response *http.Response

	state State
}

func (h *Handshake) State() State { return h.state }

// NewHandshake builds the upgrade request for target on host.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6455#section-4.1
func NewHandshake(host, target string, opts HandshakeOptions) ([]byte, *Handshake, error) {
	random := opts.Rand
	if random == nil {
		random = rand.Reader
	}

	nonce := make([]byte, 16)
	if _, err := io.ReadFull(random, nonce); err != nil {
		return nil, nil, errors.Wrap(err, "generating nonce")
	}
	key := base64.StdEncoding.EncodeToString(nonce)

	req := http.NewRequest(http.MethodGet, host, target)
	req.Headers = opts.Headers.Clone()
	req = req.
		WithHeader("Upgrade", "websocket").
		WithHeader("Connection", "Upgrade").
		WithHeader("Sec-WebSocket-Version", Version).
		WithHeader("Sec-WebSocket-Key", key)
	if len(opts.Protocols) > 0 {
		req = req.WithHeader("Sec-WebSocket-Protocol", strings.Join(opts.Protocols, ", "))
	}

	raw, err := http.EncodeRequest(req, opts.EncodeOptions)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encoding upgrade request")
	}

	h := &Handshake{
		Key:       key,
		Accept:    AcceptKey(key),
		Protocols: append([]string(nil), opts.Protocols...),
		state:     StatePending,
	}

	return raw, h, nil
}

// Validate checks the server's response to the upgrade request.
// raw may be followed by frames, which are ignored.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2
func (h *Handshake) Validate(raw []byte) error {
	if h.state != StatePending {
		return ErrHandshakeDone
	}

	if err := h.validate(raw); err != nil {
		h.state = StateRejected
		return err
	}

	h.state = StateAccepted
	return nil
}

func (h *Handshake) validate(raw []byte) error {
	resp, _, err := http.ParseResponse(raw, http.ParseOptions{})
	if err != nil {
		return errors.Wrap(err, "parsing handshake response")
	}
	h.Response = resp

	if resp.StatusCode != 101 {
		return &StatusCodeError{Code: resp.StatusCode, ReasonPhrase: resp.ReasonPhrase}
	}

	upgrade, ok := resp.Headers.Get("Upgrade")
	if !ok {
		return &HandshakeError{Header: "Upgrade", Reason: "missing"}
	}
	if !strings.EqualFold(strings.TrimSpace(upgrade), "websocket") {
		return &HandshakeError{Header: "Upgrade", Reason: fmt.Sprintf("got %q, want websocket", upgrade)}
	}

	if !resp.Headers.Has("Connection") {
		return &HandshakeError{Header: "Connection", Reason: "missing"}
	}
	if !resp.Headers.ContainsToken("Connection", "upgrade") {
		return &HandshakeError{Header: "Connection", Reason: "upgrade token not found"}
	}

	accept, ok := resp.Headers.Get("Sec-WebSocket-Accept")
	if !ok {
		return &HandshakeError{Header: "Sec-WebSocket-Accept", Reason: "missing"}
	}
	if strings.TrimSpace(accept) != h.Accept {
		return &HandshakeError{Header: "Sec-WebSocket-Accept", Reason: "does not match the key"}
	}

	if protocol, ok := resp.Headers.Get("Sec-WebSocket-Protocol"); ok {
		protocol = strings.TrimSpace(protocol)
		if len(h.Protocols) == 0 {
			return &HandshakeError{Header: "Sec-WebSocket-Protocol", Reason: "no subprotocol was offered"}
		}
		if !h.offered(protocol) {
			return &HandshakeError{Header: "Sec-WebSocket-Protocol", Reason: fmt.Sprintf("%q was not offered", protocol)}
		}
		h.Protocol = protocol
	}

	return nil
}

func (h *Handshake) offered(protocol string) bool {
	for _, p := range h.Protocols {
		if p == protocol {
			return true
		}
	}
	return false
}
