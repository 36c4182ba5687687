package websocket

import (
	"io"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// DefaultMaxPayload bounds a single frame, and a whole message, read by [Conn].
const DefaultMaxPayload = 16 << 20

// Conn exchanges messages over an upgraded stream.
// Reads are expected from one goroutine. Writes may come from several.
type Conn struct {
	fr         *FrameReader
	wc         io.WriteCloser
	maxPayload uint64

	writeMu   sync.Mutex
	closeSent bool
}

// NewConn creates a connection reading frames from r and writing them to wc.
// r usually carries bytes already buffered past the handshake response.
// A positive maxPayload bounds every frame and every joined message.
func NewConn(r io.Reader, wc io.WriteCloser, maxPayload uint64) *Conn {
	return &Conn{
		fr:         NewFrameReader(r, maxPayload),
		wc:         wc,
		maxPayload: maxPayload,
	}
}

var ErrCloseSent = errors.New("close frame is already sent")

func (c *Conn) ReadFrame() (Frame, error) { return c.fr.ReadFrame() }

func (c *Conn) WriteFrame(opcode Opcode, payload []byte, final bool) error {
	raw, err := EncodeFrame(opcode, payload, final)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closeSent {
		return ErrCloseSent
	}
	if opcode == OpcodeClose {
		c.closeSent = true
	}

	if _, err := c.wc.Write(raw); err != nil {
		return errors.Wrapf(err, "writing %s frame", opcode)
	}
	return nil
}

func (c *Conn) WriteMessage(opcode Opcode, payload []byte) error {
	if opcode != OpcodeText && opcode != OpcodeBinary {
		return errors.Errorf("%s is not a data opcode", opcode)
	}
	return c.WriteFrame(opcode, payload, true)
}

func (c *Conn) Ping(payload []byte) error { return c.WriteFrame(OpcodePing, payload, true) }

// ReadMessage reads the next data message, joining its fragments.
// Pings are answered, and pongs are dropped.
// A close frame from the peer is echoed and reported as [*CloseError].
func (c *Conn) ReadMessage() (Opcode, []byte, error) {
	var (
		opcode  Opcode
		message []byte
		started bool
	)

	for {
		f, err := c.fr.ReadFrame()
		if err != nil {
			return 0, nil, err
		}

		switch f.Opcode {
		case OpcodePing:
			if err := c.WriteFrame(OpcodePong, f.Payload, true); err != nil && !errors.Is(err, ErrCloseSent) {
				return 0, nil, err
			}
			continue
		case OpcodePong:
			continue
		case OpcodeClose:
			return 0, nil, c.onClose(f.Payload)
		case OpcodeContinuation:
			if !started {
				return 0, nil, errors.Wrap(ErrImproperFrame, "continuation frame without a message")
			}
		default:
			if started {
				return 0, nil, errors.Wrapf(ErrImproperFrame, "%s frame inside a fragmented message", f.Opcode)
			}
			opcode, started = f.Opcode, true
		}

		if size := uint64(len(message)) + uint64(len(f.Payload)); c.maxPayload > 0 && size > c.maxPayload {
			return 0, nil, errors.Wrapf(ErrFrameTooLarge, "message of %d bytes exceeds %d", size, c.maxPayload)
		}
		message = append(message, f.Payload...)
		if !f.Final {
			continue
		}

		if opcode == OpcodeText && !utf8.Valid(message) {
			return 0, nil, errors.Wrap(ErrImproperFrame, "text message is not valid UTF-8")
		}
		if message == nil {
			message = []byte{}
		}
		return opcode, message, nil
	}
}

func (c *Conn) onClose(payload []byte) error {
	code, reason, err := ParseClosePayload(payload)
	if err != nil {
		return err
	}

	var reply []byte
	if code.IsSendable() {
		reply, _ = EncodeClosePayload(code, "")
	}
	if err := c.WriteFrame(OpcodeClose, reply, true); err != nil && !errors.Is(err, ErrCloseSent) {
		return err
	}

	return &CloseError{Code: code, Reason: reason}
}

// Close sends a close frame, unless one was already sent, and closes the stream.
func (c *Conn) Close(code CloseCode, reason string) error {
	payload, err := EncodeClosePayload(code, reason)
	if err != nil {
		return err
	}

	werr := c.WriteFrame(OpcodeClose, payload, true)
	if errors.Is(werr, ErrCloseSent) {
		werr = nil
	}

	if err := c.wc.Close(); err != nil {
		return errors.Wrap(err, "closing stream")
	}
	return werr
}
