package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

type Opcode uint8

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

func (o Opcode) IsValid() bool {
	switch o {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
		return true
	}
	return false
}

// IsControl reports whether o is a control opcode.
// Reference: https://datatracker.ietf.org/doc/html/rfc6455#section-5.5
func (o Opcode) IsControl() bool { return o&0x8 != 0 }

func (o Opcode) String() string {
	switch o {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	}
	return "unknown"
}

// Frame is a decoded frame. Payload is always unmasked.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6455#section-5.2
type Frame struct {
	Final      bool
	Opcode     Opcode
	Masked     bool
	Length     uint64
	MaskingKey [4]byte
	Payload    []byte
}

var (
	ErrImproperFrame   = errors.New("frame is improper")
	ErrIncompleteFrame = errors.New("frame is incomplete")
	ErrFrameTooLarge   = errors.New("frame payload exceeds limit")
)

const (
	finBit  = 0x80
	rsvBits = 0x70
	opBits  = 0x0F
	maskBit = 0x80
	lenBits = 0x7F

	len16 = 126
	len64 = 127

	maxControlPayload = 125
	maxHeaderSize     = 14
)

// headerSize returns the size of the frame header, determined by its first two bytes.
func headerSize(b1 byte) int {
	size := 2
	switch b1 & lenBits {
	case len16:
		size += 2
	case len64:
		size += 8
	}
	if b1&maskBit != 0 {
		size += 4
	}
	return size
}

// DecodeFrame decodes the frame at the start of b and returns it with the number of bytes it took.
// The payload is copied, so b can be reused.
func DecodeFrame(b []byte) (Frame, int, error) {
	if len(b) < 2 {
		return Frame{}, 0, ErrIncompleteFrame
	}

	b0, b1 := b[0], b[1]
	if b0&rsvBits != 0 {
		// No extension is negotiated, so RSV bits must be zero.
		return Frame{}, 0, errors.Wrapf(ErrImproperFrame, "reserved bits set: %#02x", b0&rsvBits)
	}

	f := Frame{
		Final:  b0&finBit != 0,
		Opcode: Opcode(b0 & opBits),
		Masked: b1&maskBit != 0,
	}
	if !f.Opcode.IsValid() {
		return Frame{}, 0, errors.Wrapf(ErrImproperFrame, "unknown opcode %#x", uint8(f.Opcode))
	}

	hdrSize := headerSize(b1)
	if len(b) < hdrSize {
		return Frame{}, 0, ErrIncompleteFrame
	}

	pos := 2
	switch indicator := b1 & lenBits; indicator {
	case len16:
		f.Length = uint64(binary.BigEndian.Uint16(b[pos:]))
		pos += 2
	case len64:
		f.Length = binary.BigEndian.Uint64(b[pos:])
		pos += 8
		if f.Length>>63 != 0 {
			return Frame{}, 0, errors.Wrap(ErrImproperFrame, "most significant bit of 64-bit length is set")
		}
	default:
		f.Length = uint64(indicator)
	}

	if f.Opcode.IsControl() {
		if !f.Final {
			return Frame{}, 0, errors.Wrap(ErrImproperFrame, "control frame is fragmented")
		}
		if f.Length > maxControlPayload {
			return Frame{}, 0, errors.Wrapf(ErrImproperFrame, "control frame payload too long: %d", f.Length)
		}
	}

	if f.Masked {
		copy(f.MaskingKey[:], b[pos:pos+4])
		pos += 4
	}

	if uint64(len(b)-pos) < f.Length {
		return Frame{}, 0, ErrIncompleteFrame
	}

	end := pos + int(f.Length)
	f.Payload = make([]byte, f.Length)
	copy(f.Payload, b[pos:end])
	if f.Masked {
		mask(f.MaskingKey, f.Payload)
	}

	return f, end, nil
}

// EncodeFrame encodes a client frame. It is always masked with a fresh key.
func EncodeFrame(opcode Opcode, payload []byte, final bool) ([]byte, error) {
	var key [4]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, errors.Wrap(err, "generating masking key")
	}

	return EncodeFrameWith(Frame{
		Final:      final,
		Opcode:     opcode,
		Masked:     true,
		MaskingKey: key,
		Payload:    payload,
	})
}

// EncodeFrameWith encodes f as given. f.Length is ignored in favor of the payload length.
// f.Payload is not modified.
func EncodeFrameWith(f Frame) ([]byte, error) {
	if !f.Opcode.IsValid() {
		return nil, errors.Wrapf(ErrImproperFrame, "unknown opcode %#x", uint8(f.Opcode))
	}

	length := len(f.Payload)
	if f.Opcode.IsControl() {
		if !f.Final {
			return nil, errors.Wrap(ErrImproperFrame, "control frame is fragmented")
		}
		if length > maxControlPayload {
			return nil, errors.Wrapf(ErrImproperFrame, "control frame payload too long: %d", length)
		}
	}

	out := make([]byte, 0, maxHeaderSize+length)

	b0 := byte(f.Opcode)
	if f.Final {
		b0 |= finBit
	}

	var b1 byte
	if f.Masked {
		b1 |= maskBit
	}

	switch {
	case length <= maxControlPayload:
		out = append(out, b0, b1|byte(length))
	case length <= 0xFFFF:
		out = append(out, b0, b1|len16)
		out = binary.BigEndian.AppendUint16(out, uint16(length))
	default:
		out = append(out, b0, b1|len64)
		out = binary.BigEndian.AppendUint64(out, uint64(length))
	}

	if !f.Masked {
		return append(out, f.Payload...), nil
	}

	out = append(out, f.MaskingKey[:]...)
	start := len(out)
	out = append(out, f.Payload...)
	mask(f.MaskingKey, out[start:])

	return out, nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc6455#section-5.3
func mask(key [4]byte, b []byte) {
	for i := range b {
		b[i] ^= key[i%4]
	}
}

// FrameReader reads frames one at a time from a byte stream.
type FrameReader struct {
	r          io.Reader
	maxPayload uint64
}

// NewFrameReader creates a reader refusing payloads longer than maxPayload.
// Zero means no limit.
func NewFrameReader(r io.Reader, maxPayload uint64) *FrameReader {
	return &FrameReader{r: r, maxPayload: maxPayload}
}

// ReadFrame reads the next frame.
// It returns [io.EOF] only when the stream ends between frames.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	head := make([]byte, 2, maxHeaderSize)
	if _, err := io.ReadFull(fr.r, head); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, errors.Wrap(err, "reading frame header")
		}
		return Frame{}, err
	}

	head = head[:headerSize(head[1])]
	if _, err := io.ReadFull(fr.r, head[2:]); err != nil {
		return Frame{}, errors.Wrap(noEOF(err), "reading frame header")
	}

	var length uint64
	switch head[1] & lenBits {
	case len16:
		length = uint64(binary.BigEndian.Uint16(head[2:]))
	case len64:
		length = binary.BigEndian.Uint64(head[2:])
	default:
		length = uint64(head[1] & lenBits)
	}

	if fr.maxPayload > 0 && length > fr.maxPayload {
		return Frame{}, errors.Wrapf(ErrFrameTooLarge, "%d > %d", length, fr.maxPayload)
	}
	if length>>63 != 0 {
		return Frame{}, errors.Wrap(ErrImproperFrame, "most significant bit of 64-bit length is set")
	}
	if length > math.MaxInt-maxHeaderSize {
		return Frame{}, errors.Wrapf(ErrFrameTooLarge, "%d cannot be buffered", length)
	}

	// Validate the header before buffering the payload.
	if _, _, err := DecodeFrame(head); err != nil && !errors.Is(err, ErrIncompleteFrame) {
		return Frame{}, err
	}

	buf := make([]byte, len(head)+int(length))
	copy(buf, head)
	if _, err := io.ReadFull(fr.r, buf[len(head):]); err != nil {
		return Frame{}, errors.Wrap(noEOF(err), "reading frame payload")
	}

	f, _, err := DecodeFrame(buf)
	if err != nil {
		return Frame{}, err
	}

	return f, nil
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
