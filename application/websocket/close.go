package websocket

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// CloseCode is the status code carried by a close frame.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6455#section-7.4.1
type CloseCode uint16

const (
	CloseNormalClosure      CloseCode = 1000
	CloseGoingAway          CloseCode = 1001
	CloseProtocolError      CloseCode = 1002
	CloseUnsupportedData    CloseCode = 1003
	CloseNoStatusReceived   CloseCode = 1005
	CloseAbnormalClosure    CloseCode = 1006
	CloseInvalidPayloadData CloseCode = 1007
	ClosePolicyViolation    CloseCode = 1008
	CloseMessageTooBig      CloseCode = 1009
	CloseMandatoryExtension CloseCode = 1010
	CloseInternalError      CloseCode = 1011
	CloseTLSHandshake       CloseCode = 1015
)

func (c CloseCode) String() string {
	switch c {
	case CloseNormalClosure:
		return "normal closure"
	case CloseGoingAway:
		return "going away"
	case CloseProtocolError:
		return "protocol error"
	case CloseUnsupportedData:
		return "unsupported data"
	case CloseNoStatusReceived:
		return "no status received"
	case CloseAbnormalClosure:
		return "abnormal closure"
	case CloseInvalidPayloadData:
		return "invalid payload data"
	case ClosePolicyViolation:
		return "policy violation"
	case CloseMessageTooBig:
		return "message too big"
	case CloseMandatoryExtension:
		return "mandatory extension"
	case CloseInternalError:
		return "internal error"
	case CloseTLSHandshake:
		return "TLS handshake"
	}
	return fmt.Sprintf("close code %d", uint16(c))
}

// IsSendable reports whether c may appear in a close frame on the wire.
// 1005, 1006 and 1015 are reserved for reporting locally.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc6455#section-7.4.2
func (c CloseCode) IsSendable() bool {
	switch {
	case c == CloseNoStatusReceived, c == CloseAbnormalClosure, c == CloseTLSHandshake:
		return false
	case c >= 1000 && c <= 1011:
		return c != 1004
	case c >= 3000 && c <= 4999:
		return true
	}
	return false
}

// The close reason shares the 125 byte control payload with the 2 byte code.
const maxCloseReason = maxControlPayload - 2

// EncodeClosePayload builds the payload of a close frame.
func EncodeClosePayload(code CloseCode, reason string) ([]byte, error) {
	if !code.IsSendable() {
		return nil, errors.Errorf("close code %d cannot be sent", uint16(code))
	}
	if len(reason) > maxCloseReason {
		return nil, errors.Errorf("close reason is too long: %d", len(reason))
	}
	if !utf8.ValidString(reason) {
		return nil, errors.New("close reason is not valid UTF-8")
	}

	payload := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(reason)), uint16(code))
	return append(payload, reason...), nil
}

// ParseClosePayload parses the payload of a close frame.
// An empty payload reports [CloseNoStatusReceived].
func ParseClosePayload(payload []byte) (CloseCode, string, error) {
	switch {
	case len(payload) == 0:
		return CloseNoStatusReceived, "", nil
	case len(payload) == 1:
		return 0, "", errors.Wrap(ErrImproperFrame, "close payload of a single byte")
	}

	code := CloseCode(binary.BigEndian.Uint16(payload))
	if !code.IsSendable() {
		return 0, "", errors.Wrapf(ErrImproperFrame, "close code %d is not allowed on the wire", uint16(code))
	}

	reason := payload[2:]
	if !utf8.Valid(reason) {
		return 0, "", errors.Wrap(ErrImproperFrame, "close reason is not valid UTF-8")
	}

	return code, string(reason), nil
}

// CloseError is returned when the peer closes the connection.
type CloseError struct {
	Code   CloseCode
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed: %d (%s)", uint16(e.Code), e.Code)
	}
	return fmt.Sprintf("websocket closed: %d (%s): %s", uint16(e.Code), e.Code, e.Reason)
}
