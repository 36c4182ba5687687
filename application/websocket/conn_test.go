package websocket

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	bytes.Buffer
	closed bool
}

func (rs *recordingStream) Close() error {
	rs.closed = true
	return nil
}

func (rs *recordingStream) frames(t *testing.T) []Frame {
	var frames []Frame
	b := rs.Bytes()
	for len(b) > 0 {
		f, n, err := DecodeFrame(b)
		require.NoError(t, err)
		require.True(t, f.Masked)
		frames = append(frames, f)
		b = b[n:]
	}
	return frames
}

func serverFrames(t *testing.T, frames ...Frame) *bytes.Reader {
	var buf bytes.Buffer
	for _, f := range frames {
		raw, err := EncodeFrameWith(f)
		require.NoError(t, err)
		buf.Write(raw)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestConnReadMessage(t *testing.T) {
	r := serverFrames(t,
		Frame{Opcode: OpcodeText, Payload: []byte("hel")},
		Frame{Final: true, Opcode: OpcodePing, Payload: []byte("are you there")},
		Frame{Final: true, Opcode: OpcodeContinuation, Payload: []byte("lo")},
		Frame{Final: true, Opcode: OpcodePong},
		Frame{Final: true, Opcode: OpcodeBinary},
	)
	var out recordingStream
	conn := NewConn(r, &out, DefaultMaxPayload)

	opcode, message, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, OpcodeText, opcode)
	assert.Equal(t, []byte("hello"), message)

	opcode, message, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, OpcodeBinary, opcode)
	assert.Equal(t, []byte{}, message)

	frames := out.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, OpcodePong, frames[0].Opcode)
	assert.Equal(t, []byte("are you there"), frames[0].Payload)
}

func TestConnReadMessageClose(t *testing.T) {
	payload, err := EncodeClosePayload(CloseGoingAway, "restarting")
	require.NoError(t, err)

	var out recordingStream
	conn := NewConn(serverFrames(t, Frame{Final: true, Opcode: OpcodeClose, Payload: payload}), &out, DefaultMaxPayload)

	_, _, err = conn.ReadMessage()
	var cerr *CloseError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CloseGoingAway, cerr.Code)
	assert.Equal(t, "restarting", cerr.Reason)

	require.NoError(t, conn.Close(CloseNormalClosure, ""))
	assert.True(t, out.closed)

	frames := out.frames(t)
	require.Len(t, frames, 1)
	assert.Equal(t, OpcodeClose, frames[0].Opcode)

	code, _, err := ParseClosePayload(frames[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, CloseGoingAway, code)

	assert.ErrorIs(t, conn.WriteMessage(OpcodeText, []byte("late")), ErrCloseSent)
}

func TestConnReadMessageError(t *testing.T) {
	testcases := []struct {
		desc   string
		frames []Frame
	}{
		{
			desc:   "continuation without a message",
			frames: []Frame{{Final: true, Opcode: OpcodeContinuation, Payload: []byte("x")}},
		},
		{
			desc: "new message inside a fragmented one",
			frames: []Frame{
				{Opcode: OpcodeText, Payload: []byte("x")},
				{Final: true, Opcode: OpcodeBinary, Payload: []byte("y")},
			},
		},
		{
			desc:   "invalid utf-8 text",
			frames: []Frame{{Final: true, Opcode: OpcodeText, Payload: []byte{0xff, 0xfe}}},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			var out recordingStream
			conn := NewConn(serverFrames(t, tc.frames...), &out, DefaultMaxPayload)

			_, _, err := conn.ReadMessage()
			assert.ErrorIs(t, err, ErrImproperFrame)
		})
	}
}

func TestConnReadMessageTooLarge(t *testing.T) {
	r := serverFrames(t,
		Frame{Opcode: OpcodeBinary, Payload: []byte("abc")},
		Frame{Opcode: OpcodeContinuation, Payload: []byte("def")},
		Frame{Final: true, Opcode: OpcodeContinuation, Payload: []byte("g")},
	)
	var out recordingStream
	conn := NewConn(r, &out, 6)

	_, _, err := conn.ReadMessage()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestConnWrite(t *testing.T) {
	var out recordingStream
	conn := NewConn(bytes.NewReader(nil), &out, DefaultMaxPayload)

	require.NoError(t, conn.WriteMessage(OpcodeText, []byte("hello")))
	require.NoError(t, conn.Ping([]byte("p")))
	assert.Error(t, conn.WriteMessage(OpcodePing, nil))

	require.NoError(t, conn.Close(CloseNormalClosure, "done"))
	assert.True(t, out.closed)

	frames := out.frames(t)
	require.Len(t, frames, 3)
	assert.Equal(t, []byte("hello"), frames[0].Payload)
	assert.Equal(t, OpcodePing, frames[1].Opcode)
	assert.Equal(t, OpcodeClose, frames[2].Opcode)

	code, reason, err := ParseClosePayload(frames[2].Payload)
	require.NoError(t, err)
	assert.Equal(t, CloseNormalClosure, code)
	assert.Equal(t, "done", reason)
}
