package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := crypto.NewSession(key)
	require.NoError(t, err)
	return NewCodec(s)
}

func TestCodecRoundTrip(t *testing.T) {
	codec := newCodec(t)

	types := []Type{Task, TaskOutput, TaskRunning, TaskComplete, TaskCancel, TaskCancelled, CheckIn}
	payloads := [][]byte{
		{},
		[]byte("Q2x9dVb1Zr"),
		bytes.Repeat([]byte("line\n"), 1000),
	}

	for _, typ := range types {
		for _, p := range payloads {
			f, err := codec.Encode(typ, p)
			require.NoError(t, err)
			assert.Equal(t, typ, f.Type)

			gotType, gotPayload, err := codec.Decode(f)
			require.NoError(t, err)
			assert.Equal(t, typ, gotType)
			assert.True(t, bytes.Equal(p, gotPayload), "payload mismatch for %s", typ)
		}
	}
}

func TestCodecWrongKey(t *testing.T) {
	server := newCodec(t)
	other := newCodec(t)

	f, err := server.Encode(TaskCancel, []byte("Q2x9dVb1Zr"))
	require.NoError(t, err)

	typ, plaintext, err := other.Decode(f)
	assert.Equal(t, TaskCancel, typ)
	assert.Nil(t, plaintext)
	assert.True(t, errors.Is(err, crypto.ErrDecrypt))
}

func TestCodecCorruptPayload(t *testing.T) {
	codec := newCodec(t)

	f, err := codec.Encode(Task, []byte("payload"))
	require.NoError(t, err)

	truncated := Frame{Type: f.Type, Payload: f.Payload[:len(f.Payload)/2]}
	_, plaintext, err := codec.Decode(truncated)
	assert.Nil(t, plaintext)
	assert.ErrorIs(t, err, crypto.ErrDecrypt)
}

func TestCodecRetypedFrame(t *testing.T) {
	codec := newCodec(t)

	f, err := codec.Encode(TaskCancel, []byte("Q2x9dVb1Zr"))
	require.NoError(t, err)

	for _, typ := range []Type{Task, TaskOutput, TaskComplete} {
		retyped := Frame{Type: typ, Payload: f.Payload}
		_, plaintext, err := codec.Decode(retyped)
		assert.Nil(t, plaintext, typ.String())
		assert.ErrorIs(t, err, crypto.ErrDecrypt, typ.String())
	}
}

func TestEncodeUnknownType(t *testing.T) {
	codec := newCodec(t)
	_, err := codec.Encode(Type(200), []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncodeTooLarge(t *testing.T) {
	codec := newCodec(t)
	_, err := codec.Encode(TaskOutput, make([]byte, 5<<20))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestEncodeAtLimit(t *testing.T) {
	const sealOverhead = 24 + 16 // XChaCha20 nonce and Poly1305 tag
	codec := newCodec(t)

	f, err := codec.Encode(TaskOutput, make([]byte, config.MaxFrameSize-1-sealOverhead))
	require.NoError(t, err)
	assert.Len(t, f.Bytes(), config.MaxFrameSize)

	_, err = codec.Encode(TaskOutput, make([]byte, config.MaxFrameSize-sealOverhead))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWireLayout(t *testing.T) {
	f := Frame{Type: TaskCancel, Payload: []byte{0xAA, 0xBB}}
	wire := f.Bytes()

	if diff := cmp.Diff([]byte{byte(TaskCancel), 0xAA, 0xBB}, wire); diff != "" {
		t.Errorf("wire mismatch (-want +got):\n%s", diff)
	}

	parsed, err := Parse(wire)
	require.NoError(t, err)
	if diff := cmp.Diff(f, parsed); diff != "" {
		t.Errorf("parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = Parse([]byte{0xFE, 0x01})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestParseTypeOnly(t *testing.T) {
	f, err := Parse([]byte{byte(Nop)})
	require.NoError(t, err)
	assert.Equal(t, Nop, f.Type)
	assert.Empty(t, f.Payload)
}

func TestEncodeValue(t *testing.T) {
	codec := newCodec(t)

	type payload struct {
		TaskID string `json:"task_id"`
		Text   string `json:"text"`
	}
	in := payload{TaskID: "Q2x9dVb1Zr", Text: "<b>CORP\\svc-admin</b>"}

	f, err := codec.EncodeValue(TaskOutput, in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, codec.DecodeValue(f, &out))
	assert.Equal(t, in, out)

	raw, err := codec.EncodeValue(TaskCancel, "Q2x9dVb1Zr")
	require.NoError(t, err)
	_, plaintext, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "Q2x9dVb1Zr", string(plaintext))
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "TASK_CANCEL", TaskCancel.String())
	assert.Equal(t, "UNKNOWN(99)", Type(99).String())
}
