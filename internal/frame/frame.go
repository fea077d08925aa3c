// Package frame defines the typed envelope carried between the team server and drones.
//
// The wire layout is one type byte followed by the encrypted payload:
//
//	[1 byte type][payload...]
//
// The type is never encrypted so frames can be routed without the session key.
// There is no length prefix: the transport delivers whole messages.
package frame

import (
	"errors"
	"fmt"

	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/crypto"
	"github.com/jackadi-io/hive/internal/serializer"
)

type Type byte

const (
	Nop Type = iota
	Task
	TaskOutput
	TaskRunning
	TaskComplete
	TaskCancel
	TaskCancelled
	CheckIn
)

var typeNames = map[Type]string{
	Nop:           "NOP",
	Task:          "TASK",
	TaskOutput:    "TASK_OUTPUT",
	TaskRunning:   "TASK_RUNNING",
	TaskComplete:  "TASK_COMPLETE",
	TaskCancel:    "TASK_CANCEL",
	TaskCancelled: "TASK_CANCELLED",
	CheckIn:       "CHECK_IN",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(t))
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

var (
	ErrEmptyFrame    = errors.New("empty frame")
	ErrUnknownType   = errors.New("unknown frame type")
	ErrFrameTooLarge = errors.New("frame exceeds the transport message size")
)

// Frame is a self-contained message. Its payload is opaque without the session key.
type Frame struct {
	Type    Type
	Payload []byte
}

// Bytes returns the wire representation of the frame.
func (f Frame) Bytes() []byte {
	out := make([]byte, 1+len(f.Payload))
	out[0] = byte(f.Type)
	copy(out[1:], f.Payload)
	return out
}

// Parse reads a frame from its wire representation.
func Parse(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	t := Type(data[0])
	if !t.Valid() {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownType, data[0])
	}
	return Frame{Type: t, Payload: append([]byte(nil), data[1:]...)}, nil
}

// Codec seals and opens frame payloads with the session cipher.
type Codec struct {
	cipher crypto.Cipher
}

func NewCodec(c crypto.Cipher) *Codec {
	return &Codec{cipher: c}
}

// associatedData binds the type byte to the sealed payload.
func (t Type) associatedData() []byte {
	return []byte{byte(t)}
}

// Encode encrypts plaintext and tags it with t.
func (c *Codec) Encode(t Type, plaintext []byte) (Frame, error) {
	if !t.Valid() {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnknownType, byte(t))
	}
	payload, err := c.cipher.Encrypt(plaintext, t.associatedData())
	if err != nil {
		return Frame{}, err
	}
	if 1+len(payload) > config.MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, 1+len(payload))
	}
	return Frame{Type: t, Payload: payload}, nil
}

// Decode decrypts the payload. On failure no plaintext is returned.
// A frame whose type byte was changed in transit fails to decrypt.
func (c *Codec) Decode(f Frame) (Type, []byte, error) {
	plaintext, err := c.cipher.Decrypt(f.Payload, f.Type.associatedData())
	if err != nil {
		return f.Type, nil, err
	}
	return f.Type, plaintext, nil
}

// EncodeValue serializes v and encodes it as a frame of type t.
// Strings and byte slices are sent raw.
func (c *Codec) EncodeValue(t Type, v any) (Frame, error) {
	var data []byte
	switch val := v.(type) {
	case []byte:
		data = val
	case string:
		data = []byte(val)
	default:
		var err error
		data, err = serializer.JSON.Marshal(v)
		if err != nil {
			return Frame{}, fmt.Errorf("failed to serialize %s payload: %w", t, err)
		}
	}
	return c.Encode(t, data)
}

// DecodeValue decodes the frame and deserializes its payload into v.
func (c *Codec) DecodeValue(f Frame, v any) error {
	_, plaintext, err := c.Decode(f)
	if err != nil {
		return err
	}
	if err := serializer.JSON.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("failed to deserialize %s payload: %w", f.Type, err)
	}
	return nil
}
