package transport

import (
	"errors"
	"fmt"
	"sync"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jackadi-io/hive/internal/frame"
)

// ErrMalformedFrame marks a message that is not a valid frame. The stream itself is still usable.
var ErrMalformedFrame = errors.New("malformed frame")

// Sender is the sending half of a session stream, client or server side.
type Sender interface {
	Send(*wrapperspb.BytesValue) error
}

// Receiver is the receiving half of a session stream, client or server side.
type Receiver interface {
	Recv() (*wrapperspb.BytesValue, error)
}

// SafeSender serializes frames sent by concurrent goroutines on one stream.
// gRPC streams do not support concurrent calls to Send.
type SafeSender struct {
	mu     sync.Mutex
	stream Sender
}

func NewSafeSender(stream Sender) *SafeSender {
	return &SafeSender{stream: stream}
}

func (s *SafeSender) SendFrame(f frame.Frame) error {
	msg := wrapperspb.Bytes(f.Bytes())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.Send(msg)
}

// RecvFrame reads the next message and parses it as a frame.
// A transport error is returned as is, so io.EOF still marks the end of the stream.
func RecvFrame(r Receiver) (frame.Frame, error) {
	msg, err := r.Recv()
	if err != nil {
		return frame.Frame{}, err
	}
	f, err := frame.Parse(msg.GetValue())
	if err != nil {
		return frame.Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	return f, nil
}
