package drone

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/transport"
)

const maxBacklog = 10000

var errBacklogFull = errors.New("frame backlog full")

// uplink sends task frames on the current session, and keeps them while the drone
// is disconnected so that they are delivered on the next session.
type uplink struct {
	codec *frame.Codec

	mu      sync.Mutex
	sender  *transport.SafeSender
	backlog []frame.Frame
}

func newUplink(codec *frame.Codec) *uplink {
	return &uplink{codec: codec}
}

func (u *uplink) Send(t frame.Type, payload any) error {
	f, err := u.codec.EncodeValue(t, payload)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.sender != nil {
		err := u.sender.SendFrame(f)
		if err == nil {
			return nil
		}
		slog.Debug("session broken, keeping frame for later", "frame", t, "error", err)
		u.sender = nil
	}

	if len(u.backlog) >= maxBacklog {
		return errBacklogFull
	}
	u.backlog = append(u.backlog, f)
	return nil
}

// attach flushes the backlog on a new session and sends on it from now on.
func (u *uplink) attach(s *transport.SafeSender) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	for i, f := range u.backlog {
		if err := s.SendFrame(f); err != nil {
			u.backlog = u.backlog[i:]
			return err
		}
	}
	if n := len(u.backlog); n > 0 {
		slog.Debug("backlog flushed", "frames", n)
	}
	u.backlog = nil
	u.sender = s
	return nil
}

func (u *uplink) detach(s *transport.SafeSender) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.sender == s {
		u.sender = nil
	}
}

func (u *uplink) pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.backlog)
}
