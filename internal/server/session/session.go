// Package session serves drone sessions: it forwards cached frames to connected
// drones and hands the frames they send to the task service.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/server/store"
	"github.com/jackadi-io/hive/internal/task"
	"github.com/jackadi-io/hive/internal/transport"
)

// FrameHandler applies frames received from a drone.
type FrameHandler interface {
	HandleFrame(ctx context.Context, droneID task.DroneID, f frame.Frame) error
}

type Server struct {
	store   *store.Store
	handler FrameHandler
	now     func() time.Time
}

func New(st *store.Store, handler FrameHandler) *Server {
	return &Server{
		store:   st,
		handler: handler,
		now:     time.Now,
	}
}

// Connect serves one drone session until the drone leaves or the stream breaks.
//
// Frames cached for the drone are sent on connect and whenever new ones are cached.
func (s *Server) Connect(stream transport.SessionConnectServer) error {
	droneID, hostname, err := transport.DroneFromContext(stream.Context())
	if err != nil {
		return err
	}
	logger := slog.With("drone", droneID)

	info := store.DroneInfo{Hostname: hostname, Address: peerAddress(stream.Context())}
	if _, err := s.store.Touch(droneID, info, s.now().UTC()); err != nil {
		logger.Error("failed to register drone", "error", err)
		return status.Error(codes.Internal, "failed to register drone")
	}

	if !s.store.ClaimSession(droneID) {
		logger.Warn("rejected session: drone already connected", "address", info.Address)
		return status.Error(codes.AlreadyExists, "drone already connected")
	}
	defer s.store.MarkConnected(droneID, false)
	logger.Info("drone connected", "address", info.Address, "hostname", hostname)
	defer logger.Info("drone disconnected")

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	recvErr := make(chan error, 1)
	go func() {
		recvErr <- s.receive(ctx, droneID, stream)
		cancel()
	}()

	dispatchErr := make(chan error, 1)
	go func() {
		dispatchErr <- s.dispatch(ctx, droneID, transport.NewSafeSender(stream))
	}()

	select {
	case err := <-recvErr:
		// a Send blocked on a dead peer only returns once the stream is torn down
		select {
		case <-dispatchErr:
		case <-time.After(config.SessionDispatchTimeout):
			logger.Warn("frame dispatch still blocked, closing session")
		}
		return err
	case err := <-dispatchErr:
		return err
	}
}

// dispatch drains the drone queue on connect and after every wake-up signal.
// Frames that could not be sent are put back in the queue.
func (s *Server) dispatch(ctx context.Context, droneID task.DroneID, sender *transport.SafeSender) error {
	pending := s.store.Pending(droneID)
	for {
		frames := s.store.DrainFrames(droneID)
		for i, c := range frames {
			if err := sender.SendFrame(c.Frame); err != nil {
				if status.Code(err) == codes.ResourceExhausted {
					// it would block the queue on every session
					slog.Error("frame too large for the transport, dropped", "drone", droneID, "task", c.TaskID, "frame", c.Frame.Type, "size", len(c.Frame.Payload)+1)
					s.store.Requeue(droneID, frames[i+1:])
					return fmt.Errorf("failed to send %s frame: %w", c.Frame.Type, err)
				}
				s.store.Requeue(droneID, frames[i:])
				return fmt.Errorf("failed to send %s frame: %w", c.Frame.Type, err)
			}
			slog.Debug("frame sent", "drone", droneID, "task", c.TaskID, "frame", c.Frame.Type)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-pending:
		}
	}
}

func (s *Server) receive(ctx context.Context, droneID task.DroneID, stream transport.Receiver) error {
	for {
		f, err := transport.RecvFrame(stream)
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, transport.ErrMalformedFrame):
			slog.Warn("malformed frame dropped", "drone", droneID, "error", err)
			continue
		case status.Code(err) == codes.Canceled:
			return nil
		case err != nil:
			return err
		}

		if err := s.handler.HandleFrame(ctx, droneID, f); err != nil {
			slog.Error("failed to handle frame", "drone", droneID, "frame", f.Type, "error", err)
		}
	}
}

func peerAddress(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	switch addr := p.Addr.(type) {
	case *net.TCPAddr:
		return addr.IP.String()
	case *net.UDPAddr:
		return addr.IP.String()
	default:
		return addr.String()
	}
}
