package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/server/store"
	"github.com/jackadi-io/hive/internal/task"
)

var errDropped = errors.New("frame dropped")

// HandleFrame applies a frame received from a drone to its task record.
//
// Frames that cannot be decrypted or that do not match a task of the drone are logged
// and dropped; only store failures are returned.
func (s *Service) HandleFrame(ctx context.Context, droneID task.DroneID, f frame.Frame) error {
	logger := slog.With("drone", droneID, "frame", f.Type)

	switch f.Type {
	case frame.Nop:
		return nil
	case frame.CheckIn:
		return s.checkIn(droneID, f, logger)
	case frame.TaskRunning, frame.TaskOutput, frame.TaskComplete, frame.TaskCancelled:
	default:
		logger.Warn("unexpected frame from drone, dropped")
		return nil
	}

	var out task.Output
	if err := s.codec.DecodeValue(f, &out); err != nil {
		logger.Warn("undecodable frame dropped", "error", err)
		return nil
	}
	logger = logger.With("task", out.TaskID)

	target := statusOf(f.Type, out.Status)
	_, err := s.store.Update(out.TaskID, func(r *task.Record) error {
		if r.DroneID != droneID {
			return fmt.Errorf("%w: task belongs to drone %s", errDropped, r.DroneID)
		}
		if r.Status.IsTerminal() {
			return fmt.Errorf("%w: task already %s", errDropped, r.Status)
		}
		if err := r.Apply(target, s.now().UTC()); err != nil {
			return fmt.Errorf("%w: %w", errDropped, err)
		}
		r.Result += out.Text
		return nil
	})

	switch {
	case err == nil:
		if target.IsTerminal() {
			logger.Debug("task finished", "status", target)
		}
		return nil
	case errors.Is(err, errDropped):
		logger.Debug("frame dropped", "reason", err)
		return nil
	case errors.Is(err, store.ErrTaskNotFound):
		if target == task.RUNNING {
			// the record is gone but the drone is executing it
			logger.Info("running task is unknown, cancelling it")
			return s.cancel(droneID, out.TaskID)
		}
		logger.Debug("frame for unknown task dropped")
		return nil
	default:
		return fmt.Errorf("failed to apply %s frame: %w", f.Type, err)
	}
}

func (s *Service) checkIn(droneID task.DroneID, f frame.Frame, logger *slog.Logger) error {
	var c task.CheckIn
	if err := s.codec.DecodeValue(f, &c); err != nil {
		logger.Warn("undecodable frame dropped", "error", err)
		return nil
	}
	_, err := s.store.Touch(droneID, store.DroneInfo{Hostname: c.Hostname}, s.now().UTC())
	return err
}

func statusOf(t frame.Type, reported task.Status) task.Status {
	switch t {
	case frame.TaskComplete:
		return task.COMPLETE
	case frame.TaskCancelled:
		return task.CANCELLED
	case frame.TaskOutput:
		if reported == task.COMPLETE {
			return task.COMPLETE
		}
		return task.RUNNING
	default:
		return task.RUNNING
	}
}
