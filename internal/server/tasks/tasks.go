// Package tasks implements the operator task surface of the team server and
// projects drone frames onto task records.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/server/notify"
	"github.com/jackadi-io/hive/internal/server/store"
	"github.com/jackadi-io/hive/internal/task"
)

var (
	ErrDroneNotFound  = store.ErrDroneNotFound
	ErrTaskNotFound   = store.ErrTaskNotFound
	ErrInvalidState   = store.ErrInvalidState
	ErrInvalidRequest = errors.New("invalid task request")
)

const maxIDAttempts = 5

// Request is an operator request for a new task.
type Request struct {
	Command      task.Command    `json:"command"`
	Alias        string          `json:"alias"`
	Arguments    []string        `json:"arguments"`
	ArtefactPath string          `json:"artefact_path,omitempty"`
	Artefact     []byte          `json:"artefact,omitempty"`
	ResultType   task.ResultType `json:"result_type"`
}

type Service struct {
	store    *store.Store
	codec    *frame.Codec
	notifier notify.Notifier
	now      func() time.Time
}

func New(st *store.Store, codec *frame.Codec, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    st,
		codec:    codec,
		notifier: notifier,
		now:      time.Now,
	}
}

// Create records a PENDING task and queues its TASK frame for the drone.
func (s *Service) Create(ctx context.Context, droneID task.DroneID, issuer string, req Request) (task.Record, error) {
	if !req.Command.Valid() {
		return task.Record{}, fmt.Errorf("%w: unknown command %s", ErrInvalidRequest, req.Command)
	}
	if err := s.checkDrone(droneID); err != nil {
		return task.Record{}, err
	}

	record := task.Record{
		DroneID:      droneID,
		Issuer:       issuer,
		Command:      req.Command,
		Alias:        req.Alias,
		Arguments:    req.Arguments,
		ArtefactPath: req.ArtefactPath,
		Artefact:     req.Artefact,
		Status:       task.PENDING,
		ResultType:   req.ResultType,
		CreatedAt:    s.now().UTC(),
	}
	if record.Alias == "" {
		record.Alias = record.Command.String()
	}

	var (
		f   frame.Frame
		err error
	)
	for range maxIDAttempts {
		record.TaskID = task.NewID()
		f, err = s.codec.EncodeValue(frame.Task, record.DroneTask())
		if err != nil {
			return task.Record{}, fmt.Errorf("failed to encode task: %w", err)
		}
		err = s.store.Add(record)
		if !errors.Is(err, store.ErrTaskExists) {
			break
		}
	}
	if err != nil {
		return task.Record{}, err
	}

	if s.queue(record, f) {
		s.notifier.DroneTasked(droneID, record.TaskID)
	}
	slog.Debug("task created", "drone", droneID, "task", record.TaskID, "command", record.Command, "issuer", issuer)
	return record, nil
}

// queue caches the TASK frame of record and reports whether it stayed queued.
// A task deleted before its frame was cached has the frame withdrawn.
func (s *Service) queue(record task.Record, f frame.Frame) bool {
	if !s.store.CacheFrame(record.DroneID, record.TaskID, f) {
		return false
	}
	_, found, err := s.store.Get(record.TaskID)
	if err != nil {
		slog.Warn("failed to check queued task", "task", record.TaskID, "error", err)
		return true
	}
	if !found {
		s.store.WithdrawFrames(record.DroneID, record.TaskID)
		slog.Debug("task deleted before it was queued", "drone", record.DroneID, "task", record.TaskID)
		return false
	}
	return true
}

// Restore queues the TASK frame of every PENDING task again.
// The frame cache does not survive a restart, task records do.
func (s *Service) Restore(ctx context.Context) (int, error) {
	records, err := s.store.GetAll()
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, record := range records {
		if record.Status != task.PENDING {
			continue
		}
		f, err := s.codec.EncodeValue(frame.Task, record.DroneTask())
		if err != nil {
			return restored, fmt.Errorf("failed to encode task %s: %w", record.TaskID, err)
		}
		if s.queue(record, f) {
			restored++
		}
	}
	return restored, nil
}

func (s *Service) List(ctx context.Context) ([]task.Record, error) {
	return s.store.GetAll()
}

func (s *Service) ListByDrone(ctx context.Context, droneID task.DroneID) ([]task.Record, error) {
	if err := s.checkDrone(droneID); err != nil {
		return nil, err
	}
	return s.store.GetAllByDrone(droneID)
}

func (s *Service) Get(ctx context.Context, droneID task.DroneID, taskID task.ID) (task.Record, error) {
	if err := s.checkDrone(droneID); err != nil {
		return task.Record{}, err
	}
	return s.getOwned(droneID, taskID)
}

func (s *Service) Drones(ctx context.Context) ([]store.Drone, error) {
	return s.store.Drones()
}

// Delete removes a PENDING task, or asks the drone to cancel a RUNNING one.
// Terminal tasks are left untouched and ErrInvalidState is returned.
func (s *Service) Delete(ctx context.Context, droneID task.DroneID, taskID task.ID) error {
	if err := s.checkDrone(droneID); err != nil {
		return err
	}
	record, err := s.getOwned(droneID, taskID)
	if err != nil {
		return err
	}

	switch record.Status {
	case task.PENDING:
		if err := s.store.Delete(taskID); err != nil {
			if !errors.Is(err, ErrInvalidState) {
				return err
			}
			// the drone started it in the meantime
			return s.cancel(droneID, taskID)
		}
		s.store.WithdrawFrames(droneID, taskID)
		s.notifier.TaskDeleted(droneID, taskID)
		slog.Debug("pending task deleted", "drone", droneID, "task", taskID)
		return nil
	case task.RUNNING:
		return s.cancel(droneID, taskID)
	default:
		return fmt.Errorf("%w: task %s is %s", ErrInvalidState, taskID, record.Status)
	}
}

func (s *Service) cancel(droneID task.DroneID, taskID task.ID) error {
	f, err := s.codec.EncodeValue(frame.TaskCancel, string(taskID))
	if err != nil {
		return fmt.Errorf("failed to encode cancellation: %w", err)
	}
	if s.store.CacheFrame(droneID, taskID, f) {
		slog.Debug("task cancellation queued", "drone", droneID, "task", taskID)
	}
	return nil
}

func (s *Service) checkDrone(droneID task.DroneID) error {
	_, found, err := s.store.Drone(droneID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrDroneNotFound, droneID)
	}
	return nil
}

func (s *Service) getOwned(droneID task.DroneID, taskID task.ID) (task.Record, error) {
	record, found, err := s.store.Get(taskID)
	if err != nil {
		return task.Record{}, err
	}
	if !found || record.DroneID != droneID {
		return task.Record{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return record, nil
}
