package store

import (
	"slices"

	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/task"
)

// CachedFrame is an encoded frame waiting for its drone to connect.
type CachedFrame struct {
	TaskID task.ID
	Frame  frame.Frame
}

// CacheFrame queues a frame for a drone and wakes up its session if connected.
//
// A frame of the same type already queued for the same task is not queued twice,
// in which case false is returned.
func (s *Store) CacheFrame(droneID task.DroneID, taskID task.ID, f frame.Frame) bool {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	queue := s.queues[droneID]
	dup := slices.ContainsFunc(queue, func(c CachedFrame) bool {
		return c.TaskID == taskID && c.Frame.Type == f.Type
	})
	if dup {
		return false
	}

	s.queues[droneID] = append(queue, CachedFrame{TaskID: taskID, Frame: f})
	s.notifyLocked(droneID)
	return true
}

// WithdrawFrames removes the queued frames of a task and returns how many were removed.
func (s *Store) WithdrawFrames(droneID task.DroneID, taskID task.ID) int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	queue := s.queues[droneID]
	before := len(queue)
	queue = slices.DeleteFunc(queue, func(c CachedFrame) bool { return c.TaskID == taskID })
	if len(queue) == 0 {
		delete(s.queues, droneID)
	} else {
		s.queues[droneID] = queue
	}
	return before - len(queue)
}

// DrainFrames returns every frame queued for a drone and empties its queue.
func (s *Store) DrainFrames(droneID task.DroneID) []CachedFrame {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	queue := s.queues[droneID]
	delete(s.queues, droneID)
	return queue
}

// Requeue puts undelivered frames back at the head of a drone queue.
func (s *Store) Requeue(droneID task.DroneID, frames []CachedFrame) {
	if len(frames) == 0 {
		return
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	merged := slices.Clone(frames)
	for _, c := range s.queues[droneID] {
		dup := slices.ContainsFunc(merged, func(m CachedFrame) bool {
			return m.TaskID == c.TaskID && m.Frame.Type == c.Frame.Type
		})
		if !dup {
			merged = append(merged, c)
		}
	}
	s.queues[droneID] = merged
	s.notifyLocked(droneID)
}

// QueuedFrames returns how many frames wait for a drone.
func (s *Store) QueuedFrames(droneID task.DroneID) int {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return len(s.queues[droneID])
}

// Pending returns a channel receiving a value whenever frames are cached for the drone.
// Signals are coalesced: one receive may stand for several cached frames.
func (s *Store) Pending(droneID task.DroneID) <-chan struct{} {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.signalLocked(droneID)
}

func (s *Store) signalLocked(droneID task.DroneID) chan struct{} {
	ch, ok := s.signals[droneID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.signals[droneID] = ch
	}
	return ch
}

func (s *Store) notifyLocked(droneID task.DroneID) {
	select {
	case s.signalLocked(droneID) <- struct{}{}:
	default:
	}
}
