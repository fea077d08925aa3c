// Package notify relays task events out of the team server.
//
// Notifications are fire-and-forget: a delivery failure is logged and never
// reaches the caller.
package notify

import (
	"log/slog"

	"github.com/jackadi-io/hive/internal/task"
)

type Notifier interface {
	// DroneTasked is fired once a task has been queued for a drone.
	DroneTasked(droneID task.DroneID, taskID task.ID)
	// TaskDeleted is fired once a pending task has been removed.
	TaskDeleted(droneID task.DroneID, taskID task.ID)
}

// Log writes events to the default structured logger.
type Log struct{}

func (Log) DroneTasked(droneID task.DroneID, taskID task.ID) {
	slog.Info("drone tasked", "drone", droneID, "task", taskID)
}

func (Log) TaskDeleted(droneID task.DroneID, taskID task.ID) {
	slog.Info("task deleted", "drone", droneID, "task", taskID)
}

// Multi fans events out to several notifiers.
type Multi []Notifier

func (m Multi) DroneTasked(droneID task.DroneID, taskID task.ID) {
	for _, n := range m {
		n.DroneTasked(droneID, taskID)
	}
}

func (m Multi) TaskDeleted(droneID task.DroneID, taskID task.ID) {
	for _, n := range m {
		n.TaskDeleted(droneID, taskID)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) DroneTasked(task.DroneID, task.ID) {}
func (Nop) TaskDeleted(task.DroneID, task.ID) {}
