package drone

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/task"
)

func (d *Drone) handleFrame(f frame.Frame) {
	switch f.Type {
	case frame.Task:
		var t task.DroneTask
		if err := d.codec.DecodeValue(f, &t); err != nil {
			slog.Warn("undecodable task dropped", "error", err)
			return
		}
		d.start(t)
	case frame.TaskCancel:
		_, payload, err := d.codec.Decode(f)
		if err != nil {
			slog.Warn("undecodable cancellation dropped", "error", err)
			return
		}
		d.cancel(task.ID(payload))
	case frame.Nop:
	default:
		slog.Warn("unexpected frame from the team server", "frame", f.Type)
	}
}

// start runs the task in its own goroutine once a slot is free.
// A task already running or recently finished is not run again.
func (d *Drone) start(t task.DroneTask) {
	d.mu.Lock()
	if _, ok := d.running[t.TaskID]; ok {
		d.mu.Unlock()
		slog.Debug("task already running, duplicate ignored", "task", t.TaskID)
		return
	}
	if d.finished.has(t.TaskID) {
		d.mu.Unlock()
		slog.Info("task already finished, redelivery ignored", "task", t.TaskID)
		return
	}
	ctx, cancel := context.WithCancel(d.tasksCtx)
	d.running[t.TaskID] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer func() {
			cancel()
			d.mu.Lock()
			delete(d.running, t.TaskID)
			d.finished.add(t.TaskID)
			d.mu.Unlock()
			d.wg.Done()
		}()

		// a task cancelled while waiting for a slot still reports its end
		select {
		case d.slots <- struct{}{}:
			defer func() { <-d.slots }()
		case <-ctx.Done():
		}

		slog.Debug("task started", "task", t.TaskID, "command", t.Command)
		d.executor.Run(ctx, t)
		slog.Debug("task finished", "task", t.TaskID)
	}()
}

func (d *Drone) cancel(id task.ID) {
	d.mu.Lock()
	cancel, ok := d.running[id]
	d.mu.Unlock()
	if !ok {
		slog.Info("cancellation for unknown task ignored", "task", id)
		return
	}
	slog.Info("cancelling task", "task", id)
	cancel()
}

// Running returns the number of tasks in progress.
func (d *Drone) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.running)
}

// stopTasks cancels every task and waits for them to end, up to timeout.
func (d *Drone) stopTasks(timeout time.Duration) {
	d.cancelTasks()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("all tasks stopped")
	case <-time.After(timeout):
		slog.Warn("some tasks are still running, force quit", "running", d.Running())
	}
}

// recentTasks remembers the last size task IDs added. It is not safe for concurrent use.
type recentTasks struct {
	ids   map[task.ID]struct{}
	order []task.ID
	next  int
}

func newRecentTasks(size int) *recentTasks {
	return &recentTasks{
		ids:   make(map[task.ID]struct{}, size),
		order: make([]task.ID, 0, size),
	}
}

func (r *recentTasks) add(id task.ID) {
	if r.has(id) {
		return
	}
	r.ids[id] = struct{}{}
	if len(r.order) < cap(r.order) {
		r.order = append(r.order, id)
		return
	}
	delete(r.ids, r.order[r.next])
	r.order[r.next] = id
	r.next = (r.next + 1) % len(r.order)
}

func (r *recentTasks) has(id task.ID) bool {
	_, ok := r.ids[id]
	return ok
}
