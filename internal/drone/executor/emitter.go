package executor

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackadi-io/hive/internal/frame"
	"github.com/jackadi-io/hive/internal/task"
)

// Sink delivers task frames to the team server. It must be safe for concurrent use.
type Sink interface {
	Send(t frame.Type, payload any) error
}

// Emitter reports the progress of one task.
//
// It emits RUNNING at most once and before any output, drops output once detached,
// and emits exactly one terminal frame.
type Emitter struct {
	mu       sync.Mutex
	sink     Sink
	taskID   task.ID
	running  bool
	detached bool
	finished bool
}

func newEmitter(sink Sink, taskID task.ID) *Emitter {
	return &Emitter{sink: sink, taskID: taskID}
}

// Start runs start and, if it succeeds, emits RUNNING before any output can be emitted.
func (e *Emitter) Start(start func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := start(); err != nil {
		return err
	}
	e.runningLocked()
	return nil
}

// Running emits RUNNING if not done yet.
func (e *Emitter) Running() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runningLocked()
}

// Line emits one chunk of output.
func (e *Emitter) Line(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detached || e.finished {
		return
	}
	if err := e.send(frame.TaskOutput, task.RUNNING, text); err != nil {
		// tell the operator that part of the output is missing
		notice := fmt.Sprintf("[output truncated: %d bytes lost: %v]\n", len(text), err)
		_ = e.send(frame.TaskOutput, task.RUNNING, notice)
	}
}

// Detach stops output delivery. The task then ends as cancelled.
func (e *Emitter) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detached = true
}

func (e *Emitter) Detached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detached
}

// finish emits the terminal frame: CANCELLED when detached, COMPLETE otherwise.
func (e *Emitter) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return
	}
	e.finished = true
	if e.detached {
		_ = e.send(frame.TaskCancelled, task.CANCELLED, "")
		return
	}
	_ = e.send(frame.TaskComplete, task.COMPLETE, "")
}

func (e *Emitter) runningLocked() {
	if e.running || e.finished {
		return
	}
	e.running = true
	_ = e.send(frame.TaskRunning, task.RUNNING, "")
}

func (e *Emitter) send(t frame.Type, status task.Status, text string) error {
	out := task.Output{TaskID: e.taskID, Status: status, Text: text}
	err := e.sink.Send(t, out)
	if err != nil {
		slog.Warn("failed to send task frame", "task", e.taskID, "frame", t, "error", err)
	}
	return err
}
