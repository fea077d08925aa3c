// Package executor runs the tasks dispatched to a drone and streams their progress
// back as frames.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackadi-io/hive/internal/task"
)

// Handler executes one command. Errors are reported to the operator as task output.
type Handler interface {
	Execute(ctx context.Context, t task.DroneTask, out *Emitter) error
}

type HandlerFunc func(ctx context.Context, t task.DroneTask, out *Emitter) error

func (f HandlerFunc) Execute(ctx context.Context, t task.DroneTask, out *Emitter) error {
	return f(ctx, t, out)
}

// DefaultHandlers returns the handler of every command a drone supports.
func DefaultHandlers() map[task.Command]Handler {
	return map[task.Command]Handler{
		task.SHELL: HandlerFunc(shell),
		task.RUN:   HandlerFunc(run),
		task.RUNAS: HandlerFunc(runAs),
		task.UPLD:  HandlerFunc(upload),
	}
}

type Executor struct {
	sink     Sink
	handlers map[task.Command]Handler
}

func New(sink Sink, handlers map[task.Command]Handler) *Executor {
	if handlers == nil {
		handlers = DefaultHandlers()
	}
	return &Executor{sink: sink, handlers: handlers}
}

// Run executes t until it ends or ctx is cancelled. Whatever happens, the task
// ends with exactly one terminal frame.
func (x *Executor) Run(ctx context.Context, t task.DroneTask) {
	out := newEmitter(x.sink, t.TaskID)
	defer out.finish()

	logger := slog.With("task", t.TaskID, "command", t.Command)

	if ctx.Err() != nil {
		logger.Debug("task cancelled before start")
		out.Detach()
		return
	}

	h, ok := x.handlers[t.Command]
	if !ok {
		logger.Warn("unknown command")
		out.Line(fmt.Sprintf("unknown command %s\n", t.Command))
		return
	}

	logger.Debug("executing task", "args", len(t.Arguments))
	if err := h.Execute(ctx, t, out); err != nil {
		logger.Debug("task failed", "error", err)
		out.Line(err.Error() + "\n")
	}
}
