package executor

import (
	"fmt"

	"github.com/jackadi-io/hive/internal/task"
)

// ArgumentError reports task arguments that do not have the shape the command expects.
type ArgumentError struct {
	Command task.Command
	Reason  string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid arguments: %s", e.Command, e.Reason)
}

// SpawnError reports a program that could not be started.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
