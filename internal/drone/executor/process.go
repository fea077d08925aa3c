package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"github.com/jackadi-io/hive/internal/config"
	"github.com/jackadi-io/hive/internal/task"
)

// run executes Arguments[0] with the remaining arguments.
func run(ctx context.Context, t task.DroneTask, out *Emitter) error {
	if len(t.Arguments) < 1 || t.Arguments[0] == "" {
		return &ArgumentError{Command: t.Command, Reason: "missing program"}
	}
	return runProcess(ctx, out, processSpec{program: t.Arguments[0], args: t.Arguments[1:]})
}

// shell splits the arguments like a shell would, without running one.
func shell(ctx context.Context, t task.DroneTask, out *Emitter) error {
	parts, err := shlex.Split(strings.Join(t.Arguments, " "))
	if err != nil {
		return &ArgumentError{Command: t.Command, Reason: err.Error()}
	}
	if len(parts) == 0 {
		return &ArgumentError{Command: t.Command, Reason: "empty command line"}
	}
	return runProcess(ctx, out, processSpec{program: parts[0], args: parts[1:]})
}

// runAs executes a program under another account.
//
// Arguments: DOMAIN\USER, password, program, program arguments.
func runAs(ctx context.Context, t task.DroneTask, out *Emitter) error {
	if len(t.Arguments) < 3 {
		return &ArgumentError{Command: t.Command, Reason: `expected DOMAIN\USER, password and program`}
	}
	domain, user, ok := strings.Cut(t.Arguments[0], `\`)
	if !ok || domain == "" || user == "" {
		return &ArgumentError{Command: t.Command, Reason: fmt.Sprintf(`account %q is not in DOMAIN\USER form`, t.Arguments[0])}
	}
	if t.Arguments[2] == "" {
		return &ArgumentError{Command: t.Command, Reason: "missing program"}
	}

	acct := account{domain: domain, user: user, password: t.Arguments[1]}
	return runProcess(ctx, out, processSpec{program: t.Arguments[2], args: t.Arguments[3:], account: &acct})
}

type account struct {
	domain   string
	user     string
	password string
}

type processSpec struct {
	program string
	args    []string
	account *account
}

// runProcess starts the program, streams its merged output line by line and waits for it.
//
// On cancellation, output is detached before the process group is killed.
func runProcess(ctx context.Context, out *Emitter, spec processSpec) error {
	cmd := exec.CommandContext(ctx, spec.program, spec.args...) //nolint:gosec // program and arguments come from the operator
	if err := prepareCommand(cmd, spec.account); err != nil {
		return &SpawnError{Program: spec.program, Err: err}
	}

	w := &lineWriter{emit: out.Line}
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.Stdin = nil
	cmd.WaitDelay = config.ProcessWaitDelay
	cmd.Cancel = func() error {
		out.Detach()
		return killProcessGroup(cmd)
	}

	if err := out.Start(cmd.Start); err != nil {
		if ctx.Err() != nil {
			out.Detach()
			return nil
		}
		return &SpawnError{Program: spec.program, Err: err}
	}

	err := cmd.Wait()
	w.Flush()
	if out.Detached() {
		return nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exitErr):
		out.Line(fmt.Sprintf("%s exited with code %d\n", spec.program, exitErr.ExitCode()))
		return nil
	case errors.Is(err, exec.ErrWaitDelay):
		// the process exited but a descendant kept the output open
		return nil
	default:
		return fmt.Errorf("%s: %w", spec.program, err)
	}
}

// upload writes the artefact to Arguments[0].
func upload(ctx context.Context, t task.DroneTask, out *Emitter) error {
	if len(t.Arguments) < 1 || t.Arguments[0] == "" {
		return &ArgumentError{Command: t.Command, Reason: "missing destination path"}
	}
	out.Running()

	path := t.Arguments[0]
	if err := os.WriteFile(path, t.Artefact, 0o600); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	out.Line(fmt.Sprintf("wrote %d bytes to %s\n", len(t.Artefact), path))
	return nil
}
