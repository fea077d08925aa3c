//go:build !unix

package executor

import (
	"errors"
	"os/exec"
)

var errRunAsUnsupported = errors.New("running as another account is not supported on this platform")

func prepareCommand(cmd *exec.Cmd, acct *account) error {
	if acct != nil {
		return errRunAsUnsupported
	}
	return nil
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
