//go:build windows

package shell

import (
	"context"
	"os/exec"
)

// shellCommand runs command through cmd.exe. Positional arguments are
// appended to the command line.
func shellCommand(ctx context.Context, command string, args []string) *exec.Cmd {
	argv := append([]string{"/C", command}, args...)
	return exec.CommandContext(ctx, "cmd", argv...)
}
