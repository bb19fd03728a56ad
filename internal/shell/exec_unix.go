//go:build !windows

package shell

import (
	"context"
	"os/exec"
)

// shellCommand runs command through sh. args become $1, $2 and so on.
func shellCommand(ctx context.Context, command string, args []string) *exec.Cmd {
	argv := append([]string{"-c", command, "postlock"}, args...)
	return exec.CommandContext(ctx, "sh", argv...)
}
