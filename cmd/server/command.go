package main

import (
	"context"
	"os/exec"
	"strings"

	"github.com/phrazzld/overseer/internal/task"
)

// runCommand builds a blocking unit that spawns the given OS process and
// waits for its combined output. The returned unit honors its context, so a
// cancellable offload can kill the process when the caller detaches.
func runCommand(command string, args []string) task.BlockingFunc {
	return func(ctx context.Context) (any, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return nil, err
		}
		return strings.TrimRight(string(out), "\n"), nil
	}
}
