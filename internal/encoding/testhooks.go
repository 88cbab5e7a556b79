package encoding

import (
	"context"
	"os/exec"
)

// commandContext builds every ffmpeg and ffprobe invocation. It is a
// package-level variable so tests can observe or replace the commands.
var commandContext = exec.CommandContext

// SetCommandContextForTests overrides the command builder during tests.
func SetCommandContextForTests(fn func(context.Context, string, ...string) *exec.Cmd) func() {
	previous := commandContext
	commandContext = fn
	return func() {
		commandContext = previous
	}
}
