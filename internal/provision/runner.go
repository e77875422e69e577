package provision

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes external commands. A non-zero exit is returned as an
// error carrying the combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct {
	logger *slog.Logger
}

// NewRunner returns a Runner backed by os/exec.
func NewRunner(logger *slog.Logger) Runner {
	return &execRunner{logger: logger}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) error {
	r.logger.Debug("exec", "cmd", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(cmd.Environ(), "DEBIAN_FRONTEND=noninteractive")

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w; output: %s",
			name, strings.Join(args, " "), err, strings.TrimSpace(buf.String()))
	}
	return nil
}
