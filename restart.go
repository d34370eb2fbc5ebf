package patcher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

var DefaultRestartCommand = []string{"xkeen", "-restart"}

// Restarter reloads the router daemon after the config has been written.
type Restarter interface {
	Restart(ctx context.Context) error
}

type CommandRestarter struct {
	command []string
	log     *slog.Logger
}

func NewCommandRestarter(command []string, log *slog.Logger) *CommandRestarter {
	if len(command) <= 0 {
		command = DefaultRestartCommand
	}
	return &CommandRestarter{command: command, log: log}
}

func (r *CommandRestarter) Restart(ctx context.Context) error {
	cmdline := strings.Join(r.command, " ")
	r.log.Info(fmt.Sprintf("Restarting router daemon: %s", cmdline))
	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	out, err := cmd.CombinedOutput()
	if len(bytes.TrimSpace(out)) > 0 {
		r.log.Debug(fmt.Sprintf("%s output: %s", cmdline, bytes.TrimSpace(out)))
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w, output: %s", ErrRestartFailed, cmdline, err, bytes.TrimSpace(out))
	}
	return nil
}
