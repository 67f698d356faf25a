package command

import (
	"context"
	"errors"
	"io"
	"os/exec"
)

// Process is a running child process CommandPhase can read output from
// and wait on (spec §4.13 "spawns each command in order with a shell").
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
}

// Spawner starts a shell command. The production Spawner wraps
// os/exec; tests substitute a fake that replays canned output without
// spawning a real process.
type Spawner interface {
	Spawn(ctx context.Context, shellCommand string) (Process, error)
}

// ShellSpawner runs each command through "sh -c", the same
// pty.Start(cmd)-over-os/exec.Cmd shape the entire-cli integration
// harness uses for interactive child processes, minus the pty itself —
// CommandPhase only needs to capture stdout/stderr, not drive a tty.
type ShellSpawner struct{}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }

// Spawn starts shellCommand via "sh -c" with stdout/stderr pipes.
func (ShellSpawner) Spawn(ctx context.Context, shellCommand string) (Process, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", shellCommand)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// exitCoder is satisfied by *exec.ExitError (and by fakes used in
// tests), so exitCodeFromError does not depend on the concrete os/exec
// type.
type exitCoder interface {
	ExitCode() int
}

// exitCodeFromError extracts the child's exit code from the error
// cmd.Wait() (or a spawn failure) returned, defaulting to -1 for errors
// that carry no exit code of their own (spec §4.13 "synthesizing
// exit_code=-1 with the error message").
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var ec exitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}
