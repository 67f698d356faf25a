// Package command implements CommandPhase (spec §4.13): the single,
// replay-safe entry point for running a list of shell commands that
// both auto-verify and user-initiated runs share.
//
// Generalized from the entire-cli integration harness's
// pty.Start(cmd)-over-os/exec.Cmd pattern (spawn, read until a
// condition, wait with a timeout) into a classify→gate→stream→evidence
// pipeline: this package never needs a pty (no interactive prompts to
// drive), only the same spawn/read/wait shape minus the tty.
package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
	"github.com/kalyank1144/agentcore/event"
	"github.com/kalyank1144/agentcore/metrics"
)

// AutonomyMode is the per-command-phase execution gate (spec §4.13
// "mode=off"/"mode=prompt"), distinct from event.Mode (ANSWER/PLAN/
// MISSION).
type AutonomyMode string

const (
	AutonomyOff    AutonomyMode = "off"
	AutonomyPrompt AutonomyMode = "prompt"
	AutonomyAuto   AutonomyMode = "auto"
)

// RunContext distinguishes auto-verify runs (stop on first failure) from
// user-initiated runs (run every command regardless) (spec §4.13).
type RunContext string

const (
	ContextVerify RunContext = "verify"
	ContextUser   RunContext = "user"
)

// Command is one shell command to run, and whether the caller already
// has standing approval for it (spec §4.13 "mode=prompt and not
// pre-approved").
type Command struct {
	ID          string
	Shell       string
	PreApproved bool
}

// Request is the input to RunCommandPhase.
type Request struct {
	TaskID          string
	Mode            event.Mode
	AutonomyMode    AutonomyMode
	Context         RunContext
	Commands        []Command
	IsReplayOrAudit bool

	ChunkThrottle            time.Duration
	MaxOutputBytesPerCommand int
}

// CommandResult is the outcome of running one command.
type CommandResult struct {
	CommandID   string
	ExitCode    int
	Duration    time.Duration
	StdoutLines int
	StderrLines int
	Truncated   bool
	EvidenceID  string
	Error       string
}

// Status is the overall CommandPhase outcome.
type Status string

const (
	StatusSkipped          Status = "skipped"
	StatusRejected         Status = "rejected"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusCompleted        Status = "completed"
)

// Result is what RunCommandPhase returns.
type Result struct {
	Status         Status
	RejectedReason string
	CommandResults []CommandResult
}

// Phase is CommandPhase.
type Phase struct {
	Bus      *event.Bus
	Classify func(shellCommand string) Classification
	Spawner  Spawner
	Evidence EvidenceWriter
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (p *Phase) classify(shellCommand string) Classification {
	if p.Classify != nil {
		return p.Classify(shellCommand)
	}
	return DefaultClassifier(shellCommand)
}

func (p *Phase) spawner() Spawner {
	if p.Spawner != nil {
		return p.Spawner
	}
	return ShellSpawner{}
}

func (p *Phase) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Phase) throttle(req Request) time.Duration {
	if req.ChunkThrottle > 0 {
		return req.ChunkThrottle
	}
	return 200 * time.Millisecond
}

func (p *Phase) maxOutputBytes(req Request) int {
	if req.MaxOutputBytesPerCommand > 0 {
		return req.MaxOutputBytesPerCommand
	}
	return 64 * 1024
}

// RunCommandPhase runs req.Commands through classify→gate→stream→evidence
// (spec §4.13).
func (p *Phase) RunCommandPhase(ctx context.Context, req Request) (Result, error) {
	if req.IsReplayOrAudit {
		return Result{Status: StatusSkipped}, nil
	}

	if err := p.emit(ctx, event.TypeStageChanged, req, map[string]any{"stage": string(event.StageCommand)}); err != nil {
		return Result{}, err
	}

	classifications := make([]Classification, len(req.Commands))
	for i, c := range req.Commands {
		classifications[i] = p.classify(c.Shell)
		if classifications[i].Unsafe || req.AutonomyMode == AutonomyOff {
			reason := "unsafe command"
			if req.AutonomyMode == AutonomyOff {
				reason = "command execution is off"
			}
			return Result{Status: StatusRejected, RejectedReason: reason}, nil
		}
	}

	needsApproval := false
	for i, c := range req.Commands {
		if classifications[i].LongRunning || (req.AutonomyMode == AutonomyPrompt && !c.PreApproved) {
			needsApproval = true
			if err := p.emit(ctx, event.TypeCommandProposed, req, map[string]any{
				"command_id": c.ID,
				"command":    c.Shell,
			}); err != nil {
				return Result{}, err
			}
		}
	}
	if needsApproval {
		if err := p.emit(ctx, event.TypeDecisionPointNeeded, req, map[string]any{"reason": "command_approval"}); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusAwaitingApproval}, nil
	}

	results := make([]CommandResult, 0, len(req.Commands))
	for _, c := range req.Commands {
		result, err := p.runOne(ctx, req, c)
		if err != nil {
			return Result{}, err
		}
		results = append(results, result)
		if req.Context == ContextVerify && result.ExitCode != 0 {
			break
		}
	}

	return Result{Status: StatusCompleted, CommandResults: results}, nil
}

func (p *Phase) runOne(ctx context.Context, req Request, c Command) (CommandResult, error) {
	start := p.now()
	if err := p.emit(ctx, event.TypeCommandStarted, req, map[string]any{"command_id": c.ID, "command": c.Shell}); err != nil {
		return CommandResult{}, err
	}

	proc, spawnErr := p.spawner().Spawn(ctx, c.Shell)
	if spawnErr != nil {
		return p.finish(ctx, req, c, start, -1, spawnErr.Error(), true, &streamBuffer{}, &streamBuffer{})
	}

	stdout := &streamBuffer{maxBytes: p.maxOutputBytes(req)}
	stderr := &streamBuffer{maxBytes: p.maxOutputBytes(req)}

	var wg sync.WaitGroup
	wg.Add(2)
	go drainLines(proc.Stdout(), stdout, &wg)
	go drainLines(proc.Stderr(), stderr, &wg)

	stopFlush := make(chan struct{})
	flushDone := make(chan struct{})
	go p.flushLoop(ctx, req, c, stdout, stderr, stopFlush, flushDone)

	waitErr := proc.Wait()
	wg.Wait()
	close(stopFlush)
	<-flushDone
	p.flushOnce(ctx, req, c, stdout, stderr)

	exitCode := 0
	errMsg := ""
	if waitErr != nil {
		errMsg = waitErr.Error()
		exitCode = exitCodeFromError(waitErr)
	}

	return p.finish(ctx, req, c, start, exitCode, errMsg, false, stdout, stderr)
}

func (p *Phase) finish(ctx context.Context, req Request, c Command, start time.Time, exitCode int, errMsg string, spawnFailed bool, stdout, stderr *streamBuffer) (CommandResult, error) {
	duration := p.now().Sub(start)
	truncated := stdout.truncated || stderr.truncated

	transcript := fmt.Sprintf("$ %s\n\n--- stdout ---\n%s\n--- stderr ---\n%s\n", c.Shell, stdout.snapshot(), stderr.snapshot())
	var evidenceID string
	if p.Evidence != nil {
		id, err := p.Evidence.Write(ctx, req.TaskID, c.ID, transcript)
		if err != nil {
			return CommandResult{}, err
		}
		evidenceID = id
	}

	result := CommandResult{
		CommandID:   c.ID,
		ExitCode:    exitCode,
		Duration:    duration,
		StdoutLines: stdout.lines,
		StderrLines: stderr.lines,
		Truncated:   truncated,
		EvidenceID:  evidenceID,
		Error:       errMsg,
	}

	payload := map[string]any{
		"command_id":   c.ID,
		"exit_code":    exitCode,
		"duration_ms":  duration.Milliseconds(),
		"stdout_lines": stdout.lines,
		"stderr_lines": stderr.lines,
		"truncated":    truncated,
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}

	status := "ok"
	switch {
	case spawnFailed:
		status = "spawn_error"
	case exitCode != 0:
		status = "failed"
	}
	p.Metrics.RecordCommand(req.TaskID, status, duration)

	if p.Bus != nil {
		evidenceIDs := []string{}
		if evidenceID != "" {
			evidenceIDs = []string{evidenceID}
		}
		if _, err := p.Bus.Publish(ctx, event.Event{
			TaskID:      req.TaskID,
			Type:        event.TypeCommandCompleted,
			Mode:        req.Mode,
			Stage:       event.StageCommand,
			Payload:     payload,
			EvidenceIDs: evidenceIDs,
		}); err != nil {
			return result, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit command_completed", err)
		}
	}

	return result, nil
}

func (p *Phase) flushLoop(ctx context.Context, req Request, c Command, stdout, stderr *streamBuffer, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.throttle(req))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.flushOnce(ctx, req, c, stdout, stderr)
		}
	}
}

func (p *Phase) flushOnce(ctx context.Context, req Request, c Command, stdout, stderr *streamBuffer) {
	if p.Bus == nil {
		return
	}
	if delta := stdout.drainPending(); len(delta) > 0 {
		_, _ = p.Bus.Publish(ctx, event.Event{
			TaskID:  req.TaskID,
			Type:    event.TypeCommandProgress,
			Mode:    req.Mode,
			Stage:   event.StageCommand,
			Payload: map[string]any{"command_id": c.ID, "stream": "stdout", "delta": string(delta)},
		})
	}
	if delta := stderr.drainPending(); len(delta) > 0 {
		_, _ = p.Bus.Publish(ctx, event.Event{
			TaskID:  req.TaskID,
			Type:    event.TypeCommandProgress,
			Mode:    req.Mode,
			Stage:   event.StageCommand,
			Payload: map[string]any{"command_id": c.ID, "stream": "stderr", "delta": string(delta)},
		})
	}
}

func (p *Phase) emit(ctx context.Context, t event.Type, req Request, payload map[string]any) error {
	if p.Bus == nil {
		return nil
	}
	_, err := p.Bus.Publish(ctx, event.Event{
		TaskID:  req.TaskID,
		Type:    t,
		Mode:    req.Mode,
		Stage:   event.StageCommand,
		Payload: payload,
	})
	if err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit "+string(t), err)
	}
	return nil
}

func drainLines(r io.Reader, buf *streamBuffer, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		buf.appendLine(scanner.Text())
	}
}
