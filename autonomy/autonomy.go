// Package autonomy implements AutonomyController (spec §4.11): the
// guarded iteration loop MISSION mode runs under — preconditions,
// checkpoint-before-iteration, budget exhaustion, and halting on mode
// change.
//
// Generalized from the teacher's engine.go budget/retry bookkeeping
// (sync/atomic counters checked before each step, context cancellation
// on exhaustion) into a narrower surface: one body function per
// iteration, wrapped with a checkpoint and a pair of
// iteration_started/iteration_succeeded|failed events instead of a full
// node-scheduling frontier.
package autonomy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalyank1144/agentcore/checkpoint"
	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
	"github.com/kalyank1144/agentcore/event"
	"github.com/kalyank1144/agentcore/metrics"
)

// State is AutonomyController's own lifecycle, distinct from
// ModeManager's mode/stage (spec §4.11).
type State string

const (
	StateIdle            State = "idle"
	StateRunning         State = "running"
	StatePaused          State = "paused"
	StateHalted          State = "halted"
	StateBudgetExhausted State = "budget_exhausted"
	StateCompleted       State = "completed"
)

// Budgets bounds one autonomy run. Zero means unlimited.
type Budgets struct {
	MaxIterations int
	MaxToolCalls  int
	MaxWallTime   time.Duration
}

// ExhaustedBudget names which budget tripped (spec §4.11
// "budget_exhausted{exhausted_budget}").
type ExhaustedBudget string

const (
	ExhaustedNone       ExhaustedBudget = ""
	ExhaustedIterations ExhaustedBudget = "iterations"
	ExhaustedToolCalls  ExhaustedBudget = "tool_calls"
	ExhaustedWallTime   ExhaustedBudget = "wall_time"
)

// IterationResult is what an iteration body reports back (spec §4.11).
type IterationResult struct {
	Success       bool
	FailureReason string
	EvidenceIDs   []string
	ToolCalls     int
}

// IterationBody runs the work for one iteration. The caller is
// responsible for not writing outside the checkpoint scope passed to
// ExecuteIteration: the controller's checkpoint only covers that scope,
// so a write outside it is not recoverable by restore (spec §9 open
// question — documented as an invariant, not solved differently here).
type IterationBody func(ctx context.Context) (IterationResult, error)

// Controller is AutonomyController (spec §4.11). It references, but
// never owns, a checkpoint.Manager — the checkpoint store outlives any
// one autonomy run.
type Controller struct {
	Bus         *event.Bus
	Checkpoints *checkpoint.Manager
	Metrics     *metrics.Metrics
	TaskID      string
	Budgets     Budgets
	Now         func() time.Time

	mu        sync.Mutex
	state     State
	startMode event.Mode
	startedAt time.Time

	iterations atomic.Int64
	toolCalls  atomic.Int64
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartAutonomy checks the three MISSION preconditions and, if all hold,
// emits autonomy_started and transitions to running (spec §4.11
// "startAutonomy fails unless all three hold").
func (c *Controller) StartAutonomy(ctx context.Context, mode event.Mode, planApproved, toolsApproved bool) error {
	if mode != event.ModeMission || !planApproved || !toolsApproved {
		return agentcoreerrors.New(agentcoreerrors.KindValidationError,
			"startAutonomy preconditions not met: mode must be MISSION with plan and tools approved")
	}

	c.mu.Lock()
	c.state = StateRunning
	c.startMode = mode
	c.startedAt = c.now()
	c.mu.Unlock()

	return c.emit(ctx, event.TypeAutonomyStarted, event.StageNone, map[string]any{"mode": string(mode)})
}

// ExecuteIteration always (a) creates a checkpoint over scope first, (b)
// emits iteration_started with budgets_remaining, (c) runs body, (d)
// emits iteration_succeeded or iteration_failed (spec §4.11). If a
// budget is already exhausted, it emits budget_exhausted instead and
// returns an error without creating a checkpoint or running body.
func (c *Controller) ExecuteIteration(ctx context.Context, stage event.Stage, description string, scope []string, body IterationBody) (IterationResult, error) {
	if exhausted := c.checkBudgets(); exhausted != ExhaustedNone {
		c.mu.Lock()
		c.state = StateBudgetExhausted
		c.mu.Unlock()
		c.Metrics.RecordBudgetExhausted(c.TaskID, string(exhausted))
		if err := c.emit(ctx, event.TypeBudgetExhausted, stage, map[string]any{"exhausted_budget": string(exhausted)}); err != nil {
			return IterationResult{}, err
		}
		return IterationResult{}, agentcoreerrors.New(agentcoreerrors.KindValidationError, "budget exhausted: "+string(exhausted))
	}

	if _, err := c.Checkpoints.CreateCheckpoint(ctx, c.TaskID, c.startMode, stage, description, scope); err != nil {
		return IterationResult{}, err
	}

	if err := c.emit(ctx, event.TypeIterationStarted, stage, map[string]any{
		"budgets_remaining": c.budgetsRemaining(),
	}); err != nil {
		return IterationResult{}, err
	}

	iterationStart := c.now()
	result, bodyErr := body(ctx)

	c.iterations.Add(1)
	c.toolCalls.Add(int64(result.ToolCalls))

	if bodyErr != nil {
		result = IterationResult{Success: false, FailureReason: bodyErr.Error()}
	}
	c.Metrics.RecordIteration(c.TaskID, result.Success, c.now().Sub(iterationStart))

	if result.Success {
		if err := c.emit(ctx, event.TypeIterationSucceeded, stage, map[string]any{
			"evidence_ids": result.EvidenceIDs,
		}); err != nil {
			return result, err
		}
	} else {
		if err := c.emit(ctx, event.TypeIterationFailed, stage, map[string]any{
			"failure_reason": result.FailureReason,
		}); err != nil {
			return result, err
		}
	}

	return result, bodyErr
}

// CheckModeChange halts the run if newMode differs from the mode
// StartAutonomy was called with, emitting autonomy_halted with reason
// (spec §4.11 "checkModeChange"). Returns true if it halted.
func (c *Controller) CheckModeChange(ctx context.Context, newMode event.Mode, newStage event.Stage) (bool, error) {
	c.mu.Lock()
	halt := newMode != c.startMode
	if halt {
		c.state = StateHalted
	}
	c.mu.Unlock()

	if !halt {
		return false, nil
	}
	if err := c.emit(ctx, event.TypeAutonomyHalted, newStage, map[string]any{"reason": "mode_changed"}); err != nil {
		return true, err
	}
	return true, nil
}

// Pause transitions running → paused, emitting execution_paused.
func (c *Controller) Pause(ctx context.Context, stage event.Stage) error {
	c.mu.Lock()
	c.state = StatePaused
	c.mu.Unlock()
	return c.emit(ctx, event.TypeExecutionPaused, stage, nil)
}

// Resume transitions paused → running, emitting execution_resumed.
// Fails unless the previous state was paused (spec §4.11 "resume
// requires previous state paused").
func (c *Controller) Resume(ctx context.Context, stage event.Stage) error {
	c.mu.Lock()
	if c.state != StatePaused {
		c.mu.Unlock()
		return agentcoreerrors.New(agentcoreerrors.KindValidationError, "resume requires previous state paused")
	}
	c.state = StateRunning
	c.mu.Unlock()
	return c.emit(ctx, event.TypeExecutionResumed, stage, nil)
}

// Halt unconditionally transitions to halted, emitting autonomy_halted
// with reason.
func (c *Controller) Halt(ctx context.Context, stage event.Stage, reason string) error {
	c.mu.Lock()
	c.state = StateHalted
	c.mu.Unlock()
	return c.emit(ctx, event.TypeAutonomyHalted, stage, map[string]any{"reason": reason})
}

// Complete transitions to completed, emitting autonomy_completed.
func (c *Controller) Complete(ctx context.Context, stage event.Stage) error {
	c.mu.Lock()
	c.state = StateCompleted
	c.mu.Unlock()
	return c.emit(ctx, event.TypeAutonomyCompleted, stage, nil)
}

func (c *Controller) checkBudgets() ExhaustedBudget {
	if c.Budgets.MaxIterations > 0 && c.iterations.Load() >= int64(c.Budgets.MaxIterations) {
		return ExhaustedIterations
	}
	if c.Budgets.MaxToolCalls > 0 && c.toolCalls.Load() >= int64(c.Budgets.MaxToolCalls) {
		return ExhaustedToolCalls
	}
	if c.Budgets.MaxWallTime > 0 && !c.startedAt.IsZero() && c.now().Sub(c.startedAt) >= c.Budgets.MaxWallTime {
		return ExhaustedWallTime
	}
	return ExhaustedNone
}

func (c *Controller) budgetsRemaining() map[string]any {
	remaining := map[string]any{}
	if c.Budgets.MaxIterations > 0 {
		remaining["iterations"] = c.Budgets.MaxIterations - int(c.iterations.Load())
	}
	if c.Budgets.MaxToolCalls > 0 {
		remaining["tool_calls"] = c.Budgets.MaxToolCalls - int(c.toolCalls.Load())
	}
	if c.Budgets.MaxWallTime > 0 {
		remaining["wall_time"] = (c.Budgets.MaxWallTime - c.now().Sub(c.startedAt)).String()
	}
	return remaining
}

func (c *Controller) emit(ctx context.Context, t event.Type, stage event.Stage, payload map[string]any) error {
	if c.Bus == nil {
		return nil
	}
	_, err := c.Bus.Publish(ctx, event.Event{
		TaskID:  c.TaskID,
		Type:    t,
		Mode:    c.startMode,
		Stage:   stage,
		Payload: payload,
	})
	if err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit "+string(t), err)
	}
	return nil
}
