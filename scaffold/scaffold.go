// Package scaffold implements ScaffoldFlowCoordinator (spec §4.12): the
// event-sourced multi-step decision flow that drives greenfield project
// creation. Every transition is driven by an event, and
// DeriveScaffoldFlowState folds any event sequence into a FlowState
// purely, so replaying the same events always yields the same state.
//
// Generalized from the teacher's Reducer[S] type (graph/engine.go: "fold
// state deltas purely, no side effects") narrowed from a generic
// workflow-state fold to this one fixed scaffold-flow state machine.
package scaffold

import (
	"context"

	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
	"github.com/kalyank1144/agentcore/event"
)

// Status is the scaffold flow's own state (spec §4.12: "started →
// proposal_created → awaiting_decision → completed").
type Status string

const (
	StatusStarted          Status = "started"
	StatusProposalCreated  Status = "proposal_created"
	StatusAwaitingDecision Status = "awaiting_decision"
	StatusCompleted        Status = "completed"
)

// DecisionAction is one of the three user actions a decision resolves to
// (spec §4.12).
type DecisionAction string

const (
	ActionProceed     DecisionAction = "proceed"
	ActionCancel      DecisionAction = "cancel"
	ActionChangeStyle DecisionAction = "change_style"
)

// CompletionStatus is the terminal outcome a flow completes with (spec
// §4.12: "completion statuses {ready_for_step_35_2, cancelled}").
type CompletionStatus string

const (
	CompletionNone      CompletionStatus = ""
	CompletionReady     CompletionStatus = "ready_for_step_35_2"
	CompletionCancelled CompletionStatus = "cancelled"
)

// FlowState is the pure fold of a scaffold flow's event history
// (DeriveScaffoldFlowState's return type).
type FlowState struct {
	Status               Status
	Proposal             map[string]any
	AvailableDesignPacks []string
	CompletionStatus     CompletionStatus
}

// DeriveScaffoldFlowState is the pure reducer spec §4.12 requires for
// replay: deriveScaffoldFlowState(events) always returns the same
// FlowState for the same event sequence, and never mutates its input.
func DeriveScaffoldFlowState(events []event.Event) FlowState {
	var s FlowState
	for _, e := range events {
		switch e.Type {
		case event.TypeScaffoldStarted:
			s = FlowState{Status: StatusStarted}
		case event.TypeScaffoldProposal:
			s.Status = StatusProposalCreated
			if proposal, ok := e.Payload["proposal"].(map[string]any); ok {
				s.Proposal = proposal
			}
		case event.TypeScaffoldDecisionReq:
			s.Status = StatusAwaitingDecision
			if packs, ok := stringSlice(e.Payload["available_design_packs"]); ok {
				s.AvailableDesignPacks = packs
			}
		case event.TypeScaffoldDecisionRes:
			action, _ := e.Payload["action"].(string)
			switch DecisionAction(action) {
			case ActionProceed:
				s.CompletionStatus = CompletionReady
			case ActionCancel:
				s.CompletionStatus = CompletionCancelled
			case ActionChangeStyle:
				// Re-arms rather than completes: a fresh proposal and
				// decision follow, so the flow's own CompletionStatus
				// stays unset until a later proceed/cancel.
				s.Status = StatusProposalCreated
			}
		case event.TypeScaffoldCompleted:
			s.Status = StatusCompleted
			if status, ok := e.Payload["status"].(string); ok {
				s.CompletionStatus = CompletionStatus(status)
			}
		}
	}
	return s
}

// stringSlice reads a []string payload field that may have round-tripped
// through JSON storage (event/sqlite_store.go, event/mysql_store.go): Go's
// encoding/json always unmarshals a JSON array into map[string]any as
// []interface{}, never []string, so a direct type assertion only succeeds
// for events that never left memory.
func stringSlice(v any) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// Coordinator is ScaffoldFlowCoordinator: it emits the events
// DeriveScaffoldFlowState folds, but owns no state of its own beyond the
// bus — every question about "where is this flow" is answered by
// replaying events, never by an in-memory field here.
type Coordinator struct {
	Bus    *event.Bus
	TaskID string
}

// Start emits scaffold_started.
func (c *Coordinator) Start(ctx context.Context, mode event.Mode) error {
	return c.emit(ctx, event.TypeScaffoldStarted, mode, nil)
}

// ProposeOptions emits scaffold_proposal_created carrying proposal.
func (c *Coordinator) ProposeOptions(ctx context.Context, mode event.Mode, proposal map[string]any) error {
	return c.emit(ctx, event.TypeScaffoldProposal, mode, map[string]any{"proposal": proposal})
}

// RequestDecision emits scaffold_decision_requested, optionally carrying
// the design packs on offer (populated when this decision follows a
// change_style selection, per spec §4.12's style_selection_requested
// detail folded into this same event type).
func (c *Coordinator) RequestDecision(ctx context.Context, mode event.Mode, availableDesignPacks []string) error {
	payload := map[string]any{}
	if len(availableDesignPacks) > 0 {
		payload["available_design_packs"] = availableDesignPacks
	}
	return c.emit(ctx, event.TypeScaffoldDecisionReq, mode, payload)
}

// ResolveDecision emits scaffold_decision_resolved for action, then, for
// proceed/cancel, emits scaffold_completed with the matching
// CompletionStatus (spec §4.12). change_style resolves the current
// decision but does not complete the flow — the caller is expected to
// call ProposeOptions then RequestDecision again with the chosen pack to
// re-arm it.
func (c *Coordinator) ResolveDecision(ctx context.Context, mode event.Mode, action DecisionAction, chosenPack string) (CompletionStatus, error) {
	payload := map[string]any{"action": string(action)}
	if chosenPack != "" {
		payload["chosen_pack"] = chosenPack
	}
	if err := c.emit(ctx, event.TypeScaffoldDecisionRes, mode, payload); err != nil {
		return CompletionNone, err
	}

	var completion CompletionStatus
	switch action {
	case ActionProceed:
		completion = CompletionReady
	case ActionCancel:
		completion = CompletionCancelled
	case ActionChangeStyle:
		return CompletionNone, nil
	default:
		return CompletionNone, agentcoreerrors.New(agentcoreerrors.KindValidationError, "unknown scaffold decision action: "+string(action))
	}

	if err := c.emit(ctx, event.TypeScaffoldCompleted, mode, map[string]any{"status": string(completion)}); err != nil {
		return CompletionNone, err
	}
	return completion, nil
}

func (c *Coordinator) emit(ctx context.Context, t event.Type, mode event.Mode, payload map[string]any) error {
	if c.Bus == nil {
		return nil
	}
	_, err := c.Bus.Publish(ctx, event.Event{
		TaskID:  c.TaskID,
		Type:    t,
		Mode:    mode,
		Stage:   event.StagePlan,
		Payload: payload,
	})
	if err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit "+string(t), err)
	}
	return nil
}
