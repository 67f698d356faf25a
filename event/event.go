// Package event implements the append-only journal and fan-out bus that
// is the single source of truth for the agentic execution core (spec §2,
// §4.1). Every mutation the system makes is first durably appended here,
// then observed by subscribers — never the other way around.
package event

import "time"

// Mode is one of the top-level execution modes (spec §3).
type Mode string

const (
	ModeAnswer  Mode = "ANSWER"
	ModePlan    Mode = "PLAN"
	ModeMission Mode = "MISSION"
)

// Stage is the sub-phase within a Mode (spec §3).
type Stage string

const (
	StageNone     Stage = "none"
	StagePlan     Stage = "plan"
	StageRetrieve Stage = "retrieve"
	StageEdit     Stage = "edit"
	StageTest     Stage = "test"
	StageRepair   Stage = "repair"
	StageCommand  Stage = "command"
)

// Type is the canonical, closed vocabulary of stored event types
// (spec §6 "Event types (closed set)").
type Type string

const (
	TypeIntentReceived        Type = "intent_received"
	TypeModeChanged           Type = "mode_changed"
	TypeStageChanged          Type = "stage_changed"
	TypePlanCreated           Type = "plan_created"
	TypePlanRevised           Type = "plan_revised"
	TypeApprovalRequested     Type = "approval_requested"
	TypeApprovalResolved      Type = "approval_resolved"
	TypeDiffProposed          Type = "diff_proposed"
	TypeDiffApplied           Type = "diff_applied"
	TypeCheckpointCreated     Type = "checkpoint_created"
	TypeCheckpointRestored    Type = "checkpoint_restored"
	TypeToolStart             Type = "tool_start"
	TypeToolEnd               Type = "tool_end"
	TypeStreamDelta           Type = "stream_delta"
	TypeStreamComplete        Type = "stream_complete"
	TypeModelFallbackUsed     Type = "model_fallback_used"
	TypeAutonomyStarted       Type = "autonomy_started"
	TypeAutonomyHalted        Type = "autonomy_halted"
	TypeAutonomyCompleted     Type = "autonomy_completed"
	TypeIterationStarted      Type = "iteration_started"
	TypeIterationSucceeded    Type = "iteration_succeeded"
	TypeIterationFailed       Type = "iteration_failed"
	TypeBudgetExhausted       Type = "budget_exhausted"
	TypeRepairAttempted       Type = "repair_attempted"
	TypeExecutionPaused       Type = "execution_paused"
	TypeExecutionResumed      Type = "execution_resumed"
	TypeScaffoldStarted       Type = "scaffold_started"
	TypeScaffoldProposal      Type = "scaffold_proposal_created"
	TypeScaffoldDecisionReq   Type = "scaffold_decision_requested"
	TypeScaffoldDecisionRes   Type = "scaffold_decision_resolved"
	TypeScaffoldCompleted     Type = "scaffold_completed"
	TypeCommandProposed       Type = "command_proposed"
	TypeCommandStarted        Type = "command_started"
	TypeCommandProgress       Type = "command_progress"
	TypeCommandCompleted      Type = "command_completed"
	TypeDecisionPointNeeded   Type = "decision_point_needed"
	TypeFailureDetected       Type = "failure_detected"
	TypeFinal                 Type = "final"
)

// Tier classifies an event for UI-visible ordering. Tier is derived from
// Type, never stored (spec §3 "Event Tier ... derived not stored").
type Tier string

const (
	TierUser     Tier = "user"
	TierProgress Tier = "progress"
	TierSystem   Tier = "system"
)

var userTierTypes = map[Type]bool{
	TypeIntentReceived:      true,
	TypePlanCreated:         true,
	TypePlanRevised:         true,
	TypeApprovalRequested:   true,
	TypeApprovalResolved:    true,
	TypeDiffProposed:        true,
	TypeDiffApplied:         true,
	TypeDecisionPointNeeded: true,
	TypeFailureDetected:     true,
	TypeFinal:               true,
}

var progressTierTypes = map[Type]bool{
	TypeIterationStarted:   true,
	TypeIterationSucceeded: true,
	TypeIterationFailed:    true,
	TypeToolStart:          true,
	TypeToolEnd:            true,
	TypeCommandStarted:     true,
	TypeCommandProgress:    true,
	TypeCommandCompleted:   true,
}

// TierOf derives the UI-visible tier for a given event type. Anything not
// explicitly classified as user- or progress-tier is system tier, shown
// only in diagnostics.
func TierOf(t Type) Tier {
	if userTierTypes[t] {
		return TierUser
	}
	if progressTierTypes[t] {
		return TierProgress
	}
	return TierSystem
}

// Event is an immutable, once-appended record (spec §3).
type Event struct {
	EventID        string         `json:"event_id"`
	TaskID         string         `json:"task_id"`
	Timestamp      time.Time      `json:"timestamp"`
	Type           Type           `json:"type"`
	Mode           Mode           `json:"mode"`
	Stage          Stage          `json:"stage"`
	Payload        map[string]any `json:"payload,omitempty"`
	EvidenceIDs    []string       `json:"evidence_ids,omitempty"`
	ParentEventID  string         `json:"parent_event_id,omitempty"`
}

// Tier reports this event's UI-visible tier.
func (e Event) Tier() Tier { return TierOf(e.Type) }

// Primitive is the broader event vocabulary accepted by EmitPrimitive and
// mapped onto the canonical stored Type (spec §4.1). The original
// primitive descriptor is preserved under payload._primitive so replay
// can recover it even though only the canonical Type is indexed.
type Primitive string

const (
	PrimitiveWarningRaised Primitive = "warning_raised"
	PrimitiveStateChanged  Primitive = "state_changed"
)

// primitiveToType maps the broader primitive vocabulary onto the closed
// canonical Type set. Primitives not found here fail closed in
// EmitPrimitive rather than silently minting a new stored type.
var primitiveToType = map[Primitive]Type{
	PrimitiveWarningRaised: TypeFailureDetected,
	PrimitiveStateChanged:  TypeStageChanged,
}
