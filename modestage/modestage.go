// Package modestage implements the Mode/Stage controller (spec §4.2):
// the state machine tracking the (Mode, Stage) tuple, rejecting illegal
// moves and emitting mode_changed/stage_changed events through the bus.
//
// Generalized from the teacher's graph/edge.go predicate-gated routing —
// here the "nodes" are (Mode, Stage) tuples and an "edge" joins any two
// values of the fixed legal mode and stage sets below rather than
// following a user-authored graph.
package modestage

import (
	"context"
	"sync"

	"github.com/kalyank1144/agentcore/event"
)

// ToolGate reports whether a tool named name is admitted in the given
// (mode, stage) pair (spec §3: "only specific (mode,stage) pairs admit
// certain tools").
type ToolGate func(mode event.Mode, stage event.Stage, toolName string) bool

// Machine tracks the current (Mode, Stage) tuple for one task and emits
// transition events through a Bus.
type Machine struct {
	mu       sync.Mutex
	taskID   string
	mode     event.Mode
	stage    event.Stage
	bus      *event.Bus
	toolGate ToolGate
}

// New constructs a Machine starting in ANSWER/none, the default entry
// point for any new conversation.
func New(taskID string, bus *event.Bus) *Machine {
	return &Machine{
		taskID: taskID,
		mode:   event.ModeAnswer,
		stage:  event.StageNone,
		bus:    bus,
	}
}

// WithToolGate installs a ToolGate used by IsToolAllowed.
func (m *Machine) WithToolGate(gate ToolGate) *Machine {
	m.toolGate = gate
	return m
}

// Current returns the current (mode, stage) tuple.
func (m *Machine) Current() (event.Mode, event.Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode, m.stage
}

// legalModes is the closed set of valid modes; legalStages the closed set
// of valid stages (spec §3).
var legalModes = map[event.Mode]bool{
	event.ModeAnswer:  true,
	event.ModePlan:    true,
	event.ModeMission: true,
}

var legalStages = map[event.Stage]bool{
	event.StageNone:     true,
	event.StagePlan:     true,
	event.StageRetrieve: true,
	event.StageEdit:     true,
	event.StageTest:     true,
	event.StageRepair:   true,
	event.StageCommand:  true,
}

// SetMode transitions to newMode, emitting mode_changed{from,to}. Only a
// legal mode value is accepted; an illegal target is rejected without
// mutating state or emitting an event.
func (m *Machine) SetMode(ctx context.Context, newMode event.Mode) (event.Event, error) {
	if !legalModes[newMode] {
		return event.Event{}, errIllegalMode(newMode)
	}

	m.mu.Lock()
	from := m.mode
	m.mode = newMode
	m.mu.Unlock()

	if from == newMode {
		return event.Event{}, nil
	}

	return m.bus.Publish(ctx, event.Event{
		TaskID: m.taskID,
		Type:   event.TypeModeChanged,
		Mode:   newMode,
		Stage:  m.stage,
		Payload: map[string]any{
			"from": string(from),
			"to":   string(newMode),
		},
	})
}

// SetStage transitions to newStage, emitting stage_changed{from,to}.
func (m *Machine) SetStage(ctx context.Context, newStage event.Stage) (event.Event, error) {
	if !legalStages[newStage] {
		return event.Event{}, errIllegalStage(newStage)
	}

	m.mu.Lock()
	from := m.stage
	m.stage = newStage
	mode := m.mode
	m.mu.Unlock()

	if from == newStage {
		return event.Event{}, nil
	}

	return m.bus.Publish(ctx, event.Event{
		TaskID: m.taskID,
		Type:   event.TypeStageChanged,
		Mode:   mode,
		Stage:  newStage,
		Payload: map[string]any{
			"from": string(from),
			"to":   string(newStage),
		},
	})
}

// IsToolAllowed reports whether toolName may run in the current
// (mode, stage). Returns true when no ToolGate has been installed
// (unrestricted by default).
func (m *Machine) IsToolAllowed(toolName string) bool {
	if m.toolGate == nil {
		return true
	}
	mode, stage := m.Current()
	return m.toolGate(mode, stage, toolName)
}

// OnlyMissionMayAutonomy reports whether the current mode permits
// entering autonomy (spec §3: "Only MISSION mode may enter autonomy").
func (m *Machine) OnlyMissionMayAutonomy() bool {
	mode, _ := m.Current()
	return mode == event.ModeMission
}
