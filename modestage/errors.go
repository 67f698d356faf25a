package modestage

import (
	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
	"github.com/kalyank1144/agentcore/event"
)

func errIllegalMode(m event.Mode) error {
	return agentcoreerrors.New(agentcoreerrors.KindModeViolation, "illegal mode: "+string(m))
}

func errIllegalStage(s event.Stage) error {
	return agentcoreerrors.New(agentcoreerrors.KindModeViolation, "illegal stage: "+string(s))
}
