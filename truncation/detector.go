package truncation

import (
	"encoding/json"
	"strings"

	"github.com/kalyank1144/agentcore/llm"
)

// truncatingStopReasons is signal (1) of L1 detection: stop reasons that
// indicate the model ran out of room rather than finishing naturally.
var truncatingStopReasons = map[llm.StopReason]bool{
	llm.StopMaxTokens:    true,
	llm.StopLength:       true,
	llm.StopStopSequence: true,
}

// DetectionInput bundles the three signals L1 inspects.
type DetectionInput struct {
	StopReason llm.StopReason
	RawText    string
	// RequireCompleteSentinel enables signal (3): when true, a response
	// missing a top-level "complete": true is considered truncated even
	// if it parses and its stop_reason looks clean.
	RequireCompleteSentinel bool
}

// IsTruncated implements spec §4.7 L1: any of three signals marks
// output truncated — (1) a stop_reason indicating the model was cut
// off, (2) the raw text fails to parse as JSON, (3) when configured,
// the JSON parses but lacks a complete:true sentinel.
func IsTruncated(in DetectionInput) bool {
	if truncatingStopReasons[in.StopReason] {
		return true
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(in.RawText)), &payload); err != nil {
		return true
	}

	if in.RequireCompleteSentinel {
		complete, _ := payload["complete"].(bool)
		if !complete {
			return true
		}
	}

	return false
}
