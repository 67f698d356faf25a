// Package streaming implements the multi-turn streaming LLM driver (spec
// §4.9): for ANSWER/PLAN callers that want token-level output, it opens a
// provider streaming session, forwards each text delta to a caller-supplied
// callback as it arrives, and brackets the whole call with tool_start/
// tool_end events so a streamed turn is indistinguishable, in the event
// log, from a non-streamed one.
//
// Generalized from the teacher's model adapters returning one final
// ChatOut into consuming llm.LLMClient.StreamMessage's channel of
// incremental events and re-publishing the subset of them (text_delta,
// message_delta) the spec calls stream_delta/stream_complete.
package streaming

import (
	"context"

	"github.com/kalyank1144/agentcore/conversation"
	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
	"github.com/kalyank1144/agentcore/event"
	"github.com/kalyank1144/agentcore/llm"
)

// Chunk is one delivery to a caller's onChunk callback (spec §4.9).
type Chunk struct {
	Delta string
	Done  bool
}

// Driver runs one streamed LLM turn over a conversation (spec §4.9). It is
// not itself a loop: callers that need tool execution drive AgenticLoop
// instead and use Driver only for the final, tool-free answer turn.
type Driver struct {
	Client llm.LLMClient
	Bus    *event.Bus
	TaskID string
	Mode   event.Mode
	Stage  event.Stage
}

// Result is what one streamed turn produced.
type Result struct {
	Text       string
	StopReason llm.StopReason
	Usage      llm.Usage
}

// Run opens a streaming session for history, forwarding each text delta to
// onChunk as it arrives and returning once the provider's stream ends.
//
// Event sequence (spec §4.9): tool_start(tool="llm_answer") before the
// first byte crosses the wire; one stream_delta per text_delta event;
// one stream_complete carrying total_tokens once a message_delta with
// usage arrives; tool_end (status, usage, parent_event_id=tool_start's
// id) last — on error, tool_end carries status=failed and the error is
// returned to the caller, mirroring the spec's "emits tool_end with
// status=failed and re-throws."
func (d *Driver) Run(ctx context.Context, req llm.MessageRequest, history *conversation.History, onChunk func(Chunk)) (Result, error) {
	start, err := d.emitStart(ctx, len(req.Messages))
	if err != nil {
		return Result{}, err
	}

	events, err := d.Client.StreamMessage(ctx, req)
	if err != nil {
		if _, endErr := d.emitEnd(ctx, start, "failed", llm.Usage{}, err.Error()); endErr != nil {
			return Result{}, endErr
		}
		return Result{}, err
	}

	var text string
	var usage llm.Usage
	stopReason := llm.StopEndTurn

	for ev := range events {
		switch ev.Kind {
		case llm.StreamTextDelta:
			if ev.TextDelta == "" {
				continue
			}
			text += ev.TextDelta
			if err := d.emitDelta(ctx, start, ev.TextDelta); err != nil {
				return Result{}, err
			}
			if onChunk != nil {
				onChunk(Chunk{Delta: ev.TextDelta, Done: false})
			}
		case llm.StreamMessageDelta:
			usage = ev.Usage
			stopReason = ev.StopReason
			if err := d.emitComplete(ctx, start, usage); err != nil {
				return Result{}, err
			}
		case llm.StreamToolCall:
			// Non-text deltas (tool_use / input_json) are ignored by the
			// streaming driver: tool execution belongs to AgenticLoop.
		case llm.StreamError:
			if _, endErr := d.emitEnd(ctx, start, "failed", usage, ev.Err.Error()); endErr != nil {
				return Result{}, endErr
			}
			return Result{}, agentcoreerrors.Wrap(agentcoreerrors.KindLLMError, "streaming session failed", ev.Err)
		}
	}

	if onChunk != nil {
		onChunk(Chunk{Delta: "", Done: true})
	}

	if history != nil && text != "" {
		if err := history.Append(conversation.TextMessage(conversation.RoleAssistant, text)); err != nil {
			return Result{}, err
		}
	}

	if _, err := d.emitEnd(ctx, start, "succeeded", usage, ""); err != nil {
		return Result{}, err
	}

	return Result{Text: text, StopReason: stopReason, Usage: usage}, nil
}

func (d *Driver) emitStart(ctx context.Context, messageCount int) (event.Event, error) {
	if d.Bus == nil {
		return event.Event{}, nil
	}
	ev, err := d.Bus.Publish(ctx, event.Event{
		TaskID: d.TaskID,
		Type:   event.TypeToolStart,
		Mode:   d.Mode,
		Stage:  d.Stage,
		Payload: map[string]any{
			"tool":          "llm_answer",
			"multi_turn":    messageCount > 1,
			"message_count": messageCount,
			"has_context":   messageCount > 0,
		},
	})
	if err != nil {
		return event.Event{}, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit tool_start", err)
	}
	return ev, nil
}

func (d *Driver) emitDelta(ctx context.Context, start event.Event, delta string) error {
	if d.Bus == nil {
		return nil
	}
	_, err := d.Bus.Publish(ctx, event.Event{
		TaskID:        d.TaskID,
		Type:          event.TypeStreamDelta,
		Mode:          d.Mode,
		Stage:         d.Stage,
		Payload:       map[string]any{"delta": delta},
		ParentEventID: start.EventID,
	})
	if err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit stream_delta", err)
	}
	return nil
}

func (d *Driver) emitComplete(ctx context.Context, start event.Event, usage llm.Usage) error {
	if d.Bus == nil {
		return nil
	}
	_, err := d.Bus.Publish(ctx, event.Event{
		TaskID: d.TaskID,
		Type:   event.TypeStreamComplete,
		Mode:   d.Mode,
		Stage:  d.Stage,
		Payload: map[string]any{
			"total_tokens": usage.InputTokens + usage.OutputTokens,
		},
		ParentEventID: start.EventID,
	})
	if err != nil {
		return agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit stream_complete", err)
	}
	return nil
}

func (d *Driver) emitEnd(ctx context.Context, start event.Event, status string, usage llm.Usage, errMsg string) (event.Event, error) {
	if d.Bus == nil {
		return event.Event{}, nil
	}
	payload := map[string]any{
		"tool":   "llm_answer",
		"status": status,
		"usage":  map[string]any{"input_tokens": usage.InputTokens, "output_tokens": usage.OutputTokens},
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	ev, err := d.Bus.Publish(ctx, event.Event{
		TaskID:        d.TaskID,
		Type:          event.TypeToolEnd,
		Mode:          d.Mode,
		Stage:         d.Stage,
		Payload:       payload,
		ParentEventID: start.EventID,
	})
	if err != nil {
		return event.Event{}, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit tool_end", err)
	}
	return ev, nil
}
