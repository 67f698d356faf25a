package loop

import (
	"context"
	"time"

	"github.com/kalyank1144/agentcore/conversation"
	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
	"github.com/kalyank1144/agentcore/event"
	"github.com/kalyank1144/agentcore/llm"
	"github.com/kalyank1144/agentcore/metrics"
)

// StopReason is why a Run() call ended — a superset of llm.StopReason
// that also covers the loop-level reasons (max_iterations) the glossary
// lists alongside the LLM-call-level ones (spec GLOSSARY "Stop reason").
type StopReason string

const (
	StopEndTurn       StopReason = StopReason(llm.StopEndTurn)
	StopMaxTokens     StopReason = StopReason(llm.StopMaxTokens)
	StopMaxIterations StopReason = "max_iterations"
	StopError         StopReason = StopReason(llm.StopError)
)

// ToolCallRecord is one completed tool execution from a Run() (spec §4.8
// step 3).
type ToolCallRecord struct {
	Name    string
	Input   map[string]any
	Success bool
	Output  string
	Error   string
}

// RunResult is what one Run() call returns (spec §4.8).
type RunResult struct {
	FinalText   string
	StopReason  StopReason
	Iterations  int
	ToolCalls   []ToolCallRecord
	TotalTokens llm.Usage
}

// Budgets bounds a single Run() call (spec §4.8 step 4). MaxIterations of
// zero means unlimited; likewise MaxTotalTokens.
type Budgets struct {
	MaxIterations  int
	MaxTotalTokens int
}

// Loop is AgenticLoop (spec §4.8): given an LLMClient, a ToolProvider,
// and a system prompt, it drives the call→tool→call cycle over a
// conversation.History, emitting tool_start/tool_end pairs for every LLM
// call and every tool execution.
type Loop struct {
	Client       llm.LLMClient
	Tools        llm.ToolProvider
	Bus          *event.Bus
	TaskID       string
	Mode         event.Mode
	Stage        event.Stage
	SystemPrompt string
	Model        string
	ToolSpecs    []llm.ToolSpec
	Budgets      Budgets
	OnText       func(text string)
	Metrics      *metrics.Metrics

	// Now is the injectable clock used for event timestamps and duration
	// accounting (spec §9: "clock ... must flow through an injectable
	// provider so a test can pin them"). Defaults to time.Now.
	Now func() time.Time
}

func (l *Loop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Run executes the loop over history until the LLM stops requesting
// tools, a budget is exhausted, or the LLM call itself errors (spec
// §4.8 steps 1-5).
func (l *Loop) Run(ctx context.Context, history *conversation.History) (RunResult, error) {
	iterations := 0
	var toolCalls []ToolCallRecord
	var totalTokens llm.Usage
	var lastUsage llm.Usage

	for {
		iterations++

		req := llm.MessageRequest{
			SystemPrompt: l.SystemPrompt,
			Messages:     history.GetMessages(),
			Tools:        l.ToolSpecs,
			Model:        l.Model,
		}

		callStart, err := l.emitToolStart(ctx, "llm_call", map[string]any{
			"multi_turn":    iterations > 1,
			"message_count": history.Length(),
			"has_context":   history.Length() > 0,
			"max_tokens":    req.MaxTokens,
		})
		if err != nil {
			return RunResult{}, err
		}

		resp, callErr := l.Client.CreateMessage(ctx, req)
		if callErr != nil {
			if _, err := l.emitToolEnd(ctx, callStart, "llm_call", "failed", llm.Usage{}, callErr.Error()); err != nil {
				return RunResult{}, err
			}
			return RunResult{
				StopReason:  StopError,
				Iterations:  iterations,
				ToolCalls:   toolCalls,
				TotalTokens: totalTokens,
			}, nil
		}

		lastUsage = resp.Usage
		totalTokens.InputTokens += resp.Usage.InputTokens
		totalTokens.OutputTokens += resp.Usage.OutputTokens
		l.Metrics.RecordTokens(l.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

		if _, err := l.emitToolEnd(ctx, callStart, "llm_call", "succeeded", resp.Usage, ""); err != nil {
			return RunResult{}, err
		}

		if resp.Text != "" && l.OnText != nil {
			l.OnText(resp.Text)
		}

		if resp.StopReason == llm.StopEndTurn && len(resp.ToolCalls) == 0 {
			if err := history.Append(conversation.TextMessage(conversation.RoleAssistant, resp.Text)); err != nil {
				return RunResult{}, err
			}
			return RunResult{
				FinalText:   resp.Text,
				StopReason:  StopEndTurn,
				Iterations:  iterations,
				ToolCalls:   toolCalls,
				TotalTokens: totalTokens,
			}, nil
		}

		records, assistantBlocks, resultBlocks, err := l.runTools(ctx, resp.ToolCalls)
		if err != nil {
			return RunResult{}, err
		}
		toolCalls = append(toolCalls, records...)

		if err := history.Append(conversation.BlockMessage(conversation.RoleAssistant, assistantBlocks...)); err != nil {
			return RunResult{}, err
		}
		if err := history.Append(conversation.BlockMessage(conversation.RoleUser, resultBlocks...)); err != nil {
			return RunResult{}, err
		}

		if l.Budgets.MaxIterations > 0 && iterations >= l.Budgets.MaxIterations {
			return RunResult{
				StopReason:  StopMaxIterations,
				Iterations:  iterations,
				ToolCalls:   toolCalls,
				TotalTokens: totalTokens,
			}, nil
		}

		// Budget accounting happens after a call completes, using the
		// most recent call's own usage as the proxy for what the next
		// call would cost (spec §9 open question: the source checks the
		// token budget post-hoc rather than predicting the next call's
		// exact size; this projects forward by the last call's actual
		// size since that is the only cost sample available).
		if l.Budgets.MaxTotalTokens > 0 && totalTokens.InputTokens+totalTokens.OutputTokens+lastUsage.InputTokens+lastUsage.OutputTokens > l.Budgets.MaxTotalTokens {
			return RunResult{
				StopReason:  StopMaxTokens,
				Iterations:  iterations,
				ToolCalls:   toolCalls,
				TotalTokens: totalTokens,
			}, nil
		}
	}
}

// runTools executes every tool_use the model requested, in order,
// emitting a tool_start/tool_end pair per call and building the paired
// tool_use/tool_result content blocks for history (spec §4.8 step 3).
func (l *Loop) runTools(ctx context.Context, calls []llm.ToolCall) ([]ToolCallRecord, []conversation.Block, []conversation.Block, error) {
	records := make([]ToolCallRecord, 0, len(calls))
	assistantBlocks := make([]conversation.Block, 0, len(calls))
	resultBlocks := make([]conversation.Block, 0, len(calls))

	for _, call := range calls {
		start, err := l.emitToolStart(ctx, call.Name, map[string]any{"tool_call_id": call.ID})
		if err != nil {
			return nil, nil, nil, err
		}

		result, execErr := l.Tools.ExecuteTool(ctx, call.Name, call.Input)
		if execErr != nil {
			result = llm.ToolResult{Success: false, Output: "", Error: execErr.Error()}
		}

		status := "succeeded"
		if !result.Success {
			status = "failed"
		}
		if _, err := l.emitToolEnd(ctx, start, call.Name, status, llm.Usage{}, result.Error); err != nil {
			return nil, nil, nil, err
		}
		l.Metrics.RecordToolCall(l.TaskID, call.Name, result.Success)

		records = append(records, ToolCallRecord{
			Name:    call.Name,
			Input:   call.Input,
			Success: result.Success,
			Output:  result.Output,
			Error:   result.Error,
		})
		assistantBlocks = append(assistantBlocks, conversation.ToolUseBlockOf(call.ID, call.Name, call.Input))
		resultBlocks = append(resultBlocks, conversation.ToolResultBlockOf(call.ID, result.Output))
	}

	return records, assistantBlocks, resultBlocks, nil
}

func (l *Loop) emitToolStart(ctx context.Context, tool string, fields map[string]any) (event.Event, error) {
	if l.Bus == nil {
		return event.Event{}, nil
	}
	payload := map[string]any{"tool": tool}
	for k, v := range fields {
		payload[k] = v
	}
	ev, err := l.Bus.Publish(ctx, event.Event{
		TaskID:  l.TaskID,
		Type:    event.TypeToolStart,
		Mode:    l.Mode,
		Stage:   l.Stage,
		Payload: payload,
	})
	if err != nil {
		return event.Event{}, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit tool_start", err)
	}
	return ev, nil
}

func (l *Loop) emitToolEnd(ctx context.Context, start event.Event, tool, status string, usage llm.Usage, errMsg string) (event.Event, error) {
	if l.Bus == nil {
		return event.Event{}, nil
	}
	payload := map[string]any{
		"tool":   tool,
		"status": status,
		"usage":  map[string]any{"input_tokens": usage.InputTokens, "output_tokens": usage.OutputTokens},
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	ev, err := l.Bus.Publish(ctx, event.Event{
		TaskID:        l.TaskID,
		Type:          event.TypeToolEnd,
		Mode:          l.Mode,
		Stage:         l.Stage,
		Payload:       payload,
		ParentEventID: start.EventID,
	})
	if err != nil {
		return event.Event{}, agentcoreerrors.Wrap(agentcoreerrors.KindPersistenceError, "emit tool_end", err)
	}
	return ev, nil
}
