// Package loop implements AgenticLoop and LoopSession (spec §4.8): the
// LLM⇄tool iteration cycle, its budget enforcement, and the persistent
// session state a paused run resumes from.
//
// Generalized from the teacher's graph.Runner step-execution cycle
// (call a node, inspect its result, decide the next node) into "call the
// LLM, inspect stop_reason/tool_use, decide whether to call a tool or
// stop" — the loop body below mirrors that same call/inspect/branch
// shape one level up, over LLM turns instead of graph nodes.
package loop

import (
	"time"

	"github.com/kalyank1144/agentcore/conversation"
	"github.com/kalyank1144/agentcore/llm"
)

// Limits bounds one LoopSession (spec §3 "limits
// {max_iter_per_run, max_total_iterations, max_total_tokens}").
type Limits struct {
	MaxIterPerRun      int
	MaxTotalIterations int
	MaxTotalTokens     int
}

// TokenTotals is cumulative input/output token usage across every call a
// session has made, possibly spanning several resumed runs.
type TokenTotals struct {
	Input  int
	Output int
}

// Add returns t with u's usage accumulated in.
func (t TokenTotals) Add(u llm.Usage) TokenTotals {
	return TokenTotals{Input: t.Input + u.InputTokens, Output: t.Output + u.OutputTokens}
}

// Total returns the sum of input and output tokens.
func (t TokenTotals) Total() int { return t.Input + t.Output }

// Session is LoopSession (spec §3): persistent state a paused loop
// resumes from, carrying enough to restore both the conversation and any
// staged edits exactly where a prior run() left off.
type Session struct {
	SessionID            string
	TaskID               string
	StepID               string
	IterationCount       int
	ContinueCount        int
	TokenTotals          TokenTotals
	LastStopReason       StopReason
	FinalText            string
	ToolCallsCount       int
	StagedSnapshot       any
	ConversationSnapshot []conversation.Message
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Limits               Limits
}

// NewSession constructs a fresh session with zeroed counters.
func NewSession(sessionID, taskID, stepID string, limits Limits, now time.Time) *Session {
	return &Session{
		SessionID: sessionID,
		TaskID:    taskID,
		StepID:    stepID,
		Limits:    limits,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanContinue reports whether another run() is permitted: neither the
// total-iteration nor the total-token budget has been exhausted.
func (s *Session) CanContinue() bool {
	return !s.IsIterationBudgetExhausted() && !s.IsTokenBudgetExhausted()
}

// IsIterationBudgetExhausted reports whether the session has used its
// entire max_total_iterations allowance across every run() so far.
func (s *Session) IsIterationBudgetExhausted() bool {
	return s.Limits.MaxTotalIterations > 0 && s.IterationCount >= s.Limits.MaxTotalIterations
}

// IsTokenBudgetExhausted reports whether cumulative token usage has met
// or exceeded max_total_tokens.
func (s *Session) IsTokenBudgetExhausted() bool {
	return s.Limits.MaxTotalTokens > 0 && s.TokenTotals.Total() >= s.Limits.MaxTotalTokens
}

// RemainingContinues estimates how many further run() calls the session
// could make at its per-run iteration cap before exhausting its total
// budget; zero once the session can no longer continue.
func (s *Session) RemainingContinues() int {
	if !s.CanContinue() || s.Limits.MaxIterPerRun <= 0 {
		return 0
	}
	remainingIter := s.Limits.MaxTotalIterations - s.IterationCount
	if s.Limits.MaxTotalIterations <= 0 {
		remainingIter = s.Limits.MaxIterPerRun
	}
	if remainingIter <= 0 {
		return 0
	}
	n := remainingIter / s.Limits.MaxIterPerRun
	if n == 0 {
		n = 1
	}
	return n
}

// RecordRun folds the outcome of one Run() call into the session:
// iteration/tool-call counters, token totals, the last stop reason and
// final text, and bumps UpdatedAt — the bookkeeping a caller performs
// before persisting the session for a possible later resume.
func (s *Session) RecordRun(result RunResult, now time.Time) {
	s.IterationCount += result.Iterations
	s.ToolCallsCount += len(result.ToolCalls)
	s.TokenTotals = s.TokenTotals.Add(result.TotalTokens)
	s.LastStopReason = result.StopReason
	s.FinalText = result.FinalText
	s.ContinueCount++
	s.UpdatedAt = now
}
