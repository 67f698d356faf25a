package truncation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/kalyank1144/agentcore/conversation"
	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
	"github.com/kalyank1144/agentcore/llm"
	"github.com/kalyank1144/agentcore/llmedit"
)

// singleFileResponse is the narrower per-file JSON schema L2 forces the
// model into (spec §4.7 L2): either a file edit or the no_changes
// escape hatch, always tagged complete:true.
type singleFileResponse struct {
	File        string  `json:"file"`
	Action      string  `json:"action"`
	UnifiedDiff string  `json:"unified_diff"`
	NewContent  string  `json:"new_content"`
	BaseSHA     *string `json:"base_sha"`
	NoChanges   bool    `json:"no_changes"`
	Complete    bool    `json:"complete"`
}

// Result is what Execute returns: either a combined edit output ready
// for the validator, or a paused-for-decision signal (spec §4.7 L4).
type Result struct {
	Output            llmedit.EditOutput
	PausedForDecision bool
	PauseReason       string

	// WasSplit reports whether per-file recovery (L2/L3) ran at all,
	// whether or not it ultimately paused.
	WasSplit bool
	// TruncationDetected reports whether WasSplit was entered because L1
	// detected truncation (or an unparsable/invalid combined response) on
	// the single-call attempt, as opposed to a preflight (L3) split with
	// no observed truncation.
	TruncationDetected bool
}

// Executor is TruncationSafeExecutor (spec §4.7): preflight split,
// truncation detection, and per-file retry ledger, wrapping an
// llmedit.Tool for the combined single-call path and a raw llm.LLMClient
// for the narrower per-file L2 calls.
//
// Grounded on the teacher's graph/scheduler.go Frontier/WorkItem retry
// counting and graph/checkpoint.go's ErrMaxAttemptsExceeded idiom,
// generalized from per-node scheduling to per-file edit recovery, with
// retry/backoff via github.com/cenkalti/backoff/v4 (no such library is
// used directly by the teacher, but the overload/rate-limit retry
// requirement has no teacher analogue to imitate instead).
type Executor struct {
	Edit                    *llmedit.Tool
	Client                  llm.LLMClient
	MaxAttemptsPerFile      int
	RequireCompleteSentinel bool

	// NewBackOff constructs the retry schedule for one LLM call. Tests
	// substitute a zero-delay policy; production wires
	// backoff.NewExponentialBackOff.
	NewBackOff func() backoff.BackOff
}

// NewExecutor constructs an Executor with the production exponential
// backoff-with-jitter policy.
func NewExecutor(edit *llmedit.Tool, client llm.LLMClient, maxAttemptsPerFile int) *Executor {
	return &Executor{
		Edit:               edit,
		Client:             client,
		MaxAttemptsPerFile: maxAttemptsPerFile,
		NewBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Execute runs L0 through L4 for one edit step: preflight, the combined
// single-call attempt (unless preflight forces a split), truncation
// detection, and — when needed — the per-file retry ledger, finally
// combining the ledger into one llmedit.EditOutput.
func (e *Executor) Execute(ctx context.Context, model, stepDescription, combinedPrompt string, contextFiles []string, contextLineCount int, perFilePrompt func(file string) string) (Result, error) {
	pre := EstimatePreflight(contextFiles, stepDescription, contextLineCount)
	truncationDetected := false

	if !pre.ShouldSplit {
		out, truncated, err := e.attemptCombined(ctx, model, combinedPrompt)
		if err == nil && !truncated {
			return Result{Output: out}, nil
		}
		if err != nil && !agentcoreerrors.Is(err, agentcoreerrors.KindParseError) && !agentcoreerrors.Is(err, agentcoreerrors.KindSchemaError) {
			return Result{}, err
		}
		truncationDetected = true
		// Fall through to L2 split-by-file recovery.
	}

	if len(pre.TargetFiles) == 0 {
		return Result{}, agentcoreerrors.New(agentcoreerrors.KindSplitFailed, "truncation recovery requires at least one target file")
	}

	return e.splitByFile(ctx, model, pre.TargetFiles, perFilePrompt, truncationDetected)
}

// attemptCombined is the single-call path: it calls the LLM once,
// applies L1 detection to the raw response, and only parses/validates
// when detection finds no truncation signal.
func (e *Executor) attemptCombined(ctx context.Context, model, prompt string) (llmedit.EditOutput, bool, error) {
	resp, err := e.callWithRetry(ctx, func() (llm.MessageResponse, error) {
		return e.Edit.Call(ctx, model, prompt)
	})
	if err != nil {
		return llmedit.EditOutput{}, false, err
	}

	if IsTruncated(DetectionInput{StopReason: resp.StopReason, RawText: extractCandidateJSON(resp.Text), RequireCompleteSentinel: e.RequireCompleteSentinel}) {
		return llmedit.EditOutput{}, true, nil
	}

	out, err := e.Edit.ParseAndValidate(resp.Text)
	return out, false, err
}

// splitByFile is L2/L3: one single-file LLM call per target file,
// retried per-file up to MaxAttemptsPerFile, pausing (L4) when the
// ledger can no longer progress.
func (e *Executor) splitByFile(ctx context.Context, model string, files []string, perFilePrompt func(file string) string, truncationDetected bool) (Result, error) {
	ledger := NewLedger(files, e.MaxAttemptsPerFile)

	for {
		rows := ledger.Rows()
		if IsComplete(rows) {
			break
		}
		if ShouldPause(rows) {
			return Result{PausedForDecision: true, PauseReason: describePause(rows), WasSplit: true, TruncationDetected: truncationDetected}, nil
		}

		for _, row := range rows {
			if row.Status != FileStatusPending {
				continue
			}
			ledger.MarkInProgress(row.Path)

			prompt := perFilePrompt(row.Path)
			resp, err := e.callWithRetry(ctx, func() (llm.MessageResponse, error) {
				return e.Client.CreateMessage(ctx, llm.MessageRequest{
					Model:    model,
					Messages: []conversation.Message{conversation.TextMessage(conversation.RoleUser, prompt)},
				})
			})
			if err != nil {
				ledger.MarkFailed(row.Path, err.Error())
				continue
			}

			if IsTruncated(DetectionInput{StopReason: resp.StopReason, RawText: resp.Text, RequireCompleteSentinel: true}) {
				ledger.MarkFailed(row.Path, "truncated response")
				continue
			}

			var parsed singleFileResponse
			if err := json.Unmarshal([]byte(extractCandidateJSON(resp.Text)), &parsed); err != nil {
				ledger.MarkFailed(row.Path, "unparsable single-file response: "+err.Error())
				continue
			}
			if !parsed.Complete {
				ledger.MarkFailed(row.Path, "response missing complete sentinel")
				continue
			}

			if parsed.NoChanges {
				ledger.MarkNoChanges(row.Path)
				continue
			}
			ledger.MarkDone(row.Path, parsed.UnifiedDiff)
		}

		if ShouldPause(ledger.Rows()) {
			return Result{PausedForDecision: true, PauseReason: describePause(ledger.Rows()), WasSplit: true, TruncationDetected: truncationDetected}, nil
		}
	}

	return Result{Output: combineLedger(ledger.Rows()), WasSplit: true, TruncationDetected: truncationDetected}, nil
}

// combineLedger implements spec §4.7's "combining results": touched
// files union into one LLMEditStepOutput with confidence="high", the
// combined unified diff concatenated, and validation_status="ok".
// Identical ledger states produce identical outputs since rows are
// iterated in their fixed target-file order.
func combineLedger(rows []FileRow) llmedit.EditOutput {
	var diffs []string
	touched := make([]llmedit.TouchedFile, 0, len(rows))
	for _, r := range rows {
		if r.Status != FileStatusDone || r.ProducedOutput == "" {
			continue
		}
		diffs = append(diffs, r.ProducedOutput)
		touched = append(touched, llmedit.TouchedFile{
			Path:   r.Path,
			Action: llmedit.ActionUpdate,
		})
	}
	return llmedit.EditOutput{
		UnifiedDiff:      strings.Join(diffs, "\n"),
		TouchedFiles:     touched,
		Confidence:       llmedit.ConfidenceHigh,
		ValidationStatus: llmedit.StatusOK,
	}
}

// describePause builds the human-readable pauseReason with per-file
// error breakdowns required by L4.
func describePause(rows []FileRow) string {
	var sb strings.Builder
	sb.WriteString("truncation recovery could not complete all files:")
	for _, r := range rows {
		if r.Status == FileStatusFailed || (r.Status != FileStatusDone && r.Status != FileStatusSkipped) {
			fmt.Fprintf(&sb, " %s=%s(attempts=%d,last_error=%q)", r.Path, r.Status, r.AttemptCount, r.LastError)
		}
	}
	return sb.String()
}

// callWithRetry retries call with exponential backoff + jitter on
// transient overload/rate-limit errors (spec §4.7), surfacing any
// other error immediately.
func (e *Executor) callWithRetry(ctx context.Context, call func() (llm.MessageResponse, error)) (llm.MessageResponse, error) {
	var resp llm.MessageResponse
	operation := func() error {
		var err error
		resp, err = call()
		if err != nil && isRetryableLLMError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithContext(e.backOff(), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		// backoff.Retry already unwraps a *backoff.PermanentError to its
		// inner err before returning, so err here is always the original
		// call failure (or, for an exhausted retryable error, the last
		// attempt's error) — nothing further to unwrap.
		return llm.MessageResponse{}, err
	}
	return resp, nil
}

func (e *Executor) backOff() backoff.BackOff {
	if e.NewBackOff != nil {
		return e.NewBackOff()
	}
	return backoff.NewExponentialBackOff()
}

// extractCandidateJSON is a tolerant best-effort brace slice used only
// for truncation detection's parse-failure signal; it does not need
// llmedit's fence-stripping since detection only cares whether a JSON
// object is present at all.
func extractCandidateJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
