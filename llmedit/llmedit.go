// Package llmedit implements LLMEditTool (spec §4.6): a one-shot
// edit-generation call that forces the LLM into a strict JSON response
// shape, then parses it leniently and enforces file/line budgets.
//
// Generalized from the teacher's graph/model.ChatModel "chat with
// optional tool calls" contract into "chat forced into one structured
// JSON edit response" — the LLM is prompted with a system message
// demanding exactly the touched_files/unified_diff/confidence/
// validation_status shape, and the response's text block is parsed as
// that JSON rather than inspected for tool_use blocks.
package llmedit

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/kalyank1144/agentcore/conversation"
	"github.com/kalyank1144/agentcore/diffs"
	agentcoreerrors "github.com/kalyank1144/agentcore/errors"
	"github.com/kalyank1144/agentcore/llm"
)

// Action is the kind of change a TouchedFile represents.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ValidationStatus is the normalized outcome the LLM reports for its own
// edit.
type ValidationStatus string

const (
	StatusOK           ValidationStatus = "ok"
	StatusStaleContext ValidationStatus = "stale_context"
	StatusCannotEdit   ValidationStatus = "cannot_edit"
)

// statusAliases normalizes loosely-worded model output into the closed
// ValidationStatus vocabulary (spec §4.6).
var statusAliases = map[string]ValidationStatus{
	"ok":            StatusOK,
	"success":       StatusOK,
	"stale":         StatusStaleContext,
	"stale_context": StatusStaleContext,
	"failed":        StatusCannotEdit,
	"cannot_edit":   StatusCannotEdit,
}

// Confidence is the model's self-reported confidence in its edit.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// TouchedFile is one file entry in an edit response.
type TouchedFile struct {
	Path       string  `json:"path"`
	Action     Action  `json:"action"`
	NewContent string  `json:"new_content"`
	BaseSHA    *string `json:"base_sha"`
}

// EditOutput is the parsed, validated result of one LLMEditTool call
// (spec §3 LLMEditStepOutput / §4.6).
type EditOutput struct {
	UnifiedDiff      string
	TouchedFiles     []TouchedFile
	Confidence       Confidence
	Notes            string
	ValidationStatus ValidationStatus
}

// rawEditResponse mirrors the wire JSON shape the system prompt demands,
// before alias normalization and validation.
type rawEditResponse struct {
	UnifiedDiff      string           `json:"unified_diff"`
	TouchedFiles     []rawTouchedFile `json:"touched_files"`
	Confidence       string           `json:"confidence"`
	Notes            string           `json:"notes"`
	ValidationStatus string           `json:"validation_status"`
}

type rawTouchedFile struct {
	Path       string  `json:"path"`
	Action     string  `json:"action"`
	NewContent string  `json:"new_content"`
	BaseSHA    *string `json:"base_sha"`
}

// Budgets bounds the size of an edit (spec §4.6).
type Budgets struct {
	MaxFiles        int
	MaxChangedLines int
}

const systemPromptTemplate = `You are an edit-generation assistant. Respond with exactly one JSON object and nothing else, of this shape:
{
  "unified_diff": "<unified diff text>",
  "touched_files": [{"path": "...", "action": "create|update|delete", "new_content": "...", "base_sha": "... or null"}],
  "confidence": "low|medium|high",
  "notes": "...",
  "validation_status": "ok|stale_context|cannot_edit"
}
Do not wrap the JSON in markdown code fences. Do not include any prose before or after the object.`

// Tool calls an LLMClient and parses its response into an EditOutput,
// enforcing the spec's budgets and shape invariants.
type Tool struct {
	Client  llm.LLMClient
	Budgets Budgets
}

// New constructs an edit tool bound to client with the given budgets.
func New(client llm.LLMClient, budgets Budgets) *Tool {
	return &Tool{Client: client, Budgets: budgets}
}

// Generate sends userPrompt with the strict edit system prompt, parses
// the response leniently, and validates it against t.Budgets (spec
// §4.6). Returns a *errors.Error of kind llm_error, parse_error,
// schema_error, or validation_error on failure.
func (t *Tool) Generate(ctx context.Context, model, userPrompt string) (EditOutput, error) {
	resp, err := t.Call(ctx, model, userPrompt)
	if err != nil {
		return EditOutput{}, err
	}
	return t.ParseAndValidate(resp.Text)
}

// Call issues the raw edit-generation request and returns the model's
// response unparsed, so a caller such as TruncationSafeExecutor can
// inspect StopReason before deciding whether to parse at all.
func (t *Tool) Call(ctx context.Context, model, userPrompt string) (llm.MessageResponse, error) {
	req := llm.MessageRequest{
		SystemPrompt: systemPromptTemplate,
		Messages:     []conversation.Message{conversation.TextMessage(conversation.RoleUser, userPrompt)},
		Model:        model,
	}

	resp, err := t.Client.CreateMessage(ctx, req)
	if err != nil {
		return llm.MessageResponse{}, agentcoreerrors.Wrap(agentcoreerrors.KindLLMError, "edit generation call failed", err)
	}
	return resp, nil
}

// ParseAndValidate extracts and validates the edit-response JSON from a
// model's raw text output.
func (t *Tool) ParseAndValidate(text string) (EditOutput, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return EditOutput{}, agentcoreerrors.Wrap(agentcoreerrors.KindParseError, "could not locate JSON object in model response", err)
	}

	var parsed rawEditResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return EditOutput{}, agentcoreerrors.Wrap(agentcoreerrors.KindSchemaError, "edit response did not match the expected shape", err)
	}

	return t.validate(parsed)
}

func (t *Tool) validate(raw rawEditResponse) (EditOutput, error) {
	status, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw.ValidationStatus))]
	if !ok {
		return EditOutput{}, agentcoreerrors.New(agentcoreerrors.KindSchemaError, "unrecognized validation_status: "+raw.ValidationStatus)
	}

	confidence := Confidence(strings.ToLower(strings.TrimSpace(raw.Confidence)))
	switch confidence {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
	default:
		return EditOutput{}, agentcoreerrors.New(agentcoreerrors.KindSchemaError, "unrecognized confidence: "+raw.Confidence)
	}

	if len(raw.TouchedFiles) > t.Budgets.MaxFiles && t.Budgets.MaxFiles > 0 {
		return EditOutput{}, agentcoreerrors.New(agentcoreerrors.KindValidationError, "touched file count exceeds max_files")
	}

	touched := make([]TouchedFile, 0, len(raw.TouchedFiles))
	for _, tf := range raw.TouchedFiles {
		if tf.Path == "" {
			return EditOutput{}, agentcoreerrors.New(agentcoreerrors.KindValidationError, "touched file missing path")
		}
		action := Action(strings.ToLower(strings.TrimSpace(tf.Action)))
		switch action {
		case ActionCreate, ActionUpdate, ActionDelete:
		default:
			return EditOutput{}, agentcoreerrors.New(agentcoreerrors.KindValidationError, "unrecognized action for file: "+tf.Path)
		}

		if (action == ActionCreate || action == ActionUpdate) && tf.NewContent == "" {
			return EditOutput{}, agentcoreerrors.New(agentcoreerrors.KindValidationError, "new_content required for create/update: "+tf.Path)
		}

		baseSHA := tf.BaseSHA
		if action == ActionCreate {
			baseSHA = nil
		} else if baseSHA == nil {
			return EditOutput{}, agentcoreerrors.New(agentcoreerrors.KindValidationError, "base_sha required for non-create action: "+tf.Path)
		}

		touched = append(touched, TouchedFile{
			Path:       tf.Path,
			Action:     action,
			NewContent: tf.NewContent,
			BaseSHA:    baseSHA,
		})
	}

	if t.Budgets.MaxChangedLines > 0 {
		totalLines, err := countChangedLines(raw.UnifiedDiff)
		if err != nil {
			return EditOutput{}, agentcoreerrors.Wrap(agentcoreerrors.KindSchemaError, "could not parse unified_diff to enforce max_changed_lines", err)
		}
		if totalLines > t.Budgets.MaxChangedLines {
			return EditOutput{}, agentcoreerrors.New(agentcoreerrors.KindValidationError, "changed line count exceeds max_changed_lines")
		}
	}

	return EditOutput{
		UnifiedDiff:      raw.UnifiedDiff,
		TouchedFiles:     touched,
		Confidence:       confidence,
		Notes:            raw.Notes,
		ValidationStatus: status,
	}, nil
}

// countChangedLines returns the total added+deleted line count across a
// unified diff, the same Additions+Deletions accounting diffs.Validate
// uses for scope's max-lines cap, so max_changed_lines reflects the
// edit's actual delta rather than the size of any one touched file's
// new_content (an ActionDelete has no new_content at all, and an
// ActionUpdate's new_content may dwarf its real diff).
func countChangedLines(unifiedDiff string) (int, error) {
	if strings.TrimSpace(unifiedDiff) == "" {
		return 0, nil
	}
	pd, err := diffs.Parse(unifiedDiff)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, fd := range pd.Files {
		total += fd.Additions + fd.Deletions
	}
	return total, nil
}

var controlCharPattern = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)

// extractJSON implements spec §4.6's lenient extraction: strip
// surrounding markdown code fences, locate the outermost matching
// braces, and sanitize stray control characters inside string values
// before handing the result to encoding/json.
func extractJSON(text string) (string, error) {
	text = stripCodeFences(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return "", agentcoreerrors.New(agentcoreerrors.KindParseError, "no JSON object found in response")
	}
	candidate := text[start : end+1]
	return controlCharPattern.ReplaceAllString(candidate, ""), nil
}

var codeFencePattern = regexp.MustCompile("```(?:json)?\\n?([\\s\\S]*?)```")

func stripCodeFences(text string) string {
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// ToolEndStatus is the closed status vocabulary recorded on every
// tool_end emission for an edit-generation call (spec §4.6: "every
// outcome emits tool_end with status and duration").
type ToolEndStatus string

const (
	ToolEndSucceeded ToolEndStatus = "succeeded"
	ToolEndFailed    ToolEndStatus = "failed"
)

// Outcome pairs an EditOutput (or error) with the bookkeeping a caller
// needs to emit tool_end: status and elapsed duration.
type Outcome struct {
	Output   EditOutput
	Err      error
	Status   ToolEndStatus
	Duration time.Duration
}

// GenerateTimed wraps Generate, recording status/duration for the
// caller's tool_end emission.
func (t *Tool) GenerateTimed(ctx context.Context, model, userPrompt string, now func() time.Time) Outcome {
	start := now()
	out, err := t.Generate(ctx, model, userPrompt)
	status := ToolEndSucceeded
	if err != nil {
		status = ToolEndFailed
	}
	return Outcome{Output: out, Err: err, Status: status, Duration: now().Sub(start)}
}
