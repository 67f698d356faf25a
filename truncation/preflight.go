package truncation

import "regexp"

// Complexity is the coarse preflight sizing bucket (spec §4.7 L0).
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "med"
	ComplexityHigh   Complexity = "high"
)

// Preflight is the result of L0: the derived target file set, its
// estimated complexity, and whether the caller should skip straight to
// the per-file split path (L3).
type Preflight struct {
	TargetFiles []string
	Complexity  Complexity
	ShouldSplit bool
}

// filePathPattern pulls plausible file paths (containing a dot and a
// slash-free or slashed segment) out of a free-text step description,
// grounded on the closed set of extensions an edit step is likely to
// reference.
var filePathPattern = regexp.MustCompile(`[\w./-]+\.(?:go|ts|tsx|js|jsx|py|java|rb|rs|c|h|cpp|hpp|json|yaml|yml|md|txt)\b`)

// EstimatePreflight derives the target file set from explicit context
// files plus any file paths mentioned in the step description, and
// estimates complexity from file count and total context lines (spec
// §4.7 L0). shouldSplit is set when file count exceeds one or
// complexity is high.
func EstimatePreflight(contextFiles []string, stepDescription string, contextLineCount int) Preflight {
	seen := make(map[string]bool, len(contextFiles))
	var files []string
	for _, f := range contextFiles {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		files = append(files, f)
	}
	for _, m := range filePathPattern.FindAllString(stepDescription, -1) {
		if seen[m] {
			continue
		}
		seen[m] = true
		files = append(files, m)
	}

	complexity := ComplexityLow
	switch {
	case len(files) > 5 || contextLineCount > 2000:
		complexity = ComplexityHigh
	case len(files) > 1 || contextLineCount > 500:
		complexity = ComplexityMedium
	}

	return Preflight{
		TargetFiles: files,
		Complexity:  complexity,
		ShouldSplit: len(files) > 1 || complexity == ComplexityHigh,
	}
}
