package llm

// DefaultModel is used whenever a requested model is unrecognized.
const DefaultModel = "claude-sonnet-4-5-20250929"

// aliases maps short, human-friendly model names to the fully-qualified
// ids the adapters expect. Fully-qualified ids pass through unchanged
// (spec §4.9).
var aliases = map[string]string{
	"sonnet":       "claude-sonnet-4-5-20250929",
	"opus":         "claude-opus-4-1-20250805",
	"haiku":        "claude-haiku-4-5-20251001",
	"gpt4":         "gpt-4o",
	"gpt4o":        "gpt-4o",
	"gemini":       "gemini-1.5-pro",
	"gemini-flash": "gemini-1.5-flash",
}

// ResolveModel resolves requested against the alias table, returning the
// resolved id, whether a fallback to DefaultModel occurred, and the
// reason for the fallback event emitted by the caller (spec §4.9
// model_fallback_used).
func ResolveModel(requested string) (resolved string, fellBack bool, reason string) {
	if requested == "" {
		return DefaultModel, true, "unsupported_model"
	}
	if canonical, ok := aliases[requested]; ok {
		return canonical, false, ""
	}
	if isFullyQualified(requested) {
		return requested, false, ""
	}
	return DefaultModel, true, "unsupported_model"
}

// isFullyQualified reports whether requested looks like a provider's
// fully-qualified model id rather than a bare alias, by checking it
// against the set of known id prefixes.
func isFullyQualified(requested string) bool {
	knownPrefixes := []string{"claude-", "gpt-", "gemini-", "o1-", "o3-"}
	for _, prefix := range knownPrefixes {
		if len(requested) >= len(prefix) && requested[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
