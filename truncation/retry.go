package truncation

import "strings"

// retryablePatterns mirrors the openaiapi adapter's string-pattern
// transient-error detection (grounded on its isTransientError/
// isRateLimitError idiom), generalized across providers since the
// executor only sees a provider-agnostic error: any adapter's
// translateError wraps the underlying status/code into the error's
// text even when the caller doesn't know which adapter produced it.
var retryablePatterns = []string{
	"529",
	"overloaded_error",
	"overloaded",
	"429",
	"rate_limit",
	"rate limit",
	"too many requests",
}

// isRetryableLLMError reports whether err looks like a transient
// overload or rate-limit failure worth retrying with backoff (spec
// §4.7: "retries transient overloads (HTTP 529 / overloaded_error) and
// rate limiting (429)").
func isRetryableLLMError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
