package diffs

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ScopeFile describes one file the current edit is scoped to (spec §4.5
// ValidationScope): its declared path and, when known, its current
// content hash for SHA_MISMATCH detection.
type ScopeFile struct {
	Path string
	SHA  string
}

// ValidationScope bounds what a diff is permitted to touch (spec §4.5):
// the set of files in scope, optional file-count/line-count caps, and
// which normally-unsafe operations are relaxed. When a rule is relaxed
// its matching error code is never emitted (spec §4.5).
type ValidationScope struct {
	Files     []ScopeFile
	MaxFiles  int // 0 means unbounded
	MaxLines  int // 0 means unbounded

	AllowCreate     bool
	AllowDelete     bool
	AllowRename     bool
	AllowModeChange bool
}

func (s ValidationScope) lookup(path string) (ScopeFile, bool) {
	for _, f := range s.Files {
		if f.Path == path {
			return f, true
		}
	}
	return ScopeFile{}, false
}

// ValidationResult is the outcome of Validate (spec §4.5): whether the
// diff is valid, and the first error code/message encountered if not.
type ValidationResult struct {
	Valid   bool
	Code    Code
	Message string
}

func invalid(code Code, msg string) ValidationResult {
	return ValidationResult{Valid: false, Code: code, Message: msg}
}

// Validate checks pd against scope and, for each touched file, current
// on-disk content (via contentOf), applying the closed error-code
// taxonomy in a fixed precedence order: empty diff, then per-file
// creation/deletion/rename/mode-change rejection, path traversal,
// unknown-file membership, SHA mismatch, and finally the two
// scope-size caps evaluated across the whole diff (spec §4.5).
func Validate(pd ParsedDiff, scope ValidationScope, contentOf func(path string) (string, bool)) ValidationResult {
	if len(pd.Files) == 0 {
		return invalid(CodeEmptyDiff, "diff contains no file entries")
	}

	totalLines := 0
	for _, fd := range pd.Files {
		if fd.IsCreate && !scope.AllowCreate {
			return invalid(CodeFileCreation, "file creation is not permitted: "+fd.NewPath)
		}
		if fd.IsDelete && !scope.AllowDelete {
			return invalid(CodeFileDeletion, "file deletion is not permitted: "+fd.OldPath)
		}
		if fd.IsRename && !scope.AllowRename {
			return invalid(CodeFileRename, "file rename is not permitted: "+fd.OldPath+" -> "+fd.NewPath)
		}
		if fd.HasModeChange && !scope.AllowModeChange {
			return invalid(CodeModeChange, "file mode change is not permitted: "+fd.NewPath)
		}
		if isPathTraversal(fd.NewPath) || isPathTraversal(fd.OldPath) {
			return invalid(CodePathTraversal, "path escapes workspace: "+fd.NewPath)
		}

		lookupPath := fd.NewPath
		if fd.IsDelete {
			lookupPath = fd.OldPath
		}
		sf, known := scope.lookup(lookupPath)
		if !known {
			return invalid(CodeUnknownFile, "file not in validation scope: "+lookupPath)
		}

		if sf.SHA != "" && contentOf != nil {
			if current, ok := contentOf(fd.NewPath); ok {
				if hashOf(current) != sf.SHA {
					return invalid(CodeSHAMismatch, "current content does not match expected SHA: "+fd.NewPath)
				}
			}
		}

		totalLines += fd.Additions + fd.Deletions
	}

	if scope.MaxFiles > 0 && len(pd.Files) > scope.MaxFiles {
		return invalid(CodeScopeFilesExceeded, "diff touches more files than scope permits")
	}
	if scope.MaxLines > 0 && totalLines > scope.MaxLines {
		return invalid(CodeScopeLinesExceeded, "diff changes more lines than scope permits")
	}

	return ValidationResult{Valid: true}
}

func isPathTraversal(path string) bool {
	if path == "/dev/null" || path == "" {
		return false
	}
	if strings.HasPrefix(path, "/") {
		return true
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// ParseAndValidate parses text and, on a successful parse, validates the
// result against scope. A parse failure is reported as an invalid
// ValidationResult with CodeParseError rather than returned as an error,
// so callers have one uniform result shape for the whole pipeline.
func ParseAndValidate(text string, scope ValidationScope, contentOf func(path string) (string, bool)) ValidationResult {
	pd, err := Parse(text)
	if err != nil {
		if isEmptyDiffErr(err) {
			return invalid(CodeEmptyDiff, err.Error())
		}
		return invalid(CodeParseError, err.Error())
	}
	return Validate(pd, scope, contentOf)
}

// HashContent returns the hex-encoded sha256 of content, the same form
// ScopeFile.SHA and SHA_MISMATCH comparisons use.
func HashContent(content string) string { return hashOf(content) }

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
