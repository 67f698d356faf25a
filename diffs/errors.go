package diffs

import agentcoreerrors "github.com/kalyank1144/agentcore/errors"

// Code is the closed error-code taxonomy for diff parsing/validation
// (spec §4.5).
type Code string

const (
	CodeParseError         Code = "PARSE_ERROR"
	CodeEmptyDiff          Code = "EMPTY_DIFF"
	CodeFileCreation       Code = "FILE_CREATION"
	CodeFileDeletion       Code = "FILE_DELETION"
	CodeFileRename         Code = "FILE_RENAME"
	CodeModeChange         Code = "MODE_CHANGE"
	CodePathTraversal      Code = "PATH_TRAVERSAL"
	CodeUnknownFile        Code = "UNKNOWN_FILE"
	CodeSHAMismatch        Code = "SHA_MISMATCH"
	CodeScopeFilesExceeded Code = "SCOPE_FILES_EXCEEDED"
	CodeScopeLinesExceeded Code = "SCOPE_LINES_EXCEEDED"
)

// errEmptyDiffMarker tags the one parse failure that should surface as
// CodeEmptyDiff rather than CodeParseError: a diff with no file headers
// at all.
const errEmptyDiffMarker = "diff contains no file entries"

func errParseError(msg string) error {
	return agentcoreerrors.New(agentcoreerrors.KindParseError, msg)
}

func errEmptyDiff() error {
	return agentcoreerrors.New(agentcoreerrors.KindParseError, errEmptyDiffMarker)
}

func isEmptyDiffErr(err error) bool {
	var e *agentcoreerrors.Error
	if !agentcoreerrors.Is(err, agentcoreerrors.KindParseError) {
		return false
	}
	if as, ok := err.(*agentcoreerrors.Error); ok {
		e = as
	}
	return e != nil && e.Message == errEmptyDiffMarker
}
