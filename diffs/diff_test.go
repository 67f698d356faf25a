package diffs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDiff = `--- a/foo.go
+++ b/foo.go
@@ -1,3 +1,4 @@
 package foo

-func Old() {}
+func New() {}
+func Extra() {}
`

func TestParse_BasicHunk(t *testing.T) {
	pd, err := Parse(sampleDiff)
	require.NoError(t, err)
	require.Len(t, pd.Files, 1)

	fd := pd.Files[0]
	require.Equal(t, "foo.go", fd.OldPath)
	require.Equal(t, "foo.go", fd.NewPath)
	require.False(t, fd.IsCreate)
	require.False(t, fd.IsDelete)
	require.False(t, fd.IsRename)
	require.Equal(t, 2, fd.Additions)
	require.Equal(t, 1, fd.Deletions)
}

func TestParse_EmptyDiffReturnsError(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
	require.True(t, isEmptyDiffErr(err))
}

func TestParse_CreateAndDeleteClassification(t *testing.T) {
	createDiff := "--- /dev/null\n+++ b/new.go\n@@ -0,0 +1,1 @@\n+package new\n"
	pd, err := Parse(createDiff)
	require.NoError(t, err)
	require.True(t, pd.Files[0].IsCreate)

	deleteDiff := "--- a/old.go\n+++ /dev/null\n@@ -1,1 +0,0 @@\n-package old\n"
	pd2, err := Parse(deleteDiff)
	require.NoError(t, err)
	require.True(t, pd2.Files[0].IsDelete)
}

func TestApplyDiffToContent_ReplaysHunk(t *testing.T) {
	pd, err := Parse(sampleDiff)
	require.NoError(t, err)

	original := "package foo\n\nfunc Old() {}\n"
	result, err := ApplyDiffToContent(original, pd.Files[0])
	require.NoError(t, err)
	require.Equal(t, "package foo\n\nfunc New() {}\nfunc Extra() {}\n", result)
}

func TestValidate_EmptyDiff(t *testing.T) {
	res := Validate(ParsedDiff{}, ValidationScope{}, nil)
	require.False(t, res.Valid)
	require.Equal(t, CodeEmptyDiff, res.Code)
}

func TestValidate_UnknownFileRejected(t *testing.T) {
	pd, err := Parse(sampleDiff)
	require.NoError(t, err)

	res := Validate(pd, ValidationScope{}, nil)
	require.False(t, res.Valid)
	require.Equal(t, CodeUnknownFile, res.Code)
}

func TestValidate_PathTraversalRejected(t *testing.T) {
	traversal := "--- a/../../etc/passwd\n+++ b/../../etc/passwd\n@@ -1,1 +1,1 @@\n-x\n+y\n"
	pd, err := Parse(traversal)
	require.NoError(t, err)

	res := Validate(pd, ValidationScope{Files: []ScopeFile{{Path: "../../etc/passwd"}}}, nil)
	require.False(t, res.Valid)
	require.Equal(t, CodePathTraversal, res.Code)
}

func TestValidate_SHAMismatchRejected(t *testing.T) {
	pd, err := Parse(sampleDiff)
	require.NoError(t, err)

	scope := ValidationScope{Files: []ScopeFile{{Path: "foo.go", SHA: "deadbeef"}}}
	contentOf := func(path string) (string, bool) { return "package foo\n\nfunc Old() {}\n", true }

	res := Validate(pd, scope, contentOf)
	require.False(t, res.Valid)
	require.Equal(t, CodeSHAMismatch, res.Code)
}

func TestValidate_SHAMatchPasses(t *testing.T) {
	pd, err := Parse(sampleDiff)
	require.NoError(t, err)

	original := "package foo\n\nfunc Old() {}\n"
	scope := ValidationScope{Files: []ScopeFile{{Path: "foo.go", SHA: HashContent(original)}}}
	contentOf := func(path string) (string, bool) { return original, true }

	res := Validate(pd, scope, contentOf)
	require.True(t, res.Valid)
}

func TestValidate_ScopeFilesExceeded(t *testing.T) {
	two := sampleDiff + "--- a/bar.go\n+++ b/bar.go\n@@ -1,1 +1,1 @@\n-x\n+y\n"
	pd, err := Parse(two)
	require.NoError(t, err)

	scope := ValidationScope{
		Files:    []ScopeFile{{Path: "foo.go"}, {Path: "bar.go"}},
		MaxFiles: 1,
	}
	res := Validate(pd, scope, nil)
	require.False(t, res.Valid)
	require.Equal(t, CodeScopeFilesExceeded, res.Code)
}

func TestValidate_ScopeLinesExceeded(t *testing.T) {
	pd, err := Parse(sampleDiff)
	require.NoError(t, err)

	scope := ValidationScope{Files: []ScopeFile{{Path: "foo.go"}}, MaxLines: 1}
	res := Validate(pd, scope, nil)
	require.False(t, res.Valid)
	require.Equal(t, CodeScopeLinesExceeded, res.Code)
}

// TestValidate_RenameRejected is seed scenario F: given a diff that
// renames a.ts to b.ts, validate returns valid=false with error code
// FILE_RENAME.
func TestValidate_RenameRejected(t *testing.T) {
	renameDiff := "--- a/a.ts\n+++ b/b.ts\n@@ -1,1 +1,1 @@\n-export const x = 1;\n+export const x = 2;\n"
	pd, err := Parse(renameDiff)
	require.NoError(t, err)
	require.True(t, pd.Files[0].IsRename)

	scope := ValidationScope{Files: []ScopeFile{{Path: "a.ts"}, {Path: "b.ts"}}}
	res := Validate(pd, scope, nil)
	require.False(t, res.Valid)
	require.Equal(t, CodeFileRename, res.Code)
}

func TestValidate_RelaxedRuleSuppressesCode(t *testing.T) {
	createDiff := "--- /dev/null\n+++ b/new.go\n@@ -0,0 +1,1 @@\n+package new\n"
	pd, err := Parse(createDiff)
	require.NoError(t, err)

	scope := ValidationScope{Files: []ScopeFile{{Path: "new.go"}}, AllowCreate: true}
	res := Validate(pd, scope, nil)
	require.True(t, res.Valid)
}

func TestParseAndValidate_ParseErrorPropagates(t *testing.T) {
	res := ParseAndValidate("--- a/x\n+++ b/x\n@@ garbage @@\n", ValidationScope{}, nil)
	require.False(t, res.Valid)
	require.Equal(t, CodeParseError, res.Code)
}
