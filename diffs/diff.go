// Package diffs implements UnifiedDiffParser and the diff data model
// (spec §4.5, §3 "ParsedDiff"): parsing standard unified-diff text into
// structured per-file hunks, and replaying those hunks over original
// content.
//
// Header/hunk parsing is hand-rolled (no example repo in the retrieved
// pack parses `--- a/ +++ b/ @@ @@` unified-diff text — sergi/go-diff
// operates on its own patch format, not this wire format); hunk
// application reuses the same line-splitting approach the teacher's
// model adapters use for converting between wire formats.
package diffs

import (
	"strings"
)

// LineKind tags a hunk line with its diff role.
type LineKind string

const (
	LineContext LineKind = " "
	LineAdd     LineKind = "+"
	LineDel     LineKind = "-"
)

// HunkLineEntry is a single line of a Hunk.
type HunkLineEntry struct {
	Kind LineKind
	Text string
}

// Hunk is one `@@ -s,c +s,c @@` region of a file diff.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []HunkLineEntry
}

// FileDiff is one file's entry within a ParsedDiff (spec §3).
type FileDiff struct {
	OldPath       string
	NewPath       string
	Hunks         []Hunk
	Additions     int
	Deletions     int
	IsCreate      bool
	IsDelete      bool
	IsRename      bool
	HasModeChange bool
	OldMode       string
	NewMode       string
	NoNewlineOld  bool
	NoNewlineNew  bool
}

// ParsedDiff is the full parsed unified diff: an ordered list of
// per-file entries (spec §3).
type ParsedDiff struct {
	Files []FileDiff
}

// Parse parses standard unified-diff text (spec §4.5): `--- a/... / +++
// b/... / @@ -s,c +s,c @@` headers, classifying file headers by old/new
// path (/dev/null ⇒ create/delete, differing paths ⇒ rename),
// accumulating context/+/- lines, normalizing CRLF to LF, and tolerating
// "\ No newline at end of file" markers.
func Parse(text string) (ParsedDiff, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var out ParsedDiff
	var cur *FileDiff
	var curHunk *Hunk

	flushHunk := func() {
		if cur != nil && curHunk != nil {
			cur.Hunks = append(cur.Hunks, *curHunk)
			curHunk = nil
		}
	}
	flushFile := func() {
		flushHunk()
		if cur != nil {
			for _, h := range cur.Hunks {
				for _, l := range h.Lines {
					switch l.Kind {
					case LineAdd:
						cur.Additions++
					case LineDel:
						cur.Deletions++
					}
				}
			}
			out.Files = append(out.Files, *cur)
			cur = nil
		}
	}

	var pendingOldMode, pendingNewMode string
	var oldSeen, newSeen int

	i := 0
	for i < len(lines) {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "old mode "):
			pendingOldMode = strings.TrimPrefix(line, "old mode ")
			i++
			continue

		case strings.HasPrefix(line, "new mode "):
			pendingNewMode = strings.TrimPrefix(line, "new mode ")
			i++
			continue

		case strings.HasPrefix(line, "--- "):
			flushFile()
			cur = &FileDiff{OldMode: pendingOldMode, NewMode: pendingNewMode}
			if pendingOldMode != "" && pendingNewMode != "" && pendingOldMode != pendingNewMode {
				cur.HasModeChange = true
			}
			pendingOldMode, pendingNewMode = "", ""
			cur.OldPath = normalizeHeaderPath(strings.TrimPrefix(line, "--- "))
			i++
			if i < len(lines) && strings.HasPrefix(lines[i], "+++ ") {
				cur.NewPath = normalizeHeaderPath(strings.TrimPrefix(lines[i], "+++ "))
				i++
			}
			classifyFile(cur)
			continue

		case strings.HasPrefix(line, "@@ "):
			flushHunk()
			h, err := parseHunkHeader(line)
			if err != nil {
				return ParsedDiff{}, err
			}
			curHunk = &h
			oldSeen, newSeen = 0, 0
			i++
			continue

		case cur != nil && curHunk != nil && (strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") || strings.HasPrefix(line, " ")):
			kind := LineKind(line[:1])
			curHunk.Lines = append(curHunk.Lines, HunkLineEntry{Kind: kind, Text: line[1:]})
			if kind != LineAdd {
				oldSeen++
			}
			if kind != LineDel {
				newSeen++
			}
			i++
			continue

		case cur != nil && curHunk != nil && line == "" && oldSeen < curHunk.OldCount && newSeen < curHunk.NewCount:
			// An empty line the hunk header still has room for is a context
			// line whose leading space was stripped.
			curHunk.Lines = append(curHunk.Lines, HunkLineEntry{Kind: LineContext, Text: ""})
			oldSeen, newSeen = oldSeen+1, newSeen+1
			i++
			continue

		case strings.HasPrefix(line, "\\ No newline at end of file"):
			if cur != nil && curHunk != nil {
				markNoNewline(cur, curHunk)
			}
			i++
			continue

		default:
			i++
		}
	}
	flushFile()

	if len(out.Files) == 0 {
		return out, errEmptyDiff()
	}
	return out, nil
}

func markNoNewline(f *FileDiff, h *Hunk) {
	if len(h.Lines) == 0 {
		return
	}
	last := h.Lines[len(h.Lines)-1]
	switch last.Kind {
	case LineAdd:
		f.NoNewlineNew = true
	default:
		f.NoNewlineOld = true
	}
}

func normalizeHeaderPath(raw string) string {
	// Strip a trailing tab-separated timestamp, if present.
	if idx := strings.IndexByte(raw, '\t'); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.TrimSpace(raw)
	if raw == "/dev/null" {
		return "/dev/null"
	}
	// Strip the conventional a/ or b/ prefix.
	if len(raw) > 2 && (raw[:2] == "a/" || raw[:2] == "b/") {
		return raw[2:]
	}
	return raw
}

func classifyFile(f *FileDiff) {
	switch {
	case f.OldPath == "/dev/null":
		f.IsCreate = true
	case f.NewPath == "/dev/null":
		f.IsDelete = true
	case f.OldPath != f.NewPath:
		f.IsRename = true
	}
}

func parseHunkHeader(line string) (Hunk, error) {
	// Format: @@ -oldStart,oldCount +newStart,newCount @@ optional-context
	body := strings.TrimPrefix(line, "@@ ")
	end := strings.Index(body, " @@")
	if end < 0 {
		return Hunk{}, errParseError("malformed hunk header: " + line)
	}
	ranges := strings.Fields(body[:end])
	if len(ranges) != 2 {
		return Hunk{}, errParseError("malformed hunk ranges: " + line)
	}
	oldStart, oldCount, err := parseRange(ranges[0], "-")
	if err != nil {
		return Hunk{}, err
	}
	newStart, newCount, err := parseRange(ranges[1], "+")
	if err != nil {
		return Hunk{}, err
	}
	return Hunk{OldStart: oldStart, OldCount: oldCount, NewStart: newStart, NewCount: newCount}, nil
}

func parseRange(field, sigil string) (start, count int, err error) {
	field = strings.TrimPrefix(field, sigil)
	parts := strings.SplitN(field, ",", 2)
	start, err = atoi(parts[0])
	if err != nil {
		return 0, 0, errParseError("malformed range: " + field)
	}
	count = 1
	if len(parts) == 2 {
		count, err = atoi(parts[1])
		if err != nil {
			return 0, 0, errParseError("malformed range count: " + field)
		}
	}
	return start, count, nil
}

func atoi(s string) (int, error) {
	n := 0
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return 0, errParseError("empty integer")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errParseError("invalid integer: " + s)
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

// ApplyDiffToContent replays fd's hunks over original, producing the
// post-diff content (spec §4.5 applyDiffToContent). Line boundaries are
// preserved: the function operates on lines split by "\n" and rejoins
// with "\n", only omitting the final newline when the file is marked
// NoNewlineNew.
func ApplyDiffToContent(original string, fd FileDiff) (string, error) {
	originalLines := splitLines(original)
	var result []string
	oldIdx := 0 // 0-based cursor into originalLines

	for _, h := range fd.Hunks {
		hunkOldStart := h.OldStart - 1
		if hunkOldStart < 0 {
			hunkOldStart = 0
		}
		// Copy any untouched lines before this hunk begins.
		for oldIdx < hunkOldStart && oldIdx < len(originalLines) {
			result = append(result, originalLines[oldIdx])
			oldIdx++
		}
		for _, l := range h.Lines {
			switch l.Kind {
			case LineContext:
				if oldIdx < len(originalLines) {
					result = append(result, originalLines[oldIdx])
				} else {
					result = append(result, l.Text)
				}
				oldIdx++
			case LineDel:
				oldIdx++
			case LineAdd:
				result = append(result, l.Text)
			}
		}
	}
	// Copy any trailing untouched lines.
	for oldIdx < len(originalLines) {
		result = append(result, originalLines[oldIdx])
		oldIdx++
	}

	joined := strings.Join(result, "\n")
	if !fd.NoNewlineNew && len(result) > 0 {
		joined += "\n"
	}
	return joined, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
