// Package policy implements CommandPolicy (spec §4.4): safety
// classification of shell commands via allow/block/long-running pattern
// sets plus numeric caps, with workspace-over-global-over-default
// layering and a serializable wire form.
//
// Pattern-set classification is grounded on the entire-cli example's
// redact package, which layers multiple regex-driven detectors and
// treats a match from any layer as a hit — the same shape this policy
// uses for blocklist/allowlist/long-running classification.
package policy

import "regexp"

// Kind is the safety mode CommandPolicy operates in.
type Kind string

const (
	KindOff    Kind = "off"
	KindPrompt Kind = "prompt"
	KindAuto   Kind = "auto"
)

// CommandKind is the result of ClassifyCommandKind.
type CommandKind string

const (
	CommandFinite      CommandKind = "finite"
	CommandLongRunning CommandKind = "long_running"
)

// Limits holds the numeric caps from spec §4.4.
type Limits struct {
	MaxOutputBytesPerCommand int
	ChunkThrottleMs          int
	DefaultTimeoutMs         int
}

// DefaultLimits mirrors sane production defaults: 1MB output cap, 250ms
// progress throttle, 2 minute default timeout.
var DefaultLimits = Limits{
	MaxOutputBytesPerCommand: 1 << 20,
	ChunkThrottleMs:          250,
	DefaultTimeoutMs:         120_000,
}

// Policy is CommandPolicy: three pattern sets plus numeric caps and a
// Kind.
type Policy struct {
	Kind           Kind
	Allowlist      []*regexp.Regexp
	Blocklist      []*regexp.Regexp
	LongRunning    []*regexp.Regexp
	Limits         Limits

	allowlistSrc   []string
	blocklistSrc   []string
	longRunningSrc []string
}

// New compiles a Policy from pattern sources. Invalid regexes are
// skipped rather than failing the whole policy, matching the
// best-effort posture of the entire-cli redact detectors.
func New(kind Kind, allow, block, longRunning []string, limits Limits) *Policy {
	p := &Policy{
		Kind:           kind,
		Limits:         limits,
		allowlistSrc:   append([]string(nil), allow...),
		blocklistSrc:   append([]string(nil), block...),
		longRunningSrc: append([]string(nil), longRunning...),
	}
	p.Allowlist = compileAll(allow)
	p.Blocklist = compileAll(block)
	p.LongRunning = compileAll(longRunning)
	return p
}

func compileAll(sources []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile(src)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, cmd string) bool {
	for _, re := range patterns {
		if re.MatchString(cmd) {
			return true
		}
	}
	return false
}

// ClassifyCommandKind returns CommandLongRunning if any long-running
// pattern matches cmd, else CommandFinite (spec §4.4).
func (p *Policy) ClassifyCommandKind(cmd string) CommandKind {
	if anyMatch(p.LongRunning, cmd) {
		return CommandLongRunning
	}
	return CommandFinite
}

// IsCommandSafe first tests the blocklist (always rejects on a match),
// then in 'auto' mode additionally requires allowlist membership
// (spec §4.4).
func (p *Policy) IsCommandSafe(cmd string) bool {
	if anyMatch(p.Blocklist, cmd) {
		return false
	}
	if p.Kind == KindAuto {
		return anyMatch(p.Allowlist, cmd)
	}
	return true
}

// Serialized is the wire form of a Policy (spec §6).
type Serialized struct {
	Mode                     Kind     `json:"mode"`
	AllowlistPatterns        []string `json:"allowlistPatterns"`
	BlocklistPatterns        []string `json:"blocklistPatterns"`
	LongRunningPatterns      []string `json:"longRunningPatterns"`
	MaxOutputBytesPerCommand int      `json:"maxOutputBytesPerCommand"`
	ChunkThrottleMs          int      `json:"chunkThrottleMs"`
	DefaultTimeoutMs         int      `json:"defaultTimeoutMs"`
}

// Serialize converts p into its wire form, preserving original pattern
// source strings rather than any normalized regex representation — the
// round trip in spec §8 property 7 depends on this.
func (p *Policy) Serialize() Serialized {
	return Serialized{
		Mode:                     p.Kind,
		AllowlistPatterns:        append([]string(nil), p.allowlistSrc...),
		BlocklistPatterns:        append([]string(nil), p.blocklistSrc...),
		LongRunningPatterns:      append([]string(nil), p.longRunningSrc...),
		MaxOutputBytesPerCommand: p.Limits.MaxOutputBytesPerCommand,
		ChunkThrottleMs:          p.Limits.ChunkThrottleMs,
		DefaultTimeoutMs:         p.Limits.DefaultTimeoutMs,
	}
}

// Deserialize rebuilds a Policy from its wire form.
func Deserialize(s Serialized) *Policy {
	return New(s.Mode, s.AllowlistPatterns, s.BlocklistPatterns, s.LongRunningPatterns, Limits{
		MaxOutputBytesPerCommand: s.MaxOutputBytesPerCommand,
		ChunkThrottleMs:          s.ChunkThrottleMs,
		DefaultTimeoutMs:         s.DefaultTimeoutMs,
	})
}

// Merge unions three layers — workspace over global over defaults — by
// concatenating pattern-source slices rather than replacing them
// (spec §4.4: "must union — not replace — pattern arrays").
func Merge(defaults, global, workspace *Policy) *Policy {
	kind := defaults.Kind
	limits := defaults.Limits
	if global != nil {
		kind = global.Kind
		limits = global.Limits
	}
	if workspace != nil {
		kind = workspace.Kind
		limits = workspace.Limits
	}

	allow := unionSrc(defaults.allowlistSrc, global, workspace, func(p *Policy) []string { return p.allowlistSrc })
	block := unionSrc(defaults.blocklistSrc, global, workspace, func(p *Policy) []string { return p.blocklistSrc })
	long := unionSrc(defaults.longRunningSrc, global, workspace, func(p *Policy) []string { return p.longRunningSrc })

	return New(kind, allow, block, long, limits)
}

func unionSrc(base []string, global, workspace *Policy, pick func(*Policy) []string) []string {
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base))
	add := func(items []string) {
		for _, s := range items {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	add(base)
	if global != nil {
		add(pick(global))
	}
	if workspace != nil {
		add(pick(workspace))
	}
	return out
}
