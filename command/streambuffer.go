package command

import "sync"

// streamBuffer accumulates one process output stream, line by line,
// truncating to the latest half of its content once maxBytes is
// exceeded (spec §4.13 "keeping the latest half of each stream, setting
// truncated=true"), and separately tracks the bytes not yet delivered to
// a command_progress event so the throttled flush loop can drain just
// the delta.
type streamBuffer struct {
	mu        sync.Mutex
	full      []byte
	pending   []byte
	lines     int
	truncated bool
	maxBytes  int
}

func (b *streamBuffer) appendLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	withNewline := append([]byte(line), '\n')
	b.full = append(b.full, withNewline...)
	b.pending = append(b.pending, withNewline...)
	b.lines++

	if b.maxBytes > 0 && len(b.full) > b.maxBytes {
		keep := b.maxBytes / 2
		b.full = append([]byte(nil), b.full[len(b.full)-keep:]...)
		b.truncated = true
	}
}

// drainPending returns and clears the bytes accumulated since the last
// drain.
func (b *streamBuffer) drainPending() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	delta := b.pending
	b.pending = nil
	return delta
}

// snapshot returns the full (possibly truncated) accumulated content, for
// the evidence transcript.
func (b *streamBuffer) snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.full...)
}
