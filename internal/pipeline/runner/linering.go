// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package runner

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// maxPartialBytes bounds an unterminated line held between writes.
const maxPartialBytes = 64 * 1024

// LineRing is a thread-safe ring buffer keeping the last N lines of a
// process stream. It implements io.Writer and joins lines split across writes.
type LineRing struct {
	mu      sync.Mutex
	lines   []string
	head    int
	count   int
	seen    int
	partial strings.Builder
}

// NewLineRing creates a LineRing with the specified capacity.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Add appends one complete line.
func (r *LineRing) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(line)
}

func (r *LineRing) addLocked(line string) {
	line = strings.TrimRight(line, "\r")
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
	r.seen++
}

// Write implements io.Writer.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := string(p)
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			break
		}
		r.partial.WriteString(s[:i])
		r.addLocked(r.partial.String())
		r.partial.Reset()
		s = s[i+1:]
	}
	// An unterminated line longer than maxPartialBytes is split into chunks
	// cut on rune boundaries; the remainder stays pending.
	for r.partial.Len()+len(s) > maxPartialBytes {
		pending := r.partial.String() + s
		cut := maxPartialBytes
		for cut > 0 && !utf8.RuneStart(pending[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxPartialBytes
		}
		r.addLocked(pending[:cut])
		r.partial.Reset()
		s = pending[cut:]
	}
	r.partial.WriteString(s)
	return len(p), nil
}

// Flush turns a pending unterminated line into a regular line.
func (r *LineRing) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.partial.Len() > 0 {
		r.addLocked(r.partial.String())
		r.partial.Reset()
	}
}

// LastN returns the last N lines in chronological order.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	start := (r.head - n + len(r.lines)) % len(r.lines)
	for i := 0; i < n; i++ {
		out = append(out, r.lines[(start+i)%len(r.lines)])
	}
	return out
}

// Lines returns every retained line in chronological order.
func (r *LineRing) Lines() []string {
	return r.LastN(len(r.lines))
}

// Truncated returns how many lines were evicted from the ring.
func (r *LineRing) Truncated() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen - r.count
}
