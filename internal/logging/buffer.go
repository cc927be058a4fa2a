package logging

import (
	"strings"
	"sync"
)

// Buffer keeps the most recent log lines in memory for the dashboard's
// log panel. It implements zapcore.WriteSyncer so it can sit behind an
// encoder core.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 200
	}
	return &Buffer{
		lines: make([]string, 0, max),
		max:   max,
	}
}

// Write splits the encoded entry into lines and appends each. Multi-line
// entries (stack traces) land as separate dashboard lines.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(string(p), "\n") {
		if line == "" {
			continue
		}
		b.push(line)
	}
	return len(p), nil
}

func (b *Buffer) Sync() error { return nil }

// push drops the oldest line once the buffer is full.
func (b *Buffer) push(line string) {
	if len(b.lines) == b.max {
		copy(b.lines, b.lines[1:])
		b.lines[len(b.lines)-1] = line
		return
	}
	b.lines = append(b.lines, line)
}

// Lines returns a snapshot of the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}
