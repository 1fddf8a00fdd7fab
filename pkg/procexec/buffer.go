package procexec

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// maxLineBytes bounds a single line; longer runs without a newline are split.
const maxLineBytes = 1 << 20

// ringBuffer keeps the most recent lines up to limit bytes, counting one
// byte per line for the separator. Old lines are dropped silently.
type ringBuffer struct {
	mu        sync.Mutex
	lines     []string
	size      int
	limit     int
	truncated bool
}

func newRingBuffer(limit int) *ringBuffer {
	return &ringBuffer{limit: limit}
}

func (b *ringBuffer) add(line string) {
	if b.limit <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(line)+1 > b.limit {
		keep := b.limit - 1
		if keep < 0 {
			keep = 0
		}
		line = line[len(line)-keep:]
		b.truncated = true
	}
	b.lines = append(b.lines, line)
	b.size += len(line) + 1

	for b.size > b.limit && len(b.lines) > 0 {
		b.size -= len(b.lines[0]) + 1
		b.lines[0] = ""
		b.lines = b.lines[1:]
		b.truncated = true
	}
}

func (b *ringBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

func (b *ringBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// lineWriter splits what the process writes into lines. os/exec calls Write
// from one goroutine per stream, so no locking is needed here.
type lineWriter struct {
	stream  Stream
	out     chan<- Line
	buf     *ringBuffer
	pending []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emit(w.pending[:i])
		w.pending = w.pending[i+1:]
	}
	if len(w.pending) >= maxLineBytes {
		w.emit(w.pending)
		w.pending = nil
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.pending) > 0 {
		w.emit(w.pending)
	}
	w.pending = nil
}

func (w *lineWriter) emit(b []byte) {
	text := strings.TrimRight(string(b), "\r")
	w.buf.add(text)
	w.out <- Line{Stream: w.stream, Text: text, At: time.Now()}
}
