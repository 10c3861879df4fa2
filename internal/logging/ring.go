package logging

import (
	"bytes"
	"os"
	"sync"
)

// LineRing keeps the most recent N log lines in memory for crash dumps.
// It implements io.Writer; writes are split on newlines and older lines are
// dropped once the capacity is reached.
type LineRing struct {
	mu    sync.Mutex
	lines [][]byte
	head  int
	count int
	cap   int

	// partial holds an unterminated trailing fragment between writes
	partial []byte
}

// NewLineRing creates a ring holding up to capacity lines.
func NewLineRing(capacity int) *LineRing {
	if capacity <= 0 {
		capacity = 2000
	}
	return &LineRing{
		lines: make([][]byte, capacity),
		cap:   capacity,
	}
}

// Write implements io.Writer.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := p
	if len(r.partial) > 0 {
		data = append(r.partial, p...)
		r.partial = nil
	}

	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx+1)
		copy(line, data[:idx+1])
		r.push(line)
		data = data[idx+1:]
	}
	if len(data) > 0 {
		r.partial = append([]byte(nil), data...)
	}

	return len(p), nil
}

func (r *LineRing) push(line []byte) {
	r.lines[r.head] = line
	r.head = (r.head + 1) % r.cap
	if r.count < r.cap {
		r.count++
	}
}

// Bytes returns the buffered lines in chronological order, including any
// trailing unterminated fragment.
func (r *LineRing) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out bytes.Buffer
	start := r.head - r.count
	if start < 0 {
		start += r.cap
	}
	for i := 0; i < r.count; i++ {
		out.Write(r.lines[(start+i)%r.cap])
	}
	out.Write(r.partial)
	return out.Bytes()
}

// Len returns the number of complete lines currently buffered.
func (r *LineRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// DumpToFile writes the ring contents to a file in chronological order.
func (r *LineRing) DumpToFile(path string) error {
	return os.WriteFile(path, r.Bytes(), 0o644)
}
