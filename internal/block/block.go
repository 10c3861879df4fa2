// Package block models one submitted command and its accumulated output,
// and decides where keystrokes go while an interactive process (vim, a
// REPL, top) is attached to a block.
package block

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devpocket/termcore/internal/classify"
)

// Status is the lifecycle state of a CommandBlock.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ErrBlockFinished is returned when mutating a block that already reached a
// terminal status.
var ErrBlockFinished = errors.New("block: already in terminal status")

// CommandBlock is one user-submitted command plus its result, scoped to a
// session. Once a block reaches a terminal status it is immutable: no
// further output appends or status changes.
type CommandBlock struct {
	ID        string
	SessionID string
	Index     int
	Command   string
	Info      classify.ProcessInfo
	StartedAt time.Time

	mu      sync.RWMutex
	status  Status
	endedAt time.Time
	output  *OutputLog
}

// NewCommandBlock creates a running block for a submitted command.
func NewCommandBlock(sessionID, command string, index int, info classify.ProcessInfo) *CommandBlock {
	return &CommandBlock{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Index:     index,
		Command:   command,
		Info:      info,
		StartedAt: time.Now(),
		status:    StatusRunning,
		output:    newOutputLog(),
	}
}

// Status returns the current lifecycle state.
func (b *CommandBlock) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// EndedAt returns when the block reached a terminal status (zero until then).
func (b *CommandBlock) EndedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.endedAt
}

// Finish transitions the block to a terminal status. The first transition
// wins; later calls return ErrBlockFinished.
func (b *CommandBlock) Finish(status Status) error {
	if !status.Terminal() {
		return errors.New("block: Finish requires a terminal status")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status.Terminal() {
		return ErrBlockFinished
	}
	b.status = status
	b.endedAt = time.Now()
	return nil
}

// Append adds normalized output text to the block's buffer. Appends after a
// terminal status are rejected.
func (b *CommandBlock) Append(text string) error {
	b.mu.RLock()
	terminal := b.status.Terminal()
	b.mu.RUnlock()
	if terminal {
		return ErrBlockFinished
	}
	b.output.append(text)
	return nil
}

// Output returns the accumulated output text.
func (b *CommandBlock) Output() string {
	return b.output.String()
}

// OutputLen returns the accumulated output length in bytes.
func (b *CommandBlock) OutputLen() int {
	return b.output.Len()
}

// OutputLog is an append-only text log. Readers snapshot without blocking
// appends for long, and appended segments are never mutated afterwards, so
// concurrent subscribers cannot observe aliased partial writes.
type OutputLog struct {
	mu       sync.RWMutex
	segments []string
	size     int
}

func newOutputLog() *OutputLog {
	return &OutputLog{}
}

func (l *OutputLog) append(text string) {
	if text == "" {
		return
	}
	l.mu.Lock()
	l.segments = append(l.segments, text)
	l.size += len(text)
	l.mu.Unlock()
}

// String joins all segments in append order.
func (l *OutputLog) String() string {
	l.mu.RLock()
	segments := l.segments
	size := l.size
	l.mu.RUnlock()

	var b strings.Builder
	b.Grow(size)
	for _, s := range segments {
		b.WriteString(s)
	}
	return b.String()
}

// Len returns the total byte length.
func (l *OutputLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}
