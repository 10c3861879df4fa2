package block

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devpocket/termcore/internal/classify"
	"github.com/devpocket/termcore/internal/logging"
)

var regLog = logging.ForComponent(logging.CompRegistry)

// EventType enumerates registry notifications.
type EventType string

const (
	EventActivated    EventType = "activated"
	EventTerminated   EventType = "terminated"
	EventFocusChanged EventType = "focusChanged"
)

// Event notifies subscribers of registry state changes.
type Event struct {
	Type      EventType
	BlockID   string
	SessionID string
	// Focused is set on focusChanged events; false means focus returned to
	// the session's main input.
	Focused bool
}

// InputSender forwards input to a session's transport. Implemented by
// conn.Manager.
type InputSender interface {
	Send(ctx context.Context, sessionID, data string) error
}

// Entry records one live interactive block.
type Entry struct {
	BlockID     string
	SessionID   string
	ActivatedAt time.Time
	Focused     bool
}

// Registry tracks which blocks have a live interactive process attached,
// across all sessions. At most one entry exists per session; activating a
// new interactive command supersedes the previous one. Construct explicitly
// and inject; the registry holds no global state so tests stay isolated.
type Registry struct {
	classifier *classify.Classifier
	sender     InputSender

	mu        sync.RWMutex
	bySession map[string]*Entry
	byBlock   map[string]*Entry

	subMu sync.RWMutex
	subs  map[string]chan Event
}

// NewRegistry creates a Registry. sender may be nil (SendInput then always
// reports false), which keeps registry unit tests transport-free.
func NewRegistry(classifier *classify.Classifier, sender InputSender) *Registry {
	if classifier == nil {
		classifier = classify.New()
	}
	return &Registry{
		classifier: classifier,
		sender:     sender,
		bySession:  make(map[string]*Entry),
		byBlock:    make(map[string]*Entry),
		subs:       make(map[string]chan Event),
	}
}

// Activate classifies command and, when it needs interactive input routing,
// registers blockID as the session's active block, superseding any previous
// entry for the same session. Returns whether an entry was created.
// Re-activating the same block is a replace-in-place, not an error.
func (r *Registry) Activate(blockID, sessionID, command string) bool {
	info := r.classifier.Classify(command)
	if !info.NeedsSpecialHandling() {
		return false
	}

	var events []Event

	r.mu.Lock()
	prev, hadPrev := r.bySession[sessionID]
	if hadPrev && prev.BlockID != blockID {
		delete(r.byBlock, prev.BlockID)
		regLog.Debug("entry_superseded", "session", sessionID, "old_block", prev.BlockID, "new_block", blockID)
	}
	entry := &Entry{
		BlockID:     blockID,
		SessionID:   sessionID,
		ActivatedAt: time.Now(),
	}
	r.bySession[sessionID] = entry
	r.byBlock[blockID] = entry
	// The activation event precedes the supersede termination so focus
	// hands off old block -> new block without a main-input step between.
	events = append(events, Event{Type: EventActivated, BlockID: blockID, SessionID: sessionID})
	if hadPrev && prev.BlockID != blockID {
		events = append(events, Event{Type: EventTerminated, BlockID: prev.BlockID, SessionID: sessionID})
	}
	r.mu.Unlock()

	for _, ev := range events {
		r.emit(ev)
	}
	return true
}

// Terminate removes the entry for blockID. Idempotent; returns whether the
// entry existed.
func (r *Registry) Terminate(blockID string) bool {
	r.mu.Lock()
	entry, ok := r.byBlock[blockID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byBlock, blockID)
	if cur, exists := r.bySession[entry.SessionID]; exists && cur.BlockID == blockID {
		delete(r.bySession, entry.SessionID)
	}
	r.mu.Unlock()

	r.emit(Event{Type: EventTerminated, BlockID: blockID, SessionID: entry.SessionID})
	return true
}

// SendInput forwards input to the entry's session iff the entry exists and
// is still the session's current active block. Stale or superseded blocks
// silently reject input.
func (r *Registry) SendInput(ctx context.Context, blockID, input string) bool {
	r.mu.RLock()
	entry, ok := r.byBlock[blockID]
	var current bool
	if ok {
		cur, exists := r.bySession[entry.SessionID]
		current = exists && cur.BlockID == blockID
	}
	r.mu.RUnlock()

	if !ok || !current || r.sender == nil {
		return false
	}
	if err := r.sender.Send(ctx, entry.SessionID, input); err != nil {
		regLog.Warn("send_input_failed", "block", blockID, "error", err)
		return false
	}
	return true
}

// Focus marks blockID focused, clearing focus from any other entry in the
// same session. Focus in other sessions is untouched.
func (r *Registry) Focus(blockID string) {
	r.mu.Lock()
	entry, ok := r.byBlock[blockID]
	if !ok {
		r.mu.Unlock()
		return
	}
	entry.Focused = true
	r.mu.Unlock()

	r.emit(Event{Type: EventFocusChanged, BlockID: blockID, SessionID: entry.SessionID, Focused: true})
}

// IsActive reports whether blockID is its session's current active block.
// Read-only; never blocks writers for long.
func (r *Registry) IsActive(blockID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byBlock[blockID]
	if !ok {
		return false
	}
	cur, exists := r.bySession[entry.SessionID]
	return exists && cur.BlockID == blockID
}

// ActiveBlock returns the session's current active block id, if any.
func (r *Registry) ActiveBlock(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.bySession[sessionID]
	if !ok {
		return "", false
	}
	return entry.BlockID, true
}

// Subscribe returns a channel of registry events plus a cancel function.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, 64)

	r.subMu.Lock()
	r.subs[id] = ch
	r.subMu.Unlock()

	cancel := func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
	return ch, cancel
}

func (r *Registry) emit(ev Event) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
