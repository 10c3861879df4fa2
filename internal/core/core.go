// Package core wires the session pieces together: it owns the connection
// manager, classifier, block registry and focus router, and exposes the
// operations a terminal frontend calls — connect, submit, cancel, route
// input — while translating raw transport output into per-block events.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devpocket/termcore/internal/block"
	"github.com/devpocket/termcore/internal/classify"
	"github.com/devpocket/termcore/internal/conn"
	"github.com/devpocket/termcore/internal/history"
	"github.com/devpocket/termcore/internal/logging"
	"github.com/devpocket/termcore/internal/normalize"
	"github.com/devpocket/termcore/internal/transport"
)

var log = logging.ForComponent(logging.CompCore)

// defaultOneShotQuiescence is how long a one-shot command's output must
// stay quiet before the block is considered complete. The PTY gives no
// exit notification for individual commands inside the shell, so
// quiescence is the completion signal.
const defaultOneShotQuiescence = 750 * time.Millisecond

// EventType identifies an orchestrator event.
type EventType string

const (
	// EventBlockStarted fires when a submitted command becomes a block.
	EventBlockStarted EventType = "blockStarted"
	// EventBlockOutput fires when new normalized output lands on a block.
	EventBlockOutput EventType = "blockOutput"
	// EventBlockFinished fires when a block reaches a terminal status.
	EventBlockFinished EventType = "blockFinished"
	// EventSessionStatus fires on session status transitions.
	EventSessionStatus EventType = "sessionStatus"
	// EventSessionWelcome fires once per SSH session when the banner settles.
	EventSessionWelcome EventType = "sessionWelcome"
)

// Event is a UI-facing notification from the orchestrator.
type Event struct {
	Type      EventType
	SessionID string
	BlockID   string
	// Text carries the new output fragment (blockOutput), the welcome
	// message (sessionWelcome) or the session status (sessionStatus).
	Text string
	Err  error
}

// Options tunes orchestrator behavior. Zero values select defaults.
type Options struct {
	Conn conn.Options

	// OneShotQuiescence is the quiet period after which a one-shot
	// command's block is marked completed.
	OneShotQuiescence time.Duration

	// History, when non-nil, records each finished block. A nil store
	// disables recording.
	History *history.Store
}

func (o Options) withDefaults() Options {
	if o.OneShotQuiescence <= 0 {
		o.OneShotQuiescence = defaultOneShotQuiescence
	}
	return o
}

// sessionState tracks the orchestrator's per-session bookkeeping on top of
// what the connection manager holds.
type sessionState struct {
	id        string
	nextIndex int

	// runningBlock is the block currently receiving output, or nil.
	runningBlock *block.CommandBlock
	quiet        *time.Timer

	cancelPump func()
}

// Orchestrator composes the connection manager, classifier, registry and
// router into one façade. Safe for concurrent use.
type Orchestrator struct {
	conns      *conn.Manager
	classifier *classify.Classifier
	registry   *block.Registry
	router     *block.FocusRouter
	opts       Options

	mu       sync.Mutex
	sessions map[string]*sessionState
	blocks   map[string]*block.CommandBlock
	subs     map[string]chan Event

	statusCancel func()
}

// New builds an orchestrator around the given transport opener. Pass a
// classifier built from user config, or nil for the default rule table.
func New(opener transport.Opener, classifier *classify.Classifier, opts Options) *Orchestrator {
	if classifier == nil {
		classifier = classify.New()
	}
	opts = opts.withDefaults()

	o := &Orchestrator{
		conns:      conn.NewManager(opener, opts.Conn),
		classifier: classifier,
		opts:       opts,
		sessions:   make(map[string]*sessionState),
		blocks:     make(map[string]*block.CommandBlock),
		subs:       make(map[string]chan Event),
	}
	o.registry = block.NewRegistry(classifier, o.conns)
	o.router = block.NewFocusRouter(o.registry)
	return o
}

// Start launches the background pumps. Call once; cancel ctx to stop.
func (o *Orchestrator) Start(ctx context.Context) {
	o.router.Start(ctx)

	statusCh, cancel := o.conns.SubscribeStatus()
	o.statusCancel = cancel
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-statusCh:
				if !ok {
					return
				}
				o.handleStatus(ev)
			}
		}
	}()
}

// Router exposes the focus router for keystroke dispatch.
func (o *Orchestrator) Router() *block.FocusRouter { return o.router }

// Connect opens a session over the given target and begins pumping its
// output. Returns the new session id.
func (o *Orchestrator) Connect(ctx context.Context, target transport.Target) (string, error) {
	sessionID, err := o.conns.Connect(ctx, target)
	if err != nil {
		return "", err
	}

	chunks, cancelSub, err := o.conns.Subscribe(sessionID)
	if err != nil {
		return "", err
	}

	pumpCtx, cancelPump := context.WithCancel(context.Background())
	st := &sessionState{
		id: sessionID,
		cancelPump: func() {
			cancelPump()
			cancelSub()
		},
	}
	o.mu.Lock()
	o.sessions[sessionID] = st
	o.mu.Unlock()

	go o.pumpOutput(pumpCtx, st, chunks)

	log.Info("session_opened", "session", sessionID, "kind", target.Kind())
	return sessionID, nil
}

// Disconnect tears down a session. Running blocks are marked failed.
func (o *Orchestrator) Disconnect(sessionID string) error {
	return o.conns.Disconnect(sessionID)
}

// SessionStatus reports the connection status of a session.
func (o *Orchestrator) SessionStatus(sessionID string) (conn.Status, error) {
	return o.conns.Status(sessionID)
}

// Welcome returns the session's settled connection banner, if any.
func (o *Orchestrator) Welcome(sessionID string) (string, error) {
	return o.conns.Welcome(sessionID)
}

// SubmitCommand classifies and sends a command line, returning the block
// that will accumulate its output. A previously running one-shot or
// continuous block is finished first: a new submission supersedes it.
func (o *Orchestrator) SubmitCommand(ctx context.Context, sessionID, command string) (*block.CommandBlock, error) {
	info := o.classifier.Classify(command)

	o.mu.Lock()
	st, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return nil, conn.ErrUnknownSession
	}
	index := st.nextIndex
	st.nextIndex++
	o.mu.Unlock()

	b := block.NewCommandBlock(sessionID, command, index, info)

	if err := o.conns.Send(ctx, sessionID, command+"\n"); err != nil {
		return nil, err
	}

	o.mu.Lock()
	prev := st.runningBlock
	st.runningBlock = b
	if st.quiet != nil {
		st.quiet.Stop()
		st.quiet = nil
	}
	o.blocks[b.ID] = b
	if info.Category == classify.CategoryOneShot {
		o.armQuietTimerLocked(st, b)
	}
	o.mu.Unlock()

	if info.NeedsSpecialHandling() {
		o.registry.Activate(b.ID, sessionID, command)
		o.registry.Focus(b.ID)
	}

	// The previous block is finished only after the new one activated, so a
	// supersede hands focus old block -> new block without bouncing through
	// the main input. Activate already removed the old registry entry, which
	// makes the Terminate below a no-op in that case.
	if prev != nil {
		o.mu.Lock()
		o.finishBlockLocked(prev, block.StatusCompleted)
		o.mu.Unlock()
	}

	o.emit(Event{Type: EventBlockStarted, SessionID: sessionID, BlockID: b.ID})
	log.Info("command_submitted",
		"session", sessionID,
		"block", b.ID,
		"category", info.Category,
		"needs_pty", info.NeedsPTY)
	return b, nil
}

// CancelBlock stops a running block. Persistent commands get a Ctrl-C on
// the session first; the block is then marked cancelled.
func (o *Orchestrator) CancelBlock(ctx context.Context, blockID string) error {
	o.mu.Lock()
	b, ok := o.blocks[blockID]
	o.mu.Unlock()
	if !ok {
		return block.ErrBlockFinished
	}
	if b.Status().Terminal() {
		return block.ErrBlockFinished
	}

	if b.Info.IsPersistent {
		if err := o.conns.Send(ctx, b.SessionID, string([]byte{byte(block.CtrlC)})); err != nil {
			log.Warn("cancel_interrupt_failed", "block", blockID, "error", err)
		}
	}

	o.mu.Lock()
	if st, ok := o.sessions[b.SessionID]; ok && st.runningBlock == b {
		o.finishRunningLocked(st, block.StatusCancelled)
	} else {
		o.finishBlockLocked(b, block.StatusCancelled)
	}
	o.mu.Unlock()
	return nil
}

// FocusBlock moves keyboard focus onto a block (or off it).
func (o *Orchestrator) FocusBlock(blockID string, focused bool) {
	if focused {
		o.registry.Focus(blockID)
		return
	}
	o.router.Handle(block.Event{Type: block.EventFocusChanged, BlockID: blockID, Focused: false})
}

// SendRawInput routes text through the focus router. Returns whether the
// input was consumed by a focused block.
func (o *Orchestrator) SendRawInput(ctx context.Context, input string) bool {
	return o.router.RouteText(ctx, input)
}

// SendControl routes a control key through the focus router.
func (o *Orchestrator) SendControl(ctx context.Context, key block.ControlKey) bool {
	return o.router.RouteControl(ctx, key)
}

// ResizeTerminal propagates new dimensions to the session PTY.
func (o *Orchestrator) ResizeTerminal(sessionID string, cols, rows int) error {
	return o.conns.Resize(sessionID, cols, rows)
}

// Block returns a block by id.
func (o *Orchestrator) Block(blockID string) (*block.CommandBlock, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.blocks[blockID]
	return b, ok
}

// Subscribe returns a channel of orchestrator events plus a cancel func.
// Slow subscribers drop events rather than stall the pumps.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, 128)
	o.mu.Lock()
	o.subs[id] = ch
	o.mu.Unlock()
	return ch, func() {
		o.mu.Lock()
		if c, ok := o.subs[id]; ok {
			delete(o.subs, id)
			close(c)
		}
		o.mu.Unlock()
	}
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// pumpOutput normalizes transport chunks and appends them to the running
// block, re-arming the one-shot quiet timer on each burst.
func (o *Orchestrator) pumpOutput(ctx context.Context, st *sessionState, chunks <-chan conn.OutputChunk) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			text := normalize.Bytes(chunk.Data, "")
			if text == "" {
				continue
			}

			o.mu.Lock()
			b := st.runningBlock
			if b != nil {
				if err := b.Append(text); err != nil {
					b = nil
				} else if b.Info.Category == classify.CategoryOneShot {
					o.armQuietTimerLocked(st, b)
				}
			}
			o.mu.Unlock()

			if b != nil {
				o.emit(Event{Type: EventBlockOutput, SessionID: st.id, BlockID: b.ID, Text: text})
			}
		}
	}
}

// armQuietTimerLocked (re)starts the completion timer for a one-shot
// block. Caller holds o.mu.
func (o *Orchestrator) armQuietTimerLocked(st *sessionState, b *block.CommandBlock) {
	if st.quiet != nil {
		st.quiet.Stop()
	}
	st.quiet = time.AfterFunc(o.opts.OneShotQuiescence, func() {
		o.mu.Lock()
		if st.runningBlock == b {
			o.finishRunningLocked(st, block.StatusCompleted)
		}
		o.mu.Unlock()
	})
}

// finishRunningLocked finishes the session's running block, if any.
// Caller holds o.mu.
func (o *Orchestrator) finishRunningLocked(st *sessionState, status block.Status) {
	if st.quiet != nil {
		st.quiet.Stop()
		st.quiet = nil
	}
	b := st.runningBlock
	st.runningBlock = nil
	if b == nil {
		return
	}
	o.finishBlockLocked(b, status)
}

// finishBlockLocked moves a block to a terminal status and performs the
// follow-up work: registry teardown, history, event. Caller holds o.mu.
func (o *Orchestrator) finishBlockLocked(b *block.CommandBlock, status block.Status) {
	if err := b.Finish(status); err != nil {
		return
	}

	// Terminate synchronously so the terminated event holds a fixed order
	// relative to any activation the caller already performed. The registry
	// never takes o.mu, so this is safe under the lock.
	o.registry.Terminate(b.ID)

	// History and subscriber notification must not run under o.mu.
	go func() {
		o.recordHistory(b)
		o.emit(Event{Type: EventBlockFinished, SessionID: b.SessionID, BlockID: b.ID, Text: string(status)})
	}()
}

func (o *Orchestrator) recordHistory(b *block.CommandBlock) {
	if o.opts.History == nil {
		return
	}
	err := o.opts.History.Record(history.Entry{
		SessionID: b.SessionID,
		Command:   b.Command,
		Category:  string(b.Info.Category),
		Status:    string(b.Status()),
		StartedAt: b.StartedAt,
		Duration:  b.EndedAt().Sub(b.StartedAt),
	})
	if err != nil {
		log.Warn("history_record_failed", "block", b.ID, "error", err)
	}
}

// handleStatus reacts to connection status transitions: a lost session
// fails its running block and tears down the output pump.
func (o *Orchestrator) handleStatus(ev conn.StatusEvent) {
	if ev.Welcome != "" {
		o.emit(Event{Type: EventSessionWelcome, SessionID: ev.SessionID, Text: ev.Welcome})
	}
	o.emit(Event{Type: EventSessionStatus, SessionID: ev.SessionID, Text: string(ev.Status), Err: ev.Err})

	if ev.Status != conn.StatusDisconnected && ev.Status != conn.StatusFailed {
		return
	}

	o.mu.Lock()
	st, ok := o.sessions[ev.SessionID]
	if ok {
		delete(o.sessions, ev.SessionID)
		o.finishRunningLocked(st, block.StatusFailed)
	}
	o.mu.Unlock()

	if ok && st.cancelPump != nil {
		st.cancelPump()
	}
	log.Info("session_closed", "session", ev.SessionID, "status", ev.Status)
}

// Close disconnects all sessions and stops the status pump.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.Unlock()
	for _, id := range ids {
		_ = o.conns.Disconnect(id)
	}
	if o.statusCancel != nil {
		o.statusCancel()
	}
}
