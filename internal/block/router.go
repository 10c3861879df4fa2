package block

import (
	"context"
	"sync"

	"github.com/devpocket/termcore/internal/logging"
)

var routerLog = logging.ForComponent(logging.CompRouter)

// DestinationMainInput is the focus destination when no block owns input.
const DestinationMainInput = "mainInput"

// ControlKey is a control signal the router can deliver to a focused block.
type ControlKey byte

const (
	CtrlC ControlKey = 0x03
	CtrlD ControlKey = 0x04
	CtrlZ ControlKey = 0x1A
	Esc   ControlKey = 0x1B
)

// FocusState is the single process-wide answer to "where do keystrokes go".
type FocusState struct {
	// Destination is DestinationMainInput or a block id.
	Destination string
	// FocusedBlockID is empty when the main input has focus.
	FocusedBlockID string
}

// FocusRouter routes keystrokes and control signals either to the focused
// interactive block or back to the caller's main command input. One router
// serves all sessions; construct it with its registry and inject it rather
// than sharing globals.
type FocusRouter struct {
	registry *Registry

	mu    sync.RWMutex
	state FocusState
}

// NewFocusRouter creates a router over the given registry with focus on the
// main input.
func NewFocusRouter(registry *Registry) *FocusRouter {
	return &FocusRouter{
		registry: registry,
		state:    FocusState{Destination: DestinationMainInput},
	}
}

// Start consumes registry events until ctx is cancelled, keeping the focus
// state in sync with block activation and termination.
func (f *FocusRouter) Start(ctx context.Context) {
	events, cancel := f.registry.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				f.Handle(ev)
			}
		}
	}()
}

// Handle applies one registry event to the focus state. Exposed so callers
// with their own event pump (and tests) can drive the router directly.
func (f *FocusRouter) Handle(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch ev.Type {
	case EventActivated:
		// A newly started interactive process takes focus immediately.
		f.state = FocusState{Destination: ev.BlockID, FocusedBlockID: ev.BlockID}
		routerLog.Debug("focus_to_block", "block", ev.BlockID, "session", ev.SessionID)
	case EventTerminated:
		if f.state.FocusedBlockID == ev.BlockID {
			f.state = FocusState{Destination: DestinationMainInput}
			routerLog.Debug("focus_to_main", "block", ev.BlockID)
		}
	case EventFocusChanged:
		if ev.Focused {
			f.state = FocusState{Destination: ev.BlockID, FocusedBlockID: ev.BlockID}
		} else if f.state.FocusedBlockID == ev.BlockID {
			f.state = FocusState{Destination: DestinationMainInput}
		}
	}
}

// State returns a snapshot of the current focus state.
func (f *FocusRouter) State() FocusState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// RouteText delivers text input to the focused block's process. Returns
// whether the router consumed the input; false means the caller's main
// command input should handle it.
func (f *FocusRouter) RouteText(ctx context.Context, input string) bool {
	state := f.State()
	if state.FocusedBlockID == "" {
		return false
	}
	if f.registry.SendInput(ctx, state.FocusedBlockID, input) {
		return true
	}
	// Stale focus: the block is gone or superseded. Let the main input
	// have the keystroke.
	return false
}

// RouteControl delivers a control signal. With a focused block the signal
// goes to its process. With no focus the signal is still reported as
// consumed: a raw control byte must never leak into a text field.
func (f *FocusRouter) RouteControl(ctx context.Context, key ControlKey) bool {
	state := f.State()
	if state.FocusedBlockID == "" {
		return true
	}
	f.registry.SendInput(ctx, state.FocusedBlockID, string([]byte{byte(key)}))
	return true
}
