package core

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpocket/termcore/internal/block"
	"github.com/devpocket/termcore/internal/classify"
	"github.com/devpocket/termcore/internal/conn"
	"github.com/devpocket/termcore/internal/transport"
)

type fakeTransport struct {
	kind transport.Kind

	outR *io.PipeReader
	outW *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer

	done      chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	r, w := io.Pipe()
	return &fakeTransport{kind: transport.KindLocal, outR: r, outW: w, done: make(chan struct{})}
}

func (f *fakeTransport) Stdout() io.Reader    { return f.outR }
func (f *fakeTransport) Stderr() io.Reader    { return bytes.NewReader(nil) }
func (f *fakeTransport) Kind() transport.Kind { return f.kind }

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.Write(p)
}

func (f *fakeTransport) Resize(cols, rows int) error { return nil }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
		f.outW.Close()
	})
	return nil
}

func (f *fakeTransport) Wait() error {
	<-f.done
	return nil
}

func (f *fakeTransport) writtenString() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

type fakeOpener struct{ tr transport.Transport }

func (o fakeOpener) Open(ctx context.Context, t transport.Target) (transport.Transport, error) {
	return o.tr, nil
}

func testOrchestrator(t *testing.T) (*Orchestrator, *fakeTransport, string) {
	t.Helper()
	ft := newFakeTransport()
	o := New(fakeOpener{tr: ft}, nil, Options{OneShotQuiescence: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	o.Start(ctx)
	t.Cleanup(o.Close)

	id, err := o.Connect(ctx, transport.LocalTarget{})
	require.NoError(t, err)
	return o, ft, id
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSubmitCommand_SendsLineAndCollectsOutput(t *testing.T) {
	o, ft, id := testOrchestrator(t)

	b, err := o.SubmitCommand(context.Background(), id, "ls -la")
	require.NoError(t, err)
	assert.Equal(t, "ls -la\n", ft.writtenString())
	assert.Equal(t, classify.CategoryOneShot, b.Info.Category)
	assert.Equal(t, block.StatusRunning, b.Status())

	_, err = ft.outW.Write([]byte("total 8\r\ndrwxr-xr-x  .\r\n"))
	require.NoError(t, err)

	waitFor(t, func() bool {
		return strings.Contains(b.Output(), "drwxr-xr-x")
	}, "output never reached the block")
}

func TestSubmitCommand_OneShotCompletesOnQuiescence(t *testing.T) {
	o, ft, id := testOrchestrator(t)

	b, err := o.SubmitCommand(context.Background(), id, "git status")
	require.NoError(t, err)

	_, err = ft.outW.Write([]byte("On branch main\r\n"))
	require.NoError(t, err)

	waitFor(t, func() bool {
		return b.Status() == block.StatusCompleted
	}, "one-shot block never completed after output went quiet")
}

func TestSubmitCommand_UnknownSession(t *testing.T) {
	o, _, _ := testOrchestrator(t)
	_, err := o.SubmitCommand(context.Background(), "nope", "ls")
	assert.ErrorIs(t, err, conn.ErrUnknownSession)
}

func TestSubmitCommand_InteractiveTakesFocus(t *testing.T) {
	o, ft, id := testOrchestrator(t)

	b, err := o.SubmitCommand(context.Background(), id, "vim notes.txt")
	require.NoError(t, err)
	assert.True(t, b.Info.NeedsSpecialHandling())

	waitFor(t, func() bool {
		return o.Router().State().FocusedBlockID == b.ID
	}, "interactive block never took focus")

	// Keystrokes now flow to the session, not the main input.
	assert.True(t, o.SendRawInput(context.Background(), "i"))
	waitFor(t, func() bool {
		return strings.HasSuffix(ft.writtenString(), "i")
	}, "routed keystroke never reached the transport")
}

func TestSubmitCommand_NewCommandSupersedesRunningBlock(t *testing.T) {
	o, _, id := testOrchestrator(t)

	b1, err := o.SubmitCommand(context.Background(), id, "tail -f /var/log/syslog")
	require.NoError(t, err)
	assert.Equal(t, classify.CategoryContinuous, b1.Info.Category)
	assert.Equal(t, block.StatusRunning, b1.Status())

	b2, err := o.SubmitCommand(context.Background(), id, "echo done")
	require.NoError(t, err)

	assert.Equal(t, block.StatusCompleted, b1.Status())
	assert.Equal(t, block.StatusRunning, b2.Status())
	assert.Greater(t, b2.Index, b1.Index)
}

func TestSubmitCommand_InteractiveSupersedeHandsFocusDirectly(t *testing.T) {
	o, _, id := testOrchestrator(t)

	events, cancelSub := o.registry.Subscribe()
	defer cancelSub()

	b1, err := o.SubmitCommand(context.Background(), id, "vim notes.txt")
	require.NoError(t, err)
	b2, err := o.SubmitCommand(context.Background(), id, "python3")
	require.NoError(t, err)

	// The second activation must reach the router before the first block's
	// termination, so focus moves b1 -> b2 with no main-input hop.
	var order []string
	deadline := time.After(2 * time.Second)
	for {
		var ev block.Event
		select {
		case ev = <-events:
		case <-deadline:
			t.Fatalf("never saw terminated(b1); events: %v", order)
		}
		order = append(order, string(ev.Type)+":"+ev.BlockID)
		if ev.Type == block.EventTerminated && ev.BlockID == b1.ID {
			activatedAt := -1
			for i, s := range order {
				if s == string(block.EventActivated)+":"+b2.ID {
					activatedAt = i
					break
				}
			}
			require.GreaterOrEqual(t, activatedAt, 0, "activated(b2) missing; events: %v", order)
			assert.Less(t, activatedAt, len(order)-1, "terminated(b1) before activated(b2); events: %v", order)
			break
		}
	}

	assert.Equal(t, block.StatusCompleted, b1.Status())
	waitFor(t, func() bool {
		return o.Router().State().FocusedBlockID == b2.ID
	}, "focus never settled on the superseding block")
}

func TestCancelBlock_PersistentGetsInterrupt(t *testing.T) {
	o, ft, id := testOrchestrator(t)

	b, err := o.SubmitCommand(context.Background(), id, "tail -f app.log")
	require.NoError(t, err)

	require.NoError(t, o.CancelBlock(context.Background(), b.ID))
	assert.Equal(t, block.StatusCancelled, b.Status())
	assert.Contains(t, ft.writtenString(), "\x03")

	// A second cancel reports the block is already finished.
	assert.ErrorIs(t, o.CancelBlock(context.Background(), b.ID), block.ErrBlockFinished)
}

func TestCancelBlock_InteractiveReturnsFocusToMain(t *testing.T) {
	o, _, id := testOrchestrator(t)

	b, err := o.SubmitCommand(context.Background(), id, "python3")
	require.NoError(t, err)
	waitFor(t, func() bool {
		return o.Router().State().FocusedBlockID == b.ID
	}, "interactive block never took focus")

	require.NoError(t, o.CancelBlock(context.Background(), b.ID))

	waitFor(t, func() bool {
		return o.Router().State().Destination == block.DestinationMainInput
	}, "focus never returned to the main input")
	assert.False(t, o.SendRawInput(context.Background(), "ls"))
}

func TestSendControl_NoFocusIsConsumedNoop(t *testing.T) {
	o, ft, _ := testOrchestrator(t)

	assert.True(t, o.SendControl(context.Background(), block.CtrlC))
	assert.Empty(t, ft.writtenString())
}

func TestSessionLoss_FailsRunningBlock(t *testing.T) {
	o, ft, id := testOrchestrator(t)

	b, err := o.SubmitCommand(context.Background(), id, "npm run dev")
	require.NoError(t, err)
	assert.Equal(t, classify.CategoryContinuous, b.Info.Category)

	require.NoError(t, ft.Close())

	waitFor(t, func() bool {
		return b.Status() == block.StatusFailed
	}, "running block never failed after transport exit")
}

func TestSubscribe_DeliversBlockEvents(t *testing.T) {
	o, ft, id := testOrchestrator(t)

	events, cancel := o.Subscribe()
	defer cancel()

	b, err := o.SubmitCommand(context.Background(), id, "cat /etc/hostname")
	require.NoError(t, err)
	_, err = ft.outW.Write([]byte("devbox\r\n"))
	require.NoError(t, err)

	var seen []EventType
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.BlockID != b.ID && ev.Type != EventSessionStatus {
				continue
			}
			seen = append(seen, ev.Type)
			if ev.Type == EventBlockFinished {
				assert.Contains(t, seen, EventBlockStarted)
				assert.Contains(t, seen, EventBlockOutput)
				return
			}
		case <-deadline:
			t.Fatalf("never saw blockFinished; events: %v", seen)
		}
	}
}

func TestResizeTerminal_UnknownSession(t *testing.T) {
	o, _, _ := testOrchestrator(t)
	assert.ErrorIs(t, o.ResizeTerminal("nope", 120, 40), conn.ErrUnknownSession)
}
