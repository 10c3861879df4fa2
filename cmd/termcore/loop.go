package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/devpocket/termcore/internal/block"
	"github.com/devpocket/termcore/internal/conn"
	"github.com/devpocket/termcore/internal/core"
)

// ctrlQ detaches from the session without killing it.
const ctrlQ = 0x11

const prompt = "\r\n> "

// runLoop bridges the controlling terminal to a session: typed lines become
// command blocks, keystrokes go to a focused interactive block, and block
// output streams back to the terminal.
func runLoop(ctx context.Context, o *core.Orchestrator, sessionID string) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	// Propagate terminal resizes to the session PTY.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			cols, rows := terminalSize()
			_ = o.ResizeTerminal(sessionID, cols, rows)
		}
	}()

	events, cancelSub := o.Subscribe()
	defer cancelSub()

	done := make(chan error, 1)
	go func() { done <- printEvents(events, sessionID) }()

	if welcome, err := o.Welcome(sessionID); err == nil && welcome != "" {
		fmt.Print("\r\n" + welcome)
	}
	fmt.Print(prompt)

	input := make(chan byte, 64)
	go readStdin(ctx, input)

	var line []byte
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-done:
			return err
		case c, ok := <-input:
			if !ok {
				return nil
			}
			if c == ctrlQ {
				fmt.Print("\r\nDetached.\r\n")
				return o.Disconnect(sessionID)
			}

			// A focused interactive block gets keystrokes verbatim.
			if o.Router().State().FocusedBlockID != "" {
				if isControlByte(c) {
					o.SendControl(ctx, block.ControlKey(c))
				} else {
					o.SendRawInput(ctx, string([]byte{c}))
				}
				continue
			}

			switch c {
			case byte(block.CtrlC):
				// No focused block: clear the pending line.
				line = line[:0]
				fmt.Print("^C" + prompt)
			case '\r', '\n':
				cmd := string(line)
				line = line[:0]
				fmt.Print("\r\n")
				if cmd == "" {
					fmt.Print(prompt)
					continue
				}
				if _, err := o.SubmitCommand(ctx, sessionID, cmd); err != nil {
					if err == conn.ErrNotConnected {
						return err
					}
					fmt.Printf("error: %v%s", err, prompt)
				}
			case 0x7f, 0x08: // backspace
				if len(line) > 0 {
					line = line[:len(line)-1]
					fmt.Print("\b \b")
				}
			default:
				if c >= 0x20 {
					line = append(line, c)
					fmt.Print(string(c))
				}
			}
		}
	}
}

func isControlByte(c byte) bool {
	switch block.ControlKey(c) {
	case block.CtrlC, block.CtrlD, block.CtrlZ, block.Esc:
		return true
	}
	return false
}

// printEvents streams orchestrator events to the terminal until the session
// ends. Raw mode needs explicit carriage returns.
func printEvents(events <-chan core.Event, sessionID string) error {
	for ev := range events {
		if ev.SessionID != sessionID {
			continue
		}
		switch ev.Type {
		case core.EventBlockOutput:
			fmt.Print(ev.Text)
		case core.EventBlockFinished:
			fmt.Print(prompt)
		case core.EventSessionWelcome:
			fmt.Print(ev.Text)
		case core.EventSessionStatus:
			switch conn.Status(ev.Text) {
			case conn.StatusDisconnected:
				fmt.Print("\r\nConnection closed.\r\n")
				return nil
			case conn.StatusFailed:
				fmt.Print("\r\nConnection lost.\r\n")
				return ev.Err
			}
		}
	}
	return nil
}

// readStdin pumps single bytes from stdin. Reading byte-at-a-time is fine
// here: raw mode delivers keystrokes individually anyway.
func readStdin(ctx context.Context, out chan<- byte) {
	defer close(out)
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		select {
		case out <- buf[0]:
		case <-ctx.Done():
			return
		}
	}
}
