//go:build !windows

package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/devpocket/termcore/internal/logging"
)

var localLog = logging.ForComponent(logging.CompTransport)

// localPTY runs a shell on a local pseudo-terminal. The PTY merges stderr
// into the master stream, so Stderr() is always empty.
type localPTY struct {
	cmd  *exec.Cmd
	ptmx *os.File

	closeOnce sync.Once
	closeErr  error
}

func openLocal(ctx context.Context, target LocalTarget) (Transport, error) {
	shell := target.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}

	cols, rows := defaultSize(target.Cols, target.Rows)

	cmd := exec.Command(shell)
	cmd.Dir = target.Dir
	cmd.Env = append(os.Environ(), target.Env...)
	cmd.Env = append(cmd.Env, "TERM="+TermName)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	// Honor a context cancelled between call and start.
	if ctx.Err() != nil {
		_ = ptmx.Close()
		_ = cmd.Process.Kill()
		return nil, ctx.Err()
	}

	localLog.Debug("local_pty_started", "shell", shell, "pid", cmd.Process.Pid)

	return &localPTY{cmd: cmd, ptmx: ptmx}, nil
}

func (l *localPTY) Stdout() io.Reader { return l.ptmx }
func (l *localPTY) Stderr() io.Reader { return emptyReader{} }
func (l *localPTY) Kind() Kind        { return KindLocal }

func (l *localPTY) Write(p []byte) (int, error) {
	return l.ptmx.Write(p)
}

func (l *localPTY) Resize(cols, rows int) error {
	return pty.Setsize(l.ptmx, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
}

func (l *localPTY) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.ptmx.Close()
		if l.cmd.Process != nil {
			_ = l.cmd.Process.Kill()
		}
	})
	return l.closeErr
}

func (l *localPTY) Wait() error {
	return l.cmd.Wait()
}
