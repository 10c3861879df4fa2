package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/devpocket/termcore/internal/logging"
)

var sshLog = logging.ForComponent(logging.CompTransport)

// sshShell is an SSH shell channel with a requested PTY. Stderr is merged
// into stdout by the remote PTY, so Stderr() is always empty.
type sshShell struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	closeOnce sync.Once
	closeErr  error
}

func openSSH(ctx context.Context, target RemoteTarget) (Transport, error) {
	cfg, err := clientConfig(target)
	if err != nil {
		return nil, err
	}

	port := target.Profile.Port
	if port <= 0 {
		port = 22
	}
	addr := net.JoinHostPort(target.Profile.Host, strconv.Itoa(port))

	client, err := dialContext(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}

	cols, rows := defaultSize(target.Cols, target.Rows)
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(TermName, rows, cols, modes); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	sshLog.Debug("ssh_shell_started",
		"host", target.Profile.Host,
		"user", target.Profile.User,
		"cols", cols, "rows", rows)

	return &sshShell{
		client:  client,
		session: session,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

// clientConfig builds the ssh.ClientConfig from the target's profile and
// credential material.
func clientConfig(target RemoteTarget) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if len(target.Auth.PrivateKeyPEM) > 0 {
		var signer ssh.Signer
		var err error
		if target.Auth.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(target.Auth.PrivateKeyPEM, []byte(target.Auth.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(target.Auth.PrivateKeyPEM)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if target.Auth.Password != "" {
		methods = append(methods, ssh.Password(target.Auth.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no auth material for %s", target.Profile.Host)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // key pinning happens at the profile layer
	if target.StrictHostKey {
		cb, err := knownhosts.New(target.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            target.Profile.User,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
	}, nil
}

// dialContext dials TCP under the caller's context, then runs the SSH
// handshake. ssh.Dial alone ignores the context, which would make connect
// timeouts unenforceable.
func dialContext(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{}
	tcp, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = tcp.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(tcp, addr, cfg)
	if err != nil {
		_ = tcp.Close()
		return nil, err
	}
	_ = tcp.SetDeadline(time.Time{})

	return ssh.NewClient(c, chans, reqs), nil
}

func (s *sshShell) Stdout() io.Reader { return s.stdout }
func (s *sshShell) Stderr() io.Reader { return emptyReader{} }
func (s *sshShell) Kind() Kind        { return KindSSH }

func (s *sshShell) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

func (s *sshShell) Resize(cols, rows int) error {
	return s.session.WindowChange(rows, cols)
}

func (s *sshShell) Close() error {
	s.closeOnce.Do(func() {
		_ = s.session.Close()
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

func (s *sshShell) Wait() error {
	return s.session.Wait()
}
