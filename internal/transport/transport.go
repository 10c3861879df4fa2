// Package transport abstracts the byte-stream channel underneath a terminal
// session: a local pseudo-terminal or a remote SSH shell channel. Higher
// layers see only the Transport interface; authentication material is
// supplied by the caller and never stored here.
package transport

import (
	"context"
	"io"
)

// Kind identifies the transport flavor of a session.
type Kind string

const (
	KindLocal Kind = "local"
	KindSSH   Kind = "ssh"
)

// TermName is the terminal type requested for PTYs.
const TermName = "xterm-256color"

// Target describes where a session should connect. Exactly two
// implementations exist: LocalTarget and RemoteTarget.
type Target interface {
	Kind() Kind
}

// LocalTarget spawns a shell on a local pseudo-terminal.
type LocalTarget struct {
	// Shell is the program to run; defaults to $SHELL, then /bin/sh.
	Shell string
	// Dir is the working directory; empty means inherit.
	Dir string
	// Env entries are appended to the inherited environment.
	Env []string
	// Initial terminal geometry; zero values default to 80x24.
	Cols, Rows int
}

func (LocalTarget) Kind() Kind { return KindLocal }

// HostProfile is the read-only connection record from the external profile
// store: where to connect and as whom. Secrets live behind Auth, not here.
type HostProfile struct {
	Host string
	Port int
	User string
}

// Auth carries the credential material resolved by the external store for
// one connection attempt.
type Auth struct {
	// Password, if set, enables password authentication.
	Password string
	// PrivateKeyPEM, if set, enables public-key authentication.
	PrivateKeyPEM []byte
	// Passphrase decrypts PrivateKeyPEM when the key is encrypted.
	Passphrase string
}

// RemoteTarget opens an SSH shell channel with a requested PTY.
type RemoteTarget struct {
	Profile HostProfile
	Auth    Auth
	// Initial terminal geometry; zero values default to 80x24.
	Cols, Rows int
	// StrictHostKey enables known_hosts verification via KnownHostsPath.
	// When false the host key is not verified (the mobile client pins keys
	// at the profile layer instead).
	StrictHostKey  bool
	KnownHostsPath string
}

func (RemoteTarget) Kind() Kind { return KindSSH }

// Transport is one live byte-stream channel. Implementations are safe for
// one reader per stream plus concurrent Write/Resize/Close.
type Transport interface {
	// Stdout returns the output stream. For PTY-backed transports stderr is
	// merged into this stream.
	Stdout() io.Reader
	// Stderr returns the error stream; may be an always-empty reader.
	Stderr() io.Reader
	// Write sends input bytes to the remote process.
	Write(p []byte) (int, error)
	// Resize propagates terminal geometry. No-op where unsupported.
	Resize(cols, rows int) error
	// Close tears the channel down. Idempotent.
	Close() error
	// Wait blocks until the underlying process or channel exits.
	Wait() error
	// Kind reports the transport flavor.
	Kind() Kind
}

// Opener establishes transports. conn.Manager depends on this interface so
// tests can substitute a fake.
type Opener interface {
	Open(ctx context.Context, target Target) (Transport, error)
}

// DefaultOpener dispatches on the target type to the real implementations.
type DefaultOpener struct{}

func (DefaultOpener) Open(ctx context.Context, target Target) (Transport, error) {
	switch t := target.(type) {
	case LocalTarget:
		return openLocal(ctx, t)
	case *LocalTarget:
		return openLocal(ctx, *t)
	case RemoteTarget:
		return openSSH(ctx, t)
	case *RemoteTarget:
		return openSSH(ctx, *t)
	default:
		return nil, ErrUnsupportedTarget
	}
}

func defaultSize(cols, rows int) (int, int) {
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}
	return cols, rows
}
