// Package conn owns the lifecycle of one transport per logical terminal
// session: connect, stream output to subscribers, send input, resize and
// disconnect. Sessions are not resumable; reconnecting is a fresh Connect
// producing a new session id.
package conn

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/devpocket/termcore/internal/logging"
	"github.com/devpocket/termcore/internal/transport"
)

var log = logging.ForComponent(logging.CompConn)

// Status is the connection state of a session.
// Lifecycle: connecting -> connected -> (disconnected | failed).
// disconnected and failed are terminal.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusFailed       Status = "failed"
)

// terminal reports whether no further transitions are possible.
func (s Status) terminal() bool {
	return s == StatusDisconnected || s == StatusFailed
}

// OutputChunk is one burst of output from a session's transport, delivered
// to subscribers in transport order.
type OutputChunk struct {
	SessionID string
	Data      []byte
	Time      time.Time
}

// StatusEvent notifies subscribers of a session status transition. Welcome
// carries the connection banner exactly once, when the settling window for
// an SSH session closes.
type StatusEvent struct {
	SessionID string
	Status    Status
	Err       error
	Welcome   string
}

const (
	subscriberBufSize = 256

	defaultSettleQuiescence = 1 * time.Second
	defaultSettleMax        = 2 * time.Second
	defaultSendRatePerSec   = 100
	defaultSendBurst        = 200
)

// Options tunes manager behavior. Zero values select defaults.
type Options struct {
	// SettleQuiescence is how long SSH output must stay quiet before the
	// banner is considered complete.
	SettleQuiescence time.Duration
	// SettleMax caps the settling window regardless of banner chatter.
	SettleMax time.Duration
	// SendRatePerSec / SendBurst bound input throughput per session.
	SendRatePerSec int
	SendBurst      int
}

func (o Options) withDefaults() Options {
	if o.SettleQuiescence <= 0 {
		o.SettleQuiescence = defaultSettleQuiescence
	}
	if o.SettleMax <= 0 {
		o.SettleMax = defaultSettleMax
	}
	if o.SendRatePerSec <= 0 {
		o.SendRatePerSec = defaultSendRatePerSec
	}
	if o.SendBurst <= 0 {
		o.SendBurst = defaultSendBurst
	}
	return o
}

// session is the manager's record of one live transport.
type session struct {
	id   string
	kind transport.Kind

	mu      sync.Mutex
	status  Status
	tr      transport.Transport
	welcome string
	limiter *rate.Limiter
	subs    map[string]chan OutputChunk
	banner  *bannerCollector
}

// Manager owns all sessions. Safe for concurrent use; operations on
// different sessions never block on each other.
type Manager struct {
	opener transport.Opener
	opts   Options

	mu       sync.RWMutex
	sessions map[string]*session

	statusMu   sync.RWMutex
	statusSubs map[string]chan StatusEvent
}

// NewManager creates a Manager using the given transport opener.
func NewManager(opener transport.Opener, opts Options) *Manager {
	return &Manager{
		opener:     opener,
		opts:       opts.withDefaults(),
		sessions:   make(map[string]*session),
		statusSubs: make(map[string]chan StatusEvent),
	}
}

// Connect establishes a transport for a new session and returns its id.
// The caller bounds the attempt with ctx (15-30s recommended); on failure
// the returned error is a *ConnectionError and the session is recorded as
// failed.
func (m *Manager) Connect(ctx context.Context, target transport.Target) (string, error) {
	s := &session{
		id:      uuid.NewString(),
		kind:    target.Kind(),
		status:  StatusConnecting,
		limiter: rate.NewLimiter(rate.Limit(m.opts.SendRatePerSec), m.opts.SendBurst),
		subs:    make(map[string]chan OutputChunk),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.emitStatus(StatusEvent{SessionID: s.id, Status: StatusConnecting})

	tr, err := m.opener.Open(ctx, target)
	if err != nil {
		cerr := classifyConnectErr(err)
		s.mu.Lock()
		s.status = StatusFailed
		s.mu.Unlock()
		log.Warn("connect_failed", "session", s.id, "reason", string(cerr.Reason), "error", err)
		m.emitStatus(StatusEvent{SessionID: s.id, Status: StatusFailed, Err: cerr})
		return s.id, cerr
	}

	s.mu.Lock()
	s.tr = tr
	s.status = StatusConnected
	if s.kind == transport.KindSSH {
		s.banner = newBannerCollector(m.opts.SettleQuiescence, m.opts.SettleMax, func(banner string) {
			s.mu.Lock()
			s.welcome = banner
			s.mu.Unlock()
			m.emitStatus(StatusEvent{SessionID: s.id, Status: StatusConnected, Welcome: banner})
		})
	}
	s.mu.Unlock()

	log.Info("session_connected", "session", s.id, "kind", string(s.kind))
	m.emitStatus(StatusEvent{SessionID: s.id, Status: StatusConnected})

	go m.run(s, tr)

	return s.id, nil
}

// run pumps transport output and watches for exit.
func (m *Manager) run(s *session, tr transport.Transport) {
	var g errgroup.Group
	g.Go(func() error { return m.pump(s, tr.Stdout()) })
	g.Go(func() error { return m.pump(s, tr.Stderr()) })

	waitErr := tr.Wait()
	_ = tr.Close()
	_ = g.Wait()

	s.mu.Lock()
	if s.banner != nil {
		s.banner.stop()
	}
	already := s.status.terminal()
	if !already {
		if waitErr != nil {
			s.status = StatusFailed
		} else {
			s.status = StatusDisconnected
		}
	}
	status := s.status
	s.mu.Unlock()

	if !already {
		log.Info("session_ended", "session", s.id, "status", string(status), "error", waitErr)
		m.emitStatus(StatusEvent{SessionID: s.id, Status: status, Err: waitErr})
	}
}

// pump reads a stream until EOF, routing chunks to the banner collector
// during the settling window and to subscribers afterwards.
func (m *Manager) pump(s *session, r io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			m.deliver(s, data)
		}
		if err != nil {
			if err != io.EOF {
				log.Debug("pump_read_error", "session", s.id, "error", err)
			}
			return nil
		}
	}
}

func (m *Manager) deliver(s *session, data []byte) {
	logging.RecordChunk(logging.CompConn, "output_chunk", len(data))

	s.mu.Lock()
	if s.banner != nil && s.banner.collect(data) {
		s.mu.Unlock()
		return
	}
	chunk := OutputChunk{SessionID: s.id, Data: data, Time: time.Now()}
	for _, ch := range s.subs {
		select {
		case ch <- chunk:
		default:
			// Subscriber is not keeping up; drop rather than block the pump.
		}
	}
	s.mu.Unlock()
}

// Subscribe returns a channel of output chunks for a session plus a cancel
// function. Slow subscribers lose chunks rather than blocking delivery.
func (m *Manager) Subscribe(sessionID string) (<-chan OutputChunk, func(), error) {
	s, err := m.get(sessionID)
	if err != nil {
		return nil, nil, err
	}

	id := uuid.NewString()
	ch := make(chan OutputChunk, subscriberBufSize)

	s.mu.Lock()
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

// SubscribeStatus returns a channel of status events for all sessions.
func (m *Manager) SubscribeStatus() (<-chan StatusEvent, func()) {
	id := uuid.NewString()
	ch := make(chan StatusEvent, subscriberBufSize)

	m.statusMu.Lock()
	m.statusSubs[id] = ch
	m.statusMu.Unlock()

	cancel := func() {
		m.statusMu.Lock()
		delete(m.statusSubs, id)
		m.statusMu.Unlock()
	}
	return ch, cancel
}

func (m *Manager) emitStatus(ev StatusEvent) {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	for _, ch := range m.statusSubs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Send writes input to the session. The per-session rate limiter smooths
// bursts; ctx bounds the wait.
func (m *Manager) Send(ctx context.Context, sessionID, data string) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	tr, status, limiter := s.tr, s.status, s.limiter
	s.mu.Unlock()

	if status != StatusConnected || tr == nil {
		return ErrNotConnected
	}
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := tr.Write([]byte(data)); err != nil {
		return err
	}
	return nil
}

// Resize propagates terminal geometry to the session's PTY.
func (m *Manager) Resize(sessionID string, cols, rows int) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	tr, status := s.tr, s.status
	s.mu.Unlock()

	if status != StatusConnected || tr == nil {
		return ErrNotConnected
	}
	return tr.Resize(cols, rows)
}

// Disconnect closes the session's transport. Idempotent; disconnecting an
// already-terminal session is a no-op.
func (m *Manager) Disconnect(sessionID string) error {
	s, err := m.get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.status.terminal() {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusDisconnected
	tr := s.tr
	if s.banner != nil {
		s.banner.stop()
	}
	s.mu.Unlock()

	if tr != nil {
		_ = tr.Close()
	}
	log.Info("session_disconnected", "session", sessionID)
	m.emitStatus(StatusEvent{SessionID: sessionID, Status: StatusDisconnected})
	return nil
}

// Status returns the session's connection status.
func (m *Manager) Status(sessionID string) (Status, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

// Kind returns the session's transport kind.
func (m *Manager) Kind(sessionID string) (transport.Kind, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return "", err
	}
	return s.kind, nil
}

// Welcome returns the connection banner captured during the settling
// window; empty for local sessions or before the window closes.
func (m *Manager) Welcome(sessionID string) (string, error) {
	s, err := m.get(sessionID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.welcome, nil
}

func (m *Manager) get(sessionID string) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// bannerCollector implements the SSH welcome settling window: output
// arriving right after shell establishment is buffered as banner text until
// either quiescence or the window cap elapses, whichever happens first.
// Anything after that is command output. The race is a known approximation
// for chatty or slow banners (prompt-marker injection would be exact, but
// server-side cooperation cannot be assumed).
type bannerCollector struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	settled  bool
	onSettle func(banner string)

	quiescence time.Duration
	quiet      *time.Timer
	max        *time.Timer
}

func newBannerCollector(quiescence, maxWindow time.Duration, onSettle func(string)) *bannerCollector {
	b := &bannerCollector{
		onSettle:   onSettle,
		quiescence: quiescence,
	}
	b.quiet = time.AfterFunc(quiescence, b.settle)
	b.max = time.AfterFunc(maxWindow, b.settle)
	return b
}

// collect buffers banner bytes; returns false once settled so the caller
// delivers the chunk as command output instead.
func (b *bannerCollector) collect(data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.settled {
		return false
	}
	b.buf.Write(data)
	b.quiet.Reset(b.quiescence)
	return true
}

func (b *bannerCollector) settle() {
	b.mu.Lock()
	if b.settled {
		b.mu.Unlock()
		return
	}
	b.settled = true
	b.quiet.Stop()
	b.max.Stop()
	banner := b.buf.String()
	cb := b.onSettle
	b.mu.Unlock()

	if cb != nil {
		cb(banner)
	}
}

// stop finalizes the collector without firing the settle callback.
func (b *bannerCollector) stop() {
	b.mu.Lock()
	b.settled = true
	b.quiet.Stop()
	b.max.Stop()
	b.mu.Unlock()
}
