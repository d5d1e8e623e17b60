// Package listen owns the ambient speech-recognition session: start, stop and
// automatic restart after natural ends and recoverable failures.
package listen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed indicates the manager has been torn down.
var ErrClosed = errors.New("listening manager closed")

// SessionState is the lifecycle state of the ambient session.
type SessionState string

const (
	StateStopped  SessionState = "stopped"
	StateStarting SessionState = "starting"
	StateActive   SessionState = "active"
)

// NoticeKind tags a Notice.
type NoticeKind int

const (
	NoticeStarted NoticeKind = iota
	NoticeTranscript
	NoticeEnded
	NoticeError
)

// Notice reports a session event to the owner of the manager.
type Notice struct {
	Kind    NoticeKind
	Session uint64
	Text    string
	Final   bool
	Err     error
	Class   Class
	// Restart is the scheduled restart delay, zero when none was scheduled.
	Restart time.Duration
}

// Session describes one run of the recognizer. It is never reused across restarts.
type Session struct {
	ID         uint64
	Locale     string
	Continuous bool
	StartedAt  time.Time

	stream      Stream
	intentional bool
}

// Manager keeps at most one ambient session alive and at most one restart pending.
type Manager struct {
	recognizer Recognizer
	policy     Policy
	logger     *slog.Logger
	notify     func(Notice)

	ctx    context.Context
	cancel context.CancelFunc

	// opMu serializes Start and Stop.
	opMu sync.Mutex

	mu         sync.Mutex
	state      SessionState
	session    *Session
	nextID     uint64
	locale     string
	continuous bool
	failures   int
	timer      *time.Timer
	timerGen   uint64
	closed     bool
}

// NewManager returns a stopped manager. notify may be nil.
func NewManager(recognizer Recognizer, policy Policy, locale string, logger *slog.Logger, notify func(Notice)) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	if notify == nil {
		notify = func(Notice) {}
	}
	return &Manager{
		recognizer: recognizer,
		policy:     policy,
		logger:     logger,
		notify:     notify,
		ctx:        ctx,
		cancel:     cancel,
		state:      StateStopped,
		locale:     locale,
		continuous: policy.Continuous,
	}
}

// Start opens a session unless one is already starting or active.
func (m *Manager) Start() error {
	return m.start(0, false)
}

func (m *Manager) start(gen uint64, fromTimer bool) error {
	if m.recognizer == nil {
		return ErrUnavailable
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if fromTimer && gen != m.timerGen {
		m.mu.Unlock()
		return nil
	}
	if m.state != StateStopped {
		m.mu.Unlock()
		return nil
	}
	m.cancelTimerLocked()
	m.nextID++
	s := &Session{
		ID:         m.nextID,
		Locale:     m.locale,
		Continuous: m.continuous,
		StartedAt:  time.Now(),
	}
	m.session = s
	m.state = StateStarting
	m.mu.Unlock()

	stream, err := m.recognizer.Start(m.ctx, Options{Locale: s.Locale, Continuous: s.Continuous})
	if err != nil {
		if m.detach(s) {
			m.handleError(s, err)
		}
		return err
	}

	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		stream.Abort()
		return nil
	}
	s.stream = stream
	m.state = StateActive
	m.mu.Unlock()

	m.debug("recognition session started", "session", s.ID, "locale", s.Locale, "continuous", s.Continuous)
	m.notify(Notice{Kind: NoticeStarted, Session: s.ID})
	go m.pump(s, stream)
	return nil
}

// Stop ends the current session intentionally and cancels any pending restart.
// Once Stop returns no session is open and no scheduled restart can open one.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.cancelTimerLocked()
	m.mu.Unlock()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.cancelTimerLocked()
	s := m.session
	m.session = nil
	m.state = StateStopped
	var stream Stream
	if s != nil {
		s.intentional = true
		stream = s.stream
	}
	m.mu.Unlock()

	if stream != nil {
		stream.Abort()
		m.debug("recognition session stopped", "session", s.ID)
	}
}

// ScheduleRestart arms the single restart timer. A pending restart is replaced.
func (m *Manager) ScheduleRestart(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state != StateStopped {
		return
	}
	m.scheduleLocked(delay)
}

// SetLocale changes the locale used by the next session. A running session keeps its locale.
func (m *Manager) SetLocale(locale string) {
	m.mu.Lock()
	m.locale = locale
	m.mu.Unlock()
}

// SetContinuous toggles automatic restarts. Enabling clears the failure count.
func (m *Manager) SetContinuous(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.continuous = enabled
	if enabled {
		m.failures = 0
		return
	}
	m.cancelTimerLocked()
}

// Close stops the session, cancels pending restarts, and rejects later starts.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Stop()
	m.cancel()
}

func (m *Manager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the ID of the starting or active session, zero when stopped.
func (m *Manager) Current() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return 0
	}
	return m.session.ID
}

func (m *Manager) RestartPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

func (m *Manager) Locale() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locale
}

func (m *Manager) Continuous() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.continuous
}

func (m *Manager) Policy() Policy {
	return m.policy
}

func (m *Manager) pump(s *Session, stream Stream) {
	for ev := range stream.Events() {
		switch ev.Kind {
		case EventResult:
			if !m.isCurrent(s) {
				continue
			}
			if ev.Final {
				m.mu.Lock()
				m.failures = 0
				m.mu.Unlock()
			}
			m.notify(Notice{Kind: NoticeTranscript, Session: s.ID, Text: ev.Text, Final: ev.Final})
		case EventEnded:
			m.handleEnd(s)
			return
		case EventError:
			err := ev.Err
			if err == nil {
				err = &Error{Kind: KindUnknown}
			}
			if m.detach(s) {
				m.handleError(s, err)
			}
			return
		}
	}
	m.handleEnd(s)
}

func (m *Manager) handleEnd(s *Session) {
	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.state = StateStopped
	var delay time.Duration
	if m.continuous && !m.closed {
		delay = m.policy.NaturalEndDelay
		m.scheduleLocked(delay)
	}
	m.mu.Unlock()

	m.debug("recognition session ended", "session", s.ID, "restart_ms", delay.Milliseconds())
	m.notify(Notice{Kind: NoticeEnded, Session: s.ID, Restart: delay})
}

// detach clears s as the current session, reporting whether it was current.
func (m *Manager) detach(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		return false
	}
	m.session = nil
	m.state = StateStopped
	return true
}

func (m *Manager) handleError(s *Session, err error) {
	kind := KindOf(err)
	class := Classify(kind)

	var delay time.Duration
	m.mu.Lock()
	switch class {
	case ClassTerminal:
		m.continuous = false
		m.cancelTimerLocked()
	case ClassRecoverable:
		if kind != KindNoSpeech {
			m.failures++
		}
		if m.continuous && !m.closed && !s.intentional {
			delay = m.policy.ErrorBackoff(kind, m.failures)
			m.scheduleLocked(delay)
		}
	}
	m.mu.Unlock()

	if class == ClassIntentional {
		m.debug("recognition session aborted", "session", s.ID)
		return
	}
	if m.logger != nil {
		m.logger.Warn("recognition error",
			"session", s.ID,
			"kind", string(kind),
			"class", class.String(),
			"restart_ms", delay.Milliseconds(),
			"error", err.Error(),
		)
	}
	m.notify(Notice{Kind: NoticeError, Session: s.ID, Err: err, Class: class, Restart: delay})
}

func (m *Manager) isCurrent(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session == s
}

func (m *Manager) scheduleLocked(delay time.Duration) {
	m.cancelTimerLocked()
	m.timerGen++
	gen := m.timerGen
	m.timer = time.AfterFunc(delay, func() { m.fireRestart(gen) })
}

// cancelTimerLocked disarms the pending restart and invalidates any that is already firing.
func (m *Manager) cancelTimerLocked() {
	m.timerGen++
	if m.timer == nil {
		return
	}
	m.timer.Stop()
	m.timer = nil
}

func (m *Manager) fireRestart(gen uint64) {
	m.mu.Lock()
	if gen != m.timerGen || m.timer == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	if err := m.start(gen, true); err != nil && m.logger != nil {
		m.logger.Debug("scheduled restart failed", "error", err.Error())
	}
}

func (m *Manager) debug(message string, attrs ...any) {
	if m.logger == nil {
		return
	}
	m.logger.Debug(message, attrs...)
}
