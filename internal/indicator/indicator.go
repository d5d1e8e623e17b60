// Package indicator handles visual state notifications and audio cue playback.
package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/vaani/internal/config"
	"github.com/rbright/vaani/internal/hypr"
)

// hyprctl notify icons.
const (
	iconInfo  = 1
	iconError = 3
)

const (
	colorListening = "rgb(a6e3a1)"
	colorDictating = "rgb(cba6f7)"
	colorError     = "rgb(f38ba8)"

	stickyTimeoutMS = 300000
)

// Notifier is the concrete indicator used by the voice runtime.
// It routes notifications via Hyprland or desktop DBus based on config backend.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu                    sync.Mutex
	focusedMonitor        string
	desktopNotificationID uint32
	soundMu               sync.Mutex
}

// New creates an indicator from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(cfg),
	}
}

// ShowListening signals that the microphone is open for commands.
func (n *Notifier) ShowListening(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.ensureFocusedMonitor(ctx)
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, iconInfo, stickyTimeoutMS, colorListening, n.messages.listening)
	})
}

// ShowDictating signals that the microphone is capturing a field value.
func (n *Notifier) ShowDictating(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, iconInfo, stickyTimeoutMS, colorDictating, n.messages.dictating)
	})
}

// ShowError displays an error-state indicator message.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if !n.cfg.Enable {
		return
	}
	if text == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, iconError, timeout, colorError, text)
	})
}

// CueListening emits the microphone-open cue.
func (n *Notifier) CueListening(ctx context.Context) {
	n.playCue(ctx, cueListening)
}

// CueDictation emits the dictation-start cue.
func (n *Notifier) CueDictation(ctx context.Context) {
	n.playCue(ctx, cueDictation)
}

// CueError emits the error cue.
func (n *Notifier) CueError(ctx context.Context) {
	n.playCue(ctx, cueError)
}

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.dismiss)
}

// FocusedMonitor returns the monitor captured when listening first began.
func (n *Notifier) FocusedMonitor() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.focusedMonitor
}

func (n *Notifier) ensureFocusedMonitor(ctx context.Context) {
	if n.cfg.Backend == "desktop" {
		return
	}
	n.mu.Lock()
	alreadySet := n.focusedMonitor != ""
	n.mu.Unlock()
	if alreadySet {
		return
	}

	monitor, err := hypr.QueryFocusedMonitor(ctx)
	if err != nil {
		n.log("indicator focused monitor query failed", err)
		return
	}

	n.mu.Lock()
	n.focusedMonitor = monitor
	n.mu.Unlock()
}

func (n *Notifier) notify(ctx context.Context, icon int, timeoutMS int, color string, text string) error {
	if n.cfg.Backend == "desktop" {
		level := urgencyLow
		if icon == iconError {
			level = urgencyCritical
		}
		return n.notifyDesktop(ctx, level, timeoutMS, text)
	}
	return hypr.Notify(ctx, icon, timeoutMS, color, text)
}

func (n *Notifier) dismiss(ctx context.Context) error {
	if n.cfg.Backend == "desktop" {
		return n.dismissDesktop(ctx)
	}
	return hypr.DismissNotify(ctx)
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notifyDesktop(ctx context.Context, level urgency, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.desktopNotificationID
	n.mu.Unlock()

	appName := n.cfg.DesktopAppName
	if appName == "" {
		appName = "vaani-indicator"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, level, timeoutMS)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.desktopNotificationID = id
	n.mu.Unlock()
	return nil
}

func (n *Notifier) dismissDesktop(ctx context.Context) error {
	n.mu.Lock()
	id := n.desktopNotificationID
	n.desktopNotificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(ctx context.Context, kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()
		cueCtx, cancel := context.WithTimeout(ctx, 4*time.Second)
		defer cancel()
		if err := emitCue(cueCtx, kind, n.cfg); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
