// Package session runs the voice interaction orchestrator: one event loop that
// owns the microphone, the speaker and the turn-taking between them.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/vaani/internal/commands"
	"github.com/rbright/vaani/internal/dictation"
	"github.com/rbright/vaani/internal/fsm"
	"github.com/rbright/vaani/internal/listen"
	"github.com/rbright/vaani/internal/prefs"
	"github.com/rbright/vaani/internal/speech"
)

const (
	// DefaultVolume is the speech volume restored by unmute.
	DefaultVolume = 0.7
	volumeStep    = 0.1
)

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowListening(context.Context)
	ShowDictating(context.Context)
	ShowError(context.Context, string)
	CueListening(context.Context)
	CueDictation(context.Context)
	CueError(context.Context)
	Hide(context.Context)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowDictating(context.Context)     {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueListening(context.Context)      {}
func (noopIndicator) CueDictation(context.Context)      {}
func (noopIndicator) CueError(context.Context)          {}
func (noopIndicator) Hide(context.Context)              {}

// ActivityLog receives fire-and-forget activity records.
type ActivityLog interface {
	Record(kind string, payload map[string]any)
}

// SettingsStore persists preference changes.
type SettingsStore interface {
	SaveSettings(prefs.Settings) error
}

// Options wires a Controller. Nil capabilities leave the matching channel inert.
type Options struct {
	Logger      *slog.Logger
	Table       *commands.Table
	Recognizer  listen.Recognizer
	Synthesizer speech.Synthesizer
	Actions     ActionRunner
	Form        dictation.Form
	Activity    ActivityLog
	Store       SettingsStore
	Indicator   Indicator

	Policy           listen.Policy
	Settings         prefs.Settings
	ActionTimeout    time.Duration
	DictationTimeout time.Duration
	AnnounceReady    bool

	// OnState observes every state or language change. It runs on the controller loop.
	OnState func(fsm.State, commands.Language)
}

// Status is a point-in-time view of the runtime.
type Status struct {
	State          fsm.State
	Language       commands.Language
	Locale         string
	Ambient        bool
	Continuous     bool
	Listening      listen.SessionState
	RestartPending bool
	Speaking       bool
	Settings       prefs.Settings
}

// Controller is the voice interaction orchestrator.
//
// All state changes happen on the goroutine running Run. Public methods post a
// request to that loop and wait for its reply.
type Controller struct {
	logger        *slog.Logger
	table         *commands.Table
	resolver      commands.Resolver
	listener      *listen.Manager
	speaker       *speech.Coordinator
	dictator      *dictation.Session
	voiceInput    bool
	actions       ActionRunner
	activity      ActivityLog
	store         SettingsStore
	indicator     Indicator
	onState       func(fsm.State, commands.Language)
	actionTimeout time.Duration
	announceReady bool

	inbox   *inbox
	done    chan struct{}
	running atomic.Bool

	mu       sync.RWMutex
	state    fsm.State
	language commands.Language
	settings prefs.Settings
	ambient  bool

	// Owned by the loop.
	ctx             context.Context
	nextToken       uint64
	utterance       uint64
	failAfterSpeech bool
	micDelay        time.Duration
	turn            *pendingTurn
	dictation       *pendingDictation

	// observe runs after every applied transition; tests use it to check invariants.
	observe func(fsm.State)
}

type pendingTurn struct {
	token        uint64
	action       commands.ActionID
	announcement string
}

type pendingDictation struct {
	token  uint64
	field  string
	reply  chan dictateReply
	cancel context.CancelFunc
}

// NewController constructs an orchestrator with safe default fallbacks.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	table := opts.Table
	if table == nil {
		table = commands.Default()
	}
	indicator := opts.Indicator
	if indicator == nil {
		indicator = noopIndicator{}
	}

	settings := opts.Settings
	lang := commands.Language(settings.Language)
	if !table.Has(lang) {
		if settings.Language != "" {
			logger.Warn("unknown language preference; using default", "language", settings.Language)
		}
		lang = table.Languages()[0]
		settings.Language = string(lang)
	}
	pack, _ := table.Pack(lang)

	c := &Controller{
		logger:        logger,
		table:         table,
		resolver:      commands.NewResolver(table),
		voiceInput:    opts.Recognizer != nil,
		actions:       opts.Actions,
		activity:      opts.Activity,
		store:         opts.Store,
		indicator:     indicator,
		onState:       opts.OnState,
		actionTimeout: opts.ActionTimeout,
		announceReady: opts.AnnounceReady,
		inbox:         newInbox(),
		done:          make(chan struct{}),
		state:         fsm.StateIdle,
		language:      lang,
		settings:      settings,
		ctx:           context.Background(),
	}

	policy := opts.Policy
	policy.Continuous = settings.Continuous
	c.listener = listen.NewManager(opts.Recognizer, policy, pack.Locale, logger, func(n listen.Notice) {
		c.inbox.post(n)
	})
	c.speaker = speech.NewCoordinator(opts.Synthesizer, logger, speech.Hooks{})
	c.dictator = dictation.New(opts.Recognizer, opts.Form, opts.DictationTimeout, logger)
	return c
}

// Run drives the orchestrator until ctx is cancelled, then tears every channel down.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("controller already running")
	}
	c.ctx = ctx
	defer c.teardown()

	c.boot()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.inbox.signal:
			for _, item := range c.inbox.drain() {
				c.dispatch(item)
			}
		}
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Language returns the active command language.
func (c *Controller) Language() commands.Language {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.language
}

// Status returns a snapshot of the runtime.
func (c *Controller) Status() Status {
	c.mu.RLock()
	status := Status{
		State:    c.state,
		Language: c.language,
		Ambient:  c.ambient,
		Settings: c.settings,
	}
	c.mu.RUnlock()

	status.Locale = c.listener.Locale()
	status.Continuous = c.listener.Continuous()
	status.Listening = c.listener.State()
	status.RestartPending = c.listener.RestartPending()
	status.Speaking = c.speaker.Busy()
	return status
}

// Done is closed once Run has torn the runtime down.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) boot() {
	c.setAmbient(true)
	c.logger.Info("voice runtime started",
		"language", string(c.Language()),
		"voice_input", c.voiceInput,
		"voice_output", c.speaker.Available(),
	)
	if !c.voiceInput {
		c.logger.Warn("voice input unavailable; accepting text input only")
	}

	if c.announceReady {
		if err := c.say(c.pack().Messages.Ready); err == nil {
			return
		}
	}
	if c.voiceInput {
		c.indicator.CueListening(c.ctx)
	}
	c.settle()
}

func (c *Controller) teardown() {
	c.listener.Close()
	c.speaker.Close()
	if d := c.dictation; d != nil {
		if d.cancel != nil {
			d.cancel()
		}
		d.reply <- dictateReply{err: ErrClosed}
		c.dictation = nil
	}
	c.turn = nil

	c.mu.Lock()
	c.state = fsm.StateIdle
	c.mu.Unlock()

	hideCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	c.indicator.Hide(hideCtx)

	c.logger.Info("voice runtime stopped")
	close(c.done)
}

func (c *Controller) dispatch(item any) {
	switch ev := item.(type) {
	case listen.Notice:
		c.handleNotice(ev)
	case speechDone:
		c.handleSpeechDone(ev)
	case actionDone:
		c.handleActionDone(ev)
	case dictationDone:
		c.handleDictationDone(ev)
	case resumeRequest:
		ev.reply <- c.resume()
	case pauseRequest:
		c.pause()
		ev.reply <- nil
	case submitRequest:
		ev.reply <- c.submit(ev.text)
	case sayRequest:
		ev.reply <- c.announce(ev.text)
	case dictateRequest:
		c.startDictation(ev)
	case languageRequest:
		ev.reply <- c.switchLanguage(ev.language)
	default:
		c.logger.Error("unknown controller event", "type", typeName(item))
	}
}

// apply runs event through the FSM and commits the resulting state.
func (c *Controller) apply(event fsm.Event) bool {
	current := c.State()
	next, err := fsm.Transition(current, event)
	if err != nil {
		c.logger.Warn("transition rejected", "state", string(current), "event", string(event), "error", err.Error())
		return false
	}
	c.setState(next)
	return true
}

// setState closes the microphone before committing any state that does not own it.
func (c *Controller) setState(next fsm.State) {
	if !fsm.MicrophoneOpen(next) {
		c.listener.Stop()
	}

	c.mu.Lock()
	prev := c.state
	c.state = next
	lang := c.language
	c.mu.Unlock()

	if c.observe != nil {
		c.observe(next)
	}
	if prev == next {
		return
	}

	c.logger.Debug("state transition", "from", string(prev), "to", string(next))
	switch next {
	case fsm.StateListening:
		c.indicator.ShowListening(c.ctx)
	case fsm.StateDictating:
		c.indicator.ShowDictating(c.ctx)
		c.indicator.CueDictation(c.ctx)
	case fsm.StateIdle:
		c.indicator.Hide(c.ctx)
	}
	if c.onState != nil {
		c.onState(next, lang)
	}
}

// settle ends a turn: back to listening when the ambient session is wanted, idle otherwise.
func (c *Controller) settle() {
	if c.failAfterSpeech {
		c.failAfterSpeech = false
		c.apply(fsm.EventFail)
		return
	}

	state := c.State()
	if c.isAmbient() && c.voiceInput {
		event := fsm.EventSpoken
		switch state {
		case fsm.StateIdle:
			event = fsm.EventStart
		case fsm.StateAwaitingResult:
			event = fsm.EventDiscard
		case fsm.StateSuspended, fsm.StateDictating:
			event = fsm.EventResume
		case fsm.StateListening:
			c.openMic()
			return
		}
		if c.apply(event) {
			c.openMic()
		}
		return
	}

	c.micDelay = 0
	if state != fsm.StateErrored {
		c.apply(fsm.EventStop)
	}
}

// openMic starts the ambient session now or after the pending resume delay.
func (c *Controller) openMic() {
	delay := c.micDelay
	c.micDelay = 0
	if delay > 0 {
		c.listener.ScheduleRestart(delay)
		return
	}
	if err := c.listener.Start(); err != nil {
		c.logger.Debug("listening start failed", "error", err.Error())
	}
}

func (c *Controller) handleNotice(n listen.Notice) {
	switch n.Kind {
	case listen.NoticeStarted:
		c.logger.Debug("listening session open", "session", n.Session)
	case listen.NoticeTranscript:
		if !n.Final || c.State() != fsm.StateListening || n.Session != c.listener.Current() {
			return
		}
		c.runTurn(n.Text, sourceVoice)
	case listen.NoticeEnded:
		c.idleIfSessionLost()
	case listen.NoticeError:
		c.handleRecognitionError(n)
	}
}

func (c *Controller) handleRecognitionError(n listen.Notice) {
	if n.Class != listen.ClassTerminal {
		c.idleIfSessionLost()
		return
	}

	c.setAmbient(false)
	if c.State() != fsm.StateListening {
		return
	}

	messages := c.pack().Messages
	message := messages.PermissionDenied
	switch listen.KindOf(n.Err) {
	case listen.KindUnavailable, listen.KindLanguageUnsupported:
		message = messages.Unavailable
	}
	c.logger.Error("recognition disabled", "error", errString(n.Err))
	c.indicator.ShowError(c.ctx, message)
	c.indicator.CueError(c.ctx)

	if err := c.say(message); err == nil {
		c.failAfterSpeech = true
		return
	}
	c.apply(fsm.EventFail)
}

// idleIfSessionLost drops to idle when listening has no session and nothing will restart it.
func (c *Controller) idleIfSessionLost() {
	if c.State() != fsm.StateListening {
		return
	}
	if c.listener.State() != listen.StateStopped || c.listener.RestartPending() {
		return
	}
	c.setAmbient(false)
	c.apply(fsm.EventStop)
}

func (c *Controller) resume() error {
	if c.State() == fsm.StateErrored {
		c.apply(fsm.EventReset)
		c.listener.SetContinuous(c.currentSettings().Continuous)
	}
	c.setAmbient(true)
	if !c.voiceInput {
		return ErrRecognitionUnavailable
	}

	switch c.State() {
	case fsm.StateIdle:
		c.indicator.CueListening(c.ctx)
		c.settle()
	case fsm.StateListening:
		if c.listener.State() == listen.StateStopped && !c.listener.RestartPending() {
			c.openMic()
		}
	}
	return nil
}

func (c *Controller) pause() {
	c.setAmbient(false)
	c.micDelay = 0

	switch c.State() {
	case fsm.StateListening:
		c.apply(fsm.EventStop)
	case fsm.StateSpeaking:
		c.speaker.Stop()
	case fsm.StateSuspended:
		c.utterance = 0
		c.speaker.Stop()
		if d := c.dictation; d != nil {
			c.dictation = nil
			d.reply <- dictateReply{err: context.Canceled}
		}
		c.apply(fsm.EventStop)
	case fsm.StateDictating:
		if d := c.dictation; d != nil && d.cancel != nil {
			d.cancel()
		}
	}
}

func (c *Controller) switchLanguage(lang commands.Language) error {
	pack, err := c.table.Pack(lang)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.language = lang
	c.settings.Language = string(lang)
	state := c.state
	c.mu.Unlock()

	c.listener.SetLocale(pack.Locale)
	if state == fsm.StateListening {
		// An open session keeps the locale it started with; replace it.
		switch c.listener.State() {
		case listen.StateStarting, listen.StateActive:
			c.listener.Stop()
			c.openMic()
		}
	}
	c.persist()
	c.logger.Info("language changed", "language", string(lang), "locale", pack.Locale)
	if c.onState != nil {
		c.onState(state, lang)
	}
	return nil
}

func (c *Controller) adjustVolume(delta float64) {
	c.setVolume(c.currentSettings().Volume + delta)
}

func (c *Controller) setVolume(volume float64) {
	volume = math.Round(volume*10) / 10
	volume = math.Max(0, math.Min(1, volume))

	c.mu.Lock()
	c.settings.Volume = volume
	c.mu.Unlock()

	c.persist()
	c.logger.Debug("volume changed", "volume", volume)
}

func (c *Controller) persist() {
	if c.store == nil {
		return
	}
	if err := c.store.SaveSettings(c.currentSettings()); err != nil {
		c.logger.Warn("save preferences failed", "error", err.Error())
	}
}

func (c *Controller) pack() *commands.Pack {
	pack, err := c.table.Pack(c.Language())
	if err != nil {
		c.logger.Error("active language has no pack; using default", "language", string(c.Language()))
		pack, _ = c.table.Pack(c.table.Languages()[0])
	}
	return pack
}

func (c *Controller) currentSettings() prefs.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

func (c *Controller) isAmbient() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ambient
}

func (c *Controller) setAmbient(v bool) {
	c.mu.Lock()
	c.ambient = v
	c.mu.Unlock()
}

func (c *Controller) token() uint64 {
	c.nextToken++
	return c.nextToken
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
