package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbright/vaani/internal/activity"
	"github.com/rbright/vaani/internal/commands"
	"github.com/rbright/vaani/internal/fsm"
	"github.com/rbright/vaani/internal/speech"
)

const (
	sourceVoice = "voice"
	sourceText  = "text"
)

// Outcome is the resolution of one submitted transcript.
type Outcome struct {
	Transcript string
	Action     commands.ActionID
	Phrase     string
	Recognized bool
}

type speechDone struct {
	token uint64
	err   error
}

type actionDone struct {
	token  uint64
	action commands.ActionID
	err    error
}

type resumeRequest struct{ reply chan error }

type pauseRequest struct{ reply chan error }

type submitRequest struct {
	text  string
	reply chan submitReply
}

type submitReply struct {
	outcome Outcome
	err     error
}

type sayRequest struct {
	text  string
	reply chan error
}

type languageRequest struct {
	language commands.Language
	reply    chan error
}

// Resume re-enables ambient listening, leaving ERRORED when needed.
func (c *Controller) Resume(ctx context.Context) error {
	reply := make(chan error, 1)
	err, callErr := await(ctx, c, resumeRequest{reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

// Pause stops ambient listening and any utterance until Resume.
func (c *Controller) Pause(ctx context.Context) error {
	reply := make(chan error, 1)
	err, callErr := await(ctx, c, pauseRequest{reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

// Submit runs one command turn from typed text.
func (c *Controller) Submit(ctx context.Context, text string) (Outcome, error) {
	reply := make(chan submitReply, 1)
	r, err := await(ctx, c, submitRequest{text: text, reply: reply}, reply)
	if err != nil {
		return Outcome{}, err
	}
	return r.outcome, r.err
}

// Say speaks an announcement. During dispatch it replaces the action's confirmation.
func (c *Controller) Say(ctx context.Context, text string) error {
	reply := make(chan error, 1)
	err, callErr := await(ctx, c, sayRequest{text: text, reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

// SetLanguage switches the resolver partition and the recognition locale together.
func (c *Controller) SetLanguage(ctx context.Context, lang commands.Language) error {
	reply := make(chan error, 1)
	err, callErr := await(ctx, c, languageRequest{language: lang, reply: reply}, reply)
	if callErr != nil {
		return callErr
	}
	return err
}

// await posts req to the loop and waits for its reply.
func await[T any](ctx context.Context, c *Controller, req any, reply chan T) (T, error) {
	var zero T
	select {
	case <-c.done:
		return zero, ErrClosed
	default:
	}

	c.inbox.post(req)
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrClosed
		}
	}
}

func (c *Controller) submit(text string) submitReply {
	switch c.State() {
	case fsm.StateIdle, fsm.StateListening:
	default:
		return submitReply{err: fmt.Errorf("%w: turn in progress (%s)", ErrBusy, c.State())}
	}
	return submitReply{outcome: c.runTurn(text, sourceText)}
}

// runTurn resolves text and dispatches its action. The microphone closes for the whole turn.
func (c *Controller) runTurn(text string, source string) Outcome {
	outcome := Outcome{Transcript: strings.TrimSpace(text)}
	if !c.apply(fsm.EventTranscript) {
		return outcome
	}
	if source == sourceVoice && !c.listener.Continuous() {
		c.setAmbient(false)
	}
	if outcome.Transcript == "" {
		c.settle()
		return outcome
	}

	lang := c.Language()
	match, ok := c.resolver.Resolve(outcome.Transcript, lang)
	outcome.Action, outcome.Phrase, outcome.Recognized = match.Action, match.Phrase, ok
	c.recordCommand(outcome, source, lang)
	c.apply(fsm.EventResolve)

	if !ok {
		c.logger.Info("command not recognized", "language", string(lang), "transcript_length", len(outcome.Transcript))
		c.finishTurn(c.pack().Messages.NotRecognized)
		return outcome
	}

	c.logger.Info("command resolved", "language", string(lang), "action", string(match.Action), "phrase", match.Phrase)
	if text, handled := c.runBuiltin(match.Action); handled {
		c.finishTurn(text)
		return outcome
	}
	c.invokeExternal(match.Action)
	return outcome
}

func (c *Controller) recordCommand(outcome Outcome, source string, lang commands.Language) {
	if c.activity == nil {
		return
	}
	payload := map[string]any{
		"command":    outcome.Transcript,
		"language":   string(lang),
		"source":     source,
		"recognized": outcome.Recognized,
	}
	if outcome.Recognized {
		payload["action"] = string(outcome.Action)
	}
	c.activity.Record(activity.KindVoiceCommand, payload)
}

// runBuiltin handles actions the runtime owns and returns the text to speak.
func (c *Controller) runBuiltin(action commands.ActionID) (string, bool) {
	switch action {
	case commands.ActionVolumeUp:
		c.adjustVolume(volumeStep)
	case commands.ActionVolumeDown:
		c.adjustVolume(-volumeStep)
	case commands.ActionMute:
		c.setVolume(0)
	case commands.ActionUnmute:
		c.setVolume(DefaultVolume)
	case commands.ActionToggleLanguage:
		return c.changeLanguageBySpeech(c.table.Next(c.Language()))
	case commands.ActionSetPrimary:
		return c.changeLanguageBySpeech(commands.LanguagePrimary)
	case commands.ActionSetSecondary:
		return c.changeLanguageBySpeech(commands.LanguageSecondary)
	case commands.ActionRepeat:
		if last := c.speaker.LastText(); last != "" {
			return last, true
		}
	case commands.ActionStopSpeaking:
		c.speaker.Stop()
		return "", true
	case commands.ActionPauseSpeaking:
		if err := c.speaker.Pause(c.ctx); err != nil {
			c.logger.Debug("pause speech", "error", err.Error())
		}
		return "", true
	case commands.ActionResumeSpeaking:
		if err := c.speaker.Resume(c.ctx); err != nil {
			c.logger.Debug("resume speech", "error", err.Error())
		}
		return "", true
	default:
		return "", false
	}
	return c.pack().Confirmation(action), true
}

func (c *Controller) changeLanguageBySpeech(lang commands.Language) (string, bool) {
	if err := c.switchLanguage(lang); err != nil {
		c.logger.Warn("language switch failed", "language", string(lang), "error", err.Error())
		return c.pack().Messages.ActionFailed, true
	}
	return c.pack().Messages.LanguageChanged, true
}

func (c *Controller) invokeExternal(action commands.ActionID) {
	t := &pendingTurn{token: c.token(), action: action}
	c.turn = t

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.actionTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.actionTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	runner := c.actions
	go func() {
		defer cancel()
		err := invokeAction(ctx, runner, action)
		c.inbox.post(actionDone{token: t.token, action: action, err: err})
	}()
}

// invokeAction runs one handler, converting panics and deadline overruns into errors.
func invokeAction(ctx context.Context, runner ActionRunner, action commands.ActionID) error {
	if runner == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, action)
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("action %s panicked: %v", action, r)
			}
		}()
		done <- runner.Run(ctx, action)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrActionTimeout, action)
		}
		return ctx.Err()
	}
}

func (c *Controller) handleActionDone(d actionDone) {
	t := c.turn
	if t == nil || t.token != d.token {
		return
	}
	c.turn = nil
	if c.State() != fsm.StateDispatching {
		return
	}

	text := t.announcement
	if d.err != nil {
		c.logger.Error("action failed", "action", string(d.action), "error", d.err.Error())
		c.indicator.CueError(c.ctx)
		text = c.pack().Messages.ActionFailed
	} else if text == "" {
		text = c.pack().Confirmation(d.action)
	}
	c.finishTurn(text)
}

// finishTurn speaks the turn's closing text, or settles at once when nothing can be spoken.
func (c *Controller) finishTurn(text string) {
	if err := c.say(text); err != nil {
		c.settle()
	}
}

func (c *Controller) announce(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return speech.ErrEmptyText
	}

	switch c.State() {
	case fsm.StateDispatching:
		if c.turn == nil {
			return fmt.Errorf("%w: dispatching", ErrBusy)
		}
		c.turn.announcement = text
		return nil
	case fsm.StateIdle, fsm.StateListening, fsm.StateSpeaking:
		if !c.speaker.Available() {
			return speech.ErrUnavailable
		}
		if err := c.say(text); err != nil {
			c.settle()
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: cannot speak from %s", ErrBusy, c.State())
	}
}

// say hands text to the speaker, entering SPEAKING first so the microphone is
// closed before any audio plays. A dictation prompt is spoken while SUSPENDED.
func (c *Controller) say(text string) error {
	if strings.TrimSpace(text) == "" {
		return speech.ErrEmptyText
	}
	if !c.speaker.Available() {
		return speech.ErrUnavailable
	}
	if c.State() != fsm.StateSuspended && !c.apply(fsm.EventSpeak) {
		return fmt.Errorf("%w: cannot speak from %s", ErrBusy, c.State())
	}

	token := c.token()
	_, err := c.speaker.Speak(c.speechRequest(text), func(err error) {
		c.inbox.post(speechDone{token: token, err: err})
	})
	if err != nil {
		c.logger.Warn("speech request rejected", "error", err.Error())
		return err
	}
	c.utterance = token
	return nil
}

func (c *Controller) speechRequest(text string) speech.Request {
	settings := c.currentSettings()
	return speech.Request{
		Text:   text,
		Rate:   settings.Rate,
		Pitch:  settings.Pitch,
		Volume: settings.Volume,
		Locale: c.pack().Locale,
		Voice:  settings.Voice,
	}
}

func (c *Controller) handleSpeechDone(d speechDone) {
	if d.token != c.utterance {
		return
	}
	c.utterance = 0
	if d.err != nil && !errors.Is(d.err, speech.ErrInterrupted) {
		c.logger.Warn("utterance failed", "error", d.err.Error())
	}

	switch c.State() {
	case fsm.StateSpeaking:
		c.settle()
	case fsm.StateSuspended:
		c.beginDictation()
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
