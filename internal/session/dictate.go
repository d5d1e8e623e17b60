package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbright/vaani/internal/activity"
	"github.com/rbright/vaani/internal/dictation"
	"github.com/rbright/vaani/internal/fsm"
)

type dictateRequest struct {
	field string
	reply chan dictateReply
}

type dictateReply struct {
	result dictation.Result
	err    error
}

type dictationDone struct {
	token  uint64
	result dictation.Result
	err    error
}

// Dictate captures one spoken value for fieldID and returns once it is written or failed.
// Ambient listening is suspended for the duration and restored afterwards.
func (c *Controller) Dictate(ctx context.Context, fieldID string) (dictation.Result, error) {
	reply := make(chan dictateReply, 1)
	r, err := await(ctx, c, dictateRequest{field: strings.TrimSpace(fieldID), reply: reply}, reply)
	if err != nil {
		return dictation.Result{}, err
	}
	return r.result, r.err
}

func (c *Controller) startDictation(req dictateRequest) {
	if req.field == "" {
		req.reply <- dictateReply{err: fmt.Errorf("%w: empty field id", dictation.ErrUnknownField)}
		return
	}
	if !c.voiceInput {
		req.reply <- dictateReply{err: ErrRecognitionUnavailable}
		return
	}
	if c.dictation != nil {
		req.reply <- dictateReply{err: fmt.Errorf("%w: dictation already active", ErrBusy)}
		return
	}
	switch c.State() {
	case fsm.StateIdle, fsm.StateListening, fsm.StateSpeaking:
	default:
		req.reply <- dictateReply{err: fmt.Errorf("%w: cannot dictate from %s", ErrBusy, c.State())}
		return
	}

	c.utterance = 0
	if !c.apply(fsm.EventSuspend) {
		req.reply <- dictateReply{err: fmt.Errorf("%w: cannot suspend listening", ErrBusy)}
		return
	}
	c.dictation = &pendingDictation{token: c.token(), field: req.field, reply: req.reply}
	c.logger.Info("dictation requested", "field", req.field)

	if err := c.say(c.pack().Messages.DictationPrompt); err != nil {
		c.speaker.Stop()
		c.beginDictation()
	}
}

// beginDictation opens the one-shot session once the prompt has been spoken.
func (c *Controller) beginDictation() {
	d := c.dictation
	if d == nil || c.State() != fsm.StateSuspended {
		return
	}
	if !c.apply(fsm.EventDictate) {
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	d.cancel = cancel
	locale := c.pack().Locale
	go func() {
		defer cancel()
		result, err := c.dictator.Run(ctx, d.field, locale)
		c.inbox.post(dictationDone{token: d.token, result: result, err: err})
	}()
}

func (c *Controller) handleDictationDone(done dictationDone) {
	d := c.dictation
	if d == nil || d.token != done.token {
		return
	}
	c.dictation = nil
	d.reply <- dictateReply{result: done.result, err: done.err}
	c.recordDictation(d.field, done)

	messages := c.pack().Messages
	var text string
	switch {
	case done.err == nil:
		c.logger.Info("dictation recorded", "field", d.field)
		text = messages.DictationRecorded
	case errors.Is(done.err, context.Canceled):
		c.logger.Info("dictation cancelled", "field", d.field)
	case errors.Is(done.err, dictation.ErrOptionNotFound):
		c.logger.Warn("dictation option not found", "field", d.field)
		text = messages.OptionNotFound
	default:
		c.logger.Warn("dictation failed", "field", d.field, "error", done.err.Error())
		text = messages.DictationFailed
	}

	c.micDelay = c.listener.Policy().ResumeDelay
	if text == "" {
		c.settle()
		return
	}
	c.finishTurn(text)
}

func (c *Controller) recordDictation(field string, done dictationDone) {
	if c.activity == nil {
		return
	}
	payload := map[string]any{
		"field":    field,
		"language": string(c.Language()),
		"ok":       done.err == nil,
	}
	if done.err == nil {
		payload["value"] = done.result.Value
	} else {
		payload["error"] = done.err.Error()
	}
	c.activity.Record(activity.KindDictation, payload)
}
