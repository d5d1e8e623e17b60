// Package speech serializes text-to-speech output so at most one utterance is in flight.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

var (
	// ErrUnavailable indicates no synthesis capability is wired.
	ErrUnavailable = errors.New("speech output unavailable")
	// ErrEmptyText indicates a request without speakable text.
	ErrEmptyText = errors.New("speech request has no text")
	// ErrInterrupted is the completion error of an utterance stopped by Stop or Close.
	ErrInterrupted = errors.New("utterance interrupted")
	// ErrUnsupported indicates the synthesizer cannot pause or resume.
	ErrUnsupported = errors.New("operation not supported by synthesizer")
)

// Request is one utterance to synthesize.
type Request struct {
	Text   string
	Rate   float64
	Pitch  float64
	Volume float64
	Locale string
	Voice  string
}

// Synthesizer is the text-to-speech capability. Speak blocks until the utterance
// ends, fails, or ctx is cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, req Request) error
}

// Pauser is implemented by synthesizers that can hold an utterance in place.
type Pauser interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// Hooks receive utterance lifecycle signals. Both are optional.
type Hooks struct {
	OnStart func(id uint64, req Request)
	OnEnd   func(id uint64, err error)
}

type utterance struct {
	id          uint64
	req         Request
	cancel      context.CancelFunc
	onComplete  func(error)
	interrupted bool
	settled     chan struct{}
}

// Coordinator owns the speech output channel.
//
// A new request cancels the one in flight; the superseded request never completes.
// Every request that is not superseded completes exactly once.
type Coordinator struct {
	synth  Synthesizer
	logger *slog.Logger
	hooks  Hooks

	base       context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	nextID   uint64
	active   *utterance
	lastText string
	wg       sync.WaitGroup
}

// NewCoordinator returns a coordinator for synth. A nil synth yields an inert coordinator.
func NewCoordinator(synth Synthesizer, logger *slog.Logger, hooks Hooks) *Coordinator {
	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		synth:      synth,
		logger:     logger,
		hooks:      hooks,
		base:       base,
		baseCancel: cancel,
	}
}

// Available reports whether a synthesizer is wired.
func (c *Coordinator) Available() bool {
	return c.synth != nil
}

// Speak accepts req, cancelling any utterance in flight, and returns its ID.
// onComplete runs once when the utterance ends unless a later request supersedes it.
func (c *Coordinator) Speak(req Request, onComplete func(error)) (uint64, error) {
	if c.synth == nil {
		return 0, ErrUnavailable
	}
	if strings.TrimSpace(req.Text) == "" {
		return 0, ErrEmptyText
	}

	c.mu.Lock()
	if c.base.Err() != nil {
		c.mu.Unlock()
		return 0, ErrUnavailable
	}
	if prev := c.active; prev != nil {
		prev.cancel()
		c.log("utterance superseded", prev.id)
	}
	c.nextID++
	ctx, cancel := context.WithCancel(c.base)
	u := &utterance{id: c.nextID, req: req, cancel: cancel, onComplete: onComplete, settled: make(chan struct{})}
	c.active = u
	c.lastText = req.Text
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx, u)
	return u.id, nil
}

func (c *Coordinator) run(ctx context.Context, u *utterance) {
	defer c.wg.Done()
	defer u.cancel()

	if c.isActive(u) && c.hooks.OnStart != nil {
		c.hooks.OnStart(u.id, u.req)
	}

	err := c.synth.Speak(ctx, u.req)

	c.mu.Lock()
	if c.active != u {
		c.mu.Unlock()
		close(u.settled)
		return
	}
	c.active = nil
	if u.interrupted {
		err = ErrInterrupted
	}
	c.mu.Unlock()
	close(u.settled)

	if err != nil && !errors.Is(err, ErrInterrupted) && c.logger != nil {
		c.logger.Warn("speech synthesis failed", "utterance", u.id, "error", err.Error())
	}
	if c.hooks.OnEnd != nil {
		c.hooks.OnEnd(u.id, err)
	}
	if u.onComplete != nil {
		u.onComplete(err)
	}
}

func (c *Coordinator) isActive(u *utterance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == u
}

// Stop interrupts the utterance in flight and waits for the synthesizer to return.
// The utterance completes with ErrInterrupted.
func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	u := c.active
	if u == nil {
		c.mu.Unlock()
		return false
	}
	u.interrupted = true
	u.cancel()
	c.mu.Unlock()

	<-u.settled
	return true
}

// Busy reports whether an utterance is in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// LastText returns the text of the most recently accepted request.
func (c *Coordinator) LastText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastText
}

// Pause holds the current utterance when the synthesizer supports it.
func (c *Coordinator) Pause(ctx context.Context) error {
	p, ok := c.synth.(Pauser)
	if !ok {
		return ErrUnsupported
	}
	return p.Pause(ctx)
}

// Resume continues a paused utterance when the synthesizer supports it.
func (c *Coordinator) Resume(ctx context.Context) error {
	p, ok := c.synth.(Pauser)
	if !ok {
		return ErrUnsupported
	}
	return p.Resume(ctx)
}

// Close interrupts any utterance, waits for it to settle, and rejects later requests.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.active != nil {
		c.active.interrupted = true
	}
	c.baseCancel()
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) log(message string, id uint64) {
	if c.logger == nil {
		return
	}
	c.logger.Debug(message, "utterance", id)
}
