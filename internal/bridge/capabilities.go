package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rbright/vaani/internal/commands"
	"github.com/rbright/vaani/internal/dictation"
	"github.com/rbright/vaani/internal/listen"
	"github.com/rbright/vaani/internal/speech"
)

var (
	_ speech.Synthesizer = (*Server)(nil)
	_ speech.Pauser      = (*Server)(nil)
)

// Start asks the front-end to open a recognition session. It never waits for
// the front-end; failures arrive as stream events.
func (s *Server) Start(_ context.Context, opts listen.Options) (listen.Stream, error) {
	s.mu.Lock()
	if s.client == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", listen.ErrUnavailable, ErrNoClient)
	}
	st := &stream{server: s, id: s.id(), events: make(chan listen.Event, streamBuffer)}
	s.streams[st.id] = st
	s.mu.Unlock()

	err := s.send(Message{Type: TypeSTTStart, Session: st.id, Locale: opts.Locale, Continuous: opts.Continuous})
	if err != nil {
		s.dropStream(st.id)
		return nil, fmt.Errorf("%w: %w", listen.ErrUnavailable, err)
	}
	return st, nil
}

func (s *Server) dropStream(id uint64) *stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.streams[id]
	delete(s.streams, id)
	return st
}

func (s *Server) deliver(id uint64, ev listen.Event, last bool) {
	s.mu.Lock()
	st := s.streams[id]
	if last {
		delete(s.streams, id)
	}
	s.mu.Unlock()
	if st == nil {
		s.logger.Debug("bridge event for unknown session", "session", id)
		return
	}
	if last {
		st.finish(ev)
		return
	}
	st.push(ev)
}

type stream struct {
	server *Server
	id     uint64
	events chan listen.Event

	mu   sync.Mutex
	done bool
}

func (st *stream) Events() <-chan listen.Event { return st.events }

// Abort tells the front-end to drop the session and ends the stream with an aborted error.
func (st *stream) Abort() {
	if st.server.dropStream(st.id) != nil {
		_ = st.server.send(Message{Type: TypeSTTAbort, Session: st.id})
	}
	st.finish(listen.Event{Kind: listen.EventError, Err: &listen.Error{Kind: listen.KindAborted}})
}

func (st *stream) push(ev listen.Event) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		return
	}
	select {
	case st.events <- ev:
	default:
		st.server.logger.Warn("bridge recognition event dropped", "session", st.id)
	}
}

func (st *stream) finish(ev listen.Event) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done {
		return
	}
	st.done = true
	select {
	case st.events <- ev:
	default:
	}
	close(st.events)
}

// Speak plays req on the front-end and waits for it to finish.
func (s *Server) Speak(ctx context.Context, req speech.Request) error {
	err := s.call(ctx, Message{
		Type:   TypeTTSSpeak,
		Text:   req.Text,
		Rate:   req.Rate,
		Pitch:  req.Pitch,
		Volume: req.Volume,
		Locale: req.Locale,
		Voice:  req.Voice,
	}, TypeTTSCancel)
	if errors.Is(err, ErrNoClient) {
		return fmt.Errorf("%w: %w", speech.ErrUnavailable, err)
	}
	return err
}

// Pause holds the front-end utterance in place.
func (s *Server) Pause(context.Context) error {
	return s.speechControl(TypeTTSPause)
}

// Resume continues a held utterance.
func (s *Server) Resume(context.Context) error {
	return s.speechControl(TypeTTSResume)
}

func (s *Server) speechControl(kind string) error {
	if err := s.send(Message{Type: kind}); err != nil {
		if errors.Is(err, ErrNoClient) {
			return fmt.Errorf("%w: %w", speech.ErrUnavailable, err)
		}
		return err
	}
	return nil
}

// Run asks the front-end to perform action and waits for its completion.
func (s *Server) Run(ctx context.Context, action commands.ActionID) error {
	if err := s.call(ctx, Message{Type: TypeAction, Action: string(action)}, ""); err != nil {
		return fmt.Errorf("action %s: %w", action, err)
	}
	return nil
}

func (s *Server) setForm(fields []dictation.Field) {
	next := make(map[string]dictation.Field, len(fields))
	for _, f := range fields {
		f.ID = strings.TrimSpace(f.ID)
		if f.ID == "" {
			continue
		}
		if f.Kind == "" {
			f.Kind = dictation.FieldText
		}
		next[f.ID] = f
	}
	s.mu.Lock()
	s.fields = next
	s.mu.Unlock()
	s.logger.Debug("bridge form updated", "fields", len(next))
}

// Field returns the field last described by the front-end.
func (s *Server) Field(_ context.Context, id string) (dictation.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[id]
	if !ok {
		return dictation.Field{}, fmt.Errorf("%w: %q", dictation.ErrUnknownField, id)
	}
	return f, nil
}

// SetValue writes value into the front-end field.
func (s *Server) SetValue(ctx context.Context, id string, value string) error {
	if _, err := s.Field(ctx, id); err != nil {
		return err
	}
	return s.send(Message{Type: TypeFieldSet, Field: id, Value: value})
}
