package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbright/vaani/internal/commands"
	"github.com/rbright/vaani/internal/dictation"
	"github.com/rbright/vaani/internal/fsm"
	"github.com/rbright/vaani/internal/listen"
	"github.com/rbright/vaani/internal/prefs"
	"github.com/rbright/vaani/internal/speech"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	opts    listen.Options
	oneShot bool
	events  chan listen.Event
	aborted atomic.Bool
	ended   atomic.Bool
}

func (s *fakeStream) Events() <-chan listen.Event { return s.events }

func (s *fakeStream) Abort() {
	if s.aborted.CompareAndSwap(false, true) {
		s.send(listen.Event{Kind: listen.EventError, Err: &listen.Error{Kind: listen.KindAborted}})
	}
}

func (s *fakeStream) emit(ev listen.Event) {
	if ev.Kind != listen.EventResult {
		s.ended.Store(true)
	}
	s.send(ev)
}

func (s *fakeStream) send(ev listen.Event) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *fakeStream) live() bool {
	return !s.aborted.Load() && !s.ended.Load()
}

type fakeRecognizer struct {
	mu       sync.Mutex
	streams  []*fakeStream
	startErr error
}

// Start tags dictation streams by their deadline; ambient sessions never carry one.
func (r *fakeRecognizer) Start(ctx context.Context, opts listen.Options) (listen.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	_, oneShot := ctx.Deadline()
	stream := &fakeStream{opts: opts, oneShot: oneShot, events: make(chan listen.Event, 32)}
	r.streams = append(r.streams, stream)
	return stream, nil
}

func (r *fakeRecognizer) filter(oneShot bool) []*fakeStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fakeStream
	for _, s := range r.streams {
		if s.oneShot == oneShot {
			out = append(out, s)
		}
	}
	return out
}

func (r *fakeRecognizer) ambientCount() int { return len(r.filter(false)) }

func (r *fakeRecognizer) liveAmbient() *fakeStream {
	streams := r.filter(false)
	for i := len(streams) - 1; i >= 0; i-- {
		if streams[i].live() {
			return streams[i]
		}
	}
	return nil
}

func (r *fakeRecognizer) liveOneShot() *fakeStream {
	streams := r.filter(true)
	for i := len(streams) - 1; i >= 0; i-- {
		if streams[i].live() {
			return streams[i]
		}
	}
	return nil
}

type fakeSynth struct {
	mu       sync.Mutex
	requests []speech.Request
	delay    time.Duration
}

func (s *fakeSynth) Speak(ctx context.Context, req speech.Request) error {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	delay := s.delay
	s.mu.Unlock()
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSynth) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Text
	}
	return out
}

func (s *fakeSynth) last() speech.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return speech.Request{}
	}
	return s.requests[len(s.requests)-1]
}

type actionLog struct {
	mu    sync.Mutex
	calls []commands.ActionID
	err   error
	run   func(ctx context.Context, action commands.ActionID) error
}

func (a *actionLog) Run(ctx context.Context, action commands.ActionID) error {
	a.mu.Lock()
	a.calls = append(a.calls, action)
	run, err := a.run, a.err
	a.mu.Unlock()
	if run != nil {
		return run(ctx, action)
	}
	return err
}

func (a *actionLog) called() []commands.ActionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]commands.ActionID, len(a.calls))
	copy(out, a.calls)
	return out
}

type memoryForm struct {
	mu     sync.Mutex
	fields map[string]dictation.Field
	values map[string]string
}

func newMemoryForm(fields ...dictation.Field) *memoryForm {
	f := &memoryForm{fields: make(map[string]dictation.Field), values: make(map[string]string)}
	for _, field := range fields {
		f.fields[field.ID] = field
	}
	return f
}

func (f *memoryForm) Field(_ context.Context, id string) (dictation.Field, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	field, ok := f.fields[id]
	if !ok {
		return dictation.Field{}, fmt.Errorf("%w: %q", dictation.ErrUnknownField, id)
	}
	return field, nil
}

func (f *memoryForm) SetValue(_ context.Context, id string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[id] = value
	return nil
}

func (f *memoryForm) value(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[id]
}

type activityRecord struct {
	kind    string
	payload map[string]any
}

type recordingActivity struct {
	mu      sync.Mutex
	records []activityRecord
}

func (a *recordingActivity) Record(kind string, payload map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, activityRecord{kind: kind, payload: payload})
}

func (a *recordingActivity) all() []activityRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]activityRecord, len(a.records))
	copy(out, a.records)
	return out
}

type memoryStore struct {
	mu    sync.Mutex
	saves []prefs.Settings
}

func (s *memoryStore) SaveSettings(settings prefs.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, settings)
	return nil
}

func (s *memoryStore) latest() (prefs.Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return prefs.Settings{}, false
	}
	return s.saves[len(s.saves)-1], true
}

type fakeIndicator struct {
	listeningCues atomic.Int32
	dictationCues atomic.Int32
	errorCues     atomic.Int32
	errors        atomic.Int32
}

func (*fakeIndicator) ShowListening(context.Context)       {}
func (*fakeIndicator) ShowDictating(context.Context)       {}
func (f *fakeIndicator) ShowError(context.Context, string) { f.errors.Add(1) }
func (f *fakeIndicator) CueListening(context.Context)      { f.listeningCues.Add(1) }
func (f *fakeIndicator) CueDictation(context.Context)      { f.dictationCues.Add(1) }
func (f *fakeIndicator) CueError(context.Context)          { f.errorCues.Add(1) }
func (*fakeIndicator) Hide(context.Context)                {}

type transitionLog struct {
	mu     sync.Mutex
	states []fsm.State
}

func (l *transitionLog) add(s fsm.State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *transitionLog) snapshot() []fsm.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]fsm.State, len(l.states))
	copy(out, l.states)
	return out
}

type harness struct {
	ctrl        *Controller
	rec         *fakeRecognizer
	synth       *fakeSynth
	actions     *actionLog
	form        *memoryForm
	activity    *recordingActivity
	store       *memoryStore
	indicator   *fakeIndicator
	transitions *transitionLog
	violations  atomic.Int32
	cancel      context.CancelFunc
}

func testPolicy() listen.Policy {
	return listen.Policy{
		NaturalEndDelay: 5 * time.Millisecond,
		NoSpeechDelay:   5 * time.Millisecond,
		ErrorDelay:      5 * time.Millisecond,
		MaxErrorDelay:   20 * time.Millisecond,
		ResumeDelay:     10 * time.Millisecond,
	}
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		rec:         &fakeRecognizer{},
		synth:       &fakeSynth{},
		actions:     &actionLog{},
		form:        newMemoryForm(dictation.Field{ID: "name", Kind: dictation.FieldText}),
		activity:    &recordingActivity{},
		store:       &memoryStore{},
		indicator:   &fakeIndicator{},
		transitions: &transitionLog{},
	}
	opts := Options{
		Table:            commands.Default(),
		Recognizer:       h.rec,
		Synthesizer:      h.synth,
		Actions:          h.actions,
		Form:             h.form,
		Activity:         h.activity,
		Store:            h.store,
		Indicator:        h.indicator,
		Policy:           testPolicy(),
		Settings:         prefs.Settings{Language: "en", Volume: 0.7, Rate: 1, Pitch: 1, Continuous: true},
		ActionTimeout:    time.Second,
		DictationTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.ctrl = NewController(opts)
	h.ctrl.observe = func(state fsm.State) {
		h.transitions.add(state)
		h.checkExclusion(t, state)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { _ = h.ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.ctrl.Done()
	})
	return h
}

// checkExclusion asserts the half-duplex invariant right after a transition commits.
func (h *harness) checkExclusion(t *testing.T, state fsm.State) {
	if state != fsm.StateListening && h.rec.liveAmbient() != nil {
		h.violations.Add(1)
		t.Errorf("ambient recognition live in state %s", state)
	}
	if state != fsm.StateDictating && h.rec.liveOneShot() != nil {
		h.violations.Add(1)
		t.Errorf("dictation recognition live in state %s", state)
	}
	if fsm.MicrophoneOpen(state) && h.ctrl.speaker.Busy() {
		h.violations.Add(1)
		t.Errorf("speaker busy in state %s", state)
	}
}

func waitForState(t *testing.T, ctrl *Controller, want fsm.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s (current=%s)", want, ctrl.State())
}

func waitForAmbient(t *testing.T, h *harness) *fakeStream {
	t.Helper()
	var stream *fakeStream
	require.Eventually(t, func() bool {
		stream = h.rec.liveAmbient()
		return stream != nil && h.ctrl.State() == fsm.StateListening
	}, 2*time.Second, 2*time.Millisecond)
	return stream
}

func waitForOneShot(t *testing.T, h *harness) *fakeStream {
	t.Helper()
	var stream *fakeStream
	require.Eventually(t, func() bool {
		stream = h.rec.liveOneShot()
		return stream != nil
	}, 2*time.Second, 2*time.Millisecond)
	return stream
}

// containsSequence reports whether want appears in states as a contiguous run.
func containsSequence(states []fsm.State, want ...fsm.State) bool {
	for i := 0; i+len(want) <= len(states); i++ {
		match := true
		for j := range want {
			if states[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
