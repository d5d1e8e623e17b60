package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rbright/vaani/internal/commands"
	"github.com/rbright/vaani/internal/dictation"
	"github.com/rbright/vaani/internal/fsm"
	"github.com/rbright/vaani/internal/listen"
	"github.com/rbright/vaani/internal/session"
	"github.com/rbright/vaani/internal/speech"
)

type frontEnd struct {
	t    *testing.T
	conn *websocket.Conn
}

func connect(t *testing.T, srv *Server) (*frontEnd, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, srv.Connected, 2*time.Second, 2*time.Millisecond)
	return &frontEnd{t: t, conn: conn}, ts
}

func (f *frontEnd) read() Message {
	f.t.Helper()
	require.NoError(f.t, f.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(f.t, f.conn.ReadJSON(&msg))
	return msg
}

func (f *frontEnd) readType(kind string) Message {
	f.t.Helper()
	for {
		msg := f.read()
		if msg.Type == kind {
			return msg
		}
	}
}

func (f *frontEnd) write(msg Message) {
	f.t.Helper()
	require.NoError(f.t, f.conn.WriteJSON(msg))
}

func nextEvent(t *testing.T, st listen.Stream) (listen.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-st.Events():
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream event")
		return listen.Event{}, false
	}
}

func TestCapabilitiesUnavailableWithoutClient(t *testing.T) {
	srv := NewServer(Options{})

	_, err := srv.Start(context.Background(), listen.Options{Locale: "en-US"})
	require.ErrorIs(t, err, listen.ErrUnavailable)
	require.Equal(t, listen.KindUnavailable, listen.KindOf(err))

	err = srv.Speak(context.Background(), speech.Request{Text: "hello"})
	require.ErrorIs(t, err, speech.ErrUnavailable)
	require.ErrorIs(t, srv.Pause(context.Background()), speech.ErrUnavailable)
	require.ErrorIs(t, srv.Run(context.Background(), commands.ActionGoHome), ErrNoClient)
}

func TestRecognitionSessionRoundTrip(t *testing.T) {
	srv := NewServer(Options{})
	fe, _ := connect(t, srv)

	st, err := srv.Start(context.Background(), listen.Options{Locale: "hi-IN", Continuous: true})
	require.NoError(t, err)

	start := fe.readType(TypeSTTStart)
	require.Equal(t, "hi-IN", start.Locale)
	require.True(t, start.Continuous)
	require.NotZero(t, start.Session)

	fe.write(Message{Type: TypeSTTResult, Session: start.Session, Text: "sett", Final: false})
	fe.write(Message{Type: TypeSTTResult, Session: start.Session, Text: "settings", Final: true})
	fe.write(Message{Type: TypeSTTEnded, Session: start.Session})

	ev, ok := nextEvent(t, st)
	require.True(t, ok)
	require.Equal(t, listen.Event{Kind: listen.EventResult, Text: "sett"}, ev)
	ev, _ = nextEvent(t, st)
	require.Equal(t, listen.Event{Kind: listen.EventResult, Text: "settings", Final: true}, ev)
	ev, _ = nextEvent(t, st)
	require.Equal(t, listen.EventEnded, ev.Kind)
	_, ok = nextEvent(t, st)
	require.False(t, ok)
}

func TestRecognitionErrorCarriesKind(t *testing.T) {
	srv := NewServer(Options{})
	fe, _ := connect(t, srv)

	st, err := srv.Start(context.Background(), listen.Options{Locale: "en-US"})
	require.NoError(t, err)
	start := fe.readType(TypeSTTStart)

	fe.write(Message{Type: TypeSTTError, Session: start.Session, Error: "not-allowed"})
	ev, _ := nextEvent(t, st)
	require.Equal(t, listen.EventError, ev.Kind)
	require.Equal(t, listen.KindNotAllowed, listen.KindOf(ev.Err))
	require.Equal(t, listen.ClassTerminal, listen.Classify(listen.KindOf(ev.Err)))
}

func TestAbortNotifiesFrontEnd(t *testing.T) {
	srv := NewServer(Options{})
	fe, _ := connect(t, srv)

	st, err := srv.Start(context.Background(), listen.Options{Locale: "en-US"})
	require.NoError(t, err)
	start := fe.readType(TypeSTTStart)

	st.Abort()
	st.Abort()
	abort := fe.readType(TypeSTTAbort)
	require.Equal(t, start.Session, abort.Session)

	ev, _ := nextEvent(t, st)
	require.Equal(t, listen.KindAborted, listen.KindOf(ev.Err))
	_, ok := nextEvent(t, st)
	require.False(t, ok)

	// Late events for the aborted session are dropped.
	fe.write(Message{Type: TypeSTTResult, Session: start.Session, Text: "late", Final: true})
}

func TestSpeakWaitsForCompletion(t *testing.T) {
	srv := NewServer(Options{})
	fe, _ := connect(t, srv)

	done := make(chan error, 1)
	go func() {
		done <- srv.Speak(context.Background(), speech.Request{Text: "Opening settings", Volume: 0.7, Rate: 1, Locale: "en-US"})
	}()

	speak := fe.readType(TypeTTSSpeak)
	require.Equal(t, "Opening settings", speak.Text)
	require.InDelta(t, 0.7, speak.Volume, 1e-9)
	require.Equal(t, "en-US", speak.Locale)

	select {
	case <-done:
		t.Fatal("speak returned before the front-end finished")
	case <-time.After(20 * time.Millisecond):
	}

	fe.write(Message{Type: TypeTTSStarted, ID: speak.ID})
	fe.write(Message{Type: TypeTTSEnded, ID: speak.ID})
	require.NoError(t, <-done)
}

func TestSpeakCancelSendsCancel(t *testing.T) {
	srv := NewServer(Options{})
	fe, _ := connect(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Speak(ctx, speech.Request{Text: "long"}) }()

	speak := fe.readType(TypeTTSSpeak)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	msg := fe.readType(TypeTTSCancel)
	require.Equal(t, speak.ID, msg.ID)
}

func TestSpeakErrorIsReturned(t *testing.T) {
	srv := NewServer(Options{})
	fe, _ := connect(t, srv)

	done := make(chan error, 1)
	go func() { done <- srv.Speak(context.Background(), speech.Request{Text: "x"}) }()

	speak := fe.readType(TypeTTSSpeak)
	fe.write(Message{Type: TypeTTSError, ID: speak.ID, Error: "synthesis-failed"})
	err := <-done
	require.Error(t, err)
	require.Contains(t, err.Error(), "synthesis-failed")
}

func TestActionRoundTrip(t *testing.T) {
	srv := NewServer(Options{})
	fe, _ := connect(t, srv)

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background(), commands.ActionOpenSettings) }()
	action := fe.readType(TypeAction)
	require.Equal(t, "open_settings", action.Action)
	fe.write(Message{Type: TypeActionDone, ID: action.ID})
	require.NoError(t, <-done)

	go func() { done <- srv.Run(context.Background(), commands.ActionLogout) }()
	action = fe.readType(TypeAction)
	fe.write(Message{Type: TypeActionDone, ID: action.ID, Error: "not signed in"})
	err := <-done
	require.Error(t, err)
	require.Contains(t, err.Error(), "not signed in")
}

func TestFormSurface(t *testing.T) {
	srv := NewServer(Options{})
	fe, _ := connect(t, srv)

	fe.write(Message{Type: TypeForm, Fields: []dictation.Field{
		{ID: "name"},
		{ID: "disability", Kind: dictation.FieldChoice, Options: []dictation.Option{{Value: "visual", Label: "Visual"}}},
		{ID: " "},
	}})

	require.Eventually(t, func() bool {
		_, err := srv.Field(context.Background(), "name")
		return err == nil
	}, 2*time.Second, 2*time.Millisecond)

	name, err := srv.Field(context.Background(), "name")
	require.NoError(t, err)
	require.Equal(t, dictation.FieldText, name.Kind)

	choice, err := srv.Field(context.Background(), "disability")
	require.NoError(t, err)
	require.Len(t, choice.Options, 1)

	_, err = srv.Field(context.Background(), "email")
	require.ErrorIs(t, err, dictation.ErrUnknownField)

	require.NoError(t, srv.SetValue(context.Background(), "disability", "visual"))
	set := fe.readType(TypeFieldSet)
	require.Equal(t, "disability", set.Field)
	require.Equal(t, "visual", set.Value)

	require.ErrorIs(t, srv.SetValue(context.Background(), "email", "x"), dictation.ErrUnknownField)
}

type fakeControl struct {
	mu       sync.Mutex
	calls    []string
	language commands.Language
}

func (c *fakeControl) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *fakeControl) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeControl) Resume(context.Context) error {
	c.record("resume")
	return nil
}

func (c *fakeControl) Pause(context.Context) error {
	c.record("pause")
	return nil
}

func (c *fakeControl) Submit(_ context.Context, text string) (session.Outcome, error) {
	c.record("submit:" + text)
	return session.Outcome{Transcript: text, Action: commands.ActionGoHome, Phrase: "home", Recognized: true}, nil
}

func (c *fakeControl) Dictate(_ context.Context, field string) (dictation.Result, error) {
	c.record("dictate:" + field)
	if field == "missing" {
		return dictation.Result{}, dictation.ErrUnknownField
	}
	return dictation.Result{Field: field, Value: "Asha"}, nil
}

func (c *fakeControl) SetLanguage(_ context.Context, lang commands.Language) error {
	c.record("language:" + string(lang))
	if lang != commands.LanguagePrimary && lang != commands.LanguageSecondary {
		return commands.ErrUnknownLanguage
	}
	c.mu.Lock()
	c.language = lang
	c.mu.Unlock()
	return nil
}

func TestControlRequestsAreForwarded(t *testing.T) {
	srv := NewServer(Options{})
	control := &fakeControl{}
	srv.Attach(control)
	fe, _ := connect(t, srv)

	fe.write(Message{Type: TypeHello, ID: 1, Language: "hi"})
	result := fe.readType(TypeResult)
	require.Equal(t, uint64(1), result.ID)
	require.Equal(t, TypeHello, result.Text)
	require.True(t, result.OK)

	fe.write(Message{Type: TypeText, ID: 2, Text: "go home"})
	result = fe.readType(TypeResult)
	require.Equal(t, uint64(2), result.ID)
	require.Equal(t, "go_home", result.Action)

	fe.write(Message{Type: TypeDictate, ID: 3, Field: "name"})
	result = fe.readType(TypeResult)
	require.True(t, result.OK)
	require.Equal(t, "name", result.Field)
	require.Equal(t, "Asha", result.Value)

	fe.write(Message{Type: TypeDictate, ID: 4, Field: "missing"})
	result = fe.readType(TypeResult)
	require.False(t, result.OK)
	require.Contains(t, result.Error, "unknown field")

	fe.write(Message{Type: TypeLanguage, ID: 5, Language: "fr"})
	result = fe.readType(TypeResult)
	require.False(t, result.OK)

	fe.write(Message{Type: TypePause, ID: 6})
	require.Equal(t, uint64(6), fe.readType(TypeResult).ID)

	require.Equal(t, []string{"language:hi", "resume", "submit:go home", "dictate:name", "dictate:missing", "language:fr", "pause"}, control.snapshot())
}

func TestControlWithoutRuntime(t *testing.T) {
	srv := NewServer(Options{})
	fe, _ := connect(t, srv)

	fe.write(Message{Type: TypeResume, ID: 9})
	result := fe.readType(TypeResult)
	require.False(t, result.OK)
	require.Equal(t, "runtime not attached", result.Error)
}

func TestPublishState(t *testing.T) {
	srv := NewServer(Options{})
	srv.PublishState(fsm.StateListening, commands.LanguagePrimary)

	fe, _ := connect(t, srv)
	srv.PublishState(fsm.StateSpeaking, commands.LanguageSecondary)

	msg := fe.readType(TypeState)
	require.Equal(t, "speaking", msg.State)
	require.Equal(t, "hi", msg.Language)
}

func TestDisconnectFailsOutstandingWork(t *testing.T) {
	srv := NewServer(Options{})
	fe, _ := connect(t, srv)

	st, err := srv.Start(context.Background(), listen.Options{Locale: "en-US"})
	require.NoError(t, err)
	fe.readType(TypeSTTStart)

	done := make(chan error, 1)
	go func() { done <- srv.Speak(context.Background(), speech.Request{Text: "bye"}) }()
	fe.readType(TypeTTSSpeak)

	require.NoError(t, fe.conn.Close())

	ev, _ := nextEvent(t, st)
	require.Equal(t, listen.KindNetwork, listen.KindOf(ev.Err))
	require.Equal(t, listen.ClassRecoverable, listen.Classify(listen.KindNetwork))
	require.ErrorIs(t, <-done, ErrDisconnected)
	require.Eventually(t, func() bool { return !srv.Connected() }, 2*time.Second, 2*time.Millisecond)
}

func TestNewConnectionReplacesPrevious(t *testing.T) {
	srv := NewServer(Options{})
	first, ts := connect(t, srv)

	st, err := srv.Start(context.Background(), listen.Options{Locale: "en-US"})
	require.NoError(t, err)
	first.readType(TypeSTTStart)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	second, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer second.Close()

	ev, _ := nextEvent(t, st)
	require.Equal(t, listen.KindNetwork, listen.KindOf(ev.Err))
	require.Eventually(t, srv.Connected, 2*time.Second, 2*time.Millisecond)

	_, err = srv.Start(context.Background(), listen.Options{Locale: "en-US"})
	require.NoError(t, err)
	fe := &frontEnd{t: t, conn: second}
	require.Equal(t, "en-US", fe.readType(TypeSTTStart).Locale)
}

func TestOriginAllowlist(t *testing.T) {
	srv := NewServer(Options{AllowedOrigins: []string{"https://app.example"}})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://app.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	_ = conn.Close()
}
