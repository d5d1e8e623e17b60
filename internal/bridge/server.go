// Package bridge connects the voice runtime to a hosting front-end over a
// WebSocket. The front-end owns the microphone, the speaker, navigation and
// the form; the bridge exposes them to the runtime as capabilities.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/vaani/internal/commands"
	"github.com/rbright/vaani/internal/dictation"
	"github.com/rbright/vaani/internal/fsm"
	"github.com/rbright/vaani/internal/listen"
	"github.com/rbright/vaani/internal/session"
)

const (
	defaultPingInterval = 20 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultReadLimit    = 1 << 20
	outboundBuffer      = 64
	streamBuffer        = 32
)

var (
	// ErrNoClient indicates no front-end is connected.
	ErrNoClient = errors.New("no front-end connected")
	// ErrDisconnected is returned to calls still waiting when the front-end goes away.
	ErrDisconnected = errors.New("front-end disconnected")
	errQueueFull    = errors.New("front-end send queue full")
)

var (
	_ listen.Recognizer    = (*Server)(nil)
	_ session.ActionRunner = (*Server)(nil)
	_ dictation.Form       = (*Server)(nil)
)

// Control is the runtime surface driven by front-end requests.
type Control interface {
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	Submit(ctx context.Context, text string) (session.Outcome, error)
	Dictate(ctx context.Context, fieldID string) (dictation.Result, error)
	SetLanguage(ctx context.Context, lang commands.Language) error
}

// Options configures a Server.
type Options struct {
	Logger         *slog.Logger
	AllowedOrigins []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
}

// Server is the single-client WebSocket bridge. A new connection replaces the
// previous one.
type Server struct {
	logger       *slog.Logger
	origins      map[string]struct{}
	pingInterval time.Duration
	writeTimeout time.Duration
	readLimit    int64
	upgrader     websocket.Upgrader

	mu      sync.Mutex
	client  *client
	control Control
	nextID  uint64
	streams map[uint64]*stream
	pending map[uint64]chan error
	fields  map[string]dictation.Field
}

// NewServer returns a bridge with no client attached.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		logger:       logger,
		origins:      make(map[string]struct{}, len(opts.AllowedOrigins)),
		pingInterval: opts.PingInterval,
		writeTimeout: opts.WriteTimeout,
		readLimit:    opts.ReadLimit,
		streams:      make(map[uint64]*stream),
		pending:      make(map[uint64]chan error),
		fields:       make(map[string]dictation.Field),
	}
	if s.pingInterval <= 0 {
		s.pingInterval = defaultPingInterval
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = defaultWriteTimeout
	}
	if s.readLimit <= 0 {
		s.readLimit = defaultReadLimit
	}
	for _, origin := range opts.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			s.origins[origin] = struct{}{}
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.originAllowed}
	return s
}

// Attach sets the runtime that front-end requests are forwarded to.
func (s *Server) Attach(control Control) {
	s.mu.Lock()
	s.control = control
	s.mu.Unlock()
}

// Connected reports whether a front-end is attached.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

// ListenAndServe serves the bridge at addr and path until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, path string) error {
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, s)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen bridge %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.disconnect(nil)
	}()

	s.logger.Info("bridge listening", "addr", ln.Addr().String(), "path", path)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve bridge: %w", err)
	}
	return nil
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(s.origins) == 0 {
		return false
	}
	_, ok := s.origins[origin]
	return ok
}

// ServeHTTP upgrades the request and runs the front-end connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("bridge upgrade failed", "error", err.Error())
		return
	}
	conn.SetReadLimit(s.readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	c := &client{
		conn:   conn,
		out:    make(chan []byte, outboundBuffer),
		closed: make(chan struct{}),
	}
	s.connect(c)
	go c.writeLoop(s.pingInterval, s.writeTimeout)

	err = s.readLoop(ctx, c)
	s.disconnect(c)
	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Warn("bridge connection closed", "error", err.Error())
		return
	}
	s.logger.Info("bridge client disconnected")
}

func (s *Server) connect(c *client) {
	s.mu.Lock()
	prev := s.client
	s.mu.Unlock()
	if prev != nil {
		s.disconnect(prev)
	}

	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
	s.logger.Info("bridge client connected")
}

// disconnect detaches c (or whatever client is attached when c is nil) and
// fails everything still waiting on it.
func (s *Server) disconnect(c *client) {
	s.mu.Lock()
	if c == nil {
		c = s.client
	}
	if c == nil || s.client != c {
		s.mu.Unlock()
		if c != nil {
			c.close()
		}
		return
	}
	s.client = nil
	streams := s.streams
	pending := s.pending
	s.streams = make(map[uint64]*stream)
	s.pending = make(map[uint64]chan error)
	s.mu.Unlock()

	c.close()
	for _, st := range streams {
		st.finish(listen.Event{Kind: listen.EventError, Err: &listen.Error{Kind: listen.KindNetwork, Message: ErrDisconnected.Error()}})
	}
	for _, ch := range pending {
		ch <- ErrDisconnected
	}
}

func (s *Server) readLoop(ctx context.Context, c *client) error {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			s.logger.Debug("bridge ignored non-text frame")
			continue
		}
		msg, err := decodeMessage(data)
		if err != nil {
			s.logger.Warn("bridge frame rejected", "error", err.Error())
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *Server) handle(ctx context.Context, msg Message) {
	switch msg.Type {
	case TypeSTTResult:
		s.deliver(msg.Session, listen.Event{Kind: listen.EventResult, Text: msg.Text, Final: msg.Final}, false)
	case TypeSTTEnded:
		s.deliver(msg.Session, listen.Event{Kind: listen.EventEnded}, true)
	case TypeSTTError:
		kind := listen.ErrorKind(strings.TrimSpace(msg.Error))
		if kind == "" {
			kind = listen.KindUnknown
		}
		s.deliver(msg.Session, listen.Event{Kind: listen.EventError, Err: &listen.Error{Kind: kind}}, true)
	case TypeTTSStarted:
		s.logger.Debug("front-end utterance started", "id", msg.ID)
	case TypeTTSEnded:
		s.resolve(msg.ID, nil)
	case TypeTTSError:
		s.resolve(msg.ID, fmt.Errorf("front-end speech: %s", msg.Error))
	case TypeActionDone:
		var err error
		if msg.Error != "" {
			err = fmt.Errorf("front-end action: %s", msg.Error)
		}
		s.resolve(msg.ID, err)
	case TypeForm:
		s.setForm(msg.Fields)
	case TypeHello, TypeText, TypeDictate, TypeResume, TypePause, TypeLanguage:
		s.forward(ctx, msg)
	default:
		s.logger.Warn("bridge unknown message", "type", msg.Type)
	}
}

// forward runs a control request off the read loop so long calls such as
// dictation never block stream delivery.
func (s *Server) forward(ctx context.Context, msg Message) {
	s.mu.Lock()
	control := s.control
	s.mu.Unlock()
	if control == nil {
		s.reply(msg, Message{Error: "runtime not attached"})
		return
	}

	go func() {
		var (
			result Message
			err    error
		)
		switch msg.Type {
		case TypeHello:
			if lang := strings.TrimSpace(msg.Language); lang != "" {
				if err = control.SetLanguage(ctx, commands.Language(lang)); err != nil {
					break
				}
			}
			err = control.Resume(ctx)
		case TypeResume:
			err = control.Resume(ctx)
		case TypePause:
			err = control.Pause(ctx)
		case TypeLanguage:
			err = control.SetLanguage(ctx, commands.Language(strings.TrimSpace(msg.Language)))
		case TypeText:
			var outcome session.Outcome
			outcome, err = control.Submit(ctx, msg.Text)
			result.Action = string(outcome.Action)
		case TypeDictate:
			var r dictation.Result
			r, err = control.Dictate(ctx, msg.Field)
			result.Field, result.Value = r.Field, r.Value
		}
		if err != nil {
			s.logger.Warn("bridge request failed", "type", msg.Type, "error", err.Error())
			result.Error = err.Error()
		}
		s.reply(msg, result)
	}()
}

func (s *Server) reply(req Message, result Message) {
	result.Type = TypeResult
	result.ID = req.ID
	result.Text = req.Type
	result.OK = result.Error == ""
	if err := s.send(result); err != nil {
		s.logger.Debug("bridge reply dropped", "request", req.Type, "error", err.Error())
	}
}

// PublishState pushes an orchestrator state change to the front-end. It never blocks.
func (s *Server) PublishState(state fsm.State, lang commands.Language) {
	if err := s.send(Message{Type: TypeState, State: string(state), Language: string(lang)}); err != nil && !errors.Is(err, ErrNoClient) {
		s.logger.Debug("bridge state dropped", "error", err.Error())
	}
}

func (s *Server) send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return ErrNoClient
	}
	return c.enqueue(data)
}

func (s *Server) id() uint64 {
	s.nextID++
	return s.nextID
}

// call sends msg with a fresh ID and waits for the matching completion frame.
// cancelType, when set, is sent if ctx ends first.
func (s *Server) call(ctx context.Context, msg Message, cancelType string) error {
	s.mu.Lock()
	if s.client == nil {
		s.mu.Unlock()
		return ErrNoClient
	}
	msg.ID = s.id()
	done := make(chan error, 1)
	s.pending[msg.ID] = done
	s.mu.Unlock()

	if err := s.send(msg); err != nil {
		s.forget(msg.ID)
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.forget(msg.ID)
		if cancelType != "" {
			_ = s.send(Message{Type: cancelType, ID: msg.ID})
		}
		return ctx.Err()
	}
}

func (s *Server) forget(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Server) resolve(id uint64, err error) {
	s.mu.Lock()
	done, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("bridge completion for unknown request", "id", id)
		return
	}
	done <- err
}

type client struct {
	conn      *websocket.Conn
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *client) enqueue(data []byte) error {
	select {
	case <-c.closed:
		return ErrDisconnected
	default:
	}
	select {
	case c.out <- data:
		return nil
	default:
		return errQueueFull
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *client) writeLoop(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				c.close()
				return
			}
		case data := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}
