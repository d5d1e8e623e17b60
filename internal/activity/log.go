// Package activity records voice-command and dictation outcomes as JSON lines.
package activity

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const (
	KindVoiceCommand = "voice_command"
	KindDictation    = "voice_dictation"
)

// Entry is one decoded activity record.
type Entry struct {
	Kind    string
	At      time.Time
	Payload map[string]any
}

type line struct {
	Kind    string          `json:"kind"`
	At      json.RawMessage `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

type record struct {
	kind    string
	at      *timestamppb.Timestamp
	payload *structpb.Struct
}

// Log appends records from a background writer. Record never blocks the caller.
type Log struct {
	file   afero.File
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	closed  bool
	queue   chan record
	done    chan struct{}
	dropped atomic.Uint64
}

// Open appends to path on fs, creating it with mode 0600.
func Open(fs afero.Fs, path string, buffer int, logger *slog.Logger) (*Log, error) {
	if buffer < 1 {
		buffer = 1
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create activity dir: %w", err)
	}
	file, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open activity log %q: %w", path, err)
	}

	l := &Log{
		file:   file,
		path:   path,
		logger: logger,
		now:    time.Now,
		queue:  make(chan record, buffer),
		done:   make(chan struct{}),
	}
	go l.write()
	return l, nil
}

// Record enqueues an event. Payloads that structpb cannot represent are dropped.
func (l *Log) Record(kind string, payload map[string]any) {
	body, err := structpb.NewStruct(payload)
	if err != nil {
		l.drop("unsupported activity payload", kind, err)
		return
	}
	rec := record{kind: kind, at: timestamppb.New(l.now()), payload: body}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		l.drop("activity log closed", kind, nil)
		return
	}
	select {
	case l.queue <- rec:
	default:
		l.drop("activity queue full", kind, nil)
	}
}

// Dropped returns how many records were discarded.
func (l *Log) Dropped() uint64 {
	return l.dropped.Load()
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// Close drains queued records and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return l.file.Close()
}

func (l *Log) write() {
	defer close(l.done)
	for rec := range l.queue {
		data, err := encode(rec)
		if err != nil {
			l.drop("encode activity", rec.kind, err)
			continue
		}
		if _, err := l.file.Write(data); err != nil {
			l.drop("write activity", rec.kind, err)
		}
	}
}

func (l *Log) drop(message string, kind string, err error) {
	l.dropped.Add(1)
	if l.logger == nil {
		return
	}
	attrs := []any{"kind", kind}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	l.logger.Warn(message, attrs...)
}

func encode(rec record) ([]byte, error) {
	at, err := protojson.Marshal(rec.at)
	if err != nil {
		return nil, err
	}
	payload, err := protojson.Marshal(rec.payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(line{Kind: rec.kind, At: at, Payload: payload})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ReadAll decodes every record in path.
func ReadAll(fs afero.Fs, path string) ([]Entry, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read activity log %q: %w", path, err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		entry, err := decode(raw)
		if err != nil {
			return entries, fmt.Errorf("activity log %q line %d: %w", path, lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("scan activity log %q: %w", path, err)
	}
	return entries, nil
}

func decode(raw []byte) (Entry, error) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return Entry{}, err
	}
	var at timestamppb.Timestamp
	if err := protojson.Unmarshal(l.At, &at); err != nil {
		return Entry{}, fmt.Errorf("decode timestamp: %w", err)
	}
	var payload structpb.Struct
	if len(l.Payload) > 0 {
		if err := protojson.Unmarshal(l.Payload, &payload); err != nil {
			return Entry{}, fmt.Errorf("decode payload: %w", err)
		}
	}
	return Entry{Kind: l.Kind, At: at.AsTime(), Payload: payload.AsMap()}, nil
}

// DefaultPath resolves $XDG_STATE_HOME/vaani/activity.jsonl.
func DefaultPath() (string, error) {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "vaani", "activity.jsonl"), nil
}
