package listen

import "context"

// Options configures one recognition session.
type Options struct {
	Locale     string
	Continuous bool
}

// EventKind tags a Stream event.
type EventKind int

const (
	EventResult EventKind = iota
	EventEnded
	EventError
)

// Event is one signal from a recognition session.
type Event struct {
	Kind  EventKind
	Text  string
	Final bool
	Err   error
}

// Stream is one running recognition session. Events is closed once the
// session is over; Abort ends it early.
type Stream interface {
	Events() <-chan Event
	Abort()
}

// Recognizer is the speech-to-text capability.
type Recognizer interface {
	Start(ctx context.Context, opts Options) (Stream, error)
}
