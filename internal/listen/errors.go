package listen

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable indicates no speech-to-text capability is reachable.
var ErrUnavailable = errors.New("speech recognition unavailable")

// ErrorKind names a recognition failure as reported by the capability.
type ErrorKind string

const (
	KindNoSpeech            ErrorKind = "no-speech"
	KindAborted             ErrorKind = "aborted"
	KindAudioCapture        ErrorKind = "audio-capture"
	KindNetwork             ErrorKind = "network"
	KindNotAllowed          ErrorKind = "not-allowed"
	KindServiceNotAllowed   ErrorKind = "service-not-allowed"
	KindLanguageUnsupported ErrorKind = "language-not-supported"
	KindUnavailable         ErrorKind = "unavailable"
	KindUnknown             ErrorKind = "unknown"
)

// Error is a recognition failure carried out of a Stream.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognition error: %s", e.Kind)
	}
	return fmt.Sprintf("recognition error: %s: %s", e.Kind, e.Message)
}

// Class is the recovery decision for an ErrorKind.
type Class int

const (
	// ClassRecoverable restarts the session after a backoff delay.
	ClassRecoverable Class = iota
	// ClassTerminal stops listening and disables continuous mode.
	ClassTerminal
	// ClassIntentional is a stop requested by the runtime itself.
	ClassIntentional
)

func (c Class) String() string {
	switch c {
	case ClassRecoverable:
		return "recoverable"
	case ClassTerminal:
		return "terminal"
	case ClassIntentional:
		return "intentional"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Classify maps an error kind to its recovery class.
func Classify(kind ErrorKind) Class {
	switch kind {
	case KindNotAllowed, KindServiceNotAllowed, KindAudioCapture, KindLanguageUnsupported, KindUnavailable:
		return ClassTerminal
	case KindAborted:
		return ClassIntentional
	default:
		return ClassRecoverable
	}
}

// KindOf extracts the error kind from err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var recErr *Error
	if errors.As(err, &recErr) {
		if recErr.Kind == "" {
			return KindUnknown
		}
		return recErr.Kind
	}
	switch {
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, context.Canceled):
		return KindAborted
	default:
		return KindUnknown
	}
}
