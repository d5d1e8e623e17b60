package session

import "errors"

var (
	// ErrBusy indicates the request conflicts with the current turn.
	ErrBusy = errors.New("voice runtime busy")
	// ErrRecognitionUnavailable indicates no speech-to-text capability is wired.
	ErrRecognitionUnavailable = errors.New("voice input unavailable")
	// ErrClosed indicates the runtime has been torn down.
	ErrClosed = errors.New("voice runtime stopped")
	// ErrNoHandler indicates an action with no registered handler.
	ErrNoHandler = errors.New("no handler registered for action")
	// ErrActionTimeout indicates an action handler exceeded its deadline.
	ErrActionTimeout = errors.New("action timed out")
)

// IsBusy reports whether err rejects a request because of the current turn.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsRecognitionUnavailable reports whether err represents missing voice input wiring.
func IsRecognitionUnavailable(err error) bool {
	return errors.Is(err, ErrRecognitionUnavailable)
}
