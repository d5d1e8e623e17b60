// Package dictation runs one-shot, field-scoped recognition sessions.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/vaani/internal/listen"
)

var (
	// ErrTimeout indicates no final result arrived within the command timeout.
	ErrTimeout = errors.New("dictation timed out")
	// ErrNoResult indicates the session ended without a usable transcript.
	ErrNoResult = errors.New("dictation produced no result")
)

// Result is a completed dictation.
type Result struct {
	Field      string
	Transcript string
	Value      string
}

// Session runs dictation against one recognizer and form.
type Session struct {
	recognizer listen.Recognizer
	form       Form
	timeout    time.Duration
	logger     *slog.Logger
}

// New returns a dictation runner. A non-positive timeout disables the bound.
func New(recognizer listen.Recognizer, form Form, timeout time.Duration, logger *slog.Logger) *Session {
	return &Session{recognizer: recognizer, form: form, timeout: timeout, logger: logger}
}

// Run captures one final transcript for fieldID and writes the mapped value to the form.
func (s *Session) Run(ctx context.Context, fieldID string, locale string) (Result, error) {
	if s.recognizer == nil {
		return Result{}, listen.ErrUnavailable
	}
	if s.form == nil {
		return Result{}, fmt.Errorf("%w: %q (no form attached)", ErrUnknownField, fieldID)
	}

	field, err := s.form.Field(ctx, fieldID)
	if err != nil {
		return Result{}, fmt.Errorf("lookup field %q: %w", fieldID, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	transcript, err := s.capture(ctx, locale)
	if err != nil {
		return Result{}, err
	}

	value, err := MapValue(field, transcript)
	if err != nil {
		return Result{Field: field.ID, Transcript: transcript}, err
	}
	if err := s.form.SetValue(ctx, field.ID, value); err != nil {
		return Result{Field: field.ID, Transcript: transcript}, fmt.Errorf("set field %q: %w", field.ID, err)
	}

	if s.logger != nil {
		s.logger.Debug("dictation recorded", "field", field.ID, "kind", string(field.Kind), "transcript_length", len(transcript))
	}
	return Result{Field: field.ID, Transcript: transcript, Value: value}, nil
}

func (s *Session) capture(ctx context.Context, locale string) (string, error) {
	stream, err := s.recognizer.Start(ctx, listen.Options{Locale: locale, Continuous: false})
	if err != nil {
		return "", fmt.Errorf("start dictation: %w", err)
	}
	defer stream.Abort()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", ctx.Err()
		case ev, ok := <-stream.Events():
			if !ok {
				return "", ErrNoResult
			}
			switch ev.Kind {
			case listen.EventResult:
				if !ev.Final {
					continue
				}
				text := strings.TrimSpace(ev.Text)
				if text == "" {
					return "", ErrNoResult
				}
				return text, nil
			case listen.EventEnded:
				return "", ErrNoResult
			case listen.EventError:
				if ev.Err == nil {
					return "", ErrNoResult
				}
				return "", fmt.Errorf("dictation: %w", ev.Err)
			}
		}
	}
}
