package listen

import "time"

// Policy holds the named restart delays of the ambient session.
type Policy struct {
	Continuous bool
	// NaturalEndDelay follows a session that ended without error.
	NaturalEndDelay time.Duration
	// NoSpeechDelay follows a no-speech timeout.
	NoSpeechDelay time.Duration
	// ErrorDelay is the first backoff step for other recoverable errors.
	ErrorDelay time.Duration
	// MaxErrorDelay caps the exponential error backoff.
	MaxErrorDelay time.Duration
	// ResumeDelay follows the end of a dictation sub-session.
	ResumeDelay time.Duration
}

// DefaultPolicy returns the stock restart timings.
func DefaultPolicy() Policy {
	return Policy{
		Continuous:      true,
		NaturalEndDelay: 500 * time.Millisecond,
		NoSpeechDelay:   time.Second,
		ErrorDelay:      2 * time.Second,
		MaxErrorDelay:   10 * time.Second,
		ResumeDelay:     1500 * time.Millisecond,
	}
}

// ErrorBackoff returns the restart delay after the given consecutive failure count.
func (p Policy) ErrorBackoff(kind ErrorKind, failures int) time.Duration {
	if kind == KindNoSpeech {
		return p.NoSpeechDelay
	}
	delay := p.ErrorDelay
	for i := 1; i < failures; i++ {
		delay *= 2
		if p.MaxErrorDelay > 0 && delay >= p.MaxErrorDelay {
			return p.MaxErrorDelay
		}
	}
	if p.MaxErrorDelay > 0 && delay > p.MaxErrorDelay {
		return p.MaxErrorDelay
	}
	return delay
}
