package dictation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rbright/vaani/internal/commands"
)

// FieldKind distinguishes free-text fields from fixed-choice fields.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldChoice FieldKind = "choice"
)

// Option is one selectable value of a choice field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// Field describes a dictation target.
type Field struct {
	ID      string    `json:"id"`
	Kind    FieldKind `json:"kind"`
	Options []Option  `json:"options,omitempty"`
}

// Form is the host surface that owns field values.
type Form interface {
	Field(ctx context.Context, id string) (Field, error)
	SetValue(ctx context.Context, id string, value string) error
}

var (
	// ErrUnknownField indicates the form has no field with the requested ID.
	ErrUnknownField = errors.New("unknown field")
	// ErrOptionNotFound indicates a transcript that selects no option of a choice field.
	ErrOptionNotFound = errors.New("option not found")
)

type synonym struct {
	phrase string
	value  string
}

// choiceSynonyms is the canonical spoken-synonym mapping for choice fields.
var choiceSynonyms = []synonym{
	{"blind", "visual"},
	{"low vision", "visual"},
	{"visual", "visual"},
	{"visually impaired", "visual"},
	{"deaf", "hearing"},
	{"hard of hearing", "hearing"},
	{"hearing", "hearing"},
	{"wheelchair", "mobility"},
	{"mobility", "mobility"},
	{"physical", "mobility"},
	{"cognitive", "cognitive"},
	{"learning", "cognitive"},
	{"other", "other"},
	{"student", "student"},
	{"admin", "admin"},
	{"institution admin", "institution_admin"},
	{"दृष्टि", "visual"},
	{"श्रवण", "hearing"},
	{"गतिशीलता", "mobility"},
	{"संज्ञानात्मक", "cognitive"},
	{"अन्य", "other"},
	{"छात्र", "student"},
	{"प्रशासक", "admin"},
	{"संस्थान प्रशासक", "institution_admin"},
}

// MapValue converts a transcript into the value written to field.
//
// Text fields take the transcript verbatim. Choice fields try the synonym table
// first (the transcript must contain the synonym) and then the option labels with
// the resolver's bidirectional containment rule.
func MapValue(field Field, transcript string) (string, error) {
	text := strings.TrimSpace(transcript)
	if field.Kind != FieldChoice {
		return text, nil
	}

	if value, ok := mapSynonym(text, field.Options); ok {
		return value, nil
	}

	candidates := make([]string, len(field.Options))
	for i, opt := range field.Options {
		candidates[i] = opt.Label
		if candidates[i] == "" {
			candidates[i] = opt.Value
		}
	}
	if idx := commands.MatchLongest(text, candidates); idx >= 0 {
		return field.Options[idx].Value, nil
	}
	return "", fmt.Errorf("%w: %q", ErrOptionNotFound, text)
}

// mapSynonym picks the longest synonym the transcript contains. Unlike option
// labels, a synonym never matches by being longer than the transcript.
func mapSynonym(text string, options []Option) (string, bool) {
	needle := strings.ToLower(text)
	best, bestLen := -1, 0
	for i, s := range choiceSynonyms {
		if !strings.Contains(needle, s.phrase) {
			continue
		}
		if n := utf8.RuneCountInString(s.phrase); n > bestLen {
			best, bestLen = i, n
		}
	}
	if best < 0 {
		return "", false
	}
	value := choiceSynonyms[best].value
	if len(options) == 0 {
		return value, true
	}
	for _, opt := range options {
		if opt.Value == value {
			return value, true
		}
	}
	return "", false
}
