package config

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// SpeechPlaceholders are the per-utterance tokens a speech.command may carry.
var SpeechPlaceholders = []string{"{voice}", "{lang}", "{locale}", "{rate}", "{pitch}", "{volume}"}

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// argvLexer splits a shell-like command line. Quotes group words; a backslash
// escapes the next rune anywhere.
type argvLexer struct {
	argv    []string
	current strings.Builder
	started bool
	quote   rune
	escape  bool
}

func (l *argvLexer) flush() {
	if !l.started {
		return
	}
	l.argv = append(l.argv, l.current.String())
	l.current.Reset()
	l.started = false
}

func (l *argvLexer) write(r rune) {
	l.current.WriteRune(r)
	l.started = true
}

func (l *argvLexer) feed(r rune) {
	switch {
	case l.escape:
		l.write(r)
		l.escape = false
	case r == '\\':
		l.escape = true
	case l.quote != 0:
		if r == l.quote {
			l.quote = 0
			return
		}
		l.write(r)
	case r == '\'' || r == '"':
		l.quote = r
		// "" is an empty argument, e.g. an empty -v for espeak-ng
		l.started = true
	case unicode.IsSpace(r):
		l.flush()
	default:
		l.write(r)
	}
}

func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var lx argvLexer
	for _, r := range input {
		lx.feed(r)
	}
	if lx.escape {
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	}
	if lx.quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}
	lx.flush()
	return lx.argv, nil
}

// unknownPlaceholders lists {tokens} in argv that no utterance will expand.
func unknownPlaceholders(argv []string) []string {
	known := make(map[string]struct{}, len(SpeechPlaceholders))
	for _, p := range SpeechPlaceholders {
		known[p] = struct{}{}
	}
	var unknown []string
	for _, arg := range argv {
		for _, token := range placeholderPattern.FindAllString(arg, -1) {
			if _, ok := known[token]; !ok {
				unknown = append(unknown, token)
			}
		}
	}
	return unknown
}

func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}
