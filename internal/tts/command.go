// Package tts speaks through an external command-line synthesizer such as espeak-ng.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rbright/vaani/internal/speech"
)

// DefaultCommand is the argv template used when none is configured. Text is written to stdin.
var DefaultCommand = []string{"espeak-ng", "-v", "{voice}", "-s", "{rate}", "-p", "{pitch}", "-a", "{volume}", "--stdin"}

const baseWordsPerMinute = 175

// Command is a Synthesizer backed by one process per utterance.
type Command struct {
	argv   []string
	logger *slog.Logger
}

var _ speech.Synthesizer = (*Command)(nil)

// New returns a command synthesizer for the argv template. Placeholders
// {voice}, {lang}, {locale}, {rate}, {pitch} and {volume} are expanded per utterance.
func New(argv []string, logger *slog.Logger) (*Command, error) {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	if strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("tts command cannot be empty")
	}
	return &Command{argv: append([]string(nil), argv...), logger: logger}, nil
}

// Binary returns the executable the synthesizer runs.
func (c *Command) Binary() string {
	return c.argv[0]
}

// Speak runs the command for req and waits for it to exit. Cancelling ctx kills the process.
func (c *Command) Speak(ctx context.Context, req speech.Request) error {
	argv := Expand(c.argv, req)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(req.Text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("run %s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	if c.logger != nil {
		c.logger.Debug("utterance synthesized", "command", argv[0], "chars", len(req.Text))
	}
	return nil
}

// Expand substitutes request values into an argv template.
func Expand(template []string, req speech.Request) []string {
	lang := req.Locale
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = lang
	}
	if voice == "" {
		voice = "en"
	}

	rate := req.Rate
	if rate <= 0 {
		rate = 1
	}
	pitch := req.Pitch
	if pitch <= 0 {
		pitch = 1
	}

	replacer := strings.NewReplacer(
		"{voice}", voice,
		"{lang}", lang,
		"{locale}", req.Locale,
		"{rate}", strconv.Itoa(int(math.Round(baseWordsPerMinute*rate))),
		"{pitch}", strconv.Itoa(clamp(int(math.Round(pitch*50)), 0, 99)),
		"{volume}", strconv.Itoa(clamp(int(math.Round(req.Volume*100)), 0, 200)),
	)
	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = replacer.Replace(arg)
	}
	return out
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
