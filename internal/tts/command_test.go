package tts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/vaani/internal/speech"
)

func TestExpand(t *testing.T) {
	argv := Expand(DefaultCommand, speech.Request{Text: "hi", Rate: 1.2, Pitch: 1, Volume: 0.7, Locale: "hi-IN"})
	require.Equal(t, []string{"espeak-ng", "-v", "hi", "-s", "210", "-p", "50", "-a", "70", "--stdin"}, argv)

	argv = Expand([]string{"say", "{voice}", "{locale}", "{pitch}", "{volume}"}, speech.Request{Voice: "en-us+f3", Pitch: 3, Volume: 5, Locale: "en-US"})
	require.Equal(t, []string{"say", "en-us+f3", "en-US", "99", "200"}, argv)

	argv = Expand([]string{"x", "{voice}", "{rate}"}, speech.Request{})
	require.Equal(t, []string{"x", "en", "175"}, argv)
}

func TestSpeakWritesTextToStdin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "spoken.txt")
	synth, err := New([]string{"sh", "-c", "cat > " + out}, nil)
	require.NoError(t, err)
	require.Equal(t, "sh", synth.Binary())

	require.NoError(t, synth.Speak(context.Background(), speech.Request{Text: "Opening settings"}))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "Opening settings", string(data))
}

func TestSpeakCancelKillsProcess(t *testing.T) {
	synth, err := New([]string{"sleep", "5"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = synth.Speak(ctx, speech.Request{Text: "x"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestSpeakReportsFailure(t *testing.T) {
	synth, err := New([]string{"sh", "-c", "echo broken voice >&2; exit 3"}, nil)
	require.NoError(t, err)

	err = synth.Speak(context.Background(), speech.Request{Text: "x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken voice")
}

func TestNewRejectsEmptyBinary(t *testing.T) {
	_, err := New([]string{" "}, nil)
	require.Error(t, err)

	synth, err := New(nil, nil)
	require.NoError(t, err)
	require.Equal(t, "espeak-ng", synth.Binary())
}
