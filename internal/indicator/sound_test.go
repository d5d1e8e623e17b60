package indicator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/rbright/vaani/internal/config"
	"github.com/stretchr/testify/require"
)

func TestCueSamplesPresent(t *testing.T) {
	require.NotEmpty(t, cueSamples(cueListening))
	require.NotEmpty(t, cueSamples(cueDictation))
	require.NotEmpty(t, cueSamples(cueError))
	require.Empty(t, cueSamples(cueKind(99)))
}

func TestRenderCueWAVRoundTrip(t *testing.T) {
	samples := cueSamples(cueDictation)
	path, err := renderCueWAV(samples)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(path) })

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Equal(t, uint32(cueSampleRate), dec.SampleRate)
	require.Equal(t, uint16(1), dec.NumChans)
	require.Len(t, buf.Data, len(samples))
	require.Equal(t, int(samples[len(samples)/3]), buf.Data[len(samples)/3])
}

func TestSynthesizeToneDuration(t *testing.T) {
	got := synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0.2})
	want := samplesForDuration(100 * time.Millisecond)
	require.Len(t, got, want)
	require.Zero(t, got[0])
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: 100 * time.Millisecond, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 0, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0}))
}

func TestSamplesForDuration(t *testing.T) {
	require.Equal(t, 0, samplesForDuration(0))
	require.Equal(t, 400, samplesForDuration(25*time.Millisecond))
}

func TestCuePathExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := config.Default().Indicator
	cfg.SoundListeningFile = "~/cues/open.wav"
	cfg.SoundErrorFile = "/abs/error.wav"

	require.Equal(t, filepath.Join(home, "cues", "open.wav"), cuePath(cueListening, cfg))
	require.Equal(t, "/abs/error.wav", cuePath(cueError, cfg))
	require.Empty(t, cuePath(cueDictation, cfg))
}

func TestEmitCueRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := emitCue(ctx, cueListening, config.Default().Indicator)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestEmitCuePlaysConfiguredFile(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "pw-args.log")
	stub := "#!/usr/bin/env bash\nprintf '%s\\n' \"$*\" >> " + argsFile + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pw-play"), []byte(stub), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	cue := filepath.Join(dir, "open.wav")
	require.NoError(t, os.WriteFile(cue, []byte("RIFF"), 0o600))

	cfg := config.Default().Indicator
	cfg.SoundListeningFile = cue
	require.NoError(t, emitCue(context.Background(), cueListening, cfg))

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Equal(t, "--media-role Notification "+cue+"\n", string(data))
}
