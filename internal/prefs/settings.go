package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	KeyLanguage   = "language"
	KeyVolume     = "volume"
	KeyRate       = "rate"
	KeyPitch      = "pitch"
	KeyVoice      = "voice"
	KeyContinuous = "continuous"
)

// Settings are the voice preferences seeded at start and written on change.
type Settings struct {
	Language   string
	Volume     float64
	Rate       float64
	Pitch      float64
	Voice      string
	Continuous bool
}

// LoadSettings overlays stored values on defaults.
func (s *Store) LoadSettings(defaults Settings) (Settings, error) {
	out := defaults
	fields := []struct {
		key string
		dst any
	}{
		{KeyLanguage, &out.Language},
		{KeyVolume, &out.Volume},
		{KeyRate, &out.Rate},
		{KeyPitch, &out.Pitch},
		{KeyVoice, &out.Voice},
		{KeyContinuous, &out.Continuous},
	}
	for _, f := range fields {
		if _, err := s.Get(f.key, f.dst); err != nil {
			return defaults, err
		}
	}
	return out, nil
}

// SaveSettings writes every settings key in one flush.
func (s *Store) SaveSettings(settings Settings) error {
	return s.SetMany(map[string]any{
		KeyLanguage:   settings.Language,
		KeyVolume:     settings.Volume,
		KeyRate:       settings.Rate,
		KeyPitch:      settings.Pitch,
		KeyVoice:      settings.Voice,
		KeyContinuous: settings.Continuous,
	})
}

// DefaultPath resolves $XDG_STATE_HOME/vaani/prefs.json.
func DefaultPath() (string, error) {
	stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "vaani", "prefs.json"), nil
}
