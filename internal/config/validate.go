package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Language) == "" {
		return nil, fmt.Errorf("language must not be empty")
	}

	delays := []struct {
		name  string
		value int
	}{
		{"listening.natural_end_delay_ms", cfg.Listening.NaturalEndDelayMS},
		{"listening.no_speech_delay_ms", cfg.Listening.NoSpeechDelayMS},
		{"listening.error_delay_ms", cfg.Listening.ErrorDelayMS},
		{"listening.max_error_delay_ms", cfg.Listening.MaxErrorDelayMS},
		{"listening.resume_delay_ms", cfg.Listening.ResumeDelayMS},
		{"indicator.error_timeout_ms", cfg.Indicator.ErrorTimeoutMS},
	}
	for _, d := range delays {
		if d.value < 0 {
			return nil, fmt.Errorf("%s must be >= 0", d.name)
		}
	}
	if cfg.Listening.MaxErrorDelayMS < cfg.Listening.ErrorDelayMS {
		return nil, fmt.Errorf("listening.max_error_delay_ms must be >= listening.error_delay_ms")
	}
	if cfg.Dictation.TimeoutMS <= 0 {
		return nil, fmt.Errorf("dictation.timeout_ms must be > 0")
	}
	if cfg.Actions.TimeoutMS <= 0 {
		return nil, fmt.Errorf("actions.timeout_ms must be > 0")
	}

	switch cfg.Speech.Backend {
	case SpeechBridge, SpeechNone:
	case SpeechCommand:
		if len(cfg.Speech.Command.Argv) == 0 {
			return nil, fmt.Errorf("speech.command must not be empty when speech.backend=command")
		}
	default:
		return nil, fmt.Errorf("speech.backend must be one of: bridge, command, none")
	}
	if cfg.Speech.Volume < 0 || cfg.Speech.Volume > 1 {
		return nil, fmt.Errorf("speech.volume must be within [0, 1]")
	}
	if cfg.Speech.Rate < 0.1 || cfg.Speech.Rate > 10 {
		return nil, fmt.Errorf("speech.rate must be within [0.1, 10]")
	}
	if cfg.Speech.Pitch < 0 || cfg.Speech.Pitch > 2 {
		return nil, fmt.Errorf("speech.pitch must be within [0, 2]")
	}

	if strings.TrimSpace(cfg.Bridge.Listen) == "" {
		return nil, fmt.Errorf("bridge.listen must not be empty")
	}
	if !strings.HasPrefix(cfg.Bridge.Path, "/") {
		return nil, fmt.Errorf("bridge.path must start with '/'")
	}
	if cfg.Activity.Buffer < 0 {
		return nil, fmt.Errorf("activity.buffer must be >= 0")
	}

	backend := cfg.Indicator.Backend
	if backend == "" {
		return nil, fmt.Errorf("indicator.backend must not be empty")
	}
	if backend != "hypr" && backend != "desktop" {
		return nil, fmt.Errorf("indicator.backend must be one of: hypr, desktop")
	}
	if backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}

	if cfg.Speech.Backend == SpeechNone && cfg.Speech.AnnounceReady {
		warnings = append(warnings, Warning{Message: "speech.announce_ready has no effect when speech.backend=none"})
	}
	if cfg.Backend.Service != "" && cfg.Backend.GRPC == "" {
		warnings = append(warnings, Warning{Message: "backend.service is set but backend.grpc is empty; the backend probe is skipped"})
	}

	return warnings, nil
}
