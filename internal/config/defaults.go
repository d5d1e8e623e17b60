package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	speechCmd := "espeak-ng -v {voice} -s {rate} -p {pitch} -a {volume} --stdin"

	return Config{
		Language: "en",
		Listening: ListeningConfig{
			Continuous:        true,
			NaturalEndDelayMS: 500,
			NoSpeechDelayMS:   1000,
			ErrorDelayMS:      2000,
			MaxErrorDelayMS:   10000,
			ResumeDelayMS:     1500,
		},
		Dictation: DictationConfig{TimeoutMS: 10000},
		Speech: SpeechConfig{
			Backend:       SpeechBridge,
			Command:       CommandConfig{Raw: speechCmd, Argv: mustParseArgv(speechCmd)},
			Volume:        0.7,
			Rate:          1,
			Pitch:         1,
			AnnounceReady: true,
		},
		Actions: ActionsConfig{TimeoutMS: 5000},
		Bridge: BridgeConfig{
			Listen: "127.0.0.1:7311",
			Path:   "/voice",
		},
		Activity: ActivityConfig{Enable: true, Buffer: 256},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "hypr",
			DesktopAppName: "vaani-indicator",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
	}
}
