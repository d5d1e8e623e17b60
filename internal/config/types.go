// Package config resolves, parses, validates, and defaults vaani configuration.
package config

// Config is the fully materialized runtime configuration used by vaani.
type Config struct {
	Language  string
	Commands  CommandsConfig
	Listening ListeningConfig
	Dictation DictationConfig
	Speech    SpeechConfig
	Actions   ActionsConfig
	Bridge    BridgeConfig
	Backend   BackendConfig
	Prefs     PrefsConfig
	Activity  ActivityConfig
	Indicator IndicatorConfig
	Debug     DebugConfig
}

// CommandsConfig selects the command table. An empty File uses the built-in catalog.
type CommandsConfig struct {
	File string
}

// ListeningConfig controls ambient listening and its restart timing.
type ListeningConfig struct {
	Continuous        bool
	NaturalEndDelayMS int
	NoSpeechDelayMS   int
	ErrorDelayMS      int
	MaxErrorDelayMS   int
	ResumeDelayMS     int
}

// DictationConfig bounds one dictation capture.
type DictationConfig struct {
	TimeoutMS int
}

// SpeechConfig selects the synthesizer and the default voice parameters.
type SpeechConfig struct {
	Backend       string
	Command       CommandConfig
	Volume        float64
	Rate          float64
	Pitch         float64
	Voice         string
	AnnounceReady bool
}

// ActionsConfig bounds external action handlers.
type ActionsConfig struct {
	TimeoutMS int
}

// BridgeConfig controls the front-end WebSocket listener.
type BridgeConfig struct {
	Listen         string
	Path           string
	AllowedOrigins []string
}

// BackendConfig points at an optional remote speech backend probed by doctor.
type BackendConfig struct {
	GRPC    string
	Service string
}

// PrefsConfig locates the preference store. Empty selects the state directory.
type PrefsConfig struct {
	Path string
}

// ActivityConfig controls the activity log.
type ActivityConfig struct {
	Enable bool
	Path   string
	Buffer int
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable             bool
	Backend            string
	DesktopAppName     string
	SoundEnable        bool
	SoundListeningFile string
	SoundDictationFile string
	SoundErrorFile     string
	TextListening      string
	TextDictating      string
	TextError          string
	ErrorTimeoutMS     int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls diagnostic output.
type DebugConfig struct {
	Verbose bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// Speech backends.
const (
	SpeechBridge  = "bridge"
	SpeechCommand = "command"
	SpeechNone    = "none"
)
