package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Language  *string         `json:"language"`
	Commands  *jsoncCommands  `json:"commands"`
	Listening *jsoncListening `json:"listening"`
	Dictation *jsoncDictation `json:"dictation"`
	Speech    *jsoncSpeech    `json:"speech"`
	Actions   *jsoncActions   `json:"actions"`
	Bridge    *jsoncBridge    `json:"bridge"`
	Backend   *jsoncBackend   `json:"backend"`
	Prefs     *jsoncPrefs     `json:"prefs"`
	Activity  *jsoncActivity  `json:"activity"`
	Indicator *jsoncIndicator `json:"indicator"`
	Debug     *jsoncDebug     `json:"debug"`
}

type jsoncCommands struct {
	File *string `json:"file"`
}

type jsoncListening struct {
	Continuous        *bool `json:"continuous"`
	NaturalEndDelayMS *int  `json:"natural_end_delay_ms"`
	NoSpeechDelayMS   *int  `json:"no_speech_delay_ms"`
	ErrorDelayMS      *int  `json:"error_delay_ms"`
	MaxErrorDelayMS   *int  `json:"max_error_delay_ms"`
	ResumeDelayMS     *int  `json:"resume_delay_ms"`
}

type jsoncDictation struct {
	TimeoutMS *int `json:"timeout_ms"`
}

type jsoncSpeech struct {
	Backend       *string  `json:"backend"`
	Command       *string  `json:"command"`
	Volume        *float64 `json:"volume"`
	Rate          *float64 `json:"rate"`
	Pitch         *float64 `json:"pitch"`
	Voice         *string  `json:"voice"`
	AnnounceReady *bool    `json:"announce_ready"`
}

type jsoncActions struct {
	TimeoutMS *int `json:"timeout_ms"`
}

type jsoncBridge struct {
	Listen         *string          `json:"listen"`
	Path           *string          `json:"path"`
	AllowedOrigins *jsoncStringList `json:"allowed_origins"`
}

type jsoncBackend struct {
	GRPC    *string `json:"grpc"`
	Service *string `json:"service"`
}

type jsoncPrefs struct {
	Path *string `json:"path"`
}

type jsoncActivity struct {
	Enable *bool   `json:"enable"`
	Path   *string `json:"path"`
	Buffer *int    `json:"buffer"`
}

type jsoncIndicator struct {
	Enable             *bool   `json:"enable"`
	Backend            *string `json:"backend"`
	DesktopAppName     *string `json:"desktop_app_name"`
	SoundEnable        *bool   `json:"sound_enable"`
	SoundListeningFile *string `json:"sound_listening_file"`
	SoundDictationFile *string `json:"sound_dictation_file"`
	SoundErrorFile     *string `json:"sound_error_file"`
	TextListening      *string `json:"text_listening"`
	TextDictating      *string `json:"text_dictating"`
	TextError          *string `json:"text_error"`
	ErrorTimeoutMS     *int    `json:"error_timeout_ms"`
}

type jsoncDebug struct {
	Verbose *bool `json:"verbose"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	setString(&cfg.Language, payload.Language)

	if c := payload.Commands; c != nil {
		setString(&cfg.Commands.File, c.File)
	}

	if l := payload.Listening; l != nil {
		setBool(&cfg.Listening.Continuous, l.Continuous)
		setInt(&cfg.Listening.NaturalEndDelayMS, l.NaturalEndDelayMS)
		setInt(&cfg.Listening.NoSpeechDelayMS, l.NoSpeechDelayMS)
		setInt(&cfg.Listening.ErrorDelayMS, l.ErrorDelayMS)
		setInt(&cfg.Listening.MaxErrorDelayMS, l.MaxErrorDelayMS)
		setInt(&cfg.Listening.ResumeDelayMS, l.ResumeDelayMS)
	}

	if d := payload.Dictation; d != nil {
		setInt(&cfg.Dictation.TimeoutMS, d.TimeoutMS)
	}

	if s := payload.Speech; s != nil {
		if s.Backend != nil {
			cfg.Speech.Backend = strings.ToLower(strings.TrimSpace(*s.Backend))
		}
		if s.Command != nil {
			raw := *s.Command
			argv, err := parseArgv(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid speech.command: %w", err)
			}
			cfg.Speech.Command = CommandConfig{Raw: raw, Argv: argv}
			for _, token := range unknownPlaceholders(argv) {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("speech.command placeholder %s is never expanded", token)})
			}
		}
		setFloat(&cfg.Speech.Volume, s.Volume)
		setFloat(&cfg.Speech.Rate, s.Rate)
		setFloat(&cfg.Speech.Pitch, s.Pitch)
		setString(&cfg.Speech.Voice, s.Voice)
		setBool(&cfg.Speech.AnnounceReady, s.AnnounceReady)
	}

	if a := payload.Actions; a != nil {
		setInt(&cfg.Actions.TimeoutMS, a.TimeoutMS)
	}

	if b := payload.Bridge; b != nil {
		setString(&cfg.Bridge.Listen, b.Listen)
		setString(&cfg.Bridge.Path, b.Path)
		if b.AllowedOrigins != nil {
			cfg.Bridge.AllowedOrigins = cfg.Bridge.AllowedOrigins[:0]
			for _, origin := range *b.AllowedOrigins {
				origin = strings.TrimSpace(origin)
				if origin == "" {
					continue
				}
				cfg.Bridge.AllowedOrigins = append(cfg.Bridge.AllowedOrigins, origin)
			}
		}
	}

	if b := payload.Backend; b != nil {
		setString(&cfg.Backend.GRPC, b.GRPC)
		setString(&cfg.Backend.Service, b.Service)
	}

	if p := payload.Prefs; p != nil {
		setString(&cfg.Prefs.Path, p.Path)
	}

	if a := payload.Activity; a != nil {
		setBool(&cfg.Activity.Enable, a.Enable)
		setString(&cfg.Activity.Path, a.Path)
		setInt(&cfg.Activity.Buffer, a.Buffer)
	}

	if i := payload.Indicator; i != nil {
		setBool(&cfg.Indicator.Enable, i.Enable)
		if i.Backend != nil {
			cfg.Indicator.Backend = strings.ToLower(strings.TrimSpace(*i.Backend))
		}
		setString(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setString(&cfg.Indicator.SoundListeningFile, i.SoundListeningFile)
		setString(&cfg.Indicator.SoundDictationFile, i.SoundDictationFile)
		setString(&cfg.Indicator.SoundErrorFile, i.SoundErrorFile)
		setString(&cfg.Indicator.TextListening, i.TextListening)
		setString(&cfg.Indicator.TextDictating, i.TextDictating)
		setString(&cfg.Indicator.TextError, i.TextError)
		setInt(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
	}

	if d := payload.Debug; d != nil {
		setBool(&cfg.Debug.Verbose, d.Verbose)
	}

	if cfg.Speech.Backend == SpeechCommand && cfg.Speech.Voice == "" {
		warnings = append(warnings, Warning{Message: "speech.voice is empty; the voice follows the active language"})
	}

	return warnings, nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
