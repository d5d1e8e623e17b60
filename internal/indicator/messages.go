package indicator

import (
	"os"
	"strings"

	"github.com/rbright/vaani/internal/config"
)

type locale string

const (
	localeEnglish locale = "en"
	localeHindi   locale = "hi"
)

type messages struct {
	listening string
	dictating string
	errorText string
}

func indicatorMessagesFromEnv(cfg config.IndicatorConfig) messages {
	msg := indicatorMessages(resolveLocale(os.Getenv("LANG")))
	if cfg.TextListening != "" {
		msg.listening = cfg.TextListening
	}
	if cfg.TextDictating != "" {
		msg.dictating = cfg.TextDictating
	}
	if cfg.TextError != "" {
		msg.errorText = cfg.TextError
	}
	return msg
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "hi") {
		return localeHindi
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeHindi:
		return messages{
			listening: "सुन रहा हूँ…",
			dictating: "बोलिए…",
			errorText: "आवाज़ पहचानने में त्रुटि",
		}
	default:
		return messages{
			listening: "Listening…",
			dictating: "Dictating…",
			errorText: "Speech recognition error",
		}
	}
}
