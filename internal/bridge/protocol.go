package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/rbright/vaani/internal/dictation"
)

// Front-end to runtime message types.
const (
	TypeHello      = "hello"
	TypeSTTResult  = "stt.result"
	TypeSTTEnded   = "stt.ended"
	TypeSTTError   = "stt.error"
	TypeTTSStarted = "tts.started"
	TypeTTSEnded   = "tts.ended"
	TypeTTSError   = "tts.error"
	TypeActionDone = "action.done"
	TypeForm       = "form"
	TypeText       = "text"
	TypeDictate    = "dictate"
	TypeResume     = "resume"
	TypePause      = "pause"
	TypeLanguage   = "language"
)

// Runtime to front-end message types.
const (
	TypeSTTStart  = "stt.start"
	TypeSTTAbort  = "stt.abort"
	TypeTTSSpeak  = "tts.speak"
	TypeTTSCancel = "tts.cancel"
	TypeTTSPause  = "tts.pause"
	TypeTTSResume = "tts.resume"
	TypeAction    = "action"
	TypeFieldSet  = "field.set"
	TypeState     = "state"
	TypeResult    = "result"
)

// Message is one JSON text frame in either direction. Only the fields relevant
// to Type are set.
type Message struct {
	Type string `json:"type"`

	// ID correlates tts.*, action and result frames with their request.
	ID      uint64 `json:"id,omitempty"`
	Session uint64 `json:"session,omitempty"`

	Text       string  `json:"text,omitempty"`
	Final      bool    `json:"final,omitempty"`
	Error      string  `json:"error,omitempty"`
	Locale     string  `json:"locale,omitempty"`
	Continuous bool    `json:"continuous,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
	Pitch      float64 `json:"pitch,omitempty"`
	Volume     float64 `json:"volume,omitempty"`
	Voice      string  `json:"voice,omitempty"`

	Action   string            `json:"action,omitempty"`
	Field    string            `json:"field,omitempty"`
	Value    string            `json:"value,omitempty"`
	Fields   []dictation.Field `json:"fields,omitempty"`
	Language string            `json:"language,omitempty"`
	State    string            `json:"state,omitempty"`
	OK       bool              `json:"ok,omitempty"`
}

func decodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decode frame: missing type")
	}
	return msg, nil
}
