package commands

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed commands.yaml
var defaultCatalog []byte

type yamlCatalog struct {
	Languages []yamlPack `yaml:"languages"`
}

type yamlPack struct {
	Language string       `yaml:"language"`
	Name     string       `yaml:"name"`
	Locale   string       `yaml:"locale"`
	Messages yamlMessages `yaml:"messages"`
	Commands []yamlGroup  `yaml:"commands"`
}

type yamlMessages struct {
	Ready             string `yaml:"ready"`
	NotRecognized     string `yaml:"not_recognized"`
	ActionFailed      string `yaml:"action_failed"`
	CommandExecuted   string `yaml:"command_executed"`
	DictationPrompt   string `yaml:"dictation_prompt"`
	DictationRecorded string `yaml:"dictation_recorded"`
	DictationFailed   string `yaml:"dictation_failed"`
	OptionNotFound    string `yaml:"option_not_found"`
	PermissionDenied  string `yaml:"permission_denied"`
	Unavailable       string `yaml:"unavailable"`
	LanguageChanged   string `yaml:"language_changed"`
}

type yamlGroup struct {
	Action       string   `yaml:"action"`
	Phrases      []string `yaml:"phrases"`
	Confirmation string   `yaml:"confirmation"`
}

// Default returns the built-in English/Hindi command table.
func Default() *Table {
	table, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in command catalog is invalid: %v", err))
	}
	return table
}

// Load returns the catalog at path, or the built-in one when path is empty.
func Load(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command catalog %q: %w", path, err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse command catalog %q: %w", path, err)
	}
	return table, nil
}

// Parse decodes a YAML catalog into a validated table.
func Parse(data []byte) (*Table, error) {
	var catalog yamlCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	packs := make([]Pack, 0, len(catalog.Languages))
	for _, lp := range catalog.Languages {
		lang := Language(strings.TrimSpace(lp.Language))
		pack := Pack{
			Language:      lang,
			Name:          strings.TrimSpace(lp.Name),
			Locale:        strings.TrimSpace(lp.Locale),
			Messages:      lp.Messages.toMessages(),
			Confirmations: make(map[ActionID]string),
		}
		for _, group := range lp.Commands {
			action := ActionID(strings.TrimSpace(group.Action))
			if len(group.Phrases) == 0 {
				return nil, fmt.Errorf("language %q: action %q has no phrases", lang, action)
			}
			for _, phrase := range group.Phrases {
				pack.Entries = append(pack.Entries, Entry{Phrase: phrase, Language: lang, Action: action})
			}
			if text := strings.TrimSpace(group.Confirmation); text != "" {
				pack.Confirmations[action] = text
			}
		}
		if pack.Messages.CommandExecuted == "" {
			pack.Messages.CommandExecuted = "Command executed"
		}
		packs = append(packs, pack)
	}

	return NewTable(packs...)
}

func (m yamlMessages) toMessages() Messages {
	return Messages{
		Ready:             strings.TrimSpace(m.Ready),
		NotRecognized:     strings.TrimSpace(m.NotRecognized),
		ActionFailed:      strings.TrimSpace(m.ActionFailed),
		CommandExecuted:   strings.TrimSpace(m.CommandExecuted),
		DictationPrompt:   strings.TrimSpace(m.DictationPrompt),
		DictationRecorded: strings.TrimSpace(m.DictationRecorded),
		DictationFailed:   strings.TrimSpace(m.DictationFailed),
		OptionNotFound:    strings.TrimSpace(m.OptionNotFound),
		PermissionDenied:  strings.TrimSpace(m.PermissionDenied),
		Unavailable:       strings.TrimSpace(m.Unavailable),
		LanguageChanged:   strings.TrimSpace(m.LanguageChanged),
	}
}
