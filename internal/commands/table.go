// Package commands holds the language-partitioned command table and the phrase resolver.
package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Language is the tag of one command partition, for example "en" or "hi".
type Language string

const (
	LanguagePrimary   Language = "en"
	LanguageSecondary Language = "hi"
)

// ErrUnknownLanguage indicates a language tag with no partition in the table.
var ErrUnknownLanguage = errors.New("unknown language")

// Entry maps one trigger phrase to an action within a language.
type Entry struct {
	Phrase   string
	Language Language
	Action   ActionID
}

// Messages are the runtime utterances of one language.
type Messages struct {
	Ready             string
	NotRecognized     string
	ActionFailed      string
	CommandExecuted   string
	DictationPrompt   string
	DictationRecorded string
	DictationFailed   string
	OptionNotFound    string
	PermissionDenied  string
	Unavailable       string
	LanguageChanged   string
}

// Pack is the complete phrase set and message catalogue of one language.
type Pack struct {
	Language      Language
	Name          string
	Locale        string
	Messages      Messages
	Entries       []Entry
	Confirmations map[ActionID]string
}

// Confirmation returns the utterance confirming action, or the generic fallback.
func (p *Pack) Confirmation(action ActionID) string {
	if text, ok := p.Confirmations[action]; ok && text != "" {
		return text
	}
	return p.Messages.CommandExecuted
}

// Table is the immutable set of language packs.
type Table struct {
	packs map[Language]*Pack
	order []Language
}

// NewTable validates packs and builds a table. Phrases are normalized and must be
// unique within a language, and every language must cover the same action set.
func NewTable(packs ...Pack) (*Table, error) {
	if len(packs) == 0 {
		return nil, errors.New("command table needs at least one language")
	}

	t := &Table{packs: make(map[Language]*Pack, len(packs))}
	for _, p := range packs {
		lang := Language(strings.TrimSpace(string(p.Language)))
		if lang == "" {
			return nil, errors.New("language pack is missing its language tag")
		}
		if _, exists := t.packs[lang]; exists {
			return nil, fmt.Errorf("language %q defined twice", lang)
		}
		if strings.TrimSpace(p.Locale) == "" {
			return nil, fmt.Errorf("language %q: locale must not be empty", lang)
		}

		pack := p
		pack.Language = lang
		pack.Entries = make([]Entry, 0, len(p.Entries))
		seen := make(map[string]ActionID, len(p.Entries))
		for _, entry := range p.Entries {
			phrase := normalize(entry.Phrase)
			if phrase == "" {
				return nil, fmt.Errorf("language %q: empty phrase for action %q", lang, entry.Action)
			}
			if entry.Action == "" {
				return nil, fmt.Errorf("language %q: phrase %q has no action", lang, phrase)
			}
			if prior, dup := seen[phrase]; dup {
				return nil, fmt.Errorf("language %q: phrase %q mapped twice (%s, %s)", lang, phrase, prior, entry.Action)
			}
			seen[phrase] = entry.Action
			pack.Entries = append(pack.Entries, Entry{Phrase: phrase, Language: lang, Action: entry.Action})
		}
		pack.Confirmations = make(map[ActionID]string, len(p.Confirmations))
		for action, text := range p.Confirmations {
			pack.Confirmations[action] = text
		}

		t.packs[lang] = &pack
		t.order = append(t.order, lang)
	}

	if err := t.checkParity(); err != nil {
		return nil, err
	}
	return t, nil
}

// checkParity rejects tables whose languages disagree on the available actions.
func (t *Table) checkParity() error {
	reference := t.order[0]
	want := t.actionSet(reference)
	for _, lang := range t.order[1:] {
		got := t.actionSet(lang)
		if missing := difference(want, got); len(missing) > 0 {
			return fmt.Errorf("language %q is missing actions present in %q: %s", lang, reference, strings.Join(missing, ", "))
		}
		if extra := difference(got, want); len(extra) > 0 {
			return fmt.Errorf("language %q defines actions missing from %q: %s", lang, reference, strings.Join(extra, ", "))
		}
	}
	return nil
}

func (t *Table) actionSet(lang Language) map[ActionID]struct{} {
	set := make(map[ActionID]struct{})
	for _, entry := range t.packs[lang].Entries {
		set[entry.Action] = struct{}{}
	}
	return set
}

func difference(a, b map[ActionID]struct{}) []string {
	out := make([]string, 0)
	for action := range a {
		if _, ok := b[action]; !ok {
			out = append(out, string(action))
		}
	}
	sort.Strings(out)
	return out
}

// Languages returns the language tags in table order.
func (t *Table) Languages() []Language {
	out := make([]Language, len(t.order))
	copy(out, t.order)
	return out
}

// Pack returns the language pack for lang.
func (t *Table) Pack(lang Language) (*Pack, error) {
	pack, ok := t.packs[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	return pack, nil
}

// Has reports whether lang has a partition.
func (t *Table) Has(lang Language) bool {
	_, ok := t.packs[lang]
	return ok
}

// Entries returns a copy of the phrases of lang in table order.
func (t *Table) Entries(lang Language) []Entry {
	pack, ok := t.packs[lang]
	if !ok {
		return nil
	}
	out := make([]Entry, len(pack.Entries))
	copy(out, pack.Entries)
	return out
}

// Next returns the language following lang in table order, wrapping around.
func (t *Table) Next(lang Language) Language {
	for i, candidate := range t.order {
		if candidate == lang {
			return t.order[(i+1)%len(t.order)]
		}
	}
	return t.order[0]
}

// normalize trims and lower-cases input the way transcripts are normalized.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
