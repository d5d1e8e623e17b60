package commands

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogHasParity(t *testing.T) {
	table := Default()
	require.Equal(t, []Language{LanguagePrimary, LanguageSecondary}, table.Languages())

	en, err := table.Pack(LanguagePrimary)
	require.NoError(t, err)
	require.Equal(t, "en-US", en.Locale)
	require.NotEmpty(t, en.Messages.NotRecognized)

	hi, err := table.Pack(LanguageSecondary)
	require.NoError(t, err)
	require.Equal(t, "hi-IN", hi.Locale)
	require.NotEmpty(t, hi.Messages.DictationPrompt)

	require.Equal(t, table.actionSet(LanguagePrimary), table.actionSet(LanguageSecondary))
}

func TestPackConfirmationFallsBack(t *testing.T) {
	en, err := Default().Pack(LanguagePrimary)
	require.NoError(t, err)

	require.Equal(t, "Opening settings", en.Confirmation(ActionOpenSettings))
	require.Equal(t, "Command executed", en.Confirmation(ActionGoBack))
}

func TestNewTableRejectsDuplicatePhrases(t *testing.T) {
	_, err := NewTable(Pack{
		Language: LanguagePrimary,
		Locale:   "en-US",
		Entries: []Entry{
			{Phrase: "Home", Action: ActionGoHome},
			{Phrase: " home ", Action: ActionOpenHelp},
		},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "mapped twice")
}

func TestNewTableAllowsSynonyms(t *testing.T) {
	table, err := NewTable(Pack{
		Language: LanguagePrimary,
		Locale:   "en-US",
		Entries: []Entry{
			{Phrase: "home", Action: ActionGoHome},
			{Phrase: "dashboard", Action: ActionGoHome},
		},
	})
	require.NoError(t, err)
	require.Len(t, table.Entries(LanguagePrimary), 2)
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		packs   []Pack
		wantErr string
	}{
		{name: "no packs", packs: nil, wantErr: "at least one language"},
		{name: "missing tag", packs: []Pack{{Locale: "en-US"}}, wantErr: "missing its language tag"},
		{name: "missing locale", packs: []Pack{{Language: "en"}}, wantErr: "locale"},
		{name: "empty phrase", packs: []Pack{{Language: "en", Locale: "en-US", Entries: []Entry{{Phrase: " ", Action: ActionGoHome}}}}, wantErr: "empty phrase"},
		{name: "missing action", packs: []Pack{{Language: "en", Locale: "en-US", Entries: []Entry{{Phrase: "home"}}}}, wantErr: "no action"},
		{name: "duplicate language", packs: []Pack{{Language: "en", Locale: "en-US"}, {Language: "en", Locale: "en-GB"}}, wantErr: "defined twice"},
		{
			name: "parity missing",
			packs: []Pack{
				{Language: "en", Locale: "en-US", Entries: []Entry{{Phrase: "home", Action: ActionGoHome}, {Phrase: "help", Action: ActionOpenHelp}}},
				{Language: "hi", Locale: "hi-IN", Entries: []Entry{{Phrase: "होम", Action: ActionGoHome}}},
			},
			wantErr: "missing actions",
		},
		{
			name: "parity extra",
			packs: []Pack{
				{Language: "en", Locale: "en-US", Entries: []Entry{{Phrase: "home", Action: ActionGoHome}}},
				{Language: "hi", Locale: "hi-IN", Entries: []Entry{{Phrase: "होम", Action: ActionGoHome}, {Phrase: "सहायता", Action: ActionOpenHelp}}},
			},
			wantErr: "defines actions missing",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTable(tc.packs...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestTableLookups(t *testing.T) {
	table := Default()

	require.True(t, table.Has(LanguageSecondary))
	require.False(t, table.Has("fr"))

	_, err := table.Pack("fr")
	require.ErrorIs(t, err, ErrUnknownLanguage)

	require.Equal(t, LanguageSecondary, table.Next(LanguagePrimary))
	require.Equal(t, LanguagePrimary, table.Next(LanguageSecondary))
	require.Equal(t, LanguagePrimary, table.Next("fr"))

	entries := table.Entries(LanguagePrimary)
	entries[0].Phrase = "mutated"
	require.NotEqual(t, "mutated", table.Entries(LanguagePrimary)[0].Phrase)
	require.Nil(t, table.Entries("fr"))
}

func TestParseYAMLCatalog(t *testing.T) {
	table, err := Parse([]byte(`
languages:
  - language: en
    locale: en-GB
    messages:
      not_recognized: Pardon?
    commands:
      - action: go_home
        phrases: [Home, "Go Home"]
        confirmation: Off we go
`))
	require.NoError(t, err)

	pack, err := table.Pack(LanguagePrimary)
	require.NoError(t, err)
	require.Equal(t, "en-GB", pack.Locale)
	require.Equal(t, "Pardon?", pack.Messages.NotRecognized)
	require.Equal(t, "Command executed", pack.Messages.CommandExecuted)
	require.Equal(t, "Off we go", pack.Confirmation(ActionGoHome))
	require.Equal(t, "go home", pack.Entries[1].Phrase)
}

func TestParseYAMLRejectsActionWithoutPhrases(t *testing.T) {
	_, err := Parse([]byte(`
languages:
  - language: en
    locale: en-US
    commands:
      - action: go_home
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "no phrases")
}

func TestParseYAMLSyntaxError(t *testing.T) {
	_, err := Parse([]byte("languages: [unterminated"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode yaml")
}

func TestLoadFallsBackToBuiltInCatalog(t *testing.T) {
	table, err := Load(" ")
	require.NoError(t, err)
	require.Equal(t, Default().Languages(), table.Languages())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read command catalog")
}
