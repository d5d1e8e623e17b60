package commands

import (
	"strings"
	"unicode/utf8"
)

// Match is the outcome of a successful resolution.
type Match struct {
	Action ActionID
	Phrase string
}

// Resolver maps transcripts to actions using bidirectional substring containment.
type Resolver struct {
	table *Table
}

// NewResolver returns a resolver over table.
func NewResolver(table *Table) Resolver {
	return Resolver{table: table}
}

// Resolve returns the best match for transcript in lang.
//
// A phrase matches when the normalized transcript contains it or it contains the
// transcript. The longest matching phrase (in runes) wins, even over a phrase equal
// to the transcript, and ties keep table order.
func (r Resolver) Resolve(transcript string, lang Language) (Match, bool) {
	if r.table == nil {
		return Match{}, false
	}
	command := normalize(transcript)
	if command == "" {
		return Match{}, false
	}

	pack, ok := r.table.packs[lang]
	if !ok {
		return Match{}, false
	}

	var (
		best    Match
		bestLen = -1
	)
	for _, entry := range pack.Entries {
		if !containsEither(command, entry.Phrase) {
			continue
		}
		if n := utf8.RuneCountInString(entry.Phrase); n > bestLen {
			best = Match{Action: entry.Action, Phrase: entry.Phrase}
			bestLen = n
		}
	}
	return best, bestLen >= 0
}

// MatchLongest applies the resolver's containment rule to an arbitrary candidate set
// and returns the index of the winning candidate, or -1.
func MatchLongest(input string, candidates []string) int {
	needle := normalize(input)
	if needle == "" {
		return -1
	}
	best, bestLen := -1, -1
	for i, candidate := range candidates {
		c := normalize(candidate)
		if c == "" || !containsEither(needle, c) {
			continue
		}
		if n := utf8.RuneCountInString(c); n > bestLen {
			best, bestLen = i, n
		}
	}
	return best
}

func containsEither(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}
