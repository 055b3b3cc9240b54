// Package classify scores sessions: it resolves which issue a session
// belongs to, how confident that attribution is, and whether the session
// looks like a meeting.
package classify

import (
	"regexp"
	"strings"

	"github.com/fakeyudi/timeslice/internal/session"
)

var keyPattern = regexp.MustCompile(`[A-Z]+-\d+`)

// ExtractKey returns the first issue key in text, or "".
func ExtractKey(text string) string {
	return keyPattern.FindString(text)
}

// ExtractKeys returns every issue key in text, in order of appearance.
func ExtractKeys(text string) []string {
	return keyPattern.FindAllString(text, -1)
}

var (
	keywordSplit     = regexp.MustCompile(`[\s\-_()\[\]]+`)
	keywordStopwords = map[string]bool{
		"the": true, "and": true, "for": true, "with": true, "from": true, "this": true,
		"that": true, "will": true, "have": true, "been": true, "were": true, "are": true,
	}
)

// ExtractKeywords lowercases text, splits it on whitespace, dashes,
// underscores and brackets, and returns the distinct words longer than
// three characters that are not stopwords.
func ExtractKeywords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range keywordSplit.Split(strings.ToLower(text), -1) {
		if len(w) <= 3 || keywordStopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// KeywordMap maps summary keywords to issue keys, remembering the order
// in which keywords were first added.
type KeywordMap struct {
	order  []string
	issues map[string][]string
}

// NewKeywordMap rebuilds a map from persisted entries.
func NewKeywordMap(entries []session.KeywordEntry) *KeywordMap {
	m := &KeywordMap{issues: make(map[string][]string)}
	for _, e := range entries {
		for _, key := range e.Issues {
			m.Add(e.Keyword, key)
		}
	}
	return m
}

// Add records that issue key mentions keyword.
func (m *KeywordMap) Add(keyword, key string) {
	if m.issues == nil {
		m.issues = make(map[string][]string)
	}
	list, ok := m.issues[keyword]
	if !ok {
		m.order = append(m.order, keyword)
	}
	for _, k := range list {
		if k == key {
			return
		}
	}
	m.issues[keyword] = append(list, key)
}

// Index adds every keyword of summary for key and returns how many
// keywords were extracted.
func (m *KeywordMap) Index(key, summary string) int {
	kws := ExtractKeywords(summary)
	for _, kw := range kws {
		m.Add(kw, key)
	}
	return len(kws)
}

// Lookup returns the issues recorded for keyword.
func (m *KeywordMap) Lookup(keyword string) []string {
	if m == nil {
		return nil
	}
	return m.issues[keyword]
}

// Len returns the number of distinct keywords.
func (m *KeywordMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Entries returns the map in insertion order for persistence.
func (m *KeywordMap) Entries() []session.KeywordEntry {
	if m == nil {
		return nil
	}
	out := make([]session.KeywordEntry, 0, len(m.order))
	for _, kw := range m.order {
		out = append(out, session.KeywordEntry{Keyword: kw, Issues: append([]string(nil), m.issues[kw]...)})
	}
	return out
}

// rank returns the position of each issue by first appearance in the map.
func (m *KeywordMap) rank() map[string]int {
	r := make(map[string]int)
	if m == nil {
		return r
	}
	for _, kw := range m.order {
		for _, key := range m.issues[kw] {
			if _, ok := r[key]; !ok {
				r[key] = len(r)
			}
		}
	}
	return r
}

// KnownIssues is the set of issue keys assigned to the user.
type KnownIssues map[string]bool

// NewKnownIssues builds a set from keys.
func NewKnownIssues(keys ...string) KnownIssues {
	k := make(KnownIssues, len(keys))
	for _, key := range keys {
		k[key] = true
	}
	return k
}

func (k KnownIssues) Has(key string) bool { return key != "" && k[key] }
