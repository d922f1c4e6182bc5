package signals

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"

	ac "github.com/anknown/ahocorasick"
)

// KeywordMatcher finds any of a fixed set of keywords in a text in a single pass.
// It is immutable once built and safe for concurrent use.
type KeywordMatcher struct {
	machine  ac.Machine
	keywords []string
}

// NewKeywordMatcher builds the Aho-Corasick automaton for keywords.
func NewKeywordMatcher(keywords []string) (*KeywordMatcher, error) {
	var kws []string
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			kws = append(kws, kw)
		}
	}
	slices.Sort(kws)
	kws = slices.Compact(kws)
	if len(kws) == 0 {
		return nil, fmt.Errorf("no keywords provided")
	}

	dict := make([][]rune, len(kws))
	for i, kw := range kws {
		dict[i] = []rune(kw)
	}

	m := &KeywordMatcher{keywords: kws}
	if err := m.machine.Build(dict); err != nil {
		return nil, fmt.Errorf("build ACAutomaton: %w", err)
	}
	return m, nil
}

// Find returns the distinct keywords present in text, sorted.
func (m *KeywordMatcher) Find(text string) []string {
	if text == "" {
		return nil
	}
	terms := m.machine.MultiPatternSearch([]rune(strings.ToLower(text)), false)
	seen := make(map[string]bool, len(terms))
	var out []string
	for _, term := range terms {
		word := string(term.Word)
		if !seen[word] {
			seen[word] = true
			out = append(out, word)
		}
	}
	slices.Sort(out)
	return out
}

// Keywords returns the normalized keyword list.
func (m *KeywordMatcher) Keywords() []string {
	return slices.Clone(m.keywords)
}

// LoadKeywords reads one keyword per line, skipping blanks and # comments.
func LoadKeywords(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var kws []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kws = append(kws, strings.ToLower(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(kws) == 0 {
		return nil, fmt.Errorf("no keywords found in %s", filename)
	}
	return kws, nil
}
