// Package match implements the relevance rule engine: three keyword
// blocks matched by lemma containment, an exclusion veto list and a
// block-count threshold. Evaluation is pure: no hidden state, no I/O.
package match

import (
	"strings"

	"jobradar/internal/lemma"
	"jobradar/internal/model"
)

// Built-in anti-noise phrases that suppress non-vacancy content such as
// candidate self-promotion and course advertising. Applied on top of the
// user's own exclusion list.
var systemExclusions = []string{
	"рекомендую кандидата",
	"рекомендую специалиста",
	"кандидат в поиске работы",
	"ищу работу",
	"открыт к предложениям",
	"open to work",
	"курс для",
	"курсы для",
	"вебинар для",
	"обучение для",
	"мастер-класс для",
}

// Profile is the user's matching configuration in raw term form, as
// produced by the input parser.
type Profile struct {
	TitleTerms    []string
	ProfileTerms  []string
	IndustryTerms []string
	Exclusions    []string

	// Threshold is the minimum number of distinct blocks that must
	// register a match, 1 to 3. It is clamped to the number of
	// non-empty blocks so that a high threshold with few configured
	// blocks stays satisfiable.
	Threshold int
}

type phrase struct {
	term   string
	lemmas []string
}

// Matcher is a Profile compiled against a Normalizer. Keyword phrases
// are lemmatized once at construction so per-message evaluation only
// does set lookups.
type Matcher struct {
	norm       lemma.Normalizer
	title      []phrase
	profile    []phrase
	industry   []phrase
	exclusions []phrase
	threshold  int
	active     int
}

// New compiles a profile. Empty blocks compile to nothing and never
// match; they also do not count toward the threshold.
func New(p Profile, n lemma.Normalizer) *Matcher {
	m := &Matcher{
		norm:       n,
		title:      compile(p.TitleTerms, n),
		profile:    compile(p.ProfileTerms, n),
		industry:   compile(p.IndustryTerms, n),
		exclusions: compile(append(append([]string{}, p.Exclusions...), systemExclusions...), n),
	}

	for _, block := range [][]phrase{m.title, m.profile, m.industry} {
		if len(block) > 0 {
			m.active++
		}
	}

	t := p.Threshold
	if t < 1 {
		t = 1
	}
	if t > 3 {
		t = 3
	}
	if m.active > 0 && t > m.active {
		t = m.active
	}
	m.threshold = t

	return m
}

// compile lemmatizes each term and deduplicates by lemma sequence,
// keeping the first-seen spelling of each phrase.
func compile(terms []string, n lemma.Normalizer) []phrase {
	var out []phrase
	seen := make(map[string]struct{})
	for _, term := range terms {
		lemmas := lemma.Extract(term, n)
		if len(lemmas) == 0 {
			continue
		}
		key := strings.Join(lemmas, " ")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, phrase{term: term, lemmas: lemmas})
	}
	return out
}

// Evaluate classifies one message text. A phrase matches when all of its
// lemmas occur in the message lemma set, independent of word order. A
// matching exclusion phrase forces relevance to false regardless of how
// many blocks were hit.
func (m *Matcher) Evaluate(text string) model.MatchResult {
	set := lemma.NewSet(lemma.Extract(text, m.norm))

	exclusionTerms := matchedTerms(m.exclusions, set)
	excluded := len(exclusionTerms) > 0

	titleTerms := matchedTerms(m.title, set)
	profileTerms := matchedTerms(m.profile, set)
	industryTerms := matchedTerms(m.industry, set)

	hits := 0
	for _, terms := range [][]string{titleTerms, profileTerms, industryTerms} {
		if len(terms) > 0 {
			hits++
		}
	}

	if m.active == 0 || hits < m.threshold || excluded {
		return model.MatchResult{
			Excluded:       excluded,
			ExclusionTerms: exclusionTerms,
		}
	}

	return model.MatchResult{
		Relevant:      true,
		Score:         len(titleTerms) + len(profileTerms) + len(industryTerms),
		TitleTerms:    titleTerms,
		ProfileTerms:  profileTerms,
		IndustryTerms: industryTerms,
	}
}

// matchedTerms returns every phrase whose full lemma sequence is
// contained in the message lemma set, not just the first.
func matchedTerms(phrases []phrase, set lemma.Set) []string {
	var out []string
	for _, p := range phrases {
		if set.ContainsAll(p.lemmas) {
			out = append(out, p.term)
		}
	}
	return out
}
