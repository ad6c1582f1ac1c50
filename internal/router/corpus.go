package router

import (
	"strings"
	"unicode/utf8"
)

// Corpus match weights, highest tier first.
const (
	nameMatchScore   = 1.5
	corpusMatchScore = 1.0
	fuzzyMatchScore  = 0.5

	// minFuzzyLen is the shortest term (and corpus word) eligible for
	// substring matching.
	minFuzzyLen = 4
)

// skillCorpus is the matchable vocabulary of one skill.
type skillCorpus struct {
	name  map[string]struct{}
	words map[string]struct{}
	fuzzy []string // corpus words eligible for substring matching
}

func newSkillCorpus(s Skill, t *Tables) *skillCorpus {
	c := &skillCorpus{
		name:  make(map[string]struct{}),
		words: make(map[string]struct{}),
	}

	for _, part := range strings.Split(lower(s.Name), "-") {
		if t.keep(part) {
			c.name[part] = struct{}{}
		}
	}

	for _, w := range t.filter(tokenize(s.Description)) {
		if _, dup := c.words[w]; dup {
			continue
		}
		c.words[w] = struct{}{}
		if utf8.RuneCountInString(w) >= minFuzzyLen {
			c.fuzzy = append(c.fuzzy, w)
		}
	}
	return c
}

// score applies the name > exact > fuzzy ladder to each term and returns
// the summed score with one Match per scoring term.
func (c *skillCorpus) score(terms []string) (float64, []Match) {
	var (
		total   float64
		matches []Match
	)
	for _, term := range terms {
		if _, ok := c.name[term]; ok {
			total += nameMatchScore
			matches = append(matches, Match{Label: term + "(name)", Kind: MatchName})
			continue
		}
		if _, ok := c.words[term]; ok {
			total += corpusMatchScore
			matches = append(matches, Match{Label: term, Kind: MatchCorpus})
			continue
		}
		if c.fuzzyHit(term) {
			total += fuzzyMatchScore
			matches = append(matches, Match{Label: term + "~", Kind: MatchFuzzy})
		}
	}
	return total, matches
}

// fuzzyHit reports whether term and some corpus word contain one another.
// Terms shorter than minFuzzyLen never match.
func (c *skillCorpus) fuzzyHit(term string) bool {
	if utf8.RuneCountInString(term) < minFuzzyLen {
		return false
	}
	for _, w := range c.fuzzy {
		if strings.Contains(term, w) || strings.Contains(w, term) {
			return true
		}
	}
	return false
}
