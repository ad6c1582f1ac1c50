package router

// MatchKind identifies which scoring channel produced a Match.
type MatchKind string

const (
	MatchIntent MatchKind = "intent" // single-skill booster keyword
	MatchMulti  MatchKind = "multi"  // multi-skill booster keyword
	MatchName   MatchKind = "name"   // term equals a skill name token
	MatchCorpus MatchKind = "corpus" // term is a description word
	MatchFuzzy  MatchKind = "fuzzy"  // substring overlap with a description word
)

// Match records one piece of evidence for a skill. Label is for display
// only; scoring never inspects it.
type Match struct {
	Label     string    `json:"label"`
	Kind      MatchKind `json:"kind"`
	Ambiguous bool      `json:"ambiguous,omitempty"`
}

// Signals is the output of intent extraction for one request.
type Signals struct {
	// Boost is the accumulated intent boost per skill name.
	Boost map[string]float64
	// Matches is the ordered intent provenance per skill name.
	Matches map[string][]Match
}

// ExtractSignals scans every token occurrence against the single-skill and
// multi-skill booster tables. Both tables are consulted independently, and
// a keyword that repeats adds its boost once per occurrence.
func (t *Tables) ExtractSignals(all []string) Signals {
	sig := Signals{
		Boost:   make(map[string]float64),
		Matches: make(map[string][]Match),
	}

	for _, tok := range all {
		if b, ok := t.Intent(tok); ok {
			sig.Boost[b.Skill] += b.Amount
			sig.Matches[b.Skill] = append(sig.Matches[b.Skill], Match{
				Label: "!" + tok,
				Kind:  MatchIntent,
			})
		}
		for _, b := range t.MultiIntent(tok) {
			sig.Boost[b.Skill] += b.Amount
			sig.Matches[b.Skill] = append(sig.Matches[b.Skill], Match{
				Label:     "!" + tok + "(multi)",
				Kind:      MatchMulti,
				Ambiguous: true,
			})
		}
	}
	return sig
}

// Empty reports whether no booster fired.
func (s Signals) Empty() bool {
	return len(s.Boost) == 0
}
