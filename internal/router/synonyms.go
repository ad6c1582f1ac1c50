package router

// Expand returns the search terms for a filtered token stream: each distinct
// token followed by its direct synonyms, without duplicates. Synonyms of
// synonyms are not followed. Order is first appearance, which keeps match
// provenance stable across calls.
func (t *Tables) Expand(filtered []string) []string {
	seen := make(map[string]struct{}, len(filtered)*2)
	terms := make([]string, 0, len(filtered)*2)

	add := func(term string) {
		if _, dup := seen[term]; dup {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}

	for _, tok := range filtered {
		add(tok)
	}
	for _, tok := range filtered {
		for _, syn := range t.Synonyms(tok) {
			add(syn)
		}
	}
	return terms
}
