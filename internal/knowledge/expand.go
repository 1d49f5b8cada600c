package knowledge

import "strings"

// Expand widens a user query into a set of variants using the catalog:
// for every item whose title, synonyms, or must-terms overlap the query,
// the item's title and all of its synonyms and must-terms join the set.
// The original query is always the first element, and a query with zero
// catalog overlap expands to exactly itself. Compensates for vocabulary
// mismatch between user phrasing and source-document terminology.
func Expand(idx *Index, query string) []string {
	variants := []string{query}
	seen := map[string]bool{strings.ToLower(query): true}

	add := func(v string) {
		if v == "" {
			return
		}
		key := strings.ToLower(v)
		if seen[key] {
			return
		}
		seen[key] = true
		variants = append(variants, v)
	}

	lowerQuery := strings.ToLower(query)

	for i := range idx.Items {
		item := &idx.Items[i]
		if !overlaps(lowerQuery, item) {
			continue
		}

		add(item.Title)
		for _, syn := range item.Synonyms {
			add(syn)
		}
		for _, term := range item.MustTerms {
			add(term)
		}
	}

	return variants
}

// overlaps reports whether any of the item's phrases and the query contain
// one another, case-insensitively.
func overlaps(lowerQuery string, item *Item) bool {
	phrases := make([]string, 0, 1+len(item.Synonyms)+len(item.MustTerms))
	phrases = append(phrases, item.Title)
	phrases = append(phrases, item.Synonyms...)
	phrases = append(phrases, item.MustTerms...)

	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		lowerPhrase := strings.ToLower(phrase)
		if strings.Contains(lowerQuery, lowerPhrase) || strings.Contains(lowerPhrase, lowerQuery) {
			return true
		}
	}
	return false
}
