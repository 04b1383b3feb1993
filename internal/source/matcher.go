package source

import (
	"strings"
	"time"
	"unicode"

	"github.com/quantrail/price-sync/internal/models"
)

// minConfidence is the score a candidate must exceed to be accepted as
// a match
const minConfidence = 0.5

// MatchSymbols links locally-known companies to source reference
// entries. Local entries sharing a symbol are merged into one mapping
// retaining the union of index memberships, then the best-scoring
// master wins: exact symbol equality scores 1.0, substring containment
// 0.8/0.7, otherwise company-name token Jaccard similarity scaled by
// 0.6. Candidates scoring at or below 0.5 are treated as no match.
func MatchSymbols(local []models.LocalEntry, masters []models.ReferenceEntry) []*models.SymbolMapping {
	grouped := groupBySymbol(local)

	now := time.Now()
	mappings := make([]*models.SymbolMapping, 0, len(grouped))
	for _, m := range grouped {
		best, score := bestMatch(m, masters)
		if best != nil && score > minConfidence {
			m.RefCode = best.Code
			m.RefSymbol = best.Symbol
			m.RefName = best.Name
			m.Confidence = score
		}
		m.UpdatedAt = now
		mappings = append(mappings, m)
	}
	return mappings
}

// groupBySymbol merges duplicate local entries, preserving first-seen
// order and the union of index memberships
func groupBySymbol(local []models.LocalEntry) []*models.SymbolMapping {
	var order []string
	bySymbol := make(map[string]*models.SymbolMapping)

	for _, e := range local {
		m, ok := bySymbol[e.Symbol]
		if !ok {
			m = &models.SymbolMapping{
				Symbol:      e.Symbol,
				CompanyName: e.CompanyName,
				Industry:    e.Industry,
			}
			bySymbol[e.Symbol] = m
			order = append(order, e.Symbol)
		}
		if m.CompanyName == "" {
			m.CompanyName = e.CompanyName
		}
		if m.Industry == "" {
			m.Industry = e.Industry
		}
		if e.IndexName != "" && !contains(m.Indexes, e.IndexName) {
			m.Indexes = append(m.Indexes, e.IndexName)
		}
	}

	merged := make([]*models.SymbolMapping, 0, len(order))
	for _, sym := range order {
		merged = append(merged, bySymbol[sym])
	}
	return merged
}

// bestMatch scores every master against the mapping and returns the
// highest scorer. Ties keep the first-seen master. An exact symbol
// match short-circuits the scan.
func bestMatch(m *models.SymbolMapping, masters []models.ReferenceEntry) (*models.ReferenceEntry, float64) {
	var best *models.ReferenceEntry
	bestScore := 0.0

	localSym := strings.ToUpper(m.Symbol)
	localTokens := tokenize(m.CompanyName)

	for i := range masters {
		master := &masters[i]
		masterSym := strings.ToUpper(master.Symbol)

		var score float64
		switch {
		case localSym == masterSym:
			return master, 1.0
		case localSym != "" && strings.Contains(masterSym, localSym):
			score = 0.8
		case masterSym != "" && strings.Contains(localSym, masterSym):
			score = 0.7
		default:
			score = jaccard(localTokens, tokenize(master.Name)) * 0.6
		}

		if score > bestScore {
			bestScore = score
			best = master
		}
	}
	return best, bestScore
}

// tokenize lowercases a company name and splits it into a word set
func tokenize(name string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// jaccard computes token-set similarity: |intersection| / |union|
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
