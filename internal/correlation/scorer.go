// Package correlation scores candidate products against a source product.
package correlation

import (
	"strings"
	"unicode"

	"listing-service/internal/domain"
)

const (
	DefaultMinScore = 0.35

	brandBonus     = 0.2
	modelBonus     = 0.2
	brandConflict  = 0.3
	reasonSelf     = "same product"
	reasonBrand    = "brand conflict"
	reasonLowScore = "below threshold"
	reasonMatched  = "matched"
)

// Match is the verdict for one candidate.
type Match struct {
	Score    float64
	Approved bool
	Reason   string
}

type Scorer struct {
	minScore float64
}

func NewScorer(minScore float64) *Scorer {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Scorer{minScore: minScore}
}

// Score compares title tokens by Jaccard similarity and adjusts for brand and
// model. Differing non-empty brands always reject the candidate.
func (s *Scorer) Score(source, candidate *domain.Product) Match {
	if strings.EqualFold(source.ID, candidate.ID) {
		return Match{Reason: reasonSelf}
	}

	score := jaccard(tokens(source.Title), tokens(candidate.Title))

	srcBrand, candBrand := normalize(source.Brand), normalize(candidate.Brand)
	conflict := srcBrand != "" && candBrand != "" && srcBrand != candBrand
	switch {
	case conflict:
		score -= brandConflict
	case srcBrand != "" && srcBrand == candBrand:
		score += brandBonus
	}
	if m := normalize(source.Model); m != "" && m == normalize(candidate.Model) {
		score += modelBonus
	}
	if score < 0 {
		score = 0
	}

	switch {
	case conflict:
		return Match{Score: score, Reason: reasonBrand}
	case score >= s.minScore:
		return Match{Score: score, Approved: true, Reason: reasonMatched}
	default:
		return Match{Score: score, Reason: reasonLowScore}
	}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func tokens(title string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[t] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
