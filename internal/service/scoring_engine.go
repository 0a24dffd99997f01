package service

import (
	"fmt"

	"github.com/svd-classify/internal/domain"
)

// ScoreResult is the evidence point total of a ledger and the tier it maps to.
type ScoreResult struct {
	Score int    `json:"score"`
	Tier  string `json:"tier"`
}

// Score sums the points of every applied answer, subtracting benign codes and
// adding pathogenic or oncogenic ones, and maps the total onto the guideline's
// thresholds. Pending and not applied answers contribute nothing.
func Score(answers []*domain.CodeAnswer, g *domain.Guideline) (ScoreResult, error) {
	total := 0
	for _, a := range answers {
		if !a.IsApplied() {
			continue
		}
		crit, strength, err := g.CriterionStrength(a.Code, a.AppliedStrength)
		if err != nil {
			return ScoreResult{}, fmt.Errorf("scoring %s: %w", a.Token(), err)
		}
		total += crit.Polarity.Sign() * strength.Points
	}
	return ScoreResult{Score: total, Tier: g.TierFor(total)}, nil
}
