package service

import (
	"fmt"
	"strings"

	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/domain"
)

// Selection is one parsed "<code>_<value>" token.
type Selection struct {
	Code     string
	State    domain.AnswerState
	Strength string
}

// ParseSelections parses reviewer selections. A token may combine the codes of
// a paired dropdown with "|", e.g. "OP1_SU|SBP1_NA". A code may appear at most
// once across all tokens.
func ParseSelections(g *domain.Guideline, tokens []string) ([]Selection, error) {
	var out []Selection
	seen := make(map[string]bool)
	for _, token := range tokens {
		for _, part := range strings.Split(token, catalog.ValueSeparator) {
			sel, err := parseSelection(g, strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			if seen[sel.Code] {
				return nil, domain.NewValidationError("selections", "code selected more than once", sel.Code)
			}
			seen[sel.Code] = true
			out = append(out, sel)
		}
	}
	return out, nil
}

func parseSelection(g *domain.Guideline, part string) (Selection, error) {
	fields := strings.Split(part, catalog.KeySeparator)
	if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
		return Selection{}, fmt.Errorf("%w: %q", domain.ErrInvalidToken, part)
	}
	code, value := fields[0], fields[1]

	if _, err := g.Criterion(code); err != nil {
		return Selection{}, err
	}
	switch value {
	case domain.PendingToken:
		return Selection{Code: code, State: domain.ANSWER_PENDING}, nil
	case domain.NotAppliedToken:
		return Selection{Code: code, State: domain.ANSWER_NOT_APPLIED}, nil
	}
	if _, _, err := g.CriterionStrength(code, value); err != nil {
		return Selection{}, err
	}
	return Selection{Code: code, State: domain.ANSWER_APPLIED, Strength: value}, nil
}

// applySelections writes selections onto a ledger and returns the answers that
// changed. Every selected code must already have an answer.
func applySelections(ledger []*domain.CodeAnswer, selections []Selection) ([]*domain.CodeAnswer, error) {
	byCode := make(map[string]*domain.CodeAnswer, len(ledger))
	for _, a := range ledger {
		byCode[a.Code] = a
	}
	var changed []*domain.CodeAnswer
	for _, s := range selections {
		a, ok := byCode[s.Code]
		if !ok {
			return nil, fmt.Errorf("%w: no answer for %s on this check", domain.ErrUnknownCode, s.Code)
		}
		if a.State == s.State && a.AppliedStrength == s.Strength {
			continue
		}
		a.Set(s.State, s.Strength)
		changed = append(changed, a)
	}
	return changed, nil
}

// pairConflicts lists the pairs of a ledger where both codes are applied.
func pairConflicts(g *domain.Guideline, ledger []*domain.CodeAnswer) []string {
	applied := make(map[string]bool)
	for _, a := range ledger {
		if a.IsApplied() {
			applied[a.Code] = true
		}
	}
	seen := make(map[string]bool)
	var conflicts []string
	for i := range g.Criteria {
		c := &g.Criteria[i]
		if !c.IsPaired() || !applied[c.Code] || !applied[c.PairedWith] {
			continue
		}
		key, err := catalog.KeyFor(g, c)
		if err != nil || seen[key] {
			continue
		}
		seen[key] = true
		conflicts = append(conflicts, key)
	}
	return conflicts
}

// answersFromSelections builds a throwaway ledger for previews.
func answersFromSelections(selections []Selection) []*domain.CodeAnswer {
	answers := make([]*domain.CodeAnswer, 0, len(selections))
	for _, s := range selections {
		a := &domain.CodeAnswer{Code: s.Code}
		a.Set(s.State, s.Strength)
		answers = append(answers, a)
	}
	return answers
}
