package catalog

import (
	"github.com/svd-classify/internal/domain"
)

// Warnings evaluates the guideline's compatibility rules against the applied
// codes and returns one "LEVEL: message" line per rule that fires, in rule
// order. Warnings are advisory and never block a transition.
func Warnings(g *domain.Guideline, applied []string) []string {
	if len(g.Warnings) == 0 || len(applied) == 0 {
		return nil
	}
	set := make(map[string]bool, len(applied))
	for _, code := range applied {
		set[code] = true
	}

	var out []string
	for _, rule := range g.Warnings {
		if anyIn(rule.Codes, set) && anyIn(rule.With, set) {
			out = append(out, rule.Level+": "+rule.Message)
		}
	}
	return out
}

func anyIn(codes []string, set map[string]bool) bool {
	for _, c := range codes {
		if set[c] {
			return true
		}
	}
	return false
}
