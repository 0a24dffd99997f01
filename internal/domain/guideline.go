package domain

import (
	"fmt"
	"strings"
)

// Guideline is a named evidence framework: its criteria, the strengths they may
// be applied at, the category display order and the score to tier table.
// A loaded Guideline is never mutated; reloading produces a new value.
type Guideline struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	DefaultTier string              `json:"default_tier"`
	Thresholds  []TierThreshold     `json:"thresholds"`
	Categories  []Category          `json:"categories"`
	Strengths   []Strength          `json:"strengths"`
	Criteria    []Criterion         `json:"criteria"`
	Warnings    []CompatibilityRule `json:"warnings,omitempty"`
	VUSTiers    []string            `json:"vus_tiers,omitempty"`
}

// TierThreshold is the minimum total score for a tier. Thresholds are ordered
// ascending and strictly increasing.
type TierThreshold struct {
	Tier     string `json:"tier"`
	MinScore int    `json:"min_score"`
}

// Category groups codes on the review form.
type Category struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

// Strength is an intensity level at which a code may be applied.
// Points is a positive magnitude; the scoring engine applies the polarity sign.
type Strength struct {
	Shorthand string `json:"shorthand"`
	Name      string `json:"name"`
	Points    int    `json:"points"`
}

// Criterion is one evidence code.
type Criterion struct {
	Code        string   `json:"code"`
	Polarity    Polarity `json:"polarity"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Links       []string `json:"links,omitempty"`
	PairedWith  string   `json:"paired_with,omitempty"`
	Strengths   []string `json:"strengths"`
}

// CompatibilityRule raises an advisory message when any of Codes is applied
// together with any of With.
type CompatibilityRule struct {
	Codes   []string `json:"codes"`
	With    []string `json:"with"`
	Level   string   `json:"level"`
	Message string   `json:"message"`
}

// Criterion returns the criterion with the given code.
func (g *Guideline) Criterion(code string) (*Criterion, error) {
	for i := range g.Criteria {
		if g.Criteria[i].Code == code {
			return &g.Criteria[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s in guideline %s", ErrUnknownCode, code, g.Name)
}

// Strength returns the strength with the given shorthand.
func (g *Guideline) Strength(shorthand string) (*Strength, error) {
	for i := range g.Strengths {
		if g.Strengths[i].Shorthand == shorthand {
			return &g.Strengths[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s in guideline %s", ErrUnknownStrength, shorthand, g.Name)
}

// CriterionStrength returns the strength a code may be applied at.
// A strength that exists in the guideline but not for this code is unknown.
func (g *Guideline) CriterionStrength(code, shorthand string) (*Criterion, *Strength, error) {
	crit, err := g.Criterion(code)
	if err != nil {
		return nil, nil, err
	}
	if !crit.HasStrength(shorthand) {
		return nil, nil, fmt.Errorf("%w: %s cannot be applied at %s", ErrUnknownStrength, code, shorthand)
	}
	str, err := g.Strength(shorthand)
	if err != nil {
		return nil, nil, err
	}
	return crit, str, nil
}

// Codes returns every code of the guideline in catalog order.
func (g *Guideline) Codes() []string {
	codes := make([]string, 0, len(g.Criteria))
	for _, c := range g.Criteria {
		codes = append(codes, c.Code)
	}
	return codes
}

// CategorySortOrder returns the sort order of a category, or false if the
// guideline does not display it.
func (g *Guideline) CategorySortOrder(name string) (int, bool) {
	for _, c := range g.Categories {
		if c.Name == name {
			return c.SortOrder, true
		}
	}
	return 0, false
}

// TierFor walks the thresholds in ascending order and returns the highest tier
// whose minimum is at most score. Intervals are lower-inclusive.
func (g *Guideline) TierFor(score int) string {
	tier := g.defaultTier()
	for _, t := range g.Thresholds {
		if score >= t.MinScore {
			tier = t.Tier
		}
	}
	return tier
}

// HasTier reports whether name is a tier of this guideline, the default included.
func (g *Guideline) HasTier(name string) bool {
	if name == g.defaultTier() {
		return true
	}
	for _, t := range g.Thresholds {
		if t.Tier == name {
			return true
		}
	}
	return false
}

// Tiers lists the tier names from lowest to highest, the default first.
func (g *Guideline) Tiers() []string {
	tiers := []string{g.defaultTier()}
	for _, t := range g.Thresholds {
		tiers = append(tiers, t.Tier)
	}
	return tiers
}

// IsVUSTier reports whether a tier belongs to the uncertain-significance family.
// An explicit VUSTiers list wins; otherwise any tier named "VUS..." qualifies.
func (g *Guideline) IsVUSTier(tier string) bool {
	if len(g.VUSTiers) > 0 {
		for _, t := range g.VUSTiers {
			if strings.EqualFold(t, tier) {
				return true
			}
		}
		return false
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(tier)), "VUS")
}

func (g *Guideline) defaultTier() string {
	if g.DefaultTier == "" {
		return DefaultTier
	}
	return g.DefaultTier
}

// HasStrength reports whether the code may be applied at the given shorthand.
func (c *Criterion) HasStrength(shorthand string) bool {
	for _, s := range c.Strengths {
		if s == shorthand {
			return true
		}
	}
	return false
}

// IsPaired reports whether the code shares one dropdown with an alternate code.
func (c *Criterion) IsPaired() bool {
	return c.PairedWith != ""
}
