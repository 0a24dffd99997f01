// Package catalog loads guideline definitions and derives the review form
// structures from them: category ordering, combined keys for paired codes,
// dropdown options and code compatibility warnings.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/svd-classify/internal/domain"
)

// guidelineFile is the on-disk YAML shape of a guideline.
type guidelineFile struct {
	Name        string           `yaml:"name" validate:"required"`
	Description string           `yaml:"description"`
	DefaultTier string           `yaml:"default_tier"`
	VUSTiers    []string         `yaml:"vus_tiers"`
	Strengths   []strengthEntry  `yaml:"strengths" validate:"required,min=1,dive"`
	Categories  []categoryEntry  `yaml:"categories" validate:"required,min=1,dive"`
	Thresholds  []thresholdEntry `yaml:"thresholds" validate:"required,min=1,dive"`
	Criteria    []criterionEntry `yaml:"criteria" validate:"required,min=1,dive"`
	Warnings    []warningEntry   `yaml:"warnings" validate:"dive"`
}

type strengthEntry struct {
	Shorthand string `yaml:"shorthand" validate:"required,alphanum,max=2,ne=PE,ne=NA"`
	Name      string `yaml:"name" validate:"required"`
	Points    int    `yaml:"points" validate:"ne=0"`
}

type categoryEntry struct {
	Name      string `yaml:"name" validate:"required"`
	SortOrder int    `yaml:"sort_order"`
}

type thresholdEntry struct {
	Tier     string `yaml:"tier" validate:"required"`
	MinScore int    `yaml:"min_score"`
}

type criterionEntry struct {
	Code        string   `yaml:"code" validate:"required,alphanum,max=10"`
	Polarity    string   `yaml:"polarity" validate:"required"`
	Category    string   `yaml:"category" validate:"required"`
	Description string   `yaml:"description"`
	Links       []string `yaml:"links" validate:"dive,url"`
	PairedWith  string   `yaml:"paired_with" validate:"omitempty,alphanum"`
	Strengths   []string `yaml:"strengths" validate:"required,min=1,dive,required"`
}

type warningEntry struct {
	Codes   []string `yaml:"codes" validate:"required,min=1"`
	With    []string `yaml:"with" validate:"required,min=1"`
	Level   string   `yaml:"level" validate:"omitempty,oneof=WARNING INFO"`
	Message string   `yaml:"message" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFile reads and validates one guideline YAML file.
func LoadFile(path string) (*domain.Guideline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading guideline file %s: %w", path, err)
	}
	g, err := LoadGuideline(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("loading guideline file %s: %w", path, err)
	}
	return g, nil
}

// LoadGuideline parses and validates a guideline definition.
func LoadGuideline(r io.Reader) (*domain.Guideline, error) {
	var f guidelineFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding guideline: %w", err)
	}

	if err := validate.Struct(&f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return nil, domain.NewValidationError(fe.Namespace(), "failed "+fe.Tag()+" check", fe.Value())
		}
		return nil, fmt.Errorf("validating guideline: %w", err)
	}

	return f.toGuideline()
}

// toGuideline runs the cross-field checks the struct tags cannot express and
// builds the immutable domain value.
func (f *guidelineFile) toGuideline() (*domain.Guideline, error) {
	g := &domain.Guideline{
		Name:        f.Name,
		Description: strings.TrimSpace(f.Description),
		DefaultTier: f.DefaultTier,
		VUSTiers:    append([]string(nil), f.VUSTiers...),
	}
	if g.DefaultTier == "" {
		g.DefaultTier = domain.DefaultTier
	}

	strengths := make(map[string]bool, len(f.Strengths))
	for _, s := range f.Strengths {
		if strengths[s.Shorthand] {
			return nil, domain.NewValidationError("strengths", "duplicate shorthand", s.Shorthand)
		}
		strengths[s.Shorthand] = true
		points := s.Points
		if points < 0 {
			points = -points
		}
		g.Strengths = append(g.Strengths, domain.Strength{Shorthand: s.Shorthand, Name: s.Name, Points: points})
	}

	categories := make(map[string]bool, len(f.Categories))
	for _, c := range f.Categories {
		if categories[c.Name] {
			return nil, domain.NewValidationError("categories", "duplicate category", c.Name)
		}
		categories[c.Name] = true
		g.Categories = append(g.Categories, domain.Category{Name: c.Name, SortOrder: c.SortOrder})
	}

	tiers := map[string]bool{g.DefaultTier: true}
	for i, t := range f.Thresholds {
		if tiers[t.Tier] {
			return nil, domain.NewValidationError("thresholds", "duplicate tier", t.Tier)
		}
		tiers[t.Tier] = true
		if i > 0 && t.MinScore <= f.Thresholds[i-1].MinScore {
			return nil, domain.NewValidationError("thresholds", "minimum scores must be strictly increasing", t.MinScore)
		}
		g.Thresholds = append(g.Thresholds, domain.TierThreshold{Tier: t.Tier, MinScore: t.MinScore})
	}
	for _, v := range f.VUSTiers {
		if !tiers[v] {
			return nil, domain.NewValidationError("vus_tiers", "not a tier of this guideline", v)
		}
	}

	byCode := make(map[string]int, len(f.Criteria))
	for _, c := range f.Criteria {
		if _, dup := byCode[c.Code]; dup {
			return nil, domain.NewValidationError("criteria", "duplicate code", c.Code)
		}
		polarity, err := domain.ParsePolarity(c.Polarity)
		if err != nil {
			return nil, domain.NewValidationError("criteria."+c.Code+".polarity", err.Error(), c.Polarity)
		}
		if !categories[c.Category] {
			return nil, domain.NewValidationError("criteria."+c.Code+".category", "unknown category", c.Category)
		}
		for _, s := range c.Strengths {
			if !strengths[s] {
				return nil, domain.NewValidationError("criteria."+c.Code+".strengths", "unknown strength", s)
			}
		}
		byCode[c.Code] = len(g.Criteria)
		g.Criteria = append(g.Criteria, domain.Criterion{
			Code:        c.Code,
			Polarity:    polarity,
			Category:    c.Category,
			Description: strings.TrimSpace(c.Description),
			Links:       append([]string(nil), c.Links...),
			PairedWith:  c.PairedWith,
			Strengths:   append([]string(nil), c.Strengths...),
		})
	}

	if err := linkPairs(g, byCode); err != nil {
		return nil, err
	}

	for _, w := range f.Warnings {
		for _, code := range append(append([]string(nil), w.Codes...), w.With...) {
			if _, ok := byCode[code]; !ok {
				return nil, domain.NewValidationError("warnings", "unknown code", code)
			}
		}
		level := w.Level
		if level == "" {
			level = "WARNING"
		}
		g.Warnings = append(g.Warnings, domain.CompatibilityRule{
			Codes:   append([]string(nil), w.Codes...),
			With:    append([]string(nil), w.With...),
			Level:   level,
			Message: strings.Join(strings.Fields(w.Message), " "),
		})
	}

	return g, nil
}

// linkPairs makes pairing symmetric. Either side may declare the pair; a code
// can belong to at most one pair, both codes sit in the same category and two
// benign codes cannot share a dropdown.
func linkPairs(g *domain.Guideline, byCode map[string]int) error {
	for i := range g.Criteria {
		c := &g.Criteria[i]
		if c.PairedWith == "" {
			continue
		}
		if c.PairedWith == c.Code {
			return domain.NewValidationError("criteria."+c.Code+".paired_with", "code cannot pair with itself", c.PairedWith)
		}
		j, ok := byCode[c.PairedWith]
		if !ok {
			return domain.NewValidationError("criteria."+c.Code+".paired_with", "unknown code", c.PairedWith)
		}
		partner := &g.Criteria[j]
		if partner.PairedWith != "" && partner.PairedWith != c.Code {
			return domain.NewValidationError("criteria."+partner.Code+".paired_with", "code is already paired with "+partner.PairedWith, c.Code)
		}
		if c.Polarity.IsBenign() && partner.Polarity.IsBenign() {
			return domain.NewValidationError("criteria."+c.Code+".paired_with", "benign codes cannot be paired", c.PairedWith)
		}
		if c.Category != partner.Category {
			return domain.NewValidationError("criteria."+c.Code+".paired_with", "paired codes must share a category", c.PairedWith)
		}
		partner.PairedWith = c.Code
	}
	return nil
}
