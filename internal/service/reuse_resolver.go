package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/svd-classify/internal/domain"
)

// daysPerMonth approximates a calendar month as 365/12 days.
const daysPerMonth = 365.0 / 12

// ChoiceOption is one answer offered on the previous classifications tab.
type ChoiceOption struct {
	Value            domain.PreviousChoice `json:"value"`
	Label            string                `json:"label"`
	ClassificationID *int64                `json:"classification_id,omitempty"`
}

// PreviousChoices is what the previous classifications tab offers for the
// current check.
type PreviousChoices struct {
	Options     []ChoiceOption         `json:"options"`
	Previous    *domain.Classification `json:"previous,omitempty"`
	NeedsReview bool                   `json:"needs_review"`
}

// Offers reports whether choice is one of the options.
func (p PreviousChoices) Offers(choice domain.PreviousChoice) bool {
	for _, o := range p.Options {
		if o.Value == choice {
			return true
		}
	}
	return false
}

// ReuseResolver decides whether an earlier classification of the same variant
// may be reused instead of scoring again.
type ReuseResolver struct {
	vusMonths   int
	otherMonths int
	now         func() time.Time
}

// NewReuseResolver creates a resolver with review windows in months.
func NewReuseResolver(cfg domain.SignoffConfig, now func() time.Time) *ReuseResolver {
	if now == nil {
		now = time.Now
	}
	defaults := domain.DefaultSignoffConfig()
	r := &ReuseResolver{vusMonths: cfg.VUSReviewMonths, otherMonths: cfg.ReviewMonths, now: now}
	if r.vusMonths <= 0 {
		r.vusMonths = defaults.VUSReviewMonths
	}
	if r.otherMonths <= 0 {
		r.otherMonths = defaults.ReviewMonths
	}
	return r
}

// ReviewWindow returns how long a classification with the given tier may be
// reused before it has to be reviewed again.
func (r *ReuseResolver) ReviewWindow(g *domain.Guideline, tier string) time.Duration {
	months := r.otherMonths
	if g.IsVUSTier(tier) {
		months = r.vusMonths
	}
	return monthsToDuration(months)
}

// NeedsReview reports whether a completed classification is past its window.
func (r *ReuseResolver) NeedsReview(g *domain.Guideline, c *domain.Classification) bool {
	if c.CompleteDate == nil {
		return true
	}
	return r.now().Sub(*c.CompleteDate) > r.ReviewWindow(g, c.FinalClass)
}

// MostRecentFullClassification returns the latest completed, fully scored
// classification of the variant under g, other than excludeID, and whether it
// needs review. It returns (nil, false, nil) when there is none.
func (r *ReuseResolver) MostRecentFullClassification(ctx context.Context, tx domain.StoreTx, variantID int64, g *domain.Guideline, excludeID int64) (*domain.Classification, bool, error) {
	prev, err := tx.LatestFullClassification(ctx, variantID, g.Name, excludeID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("finding previous classification: %w", err)
	}
	return prev, r.NeedsReview(g, prev), nil
}

// PreviousClassificationChoices works out the options for the current check.
// Once a second check exists the path chosen by the first reviewer is locked.
func (r *ReuseResolver) PreviousClassificationChoices(ctx context.Context, tx domain.StoreTx, g *domain.Guideline, c *domain.Classification, checks []*domain.Check) (PreviousChoices, error) {
	if len(checks) > 1 {
		if fullScoring(c, checks) {
			return PreviousChoices{Options: []ChoiceOption{newChoice()}}, nil
		}
		prev, err := r.reuseTarget(ctx, tx, g, c)
		if err != nil {
			return PreviousChoices{}, err
		}
		if prev == nil {
			return PreviousChoices{Options: []ChoiceOption{newChoice()}}, nil
		}
		return PreviousChoices{
			Options:     []ChoiceOption{r.previousChoice(prev)},
			Previous:    prev,
			NeedsReview: r.NeedsReview(g, prev),
		}, nil
	}

	prev, needsReview, err := r.MostRecentFullClassification(ctx, tx, c.VariantID, g, c.ID)
	if err != nil {
		return PreviousChoices{}, err
	}
	if prev == nil || needsReview {
		return PreviousChoices{Options: []ChoiceOption{newChoice()}, Previous: prev, NeedsReview: needsReview}, nil
	}
	return PreviousChoices{
		Options:  []ChoiceOption{r.previousChoice(prev), newChoice()},
		Previous: prev,
	}, nil
}

// reuseTarget is the classification a later check reuses: the one an earlier
// check linked, or failing that the most recent one regardless of age.
func (r *ReuseResolver) reuseTarget(ctx context.Context, tx domain.StoreTx, g *domain.Guideline, c *domain.Classification) (*domain.Classification, error) {
	if c.ReusedClassificationID != nil {
		prev, err := tx.GetClassification(ctx, *c.ReusedClassificationID)
		if err != nil {
			return nil, fmt.Errorf("loading reused classification %d: %w", *c.ReusedClassificationID, err)
		}
		return prev, nil
	}
	prev, _, err := r.MostRecentFullClassification(ctx, tx, c.VariantID, g, c.ID)
	return prev, err
}

func (r *ReuseResolver) previousChoice(prev *domain.Classification) ChoiceOption {
	label := fmt.Sprintf("Use previous classification - %s", prev.FinalClass)
	if prev.CompleteDate != nil {
		label = fmt.Sprintf("%s (%s)", label, humanize.RelTime(*prev.CompleteDate, r.now(), "ago", "from now"))
	}
	id := prev.ID
	return ChoiceOption{Value: domain.PREVIOUS_CHOICE, Label: label, ClassificationID: &id}
}

func newChoice() ChoiceOption {
	return ChoiceOption{Value: domain.NEW_CHOICE, Label: "Perform full classification"}
}

// fullScoring reports whether the classification, or any check before the
// current one, went down the full classification path.
func fullScoring(c *domain.Classification, checks []*domain.Check) bool {
	if c.FullClassification {
		return true
	}
	for _, chk := range checks[:len(checks)-1] {
		if chk.FullClassification {
			return true
		}
	}
	return false
}

func monthsToDuration(months int) time.Duration {
	return time.Duration(float64(months) * daysPerMonth * float64(24*time.Hour))
}
