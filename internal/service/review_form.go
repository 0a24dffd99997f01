package service

import (
	"strconv"
	"strings"

	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/domain"
)

// StatusComplete is the status of a classification whose latest check is done.
const StatusComplete = "Complete"

// CodeRow is one dropdown of the review form.
type CodeRow struct {
	Key       string                        `json:"key"`
	List      []string                      `json:"list"`
	Details   map[string]catalog.CodeDetail `json:"details"`
	Dropdown  []catalog.DropdownOption      `json:"dropdown"`
	Value     string                        `json:"value"`
	AllChecks []string                      `json:"all_checks"`
}

// CategoryForm is one section of the review form.
type CategoryForm struct {
	Category     string    `json:"category"`
	Pretty       string    `json:"pretty"`
	Slug         string    `json:"slug"`
	Complete     bool      `json:"complete"`
	AppliedCodes []string  `json:"applied_codes"`
	Codes        []CodeRow `json:"codes"`
}

// Summary is the live state of a classification.
type Summary struct {
	ClassificationID int64    `json:"classification_id"`
	Guideline        string   `json:"guideline"`
	Status           string   `json:"status"`
	CurrentCheck     int      `json:"current_check"`
	Assignee         string   `json:"assignee,omitempty"`
	CurrentScore     *int     `json:"current_score,omitempty"`
	CurrentClass     string   `json:"current_class,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	FinalClass       string   `json:"final_class,omitempty"`
	FinalScore       *int     `json:"final_score,omitempty"`
	Complete         bool     `json:"complete"`
}

// ReviewForm is everything needed to render a classification for review.
type ReviewForm struct {
	Classification  *domain.Classification `json:"classification"`
	Variant         *domain.Variant        `json:"variant"`
	Sample          SampleInfo             `json:"sample"`
	Checks          []*domain.Check        `json:"checks"`
	Summary         Summary                `json:"summary"`
	PreviousChoices PreviousChoices        `json:"previous_choices"`
	CodesByCategory []CategoryForm         `json:"codes_by_category,omitempty"`
	Disagreement    Disagreement           `json:"disagreement"`
}

// WorklistEntry is one row of a worklist.
type WorklistEntry struct {
	Classification *domain.Classification `json:"classification"`
	Variant        *domain.Variant        `json:"variant"`
	Sample         SampleInfo             `json:"sample"`
	Status         string                 `json:"status"`
	Assignee       string                 `json:"assignee,omitempty"`
}

// Status is "Complete" once the latest check is complete and "Check N"
// otherwise, N being the number of checks.
func Status(checks []*domain.Check) string {
	if len(checks) == 0 {
		return "Check 0"
	}
	if checks[len(checks)-1].CheckComplete {
		return StatusComplete
	}
	return "Check " + strconv.Itoa(len(checks))
}

// codesByCategory builds the review form sections for the current check with
// the per-check history of every dropdown. Checks without a ledger are skipped
// in the history.
func codesByCategory(cat *catalog.Catalog, g *domain.Guideline, checks []*domain.Check, ledgers map[int64][]*domain.CodeAnswer) ([]CategoryForm, error) {
	sections, err := catalog.OrderInfo(g)
	if err != nil {
		return nil, err
	}
	details := catalog.CodeInfo(g)
	current := answersByCode(ledgers[checks[len(checks)-1].ID])

	forms := make([]CategoryForm, 0, len(sections))
	for _, section := range sections {
		form := CategoryForm{
			Category:     section.Category,
			Pretty:       section.Pretty,
			Slug:         section.Slug,
			Complete:     true,
			AppliedCodes: []string{},
		}
		for _, key := range section.Keys {
			codes := catalog.SplitKey(key)
			dropdown, err := cat.DropdownOptions(g.Name, key)
			if err != nil {
				return nil, err
			}
			row := CodeRow{
				Key:      key,
				List:     codes,
				Details:  make(map[string]catalog.CodeDetail, len(codes)),
				Dropdown: dropdown,
			}

			values := make([]string, 0, len(codes))
			for _, code := range codes {
				row.Details[code] = details[code]
				a, ok := current[code]
				if !ok {
					a = domain.NewPendingAnswer(0, code)
				}
				values = append(values, a.Token())
				if a.IsPending() {
					form.Complete = false
				}
				if a.IsApplied() {
					form.AppliedCodes = append(form.AppliedCodes, a.Token())
				}
			}
			row.Value = strings.Join(values, catalog.ValueSeparator)

			for _, chk := range checks {
				ledger := ledgers[chk.ID]
				if len(ledger) == 0 {
					continue
				}
				display, err := historyDisplay(g, codes, answersByCode(ledger))
				if err != nil {
					return nil, err
				}
				row.AllChecks = append(row.AllChecks, display)
			}
			form.Codes = append(form.Codes, row)
		}
		forms = append(forms, form)
	}
	return forms, nil
}

func historyDisplay(g *domain.Guideline, codes []string, answers map[string]*domain.CodeAnswer) (string, error) {
	shown := make([]string, 0, len(codes))
	for _, code := range codes {
		a, ok := answers[code]
		if !ok {
			a = domain.NewPendingAnswer(0, code)
		}
		s, err := catalog.AnswerDisplay(g, a)
		if err != nil {
			return "", err
		}
		shown = append(shown, s)
	}
	if len(shown) == 1 {
		return shown[0], nil
	}
	return catalog.PairDisplay(shown[0], shown[1]), nil
}

// summarize computes the live summary for the current check. A check with a
// ledger is scored afresh; a reused result shows its copied class and score.
func summarize(g *domain.Guideline, c *domain.Classification, checks []*domain.Check, ledger []*domain.CodeAnswer) (Summary, error) {
	cur := checks[len(checks)-1]
	s := Summary{
		ClassificationID: c.ID,
		Guideline:        c.Guideline,
		Status:           Status(checks),
		CurrentCheck:     cur.Sequence,
		Assignee:         cur.User,
		FinalClass:       c.FinalClass,
		FinalScore:       c.FinalScore,
		Complete:         c.IsComplete(),
	}

	switch {
	case cur.FullClassification && len(ledger) > 0:
		res, err := Score(ledger, g)
		if err != nil {
			return Summary{}, err
		}
		score := res.Score
		s.CurrentScore = &score
		s.CurrentClass = res.Tier
		if cur.ClassificationCheck && cur.FinalClass != "" {
			s.CurrentClass = cur.FinalClass
		}
		s.Warnings = catalog.Warnings(g, appliedCodes(ledger))
	case cur.FinalClass != "":
		s.CurrentClass = cur.FinalClass
		s.CurrentScore = cur.FinalScore
	}
	return s, nil
}

func answersByCode(ledger []*domain.CodeAnswer) map[string]*domain.CodeAnswer {
	out := make(map[string]*domain.CodeAnswer, len(ledger))
	for _, a := range ledger {
		out[a.Code] = a
	}
	return out
}

func appliedCodes(ledger []*domain.CodeAnswer) []string {
	var codes []string
	for _, a := range ledger {
		if a.IsApplied() {
			codes = append(codes, a.Code)
		}
	}
	return codes
}
