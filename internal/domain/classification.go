package domain

import (
	"fmt"
	"time"
)

// Variant is the transcript-level variant a classification is about. The engine
// reads it for display and grouping only.
type Variant struct {
	ID            int64     `json:"id"`
	HGVSc         string    `json:"hgvs_c"`
	HGVSp         string    `json:"hgvs_p,omitempty"`
	Gene          string    `json:"gene,omitempty"`
	Transcript    string    `json:"transcript,omitempty"`
	Exon          string    `json:"exon,omitempty"`
	GenomicCoords string    `json:"genomic_coords,omitempty"`
	GenomeBuild   string    `json:"genome_build,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Classification aggregates the ordered checks for one variant under one
// guideline and carries the signed-off result once complete.
type Classification struct {
	ID                     int64         `json:"id"`
	VariantID              int64         `json:"variant_id"`
	Guideline              string        `json:"guideline"`
	Source                 VariantSource `json:"-"`
	FullClassification     bool          `json:"full_classification"`
	FinalClass             string        `json:"final_class,omitempty"`
	FinalScore             *int          `json:"final_score,omitempty"`
	FinalClassOverridden   bool          `json:"final_class_overridden"`
	CompleteDate           *time.Time    `json:"complete_date,omitempty"`
	ReusedClassificationID *int64        `json:"reused_classification_id,omitempty"`
	CheckCounter           int           `json:"check_counter"`
	CreatedAt              time.Time     `json:"created_at"`
}

// IsComplete reports whether the classification has been signed off.
func (c *Classification) IsComplete() bool {
	return c.CompleteDate != nil
}

// NextSequence advances the per-classification check counter and returns the
// sequence number for a new check. Sequences are never reused, even after a
// send back deletes a check.
func (c *Classification) NextSequence() int {
	c.CheckCounter++
	return c.CheckCounter
}

// Check is one reviewer's pass through the tab-gated workflow.
type Check struct {
	ID                           int64      `json:"id"`
	ClassificationID             int64      `json:"classification_id"`
	Sequence                     int        `json:"sequence"`
	InfoCheck                    bool       `json:"info_check"`
	PreviousClassificationsCheck bool       `json:"previous_classifications_check"`
	ClassificationCheck          bool       `json:"classification_check"`
	CheckComplete                bool       `json:"check_complete"`
	FullClassification           bool       `json:"full_classification"`
	FinalClass                   string     `json:"final_class,omitempty"`
	FinalScore                   *int       `json:"final_score,omitempty"`
	FinalClassOverridden         bool       `json:"final_class_overridden"`
	User                         string     `json:"user,omitempty"`
	SignoffTime                  *time.Time `json:"signoff_time,omitempty"`
	CreatedAt                    time.Time  `json:"created_at"`
}

// Tab names used in reviewer-facing messages.
const (
	InfoTab                    = "Variant information"
	PreviousClassificationsTab = "Previous classifications"
	ClassificationTab          = "Classification"
)

// FirstIncompleteTab names the first gating tab that is not complete, or ""
// when all three are.
func (c *Check) FirstIncompleteTab() string {
	switch {
	case !c.InfoCheck:
		return InfoTab
	case !c.PreviousClassificationsCheck:
		return PreviousClassificationsTab
	case !c.ClassificationCheck:
		return ClassificationTab
	default:
		return ""
	}
}

// CodeAnswer is one entry of a check's evidence ledger.
type CodeAnswer struct {
	ID              int64       `json:"id"`
	CheckID         int64       `json:"check_id"`
	Code            string      `json:"code"`
	State           AnswerState `json:"state"`
	AppliedStrength string      `json:"applied_strength,omitempty"`
}

// NewPendingAnswer returns a ledger entry in the default pending state.
func NewPendingAnswer(checkID int64, code string) *CodeAnswer {
	return &CodeAnswer{CheckID: checkID, Code: code, State: ANSWER_PENDING}
}

// Token renders the answer in the "<code>_<value>" selection grammar.
func (a *CodeAnswer) Token() string {
	switch a.State {
	case ANSWER_APPLIED:
		return fmt.Sprintf("%s_%s", a.Code, a.AppliedStrength)
	case ANSWER_NOT_APPLIED:
		return fmt.Sprintf("%s_%s", a.Code, NotAppliedToken)
	default:
		return fmt.Sprintf("%s_%s", a.Code, PendingToken)
	}
}

// Set replaces the answer state. The strength is kept only when applied.
func (a *CodeAnswer) Set(state AnswerState, strength string) {
	a.State = state
	if state == ANSWER_APPLIED {
		a.AppliedStrength = strength
	} else {
		a.AppliedStrength = ""
	}
}

// IsApplied reports whether the code is applied.
func (a *CodeAnswer) IsApplied() bool {
	return a.State == ANSWER_APPLIED
}

// IsPending reports whether the code is still awaiting review.
func (a *CodeAnswer) IsPending() bool {
	return a.State == ANSWER_PENDING
}
