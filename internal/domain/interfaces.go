package domain

import (
	"context"
	"time"
)

// Store runs units of work against the classification backing store.
// Every multi-row mutation happens inside one WithinTx call: if fn returns an
// error nothing it wrote is visible afterwards.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx StoreTx) error) error
}

// StoreTx is the set of operations available inside a transaction.
type StoreTx interface {
	// Variants
	CreateVariant(ctx context.Context, v *Variant) error
	GetVariant(ctx context.Context, id int64) (*Variant, error)
	GetVariantByHGVS(ctx context.Context, hgvsc string) (*Variant, error)

	// Classifications
	CreateClassification(ctx context.Context, c *Classification) error
	GetClassification(ctx context.Context, id int64) (*Classification, error)
	UpdateClassification(ctx context.Context, c *Classification) error
	ListClassifications(ctx context.Context, filter ClassificationFilter) ([]*Classification, error)

	// LatestFullClassification returns the most recently completed classification
	// of the variant under the guideline that underwent full scoring, excluding
	// excludeID. It returns ErrNotFound when there is none.
	LatestFullClassification(ctx context.Context, variantID int64, guideline string, excludeID int64) (*Classification, error)

	// Checks, ordered by sequence
	ListChecks(ctx context.Context, classificationID int64) ([]*Check, error)
	CreateCheck(ctx context.Context, chk *Check) error
	UpdateCheck(ctx context.Context, chk *Check) error
	DeleteCheck(ctx context.Context, id int64) error

	// ClaimCheck assigns the check to user if it has no assignee yet and
	// reports whether this call made the claim.
	ClaimCheck(ctx context.Context, checkID int64, user string) (bool, error)

	// Evidence ledger
	ListCodeAnswers(ctx context.Context, checkID int64) ([]*CodeAnswer, error)
	CreateCodeAnswers(ctx context.Context, answers []*CodeAnswer) error
	UpdateCodeAnswer(ctx context.Context, a *CodeAnswer) error
	DeleteCodeAnswers(ctx context.Context, checkID int64) error
}

// ClassificationFilter narrows ListClassifications. Zero values match everything.
type ClassificationFilter struct {
	Guideline string
	VariantID int64
	Complete  *bool
	Limit     int
	Offset    int
}

// AuditEvent records one state transition of a classification.
type AuditEvent struct {
	ID               string    `json:"id"`
	ClassificationID int64     `json:"classification_id"`
	CheckID          int64     `json:"check_id,omitempty"`
	Actor            string    `json:"actor"`
	Action           string    `json:"action"`
	Details          string    `json:"details,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Audit actions
const (
	AUDIT_CREATED              = "classification_created"
	AUDIT_CLAIMED              = "check_claimed"
	AUDIT_CODES_UPDATED        = "codes_updated"
	AUDIT_INFO_COMPLETED       = "info_tab_completed"
	AUDIT_PREVIOUS_COMPLETED   = "previous_classifications_tab_completed"
	AUDIT_CLASSIFY_COMPLETED   = "classification_tab_completed"
	AUDIT_INFO_REOPENED        = "info_tab_reopened"
	AUDIT_PREVIOUS_REOPENED    = "previous_classifications_tab_reopened"
	AUDIT_CLASSIFY_REOPENED    = "classification_tab_reopened"
	AUDIT_CHECK_REOPENED       = "check_reopened"
	AUDIT_EXTRA_CHECK          = "extra_check_requested"
	AUDIT_SENT_BACK            = "sent_back"
	AUDIT_CLASSIFICATION_FINAL = "classification_completed"
)

// AuditRecorder persists the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, event *AuditEvent) error
	List(ctx context.Context, classificationID int64) ([]*AuditEvent, error)
}
