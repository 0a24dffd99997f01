// Package domain contains the core entities of the variant classification engine:
// guidelines and their evidence criteria, classifications of a variant against a
// guideline, the reviewer checks that make up a classification and the evidence
// ledger recorded against each check.
//
// The same entities serve every supported guideline (S-VIG oncogenicity, ACGS
// germline points, ACMG Bayesian points). Guideline differences are data, never code.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Polarity is the direction in which an evidence code moves the total score.
type Polarity string

const (
	BENIGN_POLARITY     Polarity = "BENIGN"
	PATHOGENIC_POLARITY Polarity = "PATHOGENIC"
	ONCOGENIC_POLARITY  Polarity = "ONCOGENIC"
)

// AnswerState is the review state of one code in an evidence ledger.
// Exactly one state holds at any time.
type AnswerState string

const (
	ANSWER_PENDING     AnswerState = "PENDING"
	ANSWER_APPLIED     AnswerState = "APPLIED"
	ANSWER_NOT_APPLIED AnswerState = "NOT_APPLIED"
)

// NextStep is the reviewer's decision when signing off a check.
type NextStep string

const (
	EXTRA_CHECK             NextStep = "E"
	SEND_BACK               NextStep = "B"
	COMPLETE_CLASSIFICATION NextStep = "C"
)

// PreviousChoice is the decision taken on the previous classifications tab.
type PreviousChoice string

const (
	PREVIOUS_CHOICE PreviousChoice = "previous"
	NEW_CHOICE      PreviousChoice = "new"
)

// WorklistStatus selects pending or completed classifications.
type WorklistStatus string

const (
	PENDING_WORKLIST  WorklistStatus = "pending"
	COMPLETE_WORKLIST WorklistStatus = "complete"
)

// Token values that are not strength shorthands.
const (
	PendingToken    = "PE"
	NotAppliedToken = "NA"
)

// NoOverride is the classification tab override value meaning "keep the computed tier".
const NoOverride = "No"

// DefaultTier is the tier of any score below the lowest threshold unless a
// guideline names its own.
const DefaultTier = "Benign"

// Lookup and validation errors
var (
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUnknownGuideline  = errors.New("unknown guideline")
	ErrUnknownCode       = errors.New("unknown evidence code")
	ErrUnknownStrength   = errors.New("unknown evidence strength")
	ErrInvalidToken      = errors.New("invalid selection token")
	ErrInvalidPolarity   = errors.New("invalid polarity")
	ErrInvalidNextStep   = errors.New("invalid next step")
	ErrInvalidChoice     = errors.New("invalid previous classification choice")
	ErrInvalidVariantSrc = errors.New("invalid variant source")
)

// ParsePolarity accepts the full polarity name in any case or the single
// letter form used by catalog exports (B, P, O).
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "B", "BENIGN":
		return BENIGN_POLARITY, nil
	case "P", "PATHOGENIC":
		return PATHOGENIC_POLARITY, nil
	case "O", "ONCOGENIC":
		return ONCOGENIC_POLARITY, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPolarity, s)
	}
}

// IsValid reports whether the polarity is one of the known values.
func (p Polarity) IsValid() bool {
	switch p {
	case BENIGN_POLARITY, PATHOGENIC_POLARITY, ONCOGENIC_POLARITY:
		return true
	default:
		return false
	}
}

// String returns the string representation of the polarity.
func (p Polarity) String() string {
	return string(p)
}

// IsBenign reports whether codes of this polarity subtract from the score.
func (p Polarity) IsBenign() bool {
	return p == BENIGN_POLARITY
}

// Sign is -1 for benign codes and +1 for pathogenic or oncogenic codes.
func (p Polarity) Sign() int {
	if p.IsBenign() {
		return -1
	}
	return 1
}

// Label returns the display form used in review forms ("Benign", "Oncogenic").
func (p Polarity) Label() string {
	switch p {
	case BENIGN_POLARITY:
		return "Benign"
	case PATHOGENIC_POLARITY:
		return "Pathogenic"
	case ONCOGENIC_POLARITY:
		return "Oncogenic"
	default:
		return "Unknown"
	}
}

// IsValid reports whether the answer state is one of the known values.
func (a AnswerState) IsValid() bool {
	switch a {
	case ANSWER_PENDING, ANSWER_APPLIED, ANSWER_NOT_APPLIED:
		return true
	default:
		return false
	}
}

// String returns the string representation of the answer state.
func (a AnswerState) String() string {
	return string(a)
}

// ParseNextStep accepts the single letter form (E, B, C) or the long form
// (extra_check, send_back, complete).
func ParseNextStep(s string) (NextStep, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "e", "extra_check":
		return EXTRA_CHECK, nil
	case "b", "send_back":
		return SEND_BACK, nil
	case "c", "complete":
		return COMPLETE_CLASSIFICATION, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidNextStep, s)
	}
}

// IsValid reports whether the next step is one of the known values.
func (n NextStep) IsValid() bool {
	switch n {
	case EXTRA_CHECK, SEND_BACK, COMPLETE_CLASSIFICATION:
		return true
	default:
		return false
	}
}

// String returns the long form of the next step for logging.
func (n NextStep) String() string {
	switch n {
	case EXTRA_CHECK:
		return "extra_check"
	case SEND_BACK:
		return "send_back"
	case COMPLETE_CLASSIFICATION:
		return "complete"
	default:
		return string(n)
	}
}

// ParsePreviousChoice validates a previous classifications tab decision.
func ParsePreviousChoice(s string) (PreviousChoice, error) {
	switch PreviousChoice(strings.ToLower(strings.TrimSpace(s))) {
	case PREVIOUS_CHOICE:
		return PREVIOUS_CHOICE, nil
	case NEW_CHOICE:
		return NEW_CHOICE, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, s)
	}
}

// IsValid reports whether the worklist status is one of the known values.
func (w WorklistStatus) IsValid() bool {
	return w == PENDING_WORKLIST || w == COMPLETE_WORKLIST
}
