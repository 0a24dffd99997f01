package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/svd-classify/internal/domain"
)

var checkCountWords = map[int]string{1: "one", 2: "two", 3: "three", 4: "four", 5: "five"}

// signoff completes the current check and then carries out the next step.
// Any rejection after the check is completed undoes the completion too,
// because the caller rolls back the whole transaction.
func (w *workItem) signoff(ctx context.Context, next domain.NextStep, cfg domain.SignoffConfig) error {
	if err := w.completeCheck(ctx); err != nil {
		return err
	}

	switch next {
	case domain.EXTRA_CHECK:
		return w.extraCheck(ctx)
	case domain.SEND_BACK:
		return w.sendBack(ctx)
	case domain.COMPLETE_CLASSIFICATION:
		return w.complete(ctx, cfg)
	default:
		return fmt.Errorf("%w: %q", domain.ErrInvalidNextStep, next)
	}
}

func (w *workItem) extraCheck(ctx context.Context) error {
	chk := &domain.Check{
		ClassificationID: w.classification.ID,
		Sequence:         w.classification.NextSequence(),
		CreatedAt:        w.now,
	}
	if err := w.saveClassification(ctx); err != nil {
		return err
	}
	if err := w.tx.CreateCheck(ctx, chk); err != nil {
		return fmt.Errorf("creating check %d: %w", chk.Sequence, err)
	}
	w.record(domain.AUDIT_EXTRA_CHECK, fmt.Sprintf("check %d opened", chk.Sequence))
	w.checks = append(w.checks, chk)
	return nil
}

// sendBack reopens the previous check and deletes the current one.
func (w *workItem) sendBack(ctx context.Context) error {
	prev := w.previous()
	if prev == nil {
		return reject("Cannot send back, this is the first check")
	}
	cur := w.current()
	w.record(domain.AUDIT_SENT_BACK, fmt.Sprintf("check %d sent back to check %d", cur.Sequence, prev.Sequence))

	prev.CheckComplete = false
	prev.SignoffTime = nil
	if err := w.saveCheck(ctx, prev); err != nil {
		return err
	}
	if err := w.tx.DeleteCheck(ctx, cur.ID); err != nil {
		return fmt.Errorf("deleting check %d: %w", cur.ID, err)
	}
	w.checks = w.checks[:len(w.checks)-1]
	return nil
}

// complete copies the current check's result onto the classification once
// enough checks exist and, when configured, the last two agree.
func (w *workItem) complete(ctx context.Context, cfg domain.SignoffConfig) error {
	required := cfg.RequiredChecks
	if required < 1 {
		required = domain.DefaultSignoffConfig().RequiredChecks
	}
	if len(w.checks) < required {
		return reject("Cannot complete analysis, %s checks required", countWord(required))
	}

	if cfg.RequireAgreement && len(w.checks) > 1 {
		d, err := w.disagreement(ctx)
		if err != nil {
			return err
		}
		if !d.Agrees() {
			return reject("Cannot complete analysis, the last two checks disagree")
		}
	}

	cur := w.current()
	t := w.now
	w.classification.FinalClass = cur.FinalClass
	w.classification.FinalScore = copyInt(cur.FinalScore)
	w.classification.FinalClassOverridden = cur.FinalClassOverridden
	w.classification.CompleteDate = &t
	if err := w.saveClassification(ctx); err != nil {
		return err
	}
	w.record(domain.AUDIT_CLASSIFICATION_FINAL, cur.FinalClass)
	return nil
}

// disagreement compares the latest two checks.
func (w *workItem) disagreement(ctx context.Context) (Disagreement, error) {
	prev, cur := w.previous(), w.current()
	if prev == nil {
		return Disagreement{}, nil
	}
	prevLedger, err := w.tx.ListCodeAnswers(ctx, prev.ID)
	if err != nil {
		return Disagreement{}, fmt.Errorf("loading code answers of check %d: %w", prev.ID, err)
	}
	curLedger, err := w.tx.ListCodeAnswers(ctx, cur.ID)
	if err != nil {
		return Disagreement{}, fmt.Errorf("loading code answers of check %d: %w", cur.ID, err)
	}
	return compareChecks(prev, cur, prevLedger, curLedger), nil
}

func countWord(n int) string {
	if w, ok := checkCountWords[n]; ok {
		return w
	}
	return strconv.Itoa(n)
}
