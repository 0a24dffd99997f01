package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/domain"
)

// rejection carries a failed Outcome out of a transaction so that the
// transaction rolls back. It never leaves the service.
type rejection struct {
	outcome domain.Outcome
}

func (r *rejection) Error() string {
	return r.outcome.Message
}

func reject(format string, args ...any) error {
	return &rejection{outcome: domain.Failed(format, args...)}
}

// workItem is a classification loaded inside a transaction together with its
// checks and guideline. Workflow steps mutate it and write through tx.
type workItem struct {
	tx             domain.StoreTx
	catalog        *catalog.Catalog
	guideline      *domain.Guideline
	classification *domain.Classification
	checks         []*domain.Check
	actor          string
	now            time.Time
	events         []*domain.AuditEvent
}

func loadWorkItem(ctx context.Context, tx domain.StoreTx, cat *catalog.Catalog, id int64, actor string, now time.Time) (*workItem, error) {
	c, err := tx.GetClassification(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading classification %d: %w", id, err)
	}
	g, err := cat.Guideline(c.Guideline)
	if err != nil {
		return nil, err
	}
	checks, err := tx.ListChecks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading checks of classification %d: %w", id, err)
	}
	if len(checks) == 0 {
		return nil, fmt.Errorf("%w: classification %d has no checks", domain.ErrNotFound, id)
	}
	return &workItem{
		tx:             tx,
		catalog:        cat,
		guideline:      g,
		classification: c,
		checks:         checks,
		actor:          actor,
		now:            now,
	}, nil
}

func (w *workItem) current() *domain.Check {
	return w.checks[len(w.checks)-1]
}

func (w *workItem) previous() *domain.Check {
	if len(w.checks) < 2 {
		return nil
	}
	return w.checks[len(w.checks)-2]
}

func (w *workItem) record(action, details string) {
	w.events = append(w.events, &domain.AuditEvent{
		ClassificationID: w.classification.ID,
		CheckID:          w.current().ID,
		Actor:            w.actor,
		Action:           action,
		Details:          details,
		CreatedAt:        w.now,
	})
}

// claim assigns an unassigned current check to the actor.
func (w *workItem) claim(ctx context.Context) error {
	cur := w.current()
	if cur.User != "" || w.actor == "" {
		return nil
	}
	claimed, err := w.tx.ClaimCheck(ctx, cur.ID, w.actor)
	if err != nil {
		return fmt.Errorf("claiming check %d: %w", cur.ID, err)
	}
	if !claimed {
		refreshed, err := w.tx.ListChecks(ctx, w.classification.ID)
		if err != nil {
			return fmt.Errorf("reloading checks: %w", err)
		}
		w.checks = refreshed
		return nil
	}
	cur.User = w.actor
	w.record(domain.AUDIT_CLAIMED, "")
	return nil
}

// authorize claims the current check if needed and rejects anyone other than
// its assignee.
func (w *workItem) authorize(ctx context.Context) error {
	if err := w.claim(ctx); err != nil {
		return err
	}
	cur := w.current()
	if cur.User != w.actor {
		return &domain.PermissionError{CheckID: cur.ID, Actor: w.actor, Assignee: cur.User}
	}
	return nil
}

func (w *workItem) requireOpen() error {
	if w.classification.IsComplete() {
		return reject("Classification is already complete")
	}
	if w.current().CheckComplete {
		return reject("Check is already complete, reopen it to make changes")
	}
	return nil
}

func (w *workItem) ledger(ctx context.Context) ([]*domain.CodeAnswer, error) {
	answers, err := w.tx.ListCodeAnswers(ctx, w.current().ID)
	if err != nil {
		return nil, fmt.Errorf("loading code answers of check %d: %w", w.current().ID, err)
	}
	return answers, nil
}

func (w *workItem) saveCheck(ctx context.Context, chk *domain.Check) error {
	if err := w.tx.UpdateCheck(ctx, chk); err != nil {
		return fmt.Errorf("saving check %d: %w", chk.ID, err)
	}
	return nil
}

func (w *workItem) saveClassification(ctx context.Context) error {
	if err := w.tx.UpdateClassification(ctx, w.classification); err != nil {
		return fmt.Errorf("saving classification %d: %w", w.classification.ID, err)
	}
	return nil
}

func (w *workItem) completeInfoTab(ctx context.Context) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	cur := w.current()
	if cur.InfoCheck {
		return nil
	}
	cur.InfoCheck = true
	if err := w.saveCheck(ctx, cur); err != nil {
		return err
	}
	w.record(domain.AUDIT_INFO_COMPLETED, "")
	return nil
}

func (w *workItem) completePreviousClassTab(ctx context.Context, choice domain.PreviousChoice, choices PreviousChoices) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	cur := w.current()
	if !cur.InfoCheck {
		return reject("%s tab is not complete", domain.InfoTab)
	}
	if cur.PreviousClassificationsCheck {
		return reject("%s tab is already complete", domain.PreviousClassificationsTab)
	}
	if !choices.Offers(choice) {
		return reject("%q is not an available choice for this check", choice)
	}

	cur.PreviousClassificationsCheck = true
	switch choice {
	case domain.PREVIOUS_CHOICE:
		prev := choices.Previous
		cur.ClassificationCheck = true
		cur.FullClassification = false
		cur.FinalClass = prev.FinalClass
		cur.FinalScore = copyInt(prev.FinalScore)
		cur.FinalClassOverridden = prev.FinalClassOverridden
		id := prev.ID
		w.classification.ReusedClassificationID = &id
		w.classification.FullClassification = false
	case domain.NEW_CHOICE:
		cur.FullClassification = true
		w.classification.FullClassification = true
		if err := w.freshLedger(ctx); err != nil {
			return err
		}
	}

	if err := w.saveCheck(ctx, cur); err != nil {
		return err
	}
	if err := w.saveClassification(ctx); err != nil {
		return err
	}
	w.record(domain.AUDIT_PREVIOUS_COMPLETED, string(choice))
	return nil
}

// freshLedger replaces the current check's ledger with one pending answer per
// catalog code.
func (w *workItem) freshLedger(ctx context.Context) error {
	cur := w.current()
	if err := w.tx.DeleteCodeAnswers(ctx, cur.ID); err != nil {
		return fmt.Errorf("clearing code answers of check %d: %w", cur.ID, err)
	}
	codes := w.guideline.Codes()
	answers := make([]*domain.CodeAnswer, 0, len(codes))
	for _, code := range codes {
		answers = append(answers, domain.NewPendingAnswer(cur.ID, code))
	}
	if err := w.tx.CreateCodeAnswers(ctx, answers); err != nil {
		return fmt.Errorf("creating code answers of check %d: %w", cur.ID, err)
	}
	return nil
}

func (w *workItem) completeClassificationTab(ctx context.Context, override string) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	cur := w.current()
	if !cur.PreviousClassificationsCheck {
		return reject("%s tab is not complete", domain.PreviousClassificationsTab)
	}
	if cur.ClassificationCheck {
		return reject("%s tab is already complete", domain.ClassificationTab)
	}
	if !cur.FullClassification {
		return reject("No evidence to classify, reopen the %s tab", strings.ToLower(domain.PreviousClassificationsTab))
	}

	ledger, err := w.ledger(ctx)
	if err != nil {
		return err
	}
	if pending := countPending(ledger); pending > 0 {
		return reject("%d codes still pending", pending)
	}
	if conflicts := pairConflicts(w.guideline, ledger); len(conflicts) > 0 {
		return reject("Only one code of %s can be applied", strings.Join(conflicts, ", "))
	}
	res, err := Score(ledger, w.guideline)
	if err != nil {
		return err
	}

	override = strings.TrimSpace(override)
	switch {
	case override == "" || override == domain.NoOverride:
		cur.FinalClass = res.Tier
		cur.FinalClassOverridden = false
	case w.guideline.HasTier(override):
		cur.FinalClass = override
		cur.FinalClassOverridden = true
	default:
		return reject("%q is not a classification in %s", override, w.guideline.Name)
	}
	score := res.Score
	cur.FinalScore = &score
	cur.ClassificationCheck = true

	if err := w.saveCheck(ctx, cur); err != nil {
		return err
	}
	w.record(domain.AUDIT_CLASSIFY_COMPLETED, fmt.Sprintf("%s (%d)", cur.FinalClass, score))
	return nil
}

// completeCheck finalizes the current check once every tab is complete.
func (w *workItem) completeCheck(ctx context.Context) error {
	if err := w.requireOpen(); err != nil {
		return err
	}
	cur := w.current()
	if tab := cur.FirstIncompleteTab(); tab != "" {
		return reject("%s tab is not complete", tab)
	}
	t := w.now
	cur.CheckComplete = true
	cur.SignoffTime = &t
	return w.saveCheck(ctx, cur)
}

// updateCodes applies selections to the ledger. Codes can only change while
// the classification tab of a full classification is open.
func (w *workItem) updateCodes(ctx context.Context, selections []Selection) ([]*domain.CodeAnswer, error) {
	if err := w.requireOpen(); err != nil {
		return nil, err
	}
	cur := w.current()
	if !cur.InfoCheck || !cur.PreviousClassificationsCheck || !cur.FullClassification || cur.ClassificationCheck {
		return nil, reject("Codes can only be changed while the %s tab is open", strings.ToLower(domain.ClassificationTab))
	}

	ledger, err := w.ledger(ctx)
	if err != nil {
		return nil, err
	}
	changed, err := applySelections(ledger, selections)
	if err != nil {
		return nil, err
	}
	if conflicts := pairConflicts(w.guideline, ledger); len(conflicts) > 0 {
		return nil, reject("Only one code of %s can be applied", strings.Join(conflicts, ", "))
	}
	for _, a := range changed {
		if err := w.tx.UpdateCodeAnswer(ctx, a); err != nil {
			return nil, fmt.Errorf("saving answer %s: %w", a.Token(), err)
		}
	}
	if len(changed) > 0 {
		tokens := make([]string, 0, len(changed))
		for _, a := range changed {
			tokens = append(tokens, a.Token())
		}
		w.record(domain.AUDIT_CODES_UPDATED, strings.Join(tokens, " "))
	}
	return ledger, nil
}

// requireReopenable rejects tab reopens on a completed classification.
func (w *workItem) requireReopenable() error {
	if w.classification.IsComplete() {
		return reject("Classification is complete, reopen the check first")
	}
	return nil
}

func (w *workItem) resetClassificationTab(chk *domain.Check) {
	chk.ClassificationCheck = false
	chk.FinalClass = ""
	chk.FinalScore = nil
	chk.CheckComplete = false
	chk.SignoffTime = nil
}

func (w *workItem) resetPreviousClassTab(ctx context.Context, chk *domain.Check) error {
	w.resetClassificationTab(chk)
	chk.PreviousClassificationsCheck = false
	chk.FullClassification = false
	chk.FinalClassOverridden = false
	w.classification.FullClassification = false
	w.classification.ReusedClassificationID = nil
	if err := w.tx.DeleteCodeAnswers(ctx, chk.ID); err != nil {
		return fmt.Errorf("deleting code answers of check %d: %w", chk.ID, err)
	}
	return w.saveClassification(ctx)
}

func (w *workItem) reopenClassificationTab(ctx context.Context) error {
	if err := w.requireReopenable(); err != nil {
		return err
	}
	cur := w.current()
	w.resetClassificationTab(cur)
	if err := w.saveCheck(ctx, cur); err != nil {
		return err
	}
	w.record(domain.AUDIT_CLASSIFY_REOPENED, "")
	return nil
}

func (w *workItem) reopenPreviousClassTab(ctx context.Context) error {
	if err := w.requireReopenable(); err != nil {
		return err
	}
	cur := w.current()
	if err := w.resetPreviousClassTab(ctx, cur); err != nil {
		return err
	}
	if err := w.saveCheck(ctx, cur); err != nil {
		return err
	}
	w.record(domain.AUDIT_PREVIOUS_REOPENED, "")
	return nil
}

func (w *workItem) reopenInfoTab(ctx context.Context) error {
	if err := w.requireReopenable(); err != nil {
		return err
	}
	cur := w.current()
	cur.InfoCheck = false
	if err := w.resetPreviousClassTab(ctx, cur); err != nil {
		return err
	}
	if err := w.saveCheck(ctx, cur); err != nil {
		return err
	}
	w.record(domain.AUDIT_INFO_REOPENED, "")
	return nil
}

// reopenCheck undoes completion of the current check. A completed
// classification goes back into review and loses its final result.
func (w *workItem) reopenCheck(ctx context.Context) error {
	cur := w.current()
	cur.CheckComplete = false
	cur.SignoffTime = nil
	if err := w.saveCheck(ctx, cur); err != nil {
		return err
	}
	if w.classification.IsComplete() {
		w.classification.CompleteDate = nil
		w.classification.FinalClass = ""
		w.classification.FinalScore = nil
		w.classification.FinalClassOverridden = false
		if err := w.saveClassification(ctx); err != nil {
			return err
		}
	}
	w.record(domain.AUDIT_CHECK_REOPENED, "")
	return nil
}

func countPending(ledger []*domain.CodeAnswer) int {
	n := 0
	for _, a := range ledger {
		if a.IsPending() {
			n++
		}
	}
	return n
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
