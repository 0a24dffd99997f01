package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/domain"
)

// CatalogProvider supplies the guideline catalog in effect.
type CatalogProvider interface {
	Current() *catalog.Catalog
}

// ClassificationService runs the check and signoff workflow of variant
// classifications.
type ClassificationService struct {
	store    domain.Store
	catalogs CatalogProvider
	audit    domain.AuditRecorder
	signoff  domain.SignoffConfig
	reuse    *ReuseResolver
	logger   *logrus.Logger
	now      func() time.Time
}

// Option configures a ClassificationService.
type Option func(*ClassificationService)

// WithAudit records every state transition.
func WithAudit(audit domain.AuditRecorder) Option {
	return func(s *ClassificationService) { s.audit = audit }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *ClassificationService) { s.now = now }
}

// NewClassificationService creates a new classification service
func NewClassificationService(
	store domain.Store,
	catalogs CatalogProvider,
	cfg domain.SignoffConfig,
	logger *logrus.Logger,
	opts ...Option,
) *ClassificationService {
	s := &ClassificationService{
		store:    store,
		catalogs: catalogs,
		signoff:  cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reuse = NewReuseResolver(cfg, s.now)
	return s
}

// CreateClassificationParams describes a new classification.
type CreateClassificationParams struct {
	Variant   domain.Variant
	Guideline string
	Source    domain.VariantSource
	Actor     string
}

// CreateClassification registers the variant if it is new and opens a
// classification with its first check.
func (s *ClassificationService) CreateClassification(ctx context.Context, p CreateClassificationParams) (*domain.Classification, error) {
	if _, err := s.catalogs.Current().Guideline(p.Guideline); err != nil {
		return nil, err
	}
	if err := ValidateVariant(&p.Variant); err != nil {
		return nil, err
	}
	if p.Source == nil {
		p.Source = domain.ManualVariant{EnteredBy: p.Actor}
	}

	now := s.now()
	var created *domain.Classification
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
		variant, err := tx.GetVariantByHGVS(ctx, p.Variant.HGVSc)
		if errors.Is(err, domain.ErrNotFound) {
			variant = &p.Variant
			variant.CreatedAt = now
			err = tx.CreateVariant(ctx, variant)
		}
		if err != nil {
			return fmt.Errorf("registering variant %s: %w", p.Variant.HGVSc, err)
		}

		c := &domain.Classification{
			VariantID: variant.ID,
			Guideline: p.Guideline,
			Source:    p.Source,
			CreatedAt: now,
		}
		seq := c.NextSequence()
		if err := tx.CreateClassification(ctx, c); err != nil {
			return fmt.Errorf("creating classification: %w", err)
		}
		if err := tx.CreateCheck(ctx, &domain.Check{ClassificationID: c.ID, Sequence: seq, CreatedAt: now}); err != nil {
			return fmt.Errorf("creating first check: %w", err)
		}
		created = c
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithField("hgvs_c", p.Variant.HGVSc).Error("Failed to create classification")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"classification_id": created.ID,
		"variant_id":        created.VariantID,
		"guideline":         created.Guideline,
		"source":            created.Source.Kind(),
	}).Info("Classification created")
	s.recordAll(ctx, []*domain.AuditEvent{{
		ClassificationID: created.ID,
		Actor:            p.Actor,
		Action:           domain.AUDIT_CREATED,
		Details:          fmt.Sprintf("%s under %s", p.Variant.HGVSc, p.Guideline),
		CreatedAt:        now,
	}})
	return created, nil
}

// Open returns the review form and claims the current check for the actor if
// nobody has claimed it yet. Viewing a check assigned to someone else is
// allowed.
func (s *ClassificationService) Open(ctx context.Context, id int64, actor string) (*ReviewForm, error) {
	var (
		form   *ReviewForm
		events []*domain.AuditEvent
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
		w, err := loadWorkItem(ctx, tx, s.catalogs.Current(), id, actor, s.now())
		if err != nil {
			return err
		}
		if !w.classification.IsComplete() {
			if err := w.claim(ctx); err != nil {
				return err
			}
		}
		form, err = s.buildForm(ctx, w)
		events = w.events
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAll(ctx, events)
	return form, nil
}

// Summary returns the live score, class, warnings and status.
func (s *ClassificationService) Summary(ctx context.Context, id int64) (*Summary, error) {
	var summary Summary
	err := s.read(ctx, id, func(ctx context.Context, w *workItem) error {
		ledger, err := w.ledger(ctx)
		if err != nil {
			return err
		}
		summary, err = summarize(w.guideline, w.classification, w.checks, ledger)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// UpdateCodes applies "<code>_<value>" tokens to the current check's ledger
// and returns the updated summary. Malformed tokens and unknown codes or
// strengths are errors.
func (s *ClassificationService) UpdateCodes(ctx context.Context, id int64, actor string, tokens []string) (domain.Outcome, *Summary, error) {
	var summary Summary
	outcome, err := s.mutate(ctx, id, actor, "update_codes", func(ctx context.Context, w *workItem) error {
		selections, err := ParseSelections(w.guideline, tokens)
		if err != nil {
			return err
		}
		ledger, err := w.updateCodes(ctx, selections)
		if err != nil {
			return err
		}
		summary, err = summarize(w.guideline, w.classification, w.checks, ledger)
		return err
	})
	if err != nil || !outcome.Success {
		return outcome, nil, err
	}
	return outcome, &summary, nil
}

// CompleteInfoTab confirms the variant information of the current check.
func (s *ClassificationService) CompleteInfoTab(ctx context.Context, id int64, actor string) (domain.Outcome, error) {
	return s.mutate(ctx, id, actor, "complete_info_tab", func(ctx context.Context, w *workItem) error {
		return w.completeInfoTab(ctx)
	})
}

// CompletePreviousClassTab records whether the current check reuses a prior
// classification or starts a full classification.
func (s *ClassificationService) CompletePreviousClassTab(ctx context.Context, id int64, actor string, choice domain.PreviousChoice) (domain.Outcome, error) {
	return s.mutate(ctx, id, actor, "complete_previous_class_tab", func(ctx context.Context, w *workItem) error {
		choices, err := s.reuse.PreviousClassificationChoices(ctx, w.tx, w.guideline, w.classification, w.checks)
		if err != nil {
			return err
		}
		return w.completePreviousClassTab(ctx, choice, choices)
	})
}

// CompleteClassificationTab scores the ledger and stores the final class,
// or the override when it is not domain.NoOverride.
func (s *ClassificationService) CompleteClassificationTab(ctx context.Context, id int64, actor, override string) (domain.Outcome, error) {
	return s.mutate(ctx, id, actor, "complete_classification_tab", func(ctx context.Context, w *workItem) error {
		return w.completeClassificationTab(ctx, override)
	})
}

// ReopenInfoTab resets the current check back to its first tab.
func (s *ClassificationService) ReopenInfoTab(ctx context.Context, id int64, actor string) (domain.Outcome, error) {
	return s.mutate(ctx, id, actor, "reopen_info_tab", func(ctx context.Context, w *workItem) error {
		return w.reopenInfoTab(ctx)
	})
}

// ReopenPreviousClassTab resets the previous classifications decision and
// discards the ledger.
func (s *ClassificationService) ReopenPreviousClassTab(ctx context.Context, id int64, actor string) (domain.Outcome, error) {
	return s.mutate(ctx, id, actor, "reopen_previous_class_tab", func(ctx context.Context, w *workItem) error {
		return w.reopenPreviousClassTab(ctx)
	})
}

// ReopenClassificationTab clears the final class of the current check.
func (s *ClassificationService) ReopenClassificationTab(ctx context.Context, id int64, actor string) (domain.Outcome, error) {
	return s.mutate(ctx, id, actor, "reopen_classification_tab", func(ctx context.Context, w *workItem) error {
		return w.reopenClassificationTab(ctx)
	})
}

// ReopenCheck undoes completion of the latest check.
func (s *ClassificationService) ReopenCheck(ctx context.Context, id int64, actor string) (domain.Outcome, error) {
	return s.mutate(ctx, id, actor, "reopen_check", func(ctx context.Context, w *workItem) error {
		return w.reopenCheck(ctx)
	})
}

// Signoff completes the current check and moves the classification on.
func (s *ClassificationService) Signoff(ctx context.Context, id int64, actor string, next domain.NextStep) (domain.Outcome, error) {
	if !next.IsValid() {
		return domain.Outcome{}, fmt.Errorf("%w: %q", domain.ErrInvalidNextStep, next)
	}
	return s.mutate(ctx, id, actor, "signoff_"+next.String(), func(ctx context.Context, w *workItem) error {
		return w.signoff(ctx, next, s.signoff)
	})
}

// PreviousChoices lists the options of the previous classifications tab.
func (s *ClassificationService) PreviousChoices(ctx context.Context, id int64) (*PreviousChoices, error) {
	var choices PreviousChoices
	err := s.read(ctx, id, func(ctx context.Context, w *workItem) error {
		var err error
		choices, err = s.reuse.PreviousClassificationChoices(ctx, w.tx, w.guideline, w.classification, w.checks)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &choices, nil
}

// Disagreements compares the latest two checks.
func (s *ClassificationService) Disagreements(ctx context.Context, id int64) (*Disagreement, error) {
	var d Disagreement
	err := s.read(ctx, id, func(ctx context.Context, w *workItem) error {
		var err error
		d, err = w.disagreement(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Worklist lists pending or complete classifications, optionally for one
// guideline.
func (s *ClassificationService) Worklist(ctx context.Context, status domain.WorklistStatus, guideline string, limit, offset int) ([]WorklistEntry, error) {
	if !status.IsValid() {
		return nil, domain.NewValidationError("status", "must be pending or complete", status)
	}
	complete := status == domain.COMPLETE_WORKLIST
	var entries []WorklistEntry
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
		list, err := tx.ListClassifications(ctx, domain.ClassificationFilter{
			Guideline: guideline,
			Complete:  &complete,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return fmt.Errorf("listing classifications: %w", err)
		}
		entries = make([]WorklistEntry, 0, len(list))
		for _, c := range list {
			variant, err := tx.GetVariant(ctx, c.VariantID)
			if err != nil {
				return fmt.Errorf("loading variant %d: %w", c.VariantID, err)
			}
			checks, err := tx.ListChecks(ctx, c.ID)
			if err != nil {
				return fmt.Errorf("loading checks of classification %d: %w", c.ID, err)
			}
			entry := WorklistEntry{
				Classification: c,
				Variant:        variant,
				Sample:         SampleInfoFor(c.Source),
				Status:         Status(checks),
			}
			if len(checks) > 0 {
				entry.Assignee = checks[len(checks)-1].User
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"status":    status,
		"guideline": guideline,
		"count":     len(entries),
	}).Debug("Worklist loaded")
	return entries, nil
}

// AuditTrail returns the recorded transitions of a classification.
func (s *ClassificationService) AuditTrail(ctx context.Context, id int64) ([]*domain.AuditEvent, error) {
	if s.audit == nil {
		return []*domain.AuditEvent{}, nil
	}
	return s.audit.List(ctx, id)
}

// Preview scores tokens against a guideline without touching the store.
type Preview struct {
	ScoreResult
	Warnings  []string `json:"warnings,omitempty"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// PreviewScore is the live preview used while a reviewer is still editing.
func (s *ClassificationService) PreviewScore(guideline string, tokens []string) (*Preview, error) {
	return PreviewScore(s.catalogs.Current(), guideline, tokens)
}

// PreviewScore scores tokens against a guideline of cat.
func PreviewScore(cat *catalog.Catalog, guideline string, tokens []string) (*Preview, error) {
	g, err := cat.Guideline(guideline)
	if err != nil {
		return nil, err
	}
	selections, err := ParseSelections(g, tokens)
	if err != nil {
		return nil, err
	}
	answers := answersFromSelections(selections)
	res, err := Score(answers, g)
	if err != nil {
		return nil, err
	}
	return &Preview{
		ScoreResult: res,
		Warnings:    catalog.Warnings(g, appliedCodes(answers)),
		Conflicts:   pairConflicts(g, answers),
	}, nil
}

// mutate runs fn on the classification in one transaction after checking that
// the actor owns the current check. A rejection rolls the transaction back
// and is returned as a failed Outcome.
func (s *ClassificationService) mutate(ctx context.Context, id int64, actor, op string, fn func(ctx context.Context, w *workItem) error) (domain.Outcome, error) {
	fields := logrus.Fields{
		"classification_id": id,
		"actor":             actor,
		"operation":         op,
	}
	var events []*domain.AuditEvent
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
		w, err := loadWorkItem(ctx, tx, s.catalogs.Current(), id, actor, s.now())
		if err != nil {
			return err
		}
		if err := w.authorize(ctx); err != nil {
			return err
		}
		if err := fn(ctx, w); err != nil {
			return err
		}
		events = w.events
		return nil
	})

	var rej *rejection
	switch {
	case errors.As(err, &rej):
		s.logger.WithFields(fields).WithField("reason", rej.outcome.Message).Warn("Operation rejected")
		return rej.outcome, nil
	case err != nil:
		var perm *domain.PermissionError
		if errors.As(err, &perm) {
			s.logger.WithFields(fields).WithField("assignee", perm.Assignee).Warn("Permission denied")
		} else {
			s.logger.WithFields(fields).WithError(err).Error("Operation failed")
		}
		return domain.Outcome{}, err
	}

	s.logger.WithFields(fields).Info("Operation completed")
	s.recordAll(ctx, events)
	return domain.Succeeded(), nil
}

// read runs fn on the classification without claiming or authorizing.
func (s *ClassificationService) read(ctx context.Context, id int64, fn func(ctx context.Context, w *workItem) error) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
		w, err := loadWorkItem(ctx, tx, s.catalogs.Current(), id, "", s.now())
		if err != nil {
			return err
		}
		return fn(ctx, w)
	})
	if err != nil {
		return err
	}
	s.logger.WithField("classification_id", id).Debug("Classification read")
	return nil
}

func (s *ClassificationService) buildForm(ctx context.Context, w *workItem) (*ReviewForm, error) {
	variant, err := w.tx.GetVariant(ctx, w.classification.VariantID)
	if err != nil {
		return nil, fmt.Errorf("loading variant %d: %w", w.classification.VariantID, err)
	}
	ledgers := make(map[int64][]*domain.CodeAnswer, len(w.checks))
	for _, chk := range w.checks {
		answers, err := w.tx.ListCodeAnswers(ctx, chk.ID)
		if err != nil {
			return nil, fmt.Errorf("loading code answers of check %d: %w", chk.ID, err)
		}
		ledgers[chk.ID] = answers
	}

	summary, err := summarize(w.guideline, w.classification, w.checks, ledgers[w.current().ID])
	if err != nil {
		return nil, err
	}
	choices, err := s.reuse.PreviousClassificationChoices(ctx, w.tx, w.guideline, w.classification, w.checks)
	if err != nil {
		return nil, err
	}
	form := &ReviewForm{
		Classification:  w.classification,
		Variant:         variant,
		Sample:          SampleInfoFor(w.classification.Source),
		Checks:          w.checks,
		Summary:         summary,
		PreviousChoices: choices,
	}
	if prev := w.previous(); prev != nil {
		form.Disagreement = compareChecks(prev, w.current(), ledgers[prev.ID], ledgers[w.current().ID])
	}
	if w.current().FullClassification {
		form.CodesByCategory, err = codesByCategory(w.catalog, w.guideline, w.checks, ledgers)
		if err != nil {
			return nil, err
		}
	}
	return form, nil
}

// recordAll writes audit events after a commit. Failures are logged only.
func (s *ClassificationService) recordAll(ctx context.Context, events []*domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	for _, e := range events {
		if err := s.audit.Record(ctx, e); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"classification_id": e.ClassificationID,
				"action":            e.Action,
			}).Warn("Failed to record audit event")
		}
	}
}
