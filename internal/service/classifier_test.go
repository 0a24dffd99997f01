package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svd-classify/internal/audit"
	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/domain"
	"github.com/svd-classify/internal/repository"
)

const (
	braf     = "NM_004333.6:c.1799T>A"
	reviewer = "alice"
	checker  = "bob"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *ClassificationService
	store *repository.MemoryStore
	g     *domain.Guideline
	clock *fakeClock
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	builtin, err := catalog.Builtin()
	require.NoError(t, err)
	guidelines := append(builtin, loadGuideline(t, e2eGuidelineYAML), loadGuideline(t, boundaryGuidelineYAML))
	cat, err := catalog.NewCatalog(guidelines, 16)
	require.NoError(t, err)
	return cat
}

func newFixture(t *testing.T, cfg domain.SignoffConfig, opts ...Option) *fixture {
	t.Helper()
	logger := testLogger()
	cat := testCatalog(t)
	g, err := cat.Guideline("e2e_test")
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore(logger)
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	svc := NewClassificationService(store, catalog.NewStaticRegistry(cat, logger), cfg, logger, opts...)
	return &fixture{svc: svc, store: store, g: g, clock: clock}
}

func (f *fixture) create(t *testing.T, hgvsc string) *domain.Classification {
	t.Helper()
	c, err := f.svc.CreateClassification(context.Background(), CreateClassificationParams{
		Variant:   domain.Variant{HGVSc: hgvsc, Gene: "BRAF"},
		Guideline: f.g.Name,
		Source:    domain.AnalysisVariant{SampleID: "24M01234", WorksheetID: "WS140001", Panel: "TSO500"},
		Actor:     reviewer,
	})
	require.NoError(t, err)
	return c
}

// fillTokens marks every code not named in tokens as not applied.
func (f *fixture) fillTokens(tokens ...string) []string {
	named := make(map[string]bool)
	for _, token := range tokens {
		for _, part := range strings.Split(token, catalog.ValueSeparator) {
			named[strings.SplitN(part, catalog.KeySeparator, 2)[0]] = true
		}
	}
	out := append([]string{}, tokens...)
	for _, code := range f.g.Codes() {
		if !named[code] {
			out = append(out, code+"_"+domain.NotAppliedToken)
		}
	}
	return out
}

// requireSuccess wraps a (domain.Outcome, error) result so a call can be
// passed straight in: requireSuccess(t)(svc.CompleteInfoTab(...)).
func requireSuccess(t *testing.T) func(domain.Outcome, error) {
	t.Helper()
	return func(outcome domain.Outcome, err error) {
		t.Helper()
		require.NoError(t, err)
		require.True(t, outcome.Success, outcome.Message)
	}
}

// fullCheck takes the current check through every tab with a fresh ledger.
func (f *fixture) fullCheck(t *testing.T, id int64, actor string, tokens ...string) {
	t.Helper()
	ctx := context.Background()

	_, err := f.svc.Open(ctx, id, actor)
	require.NoError(t, err)
	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, id, actor))
	requireSuccess(t)(f.svc.CompletePreviousClassTab(ctx, id, actor, domain.NEW_CHOICE))
	outcome, _, err := f.svc.UpdateCodes(ctx, id, actor, f.fillTokens(tokens...))
	requireSuccess(t)(outcome, err)
	requireSuccess(t)(f.svc.CompleteClassificationTab(ctx, id, actor, domain.NoOverride))
}

func (f *fixture) checks(t *testing.T, id int64) []*domain.Check {
	t.Helper()
	var checks []*domain.Check
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx domain.StoreTx) error {
		var err error
		checks, err = tx.ListChecks(ctx, id)
		return err
	})
	require.NoError(t, err)
	return checks
}

func (f *fixture) answers(t *testing.T, checkID int64) []*domain.CodeAnswer {
	t.Helper()
	var answers []*domain.CodeAnswer
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx domain.StoreTx) error {
		var err error
		answers, err = tx.ListCodeAnswers(ctx, checkID)
		return err
	})
	require.NoError(t, err)
	return answers
}

func (f *fixture) classification(t *testing.T, id int64) *domain.Classification {
	t.Helper()
	var c *domain.Classification
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx domain.StoreTx) error {
		var err error
		c, err = tx.GetClassification(ctx, id)
		return err
	})
	require.NoError(t, err)
	return c
}

// completeTwoChecks runs two full checks that agree and completes the classification.
func (f *fixture) completeTwoChecks(t *testing.T, id int64, tokens ...string) {
	t.Helper()
	ctx := context.Background()
	f.fullCheck(t, id, reviewer, tokens...)
	requireSuccess(t)(f.svc.Signoff(ctx, id, reviewer, domain.EXTRA_CHECK))
	f.fullCheck(t, id, checker, tokens...)
	requireSuccess(t)(f.svc.Signoff(ctx, id, checker, domain.COMPLETE_CLASSIFICATION))
}

func TestCreateClassification(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())

	c := f.create(t, braf)
	assert.Equal(t, "e2e_test", c.Guideline)
	assert.Equal(t, 1, c.CheckCounter)

	checks := f.checks(t, c.ID)
	require.Len(t, checks, 1)
	assert.Equal(t, 1, checks[0].Sequence)
	assert.Empty(t, checks[0].User)
	assert.False(t, checks[0].InfoCheck)

	// The same variant is registered once
	again := f.create(t, braf)
	assert.Equal(t, c.VariantID, again.VariantID)
	assert.NotEqual(t, c.ID, again.ID)
}

func TestCreateClassification_Rejected(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()

	_, err := f.svc.CreateClassification(ctx, CreateClassificationParams{
		Variant:   domain.Variant{HGVSc: braf},
		Guideline: "acmg_2015",
	})
	assert.ErrorIs(t, err, domain.ErrUnknownGuideline)

	_, err = f.svc.CreateClassification(ctx, CreateClassificationParams{
		Variant:   domain.Variant{HGVSc: "BRAF V600E"},
		Guideline: f.g.Name,
	})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCheckGating(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	c := f.create(t, braf)

	outcome, err := f.svc.Signoff(ctx, c.ID, reviewer, domain.EXTRA_CHECK)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "Variant information tab is not complete", outcome.Message)

	outcome, err = f.svc.CompletePreviousClassTab(ctx, c.ID, reviewer, domain.NEW_CHOICE)
	require.NoError(t, err)
	assert.False(t, outcome.Success, "tabs cannot be skipped")

	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, c.ID, reviewer))
	outcome, err = f.svc.Signoff(ctx, c.ID, reviewer, domain.EXTRA_CHECK)
	require.NoError(t, err)
	assert.Equal(t, "Previous classifications tab is not complete", outcome.Message)

	outcome, err = f.svc.CompleteClassificationTab(ctx, c.ID, reviewer, domain.NoOverride)
	require.NoError(t, err)
	assert.False(t, outcome.Success)

	requireSuccess(t)(f.svc.CompletePreviousClassTab(ctx, c.ID, reviewer, domain.NEW_CHOICE))
	outcome, err = f.svc.Signoff(ctx, c.ID, reviewer, domain.EXTRA_CHECK)
	require.NoError(t, err)
	assert.Equal(t, "Classification tab is not complete", outcome.Message)

	chk := f.checks(t, c.ID)[0]
	assert.False(t, chk.CheckComplete)
	assert.Nil(t, chk.SignoffTime)

	outcome, _, err = f.svc.UpdateCodes(ctx, c.ID, reviewer, f.fillTokens("OS1_S1"))
	requireSuccess(t)(outcome, err)
	requireSuccess(t)(f.svc.CompleteClassificationTab(ctx, c.ID, reviewer, domain.NoOverride))
	requireSuccess(t)(f.svc.Signoff(ctx, c.ID, reviewer, domain.EXTRA_CHECK))

	checks := f.checks(t, c.ID)
	require.Len(t, checks, 2)
	assert.True(t, checks[0].CheckComplete)
	require.NotNil(t, checks[0].SignoffTime)
	assert.Equal(t, f.clock.Now(), *checks[0].SignoffTime)
	assert.Equal(t, 2, checks[1].Sequence)
}

func TestCompleteInfoTab_Twice(t *testing.T) {
	store, err := audit.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := newFixture(t, domain.DefaultSignoffConfig(), WithAudit(store))
	ctx := context.Background()
	c := f.create(t, braf)

	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, c.ID, reviewer))
	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, c.ID, reviewer))

	checks := f.checks(t, c.ID)
	require.Len(t, checks, 1)
	assert.True(t, checks[0].InfoCheck)

	events, err := f.svc.AuditTrail(ctx, c.ID)
	require.NoError(t, err)
	infoEvents := 0
	for _, e := range events {
		if e.Action == domain.AUDIT_INFO_COMPLETED {
			infoEvents++
		}
	}
	assert.Equal(t, 1, infoEvents)
}

func TestCompleteClassificationTab_PendingCodes(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	c := f.create(t, braf)

	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, c.ID, reviewer))
	requireSuccess(t)(f.svc.CompletePreviousClassTab(ctx, c.ID, reviewer, domain.NEW_CHOICE))
	outcome, summary, err := f.svc.UpdateCodes(ctx, c.ID, reviewer, []string{"OS1_S1", "BS1_NA"})
	requireSuccess(t)(outcome, err)
	require.NotNil(t, summary.CurrentScore)
	assert.Equal(t, 4, *summary.CurrentScore)
	assert.Equal(t, "Oncogenic", summary.CurrentClass)

	outcome, err = f.svc.CompleteClassificationTab(ctx, c.ID, reviewer, domain.NoOverride)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "3 codes still pending", outcome.Message)
}

func TestCompleteClassificationTab_Override(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	c := f.create(t, braf)

	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, c.ID, reviewer))
	requireSuccess(t)(f.svc.CompletePreviousClassTab(ctx, c.ID, reviewer, domain.NEW_CHOICE))
	outcome, _, err := f.svc.UpdateCodes(ctx, c.ID, reviewer, f.fillTokens("OS1_S1"))
	requireSuccess(t)(outcome, err)

	outcome, err = f.svc.CompleteClassificationTab(ctx, c.ID, reviewer, "Pathogenic")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Message, "is not a classification in e2e_test")

	requireSuccess(t)(f.svc.CompleteClassificationTab(ctx, c.ID, reviewer, "VUS"))
	chk := f.checks(t, c.ID)[0]
	assert.Equal(t, "VUS", chk.FinalClass)
	assert.True(t, chk.FinalClassOverridden)
	require.NotNil(t, chk.FinalScore)
	assert.Equal(t, 4, *chk.FinalScore)

	summary, err := f.svc.Summary(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "VUS", summary.CurrentClass, "the override wins once the tab is complete")
	assert.Equal(t, 4, *summary.CurrentScore)
}

func TestUpdateCodes(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	c := f.create(t, braf)

	outcome, _, err := f.svc.UpdateCodes(ctx, c.ID, reviewer, []string{"OS1_S1"})
	require.NoError(t, err)
	assert.False(t, outcome.Success, "codes are locked until the classification tab opens")

	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, c.ID, reviewer))
	requireSuccess(t)(f.svc.CompletePreviousClassTab(ctx, c.ID, reviewer, domain.NEW_CHOICE))

	ledger := f.answers(t, f.checks(t, c.ID)[0].ID)
	require.Len(t, ledger, len(f.g.Criteria))
	for _, a := range ledger {
		assert.True(t, a.IsPending(), a.Code)
	}

	_, _, err = f.svc.UpdateCodes(ctx, c.ID, reviewer, []string{"PVS1_VS"})
	assert.ErrorIs(t, err, domain.ErrUnknownCode)

	_, _, err = f.svc.UpdateCodes(ctx, c.ID, reviewer, []string{"OS1-S1"})
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	outcome, _, err = f.svc.UpdateCodes(ctx, c.ID, reviewer, []string{"OP1_SU|SBP1_SU"})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "Only one code of OP1_SBP1 can be applied", outcome.Message)

	outcome, summary, err := f.svc.UpdateCodes(ctx, c.ID, reviewer, []string{"OP1_SU|SBP1_NA", "OVS1_VS", "OS1_SU"})
	requireSuccess(t)(outcome, err)
	assert.Equal(t, 10, *summary.CurrentScore)
	assert.Equal(t, []string{"WARNING: OVS1 and OS1 should not both be used"}, summary.Warnings)
}

func TestSignoff_CompleteNeedsTwoChecks(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	c := f.create(t, braf)
	f.fullCheck(t, c.ID, reviewer, "OVS1_VS")

	outcome, err := f.svc.Signoff(ctx, c.ID, reviewer, domain.COMPLETE_CLASSIFICATION)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, "Cannot complete analysis, two checks required", outcome.Message)

	chk := f.checks(t, c.ID)[0]
	assert.False(t, chk.CheckComplete, "a rejected signoff leaves the check open")
	assert.False(t, f.classification(t, c.ID).IsComplete())
}

func TestSignoff_SingleCheckConfigured(t *testing.T) {
	cfg := domain.DefaultSignoffConfig()
	cfg.RequiredChecks = 1
	f := newFixture(t, cfg)
	c := f.create(t, braf)
	f.fullCheck(t, c.ID, reviewer, "OS1_S1")

	requireSuccess(t)(f.svc.Signoff(context.Background(), c.ID, reviewer, domain.COMPLETE_CLASSIFICATION))
	assert.Equal(t, "Oncogenic", f.classification(t, c.ID).FinalClass)
}

func TestSignoff_TwoChecksComplete(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	c := f.create(t, braf)

	f.completeTwoChecks(t, c.ID, "OVS1_VS")

	got := f.classification(t, c.ID)
	assert.Equal(t, "Oncogenic", got.FinalClass)
	require.NotNil(t, got.FinalScore)
	assert.Equal(t, 8, *got.FinalScore)
	assert.False(t, got.FinalClassOverridden)
	require.NotNil(t, got.CompleteDate)
	assert.True(t, got.FullClassification)

	summary, err := f.svc.Summary(context.Background(), c.ID)
	require.NoError(t, err)
	assert.True(t, summary.Complete)
	assert.Equal(t, StatusComplete, summary.Status)

	outcome, err := f.svc.CompleteInfoTab(context.Background(), c.ID, checker)
	require.NoError(t, err)
	assert.Equal(t, "Classification is already complete", outcome.Message)
}

func TestSignoff_SendBack(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	c := f.create(t, braf)
	f.fullCheck(t, c.ID, reviewer, "OS1_S1")

	outcome, err := f.svc.Signoff(ctx, c.ID, reviewer, domain.SEND_BACK)
	require.NoError(t, err)
	assert.Equal(t, "Cannot send back, this is the first check", outcome.Message)
	assert.False(t, f.checks(t, c.ID)[0].CheckComplete)

	requireSuccess(t)(f.svc.Signoff(ctx, c.ID, reviewer, domain.EXTRA_CHECK))
	f.fullCheck(t, c.ID, checker, "BS1_S1")
	before := f.checks(t, c.ID)
	require.Len(t, before, 2)
	deleted := before[1]

	requireSuccess(t)(f.svc.Signoff(ctx, c.ID, checker, domain.SEND_BACK))

	after := f.checks(t, c.ID)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.False(t, after[0].CheckComplete)
	assert.Nil(t, after[0].SignoffTime)
	assert.Empty(t, f.answers(t, deleted.ID))

	// The reopened check belongs to its original reviewer and sequences are not reused
	_, err = f.svc.ReopenClassificationTab(ctx, c.ID, checker)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	requireSuccess(t)(f.svc.ReopenClassificationTab(ctx, c.ID, reviewer))
	requireSuccess(t)(f.svc.CompleteClassificationTab(ctx, c.ID, reviewer, domain.NoOverride))
	requireSuccess(t)(f.svc.Signoff(ctx, c.ID, reviewer, domain.EXTRA_CHECK))
	checks := f.checks(t, c.ID)
	require.Len(t, checks, 2)
	assert.Equal(t, 3, checks[1].Sequence)
}

func TestSignoff_Disagreement(t *testing.T) {
	tests := []struct {
		name    string
		strict  bool
		success bool
	}{
		{"lenient completes despite disagreement", false, true},
		{"strict rejects disagreement", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultSignoffConfig()
			cfg.RequireAgreement = tt.strict
			f := newFixture(t, cfg)
			ctx := context.Background()
			c := f.create(t, braf)

			f.fullCheck(t, c.ID, reviewer, "OVS1_VS")
			requireSuccess(t)(f.svc.Signoff(ctx, c.ID, reviewer, domain.EXTRA_CHECK))
			f.fullCheck(t, c.ID, checker, "OS1_SU")

			d, err := f.svc.Disagreements(ctx, c.ID)
			require.NoError(t, err)
			assert.False(t, d.Agrees())
			assert.False(t, d.FinalClassMatches)
			assert.Equal(t, []CodeDifference{
				{Code: "OS1", Previous: "OS1_NA", Current: "OS1_SU"},
				{Code: "OVS1", Previous: "OVS1_VS", Current: "OVS1_NA"},
			}, d.Codes)

			outcome, err := f.svc.Signoff(ctx, c.ID, checker, domain.COMPLETE_CLASSIFICATION)
			require.NoError(t, err)
			assert.Equal(t, tt.success, outcome.Success, outcome.Message)
			if !tt.success {
				assert.Equal(t, "Cannot complete analysis, the last two checks disagree", outcome.Message)
			}
		})
	}
}

func TestPermission(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	c := f.create(t, braf)

	form, err := f.svc.Open(ctx, c.ID, reviewer)
	require.NoError(t, err)
	assert.Equal(t, reviewer, form.Summary.Assignee)

	// Others may look but not touch
	form, err = f.svc.Open(ctx, c.ID, checker)
	require.NoError(t, err)
	assert.Equal(t, reviewer, form.Summary.Assignee)

	_, err = f.svc.CompleteInfoTab(ctx, c.ID, checker)
	var perm *domain.PermissionError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, reviewer, perm.Assignee)
	assert.Equal(t, checker, perm.Actor)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	assert.False(t, f.checks(t, c.ID)[0].InfoCheck)
}

func TestReopenCascade(t *testing.T) {
	reopeners := map[string]func(s *ClassificationService, ctx context.Context, id int64, actor string) (domain.Outcome, error){
		"info tab":           (*ClassificationService).ReopenInfoTab,
		"previous class tab": (*ClassificationService).ReopenPreviousClassTab,
		"classification tab": (*ClassificationService).ReopenClassificationTab,
	}

	for name, reopen := range reopeners {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, domain.DefaultSignoffConfig())
			ctx := context.Background()
			c := f.create(t, braf)
			f.fullCheck(t, c.ID, reviewer, "OS1_S1")

			requireSuccess(t)(reopen(f.svc, ctx, c.ID, reviewer))

			chk := f.checks(t, c.ID)[0]
			assert.False(t, chk.ClassificationCheck)
			assert.Empty(t, chk.FinalClass)
			assert.Nil(t, chk.FinalScore)
			switch name {
			case "info tab":
				assert.False(t, chk.InfoCheck)
				assert.False(t, chk.PreviousClassificationsCheck)
				assert.Empty(t, f.answers(t, chk.ID))
			case "previous class tab":
				assert.True(t, chk.InfoCheck)
				assert.False(t, chk.PreviousClassificationsCheck)
				assert.Empty(t, f.answers(t, chk.ID))
			case "classification tab":
				assert.True(t, chk.PreviousClassificationsCheck)
				assert.Len(t, f.answers(t, chk.ID), len(f.g.Criteria), "the ledger survives")
			}

			// Reopening again is harmless
			requireSuccess(t)(reopen(f.svc, ctx, c.ID, reviewer))
		})
	}
}

func TestReopenInfoTab_FromAnyState(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	c := f.create(t, braf)

	requireSuccess(t)(f.svc.ReopenInfoTab(ctx, c.ID, reviewer))
	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, c.ID, reviewer))
	requireSuccess(t)(f.svc.CompletePreviousClassTab(ctx, c.ID, reviewer, domain.NEW_CHOICE))
	requireSuccess(t)(f.svc.ReopenInfoTab(ctx, c.ID, reviewer))

	chk := f.checks(t, c.ID)[0]
	assert.False(t, chk.InfoCheck)
	assert.False(t, chk.PreviousClassificationsCheck)
	assert.False(t, chk.ClassificationCheck)
	assert.False(t, chk.FullClassification)
	assert.Empty(t, f.answers(t, chk.ID))
}

func TestReopenCheck(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	c := f.create(t, braf)
	f.completeTwoChecks(t, c.ID, "OVS1_VS")

	outcome, err := f.svc.ReopenInfoTab(ctx, c.ID, checker)
	require.NoError(t, err)
	assert.Equal(t, "Classification is complete, reopen the check first", outcome.Message)

	requireSuccess(t)(f.svc.ReopenCheck(ctx, c.ID, checker))

	got := f.classification(t, c.ID)
	assert.False(t, got.IsComplete())
	assert.Empty(t, got.FinalClass)
	assert.Nil(t, got.FinalScore)

	checks := f.checks(t, c.ID)
	assert.False(t, checks[1].CheckComplete)
	assert.True(t, checks[1].ClassificationCheck, "tabs stay complete")

	requireSuccess(t)(f.svc.Signoff(ctx, c.ID, checker, domain.COMPLETE_CLASSIFICATION))
	assert.True(t, f.classification(t, c.ID).IsComplete())
}

func TestReuse_PreviousClassification(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	first := f.create(t, braf)
	f.completeTwoChecks(t, first.ID, "OVS1_VS")

	f.clock.Advance(30 * 24 * time.Hour)
	second := f.create(t, braf)

	choices, err := f.svc.PreviousChoices(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, choices.Options, 2)
	assert.Equal(t, domain.PREVIOUS_CHOICE, choices.Options[0].Value)
	assert.Equal(t, "Use previous classification - Oncogenic (1 month ago)", choices.Options[0].Label)
	assert.Equal(t, domain.NEW_CHOICE, choices.Options[1].Value)
	assert.False(t, choices.NeedsReview)
	assert.Equal(t, first.ID, choices.Previous.ID)

	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, second.ID, reviewer))
	requireSuccess(t)(f.svc.CompletePreviousClassTab(ctx, second.ID, reviewer, domain.PREVIOUS_CHOICE))

	chk := f.checks(t, second.ID)[0]
	assert.True(t, chk.ClassificationCheck)
	assert.False(t, chk.FullClassification)
	assert.Equal(t, "Oncogenic", chk.FinalClass)
	assert.Equal(t, 8, *chk.FinalScore)
	assert.Empty(t, f.answers(t, chk.ID))

	got := f.classification(t, second.ID)
	require.NotNil(t, got.ReusedClassificationID)
	assert.Equal(t, first.ID, *got.ReusedClassificationID)

	// A second reviewer is locked to the reuse path
	requireSuccess(t)(f.svc.Signoff(ctx, second.ID, reviewer, domain.EXTRA_CHECK))
	choices, err = f.svc.PreviousChoices(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, choices.Options, 1)
	assert.Equal(t, domain.PREVIOUS_CHOICE, choices.Options[0].Value)

	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, second.ID, checker))
	outcome, err := f.svc.CompletePreviousClassTab(ctx, second.ID, checker, domain.NEW_CHOICE)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	requireSuccess(t)(f.svc.CompletePreviousClassTab(ctx, second.ID, checker, domain.PREVIOUS_CHOICE))
	requireSuccess(t)(f.svc.Signoff(ctx, second.ID, checker, domain.COMPLETE_CLASSIFICATION))

	got = f.classification(t, second.ID)
	assert.Equal(t, "Oncogenic", got.FinalClass)
	assert.False(t, got.FullClassification)

	// A reused classification is never offered for reuse itself
	third := f.create(t, braf)
	choices, err = f.svc.PreviousChoices(ctx, third.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, choices.Previous.ID)
}

func TestReuse_StaleVUS(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	first := f.create(t, braf)
	f.completeTwoChecks(t, first.ID)
	require.Equal(t, "VUS", f.classification(t, first.ID).FinalClass)

	f.clock.Advance(monthsToDuration(7))
	second := f.create(t, braf)

	choices, err := f.svc.PreviousChoices(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, choices.NeedsReview)
	require.Len(t, choices.Options, 1)
	assert.Equal(t, domain.NEW_CHOICE, choices.Options[0].Value)

	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, second.ID, reviewer))
	outcome, err := f.svc.CompletePreviousClassTab(ctx, second.ID, reviewer, domain.PREVIOUS_CHOICE)
	require.NoError(t, err)
	assert.False(t, outcome.Success, "a stale classification cannot be reused")
}

func TestOpen_ReviewForm(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	c := f.create(t, braf)

	form, err := f.svc.Open(ctx, c.ID, reviewer)
	require.NoError(t, err)
	assert.Equal(t, "BRAF", form.Variant.Gene)
	assert.Equal(t, "24M01234", form.Sample.SampleID)
	assert.Equal(t, "Check 1", form.Summary.Status)
	assert.Nil(t, form.CodesByCategory, "no ledger before the previous classifications tab")
	assert.False(t, form.Disagreement.Compared)

	requireSuccess(t)(f.svc.CompleteInfoTab(ctx, c.ID, reviewer))
	requireSuccess(t)(f.svc.CompletePreviousClassTab(ctx, c.ID, reviewer, domain.NEW_CHOICE))
	outcome, _, err := f.svc.UpdateCodes(ctx, c.ID, reviewer, []string{"OVS1_VS", "OS1_NA", "OP1_SU|SBP1_NA"})
	requireSuccess(t)(outcome, err)

	form, err = f.svc.Open(ctx, c.ID, reviewer)
	require.NoError(t, err)
	require.Len(t, form.CodesByCategory, 2)

	gene := form.CodesByCategory[0]
	assert.Equal(t, "gene_and_variant_type", gene.Category)
	assert.Equal(t, "Gene And Variant Type", gene.Pretty)
	assert.True(t, gene.Complete)
	assert.Equal(t, []string{"OP1_SU", "OVS1_VS"}, gene.AppliedCodes)

	var pair CodeRow
	for _, row := range gene.Codes {
		if row.Key == "OP1_SBP1" {
			pair = row
		}
	}
	assert.Equal(t, []string{"OP1", "SBP1"}, pair.List)
	assert.Equal(t, "OP1_SU|SBP1_NA", pair.Value)
	assert.NotEmpty(t, pair.Dropdown)
	assert.Len(t, pair.AllChecks, 1)

	population := form.CodesByCategory[1]
	assert.False(t, population.Complete, "BS1 is still pending")
	assert.Equal(t, 9, *form.Summary.CurrentScore)
}

func TestWorklist(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	ctx := context.Background()
	done := f.create(t, braf)
	f.completeTwoChecks(t, done.ID, "OS1_S1")
	open := f.create(t, "NM_000546.6:c.817C>T")

	pendingList, err := f.svc.Worklist(ctx, domain.PENDING_WORKLIST, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, pendingList, 1)
	assert.Equal(t, open.ID, pendingList[0].Classification.ID)
	assert.Equal(t, "Check 1", pendingList[0].Status)
	assert.Equal(t, domain.ANALYSIS_SOURCE, pendingList[0].Sample.Source)

	completeList, err := f.svc.Worklist(ctx, domain.COMPLETE_WORKLIST, "e2e_test", 0, 0)
	require.NoError(t, err)
	require.Len(t, completeList, 1)
	assert.Equal(t, StatusComplete, completeList[0].Status)
	assert.Equal(t, checker, completeList[0].Assignee)

	none, err := f.svc.Worklist(ctx, domain.COMPLETE_WORKLIST, "svig_2024", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.Worklist(ctx, "archived", "", 0, 0)
	assert.Error(t, err)
}

func TestAuditTrail(t *testing.T) {
	store, err := audit.NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := newFixture(t, domain.DefaultSignoffConfig(), WithAudit(store))
	ctx := context.Background()
	c := f.create(t, braf)
	f.completeTwoChecks(t, c.ID, "OS1_S1")

	// Rejections leave no trace
	_, err = f.svc.CompleteInfoTab(ctx, c.ID, checker)
	require.NoError(t, err)

	events, err := f.svc.AuditTrail(ctx, c.ID)
	require.NoError(t, err)

	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		domain.AUDIT_CREATED,
		domain.AUDIT_CLAIMED,
		domain.AUDIT_INFO_COMPLETED,
		domain.AUDIT_PREVIOUS_COMPLETED,
		domain.AUDIT_CODES_UPDATED,
		domain.AUDIT_CLASSIFY_COMPLETED,
		domain.AUDIT_EXTRA_CHECK,
		domain.AUDIT_CLAIMED,
		domain.AUDIT_INFO_COMPLETED,
		domain.AUDIT_PREVIOUS_COMPLETED,
		domain.AUDIT_CODES_UPDATED,
		domain.AUDIT_CLASSIFY_COMPLETED,
		domain.AUDIT_CLASSIFICATION_FINAL,
	}, actions)
	assert.Equal(t, checker, events[len(events)-1].Actor)
}

func TestAuditTrail_Disabled(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	events, err := f.svc.AuditTrail(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSignoff_InvalidNextStep(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())
	c := f.create(t, braf)

	_, err := f.svc.Signoff(context.Background(), c.ID, reviewer, "X")
	assert.ErrorIs(t, err, domain.ErrInvalidNextStep)
}

func TestOpen_NotFound(t *testing.T) {
	f := newFixture(t, domain.DefaultSignoffConfig())

	_, err := f.svc.Open(context.Background(), 42, reviewer)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
