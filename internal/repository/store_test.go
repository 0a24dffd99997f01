package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svd-classify/internal/domain"
)

var errRollback = errors.New("rollback")

// seedClassification creates a variant, a classification and its first check.
func seedClassification(t *testing.T, store domain.Store, hgvsc, guideline string) (*domain.Classification, *domain.Check) {
	t.Helper()
	var (
		c   *domain.Classification
		chk *domain.Check
	)
	now := time.Now().UTC().Truncate(time.Microsecond)
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.StoreTx) error {
		v, err := tx.GetVariantByHGVS(ctx, hgvsc)
		if errors.Is(err, domain.ErrNotFound) {
			v = &domain.Variant{HGVSc: hgvsc, Gene: "BRAF", CreatedAt: now}
			err = tx.CreateVariant(ctx, v)
		}
		if err != nil {
			return err
		}
		c = &domain.Classification{
			VariantID: v.ID,
			Guideline: guideline,
			Source:    domain.AnalysisVariant{SampleID: "24M01234", WorksheetID: "WS140001", Panel: "TSO500"},
			CreatedAt: now,
		}
		seq := c.NextSequence()
		if err := tx.CreateClassification(ctx, c); err != nil {
			return err
		}
		chk = &domain.Check{ClassificationID: c.ID, Sequence: seq, CreatedAt: now}
		return tx.CreateCheck(ctx, chk)
	})
	require.NoError(t, err)
	return c, chk
}

// runStoreContract exercises the behaviour every domain.Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) domain.Store) {
	ctx := context.Background()

	t.Run("variant lookup", func(t *testing.T) {
		store := newStore(t)
		c, _ := seedClassification(t, store, "NM_004333.6:c.1799T>A", "svig_2024")

		err := store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
			v, err := tx.GetVariantByHGVS(ctx, "NM_004333.6:c.1799T>A")
			require.NoError(t, err)
			assert.Equal(t, c.VariantID, v.ID)
			assert.Equal(t, "BRAF", v.Gene)

			_, err = tx.GetVariant(ctx, 9999)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			_, err = tx.GetVariantByHGVS(ctx, "NM_000000.1:c.1A>G")
			assert.ErrorIs(t, err, domain.ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("source round trip", func(t *testing.T) {
		store := newStore(t)
		c, _ := seedClassification(t, store, "NM_004333.6:c.1799T>A", "svig_2024")

		err := store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
			got, err := tx.GetClassification(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.AnalysisVariant{SampleID: "24M01234", WorksheetID: "WS140001", Panel: "TSO500"}, got.Source)
			assert.Equal(t, 1, got.CheckCounter)
			assert.False(t, got.IsComplete())
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		store := newStore(t)
		c, chk := seedClassification(t, store, "NM_004333.6:c.1799T>A", "svig_2024")

		err := store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
			chk.InfoCheck = true
			require.NoError(t, tx.UpdateCheck(ctx, chk))
			require.NoError(t, tx.CreateCodeAnswers(ctx, []*domain.CodeAnswer{domain.NewPendingAnswer(chk.ID, "OS1")}))
			return errRollback
		})
		require.ErrorIs(t, err, errRollback)

		err = store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
			checks, err := tx.ListChecks(ctx, c.ID)
			require.NoError(t, err)
			require.Len(t, checks, 1)
			assert.False(t, checks[0].InfoCheck)

			answers, err := tx.ListCodeAnswers(ctx, chk.ID)
			require.NoError(t, err)
			assert.Empty(t, answers)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("claim once", func(t *testing.T) {
		store := newStore(t)
		_, chk := seedClassification(t, store, "NM_004333.6:c.1799T>A", "svig_2024")

		err := store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
			claimed, err := tx.ClaimCheck(ctx, chk.ID, "alice")
			require.NoError(t, err)
			assert.True(t, claimed)

			claimed, err = tx.ClaimCheck(ctx, chk.ID, "bob")
			require.NoError(t, err)
			assert.False(t, claimed)
			return nil
		})
		require.NoError(t, err)

		err = store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
			checks, err := tx.ListChecks(ctx, chk.ClassificationID)
			require.NoError(t, err)
			assert.Equal(t, "alice", checks[0].User)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("ledger and cascade", func(t *testing.T) {
		store := newStore(t)
		c, first := seedClassification(t, store, "NM_004333.6:c.1799T>A", "svig_2024")

		var second *domain.Check
		err := store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
			second = &domain.Check{ClassificationID: c.ID, Sequence: 2, CreatedAt: time.Now().UTC()}
			require.NoError(t, tx.CreateCheck(ctx, second))

			answers := []*domain.CodeAnswer{
				domain.NewPendingAnswer(second.ID, "OS1"),
				domain.NewPendingAnswer(second.ID, "SBS1"),
			}
			require.NoError(t, tx.CreateCodeAnswers(ctx, answers))
			assert.NotZero(t, answers[0].ID)

			answers[0].Set(domain.ANSWER_APPLIED, "ST")
			require.NoError(t, tx.UpdateCodeAnswer(ctx, answers[0]))
			return nil
		})
		require.NoError(t, err)

		err = store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
			checks, err := tx.ListChecks(ctx, c.ID)
			require.NoError(t, err)
			require.Len(t, checks, 2)
			assert.Equal(t, []int{1, 2}, []int{checks[0].Sequence, checks[1].Sequence})
			assert.Equal(t, first.ID, checks[0].ID)

			answers, err := tx.ListCodeAnswers(ctx, second.ID)
			require.NoError(t, err)
			require.Len(t, answers, 2)
			assert.Equal(t, "OS1_ST", answers[0].Token())
			assert.Equal(t, "SBS1_PE", answers[1].Token())

			require.NoError(t, tx.DeleteCheck(ctx, second.ID))
			answers, err = tx.ListCodeAnswers(ctx, second.ID)
			require.NoError(t, err)
			assert.Empty(t, answers)
			assert.ErrorIs(t, tx.DeleteCheck(ctx, second.ID), domain.ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("latest full classification", func(t *testing.T) {
		store := newStore(t)
		old, _ := seedClassification(t, store, "NM_004333.6:c.1799T>A", "svig_2024")
		recent, _ := seedClassification(t, store, "NM_004333.6:c.1799T>A", "svig_2024")
		other, _ := seedClassification(t, store, "NM_004333.6:c.1799T>A", "acgs_2024")
		current, _ := seedClassification(t, store, "NM_004333.6:c.1799T>A", "svig_2024")

		complete := func(c *domain.Classification, at time.Time, class string) {
			err := store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
				score := 10
				c.FullClassification = true
				c.FinalClass = class
				c.FinalScore = &score
				c.CompleteDate = &at
				return tx.UpdateClassification(ctx, c)
			})
			require.NoError(t, err)
		}
		now := time.Now().UTC().Truncate(time.Microsecond)
		complete(old, now.Add(-48*time.Hour), "VUS")
		complete(recent, now.Add(-24*time.Hour), "Oncogenic")
		complete(other, now, "Pathogenic")

		err := store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
			got, err := tx.LatestFullClassification(ctx, current.VariantID, "svig_2024", current.ID)
			require.NoError(t, err)
			assert.Equal(t, recent.ID, got.ID)
			assert.Equal(t, "Oncogenic", got.FinalClass)
			require.NotNil(t, got.FinalScore)
			assert.Equal(t, 10, *got.FinalScore)

			got, err = tx.LatestFullClassification(ctx, current.VariantID, "svig_2024", recent.ID)
			require.NoError(t, err)
			assert.Equal(t, old.ID, got.ID)

			_, err = tx.LatestFullClassification(ctx, current.VariantID, "acmg_points_2020", current.ID)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("list filters", func(t *testing.T) {
		store := newStore(t)
		a, _ := seedClassification(t, store, "NM_004333.6:c.1799T>A", "svig_2024")
		seedClassification(t, store, "NM_000546.6:c.743G>A", "svig_2024")
		seedClassification(t, store, "NM_007294.4:c.5266dup", "acgs_2024")

		err := store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
			at := time.Now().UTC()
			a.CompleteDate = &at
			return tx.UpdateClassification(ctx, a)
		})
		require.NoError(t, err)

		yes, no := true, false
		tests := []struct {
			name   string
			filter domain.ClassificationFilter
			want   int
		}{
			{"all", domain.ClassificationFilter{}, 3},
			{"by guideline", domain.ClassificationFilter{Guideline: "svig_2024"}, 2},
			{"complete", domain.ClassificationFilter{Complete: &yes}, 1},
			{"pending svig", domain.ClassificationFilter{Guideline: "svig_2024", Complete: &no}, 1},
			{"limit", domain.ClassificationFilter{Limit: 2}, 2},
			{"offset past end", domain.ClassificationFilter{Offset: 5}, 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := store.WithinTx(ctx, func(ctx context.Context, tx domain.StoreTx) error {
					got, err := tx.ListClassifications(ctx, tt.filter)
					require.NoError(t, err)
					assert.Len(t, got, tt.want)
					return nil
				})
				require.NoError(t, err)
			})
		}
	})
}
