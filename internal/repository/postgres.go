package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/svd-classify/internal/domain"
)

// PostgresStore persists classifications in PostgreSQL
type PostgresStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresStore creates a new classification store
func NewPostgresStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: logger,
	}
}

// WithinTx runs fn in a database transaction, committing only if fn succeeds.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.WithError(rbErr).Warn("Failed to roll back transaction")
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.WithError(err).Error("Failed to commit transaction")
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

const variantColumns = `id, hgvs_c, hgvs_p, gene, transcript, exon, genomic_coords, genome_build, created_at`

const classificationColumns = `id, variant_id, guideline, source_kind, source_payload,
	full_classification, final_class, final_score, final_class_overridden,
	complete_date, reused_classification_id, check_counter, created_at`

const checkColumns = `id, classification_id, sequence, info_check, previous_classifications_check,
	classification_check, check_complete, full_classification, final_class, final_score,
	final_class_overridden, assignee, signoff_time, created_at`

func (t *pgTx) CreateVariant(ctx context.Context, v *domain.Variant) error {
	query := `
		INSERT INTO variants (hgvs_c, hgvs_p, gene, transcript, exon, genomic_coords, genome_build, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := t.tx.QueryRow(ctx, query,
		v.HGVSc, v.HGVSp, v.Gene, v.Transcript, v.Exon, v.GenomicCoords, v.GenomeBuild, v.CreatedAt,
	).Scan(&v.ID)
	if err != nil {
		return fmt.Errorf("creating variant: %w", err)
	}
	return nil
}

func (t *pgTx) GetVariant(ctx context.Context, id int64) (*domain.Variant, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+variantColumns+` FROM variants WHERE id = $1`, id)
	v, err := scanVariant(row)
	if err != nil {
		return nil, notFound(err, "variant %d", id)
	}
	return v, nil
}

func (t *pgTx) GetVariantByHGVS(ctx context.Context, hgvsc string) (*domain.Variant, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+variantColumns+` FROM variants WHERE hgvs_c = $1`, hgvsc)
	v, err := scanVariant(row)
	if err != nil {
		return nil, notFound(err, "variant %s", hgvsc)
	}
	return v, nil
}

func (t *pgTx) CreateClassification(ctx context.Context, c *domain.Classification) error {
	kind, payload, err := domain.EncodeVariantSource(c.Source)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO classifications (
			variant_id, guideline, source_kind, source_payload,
			full_classification, final_class, final_score, final_class_overridden,
			complete_date, reused_classification_id, check_counter, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	err = t.tx.QueryRow(ctx, query,
		c.VariantID, c.Guideline, string(kind), payload,
		c.FullClassification, c.FinalClass, c.FinalScore, c.FinalClassOverridden,
		c.CompleteDate, c.ReusedClassificationID, c.CheckCounter, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("creating classification: %w", err)
	}
	return nil
}

func (t *pgTx) GetClassification(ctx context.Context, id int64) (*domain.Classification, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+classificationColumns+` FROM classifications WHERE id = $1`, id)
	c, err := scanClassification(row)
	if err != nil {
		return nil, notFound(err, "classification %d", id)
	}
	return c, nil
}

func (t *pgTx) UpdateClassification(ctx context.Context, c *domain.Classification) error {
	query := `
		UPDATE classifications SET
			full_classification = $2, final_class = $3, final_score = $4,
			final_class_overridden = $5, complete_date = $6,
			reused_classification_id = $7, check_counter = $8
		WHERE id = $1`

	tag, err := t.tx.Exec(ctx, query,
		c.ID, c.FullClassification, c.FinalClass, c.FinalScore,
		c.FinalClassOverridden, c.CompleteDate, c.ReusedClassificationID, c.CheckCounter,
	)
	if err != nil {
		return fmt.Errorf("updating classification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("classification %d: %w", c.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ListClassifications(ctx context.Context, filter domain.ClassificationFilter) ([]*domain.Classification, error) {
	var (
		where []string
		args  []any
	)
	if filter.Guideline != "" {
		args = append(args, filter.Guideline)
		where = append(where, fmt.Sprintf("guideline = $%d", len(args)))
	}
	if filter.VariantID != 0 {
		args = append(args, filter.VariantID)
		where = append(where, fmt.Sprintf("variant_id = $%d", len(args)))
	}
	if filter.Complete != nil {
		if *filter.Complete {
			where = append(where, "complete_date IS NOT NULL")
		} else {
			where = append(where, "complete_date IS NULL")
		}
	}

	query := `SELECT ` + classificationColumns + ` FROM classifications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing classifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.Classification
	for rows.Next() {
		c, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning classification: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) LatestFullClassification(ctx context.Context, variantID int64, guideline string, excludeID int64) (*domain.Classification, error) {
	query := `SELECT ` + classificationColumns + ` FROM classifications
		WHERE variant_id = $1 AND guideline = $2 AND id <> $3
			AND full_classification AND complete_date IS NOT NULL
		ORDER BY complete_date DESC, id DESC
		LIMIT 1`

	c, err := scanClassification(t.tx.QueryRow(ctx, query, variantID, guideline, excludeID))
	if err != nil {
		return nil, notFound(err, "full classification of variant %d", variantID)
	}
	return c, nil
}

func (t *pgTx) ListChecks(ctx context.Context, classificationID int64) ([]*domain.Check, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+checkColumns+` FROM checks WHERE classification_id = $1 ORDER BY sequence`,
		classificationID)
	if err != nil {
		return nil, fmt.Errorf("listing checks: %w", err)
	}
	defer rows.Close()

	var out []*domain.Check
	for rows.Next() {
		chk, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning check: %w", err)
		}
		out = append(out, chk)
	}
	return out, rows.Err()
}

func (t *pgTx) CreateCheck(ctx context.Context, chk *domain.Check) error {
	query := `
		INSERT INTO checks (
			classification_id, sequence, info_check, previous_classifications_check,
			classification_check, check_complete, full_classification, final_class,
			final_score, final_class_overridden, assignee, signoff_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	err := t.tx.QueryRow(ctx, query,
		chk.ClassificationID, chk.Sequence, chk.InfoCheck, chk.PreviousClassificationsCheck,
		chk.ClassificationCheck, chk.CheckComplete, chk.FullClassification, chk.FinalClass,
		chk.FinalScore, chk.FinalClassOverridden, nullString(chk.User), chk.SignoffTime, chk.CreatedAt,
	).Scan(&chk.ID)
	if err != nil {
		return fmt.Errorf("creating check: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateCheck(ctx context.Context, chk *domain.Check) error {
	query := `
		UPDATE checks SET
			info_check = $2, previous_classifications_check = $3, classification_check = $4,
			check_complete = $5, full_classification = $6, final_class = $7, final_score = $8,
			final_class_overridden = $9, assignee = $10, signoff_time = $11
		WHERE id = $1`

	tag, err := t.tx.Exec(ctx, query,
		chk.ID, chk.InfoCheck, chk.PreviousClassificationsCheck, chk.ClassificationCheck,
		chk.CheckComplete, chk.FullClassification, chk.FinalClass, chk.FinalScore,
		chk.FinalClassOverridden, nullString(chk.User), chk.SignoffTime,
	)
	if err != nil {
		return fmt.Errorf("updating check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("check %d: %w", chk.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteCheck removes a check; its ledger goes with it by cascade.
func (t *pgTx) DeleteCheck(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM checks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("check %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ClaimCheck(ctx context.Context, checkID int64, user string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE checks SET assignee = $2 WHERE id = $1 AND assignee IS NULL`, checkID, user)
	if err != nil {
		return false, fmt.Errorf("claiming check: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) ListCodeAnswers(ctx context.Context, checkID int64) ([]*domain.CodeAnswer, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, check_id, code, state, applied_strength FROM code_answers WHERE check_id = $1 ORDER BY id`,
		checkID)
	if err != nil {
		return nil, fmt.Errorf("listing code answers: %w", err)
	}
	defer rows.Close()

	var out []*domain.CodeAnswer
	for rows.Next() {
		var (
			a        domain.CodeAnswer
			state    string
			strength *string
		)
		if err := rows.Scan(&a.ID, &a.CheckID, &a.Code, &state, &strength); err != nil {
			return nil, fmt.Errorf("scanning code answer: %w", err)
		}
		a.State = domain.AnswerState(state)
		if strength != nil {
			a.AppliedStrength = *strength
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// CreateCodeAnswers inserts a ledger in one batch.
func (t *pgTx) CreateCodeAnswers(ctx context.Context, answers []*domain.CodeAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range answers {
		batch.Queue(
			`INSERT INTO code_answers (check_id, code, state, applied_strength) VALUES ($1, $2, $3, $4) RETURNING id`,
			a.CheckID, a.Code, string(a.State), nullString(a.AppliedStrength),
		)
	}
	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()

	for _, a := range answers {
		if err := results.QueryRow().Scan(&a.ID); err != nil {
			return fmt.Errorf("creating code answer %s: %w", a.Code, err)
		}
	}
	return nil
}

func (t *pgTx) UpdateCodeAnswer(ctx context.Context, a *domain.CodeAnswer) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE code_answers SET state = $2, applied_strength = $3 WHERE id = $1`,
		a.ID, string(a.State), nullString(a.AppliedStrength))
	if err != nil {
		return fmt.Errorf("updating code answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("code answer %d: %w", a.ID, domain.ErrNotFound)
	}
	return nil
}

func (t *pgTx) DeleteCodeAnswers(ctx context.Context, checkID int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM code_answers WHERE check_id = $1`, checkID); err != nil {
		return fmt.Errorf("deleting code answers: %w", err)
	}
	return nil
}

func scanVariant(row pgx.Row) (*domain.Variant, error) {
	var v domain.Variant
	err := row.Scan(&v.ID, &v.HGVSc, &v.HGVSp, &v.Gene, &v.Transcript, &v.Exon,
		&v.GenomicCoords, &v.GenomeBuild, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanClassification(row pgx.Row) (*domain.Classification, error) {
	var (
		c       domain.Classification
		kind    string
		payload []byte
	)
	err := row.Scan(&c.ID, &c.VariantID, &c.Guideline, &kind, &payload,
		&c.FullClassification, &c.FinalClass, &c.FinalScore, &c.FinalClassOverridden,
		&c.CompleteDate, &c.ReusedClassificationID, &c.CheckCounter, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Source, err = domain.DecodeVariantSource(domain.VariantSourceKind(kind), payload)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCheck(row pgx.Row) (*domain.Check, error) {
	var (
		chk      domain.Check
		assignee *string
	)
	err := row.Scan(&chk.ID, &chk.ClassificationID, &chk.Sequence, &chk.InfoCheck,
		&chk.PreviousClassificationsCheck, &chk.ClassificationCheck, &chk.CheckComplete,
		&chk.FullClassification, &chk.FinalClass, &chk.FinalScore, &chk.FinalClassOverridden,
		&assignee, &chk.SignoffTime, &chk.CreatedAt)
	if err != nil {
		return nil, err
	}
	if assignee != nil {
		chk.User = *assignee
	}
	return &chk, nil
}

func notFound(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("loading %s: %w", what, err)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
