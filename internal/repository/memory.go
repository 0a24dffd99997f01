package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/svd-classify/internal/domain"
)

// MemoryStore keeps classifications in process memory. Each transaction works
// on a copy of the state that replaces the committed state only when the
// transaction function succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	log   *logrus.Logger
}

type memoryState struct {
	nextVariantID        int64
	nextClassificationID int64
	nextCheckID          int64
	nextAnswerID         int64

	variants        map[int64]*domain.Variant
	classifications map[int64]*domain.Classification
	checks          map[int64]*domain.Check
	answers         map[int64]*domain.CodeAnswer
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			variants:        make(map[int64]*domain.Variant),
			classifications: make(map[int64]*domain.Classification),
			checks:          make(map[int64]*domain.Check),
			answers:         make(map[int64]*domain.CodeAnswer),
		},
		log: logger,
	}
}

// WithinTx runs fn against a snapshot and commits it if fn returns nil.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	if err := fn(ctx, &memoryTx{state: snapshot}); err != nil {
		s.log.WithError(err).Debug("Memory transaction rolled back")
		return err
	}
	s.state = snapshot
	return nil
}

func (m *memoryState) clone() *memoryState {
	out := &memoryState{
		nextVariantID:        m.nextVariantID,
		nextClassificationID: m.nextClassificationID,
		nextCheckID:          m.nextCheckID,
		nextAnswerID:         m.nextAnswerID,
		variants:             make(map[int64]*domain.Variant, len(m.variants)),
		classifications:      make(map[int64]*domain.Classification, len(m.classifications)),
		checks:               make(map[int64]*domain.Check, len(m.checks)),
		answers:              make(map[int64]*domain.CodeAnswer, len(m.answers)),
	}
	for id, v := range m.variants {
		out.variants[id] = copyVariant(v)
	}
	for id, c := range m.classifications {
		out.classifications[id] = copyClassification(c)
	}
	for id, chk := range m.checks {
		out.checks[id] = copyCheck(chk)
	}
	for id, a := range m.answers {
		out.answers[id] = copyAnswer(a)
	}
	return out
}

type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) CreateVariant(ctx context.Context, v *domain.Variant) error {
	for _, existing := range t.state.variants {
		if existing.HGVSc == v.HGVSc {
			return fmt.Errorf("variant %s already exists", v.HGVSc)
		}
	}
	t.state.nextVariantID++
	v.ID = t.state.nextVariantID
	t.state.variants[v.ID] = copyVariant(v)
	return nil
}

func (t *memoryTx) GetVariant(ctx context.Context, id int64) (*domain.Variant, error) {
	v, ok := t.state.variants[id]
	if !ok {
		return nil, fmt.Errorf("variant %d: %w", id, domain.ErrNotFound)
	}
	return copyVariant(v), nil
}

func (t *memoryTx) GetVariantByHGVS(ctx context.Context, hgvsc string) (*domain.Variant, error) {
	for _, v := range t.state.variants {
		if v.HGVSc == hgvsc {
			return copyVariant(v), nil
		}
	}
	return nil, fmt.Errorf("variant %s: %w", hgvsc, domain.ErrNotFound)
}

func (t *memoryTx) CreateClassification(ctx context.Context, c *domain.Classification) error {
	if _, ok := t.state.variants[c.VariantID]; !ok {
		return fmt.Errorf("variant %d: %w", c.VariantID, domain.ErrNotFound)
	}
	t.state.nextClassificationID++
	c.ID = t.state.nextClassificationID
	t.state.classifications[c.ID] = copyClassification(c)
	return nil
}

func (t *memoryTx) GetClassification(ctx context.Context, id int64) (*domain.Classification, error) {
	c, ok := t.state.classifications[id]
	if !ok {
		return nil, fmt.Errorf("classification %d: %w", id, domain.ErrNotFound)
	}
	return copyClassification(c), nil
}

func (t *memoryTx) UpdateClassification(ctx context.Context, c *domain.Classification) error {
	if _, ok := t.state.classifications[c.ID]; !ok {
		return fmt.Errorf("classification %d: %w", c.ID, domain.ErrNotFound)
	}
	t.state.classifications[c.ID] = copyClassification(c)
	return nil
}

func (t *memoryTx) ListClassifications(ctx context.Context, filter domain.ClassificationFilter) ([]*domain.Classification, error) {
	var out []*domain.Classification
	for _, c := range t.state.classifications {
		if filter.Guideline != "" && c.Guideline != filter.Guideline {
			continue
		}
		if filter.VariantID != 0 && c.VariantID != filter.VariantID {
			continue
		}
		if filter.Complete != nil && c.IsComplete() != *filter.Complete {
			continue
		}
		out = append(out, copyClassification(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*domain.Classification{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *memoryTx) LatestFullClassification(ctx context.Context, variantID int64, guideline string, excludeID int64) (*domain.Classification, error) {
	var latest *domain.Classification
	for _, c := range t.state.classifications {
		if c.ID == excludeID || c.VariantID != variantID || c.Guideline != guideline {
			continue
		}
		if !c.FullClassification || c.CompleteDate == nil {
			continue
		}
		if latest == nil || c.CompleteDate.After(*latest.CompleteDate) ||
			(c.CompleteDate.Equal(*latest.CompleteDate) && c.ID > latest.ID) {
			latest = c
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("full classification of variant %d: %w", variantID, domain.ErrNotFound)
	}
	return copyClassification(latest), nil
}

func (t *memoryTx) ListChecks(ctx context.Context, classificationID int64) ([]*domain.Check, error) {
	var out []*domain.Check
	for _, chk := range t.state.checks {
		if chk.ClassificationID == classificationID {
			out = append(out, copyCheck(chk))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (t *memoryTx) CreateCheck(ctx context.Context, chk *domain.Check) error {
	if _, ok := t.state.classifications[chk.ClassificationID]; !ok {
		return fmt.Errorf("classification %d: %w", chk.ClassificationID, domain.ErrNotFound)
	}
	for _, existing := range t.state.checks {
		if existing.ClassificationID == chk.ClassificationID && existing.Sequence == chk.Sequence {
			return fmt.Errorf("check %d of classification %d already exists", chk.Sequence, chk.ClassificationID)
		}
	}
	t.state.nextCheckID++
	chk.ID = t.state.nextCheckID
	t.state.checks[chk.ID] = copyCheck(chk)
	return nil
}

func (t *memoryTx) UpdateCheck(ctx context.Context, chk *domain.Check) error {
	if _, ok := t.state.checks[chk.ID]; !ok {
		return fmt.Errorf("check %d: %w", chk.ID, domain.ErrNotFound)
	}
	t.state.checks[chk.ID] = copyCheck(chk)
	return nil
}

// DeleteCheck removes a check and its ledger.
func (t *memoryTx) DeleteCheck(ctx context.Context, id int64) error {
	if _, ok := t.state.checks[id]; !ok {
		return fmt.Errorf("check %d: %w", id, domain.ErrNotFound)
	}
	delete(t.state.checks, id)
	return t.DeleteCodeAnswers(ctx, id)
}

func (t *memoryTx) ClaimCheck(ctx context.Context, checkID int64, user string) (bool, error) {
	chk, ok := t.state.checks[checkID]
	if !ok {
		return false, fmt.Errorf("check %d: %w", checkID, domain.ErrNotFound)
	}
	if chk.User != "" {
		return false, nil
	}
	chk.User = user
	return true, nil
}

func (t *memoryTx) ListCodeAnswers(ctx context.Context, checkID int64) ([]*domain.CodeAnswer, error) {
	var out []*domain.CodeAnswer
	for _, a := range t.state.answers {
		if a.CheckID == checkID {
			out = append(out, copyAnswer(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) CreateCodeAnswers(ctx context.Context, answers []*domain.CodeAnswer) error {
	for _, a := range answers {
		if _, ok := t.state.checks[a.CheckID]; !ok {
			return fmt.Errorf("check %d: %w", a.CheckID, domain.ErrNotFound)
		}
		t.state.nextAnswerID++
		a.ID = t.state.nextAnswerID
		t.state.answers[a.ID] = copyAnswer(a)
	}
	return nil
}

func (t *memoryTx) UpdateCodeAnswer(ctx context.Context, a *domain.CodeAnswer) error {
	if _, ok := t.state.answers[a.ID]; !ok {
		return fmt.Errorf("code answer %d: %w", a.ID, domain.ErrNotFound)
	}
	t.state.answers[a.ID] = copyAnswer(a)
	return nil
}

func (t *memoryTx) DeleteCodeAnswers(ctx context.Context, checkID int64) error {
	for id, a := range t.state.answers {
		if a.CheckID == checkID {
			delete(t.state.answers, id)
		}
	}
	return nil
}

func copyVariant(v *domain.Variant) *domain.Variant {
	out := *v
	return &out
}

func copyClassification(c *domain.Classification) *domain.Classification {
	out := *c
	if c.FinalScore != nil {
		score := *c.FinalScore
		out.FinalScore = &score
	}
	if c.CompleteDate != nil {
		t := *c.CompleteDate
		out.CompleteDate = &t
	}
	if c.ReusedClassificationID != nil {
		id := *c.ReusedClassificationID
		out.ReusedClassificationID = &id
	}
	return &out
}

func copyCheck(chk *domain.Check) *domain.Check {
	out := *chk
	if chk.FinalScore != nil {
		score := *chk.FinalScore
		out.FinalScore = &score
	}
	if chk.SignoffTime != nil {
		t := *chk.SignoffTime
		out.SignoffTime = &t
	}
	return &out
}

func copyAnswer(a *domain.CodeAnswer) *domain.CodeAnswer {
	out := *a
	return &out
}
