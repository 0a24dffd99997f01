// Package audit stores the trail of state transitions of variant
// classifications: who completed or reopened which tab, who signed off a
// check and what the next step was.
package audit

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/svd-classify/internal/domain"
)

// Store persists audit events.
type Store interface {
	domain.AuditRecorder

	// Count returns the number of events recorded for a classification, or
	// for all classifications when classificationID is 0.
	Count(ctx context.Context, classificationID int64) (int64, error)

	// ExportJSON writes every event, oldest first.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// Close releases the underlying database handle.
	Close() error
}

// Export is the JSON export format.
type Export struct {
	Version    string               `json:"version"`
	ExportedAt time.Time            `json:"exported_at"`
	Count      int                  `json:"count"`
	Events     []*domain.AuditEvent `json:"events"`
}

const exportVersion = "1.0"

// maxExportLimit bounds a single export.
const maxExportLimit = 1000000

// prepare fills in the id and timestamp of an event before it is stored.
func prepare(e *domain.AuditEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
}

// NopStore discards events. It is used when auditing is switched off.
type NopStore struct{}

func (NopStore) Record(context.Context, *domain.AuditEvent) error { return nil }

func (NopStore) List(context.Context, int64) ([]*domain.AuditEvent, error) {
	return []*domain.AuditEvent{}, nil
}

func (NopStore) Count(context.Context, int64) (int64, error) { return 0, nil }

func (NopStore) ExportJSON(_ context.Context, w io.Writer) error {
	return writeExport(w, nil)
}

func (NopStore) Close() error { return nil }
