package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	_ "github.com/lib/pq"

	"github.com/svd-classify/internal/domain"
)

// PostgresStore implements Store on the audit_events table created by the
// schema migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection and verifies it.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Record stores one event.
func (s *PostgresStore) Record(ctx context.Context, event *domain.AuditEvent) error {
	prepare(event)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, classification_id, check_id, actor, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		event.ID,
		event.ClassificationID,
		nullCheckID(event.CheckID),
		event.Actor,
		event.Action,
		event.Details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// List returns the events of a classification, oldest first.
func (s *PostgresStore) List(ctx context.Context, classificationID int64) ([]*domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, classification_id, check_id, actor, action, details, created_at
		FROM audit_events
		WHERE classification_id = $1
		ORDER BY created_at, id
	`, classificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	return collect(rows)
}

// Count returns the number of events of a classification, or of all of them
// when classificationID is 0.
func (s *PostgresStore) Count(ctx context.Context, classificationID int64) (int64, error) {
	var count int64
	var err error
	if classificationID == 0 {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events WHERE classification_id = $1", classificationID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// ExportJSON writes every event to writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, classification_id, check_id, actor, action, details, created_at
		FROM audit_events
		ORDER BY created_at, id
		LIMIT $1
	`, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to export audit events: %w", err)
	}
	all, err := collect(rows)
	if err != nil {
		return err
	}
	return writeExport(writer, all)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
