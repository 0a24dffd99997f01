package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/svd-classify/internal/domain"
)

// SQLiteStore implements Store on a local SQLite file. It backs the lite mode,
// where classifications live in memory but the audit trail survives restarts.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens or creates the audit database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets the API read the trail while a transition is being written
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		classification_id INTEGER NOT NULL,
		check_id INTEGER,
		actor TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_classification ON audit_events(classification_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(s scanner) (*domain.AuditEvent, error) {
	e := &domain.AuditEvent{}
	var checkID sql.NullInt64
	if err := s.Scan(&e.ID, &e.ClassificationID, &checkID, &e.Actor, &e.Action, &e.Details, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.CheckID = checkID.Int64
	return e, nil
}

func nullCheckID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// Record stores one event.
func (s *SQLiteStore) Record(ctx context.Context, event *domain.AuditEvent) error {
	prepare(event)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, classification_id, check_id, actor, action, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
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
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// List returns the events of a classification, oldest first.
func (s *SQLiteStore) List(ctx context.Context, classificationID int64) ([]*domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, classification_id, check_id, actor, action, details, created_at
		FROM audit_events
		WHERE classification_id = ?
		ORDER BY created_at, rowid
	`, classificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	return collect(rows)
}

// Count returns the number of events of a classification, or of all of them
// when classificationID is 0.
func (s *SQLiteStore) Count(ctx context.Context, classificationID int64) (int64, error) {
	var count int64
	var err error
	if classificationID == 0 {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events WHERE classification_id = ?", classificationID).Scan(&count)
	}
	return count, err
}

// ExportJSON writes every event to writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, classification_id, check_id, actor, action, details, created_at
		FROM audit_events
		ORDER BY created_at, rowid
		LIMIT ?
	`, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}
	all, err := collect(rows)
	if err != nil {
		return err
	}
	return writeExport(writer, all)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func collect(rows *sql.Rows) ([]*domain.AuditEvent, error) {
	defer rows.Close()
	result := []*domain.AuditEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func writeExport(writer io.Writer, events []*domain.AuditEvent) error {
	if events == nil {
		events = []*domain.AuditEvent{}
	}
	export := &Export{
		Version:    exportVersion,
		ExportedAt: time.Now(),
		Count:      len(events),
		Events:     events,
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
