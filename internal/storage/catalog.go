package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dataresource/internal/domain"
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("not found")

// CatalogStore implements domain.CatalogStore on SQLite.
type CatalogStore struct {
	db *DB
}

var _ domain.CatalogStore = (*CatalogStore)(nil)

func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// ── Entry CRUD ─────────────────────────────────────────────

const entryColumns = `id, name, path, descriptor, trigger_type, trigger_config, enabled,
	last_run_at, last_status, last_error, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*domain.CatalogEntry, error) {
	e := &domain.CatalogEntry{}
	var lastRun sql.NullTime
	if err := sc.Scan(
		&e.ID, &e.Name, &e.Path, &e.Descriptor, &e.TriggerType, &e.TriggerConfig, &e.Enabled,
		&lastRun, &e.LastStatus, &e.LastError, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		e.LastRunAt = lastRun.Time
	}
	return e, nil
}

func (s *CatalogStore) CreateEntry(e *domain.CatalogEntry) error {
	now := time.Now().UTC()
	e.ID = uuid.New().String()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.TriggerType == "" {
		e.TriggerType = domain.TriggerManual
	}
	if e.Descriptor == "" {
		e.Descriptor = "{}"
	}

	_, err := s.db.conn.Exec(
		`INSERT INTO catalog_entries (id, name, path, descriptor, trigger_type, trigger_config,
		 enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Path, e.Descriptor, e.TriggerType, e.TriggerConfig,
		e.Enabled, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entry %q: %w", e.Name, err)
	}
	return nil
}

func (s *CatalogStore) GetEntry(id string) (*domain.CatalogEntry, error) {
	e, err := scanEntry(s.db.conn.QueryRow(
		`SELECT `+entryColumns+` FROM catalog_entries WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog entry %s: %w", id, ErrNotFound)
	}
	return e, err
}

func (s *CatalogStore) GetEntryByName(name string) (*domain.CatalogEntry, error) {
	e, err := scanEntry(s.db.conn.QueryRow(
		`SELECT `+entryColumns+` FROM catalog_entries WHERE name = ?`, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog entry %q: %w", name, ErrNotFound)
	}
	return e, err
}

func (s *CatalogStore) UpdateEntry(e *domain.CatalogEntry) error {
	e.UpdatedAt = time.Now().UTC()
	_, err := s.db.conn.Exec(
		`UPDATE catalog_entries SET name=?, path=?, descriptor=?, trigger_type=?, trigger_config=?,
		 enabled=?, updated_at=? WHERE id=?`,
		e.Name, e.Path, e.Descriptor, e.TriggerType, e.TriggerConfig,
		e.Enabled, e.UpdatedAt, e.ID,
	)
	return err
}

func (s *CatalogStore) UpdateEntryStatus(id, status, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.db.conn.Exec(
		`UPDATE catalog_entries SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	return err
}

func (s *CatalogStore) DeleteEntry(id string) error {
	// Delete run logs first.
	if _, err := s.db.conn.Exec(`DELETE FROM inference_runs WHERE entry_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.conn.Exec(`DELETE FROM catalog_entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog entry %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *CatalogStore) ListEntries() ([]domain.CatalogEntry, error) {
	return s.queryEntries(`SELECT ` + entryColumns + ` FROM catalog_entries ORDER BY name ASC`)
}

// ListTriggeredEntries returns enabled entries with a schedule or file trigger.
func (s *CatalogStore) ListTriggeredEntries() ([]domain.CatalogEntry, error) {
	return s.queryEntries(
		`SELECT `+entryColumns+` FROM catalog_entries
		 WHERE enabled = 1 AND trigger_type IN (?, ?) ORDER BY created_at ASC`,
		domain.TriggerSchedule, domain.TriggerFileWatch,
	)
}

func (s *CatalogStore) queryEntries(query string, args ...any) ([]domain.CatalogEntry, error) {
	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CatalogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ── Inference runs ─────────────────────────────────────────

func (s *CatalogStore) CreateRun(run *domain.InferenceRun) error {
	run.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO inference_runs (id, entry_id, started_at, finished_at, status,
		 rows_read, bytes_read, sha256, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.EntryID, run.StartedAt, run.FinishedAt, run.Status,
		run.Rows, run.Bytes, run.SHA256, run.Error,
	)
	return err
}

// ListRuns returns the latest runs of an entry, newest first.
func (s *CatalogStore) ListRuns(entryID string, limit int) ([]domain.InferenceRun, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, entry_id, started_at, finished_at, status, rows_read, bytes_read, sha256, error
		 FROM inference_runs WHERE entry_id = ? ORDER BY started_at DESC LIMIT ?`,
		entryID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.InferenceRun
	for rows.Next() {
		var r domain.InferenceRun
		if err := rows.Scan(&r.ID, &r.EntryID, &r.StartedAt, &r.FinishedAt, &r.Status,
			&r.Rows, &r.Bytes, &r.SHA256, &r.Error); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
