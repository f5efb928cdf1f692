// ABOUTME: Database operations for sync_state, sync_runs and sync_log tables
// ABOUTME: Records calendar sync status, per-week outcomes and failed operations
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/harperreed/doctosync/models"
)

// History stores sync history in SQLite.
type History struct {
	db  *sql.DB
	now func() time.Time
}

// NewHistory wraps an opened database.
func NewHistory(db *sql.DB) *History {
	return &History{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// GetSyncState retrieves the sync state for a calendar, or nil if it never synced.
func (h *History) GetSyncState(calendar string) (*models.SyncState, error) {
	var state models.SyncState
	var lastSyncTime sql.NullTime
	var errorMessage sql.NullString

	err := h.db.QueryRow(`
		SELECT calendar, last_sync_time, status, error_message, created_at, updated_at
		FROM sync_state
		WHERE calendar = ?
	`, calendar).Scan(
		&state.Calendar,
		&lastSyncTime,
		&state.Status,
		&errorMessage,
		&state.CreatedAt,
		&state.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	if lastSyncTime.Valid {
		state.LastSyncTime = &lastSyncTime.Time
	}
	state.ErrorMessage = errorMessage.String

	return &state, nil
}

// UpdateSyncStatus updates the sync status for a calendar. Moving to idle also
// stamps the last successful sync time.
func (h *History) UpdateSyncStatus(calendar, status string, errorMsg *string) error {
	var errorMsgVal sql.NullString
	if errorMsg != nil {
		errorMsgVal = sql.NullString{String: *errorMsg, Valid: true}
	}

	now := h.now()
	var lastSync sql.NullTime
	if status == models.SyncStatusIdle {
		lastSync = sql.NullTime{Time: now, Valid: true}
	}

	_, err := h.db.Exec(`
		INSERT INTO sync_state (calendar, last_sync_time, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(calendar) DO UPDATE SET
			last_sync_time = COALESCE(excluded.last_sync_time, sync_state.last_sync_time),
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, calendar, lastSync, status, errorMsgVal, now, now)

	if err != nil {
		return fmt.Errorf("failed to update sync status: %w", err)
	}

	return nil
}

// RecordWeekRun stores one week's outcome and its failed operations. Missing
// ids are generated and written back into run and failures.
func (h *History) RecordWeekRun(run *models.WeekRun, failures []models.SyncLog) error {
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var errorMsg sql.NullString
	if run.ErrorMessage != "" {
		errorMsg = sql.NullString{String: run.ErrorMessage, Valid: true}
	}

	_, err = tx.Exec(`
		INSERT INTO sync_runs (id, calendar, week_start, appointments, created, updated, deleted, failed,
			status, error_message, dry_run, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Calendar, run.WeekStart, run.Appointments, run.Created, run.Updated, run.Deleted, run.Failed,
		run.Status, errorMsg, run.DryRun, run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert week run: %w", err)
	}

	for i := range failures {
		f := &failures[i]
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.RunID = run.ID
		if f.CreatedAt.IsZero() {
			f.CreatedAt = h.now()
		}

		_, err := tx.Exec(`
			INSERT INTO sync_log (id, run_id, operation, sync_key, event_id, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, f.ID.String(), f.RunID, f.Operation, f.SyncKey, f.EventID, f.Error, f.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert sync log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit week run: %w", err)
	}
	return nil
}

// ListRecentRuns returns the most recent week runs, newest first.
func (h *History) ListRecentRuns(limit int) ([]models.WeekRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.Query(`
		SELECT id, calendar, week_start, appointments, created, updated, deleted, failed,
			status, error_message, dry_run, started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query week runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.WeekRun
	for rows.Next() {
		var run models.WeekRun
		var weekStart string
		var errorMessage sql.NullString

		err := rows.Scan(
			&run.ID,
			&run.Calendar,
			&weekStart,
			&run.Appointments,
			&run.Created,
			&run.Updated,
			&run.Deleted,
			&run.Failed,
			&run.Status,
			&errorMessage,
			&run.DryRun,
			&run.StartedAt,
			&run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan week run: %w", err)
		}

		run.WeekStart = normalizeDate(weekStart)
		run.ErrorMessage = errorMessage.String
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating week runs: %w", err)
	}

	return runs, nil
}

// ListFailures returns the failed operations recorded for a run.
func (h *History) ListFailures(runID string) ([]models.SyncLog, error) {
	rows, err := h.db.Query(`
		SELECT id, run_id, operation, sync_key, event_id, error, created_at
		FROM sync_log
		WHERE run_id = ?
		ORDER BY created_at, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []models.SyncLog
	for rows.Next() {
		var entry models.SyncLog
		var syncKey, eventID sql.NullString

		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Operation, &syncKey, &eventID, &entry.Error, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		entry.SyncKey = syncKey.String
		entry.EventID = eventID.String
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync log: %w", err)
	}

	return logs, nil
}

// normalizeDate trims the time part the driver may add to DATE columns.
func normalizeDate(v string) string {
	if len(v) > len(time.DateOnly) {
		return v[:len(time.DateOnly)]
	}
	return v
}
