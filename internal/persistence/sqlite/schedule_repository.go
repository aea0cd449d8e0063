package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/timetable-scheduler/internal/persistence"
)

// CreateSchedule inserts a new schedule with its entries and returns the
// assigned id.
func (s *Storage) CreateSchedule(ctx context.Context, schedule persistence.Schedule) (int64, error) {
	var id int64
	err := s.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO schedules (name, status, created_at, last_optimized_at) VALUES (?, ?, ?, ?)`,
			schedule.Name,
			schedule.Status,
			schedule.CreatedAt.UTC().Format(time.RFC3339Nano),
			formatOptionalTime(schedule.LastOptimizedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert schedule: %w", err)
		}

		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read assigned schedule id: %w", err)
		}

		return insertEntries(ctx, tx, id, schedule.Entries)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetSchedule retrieves a schedule with its entries by id.
func (s *Storage) GetSchedule(ctx context.Context, id int64) (persistence.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, created_at, last_optimized_at FROM schedules WHERE id = ?`, id)

	schedule, err := scanSchedule(row)
	if err != nil {
		return persistence.Schedule{}, err
	}

	entries, err := s.loadEntries(ctx, id)
	if err != nil {
		return persistence.Schedule{}, err
	}
	schedule.Entries = entries

	return schedule, nil
}

// UpdateSchedule replaces the name and entries of an existing schedule.
func (s *Storage) UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE schedules SET name = ?, status = ? WHERE id = ?`,
			schedule.Name, schedule.Status, schedule.ID)
		if err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}
		if err := ensureRowAffected(result); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE schedule_id = ?`, schedule.ID); err != nil {
			return fmt.Errorf("failed to clear schedule entries: %w", err)
		}
		return insertEntries(ctx, tx, schedule.ID, schedule.Entries)
	})
}

// UpdateStatus transitions the status of an existing schedule.
func (s *Storage) UpdateStatus(ctx context.Context, id int64, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE schedules SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update schedule status: %w", err)
	}
	return ensureRowAffected(result)
}

// ApplyOptimization replaces the entries of a schedule and records the
// resulting status and optimization timestamp atomically.
func (s *Storage) ApplyOptimization(ctx context.Context, id int64, entries []persistence.Entry, status string, optimizedAt time.Time) error {
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE schedules SET status = ?, last_optimized_at = ? WHERE id = ?`,
			status, optimizedAt.UTC().Format(time.RFC3339Nano), id)
		if err != nil {
			return fmt.Errorf("failed to record optimization: %w", err)
		}
		if err := ensureRowAffected(result); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE schedule_id = ?`, id); err != nil {
			return fmt.Errorf("failed to clear schedule entries: %w", err)
		}
		return insertEntries(ctx, tx, id, entries)
	})
}

// DeleteSchedule removes a schedule and its entries by id.
func (s *Storage) DeleteSchedule(ctx context.Context, id int64) error {
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE schedule_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete schedule entries: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete schedule: %w", err)
		}
		return ensureRowAffected(result)
	})
}

// ListSchedules returns every stored schedule with entries, ordered by id.
func (s *Storage) ListSchedules(ctx context.Context) ([]persistence.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, created_at, last_optimized_at FROM schedules ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []persistence.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}

	for i := range schedules {
		entries, err := s.loadEntries(ctx, schedules[i].ID)
		if err != nil {
			return nil, err
		}
		schedules[i].Entries = entries
	}

	return schedules, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (persistence.Schedule, error) {
	var schedule persistence.Schedule
	var createdAt string
	var lastOptimizedAt sql.NullString

	err := row.Scan(&schedule.ID, &schedule.Name, &schedule.Status, &createdAt, &lastOptimizedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Schedule{}, persistence.ErrNotFound
		}
		return persistence.Schedule{}, fmt.Errorf("failed to scan schedule: %w", err)
	}

	if schedule.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return persistence.Schedule{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if lastOptimizedAt.Valid {
		parsed, err := time.Parse(time.RFC3339Nano, lastOptimizedAt.String)
		if err != nil {
			return persistence.Schedule{}, fmt.Errorf("failed to parse last_optimized_at: %w", err)
		}
		schedule.LastOptimizedAt = &parsed
	}

	return schedule, nil
}

func (s *Storage) loadEntries(ctx context.Context, scheduleID int64) ([]persistence.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, teacher, study_group, room, day, start_minute, end_minute
		 FROM schedule_entries WHERE schedule_id = ? ORDER BY position ASC`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule entries: %w", err)
	}
	defer rows.Close()

	var entries []persistence.Entry
	for rows.Next() {
		var entry persistence.Entry
		if err := rows.Scan(&entry.Subject, &entry.Teacher, &entry.Group, &entry.Room,
			&entry.Day, &entry.StartMinute, &entry.EndMinute); err != nil {
			return nil, fmt.Errorf("failed to scan schedule entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedule entries: %w", err)
	}

	return entries, nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, scheduleID int64, entries []persistence.Entry) error {
	for position, entry := range entries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO schedule_entries (schedule_id, position, subject, teacher, study_group, room, day, start_minute, end_minute)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			scheduleID, position, entry.Subject, entry.Teacher, entry.Group, entry.Room,
			entry.Day, entry.StartMinute, entry.EndMinute)
		if err != nil {
			return fmt.Errorf("failed to insert schedule entry: %w", err)
		}
	}
	return nil
}

func ensureRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func formatOptionalTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}
