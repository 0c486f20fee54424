package repository

import (
	"context"
	"database/sql"
	"time"
)

// AutoResponseRepositoryInterface tracks per-lead auto-response bookkeeping:
// the last automatic send and a per-calendar-day counter keyed by
// (lead, date).
type AutoResponseRepositoryInterface interface {
	LastAutoResponseAt(ctx context.Context, leadID int) (*time.Time, error)
	DailyCount(ctx context.Context, leadID int, day string) (int, error)
	RecordAutoResponse(ctx context.Context, leadID int, day string, at time.Time) error
}

type AutoResponseRepository struct {
	DB *sql.DB
}

func (r *AutoResponseRepository) LastAutoResponseAt(ctx context.Context, leadID int) (*time.Time, error) {
	var last sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		`SELECT MAX(last_at) FROM auto_responses WHERE lead_id=$1`, leadID).Scan(&last)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (r *AutoResponseRepository) DailyCount(ctx context.Context, leadID int, day string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT count FROM auto_responses WHERE lead_id=$1 AND day=$2`, leadID, day).Scan(&count)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

func (r *AutoResponseRepository) RecordAutoResponse(ctx context.Context, leadID int, day string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO auto_responses (lead_id, day, count, last_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (lead_id, day)
		DO UPDATE SET count = auto_responses.count + 1, last_at = $3
	`, leadID, day, at)
	return err
}

var _ AutoResponseRepositoryInterface = (*AutoResponseRepository)(nil)
