package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
)

type EnrollmentRepositoryInterface interface {
	Create(ctx context.Context, e *model.Enrollment) error
	GetByID(ctx context.Context, id int) (*model.Enrollment, error)
	GetActive(ctx context.Context, leadID, campaignID int) (*model.Enrollment, error)
	ListActiveByLead(ctx context.Context, leadID int) ([]model.Enrollment, error)
	// ListDue returns active enrollments of active campaigns whose next-run
	// time is at or before now, oldest due first, ties broken by creation
	// order.
	ListDue(ctx context.Context, now time.Time) ([]model.Enrollment, error)
	Update(ctx context.Context, e *model.Enrollment) error
	StopAllForLead(ctx context.Context, leadID int) error
}

type EnrollmentRepository struct {
	DB *sql.DB
}

const enrollmentColumns = `id, lead_id, campaign_id, step_index, status, retry_count,
	enrolled_at, next_run_at, created_at, updated_at`

func scanEnrollment(row interface{ Scan(...interface{}) error }) (*model.Enrollment, error) {
	var e model.Enrollment
	err := row.Scan(
		&e.ID, &e.LeadID, &e.CampaignID, &e.StepIndex, &e.Status, &e.RetryCount,
		&e.EnrolledAt, &e.NextRunAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EnrollmentRepository) Create(ctx context.Context, e *model.Enrollment) error {
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	query := `
		INSERT INTO enrollments (lead_id, campaign_id, step_index, status, retry_count,
			enrolled_at, next_run_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		e.LeadID, e.CampaignID, e.StepIndex, e.Status, e.RetryCount,
		e.EnrolledAt, e.NextRunAt, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)

	// Two concurrent enrolls can both pass the pre-insert check; the partial
	// unique index on active (lead_id, campaign_id) rejects the loser.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return appErrors.NewAlreadyEnrolled(e.LeadID, e.CampaignID)
	}
	return err
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id int) (*model.Enrollment, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id=$1`, id)
	e, err := scanEnrollment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (r *EnrollmentRepository) GetActive(ctx context.Context, leadID, campaignID int) (*model.Enrollment, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+enrollmentColumns+` FROM enrollments
		WHERE lead_id=$1 AND campaign_id=$2 AND status='active'
	`, leadID, campaignID)
	e, err := scanEnrollment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (r *EnrollmentRepository) ListActiveByLead(ctx context.Context, leadID int) ([]model.Enrollment, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+enrollmentColumns+` FROM enrollments
		WHERE lead_id=$1 AND status='active' ORDER BY id
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEnrollments(rows)
}

func (r *EnrollmentRepository) ListDue(ctx context.Context, now time.Time) ([]model.Enrollment, error) {
	// Paused campaigns and non-active enrollments are filtered here so the
	// scheduler never sees them.
	rows, err := r.DB.QueryContext(ctx, `
		SELECT e.id, e.lead_id, e.campaign_id, e.step_index, e.status, e.retry_count,
			e.enrolled_at, e.next_run_at, e.created_at, e.updated_at
		FROM enrollments e
		JOIN campaigns c ON c.id = e.campaign_id
		WHERE e.status='active' AND c.status='active' AND e.next_run_at <= $1
		ORDER BY e.next_run_at ASC, e.id ASC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEnrollments(rows)
}

func (r *EnrollmentRepository) Update(ctx context.Context, e *model.Enrollment) error {
	e.UpdatedAt = time.Now()
	_, err := r.DB.ExecContext(ctx, `
		UPDATE enrollments
		SET step_index=$1, status=$2, retry_count=$3, next_run_at=$4, updated_at=$5
		WHERE id=$6
	`, e.StepIndex, e.Status, e.RetryCount, e.NextRunAt, e.UpdatedAt, e.ID)
	return err
}

// StopAllForLead marks every active enrollment for the lead as stopped.
// Already-stopped rows are untouched, which makes the call idempotent.
func (r *EnrollmentRepository) StopAllForLead(ctx context.Context, leadID int) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE enrollments SET status='stopped', updated_at=NOW()
		WHERE lead_id=$1 AND status='active'
	`, leadID)
	return err
}

func collectEnrollments(rows *sql.Rows) ([]model.Enrollment, error) {
	enrollments := []model.Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, *e)
	}
	return enrollments, rows.Err()
}

var _ EnrollmentRepositoryInterface = (*EnrollmentRepository)(nil)
