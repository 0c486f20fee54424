package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	UpdateStatus(ctx context.Context, campaignID int, status model.CampaignStatus) error
	GetCampaignStats(ctx context.Context, campaignID int) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

// Create inserts a campaign together with its ordered steps in one
// transaction. Steps are immutable once written.
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO campaigns (name, status, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, c.Name, c.Status, c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return err
	}

	for i := range c.Steps {
		step := &c.Steps[i]
		step.CampaignID = c.ID
		step.StepIndex = i
		err = tx.QueryRowContext(ctx, `
			INSERT INTO campaign_steps (campaign_id, step_index, day_offset, channel, template)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, step.CampaignID, step.StepIndex, step.DayOffset, step.Channel, step.Template).Scan(&step.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM campaigns WHERE id=$1
	`, id).Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, campaign_id, step_index, day_offset, channel, template
		FROM campaign_steps WHERE campaign_id=$1 ORDER BY step_index
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s model.CampaignStep
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.StepIndex, &s.DayOffset, &s.Channel, &s.Template); err != nil {
			return nil, err
		}
		c.Steps = append(c.Steps, s)
	}
	return &c, rows.Err()
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT id, name, status, created_at, updated_at FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c := &model.Campaign{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, campaignID int, status model.CampaignStatus) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`, status, campaignID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	return nil
}

// GetCampaignStats returns outbound message counts per status for a campaign.
func (r *CampaignRepository) GetCampaignStats(ctx context.Context, campaignID int) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT m.status, COUNT(*)
		FROM messages m
		JOIN enrollments e ON e.id = m.enrollment_id
		WHERE e.campaign_id = $1 AND m.role = 'agent'
		GROUP BY m.status
	`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"sending": 0, "sent": 0, "delivered": 0, "read": 0, "failed": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
