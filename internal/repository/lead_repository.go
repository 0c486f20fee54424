package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
)

// LeadRepositoryInterface defines lead persistence used by the services. The
// lead repository is the single owner of lead rows; channel adapters never
// touch it directly.
type LeadRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Lead, error)
	GetByContact(ctx context.Context, channel model.Channel, contact string) (*model.Lead, error)
	Create(ctx context.Context, l *model.Lead) error
	UpdateStatus(ctx context.Context, id int, status model.LeadStatus) error
	SetNeedsHumanReview(ctx context.Context, id int, flag bool) error
	ListAll(ctx context.Context) ([]model.Lead, error)
}

// LeadRepository is the Postgres implementation.
type LeadRepository struct {
	DB *sql.DB
}

const leadColumns = `id, first_name, last_name, company, location, preferred_product,
	phone, email, preferred_channel, channel_mode, status, needs_human_review,
	whatsapp_score, email_score, wechat_score, sms_score, created_at, updated_at`

func scanLead(row interface{ Scan(...interface{}) error }) (*model.Lead, error) {
	var l model.Lead
	err := row.Scan(
		&l.ID, &l.FirstName, &l.LastName, &l.Company, &l.Location, &l.PreferredProduct,
		&l.Phone, &l.Email, &l.PreferredChannel, &l.ChannelMode, &l.Status, &l.NeedsHumanReview,
		&l.Validation.WhatsApp, &l.Validation.Email, &l.Validation.WeChat, &l.Validation.SMS,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LeadRepository) GetByID(ctx context.Context, id int) (*model.Lead, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, appErrors.NewLeadNotFound(id)
	}
	return l, err
}

// GetByContact resolves a lead from a contact address. Email is matched
// exactly (case-insensitive); phone-based chat channels match on the last 9
// digits so that country-code and formatting differences between the provider
// payload and the stored number still resolve.
func (r *LeadRepository) GetByContact(ctx context.Context, channel model.Channel, contact string) (*model.Lead, error) {
	var row *sql.Row
	if channel == model.ChannelEmail {
		row = r.DB.QueryRowContext(ctx,
			`SELECT `+leadColumns+` FROM leads WHERE lower(email) = lower($1)`,
			strings.TrimSpace(contact))
	} else {
		row = r.DB.QueryRowContext(ctx,
			`SELECT `+leadColumns+` FROM leads
			 WHERE right(regexp_replace(phone, '\D', '', 'g'), 9) = right(regexp_replace($1, '\D', '', 'g'), 9)
			 ORDER BY id LIMIT 1`,
			contact)
	}
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (r *LeadRepository) Create(ctx context.Context, l *model.Lead) error {
	now := time.Now()
	l.CreatedAt = now
	l.UpdatedAt = now
	if l.Status == "" {
		l.Status = model.LeadStatusPending
	}
	if l.ChannelMode == "" {
		l.ChannelMode = model.ChannelModeAuto
	}
	query := `
		INSERT INTO leads (first_name, last_name, company, location, preferred_product,
			phone, email, preferred_channel, channel_mode, status, needs_human_review,
			whatsapp_score, email_score, wechat_score, sms_score, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		l.FirstName, l.LastName, l.Company, l.Location, l.PreferredProduct,
		l.Phone, l.Email, l.PreferredChannel, l.ChannelMode, l.Status, l.NeedsHumanReview,
		l.Validation.WhatsApp, l.Validation.Email, l.Validation.WeChat, l.Validation.SMS,
		l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
}

func (r *LeadRepository) UpdateStatus(ctx context.Context, id int, status model.LeadStatus) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE leads SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	return err
}

func (r *LeadRepository) SetNeedsHumanReview(ctx context.Context, id int, flag bool) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE leads SET needs_human_review=$1, updated_at=NOW() WHERE id=$2`, flag, id)
	return err
}

func (r *LeadRepository) ListAll(ctx context.Context) ([]model.Lead, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

var _ LeadRepositoryInterface = (*LeadRepository)(nil)
