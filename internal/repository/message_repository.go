package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/leadreach-backend/internal/model"
)

type MessageRepositoryInterface interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	GetStatus(ctx context.Context, id string) (model.MessageStatus, error)
	UpdateStatus(ctx context.Context, id string, status model.MessageStatus, at time.Time) error
	SetProviderMessageID(ctx context.Context, id, providerID string) error
	ListByLead(ctx context.Context, leadID int) ([]model.Message, error)
}

type MessageRepository struct {
	DB *sql.DB
}

const messageColumns = `id, lead_id, enrollment_id, role, channel, content, status,
	provider_message_id, sent_at, status_updated_at`

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}
	m.StatusUpdatedAt = m.SentAt
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO messages (id, lead_id, enrollment_id, role, channel, content, status,
			provider_message_id, sent_at, status_updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, m.ID, m.LeadID, m.EnrollmentID, m.Role, m.Channel, m.Content, m.Status,
		m.ProviderMessageID, m.SentAt, m.StatusUpdatedAt)
	return err
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	err := r.DB.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, id).Scan(
		&m.ID, &m.LeadID, &m.EnrollmentID, &m.Role, &m.Channel, &m.Content, &m.Status,
		&m.ProviderMessageID, &m.SentAt, &m.StatusUpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) GetStatus(ctx context.Context, id string) (model.MessageStatus, error) {
	var status model.MessageStatus
	err := r.DB.QueryRowContext(ctx,
		`SELECT status FROM messages WHERE id=$1`, id).Scan(&status)
	return status, err
}

func (r *MessageRepository) UpdateStatus(ctx context.Context, id string, status model.MessageStatus, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE messages SET status=$1, status_updated_at=$2 WHERE id=$3`, status, at, id)
	return err
}

func (r *MessageRepository) SetProviderMessageID(ctx context.Context, id, providerID string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE messages SET provider_message_id=$1 WHERE id=$2`, providerID, id)
	return err
}

// ListByLead returns the lead's conversation history in append order.
func (r *MessageRepository) ListByLead(ctx context.Context, leadID int) ([]model.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE lead_id=$1 ORDER BY sent_at ASC, id ASC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(
			&m.ID, &m.LeadID, &m.EnrollmentID, &m.Role, &m.Channel, &m.Content, &m.Status,
			&m.ProviderMessageID, &m.SentAt, &m.StatusUpdatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
