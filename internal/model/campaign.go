// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignStatusDraft  CampaignStatus = "draft"
	CampaignStatusActive CampaignStatus = "active"
	CampaignStatusPaused CampaignStatus = "paused"
)

type Campaign struct {
	ID        int            `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Status    CampaignStatus `db:"status" json:"status"`
	Steps     []CampaignStep `json:"steps"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}

// CampaignStep is one timed message in a campaign. DayOffset is counted from
// enrollment start, not from the previous step.
type CampaignStep struct {
	ID         int     `db:"id" json:"id"`
	CampaignID int     `db:"campaign_id" json:"campaign_id"`
	StepIndex  int     `db:"step_index" json:"step_index"`
	DayOffset  int     `db:"day_offset" json:"day_offset"`
	Channel    Channel `db:"channel" json:"channel"`
	Template   string  `db:"template" json:"template"`
}
