// internal/model/enrollment.go
package model

import "time"

type EnrollmentStatus string

const (
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusStopped   EnrollmentStatus = "stopped"
)

// Enrollment binds one lead to one campaign with a progress cursor. At most
// one active enrollment may exist per (lead, campaign) pair; the same lead may
// be enrolled in several campaigns at once.
type Enrollment struct {
	ID         int              `db:"id" json:"id"`
	LeadID     int              `db:"lead_id" json:"lead_id"`
	CampaignID int              `db:"campaign_id" json:"campaign_id"`
	StepIndex  int              `db:"step_index" json:"step_index"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	RetryCount int              `db:"retry_count" json:"retry_count"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	NextRunAt  time.Time        `db:"next_run_at" json:"next_run_at"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}
