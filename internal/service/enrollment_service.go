// internal/service/enrollment_service.go
package service

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
	"github.com/unclebandit/leadreach-backend/internal/repository"
)

// EnrollmentService owns the set of (lead, campaign) enrollments and their
// step cursors.
type EnrollmentService struct {
	Enrollments repository.EnrollmentRepositoryInterface
	Campaigns   repository.CampaignRepositoryInterface
	Leads       repository.LeadRepositoryInterface
	Logger      *observability.Logger
	Now         func() time.Time
}

func NewEnrollmentService(
	enrollments repository.EnrollmentRepositoryInterface,
	campaigns repository.CampaignRepositoryInterface,
	leads repository.LeadRepositoryInterface,
	logger *observability.Logger,
) *EnrollmentService {
	return &EnrollmentService{
		Enrollments: enrollments,
		Campaigns:   campaigns,
		Leads:       leads,
		Logger:      logger,
		Now:         time.Now,
	}
}

func dayOffsetDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// Enroll creates an active enrollment at step 0. Fails with AlreadyEnrolled
// while an active enrollment exists for the pair; stopped or completed ones
// don't block re-enrollment.
func (s *EnrollmentService) Enroll(ctx context.Context, leadID, campaignID int) (*model.Enrollment, error) {
	if _, err := s.Leads.GetByID(ctx, leadID); err != nil {
		return nil, err
	}
	campaign, err := s.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(campaign.Steps) == 0 {
		return nil, fmt.Errorf("campaign %d has no steps", campaignID)
	}

	existing, err := s.Enrollments.GetActive(ctx, leadID, campaignID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, appErrors.NewAlreadyEnrolled(leadID, campaignID)
	}

	now := s.Now()
	e := &model.Enrollment{
		LeadID:     leadID,
		CampaignID: campaignID,
		StepIndex:  0,
		Status:     model.EnrollmentStatusActive,
		EnrolledAt: now,
		NextRunAt:  now.Add(dayOffsetDuration(campaign.Steps[0].DayOffset)),
	}
	if err := s.Enrollments.Create(ctx, e); err != nil {
		return nil, err
	}

	s.Logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "lead_id", Value: leadID},
		observability.Field{Key: "campaign_id", Value: campaignID},
		observability.Field{Key: "enrollment_id", Value: e.ID},
	), "lead enrolled in campaign")

	return e, nil
}

// StopEnrollment halts every active enrollment for the lead across all
// campaigns. Idempotent.
func (s *EnrollmentService) StopEnrollment(ctx context.Context, leadID int) error {
	return s.Enrollments.StopAllForLead(ctx, leadID)
}

// Get returns the enrollment by ID, nil when it does not exist.
func (s *EnrollmentService) Get(ctx context.Context, id int) (*model.Enrollment, error) {
	return s.Enrollments.GetByID(ctx, id)
}

// DueEnrollments returns active enrollments of active campaigns due at or
// before now, oldest due first.
func (s *EnrollmentService) DueEnrollments(ctx context.Context, now time.Time) ([]model.Enrollment, error) {
	return s.Enrollments.ListDue(ctx, now)
}

// Advance moves the cursor after a successful dispatch. The next-run time is
// computed from the enrollment start and the next step's day offset, not from
// now, so late ticks and retries don't accumulate drift. Past the final step
// the enrollment completes.
func (s *EnrollmentService) Advance(ctx context.Context, e *model.Enrollment, campaign *model.Campaign) error {
	e.StepIndex++
	e.RetryCount = 0
	if e.StepIndex >= len(campaign.Steps) {
		e.Status = model.EnrollmentStatusCompleted
	} else {
		e.NextRunAt = e.EnrolledAt.Add(dayOffsetDuration(campaign.Steps[e.StepIndex].DayOffset))
	}
	return s.Enrollments.Update(ctx, e)
}

// RescheduleRetry keeps the current step and retries it after delay.
// countRetry controls whether the failure consumes the step's retry budget;
// rate-limit waits don't.
func (s *EnrollmentService) RescheduleRetry(ctx context.Context, e *model.Enrollment, delay time.Duration, countRetry bool) error {
	if countRetry {
		e.RetryCount++
	}
	e.NextRunAt = s.Now().Add(delay)
	return s.Enrollments.Update(ctx, e)
}

// StopForReview stops the enrollment and flags the lead for a human. The step
// index is left where it was so the history shows where automation gave up.
func (s *EnrollmentService) StopForReview(ctx context.Context, e *model.Enrollment) error {
	e.Status = model.EnrollmentStatusStopped
	if err := s.Enrollments.Update(ctx, e); err != nil {
		return err
	}
	return s.Leads.SetNeedsHumanReview(ctx, e.LeadID, true)
}
