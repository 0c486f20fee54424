// internal/service/step_executor.go
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/leadreach-backend/internal/channel"
	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
	"github.com/unclebandit/leadreach-backend/internal/repository"
)

// authRetryPause is how long a step stays parked after an authentication
// failure. Credentials need an operator; retrying sooner just burns calls.
const authRetryPause = time.Hour

// MessageDispatcher is the outbound side the executor talks to.
type MessageDispatcher interface {
	Send(ctx context.Context, msg *model.Message, contact string) channel.DispatchResult
	TransportMethod(ch model.Channel) model.TransportMethod
}

// StepExecutor runs one due campaign step end to end: resolve channel, render
// the template, persist the message, dispatch it and apply the failure policy.
type StepExecutor struct {
	leads       repository.LeadRepositoryInterface
	campaigns   repository.CampaignRepositoryInterface
	messages    repository.MessageRepositoryInterface
	enrollments *EnrollmentService
	dispatcher  MessageDispatcher
	locker      *LeadLocker
	logger      *observability.Logger
	heartbeat   time.Duration
	maxRetries  int
	now         func() time.Time
}

func NewStepExecutor(
	leads repository.LeadRepositoryInterface,
	campaigns repository.CampaignRepositoryInterface,
	messages repository.MessageRepositoryInterface,
	enrollments *EnrollmentService,
	dispatcher MessageDispatcher,
	locker *LeadLocker,
	logger *observability.Logger,
	heartbeat time.Duration,
	maxRetries int,
) *StepExecutor {
	return &StepExecutor{
		leads:       leads,
		campaigns:   campaigns,
		messages:    messages,
		enrollments: enrollments,
		dispatcher:  dispatcher,
		locker:      locker,
		logger:      logger,
		heartbeat:   heartbeat,
		maxRetries:  maxRetries,
		now:         time.Now,
	}
}

// resolveChannel picks the channel for an outbound step. Manual mode honors
// the lead's preference; auto mode picks the highest validation score,
// ranking whatsapp > email > wechat > sms on ties. A lead with no validated
// channel falls back to the step's channel.
func resolveChannel(lead *model.Lead, step model.CampaignStep) model.Channel {
	if lead.ChannelMode == model.ChannelModeManual {
		if lead.PreferredChannel != "" {
			return lead.PreferredChannel
		}
		return step.Channel
	}

	best := step.Channel
	bestScore := 0
	for _, ch := range model.AutoChannelRanking {
		if score := lead.Validation.Score(ch); score > bestScore {
			best, bestScore = ch, score
		}
	}
	return best
}

// ExecuteStep processes one enrollment surfaced by the due scan. The
// enrollment is reloaded under the lead lock: a reply arriving between the
// scan and now may have stopped it, and an overlapping heartbeat may already
// have executed and advanced it. Both re-checks use the reloaded row, never
// the scan snapshot, so a stale snapshot sends nothing.
func (x *StepExecutor) ExecuteStep(ctx context.Context, due model.Enrollment) error {
	unlock := x.locker.Lock(due.LeadID)
	defer unlock()

	e, err := x.enrollments.Get(ctx, due.ID)
	if err != nil {
		return err
	}
	if e == nil || e.Status != model.EnrollmentStatusActive {
		return nil
	}
	if e.NextRunAt.After(x.now()) {
		return nil
	}

	campaign, err := x.campaigns.GetByID(ctx, e.CampaignID)
	if err != nil {
		return err
	}
	if campaign.Status != model.CampaignStatusActive {
		return nil
	}
	if e.StepIndex >= len(campaign.Steps) {
		return nil
	}
	step := campaign.Steps[e.StepIndex]

	lead, err := x.leads.GetByID(ctx, e.LeadID)
	if err != nil {
		return err
	}

	ch := resolveChannel(lead, step)
	content := RenderTemplate(step.Template, LeadTemplateData(lead))

	enrollmentID := e.ID
	msg := &model.Message{
		ID:           uuid.NewString(),
		LeadID:       lead.ID,
		EnrollmentID: &enrollmentID,
		Role:         model.RoleAgent,
		Channel:      ch,
		Content:      content,
		Status:       model.MessageStatusSending,
		SentAt:       x.now(),
	}
	if err := x.messages.Create(ctx, msg); err != nil {
		return err
	}

	res := x.dispatcher.Send(ctx, msg, lead.Contact(ch))
	if res.Success {
		if lead.Status == model.LeadStatusPending {
			if err := x.leads.UpdateStatus(ctx, lead.ID, model.LeadStatusContacted); err != nil {
				x.logger.Error(ctx, "failed to mark lead contacted", err)
			}
		}
		x.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "enrollment_id", Value: e.ID},
			observability.Field{Key: "step_index", Value: e.StepIndex},
			observability.Field{Key: "channel", Value: string(ch)},
		), "campaign step sent")
		return x.enrollments.Advance(ctx, e, campaign)
	}

	return x.handleFailure(ctx, e, res)
}

func (x *StepExecutor) handleFailure(ctx context.Context, e *model.Enrollment, res channel.DispatchResult) error {
	x.logger.Warn(observability.WithFields(ctx,
		observability.Field{Key: "enrollment_id", Value: e.ID},
		observability.Field{Key: "step_index", Value: e.StepIndex},
		observability.Field{Key: "kind", Value: string(res.Kind())},
	), "campaign step dispatch failed")

	switch res.Kind() {
	case appErrors.KindValidation:
		// Bad contact data never fixes itself.
		return x.enrollments.StopForReview(ctx, e)

	case appErrors.KindAuth:
		// Park the step without spending retry budget and flag the lead so
		// the credential problem gets looked at.
		if err := x.leads.SetNeedsHumanReview(ctx, e.LeadID, true); err != nil {
			x.logger.Error(ctx, "failed to flag lead for review", err)
		}
		return x.enrollments.RescheduleRetry(ctx, e, authRetryPause, false)

	case appErrors.KindRateLimited:
		delay := x.heartbeat
		var de *appErrors.DispatchError
		if errors.As(res.Err, &de) && de.RetryAfter > 0 {
			delay = de.RetryAfter
		}
		return x.enrollments.RescheduleRetry(ctx, e, delay, false)

	default:
		if e.RetryCount+1 >= x.maxRetries {
			return x.enrollments.StopForReview(ctx, e)
		}
		return x.enrollments.RescheduleRetry(ctx, e, x.heartbeat, true)
	}
}

// ManualSend sends an operator-written message outside any campaign. Dispatch
// failures are returned to the caller immediately instead of being retried.
func (x *StepExecutor) ManualSend(ctx context.Context, leadID int, content string, ch model.Channel) (*model.Message, error) {
	unlock := x.locker.Lock(leadID)
	defer unlock()

	lead, err := x.leads.GetByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if ch == "" {
		ch = resolveChannel(lead, model.CampaignStep{Channel: model.ChannelWhatsApp})
	}

	msg := &model.Message{
		ID:      uuid.NewString(),
		LeadID:  lead.ID,
		Role:    model.RoleAgent,
		Channel: ch,
		Content: content,
		Status:  model.MessageStatusSending,
		SentAt:  x.now(),
	}
	if err := x.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	res := x.dispatcher.Send(ctx, msg, lead.Contact(ch))
	if !res.Success {
		return msg, res.Err
	}

	if lead.Status == model.LeadStatusPending {
		if err := x.leads.UpdateStatus(ctx, lead.ID, model.LeadStatusContacted); err != nil {
			x.logger.Error(ctx, "failed to mark lead contacted", err)
		}
	}
	return msg, nil
}
