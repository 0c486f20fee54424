// internal/service/reply_listener.go
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
	"github.com/unclebandit/leadreach-backend/internal/queue"
	"github.com/unclebandit/leadreach-backend/internal/repository"
)

// ReplyListener processes normalized inbound messages. A reply from a lead is
// the strongest engagement signal: it halts every active campaign for that
// lead and hands the conversation to the auto-responder.
type ReplyListener struct {
	leads         repository.LeadRepositoryInterface
	messages      repository.MessageRepositoryInterface
	enrollments   *EnrollmentService
	autoResponder *AutoResponder
	locker        *LeadLocker
	events        queue.Queue
	logger        *observability.Logger

	// createMu serializes lead creation for unknown senders. The per-lead
	// locker can't help here: there is no lead ID to key on yet.
	createMu sync.Mutex
}

func NewReplyListener(
	leads repository.LeadRepositoryInterface,
	messages repository.MessageRepositoryInterface,
	enrollments *EnrollmentService,
	autoResponder *AutoResponder,
	locker *LeadLocker,
	events queue.Queue,
	logger *observability.Logger,
) *ReplyListener {
	return &ReplyListener{
		leads:         leads,
		messages:      messages,
		enrollments:   enrollments,
		autoResponder: autoResponder,
		locker:        locker,
		events:        events,
		logger:        logger,
	}
}

// HandleInbound records the inbound message, stops the lead's automation and
// triggers the auto-response. Unknown senders get a minimal lead created so
// the conversation is never dropped.
func (l *ReplyListener) HandleInbound(ctx context.Context, ev model.InboundMessage) error {
	lead, err := l.resolveLead(ctx, ev)
	if err != nil {
		return err
	}

	unlock := l.locker.Lock(lead.ID)
	defer unlock()

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	// Inbound messages enter the history at delivered. The sending/sent part
	// of the lifecycle belongs to the provider, not to us.
	msg := &model.Message{
		ID:                uuid.NewString(),
		LeadID:            lead.ID,
		Role:              model.RoleLead,
		Channel:           ev.Channel,
		Content:           ev.Content,
		Status:            model.MessageStatusDelivered,
		ProviderMessageID: ev.ProviderMessageID,
		SentAt:            ts,
	}
	if err := l.messages.Create(ctx, msg); err != nil {
		return err
	}

	if err := l.enrollments.StopEnrollment(ctx, lead.ID); err != nil {
		return err
	}

	if lead.Status != model.LeadStatusClosed {
		if err := l.leads.UpdateStatus(ctx, lead.ID, model.LeadStatusEngaged); err != nil {
			l.logger.Error(ctx, "failed to mark lead engaged", err)
		}
	}

	l.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "lead_id", Value: lead.ID},
		observability.Field{Key: "channel", Value: string(ev.Channel)},
	), "inbound reply recorded, campaign automation stopped")

	if l.events != nil {
		if err := l.events.Publish(queue.TopicMessageStatus, model.StatusEvent{
			LeadID:    lead.ID,
			MessageID: msg.ID,
			Status:    model.MessageStatusDelivered,
		}); err != nil {
			l.logger.Error(ctx, "failed to publish inbound message event", err)
		}
	}

	if l.autoResponder != nil {
		// Auto-response failure must not fail inbound handling; the reply is
		// already recorded and the automation stop already happened.
		if err := l.autoResponder.Respond(ctx, lead, msg); err != nil {
			l.logger.Error(observability.WithFields(ctx,
				observability.Field{Key: "lead_id", Value: lead.ID},
			), "auto-response failed", err)
		}
	}

	return nil
}

func (l *ReplyListener) resolveLead(ctx context.Context, ev model.InboundMessage) (*model.Lead, error) {
	if ev.LeadID > 0 {
		return l.leads.GetByID(ctx, ev.LeadID)
	}

	lead, err := l.leads.GetByContact(ctx, ev.Channel, ev.Contact)
	if err != nil {
		return nil, err
	}
	if lead != nil {
		return lead, nil
	}

	// Two near-simultaneous replies from the same unknown contact must end up
	// on one lead, not two. Re-check under the creation lock.
	l.createMu.Lock()
	defer l.createMu.Unlock()

	lead, err = l.leads.GetByContact(ctx, ev.Channel, ev.Contact)
	if err != nil {
		return nil, err
	}
	if lead != nil {
		return lead, nil
	}

	lead = &model.Lead{
		PreferredChannel: ev.Channel,
		ChannelMode:      model.ChannelModeAuto,
		Status:           model.LeadStatusEngaged,
	}
	if ev.Channel == model.ChannelEmail {
		lead.Email = ev.Contact
	} else {
		lead.Phone = ev.Contact
	}
	if err := l.leads.Create(ctx, lead); err != nil {
		return nil, err
	}

	l.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "lead_id", Value: lead.ID},
		observability.Field{Key: "channel", Value: string(ev.Channel)},
	), "created lead from unknown inbound sender")

	return lead, nil
}
