// internal/service/autoresponder.go
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
	"github.com/unclebandit/leadreach-backend/internal/repository"
	"github.com/unclebandit/leadreach-backend/internal/textgen"
)

// EscalationKeywords route an inbound message straight to a human. Matching is
// case-insensitive substring.
var EscalationKeywords = []string{
	"manager",
	"human",
	"help",
	"support",
	"complaint",
	"urgent",
	"problem",
}

// Auto-response throttling per transport method. Managed API transports get a
// short cooldown and no daily cap; web-client transports get a long cooldown
// and a hard daily cap per lead.
const (
	apiCooldown = 5 * time.Minute
	webCooldown = 30 * time.Minute
	webDailyCap = 10
)

// ContainsEscalationKeyword reports whether the content asks for a human.
func ContainsEscalationKeyword(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range EscalationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// AutoResponder generates and sends automatic replies to inbound messages,
// subject to per-lead throttling.
type AutoResponder struct {
	counters   repository.AutoResponseRepositoryInterface
	leads      repository.LeadRepositoryInterface
	messages   repository.MessageRepositoryInterface
	generator  textgen.Generator
	dispatcher MessageDispatcher
	logger     *observability.Logger

	generateTimeout time.Duration

	// Now is swappable in tests to exercise cooldowns and the midnight
	// rollover of the daily cap.
	Now func() time.Time
}

func NewAutoResponder(
	counters repository.AutoResponseRepositoryInterface,
	leads repository.LeadRepositoryInterface,
	messages repository.MessageRepositoryInterface,
	generator textgen.Generator,
	dispatcher MessageDispatcher,
	logger *observability.Logger,
	generateTimeout time.Duration,
) *AutoResponder {
	return &AutoResponder{
		counters:        counters,
		leads:           leads,
		messages:        messages,
		generator:       generator,
		dispatcher:      dispatcher,
		logger:          logger,
		generateTimeout: generateTimeout,
		Now:             time.Now,
	}
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// CanAutoRespond is a pure check against the lead's throttle state. It never
// consumes quota; RecordAutoResponse does that after a successful send.
func (a *AutoResponder) CanAutoRespond(ctx context.Context, leadID int, tm model.TransportMethod) (bool, error) {
	now := a.Now()

	last, err := a.counters.LastAutoResponseAt(ctx, leadID)
	if err != nil {
		return false, err
	}
	cooldown := apiCooldown
	if tm == model.TransportWeb {
		cooldown = webCooldown
	}
	if last != nil && now.Sub(*last) < cooldown {
		return false, nil
	}

	if tm == model.TransportWeb {
		count, err := a.counters.DailyCount(ctx, leadID, dayKey(now))
		if err != nil {
			return false, err
		}
		if count >= webDailyCap {
			return false, nil
		}
	}

	return true, nil
}

// RecordAutoResponse charges one auto-response against the lead's quota.
func (a *AutoResponder) RecordAutoResponse(ctx context.Context, leadID int) error {
	now := a.Now()
	return a.counters.RecordAutoResponse(ctx, leadID, dayKey(now), now)
}

// Respond handles the automatic reply for one inbound message. The caller
// must hold the lead's lock. Escalation keywords are checked before any
// throttle so an escalation is flagged even when the lead is out of quota.
func (a *AutoResponder) Respond(ctx context.Context, lead *model.Lead, inbound *model.Message) error {
	if ContainsEscalationKeyword(inbound.Content) {
		a.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "lead_id", Value: lead.ID},
		), "escalation keyword detected, flagging lead for human review")
		return a.leads.SetNeedsHumanReview(ctx, lead.ID, true)
	}

	if a.generator == nil {
		return nil
	}

	tm := a.dispatcher.TransportMethod(inbound.Channel)
	ok, err := a.CanAutoRespond(ctx, lead.ID, tm)
	if err != nil {
		return err
	}
	if !ok {
		a.logger.Debug(observability.WithFields(ctx,
			observability.Field{Key: "lead_id", Value: lead.ID},
			observability.Field{Key: "transport", Value: string(tm)},
		), "auto-response suppressed by throttle")
		return nil
	}

	history, err := a.messages.ListByLead(ctx, lead.ID)
	if err != nil {
		return err
	}

	genCtx, cancel := context.WithTimeout(ctx, a.generateTimeout)
	defer cancel()
	reply, err := a.generator.GenerateMessage(genCtx, lead, history, "", inbound.Channel)
	if err != nil {
		a.logger.Error(observability.WithFields(ctx,
			observability.Field{Key: "lead_id", Value: lead.ID},
		), "auto-response generation failed", err)
		return err
	}

	msg := &model.Message{
		ID:      uuid.NewString(),
		LeadID:  lead.ID,
		Role:    model.RoleAgent,
		Channel: inbound.Channel,
		Content: reply,
		Status:  model.MessageStatusSending,
		SentAt:  a.Now(),
	}
	if err := a.messages.Create(ctx, msg); err != nil {
		return err
	}

	res := a.dispatcher.Send(ctx, msg, lead.Contact(inbound.Channel))
	if !res.Success {
		// A failed send never consumes quota.
		return res.Err
	}
	return a.RecordAutoResponse(ctx, lead.ID)
}
