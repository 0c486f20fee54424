package service

import (
	"context"
	"testing"
	"time"

	"github.com/unclebandit/leadreach-backend/internal/channel"
	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
)

type executorFixture struct {
	executor    *StepExecutor
	enrollments *EnrollmentService
	leads       *fakeLeadRepo
	campaigns   *fakeCampaignRepo
	enrollRepo  *fakeEnrollmentRepo
	messages    *fakeMessageRepo
	dispatcher  *fakeDispatcher
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	leads := newFakeLeadRepo()
	campaigns := newFakeCampaignRepo()
	enrollRepo := newFakeEnrollmentRepo()
	messages := newFakeMessageRepo()
	dispatcher := newFakeDispatcher()
	logger := observability.NewNopLogger()

	enrollments := NewEnrollmentService(enrollRepo, campaigns, leads, logger)
	executor := NewStepExecutor(leads, campaigns, messages, enrollments, dispatcher,
		NewLeadLocker(), logger, time.Minute, 3)

	return &executorFixture{
		executor:    executor,
		enrollments: enrollments,
		leads:       leads,
		campaigns:   campaigns,
		enrollRepo:  enrollRepo,
		messages:    messages,
		dispatcher:  dispatcher,
	}
}

func (f *executorFixture) enrollAt(t *testing.T, lead *model.Lead, campaign *model.Campaign, at time.Time) *model.Enrollment {
	t.Helper()
	f.enrollments.Now = func() time.Time { return at }
	e, err := f.enrollments.Enroll(context.Background(), lead.ID, campaign.ID)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	return e
}

func TestExecuteStepSendsAndAdvances(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	lead := f.leads.add(&model.Lead{
		FirstName: "Amara", Phone: "+2348012345678",
		PreferredChannel: model.ChannelWhatsApp, ChannelMode: model.ChannelModeManual,
		Status: model.LeadStatusPending,
	})
	campaign := threeStepCampaign()
	f.campaigns.Create(ctx, campaign)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := f.enrollAt(t, lead, campaign, start)

	if err := f.executor.ExecuteStep(ctx, *e); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if f.dispatcher.sentCount() != 1 {
		t.Fatalf("expected 1 send, got %d", f.dispatcher.sentCount())
	}
	sent := f.dispatcher.sent[0]
	if sent.Message.Content != "Hi Amara" {
		t.Errorf("template not rendered: %q", sent.Message.Content)
	}
	if sent.Contact != "+2348012345678" {
		t.Errorf("wrong contact: %q", sent.Contact)
	}

	stored, _ := f.enrollRepo.GetByID(ctx, e.ID)
	if stored.StepIndex != 1 {
		t.Errorf("expected advance to step 1, got %d", stored.StepIndex)
	}
	want := start.Add(2 * 24 * time.Hour)
	if !stored.NextRunAt.Equal(want) {
		t.Errorf("next run %v, want %v", stored.NextRunAt, want)
	}

	updated, _ := f.leads.GetByID(ctx, lead.ID)
	if updated.Status != model.LeadStatusContacted {
		t.Errorf("lead should be contacted, got %s", updated.Status)
	}
}

func TestExecuteStepIgnoresStaleDueSnapshot(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	lead := f.leads.add(&model.Lead{
		FirstName: "Amara", Phone: "+2348012345678",
		PreferredChannel: model.ChannelWhatsApp, ChannelMode: model.ChannelModeManual,
	})
	campaign := threeStepCampaign()
	f.campaigns.Create(ctx, campaign)

	start := time.Now().Add(-time.Minute)
	e := f.enrollAt(t, lead, campaign, start)

	// Two overlapping heartbeats scan the same due enrollment. The first
	// executes and advances it; the second arrives with the stale snapshot
	// and must not fire step 1 two days early.
	if err := f.executor.ExecuteStep(ctx, *e); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if err := f.executor.ExecuteStep(ctx, *e); err != nil {
		t.Fatalf("second execute: %v", err)
	}

	if f.dispatcher.sentCount() != 1 {
		t.Fatalf("stale due snapshot re-executed: %d sends", f.dispatcher.sentCount())
	}

	stored, _ := f.enrollRepo.GetByID(ctx, e.ID)
	if stored.StepIndex != 1 {
		t.Errorf("expected step index 1 after one execution, got %d", stored.StepIndex)
	}
	want := start.Add(2 * 24 * time.Hour)
	if !stored.NextRunAt.Equal(want) {
		t.Errorf("next run moved by the stale execution: %v, want %v", stored.NextRunAt, want)
	}
}

func TestExecuteStepSkipsStoppedEnrollment(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	lead := f.leads.add(&model.Lead{Phone: "+2348012345678", ChannelMode: model.ChannelModeManual, PreferredChannel: model.ChannelWhatsApp})
	campaign := threeStepCampaign()
	f.campaigns.Create(ctx, campaign)
	e := f.enrollAt(t, lead, campaign, time.Now())

	// A reply stopped the enrollment after the due scan picked it up.
	if err := f.enrollments.StopEnrollment(ctx, lead.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := f.executor.ExecuteStep(ctx, *e); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if f.dispatcher.sentCount() != 0 {
		t.Errorf("stopped enrollment must not send, got %d sends", f.dispatcher.sentCount())
	}
}

func TestExecuteStepSkipsPausedCampaign(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	lead := f.leads.add(&model.Lead{Phone: "+2348012345678", ChannelMode: model.ChannelModeManual, PreferredChannel: model.ChannelWhatsApp})
	campaign := threeStepCampaign()
	f.campaigns.Create(ctx, campaign)
	e := f.enrollAt(t, lead, campaign, time.Now())

	f.campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignStatusPaused)

	if err := f.executor.ExecuteStep(ctx, *e); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if f.dispatcher.sentCount() != 0 {
		t.Errorf("paused campaign must not send")
	}

	stored, _ := f.enrollRepo.GetByID(ctx, e.ID)
	if stored.Status != model.EnrollmentStatusActive || stored.StepIndex != 0 {
		t.Errorf("paused campaign should leave enrollment untouched: %+v", stored)
	}
}

func TestTransportFailuresExhaustRetryBudget(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	lead := f.leads.add(&model.Lead{Phone: "+2348012345678", ChannelMode: model.ChannelModeManual, PreferredChannel: model.ChannelWhatsApp})
	campaign := threeStepCampaign()
	f.campaigns.Create(ctx, campaign)
	e := f.enrollAt(t, lead, campaign, time.Now())

	transportFail := channel.DispatchResult{
		Err: appErrors.NewTransportError("whatsapp", context.DeadlineExceeded),
	}

	for i := 0; i < 3; i++ {
		f.dispatcher.queueResult(transportFail)
		stored, _ := f.enrollRepo.GetByID(ctx, e.ID)
		stored.NextRunAt = time.Now().Add(-time.Second)
		f.enrollRepo.Update(ctx, stored)
		if err := f.executor.ExecuteStep(ctx, *stored); err != nil {
			t.Fatalf("execute attempt %d: %v", i+1, err)
		}
	}

	stored, _ := f.enrollRepo.GetByID(ctx, e.ID)
	if stored.Status != model.EnrollmentStatusStopped {
		t.Errorf("expected stopped after 3 transport failures, got %s", stored.Status)
	}
	if stored.StepIndex != 0 {
		t.Errorf("step index must stay where automation gave up, got %d", stored.StepIndex)
	}

	updated, _ := f.leads.GetByID(ctx, lead.ID)
	if !updated.NeedsHumanReview {
		t.Error("lead should be flagged for human review")
	}
}

func TestValidationFailureStopsImmediately(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	lead := f.leads.add(&model.Lead{Phone: "+2348012345678", ChannelMode: model.ChannelModeManual, PreferredChannel: model.ChannelWhatsApp})
	campaign := threeStepCampaign()
	f.campaigns.Create(ctx, campaign)
	e := f.enrollAt(t, lead, campaign, time.Now())

	f.dispatcher.queueResult(channel.DispatchResult{
		Err: appErrors.NewValidationError("whatsapp", "invalid phone number"),
	})

	if err := f.executor.ExecuteStep(ctx, *e); err != nil {
		t.Fatalf("execute: %v", err)
	}

	stored, _ := f.enrollRepo.GetByID(ctx, e.ID)
	if stored.Status != model.EnrollmentStatusStopped {
		t.Errorf("validation failure should stop without retries, got %s", stored.Status)
	}
	updated, _ := f.leads.GetByID(ctx, lead.ID)
	if !updated.NeedsHumanReview {
		t.Error("lead should be flagged for human review")
	}
}

func TestRateLimitDoesNotConsumeRetryBudget(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	lead := f.leads.add(&model.Lead{Phone: "+2348012345678", ChannelMode: model.ChannelModeManual, PreferredChannel: model.ChannelWhatsApp})
	campaign := threeStepCampaign()
	f.campaigns.Create(ctx, campaign)
	e := f.enrollAt(t, lead, campaign, time.Now())

	f.dispatcher.queueResult(channel.DispatchResult{
		Err: appErrors.NewRateLimited("whatsapp", 10*time.Minute, nil),
	})

	if err := f.executor.ExecuteStep(ctx, *e); err != nil {
		t.Fatalf("execute: %v", err)
	}

	stored, _ := f.enrollRepo.GetByID(ctx, e.ID)
	if stored.Status != model.EnrollmentStatusActive {
		t.Errorf("rate limit should keep the enrollment active, got %s", stored.Status)
	}
	if stored.RetryCount != 0 {
		t.Errorf("rate limit must not consume retry budget, got %d", stored.RetryCount)
	}
	if !stored.NextRunAt.After(time.Now().Add(9 * time.Minute)) {
		t.Errorf("next run should honor the provider's retry-after, got %v", stored.NextRunAt)
	}
}

func TestAuthFailureParksStepAndFlagsLead(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	lead := f.leads.add(&model.Lead{Phone: "+2348012345678", ChannelMode: model.ChannelModeManual, PreferredChannel: model.ChannelWhatsApp})
	campaign := threeStepCampaign()
	f.campaigns.Create(ctx, campaign)
	e := f.enrollAt(t, lead, campaign, time.Now())

	f.dispatcher.queueResult(channel.DispatchResult{
		Err: appErrors.NewAuthError("whatsapp", nil),
	})

	if err := f.executor.ExecuteStep(ctx, *e); err != nil {
		t.Fatalf("execute: %v", err)
	}

	stored, _ := f.enrollRepo.GetByID(ctx, e.ID)
	if stored.Status != model.EnrollmentStatusActive || stored.StepIndex != 0 {
		t.Errorf("auth failure should park the step, got %+v", stored)
	}
	if stored.RetryCount != 0 {
		t.Errorf("auth failure must not consume retry budget, got %d", stored.RetryCount)
	}
	updated, _ := f.leads.GetByID(ctx, lead.ID)
	if !updated.NeedsHumanReview {
		t.Error("lead should be flagged so the credential problem is seen")
	}
}

func TestResolveChannelAutoMode(t *testing.T) {
	step := model.CampaignStep{Channel: model.ChannelSMS}

	tests := []struct {
		name string
		lead model.Lead
		want model.Channel
	}{
		{
			name: "highest score wins",
			lead: model.Lead{ChannelMode: model.ChannelModeAuto,
				Validation: model.ChannelValidation{WhatsApp: 50, Email: 90, SMS: 70}},
			want: model.ChannelEmail,
		},
		{
			name: "tie broken by ranking",
			lead: model.Lead{ChannelMode: model.ChannelModeAuto,
				Validation: model.ChannelValidation{WhatsApp: 80, Email: 80, SMS: 80}},
			want: model.ChannelWhatsApp,
		},
		{
			name: "no validated channel falls back to step",
			lead: model.Lead{ChannelMode: model.ChannelModeAuto},
			want: model.ChannelSMS,
		},
		{
			name: "manual mode honors preference",
			lead: model.Lead{ChannelMode: model.ChannelModeManual, PreferredChannel: model.ChannelWeChat},
			want: model.ChannelWeChat,
		},
		{
			name: "manual without preference uses step",
			lead: model.Lead{ChannelMode: model.ChannelModeManual},
			want: model.ChannelSMS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveChannel(&tt.lead, step); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestManualSendSurfacesDispatchError(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()

	lead := f.leads.add(&model.Lead{Phone: "+2348012345678", ChannelMode: model.ChannelModeManual, PreferredChannel: model.ChannelWhatsApp})

	f.dispatcher.queueResult(channel.DispatchResult{
		Err: appErrors.NewRateLimited("whatsapp", time.Minute, nil),
	})

	msg, err := f.executor.ManualSend(ctx, lead.ID, "Hello", model.ChannelWhatsApp)
	if err == nil {
		t.Fatal("expected classified dispatch error")
	}
	if appErrors.KindOf(err) != appErrors.KindRateLimited {
		t.Errorf("expected rate_limited, got %s", appErrors.KindOf(err))
	}
	if msg == nil {
		t.Fatal("failed manual send should still return the recorded message")
	}
}
