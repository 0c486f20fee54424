package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unclebandit/leadreach-backend/internal/channel"
	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
)

type fakeLeadRepo struct {
	mu     sync.Mutex
	leads  map[int]*model.Lead
	nextID int
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{leads: map[int]*model.Lead{}, nextID: 1}
}

func (r *fakeLeadRepo) add(l *model.Lead) *model.Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == 0 {
		l.ID = r.nextID
		r.nextID++
	}
	cp := *l
	r.leads[l.ID] = &cp
	return l
}

func (r *fakeLeadRepo) GetByID(ctx context.Context, id int) (*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return nil, appErrors.NewLeadNotFound(id)
	}
	cp := *l
	return &cp, nil
}

func (r *fakeLeadRepo) GetByContact(ctx context.Context, ch model.Channel, contact string) (*model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if ch == model.ChannelEmail {
			if l.Email == contact {
				cp := *l
				return &cp, nil
			}
			continue
		}
		if matchLastDigits(l.Phone, contact) {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func matchLastDigits(a, b string) bool {
	da, db := digits(a), digits(b)
	if len(da) > 9 {
		da = da[len(da)-9:]
	}
	if len(db) > 9 {
		db = db[len(db)-9:]
	}
	return da != "" && da == db
}

func digits(s string) string {
	out := []rune{}
	for _, c := range s {
		if c >= '0' && c <= '9' {
			out = append(out, c)
		}
	}
	return string(out)
}

func (r *fakeLeadRepo) Create(ctx context.Context, l *model.Lead) error {
	r.add(l)
	return nil
}

func (r *fakeLeadRepo) UpdateStatus(ctx context.Context, id int, status model.LeadStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.leads[id]; ok {
		l.Status = status
	}
	return nil
}

func (r *fakeLeadRepo) SetNeedsHumanReview(ctx context.Context, id int, flag bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.leads[id]; ok {
		l.NeedsHumanReview = flag
	}
	return nil
}

func (r *fakeLeadRepo) ListAll(ctx context.Context) ([]model.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Lead{}
	for _, l := range r.leads {
		out = append(out, *l)
	}
	return out, nil
}

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int]*model.Campaign
	nextID    int
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 1}
}

func (r *fakeCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.nextID
		r.nextID++
	}
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *fakeCampaignRepo) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	return nil, 0, nil
}

func (r *fakeCampaignRepo) UpdateStatus(ctx context.Context, id int, status model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (r *fakeCampaignRepo) GetCampaignStats(ctx context.Context, id int) (map[string]int, error) {
	return map[string]int{}, nil
}

type fakeEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments map[int]*model.Enrollment
	nextID      int
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{enrollments: map[int]*model.Enrollment{}, nextID: 1}
}

func (r *fakeEnrollmentRepo) Create(ctx context.Context, e *model.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.nextID
	r.nextID++
	cp := *e
	r.enrollments[e.ID] = &cp
	return nil
}

func (r *fakeEnrollmentRepo) GetByID(ctx context.Context, id int) (*model.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *fakeEnrollmentRepo) GetActive(ctx context.Context, leadID, campaignID int) (*model.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.enrollments {
		if e.LeadID == leadID && e.CampaignID == campaignID && e.Status == model.EnrollmentStatusActive {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeEnrollmentRepo) ListActiveByLead(ctx context.Context, leadID int) ([]model.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Enrollment{}
	for _, e := range r.enrollments {
		if e.LeadID == leadID && e.Status == model.EnrollmentStatusActive {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) ListDue(ctx context.Context, now time.Time) ([]model.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Enrollment{}
	for _, e := range r.enrollments {
		if e.Status == model.EnrollmentStatusActive && !e.NextRunAt.After(now) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeEnrollmentRepo) Update(ctx context.Context, e *model.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.enrollments[e.ID] = &cp
	return nil
}

func (r *fakeEnrollmentRepo) StopAllForLead(ctx context.Context, leadID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.enrollments {
		if e.LeadID == leadID && e.Status == model.EnrollmentStatusActive {
			e.Status = model.EnrollmentStatusStopped
		}
	}
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*model.Message
	byID     map[string]*model.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{byID: map[string]*model.Message{}}
}

func (r *fakeMessageRepo) Create(ctx context.Context, m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.messages = append(r.messages, &cp)
	r.byID[m.ID] = &cp
	return nil
}

func (r *fakeMessageRepo) GetByID(ctx context.Context, id string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) GetStatus(ctx context.Context, id string) (model.MessageStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[id]; ok {
		return m.Status, nil
	}
	return "", nil
}

func (r *fakeMessageRepo) UpdateStatus(ctx context.Context, id string, status model.MessageStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[id]; ok {
		m.Status = status
		m.StatusUpdatedAt = at
	}
	return nil
}

func (r *fakeMessageRepo) SetProviderMessageID(ctx context.Context, id, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[id]; ok {
		m.ProviderMessageID = providerID
	}
	return nil
}

func (r *fakeMessageRepo) ListByLead(ctx context.Context, leadID int) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Message{}
	for _, m := range r.messages {
		if m.LeadID == leadID {
			out = append(out, *m)
		}
	}
	return out, nil
}

type fakeCounters struct {
	mu    sync.Mutex
	last  *time.Time
	daily map[string]int
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{daily: map[string]int{}}
}

func (c *fakeCounters) LastAutoResponseAt(ctx context.Context, leadID int) (*time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, nil
}

func (c *fakeCounters) DailyCount(ctx context.Context, leadID int, day string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.daily[day], nil
}

func (c *fakeCounters) RecordAutoResponse(ctx context.Context, leadID int, day string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.daily[day]++
	t := at
	c.last = &t
	return nil
}

type sentMessage struct {
	Message model.Message
	Contact string
}

// fakeDispatcher records sends and returns a scripted outcome per call.
type fakeDispatcher struct {
	mu         sync.Mutex
	sent       []sentMessage
	results    []channel.DispatchResult
	transports map[model.Channel]model.TransportMethod
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{transports: map[model.Channel]model.TransportMethod{}}
}

func (d *fakeDispatcher) queueResult(r channel.DispatchResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, r)
}

func (d *fakeDispatcher) Send(ctx context.Context, msg *model.Message, contact string) channel.DispatchResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentMessage{Message: *msg, Contact: contact})
	if len(d.results) == 0 {
		msg.Status = model.MessageStatusSent
		return channel.DispatchResult{Success: true, MessageID: msg.ID}
	}
	res := d.results[0]
	d.results = d.results[1:]
	res.MessageID = msg.ID
	if res.Success {
		msg.Status = model.MessageStatusSent
	} else {
		msg.Status = model.MessageStatusFailed
	}
	return res
}

func (d *fakeDispatcher) TransportMethod(ch model.Channel) model.TransportMethod {
	if tm, ok := d.transports[ch]; ok {
		return tm
	}
	return model.TransportAPI
}

func (d *fakeDispatcher) sentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func channelFailure() channel.DispatchResult {
	return channel.DispatchResult{Err: appErrors.NewTransportError("whatsapp", errors.New("connection reset"))}
}

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) GenerateMessage(ctx context.Context, lead *model.Lead, history []model.Message, template string, ch model.Channel) (string, error) {
	return g.reply, g.err
}
