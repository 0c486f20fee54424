package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
	"github.com/unclebandit/leadreach-backend/internal/queue"
)

type stubAdapter struct {
	channel    model.Channel
	transport  model.TransportMethod
	providerID string
	err        error
	panicWith  any
	block      time.Duration
}

func (a *stubAdapter) Channel() model.Channel { return a.channel }
func (a *stubAdapter) TransportMethod() model.TransportMethod { return a.transport }
func (a *stubAdapter) Send(ctx context.Context, contact, content string) (string, error) {
	if a.panicWith != nil {
		panic(a.panicWith)
	}
	if a.block > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.block):
		}
	}
	return a.providerID, a.err
}

type recordingTracker struct {
	mu          sync.Mutex
	transitions map[string]model.MessageStatus
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{transitions: map[string]model.MessageStatus{}}
}

func (t *recordingTracker) Transition(ctx context.Context, messageID string, status model.MessageStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transitions[messageID] = status
	return nil
}

type recordingProviderIDs struct {
	mu  sync.Mutex
	ids map[string]string
}

func newRecordingProviderIDs() *recordingProviderIDs {
	return &recordingProviderIDs{ids: map[string]string{}}
}

func (p *recordingProviderIDs) SetProviderMessageID(ctx context.Context, id, providerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids[id] = providerID
	return nil
}

func newTestDispatcher(adapters ...Adapter) (*Dispatcher, *recordingTracker, *recordingProviderIDs, *queue.InMemoryQueue) {
	tracker := newRecordingTracker()
	providerIDs := newRecordingProviderIDs()
	events := queue.NewInMemoryQueue()
	d := NewDispatcher(tracker, providerIDs, events, observability.NewNopLogger(), time.Second)
	for _, a := range adapters {
		d.Register(a)
	}
	return d, tracker, providerIDs, events
}

func outbound(id string) *model.Message {
	return &model.Message{
		ID:      id,
		LeadID:  7,
		Role:    model.RoleAgent,
		Channel: model.ChannelWhatsApp,
		Content: "Hi there",
		Status:  model.MessageStatusSending,
	}
}

func TestDispatcherSuccess(t *testing.T) {
	adapter := &stubAdapter{channel: model.ChannelWhatsApp, transport: model.TransportAPI, providerID: "wamid.42"}
	d, tracker, providerIDs, events := newTestDispatcher(adapter)

	var mu sync.Mutex
	var published []model.StatusEvent
	done := make(chan struct{}, 1)
	events.Subscribe(queue.TopicMessageStatus, func(payload any) error {
		mu.Lock()
		published = append(published, payload.(model.StatusEvent))
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	msg := outbound("m1")
	res := d.Send(context.Background(), msg, "+2348012345678")

	if !res.Success {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.ProviderMessageID != "wamid.42" {
		t.Errorf("provider id %q", res.ProviderMessageID)
	}
	if tracker.transitions["m1"] != model.MessageStatusSent {
		t.Errorf("expected sent transition, got %s", tracker.transitions["m1"])
	}
	if providerIDs.ids["m1"] != "wamid.42" {
		t.Errorf("provider id not stored: %q", providerIDs.ids["m1"])
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("status event not published")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(published) != 1 || published[0].Status != model.MessageStatusSent || published[0].LeadID != 7 {
		t.Errorf("unexpected event: %+v", published)
	}
}

func TestDispatcherNoAdapter(t *testing.T) {
	d, tracker, _, _ := newTestDispatcher()

	msg := outbound("m1")
	res := d.Send(context.Background(), msg, "+2348012345678")

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Kind() != appErrors.KindTransport {
		t.Errorf("expected transport kind, got %s", res.Kind())
	}
	if tracker.transitions["m1"] != model.MessageStatusFailed {
		t.Errorf("expected failed transition, got %s", tracker.transitions["m1"])
	}
}

func TestDispatcherEmptyContact(t *testing.T) {
	adapter := &stubAdapter{channel: model.ChannelWhatsApp}
	d, _, _, _ := newTestDispatcher(adapter)

	res := d.Send(context.Background(), outbound("m1"), "")
	if res.Success || res.Kind() != appErrors.KindValidation {
		t.Errorf("empty contact should classify as validation, got %s", res.Kind())
	}
}

func TestDispatcherClassifiedErrorPassesThrough(t *testing.T) {
	adapter := &stubAdapter{
		channel: model.ChannelWhatsApp,
		err:     appErrors.NewRateLimited("whatsapp", 5*time.Minute, nil),
	}
	d, _, _, _ := newTestDispatcher(adapter)

	res := d.Send(context.Background(), outbound("m1"), "+2348012345678")
	if res.Kind() != appErrors.KindRateLimited {
		t.Fatalf("expected rate_limited, got %s", res.Kind())
	}
	var de *appErrors.DispatchError
	if !errors.As(res.Err, &de) || de.RetryAfter != 5*time.Minute {
		t.Errorf("retry-after lost in normalization: %+v", res.Err)
	}
}

func TestDispatcherUnclassifiedErrorBecomesTransport(t *testing.T) {
	adapter := &stubAdapter{channel: model.ChannelWhatsApp, err: errors.New("connection reset by peer")}
	d, _, _, _ := newTestDispatcher(adapter)

	res := d.Send(context.Background(), outbound("m1"), "+2348012345678")
	if res.Kind() != appErrors.KindTransport {
		t.Errorf("expected transport, got %s", res.Kind())
	}
}

func TestDispatcherRecoversAdapterPanic(t *testing.T) {
	adapter := &stubAdapter{channel: model.ChannelWhatsApp, panicWith: "nil map write"}
	d, tracker, _, _ := newTestDispatcher(adapter)

	res := d.Send(context.Background(), outbound("m1"), "+2348012345678")
	if res.Success {
		t.Fatal("panicking adapter must report failure")
	}
	if res.Kind() != appErrors.KindTransport {
		t.Errorf("panic should normalize to transport, got %s", res.Kind())
	}
	if tracker.transitions["m1"] != model.MessageStatusFailed {
		t.Errorf("status should still be recorded, got %s", tracker.transitions["m1"])
	}
}

func TestDispatcherTimeout(t *testing.T) {
	adapter := &stubAdapter{channel: model.ChannelWhatsApp, block: 5 * time.Second}
	tracker := newRecordingTracker()
	d := NewDispatcher(tracker, newRecordingProviderIDs(), nil, observability.NewNopLogger(), 50*time.Millisecond)
	d.Register(adapter)

	res := d.Send(context.Background(), outbound("m1"), "+2348012345678")
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if res.Kind() != appErrors.KindTransport {
		t.Errorf("timeout should classify as transport, got %s", res.Kind())
	}
}

func TestTransportMethodDefaultsToAPI(t *testing.T) {
	web := &stubAdapter{channel: model.ChannelWeChat, transport: model.TransportWeb}
	d, _, _, _ := newTestDispatcher(web)

	if d.TransportMethod(model.ChannelWeChat) != model.TransportWeb {
		t.Error("registered adapter's transport should win")
	}
	if d.TransportMethod(model.ChannelSMS) != model.TransportAPI {
		t.Error("unregistered channel defaults to api transport")
	}
}

func TestSplitSubject(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantSubject string
		wantBody    string
	}{
		{
			name:        "first line as subject",
			content:     "Price list inside\n\nHello, see attached.",
			wantSubject: "Price list inside",
			wantBody:    "Hello, see attached.",
		},
		{
			name:        "no blank line uses default",
			content:     "Just a body with no subject",
			wantSubject: defaultEmailSubject,
			wantBody:    "Just a body with no subject",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, body := splitSubject(tt.content)
			if subject != tt.wantSubject || body != tt.wantBody {
				t.Errorf("got (%q, %q), want (%q, %q)", subject, body, tt.wantSubject, tt.wantBody)
			}
		})
	}
}
