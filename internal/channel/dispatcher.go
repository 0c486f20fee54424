package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
	"github.com/unclebandit/leadreach-backend/internal/queue"
)

// StatusRecorder is the single shared authority on message status; the
// dispatcher never writes status rows directly.
type StatusRecorder interface {
	Transition(ctx context.Context, messageID string, status model.MessageStatus) error
}

// ProviderIDStore persists the provider-side message ID after a successful
// send.
type ProviderIDStore interface {
	SetProviderMessageID(ctx context.Context, id, providerID string) error
}

// DispatchResult is the uniform outcome of a send. Expected failures come
// back as a classified Err, never as a panic.
type DispatchResult struct {
	Success           bool
	MessageID         string
	ProviderMessageID string
	Err               error
}

// Kind returns the taxonomy kind of the failure, or "" on success.
func (r DispatchResult) Kind() appErrors.Kind {
	if r.Err == nil {
		return ""
	}
	return appErrors.KindOf(r.Err)
}

// Dispatcher routes outbound messages to the adapter for their channel,
// normalizes every failure into the closed error taxonomy, moves the message
// status, and emits one canonical status event regardless of channel. It is
// the last line of defense: callers never need channel-specific error
// handling.
type Dispatcher struct {
	adapters    map[model.Channel]Adapter
	tracker     StatusRecorder
	providerIDs ProviderIDStore
	events      queue.Queue
	logger      *observability.Logger
	sendTimeout time.Duration
}

func NewDispatcher(
	tracker StatusRecorder,
	providerIDs ProviderIDStore,
	events queue.Queue,
	logger *observability.Logger,
	sendTimeout time.Duration,
) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &Dispatcher{
		adapters:    make(map[model.Channel]Adapter),
		tracker:     tracker,
		providerIDs: providerIDs,
		events:      events,
		logger:      logger,
		sendTimeout: sendTimeout,
	}
}

// Register installs the adapter for its channel.
func (d *Dispatcher) Register(a Adapter) {
	d.adapters[a.Channel()] = a
}

// TransportMethod reports the integration style behind a channel. Channels
// without a registered adapter report the managed-API default.
func (d *Dispatcher) TransportMethod(ch model.Channel) model.TransportMethod {
	if a, ok := d.adapters[ch]; ok {
		return a.TransportMethod()
	}
	return model.TransportAPI
}

// Send dispatches an already-persisted message (status sending) to the
// lead's contact address on the message's channel.
func (d *Dispatcher) Send(ctx context.Context, msg *model.Message, contact string) DispatchResult {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "message_id", Value: msg.ID},
		observability.Field{Key: "channel", Value: string(msg.Channel)},
	)

	result := DispatchResult{MessageID: msg.ID}

	adapter, ok := d.adapters[msg.Channel]
	switch {
	case !ok:
		result.Err = appErrors.NewTransportError(string(msg.Channel),
			fmt.Errorf("no adapter registered for channel %s", msg.Channel))
	case contact == "":
		result.Err = appErrors.NewValidationError(string(msg.Channel), "empty contact address")
	default:
		providerID, err := d.sendWithTimeout(ctx, adapter, contact, msg.Content)
		if err != nil {
			result.Err = normalize(msg.Channel, err)
		} else {
			result.Success = true
			result.ProviderMessageID = providerID
		}
	}

	d.recordOutcome(ctx, msg, &result)
	return result
}

// sendWithTimeout bounds the adapter call and converts panics from adapter
// code into errors so a misbehaving transport cannot take the caller down.
func (d *Dispatcher) sendWithTimeout(ctx context.Context, adapter Adapter, contact, content string) (providerID string, err error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()

	return adapter.Send(sendCtx, contact, content)
}

func (d *Dispatcher) recordOutcome(ctx context.Context, msg *model.Message, result *DispatchResult) {
	next := model.MessageStatusFailed
	if result.Success {
		next = model.MessageStatusSent
	}

	if err := d.tracker.Transition(ctx, msg.ID, next); err != nil {
		d.logger.Error(ctx, "failed to record message status", err)
	} else {
		msg.Status = next
	}

	if result.Success && result.ProviderMessageID != "" && d.providerIDs != nil {
		if err := d.providerIDs.SetProviderMessageID(ctx, msg.ID, result.ProviderMessageID); err != nil {
			d.logger.Error(ctx, "failed to store provider message id", err)
		}
	}

	if d.events != nil {
		_ = d.events.Publish(queue.TopicMessageStatus, model.StatusEvent{
			LeadID:    msg.LeadID,
			MessageID: msg.ID,
			Status:    next,
		})
	}

	if result.Err != nil {
		d.logger.Error(ctx, "message dispatch failed", result.Err)
	} else {
		d.logger.Info(ctx, "message dispatched")
	}
}

// normalize guarantees the closed taxonomy: classified errors pass through,
// context deadlines and anything unrecognized become transport errors.
func normalize(ch model.Channel, err error) error {
	var de *appErrors.DispatchError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return appErrors.NewTransportError(string(ch), fmt.Errorf("send timed out: %w", err))
	}
	return appErrors.NewTransportError(string(ch), err)
}
