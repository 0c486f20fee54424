package service

import (
	"context"
	"time"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/observability"
)

// MessageStatusStore is the persistence needed by the tracker.
type MessageStatusStore interface {
	GetStatus(ctx context.Context, id string) (model.MessageStatus, error)
	UpdateStatus(ctx context.Context, id string, status model.MessageStatus, at time.Time) error
}

// allowedTransitions encodes the message lifecycle:
// sending -> sent -> delivered -> read, with a failed branch off sending and
// sent. read and failed are terminal; no backward moves.
var allowedTransitions = map[model.MessageStatus]map[model.MessageStatus]bool{
	model.MessageStatusSending: {
		model.MessageStatusSent:   true,
		model.MessageStatusFailed: true,
	},
	model.MessageStatusSent: {
		model.MessageStatusDelivered: true,
		model.MessageStatusFailed:    true,
	},
	model.MessageStatusDelivered: {
		model.MessageStatusRead: true,
	},
}

// StatusTracker is the single authority on message delivery status, shared by
// the dispatcher and any webhook-driven status update. It records transitions
// and nothing else.
type StatusTracker struct {
	store  MessageStatusStore
	logger *observability.Logger
	now    func() time.Time
}

func NewStatusTracker(store MessageStatusStore, logger *observability.Logger) *StatusTracker {
	return &StatusTracker{store: store, logger: logger, now: time.Now}
}

// Transition moves a message to the requested status. Repeated delivery of
// the same status (webhook redelivery) is a no-op; anything outside the
// allowed set fails with ErrInvalidTransition and leaves the status unchanged.
func (t *StatusTracker) Transition(ctx context.Context, messageID string, next model.MessageStatus) error {
	current, err := t.store.GetStatus(ctx, messageID)
	if err != nil {
		return err
	}

	if current == next {
		return nil
	}

	if !allowedTransitions[current][next] {
		err := appErrors.NewInvalidTransition(messageID, string(current), string(next))
		t.logger.Error(ctx, "rejected message status transition", err)
		return err
	}

	return t.store.UpdateStatus(ctx, messageID, next, t.now())
}
