// internal/controller/webhook_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/queue"
	"github.com/unclebandit/leadreach-backend/internal/repository"
	"github.com/unclebandit/leadreach-backend/internal/service"
)

// WebhookController receives provider callbacks: inbound messages and
// delivery-status updates. Providers that can't call us directly push the
// same payloads through the AMQP worker instead; both paths end in the same
// services.
type WebhookController struct {
	Listener *service.ReplyListener
	Tracker  *service.StatusTracker
	Messages repository.MessageRepositoryInterface
	Events   queue.Queue
}

func NewWebhookController(
	listener *service.ReplyListener,
	tracker *service.StatusTracker,
	messages repository.MessageRepositoryInterface,
	events queue.Queue,
) *WebhookController {
	return &WebhookController{Listener: listener, Tracker: tracker, Messages: messages, Events: events}
}

// Inbound handles POST /webhooks/inbound with a normalized inbound message.
func (c *WebhookController) Inbound(w http.ResponseWriter, r *http.Request) {
	var ev model.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if ev.Content == "" || ev.Channel == "" {
		http.Error(w, "content and channel are required", http.StatusBadRequest)
		return
	}
	if ev.LeadID <= 0 && ev.Contact == "" {
		http.Error(w, "lead_id or contact is required", http.StatusBadRequest)
		return
	}

	if err := c.Listener.HandleInbound(r.Context(), ev); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}

type statusUpdateRequest struct {
	Status model.MessageStatus `json:"status"`
}

// MessageStatus handles PATCH /messages/{id}/status, the webhook path for
// delivery receipts. Transitions go through the shared tracker; an
// out-of-order receipt gets a 409 and changes nothing.
func (c *WebhookController) MessageStatus(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "id")

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case model.MessageStatusSent, model.MessageStatusDelivered, model.MessageStatusRead, model.MessageStatusFailed:
	default:
		http.Error(w, "invalid message status", http.StatusBadRequest)
		return
	}

	msg, err := c.Messages.GetByID(r.Context(), messageID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if msg == nil {
		http.Error(w, "message not found", http.StatusNotFound)
		return
	}

	if err := c.Tracker.Transition(r.Context(), messageID, req.Status); err != nil {
		var invalid *appErrors.ErrInvalidTransition
		if errors.As(err, &invalid) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if c.Events != nil {
		c.Events.Publish(queue.TopicMessageStatus, model.StatusEvent{
			LeadID:    msg.LeadID,
			MessageID: messageID,
			Status:    req.Status,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": string(req.Status)})
}
