// internal/controller/enrollment_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/service"
)

// EnrollmentController exposes enrollment and manual-send operations.
type EnrollmentController struct {
	Enrollments *service.EnrollmentService
	Executor    *service.StepExecutor
}

func NewEnrollmentController(enrollments *service.EnrollmentService, executor *service.StepExecutor) *EnrollmentController {
	return &EnrollmentController{Enrollments: enrollments, Executor: executor}
}

type enrollRequest struct {
	LeadID     int `json:"lead_id"`
	CampaignID int `json:"campaign_id"`
}

// Enroll handles POST /enrollments.
func (c *EnrollmentController) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.LeadID <= 0 || req.CampaignID <= 0 {
		http.Error(w, "lead_id and campaign_id are required", http.StatusBadRequest)
		return
	}

	enrollment, err := c.Enrollments.Enroll(r.Context(), req.LeadID, req.CampaignID)
	if err != nil {
		var already *appErrors.ErrAlreadyEnrolled
		var noLead *appErrors.ErrLeadNotFound
		var noCampaign *appErrors.ErrCampaignNotFound
		switch {
		case errors.As(err, &already):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.As(err, &noLead), errors.As(err, &noCampaign):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(enrollment)
}

// StopLead handles POST /leads/{id}/stop. Stops every active enrollment for
// the lead; stopping a lead with none is still a 200.
func (c *EnrollmentController) StopLead(w http.ResponseWriter, r *http.Request) {
	leadID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid lead ID", http.StatusBadRequest)
		return
	}

	if err := c.Enrollments.StopEnrollment(r.Context(), leadID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "stopped"})
}

type manualSendRequest struct {
	Content string        `json:"content"`
	Channel model.Channel `json:"channel,omitempty"`
}

// ManualSend handles POST /leads/{id}/messages. Dispatch failures come back
// in the response body with the classification, not buried in logs.
func (c *EnrollmentController) ManualSend(w http.ResponseWriter, r *http.Request) {
	leadID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid lead ID", http.StatusBadRequest)
		return
	}

	var req manualSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	msg, err := c.Executor.ManualSend(r.Context(), leadID, req.Content, req.Channel)
	if err != nil {
		var noLead *appErrors.ErrLeadNotFound
		if errors.As(err, &noLead) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if msg != nil {
			// The message was recorded but the send failed; report both.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": msg,
				"error":   err.Error(),
				"kind":    string(appErrors.KindOf(err)),
			})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}
