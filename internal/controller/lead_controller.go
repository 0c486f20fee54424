// internal/controller/lead_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/leadreach-backend/internal/errors"
	"github.com/unclebandit/leadreach-backend/internal/model"
	"github.com/unclebandit/leadreach-backend/internal/repository"
)

// LeadController exposes lead CRUD and the conversation timeline.
type LeadController struct {
	Leads       repository.LeadRepositoryInterface
	Messages    repository.MessageRepositoryInterface
	Enrollments repository.EnrollmentRepositoryInterface
}

func NewLeadController(
	leads repository.LeadRepositoryInterface,
	messages repository.MessageRepositoryInterface,
	enrollments repository.EnrollmentRepositoryInterface,
) *LeadController {
	return &LeadController{Leads: leads, Messages: messages, Enrollments: enrollments}
}

// CreateLead handles POST /leads.
func (c *LeadController) CreateLead(w http.ResponseWriter, r *http.Request) {
	var lead model.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if lead.Phone == "" && lead.Email == "" {
		http.Error(w, "phone or email is required", http.StatusBadRequest)
		return
	}

	if err := c.Leads.Create(r.Context(), &lead); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(lead)
}

// ListLeads handles GET /leads.
func (c *LeadController) ListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := c.Leads.ListAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"leads": leads,
		"total": len(leads),
	})
}

// GetLead handles GET /leads/{id}, returning the lead with its message
// timeline and active enrollments.
func (c *LeadController) GetLead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid lead ID", http.StatusBadRequest)
		return
	}

	lead, err := c.Leads.GetByID(r.Context(), id)
	if err != nil {
		var notFound *appErrors.ErrLeadNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	timeline, err := c.Messages.ListByLead(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	enrollments, err := c.Enrollments.ListActiveByLead(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"lead":        lead,
		"timeline":    timeline,
		"enrollments": enrollments,
	})
}
