// internal/controller/campaign_controller.go
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
	"github.com/unclebandit/leadreach-backend/internal/service"
)

// CampaignController exposes campaign CRUD, stats and template preview.
type CampaignController struct {
	Campaigns repository.CampaignRepositoryInterface
	Leads     repository.LeadRepositoryInterface
}

func NewCampaignController(campaigns repository.CampaignRepositoryInterface, leads repository.LeadRepositoryInterface) *CampaignController {
	return &CampaignController{Campaigns: campaigns, Leads: leads}
}

type createCampaignRequest struct {
	Name  string `json:"name"`
	Steps []struct {
		DayOffset int           `json:"day_offset"`
		Channel   model.Channel `json:"channel"`
		Template  string        `json:"template"`
	} `json:"steps"`
}

// CreateCampaign handles POST /campaigns.
func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if len(req.Steps) == 0 {
		http.Error(w, "at least one step is required", http.StatusBadRequest)
		return
	}

	campaign := &model.Campaign{Name: req.Name, Status: model.CampaignStatusDraft}
	lastOffset := -1
	for _, s := range req.Steps {
		if s.DayOffset < 0 || s.DayOffset < lastOffset {
			http.Error(w, "step day offsets must be non-negative and non-decreasing", http.StatusBadRequest)
			return
		}
		lastOffset = s.DayOffset
		campaign.Steps = append(campaign.Steps, model.CampaignStep{
			StepIndex: len(campaign.Steps),
			DayOffset: s.DayOffset,
			Channel:   s.Channel,
			Template:  s.Template,
		})
	}

	if err := c.Campaigns.Create(r.Context(), campaign); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

// ListCampaigns handles GET /campaigns with page/limit/status query params.
func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	status := r.URL.Query().Get("status")

	campaigns, total, err := c.Campaigns.ListCampaigns(r.Context(), (page-1)*limit, limit, status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaigns": campaigns,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}

// GetCampaign handles GET /campaigns/{id}, returning the campaign with its
// steps and per-status message counts.
func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid campaign ID", http.StatusBadRequest)
		return
	}

	campaign, err := c.Campaigns.GetByID(r.Context(), id)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats, err := c.Campaigns.GetCampaignStats(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaign": campaign,
		"stats":    stats,
	})
}

// UpdateCampaignStatus handles PATCH /campaigns/{id}/status for
// activate/pause transitions.
func (c *CampaignController) UpdateCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid campaign ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Status model.CampaignStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case model.CampaignStatusActive, model.CampaignStatusPaused, model.CampaignStatusDraft:
	default:
		http.Error(w, "invalid campaign status", http.StatusBadRequest)
		return
	}

	if err := c.Campaigns.UpdateStatus(r.Context(), id, req.Status); err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": string(req.Status)})
}

// PreviewStep handles GET /campaigns/{id}/steps/{index}/preview?lead_id=N,
// rendering the step template against a real lead without sending anything.
func (c *CampaignController) PreviewStep(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid campaign ID", http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid step index", http.StatusBadRequest)
		return
	}
	leadID, err := strconv.Atoi(r.URL.Query().Get("lead_id"))
	if err != nil {
		http.Error(w, "lead_id query parameter is required", http.StatusBadRequest)
		return
	}

	campaign, err := c.Campaigns.GetByID(r.Context(), id)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if index < 0 || index >= len(campaign.Steps) {
		http.Error(w, "step index out of range", http.StatusNotFound)
		return
	}

	lead, err := c.Leads.GetByID(r.Context(), leadID)
	if err != nil {
		var notFound *appErrors.ErrLeadNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	step := campaign.Steps[index]
	rendered := service.RenderTemplate(step.Template, service.LeadTemplateData(lead))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"step_index": index,
		"channel":    step.Channel,
		"content":    rendered,
	})
}
