package controller

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/unclebandit/waleopard-backend/internal/service"
)

// LeadController accepts embed-form and landing-page submissions. Both land
// in the same dedup contract the webhook reconciler uses, so one identity
// never forks into two contacts no matter which door it came through.
type LeadController struct {
	Leads    *service.LeadService
	Validate *validator.Validate
	Logger   *slog.Logger
}

type leadRequest struct {
	TenantID string `json:"tenant_id" validate:"required,uuid4"`
	Name     string `json:"name" validate:"max=120"`
	Phone    string `json:"phone" validate:"required_without=Email,max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
	Message  string `json:"message" validate:"max=2000"`
	Source   string `json:"source" validate:"required,oneof=embed_form landing_page"`
}

func (c *LeadController) CaptureLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := c.Validate.Struct(req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	contact, created, err := c.Leads.Capture(service.Lead{
		TenantID:   req.TenantID,
		Name:       req.Name,
		Phone:      req.Phone,
		Email:      req.Email,
		Message:    req.Message,
		Source:     req.Source,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		c.Logger.Error("lead capture failed", "tenant_id", req.TenantID, "error", err)
		http.Error(w, "failed to capture lead", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"contact": contact,
		"created": created,
	})
}
