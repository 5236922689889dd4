package handler

import (
	app "github.com/erp/subledger/internal/application/subledger"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// DunningHandler exposes the dunning candidate report
type DunningHandler struct {
	BaseHandler
	dunningService *app.DunningService
}

// NewDunningHandler creates a new DunningHandler
func NewDunningHandler(dunningService *app.DunningService) *DunningHandler {
	return &DunningHandler{dunningService: dunningService}
}

// RegisterRoutes registers dunning routes
func (h *DunningHandler) RegisterRoutes(rg *gin.RouterGroup) {
	dunning := rg.Group("/dunning")
	{
		dunning.GET("/candidates", h.GetCandidates)
		dunning.POST("/candidates", h.GetCandidatesWithPolicy)
	}
}

// GetCandidates returns the dunning report under the default policy
func (h *DunningHandler) GetCandidates(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	asOf, err := parseDate(c.Query("as_of"))
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	partnerID, err := parseUUIDPtr(c.Query("partner_id"))
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	report, err := h.dunningService.Generate(c.Request.Context(), actor, app.DunningRequest{
		AsOfDate:  asOf,
		PartnerID: partnerID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// DunningPolicyRequest lets the caller supply a custom escalation policy
type DunningPolicyRequest struct {
	AsOfDate  string `json:"as_of_date"`
	PartnerID string `json:"partner_id" binding:"omitempty,uuid"`
	Policy    struct {
		Name   string `json:"name" binding:"required"`
		Levels []struct {
			Level       int `json:"level" binding:"required,min=1"`
			DaysPastDue int `json:"days_past_due" binding:"min=0"`
		} `json:"levels" binding:"required,min=1,dive"`
	} `json:"policy" binding:"required"`
}

// GetCandidatesWithPolicy returns the dunning report under a caller-supplied policy
func (h *DunningHandler) GetCandidatesWithPolicy(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req DunningPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	asOf, err := parseDate(req.AsOfDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	partnerID, err := parseUUIDPtr(req.PartnerID)
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	policy := domain.DunningPolicy{Name: req.Policy.Name}
	for _, level := range req.Policy.Levels {
		policy.Levels = append(policy.Levels, domain.DunningPolicyLevel{
			Level:       level.Level,
			DaysPastDue: level.DaysPastDue,
		})
	}

	report, err := h.dunningService.Generate(c.Request.Context(), actor, app.DunningRequest{
		AsOfDate:  asOf,
		PartnerID: partnerID,
		Policy:    &policy,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
