package handler

import (
	app "github.com/erp/subledger/internal/application/subledger"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// AgingHandler exposes aging report endpoints
type AgingHandler struct {
	BaseHandler
	agingService *app.AgingService
}

// NewAgingHandler creates a new AgingHandler
func NewAgingHandler(agingService *app.AgingService) *AgingHandler {
	return &AgingHandler{agingService: agingService}
}

// RegisterRoutes registers aging routes
func (h *AgingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	aging := rg.Group("/aging")
	{
		aging.GET("/report", h.GetReport)
		aging.POST("/report", h.GetCustomReport)
	}
}

// GetReport returns the aging breakdown of outstanding items.
// Query parameters: partner_type (required), partner_id, as_of.
func (h *AgingHandler) GetReport(c *gin.Context) {
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

	report, err := h.agingService.Report(c.Request.Context(), actor, app.AgingReportRequest{
		AsOfDate:    asOf,
		PartnerType: domain.PartnerType(c.Query("partner_type")),
		PartnerID:   partnerID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// AgingBucketRequest is one custom bucket boundary
type AgingBucketRequest struct {
	Label    string `json:"label" binding:"required"`
	FromDays int    `json:"from_days"`
	ToDays   *int   `json:"to_days"`
}

// CustomAgingReportRequest is a report request with a custom bucket table
type CustomAgingReportRequest struct {
	AsOfDate    string               `json:"as_of_date"`
	PartnerType string               `json:"partner_type" binding:"required"`
	PartnerID   string               `json:"partner_id"`
	Buckets     []AgingBucketRequest `json:"buckets"`
}

// GetCustomReport returns an aging breakdown over a caller-provided
// bucket table
func (h *AgingHandler) GetCustomReport(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req CustomAgingReportRequest
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

	buckets := make([]domain.Bucket, 0, len(req.Buckets))
	for _, b := range req.Buckets {
		buckets = append(buckets, domain.Bucket{
			Label:    b.Label,
			FromDays: b.FromDays,
			ToDays:   b.ToDays,
		})
	}

	report, err := h.agingService.Report(c.Request.Context(), actor, app.AgingReportRequest{
		AsOfDate:    asOf,
		PartnerType: domain.PartnerType(req.PartnerType),
		PartnerID:   partnerID,
		Buckets:     buckets,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
