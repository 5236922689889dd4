package handler

import (
	app "github.com/erp/subledger/internal/application/subledger"
	"github.com/erp/subledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WriteOffHandler exposes the write-off batch endpoint
type WriteOffHandler struct {
	BaseHandler
	writeOffService *app.WriteOffService
}

// NewWriteOffHandler creates a new WriteOffHandler
func NewWriteOffHandler(writeOffService *app.WriteOffService) *WriteOffHandler {
	return &WriteOffHandler{writeOffService: writeOffService}
}

// RegisterRoutes registers write-off routes
func (h *WriteOffHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/write-offs", h.Process)
}

// WriteOffBatchRequest represents a batch of open items to write off
type WriteOffBatchRequest struct {
	OpenItemIDs    []string `json:"open_item_ids" binding:"required,min=1,dive,uuid"`
	WriteOffDate   string   `json:"write_off_date"`
	Reason         string   `json:"reason" binding:"required"`
	DocumentNumber string   `json:"document_number"`
	AccountID      string   `json:"account_id" binding:"omitempty,uuid"`
	DryRun         bool     `json:"dry_run"`
}

// Process writes off a batch of open items, or previews it when dry_run is set
func (h *WriteOffHandler) Process(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req WriteOffBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	itemIDs := make([]uuid.UUID, 0, len(req.OpenItemIDs))
	for _, raw := range req.OpenItemIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid open item ID format")
			return
		}
		itemIDs = append(itemIDs, id)
	}
	writeOffDate, err := parseDate(req.WriteOffDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	accountID, err := parseUUIDPtr(req.AccountID)
	if err != nil {
		h.BadRequest(c, "Invalid account ID format")
		return
	}

	result, err := h.writeOffService.Process(c.Request.Context(), actor, app.WriteOffRequest{
		OpenItemIDs:    itemIDs,
		WriteOffDate:   writeOffDate,
		Reason:         req.Reason,
		DocumentNumber: req.DocumentNumber,
		AccountID:      accountID,
		DryRun:         req.DryRun,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
