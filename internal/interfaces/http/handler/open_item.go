package handler

import (
	app "github.com/erp/subledger/internal/application/subledger"
	"github.com/erp/subledger/internal/domain/shared"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/interfaces/http/dto"
	"github.com/erp/subledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenItemHandler exposes open item endpoints
type OpenItemHandler struct {
	BaseHandler
	openItemService *app.OpenItemService
}

// NewOpenItemHandler creates a new OpenItemHandler
func NewOpenItemHandler(openItemService *app.OpenItemService) *OpenItemHandler {
	return &OpenItemHandler{openItemService: openItemService}
}

// RegisterRoutes registers open item routes
func (h *OpenItemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	items := rg.Group("/open-items")
	{
		items.GET("", h.List)
		items.GET("/outstanding", h.GetOutstanding)
		items.GET(":id", h.Get)
		items.POST("", h.Ingest)
	}
}

// List returns a filtered page of open items.
// Query parameters: partner_type, partner_id, status, due_before,
// due_after, min_amount, plus standard pagination.
func (h *OpenItemHandler) List(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	listReq := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&listReq); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if listReq.Page == 0 {
		listReq.Page = 1
	}
	if listReq.PageSize == 0 {
		listReq.PageSize = 20
	}

	filter := domain.OpenItemFilter{
		Filter: shared.Filter{
			Page:     listReq.Page,
			PageSize: listReq.PageSize,
			OrderBy:  listReq.OrderBy,
			OrderDir: listReq.OrderDir,
			Search:   listReq.Search,
		},
	}
	if value := c.Query("partner_type"); value != "" {
		partnerType := domain.PartnerType(value)
		filter.PartnerType = &partnerType
	}
	if filter.PartnerID, err = parseUUIDPtr(c.Query("partner_id")); err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}
	if value := c.Query("status"); value != "" {
		status := domain.OpenItemStatus(value)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid status")
			return
		}
		filter.Status = &status
	}
	if filter.DueBefore, err = parseDatePtr(c.Query("due_before")); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if filter.DueAfter, err = parseDatePtr(c.Query("due_after")); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if value := c.Query("min_amount"); value != "" {
		minAmount, err := decimal.NewFromString(value)
		if err != nil {
			h.BadRequest(c, "Invalid minimum amount")
			return
		}
		filter.MinAmount = &minAmount
	}

	result, err := h.openItemService.List(c.Request.Context(), actor, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, result.Items, result.Total, listReq.Page, listReq.PageSize)
}

// Get returns one open item with its clearing trail
func (h *OpenItemHandler) Get(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid open item ID format")
		return
	}

	detail, err := h.openItemService.Get(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, detail)
}

// GetOutstanding returns a partner's total outstanding balance.
// Query parameters: partner_type (required), partner_id (required).
func (h *OpenItemHandler) GetOutstanding(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	partnerID, err := uuid.Parse(c.Query("partner_id"))
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}

	summary, err := h.openItemService.Outstanding(c.Request.Context(), actor,
		domain.PartnerType(c.Query("partner_type")), partnerID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// IngestOpenItemRequest represents a posted document to record as an
// open item
type IngestOpenItemRequest struct {
	PartnerType    string  `json:"partner_type" binding:"required"`
	PartnerID      string  `json:"partner_id" binding:"required,uuid"`
	DocumentNumber string  `json:"document_number" binding:"required"`
	DocumentDate   string  `json:"document_date"`
	DueDate        string  `json:"due_date"`
	ItemDate       string  `json:"item_date"`
	JournalEntryID string  `json:"journal_entry_id"`
	BankAccountID  string  `json:"bank_account_id"`
	DocumentAmount float64 `json:"document_amount"`
	LocalAmount    float64 `json:"local_amount" binding:"required"`
}

// Ingest records a newly posted document as an open item
func (h *OpenItemHandler) Ingest(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req IngestOpenItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	partnerID, err := uuid.Parse(req.PartnerID)
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}
	documentDate, err := parseDatePtr(req.DocumentDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	dueDate, err := parseDatePtr(req.DueDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	itemDate, err := parseDate(req.ItemDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	journalEntryID, err := parseUUIDPtr(req.JournalEntryID)
	if err != nil {
		h.BadRequest(c, "Invalid journal entry ID format")
		return
	}
	bankAccountID, err := parseUUIDPtr(req.BankAccountID)
	if err != nil {
		h.BadRequest(c, "Invalid bank account ID format")
		return
	}

	item, err := h.openItemService.Ingest(c.Request.Context(), actor, app.IngestRequest{
		PartnerType:    domain.PartnerType(req.PartnerType),
		PartnerID:      partnerID,
		DocumentNumber: req.DocumentNumber,
		DocumentDate:   documentDate,
		DueDate:        dueDate,
		ItemDate:       itemDate,
		JournalEntryID: journalEntryID,
		BankAccountID:  bankAccountID,
		DocumentAmount: toDecimal(req.DocumentAmount),
		LocalAmount:    toDecimal(req.LocalAmount),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, item)
}
