package handler

import (
	app "github.com/erp/subledger/internal/application/subledger"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/interfaces/http/dto"
	"github.com/erp/subledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CashApplicationHandler exposes receipt and cash application endpoints
type CashApplicationHandler struct {
	BaseHandler
	cashService *app.CashApplicationService
}

// NewCashApplicationHandler creates a new CashApplicationHandler
func NewCashApplicationHandler(cashService *app.CashApplicationService) *CashApplicationHandler {
	return &CashApplicationHandler{cashService: cashService}
}

// RegisterRoutes registers receipt routes
func (h *CashApplicationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	receipts := rg.Group("/receipts")
	{
		receipts.GET("", h.List)
		receipts.GET(":id", h.Get)
		receipts.POST("", h.Register)
		receipts.POST(":id/apply", h.Apply)
	}
}

// List returns the tenant's receipts
func (h *CashApplicationHandler) List(c *gin.Context) {
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
	page, err := h.cashService.ListReceipts(c.Request.Context(), actor, toSharedFilter(listReq))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get returns one receipt
func (h *CashApplicationHandler) Get(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid receipt ID format")
		return
	}

	receipt, err := h.cashService.GetReceipt(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, receipt)
}

// RegisterReceiptRequest represents a payment instrument to register
type RegisterReceiptRequest struct {
	ReceiptNumber string  `json:"receipt_number" binding:"required"`
	Direction     string  `json:"direction" binding:"required,oneof=INBOUND OUTBOUND"`
	PartnerID     string  `json:"partner_id" binding:"required,uuid"`
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	Currency      string  `json:"currency" binding:"required,len=3"`
	ReceivedAt    string  `json:"received_at"`
	Reference     string  `json:"reference"`
	Notes         string  `json:"notes"`
}

// Register records a receipt or vendor payment
func (h *CashApplicationHandler) Register(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req RegisterReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	partnerID, err := uuid.Parse(req.PartnerID)
	if err != nil {
		h.BadRequest(c, "Invalid partner ID format")
		return
	}
	receivedAt, err := parseDate(req.ReceivedAt)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	receipt, err := h.cashService.RegisterReceipt(c.Request.Context(), actor, app.RegisterReceiptRequest{
		ReceiptNumber: req.ReceiptNumber,
		Direction:     domain.ReceiptDirection(req.Direction),
		PartnerID:     partnerID,
		Amount:        toDecimal(req.Amount),
		Currency:      req.Currency,
		ReceivedAt:    receivedAt,
		Reference:     req.Reference,
		Notes:         req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, receipt)
}

// ApplyReceiptRequest tunes a cash application run
type ApplyReceiptRequest struct {
	AsOfDate         string `json:"as_of_date"`
	MaxOpenItems     int    `json:"max_open_items" binding:"omitempty,min=1"`
	OrderBy          string `json:"order_by" binding:"omitempty,oneof=DUE_DATE DOCUMENT_DATE OLDEST_ENTRY"`
	IncludeNotYetDue bool   `json:"include_not_yet_due"`
	AllowOverapply   bool   `json:"allow_overapply"`
	Notes            string `json:"notes"`
}

// Apply distributes a receipt's unapplied amount across open items
func (h *CashApplicationHandler) Apply(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	receiptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid receipt ID format")
		return
	}

	req := ApplyReceiptRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}
	asOf, err := parseDate(req.AsOfDate)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.cashService.Apply(c.Request.Context(), actor, app.ApplyRequest{
		ReceiptID:        receiptID,
		AsOfDate:         asOf,
		MaxOpenItems:     req.MaxOpenItems,
		OrderBy:          domain.CashApplicationOrder(req.OrderBy),
		IncludeNotYetDue: req.IncludeNotYetDue,
		AllowOverapply:   req.AllowOverapply,
		Notes:            req.Notes,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
