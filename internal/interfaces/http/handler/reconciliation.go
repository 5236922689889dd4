package handler

import (
	"strconv"

	app "github.com/erp/subledger/internal/application/subledger"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/interfaces/http/dto"
	"github.com/erp/subledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationHandler exposes bank statement and matching rule endpoints
type ReconciliationHandler struct {
	BaseHandler
	reconService *app.ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconService *app.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{reconService: reconService}
}

// RegisterRoutes registers reconciliation routes
func (h *ReconciliationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	statements := rg.Group("/bank-statements")
	{
		statements.GET("", h.ListStatements)
		statements.GET(":id", h.GetStatement)
		statements.POST("", h.ImportStatement)
		statements.GET(":id/suggestions", h.SuggestMatches)
		statements.POST(":id/matches", h.ApplyMatches)
	}

	rules := rg.Group("/matching-rules")
	{
		rules.GET("", h.ListRules)
		rules.POST("", h.CreateRule)
		rules.PUT(":id", h.UpdateRule)
		rules.DELETE(":id", h.DeleteRule)
	}
}

// StatementLineRequest is one line of an imported statement
type StatementLineRequest struct {
	Amount      float64 `json:"amount" binding:"required"`
	Currency    string  `json:"currency" binding:"required,len=3"`
	Description string  `json:"description" binding:"required"`
	Reference   string  `json:"reference"`
	EntryDate   string  `json:"entry_date" binding:"required"`
}

// ImportStatementRequest represents a statement file to import
type ImportStatementRequest struct {
	BankAccountID string                 `json:"bank_account_id" binding:"required,uuid"`
	PeriodStart   string                 `json:"period_start" binding:"required"`
	PeriodEnd     string                 `json:"period_end" binding:"required"`
	Lines         []StatementLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ImportStatement records an imported bank statement
func (h *ReconciliationHandler) ImportStatement(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req ImportStatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	bankAccountID, err := uuid.Parse(req.BankAccountID)
	if err != nil {
		h.BadRequest(c, "Invalid bank account ID format")
		return
	}
	periodStart, err := parseDate(req.PeriodStart)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	periodEnd, err := parseDate(req.PeriodEnd)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	lines := make([]domain.BankStatementLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		entryDate, err := parseDate(line.EntryDate)
		if err != nil {
			h.BadRequest(c, err.Error())
			return
		}
		lines = append(lines, domain.BankStatementLine{
			Amount:      decimal.NewFromFloat(line.Amount),
			Currency:    line.Currency,
			Description: line.Description,
			Reference:   line.Reference,
			EntryDate:   entryDate,
		})
	}

	statement, err := h.reconService.ImportStatement(c.Request.Context(), actor, app.ImportStatementRequest{
		BankAccountID: bankAccountID,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Lines:         lines,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, statement)
}

// ListStatements returns the tenant's imported statements
func (h *ReconciliationHandler) ListStatements(c *gin.Context) {
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

	statements, err := h.reconService.ListStatements(c.Request.Context(), actor, toSharedFilter(listReq))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, statements)
}

// GetStatement returns one statement with its lines
func (h *ReconciliationHandler) GetStatement(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid statement ID format")
		return
	}

	statement, err := h.reconService.GetStatement(c.Request.Context(), actor, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, statement)
}

// SuggestMatches computes match suggestions for a statement's unmatched lines
func (h *ReconciliationHandler) SuggestMatches(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid statement ID format")
		return
	}

	req := app.SuggestMatchesRequest{StatementID: id}
	if raw := c.Query("amount_tolerance"); raw != "" {
		tolerance, err := decimal.NewFromString(raw)
		if err != nil {
			h.BadRequest(c, "Invalid amount tolerance")
			return
		}
		req.AmountTolerance = &tolerance
	}
	if raw := c.Query("date_window_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			h.BadRequest(c, "Invalid date window")
			return
		}
		req.DateWindowDays = &days
	}

	suggestions, err := h.reconService.SuggestMatches(c.Request.Context(), actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, suggestions)
}

// MatchInstructionRequest confirms one line-to-entry match
type MatchInstructionRequest struct {
	LineID         string `json:"line_id" binding:"required,uuid"`
	JournalEntryID string `json:"journal_entry_id" binding:"required,uuid"`
}

// ApplyMatchesRequest confirms a set of statement line matches
type ApplyMatchesRequest struct {
	Matches []MatchInstructionRequest `json:"matches" binding:"required,min=1,dive"`
}

// ApplyMatches confirms matches and clears the covered open items
func (h *ReconciliationHandler) ApplyMatches(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid statement ID format")
		return
	}

	var req ApplyMatchesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	instructions := make([]app.MatchInstruction, 0, len(req.Matches))
	for _, m := range req.Matches {
		lineID, err := uuid.Parse(m.LineID)
		if err != nil {
			h.BadRequest(c, "Invalid line ID format")
			return
		}
		entryID, err := uuid.Parse(m.JournalEntryID)
		if err != nil {
			h.BadRequest(c, "Invalid journal entry ID format")
			return
		}
		instructions = append(instructions, app.MatchInstruction{
			LineID:         lineID,
			JournalEntryID: entryID,
		})
	}

	result, err := h.reconService.ApplyMatches(c.Request.Context(), actor, id, instructions)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RuleCriteriaRequest carries the line criteria of a matching rule
type RuleCriteriaRequest struct {
	Currency                string   `json:"currency" binding:"omitempty,len=3"`
	DescriptionContainsAny  []string `json:"description_contains_any"`
	CounterpartyContainsAny []string `json:"counterparty_contains_any"`
}

// RuleActionRequest carries the hints a matching rule attaches
type RuleActionRequest struct {
	Label              string `json:"label" binding:"required"`
	SuggestedAccountID string `json:"suggested_account_id" binding:"omitempty,uuid"`
	PostingTemplate    string `json:"posting_template"`
}

// CreateRuleRequest represents a new bank matching rule
type CreateRuleRequest struct {
	Name     string              `json:"name" binding:"required"`
	Priority int                 `json:"priority" binding:"min=0"`
	Criteria RuleCriteriaRequest `json:"criteria" binding:"required"`
	Action   RuleActionRequest   `json:"action" binding:"required"`
}

// CreateRule records a new matching rule
func (h *ReconciliationHandler) CreateRule(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	action, err := toRuleAction(req.Action)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	rule, err := h.reconService.CreateRule(c.Request.Context(), actor, app.CreateRuleRequest{
		Name:     req.Name,
		Priority: req.Priority,
		Criteria: toRuleCriteria(req.Criteria),
		Action:   action,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, rule)
}

// UpdateRuleRequest represents a partial rule update
type UpdateRuleRequest struct {
	Name     *string              `json:"name"`
	Priority *int                 `json:"priority" binding:"omitempty,min=0"`
	Enabled  *bool                `json:"enabled"`
	Criteria *RuleCriteriaRequest `json:"criteria"`
	Action   *RuleActionRequest   `json:"action"`
}

// UpdateRule modifies fields of an existing matching rule
func (h *ReconciliationHandler) UpdateRule(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rule ID format")
		return
	}

	var req UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	update := app.UpdateRuleRequest{
		Name:     req.Name,
		Priority: req.Priority,
		Enabled:  req.Enabled,
	}
	if req.Criteria != nil {
		criteria := toRuleCriteria(*req.Criteria)
		update.Criteria = &criteria
	}
	if req.Action != nil {
		action, err := toRuleAction(*req.Action)
		if err != nil {
			h.BadRequest(c, err.Error())
			return
		}
		update.Action = &action
	}

	rule, err := h.reconService.UpdateRule(c.Request.Context(), actor, id, update)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rule)
}

// ListRules returns the tenant's matching rules
func (h *ReconciliationHandler) ListRules(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	rules, err := h.reconService.ListRules(c.Request.Context(), actor)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rules)
}

// DeleteRule removes a matching rule
func (h *ReconciliationHandler) DeleteRule(c *gin.Context) {
	actor, err := getActor(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid rule ID format")
		return
	}

	if err := h.reconService.DeleteRule(c.Request.Context(), actor, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

func toRuleCriteria(req RuleCriteriaRequest) domain.RuleCriteria {
	return domain.RuleCriteria{
		Currency:                req.Currency,
		DescriptionContainsAny:  req.DescriptionContainsAny,
		CounterpartyContainsAny: req.CounterpartyContainsAny,
	}
}

func toRuleAction(req RuleActionRequest) (domain.RuleAction, error) {
	action := domain.RuleAction{
		Label:           req.Label,
		PostingTemplate: req.PostingTemplate,
	}
	accountID, err := parseUUIDPtr(req.SuggestedAccountID)
	if err != nil {
		return domain.RuleAction{}, err
	}
	action.SuggestedAccountID = accountID
	return action, nil
}
