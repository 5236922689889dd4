package subledger

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationService imports bank statements, suggests matches
// against book postings, and applies confirmed matches
type ReconciliationService struct {
	statementStore domain.StatementStore
	ruleStore      domain.MatchingRuleStore
	journalLines   domain.JournalLineRepository
	txManager      domain.TransactionManager
	matcher        *domain.StatementMatcher
	dateWindowDays int
}

// NewReconciliationService creates a new ReconciliationService.
// dateWindowDays widens the posting lookup window around the statement
// period and is the default match window when a request sets none.
func NewReconciliationService(
	statementStore domain.StatementStore,
	ruleStore domain.MatchingRuleStore,
	journalLines domain.JournalLineRepository,
	txManager domain.TransactionManager,
	dateWindowDays int,
) *ReconciliationService {
	if dateWindowDays <= 0 {
		dateWindowDays = domain.DefaultDateWindowDays
	}
	return &ReconciliationService{
		statementStore: statementStore,
		ruleStore:      ruleStore,
		journalLines:   journalLines,
		txManager:      txManager,
		matcher:        domain.NewStatementMatcher(),
		dateWindowDays: dateWindowDays,
	}
}

// ImportStatementRequest represents a statement to import
type ImportStatementRequest struct {
	BankAccountID uuid.UUID
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Lines         []domain.BankStatementLine
}

// ImportStatement records an imported bank statement for later matching
func (s *ReconciliationService) ImportStatement(ctx context.Context, actor Actor, req ImportStatementRequest) (*domain.BankStatement, error) {
	if err := requireCapability(actor, CapabilityReconMatch); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "import_statement")
	defer span.End()

	statement, err := domain.NewBankStatement(actor.TenantID, req.BankAccountID, req.PeriodStart, req.PeriodEnd, req.Lines)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.statementStore.Save(ctx, statement); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save statement: %w", err)
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrStatementID, statement.ID.String(),
		"line_count", len(statement.Lines),
	)
	return statement, nil
}

// GetStatement loads one statement document
func (s *ReconciliationService) GetStatement(ctx context.Context, actor Actor, statementID uuid.UUID) (*domain.BankStatement, error) {
	if err := requireCapability(actor, CapabilityReconRead); err != nil {
		return nil, err
	}
	return s.statementStore.FindByIDForTenant(ctx, actor.TenantID, statementID)
}

// ListStatements lists the tenant's statement documents, newest period first
func (s *ReconciliationService) ListStatements(ctx context.Context, actor Actor, filter shared.Filter) ([]domain.BankStatement, error) {
	if err := requireCapability(actor, CapabilityReconRead); err != nil {
		return nil, err
	}
	return s.statementStore.FindAllForTenant(ctx, actor.TenantID, filter)
}

// SuggestMatchesRequest tunes a suggestion run
type SuggestMatchesRequest struct {
	StatementID     uuid.UUID
	AmountTolerance *decimal.Decimal // nil uses the default; explicit zero means exact-amount matching only
	DateWindowDays  *int             // nil uses the configured default
}

// SuggestMatches computes rule and book match suggestions for every
// unmatched line of a statement. The run is read-only.
func (s *ReconciliationService) SuggestMatches(ctx context.Context, actor Actor, req SuggestMatchesRequest) (*domain.MatchSuggestions, error) {
	if err := requireCapability(actor, CapabilityReconRead); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "suggest_matches")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrStatementID, req.StatementID.String())

	statement, err := s.statementStore.FindByIDForTenant(ctx, actor.TenantID, req.StatementID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	rules, err := s.ruleStore.FindEnabledForTenant(ctx, actor.TenantID)
	if err != nil {
		err = fmt.Errorf("failed to load matching rules: %w", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	tolerance := domain.DefaultAmountTolerance
	if req.AmountTolerance != nil {
		tolerance = *req.AmountTolerance
	}
	window := s.dateWindowDays
	if req.DateWindowDays != nil {
		window = *req.DateWindowDays
	}
	from := statement.PeriodStart.AddDate(0, 0, -window)
	to := statement.PeriodEnd.AddDate(0, 0, window)
	postings, err := s.journalLines.FindByBankAccount(ctx, actor.TenantID, statement.BankAccountID, from, to)
	if err != nil {
		err = fmt.Errorf("failed to load bank postings: %w", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	suggestions := s.matcher.Suggest(statement, rules, postings, tolerance, window)
	telemetry.SetAttributes(span, "suggested_lines", len(suggestions.Lines))
	return suggestions, nil
}

// MatchInstruction confirms one statement line against a journal entry
type MatchInstruction struct {
	LineID         uuid.UUID
	JournalEntryID uuid.UUID
}

// EntryClearing reports how many open items one matched journal entry cleared
type EntryClearing struct {
	JournalEntryID uuid.UUID `json:"journal_entry_id"`
	MatchedLines   int       `json:"matched_lines"`
	ClearedItems   int64     `json:"cleared_items"`
}

// ApplyMatchesResult is the outcome of confirming matches
type ApplyMatchesResult struct {
	StatementID           uuid.UUID       `json:"statement_id"`
	Status                string          `json:"status"`
	MatchedLines          int             `json:"matched_lines"`
	UnmatchedLines        int             `json:"unmatched_lines"`
	MatchedAmount         decimal.Decimal `json:"matched_amount"`
	UnmatchedAmount       decimal.Decimal `json:"unmatched_amount"`
	Clearings             []EntryClearing `json:"clearings"`
	TotalClearedOpenItems int64           `json:"total_cleared_open_items"`
}

// ApplyMatches confirms line-to-entry matches on a statement: each
// matched line is stamped, open items tied to the matched journal
// entries are force-cleared, and the statement aggregates advance.
// Item clearing and the statement save commit as one transaction; a
// concurrent statement edit rolls the clearing back and surfaces as
// an optimistic conflict.
func (s *ReconciliationService) ApplyMatches(ctx context.Context, actor Actor, statementID uuid.UUID, instructions []MatchInstruction) (*ApplyMatchesResult, error) {
	if err := requireCapability(actor, CapabilityReconMatch); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "apply_matches")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrStatementID, statementID.String())

	if len(instructions) == 0 {
		err := shared.NewDomainError("VALIDATION_ERROR", "At least one match instruction is required")
		telemetry.RecordError(span, err)
		return nil, err
	}

	statement, err := s.statementStore.FindByIDForTenant(ctx, actor.TenantID, statementID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	matchedLineIDs := make(map[uuid.UUID]bool, len(instructions))
	linesByEntry := make(map[uuid.UUID]int)
	for _, instr := range instructions {
		if err := statement.MarkLineMatched(instr.LineID, instr.JournalEntryID); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		matchedLineIDs[instr.LineID] = true
		linesByEntry[instr.JournalEntryID]++
	}

	now := time.Now()
	clearings := make([]EntryClearing, 0, len(linesByEntry))
	var totalCleared int64
	err = s.txManager.InTransaction(ctx, func(repos domain.Repositories) error {
		for entryID, lineCount := range linesByEntry {
			cleared, err := repos.OpenItems.BulkClearByJournalEntry(ctx, actor.TenantID, entryID, statement.BankAccountID, now, actor.UserID)
			if err != nil {
				return fmt.Errorf("failed to clear items for entry %s: %w", entryID, err)
			}
			clearings = append(clearings, EntryClearing{
				JournalEntryID: entryID,
				MatchedLines:   lineCount,
				ClearedItems:   cleared,
			})
			totalCleared += cleared
		}

		statement.RecordMatches(matchedLineIDs, now, actor.UserID)
		return repos.Statements.Save(ctx, statement)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrMatchedLines, statement.MatchedTransactionCount,
		"cleared_open_items", totalCleared,
	)
	return &ApplyMatchesResult{
		StatementID:           statement.ID,
		Status:                string(statement.Status),
		MatchedLines:          statement.MatchedTransactionCount,
		UnmatchedLines:        statement.UnmatchedTransactionCount,
		MatchedAmount:         statement.MatchedAmount,
		UnmatchedAmount:       statement.UnmatchedAmount,
		Clearings:             clearings,
		TotalClearedOpenItems: totalCleared,
	}, nil
}

// CreateRuleRequest represents a matching rule to create
type CreateRuleRequest struct {
	Name     string
	Priority int
	Criteria domain.RuleCriteria
	Action   domain.RuleAction
}

// CreateRule records a new bank matching rule
func (s *ReconciliationService) CreateRule(ctx context.Context, actor Actor, req CreateRuleRequest) (*domain.BankMatchingRule, error) {
	if err := requireCapability(actor, CapabilityReconMatch); err != nil {
		return nil, err
	}

	rule, err := domain.NewBankMatchingRule(actor.TenantID, req.Name, req.Priority, req.Criteria, req.Action)
	if err != nil {
		return nil, err
	}
	if err := s.ruleStore.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save matching rule: %w", err)
	}
	return rule, nil
}

// UpdateRuleRequest carries the mutable fields of a matching rule.
// Nil fields stay unchanged.
type UpdateRuleRequest struct {
	Name     *string
	Priority *int
	Enabled  *bool
	Criteria *domain.RuleCriteria
	Action   *domain.RuleAction
}

// UpdateRule modifies an existing matching rule with a version check
func (s *ReconciliationService) UpdateRule(ctx context.Context, actor Actor, ruleID uuid.UUID, req UpdateRuleRequest) (*domain.BankMatchingRule, error) {
	if err := requireCapability(actor, CapabilityReconMatch); err != nil {
		return nil, err
	}

	rule, err := s.ruleStore.FindByIDForTenant(ctx, actor.TenantID, ruleID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, shared.NewDomainError("VALIDATION_ERROR", "Rule name cannot be empty")
		}
		rule.Name = *req.Name
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Criteria != nil {
		rule.Criteria = *req.Criteria
	}
	if req.Action != nil {
		if req.Action.Label == "" {
			return nil, shared.NewDomainError("VALIDATION_ERROR", "Rule action label cannot be empty")
		}
		rule.Action = *req.Action
	}
	rule.UpdatedAt = time.Now()
	rule.IncrementVersion()

	if err := s.ruleStore.Save(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// ListRules lists all matching rules of the tenant
func (s *ReconciliationService) ListRules(ctx context.Context, actor Actor) ([]domain.BankMatchingRule, error) {
	if err := requireCapability(actor, CapabilityReconRead); err != nil {
		return nil, err
	}
	return s.ruleStore.FindAllForTenant(ctx, actor.TenantID)
}

// DeleteRule removes a matching rule
func (s *ReconciliationService) DeleteRule(ctx context.Context, actor Actor, ruleID uuid.UUID) error {
	if err := requireCapability(actor, CapabilityReconMatch); err != nil {
		return err
	}
	return s.ruleStore.Delete(ctx, actor.TenantID, ruleID)
}
