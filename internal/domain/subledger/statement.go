package subledger

import (
	"fmt"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankStatementStatus tracks reconciliation progress of a statement
type BankStatementStatus string

const (
	StatementStatusImported         BankStatementStatus = "IMPORTED"
	StatementStatusPartiallyMatched BankStatementStatus = "PARTIALLY_MATCHED"
	StatementStatusReconciled       BankStatementStatus = "RECONCILED"
)

// IsValid checks if the status is valid
func (s BankStatementStatus) IsValid() bool {
	switch s {
	case StatementStatusImported, StatementStatusPartiallyMatched, StatementStatusReconciled:
		return true
	}
	return false
}

// BankStatementLine is one transaction on an imported bank statement.
// MatchedJournalEntryID is stamped once the line has been matched to a
// book posting; it survives across partial reconciliation runs.
type BankStatementLine struct {
	ID                    uuid.UUID       `json:"id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Description           string          `json:"description"`
	Reference             string          `json:"reference,omitempty"`
	EntryDate             time.Time       `json:"entry_date"`
	MatchedJournalEntryID *uuid.UUID      `json:"matched_journal_entry_id,omitempty"`
}

// IsMatched reports whether the line has been matched to a posting
func (l *BankStatementLine) IsMatched() bool {
	return l.MatchedJournalEntryID != nil
}

// BankStatement is an imported statement header with its line items.
// It is stored as a tenant-scoped document with optimistic versioning.
type BankStatement struct {
	shared.TenantAggregateRoot
	BankAccountID             uuid.UUID           `json:"bank_account_id"`
	PeriodStart               time.Time           `json:"period_start"`
	PeriodEnd                 time.Time           `json:"period_end"`
	Lines                     []BankStatementLine `json:"lines"`
	MatchedTransactionCount   int                 `json:"matched_transaction_count"`
	UnmatchedTransactionCount int                 `json:"unmatched_transaction_count"`
	MatchedAmount             decimal.Decimal     `json:"matched_amount"`
	UnmatchedAmount           decimal.Decimal     `json:"unmatched_amount"`
	Status                    BankStatementStatus `json:"status"`
	ReconciledAt              *time.Time          `json:"reconciled_at"`
	ReconciledBy              *uuid.UUID          `json:"reconciled_by"`
}

// NewBankStatement creates a freshly imported statement
func NewBankStatement(
	tenantID uuid.UUID,
	bankAccountID uuid.UUID,
	periodStart time.Time,
	periodEnd time.Time,
	lines []BankStatementLine,
) (*BankStatement, error) {
	if bankAccountID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BANK_ACCOUNT", "Bank account ID cannot be empty")
	}
	if periodEnd.Before(periodStart) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Statement period end cannot precede period start")
	}
	if len(lines) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Statement must contain at least one line")
	}
	for i := range lines {
		if lines[i].ID == uuid.Nil {
			lines[i].ID = uuid.New()
		}
	}

	unmatchedAmount := decimal.Zero
	for _, l := range lines {
		unmatchedAmount = unmatchedAmount.Add(l.Amount.Abs())
	}

	return &BankStatement{
		TenantAggregateRoot:       shared.NewTenantAggregateRoot(tenantID),
		BankAccountID:             bankAccountID,
		PeriodStart:               periodStart,
		PeriodEnd:                 periodEnd,
		Lines:                     lines,
		UnmatchedTransactionCount: len(lines),
		MatchedAmount:             decimal.Zero,
		UnmatchedAmount:           unmatchedAmount,
		Status:                    StatementStatusImported,
	}, nil
}

// LineByID returns the line with the given id, or nil
func (s *BankStatement) LineByID(lineID uuid.UUID) *BankStatementLine {
	for i := range s.Lines {
		if s.Lines[i].ID == lineID {
			return &s.Lines[i]
		}
	}
	return nil
}

// MarkLineMatched stamps a line with the journal entry it was matched
// against. Re-matching an already matched line overwrites the stamp.
func (s *BankStatement) MarkLineMatched(lineID, journalEntryID uuid.UUID) error {
	line := s.LineByID(lineID)
	if line == nil {
		return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Statement has no line %s", lineID))
	}
	line.MatchedJournalEntryID = &journalEntryID
	return nil
}

// RecordMatches recomputes the statement aggregates from the set of
// matched line ids (unioned with lines already stamped as matched) and
// advances the status: RECONCILED once every line is matched,
// PARTIALLY_MATCHED otherwise.
func (s *BankStatement) RecordMatches(matchedLineIDs map[uuid.UUID]bool, reconciledAt time.Time, reconciledBy uuid.UUID) {
	matched := 0
	matchedAmount := decimal.Zero
	unmatchedAmount := decimal.Zero
	for _, line := range s.Lines {
		if matchedLineIDs[line.ID] || line.IsMatched() {
			matched++
			matchedAmount = matchedAmount.Add(line.Amount.Abs())
		} else {
			unmatchedAmount = unmatchedAmount.Add(line.Amount.Abs())
		}
	}

	s.MatchedTransactionCount = matched
	s.UnmatchedTransactionCount = len(s.Lines) - matched
	s.MatchedAmount = matchedAmount
	s.UnmatchedAmount = unmatchedAmount

	if s.UnmatchedTransactionCount == 0 {
		s.Status = StatementStatusReconciled
		s.ReconciledAt = &reconciledAt
		s.ReconciledBy = &reconciledBy
	} else {
		s.Status = StatementStatusPartiallyMatched
	}

	s.UpdatedAt = time.Now()
	s.IncrementVersion()
}

// RuleCriteria filters which statement lines a matching rule applies to.
// All configured criteria must hold; empty criteria always hold.
type RuleCriteria struct {
	Currency                string   `json:"currency,omitempty"`
	DescriptionContainsAny  []string `json:"description_contains_any,omitempty"`
	CounterpartyContainsAny []string `json:"counterparty_contains_any,omitempty"`
}

// RuleAction carries the hints a matching rule attaches to a line
type RuleAction struct {
	Label              string     `json:"label"`
	SuggestedAccountID *uuid.UUID `json:"suggested_account_id,omitempty"`
	PostingTemplate    string     `json:"posting_template,omitempty"`
}

// BankMatchingRule is a priority-ordered rule mapping line criteria to
// labelling/posting hints. Stored as a tenant-scoped document.
type BankMatchingRule struct {
	shared.TenantAggregateRoot
	Name     string       `json:"name"`
	Priority int          `json:"priority"`
	Enabled  bool         `json:"enabled"`
	Criteria RuleCriteria `json:"criteria"`
	Action   RuleAction   `json:"action"`
}

// NewBankMatchingRule creates a new matching rule
func NewBankMatchingRule(
	tenantID uuid.UUID,
	name string,
	priority int,
	criteria RuleCriteria,
	action RuleAction,
) (*BankMatchingRule, error) {
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Rule name cannot be empty")
	}
	if action.Label == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Rule action label cannot be empty")
	}
	return &BankMatchingRule{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Name:                name,
		Priority:            priority,
		Enabled:             true,
		Criteria:            criteria,
		Action:              action,
	}, nil
}

// Matches reports whether the rule applies to the given line. The
// currency filter is an exact match; description filters are
// case-insensitive substring checks; counterparty filters run
// best-effort against the description text, tolerating small spelling
// differences.
func (r *BankMatchingRule) Matches(line *BankStatementLine) bool {
	if r.Criteria.Currency != "" && r.Criteria.Currency != line.Currency {
		return false
	}
	if len(r.Criteria.DescriptionContainsAny) > 0 &&
		!containsAnyFold(line.Description, r.Criteria.DescriptionContainsAny) {
		return false
	}
	if len(r.Criteria.CounterpartyContainsAny) > 0 &&
		!fuzzyContainsAny(line.Description, r.Criteria.CounterpartyContainsAny) {
		return false
	}
	return true
}
