package subledger

import (
	"context"
	"testing"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statementLine(amount float64, description string, entryDate time.Time) domain.BankStatementLine {
	return domain.BankStatementLine{
		ID:          uuid.New(),
		Amount:      decimal.NewFromFloat(amount),
		Currency:    "EUR",
		Description: description,
		EntryDate:   entryDate,
	}
}

func importedStatement(t *testing.T, tenantID, bankAccountID uuid.UUID, periodStart, periodEnd time.Time, lines ...domain.BankStatementLine) *domain.BankStatement {
	t.Helper()
	statement, err := domain.NewBankStatement(tenantID, bankAccountID, periodStart, periodEnd, lines)
	require.NoError(t, err)
	return statement
}

func TestReconciliationService_SuggestMatches(t *testing.T) {
	ctx := context.Background()
	periodStart := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	t.Run("suggests book postings inside the widened window", func(t *testing.T) {
		actor := testActor(CapabilityReconRead)
		bankAccountID := uuid.New()

		line := statementLine(1250.00, "SEPA CREDIT ACME GMBH", periodStart.AddDate(0, 0, 10))
		statement := importedStatement(t, actor.TenantID, bankAccountID, periodStart, periodEnd, line)

		inside := domain.JournalLine{
			ID: uuid.New(), TenantID: actor.TenantID, JournalEntryID: uuid.New(),
			EntryNumber: "JE-501", BankAccountID: bankAccountID,
			Amount: decimal.NewFromFloat(1250.00), Description: "Acme GmbH invoice settlement",
			EntryDate: periodStart.AddDate(0, 0, 10),
		}
		// two days past the period end but inside the three-day window
		edge := domain.JournalLine{
			ID: uuid.New(), TenantID: actor.TenantID, JournalEntryID: uuid.New(),
			EntryNumber: "JE-502", BankAccountID: bankAccountID,
			Amount: decimal.NewFromFloat(1250.00), Description: "late booking",
			EntryDate: periodEnd.AddDate(0, 0, 2),
		}
		journalLines := &fakeJournalLineRepo{lines: []domain.JournalLine{inside, edge}}

		svc := NewReconciliationService(newFakeStatementStore(statement), newFakeRuleStore(), journalLines,
			newFakeTxManager(newFakeOpenItemRepo(), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}), 3)

		suggestions, err := svc.SuggestMatches(ctx, actor, SuggestMatchesRequest{StatementID: statement.ID})
		require.NoError(t, err)
		require.Len(t, suggestions.Lines, 1)
		require.NotEmpty(t, suggestions.Lines[0].BookMatches)
		assert.Equal(t, "JE-501", suggestions.Lines[0].BookMatches[0].EntryNumber)
	})

	t.Run("defaults the amount tolerance when the request sets none", func(t *testing.T) {
		actor := testActor(CapabilityReconRead)
		bankAccountID := uuid.New()

		line := statementLine(200.00, "SEPA CREDIT NORR AB", periodStart.AddDate(0, 0, 4))
		statement := importedStatement(t, actor.TenantID, bankAccountID, periodStart, periodEnd, line)

		// half a cent off, inside the default 0.01 tolerance
		nearby := domain.JournalLine{
			ID: uuid.New(), TenantID: actor.TenantID, JournalEntryID: uuid.New(),
			EntryNumber: "JE-510", BankAccountID: bankAccountID,
			Amount: decimal.NewFromFloat(200.005), Description: "Norr AB settlement",
			EntryDate: periodStart.AddDate(0, 0, 4),
		}
		journalLines := &fakeJournalLineRepo{lines: []domain.JournalLine{nearby}}

		svc := NewReconciliationService(newFakeStatementStore(statement), newFakeRuleStore(), journalLines,
			newFakeTxManager(newFakeOpenItemRepo(), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}), 3)

		suggestions, err := svc.SuggestMatches(ctx, actor, SuggestMatchesRequest{StatementID: statement.ID})
		require.NoError(t, err)
		require.Len(t, suggestions.Lines, 1)
		require.NotEmpty(t, suggestions.Lines[0].BookMatches)
		assert.Equal(t, "JE-510", suggestions.Lines[0].BookMatches[0].EntryNumber)
		assert.True(t, suggestions.AmountTolerance.Equal(domain.DefaultAmountTolerance))

		// an explicit zero narrows the run to exact-amount matching
		exact := decimal.Zero
		suggestions, err = svc.SuggestMatches(ctx, actor, SuggestMatchesRequest{
			StatementID:     statement.ID,
			AmountTolerance: &exact,
		})
		require.NoError(t, err)
		require.Len(t, suggestions.Lines, 1)
		assert.Empty(t, suggestions.Lines[0].BookMatches)
	})

	t.Run("applies enabled rules in priority order", func(t *testing.T) {
		actor := testActor(CapabilityReconRead)
		bankAccountID := uuid.New()

		line := statementLine(-89.90, "MONTHLY WIRE FEES", periodStart.AddDate(0, 0, 5))
		statement := importedStatement(t, actor.TenantID, bankAccountID, periodStart, periodEnd, line)

		feeRule, err := domain.NewBankMatchingRule(actor.TenantID, "wire fees", 10,
			domain.RuleCriteria{DescriptionContainsAny: []string{"wire fees"}},
			domain.RuleAction{Label: "bank-fees"})
		require.NoError(t, err)
		disabled, err := domain.NewBankMatchingRule(actor.TenantID, "disabled", 1,
			domain.RuleCriteria{}, domain.RuleAction{Label: "never"})
		require.NoError(t, err)
		disabled.Enabled = false

		svc := NewReconciliationService(newFakeStatementStore(statement), newFakeRuleStore(feeRule, disabled),
			&fakeJournalLineRepo{},
			newFakeTxManager(newFakeOpenItemRepo(), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}), 3)

		suggestions, err := svc.SuggestMatches(ctx, actor, SuggestMatchesRequest{StatementID: statement.ID})
		require.NoError(t, err)
		require.Len(t, suggestions.Lines, 1)
		require.NotEmpty(t, suggestions.Lines[0].RuleMatches)
		assert.Equal(t, "bank-fees", suggestions.Lines[0].RuleMatches[0].Label)
	})

	t.Run("rejects an actor without the read capability", func(t *testing.T) {
		actor := testActor(CapabilityReconMatch)
		svc := NewReconciliationService(newFakeStatementStore(), newFakeRuleStore(), &fakeJournalLineRepo{},
			newFakeTxManager(newFakeOpenItemRepo(), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}), 3)

		_, err := svc.SuggestMatches(ctx, actor, SuggestMatchesRequest{StatementID: uuid.New()})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "FORBIDDEN", domainErr.Code)
	})
}

func TestReconciliationService_ApplyMatches(t *testing.T) {
	ctx := context.Background()
	periodStart := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	t.Run("clears open items of matched entries and advances the statement", func(t *testing.T) {
		actor := testActor(CapabilityReconMatch)
		bankAccountID := uuid.New()
		journalEntryID := uuid.New()

		lineA := statementLine(640.00, "transfer a", periodStart.AddDate(0, 0, 3))
		lineB := statementLine(-75.50, "transfer b", periodStart.AddDate(0, 0, 9))
		statement := importedStatement(t, actor.TenantID, bankAccountID, periodStart, periodEnd, lineA, lineB)

		item := receivable(t, actor.TenantID, uuid.New(), "INV-300", periodStart, 640)
		item.JournalEntryID = &journalEntryID
		item.BankAccountID = &bankAccountID

		items := newFakeOpenItemRepo(item)
		statements := newFakeStatementStore(statement)
		svc := NewReconciliationService(statements, newFakeRuleStore(), &fakeJournalLineRepo{},
			newFakeTxManager(items, newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}).withStatements(statements), 3)

		result, err := svc.ApplyMatches(ctx, actor, statement.ID, []MatchInstruction{
			{LineID: lineA.ID, JournalEntryID: journalEntryID},
		})
		require.NoError(t, err)

		assert.Equal(t, string(domain.StatementStatusPartiallyMatched), result.Status)
		assert.Equal(t, 1, result.MatchedLines)
		assert.Equal(t, 1, result.UnmatchedLines)
		assert.Equal(t, int64(1), result.TotalClearedOpenItems)
		require.Len(t, result.Clearings, 1)
		assert.Equal(t, journalEntryID, result.Clearings[0].JournalEntryID)

		cleared, err := items.FindByIDForTenant(ctx, actor.TenantID, item.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OpenItemStatusCleared, cleared.Status)
	})

	t.Run("earlier matches survive a second partial run", func(t *testing.T) {
		actor := testActor(CapabilityReconMatch)
		bankAccountID := uuid.New()

		lineA := statementLine(100, "first", periodStart.AddDate(0, 0, 1))
		lineB := statementLine(200, "second", periodStart.AddDate(0, 0, 2))
		statement := importedStatement(t, actor.TenantID, bankAccountID, periodStart, periodEnd, lineA, lineB)

		statements := newFakeStatementStore(statement)
		svc := NewReconciliationService(statements, newFakeRuleStore(), &fakeJournalLineRepo{},
			newFakeTxManager(newFakeOpenItemRepo(), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}).withStatements(statements), 3)

		_, err := svc.ApplyMatches(ctx, actor, statement.ID, []MatchInstruction{
			{LineID: lineA.ID, JournalEntryID: uuid.New()},
		})
		require.NoError(t, err)

		result, err := svc.ApplyMatches(ctx, actor, statement.ID, []MatchInstruction{
			{LineID: lineB.ID, JournalEntryID: uuid.New()},
		})
		require.NoError(t, err)

		assert.Equal(t, string(domain.StatementStatusReconciled), result.Status)
		assert.Equal(t, 2, result.MatchedLines)
		assert.Equal(t, 0, result.UnmatchedLines)
		assert.True(t, result.UnmatchedAmount.IsZero())
	})

	t.Run("statement save failure fails the whole run", func(t *testing.T) {
		actor := testActor(CapabilityReconMatch)
		bankAccountID := uuid.New()
		journalEntryID := uuid.New()

		line := statementLine(320.00, "transfer", periodStart.AddDate(0, 0, 2))
		statement := importedStatement(t, actor.TenantID, bankAccountID, periodStart, periodEnd, line)

		item := receivable(t, actor.TenantID, uuid.New(), "INV-310", periodStart, 320)
		item.JournalEntryID = &journalEntryID
		item.BankAccountID = &bankAccountID

		statements := newFakeStatementStore(statement)
		statements.saveErr = shared.NewDomainError("OPTIMISTIC_LOCK_ERROR", "The document has been modified by another transaction")
		svc := NewReconciliationService(statements, newFakeRuleStore(), &fakeJournalLineRepo{},
			newFakeTxManager(newFakeOpenItemRepo(item), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}).withStatements(statements), 3)

		_, err := svc.ApplyMatches(ctx, actor, statement.ID, []MatchInstruction{
			{LineID: line.ID, JournalEntryID: journalEntryID},
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "OPTIMISTIC_LOCK_ERROR", domainErr.Code)
	})

	t.Run("unknown line id fails validation before any clearing", func(t *testing.T) {
		actor := testActor(CapabilityReconMatch)
		bankAccountID := uuid.New()
		statement := importedStatement(t, actor.TenantID, bankAccountID, periodStart, periodEnd,
			statementLine(10, "only line", periodStart))

		svc := NewReconciliationService(newFakeStatementStore(statement), newFakeRuleStore(), &fakeJournalLineRepo{},
			newFakeTxManager(newFakeOpenItemRepo(), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}), 3)

		_, err := svc.ApplyMatches(ctx, actor, statement.ID, []MatchInstruction{
			{LineID: uuid.New(), JournalEntryID: uuid.New()},
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "VALIDATION_ERROR", domainErr.Code)
	})

	t.Run("empty instruction list is rejected", func(t *testing.T) {
		actor := testActor(CapabilityReconMatch)
		svc := NewReconciliationService(newFakeStatementStore(), newFakeRuleStore(), &fakeJournalLineRepo{},
			newFakeTxManager(newFakeOpenItemRepo(), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}), 3)

		_, err := svc.ApplyMatches(ctx, actor, uuid.New(), nil)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "VALIDATION_ERROR", domainErr.Code)
	})
}

func TestReconciliationService_Rules(t *testing.T) {
	ctx := context.Background()

	t.Run("creates, updates and deletes a rule", func(t *testing.T) {
		actor := testActor(CapabilityReconRead, CapabilityReconMatch)
		rules := newFakeRuleStore()
		svc := NewReconciliationService(newFakeStatementStore(), rules, &fakeJournalLineRepo{},
			newFakeTxManager(newFakeOpenItemRepo(), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}), 3)

		rule, err := svc.CreateRule(ctx, actor, CreateRuleRequest{
			Name:     "payroll",
			Priority: 5,
			Criteria: domain.RuleCriteria{DescriptionContainsAny: []string{"payroll"}},
			Action:   domain.RuleAction{Label: "payroll"},
		})
		require.NoError(t, err)
		assert.True(t, rule.Enabled)

		disabled := false
		updated, err := svc.UpdateRule(ctx, actor, rule.ID, UpdateRuleRequest{Enabled: &disabled})
		require.NoError(t, err)
		assert.False(t, updated.Enabled)

		listed, err := svc.ListRules(ctx, actor)
		require.NoError(t, err)
		require.Len(t, listed, 1)

		require.NoError(t, svc.DeleteRule(ctx, actor, rule.ID))
		_, err = svc.UpdateRule(ctx, actor, rule.ID, UpdateRuleRequest{})
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
