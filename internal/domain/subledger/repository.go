package subledger

import (
	"context"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenItemFilter defines filtering options for open item queries
type OpenItemFilter struct {
	shared.Filter
	PartnerType *PartnerType     // Filter by partner type (AR vs AP)
	PartnerID   *uuid.UUID       // Filter by partner
	Status      *OpenItemStatus  // Filter by clearing status
	DueBefore   *time.Time       // Filter by effective due date upper bound
	DueAfter    *time.Time       // Filter by effective due date lower bound
	MinAmount   *decimal.Decimal // Filter by minimum remaining magnitude
}

// OpenItemRepository defines the interface for open item persistence
type OpenItemRepository interface {
	// FindByIDForTenant finds an open item by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*OpenItem, error)

	// FindByIDsForTenant finds the subset of the given ids that exist for the tenant
	FindByIDsForTenant(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]OpenItem, error)

	// FindAllForTenant finds open items for a tenant with filtering
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter OpenItemFilter) ([]OpenItem, error)

	// FindAllocatable finds open and partially cleared items of a partner
	FindAllocatable(ctx context.Context, tenantID uuid.UUID, partnerType PartnerType, partnerID uuid.UUID) ([]OpenItem, error)

	// FindOutstanding finds all open and partially cleared items of a partner type
	FindOutstanding(ctx context.Context, tenantID uuid.UUID, partnerType PartnerType, partnerID *uuid.UUID) ([]OpenItem, error)

	// Save creates or updates an open item
	Save(ctx context.Context, item *OpenItem) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, item *OpenItem) error

	// BulkClearByJournalEntry force-clears all open items tied to a journal
	// entry on a bank account, stamping the clearing fields. Returns the
	// number of rows affected; callers must not assume exactly one.
	BulkClearByJournalEntry(ctx context.Context, tenantID, journalEntryID, bankAccountID uuid.UUID, clearingDate time.Time, clearedBy uuid.UUID) (int64, error)

	// CountForTenant counts open items for a tenant with optional filters
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter OpenItemFilter) (int64, error)

	// SumOutstandingByPartner calculates the total outstanding amount for a partner
	SumOutstandingByPartner(ctx context.Context, tenantID uuid.UUID, partnerType PartnerType, partnerID uuid.UUID) (decimal.Decimal, error)
}

// ReceiptRepository defines the interface for receipt persistence
type ReceiptRepository interface {
	// FindByIDForTenant finds a receipt by ID for a specific tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Receipt, error)

	// FindByNumber finds a receipt by its number for a tenant
	FindByNumber(ctx context.Context, tenantID uuid.UUID, receiptNumber string) (*Receipt, error)

	// FindAllForTenant finds receipts for a tenant
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]Receipt, error)

	// CountForTenant counts the tenant's receipts matching the filter
	CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error)

	// Save creates or updates a receipt
	Save(ctx context.Context, receipt *Receipt) error
}

// AllocationRepository defines the interface for allocation trail
// persistence. Both record kinds are append-only.
type AllocationRepository interface {
	// SaveOpenItemAllocation appends one clearing event record
	SaveOpenItemAllocation(ctx context.Context, alloc *OpenItemAllocation) error

	// FindByOpenItem returns the clearing trail of one open item
	FindByOpenItem(ctx context.Context, tenantID, openItemID uuid.UUID) ([]OpenItemAllocation, error)

	// SaveReceiptAllocation appends one receipt-to-item trace record
	SaveReceiptAllocation(ctx context.Context, alloc *ReceiptAllocation) error

	// FindByReceipt returns all allocations made by one receipt
	FindByReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) ([]ReceiptAllocation, error)

	// SumAllocatedByReceipt sums the amounts already allocated by a receipt
	SumAllocatedByReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) (decimal.Decimal, error)
}

// JournalLineRepository reads book-side posting lines. The posting
// engine that writes them is an external collaborator.
type JournalLineRepository interface {
	// FindByBankAccount finds posting lines on a bank account within a date range
	FindByBankAccount(ctx context.Context, tenantID, bankAccountID uuid.UUID, from, to time.Time) ([]JournalLine, error)
}

// StatementStore persists bank statements as tenant-scoped documents
// with optimistic versioning: Save fails with a conflict when the
// stored version does not match the document's previous version.
type StatementStore interface {
	// FindByIDForTenant loads a statement document
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*BankStatement, error)

	// FindAllForTenant lists statement documents for a tenant
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]BankStatement, error)

	// Save writes a statement document, checking the version
	Save(ctx context.Context, statement *BankStatement) error
}

// MatchingRuleStore persists bank matching rules as tenant-scoped
// documents with optimistic versioning
type MatchingRuleStore interface {
	// FindByIDForTenant loads a rule document
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*BankMatchingRule, error)

	// FindEnabledForTenant lists enabled rules ordered by ascending priority
	FindEnabledForTenant(ctx context.Context, tenantID uuid.UUID) ([]BankMatchingRule, error)

	// FindAllForTenant lists all rule documents for a tenant
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID) ([]BankMatchingRule, error)

	// Save writes a rule document, checking the version
	Save(ctx context.Context, rule *BankMatchingRule) error

	// Delete removes a rule document
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

// Document number scopes
const (
	NumberScopeWriteOff = "WRITEOFF"
	NumberScopeReceipt  = "RECEIPT"
)

// NumberReserver issues sequential document numbers per tenant and
// scope. Implementations must be safe to call inside the transaction
// the surrounding repositories run in.
type NumberReserver interface {
	// ReserveNumber returns the next number for the scope, formatted
	ReserveNumber(ctx context.Context, tenantID uuid.UUID, scopeKey string, at time.Time) (string, error)
}

// Repositories bundles the write-side repositories bound to one
// persistence scope: the root connection, or a live transaction when
// obtained through a TransactionManager.
type Repositories struct {
	OpenItems   OpenItemRepository
	Receipts    ReceiptRepository
	Allocations AllocationRepository
	Statements  StatementStore
	Numbers     NumberReserver
}

// TransactionManager runs a function atomically: every repository
// write made through the provided bundle commits or rolls back as one.
type TransactionManager interface {
	InTransaction(ctx context.Context, fn func(repos Repositories) error) error
}
