package subledger

import (
	"fmt"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClearingEpsilon is the magnitude below which an item counts as cleared.
var ClearingEpsilon = decimal.NewFromFloat(0.01)

// DustEpsilon is the magnitude below which a balance is ignored entirely.
var DustEpsilon = decimal.NewFromFloat(1e-6)

// PartnerType distinguishes receivable from payable items
type PartnerType string

const (
	PartnerTypeCustomer PartnerType = "CUSTOMER"
	PartnerTypeVendor   PartnerType = "VENDOR"
)

// IsValid checks if the partner type is valid
func (p PartnerType) IsValid() bool {
	return p == PartnerTypeCustomer || p == PartnerTypeVendor
}

// String returns the string representation of PartnerType
func (p PartnerType) String() string {
	return string(p)
}

// OpenItemStatus represents the clearing state of an open item
type OpenItemStatus string

const (
	OpenItemStatusOpen             OpenItemStatus = "OPEN"
	OpenItemStatusPartiallyCleared OpenItemStatus = "PARTIALLY_CLEARED"
	OpenItemStatusCleared          OpenItemStatus = "CLEARED"
	OpenItemStatusWrittenOff       OpenItemStatus = "WRITTEN_OFF"
)

// IsValid checks if the status is a valid OpenItemStatus
func (s OpenItemStatus) IsValid() bool {
	switch s {
	case OpenItemStatusOpen, OpenItemStatusPartiallyCleared,
		OpenItemStatusCleared, OpenItemStatusWrittenOff:
		return true
	}
	return false
}

// String returns the string representation of OpenItemStatus
func (s OpenItemStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the item can no longer be allocated against
func (s OpenItemStatus) IsTerminal() bool {
	return s == OpenItemStatusCleared || s == OpenItemStatusWrittenOff
}

// CanAllocate returns true if allocations can still be applied
func (s OpenItemStatus) CanAllocate() bool {
	return s == OpenItemStatusOpen || s == OpenItemStatusPartiallyCleared
}

// ClearedByType identifies what kind of event cleared an open item
type ClearedByType string

const (
	ClearedByReceipt  ClearedByType = "RECEIPT"
	ClearedByPayment  ClearedByType = "PAYMENT"
	ClearedByWriteOff ClearedByType = "WRITE_OFF"
	ClearedByMatch    ClearedByType = "MATCH"
)

// IsValid checks if the cleared-by type is valid
func (c ClearedByType) IsValid() bool {
	switch c {
	case ClearedByReceipt, ClearedByPayment, ClearedByWriteOff, ClearedByMatch:
		return true
	}
	return false
}

// OpenItemAllocation is an append-only record of one clearing event.
// It is never mutated after creation.
type OpenItemAllocation struct {
	shared.BaseEntity
	TenantID           uuid.UUID       `json:"tenant_id"`
	OpenItemID         uuid.UUID       `json:"open_item_id"`
	ClearedByType      ClearedByType   `json:"cleared_by_type"`
	ClearedByID        uuid.UUID       `json:"cleared_by_id"`
	ClearedByRef       string          `json:"cleared_by_ref"`
	LocalAmount        decimal.Decimal `json:"local_amount"`
	DocumentAmount     decimal.Decimal `json:"document_amount"`
	ExchangeDifference decimal.Decimal `json:"exchange_difference"`
	AllocatedAt        time.Time       `json:"allocated_at"`
	AllocatedBy        uuid.UUID       `json:"allocated_by"`
	Notes              string          `json:"notes,omitempty"`
}

// OpenItem represents one outstanding balance unit (invoice or bill).
// It is created externally when a source document posts and is mutated
// only through allocations. The remaining magnitude only ever decreases;
// CLEARED and WRITTEN_OFF are terminal.
type OpenItem struct {
	shared.TenantAggregateRoot
	PartnerType             PartnerType     `json:"partner_type"`
	PartnerID               uuid.UUID       `json:"partner_id"`
	DocumentNumber          string          `json:"document_number"`
	DocumentDate            *time.Time      `json:"document_date"`
	DueDate                 *time.Time      `json:"due_date"`
	ItemDate                time.Time       `json:"item_date"`
	JournalEntryID          *uuid.UUID      `json:"journal_entry_id"`
	BankAccountID           *uuid.UUID      `json:"bank_account_id"`
	DocumentOriginalAmount  decimal.Decimal `json:"document_original_amount"`
	LocalOriginalAmount     decimal.Decimal `json:"local_original_amount"`
	DocumentRemainingAmount decimal.Decimal `json:"document_remaining_amount"`
	LocalRemainingAmount    decimal.Decimal `json:"local_remaining_amount"`
	Status                  OpenItemStatus  `json:"status"`
	ClearingDate            *time.Time      `json:"clearing_date"`
	ClearedBy               *uuid.UUID      `json:"cleared_by"`
	ClearingDocumentID      *uuid.UUID      `json:"clearing_document_id"`
	ClearingReference       string          `json:"clearing_reference,omitempty"`
}

// NewOpenItem creates a new open item with its full amount outstanding
func NewOpenItem(
	tenantID uuid.UUID,
	partnerType PartnerType,
	partnerID uuid.UUID,
	documentNumber string,
	itemDate time.Time,
	documentAmount decimal.Decimal,
	localAmount decimal.Decimal,
) (*OpenItem, error) {
	if !partnerType.IsValid() {
		return nil, shared.NewDomainError("INVALID_PARTNER_TYPE", "Partner type is not valid")
	}
	if partnerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PARTNER", "Partner ID cannot be empty")
	}
	if documentNumber == "" {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_NUMBER", "Document number cannot be empty")
	}
	if localAmount.IsZero() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Local amount cannot be zero")
	}

	return &OpenItem{
		TenantAggregateRoot:     shared.NewTenantAggregateRoot(tenantID),
		PartnerType:             partnerType,
		PartnerID:               partnerID,
		DocumentNumber:          documentNumber,
		ItemDate:                itemDate,
		DocumentOriginalAmount:  documentAmount,
		LocalOriginalAmount:     localAmount,
		DocumentRemainingAmount: documentAmount,
		LocalRemainingAmount:    localAmount,
		Status:                  OpenItemStatusOpen,
	}, nil
}

// EffectiveDueDate returns the date aging is measured against:
// due date, falling back to document date, falling back to item date.
func (oi *OpenItem) EffectiveDueDate() time.Time {
	if oi.DueDate != nil {
		return *oi.DueDate
	}
	if oi.DocumentDate != nil {
		return *oi.DocumentDate
	}
	return oi.ItemDate
}

// DaysPastDue returns the number of whole days the item is past its
// effective due date at asOf. Negative means not yet due.
func (oi *OpenItem) DaysPastDue(asOf time.Time) int {
	ms := asOf.Sub(oi.EffectiveDueDate()).Milliseconds()
	days := ms / millisPerDay
	if ms < 0 && ms%millisPerDay != 0 {
		days-- // floor, not truncate, for partial days before due
	}
	return int(days)
}

const millisPerDay = 86_400_000

// IsCleared returns true once the remaining magnitude is below the
// clearing epsilon
func (oi *OpenItem) IsCleared() bool {
	return oi.LocalRemainingAmount.Abs().LessThan(ClearingEpsilon)
}

// Allocate applies one clearing event to the item: it records an
// append-only OpenItemAllocation, decrements the remaining amounts, and
// recomputes status. The allocation must reduce the remaining magnitude,
// never increase or flip it.
func (oi *OpenItem) Allocate(
	localAmount decimal.Decimal,
	documentAmount decimal.Decimal,
	clearedByType ClearedByType,
	clearedByID uuid.UUID,
	clearedByRef string,
	allocatedBy uuid.UUID,
	allocatedAt time.Time,
	notes string,
) (*OpenItemAllocation, error) {
	if !oi.Status.CanAllocate() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot allocate against open item in %s status", oi.Status))
	}
	if !clearedByType.IsValid() {
		return nil, shared.NewDomainError("INVALID_CLEARED_BY_TYPE", "Cleared-by type is not valid")
	}
	if localAmount.IsZero() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount cannot be zero")
	}
	if localAmount.Sign() != oi.LocalRemainingAmount.Sign() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must carry the same sign as the remaining amount")
	}
	if localAmount.Abs().GreaterThan(oi.LocalRemainingAmount.Abs()) {
		return nil, shared.NewDomainError("EXCEEDS_REMAINING", fmt.Sprintf("Allocation amount %s exceeds remaining amount %s", localAmount, oi.LocalRemainingAmount))
	}

	alloc := &OpenItemAllocation{
		BaseEntity:     shared.NewBaseEntity(),
		TenantID:       oi.TenantID,
		OpenItemID:     oi.ID,
		ClearedByType:  clearedByType,
		ClearedByID:    clearedByID,
		ClearedByRef:   clearedByRef,
		LocalAmount:    localAmount,
		DocumentAmount: documentAmount,
		AllocatedAt:    allocatedAt,
		AllocatedBy:    allocatedBy,
		Notes:          notes,
	}

	oi.LocalRemainingAmount = oi.LocalRemainingAmount.Sub(localAmount)
	oi.DocumentRemainingAmount = oi.DocumentRemainingAmount.Sub(documentAmount)

	if oi.IsCleared() {
		oi.Status = OpenItemStatusCleared
		oi.stampClearing(clearedByID, clearedByRef, allocatedBy, allocatedAt)
	} else {
		oi.Status = OpenItemStatusPartiallyCleared
	}

	oi.UpdatedAt = time.Now()
	oi.IncrementVersion()

	return alloc, nil
}

// WriteOff force-clears the full remainder of the item. Terminal.
func (oi *OpenItem) WriteOff(
	writeOffDate time.Time,
	writtenOffBy uuid.UUID,
	documentNumber string,
	notes string,
) (*OpenItemAllocation, error) {
	if oi.Status.IsTerminal() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot write off open item in %s status", oi.Status))
	}
	if oi.LocalRemainingAmount.Abs().LessThan(ClearingEpsilon) {
		return nil, shared.NewDomainError("BELOW_THRESHOLD", "Remaining amount is below the write-off threshold")
	}

	alloc := &OpenItemAllocation{
		BaseEntity:     shared.NewBaseEntity(),
		TenantID:       oi.TenantID,
		OpenItemID:     oi.ID,
		ClearedByType:  ClearedByWriteOff,
		ClearedByID:    uuid.Nil,
		ClearedByRef:   documentNumber,
		LocalAmount:    oi.LocalRemainingAmount,
		DocumentAmount: oi.DocumentRemainingAmount,
		AllocatedAt:    writeOffDate,
		AllocatedBy:    writtenOffBy,
		Notes:          notes,
	}

	oi.LocalRemainingAmount = decimal.Zero
	oi.DocumentRemainingAmount = decimal.Zero
	oi.Status = OpenItemStatusWrittenOff
	oi.stampClearing(uuid.Nil, documentNumber, writtenOffBy, writeOffDate)

	oi.UpdatedAt = time.Now()
	oi.IncrementVersion()

	return alloc, nil
}

func (oi *OpenItem) stampClearing(clearingDocID uuid.UUID, ref string, by uuid.UUID, at time.Time) {
	oi.ClearingDate = &at
	oi.ClearedBy = &by
	oi.ClearingReference = ref
	if clearingDocID != uuid.Nil {
		oi.ClearingDocumentID = &clearingDocID
	}
}

// OutstandingAmount returns the signed local remaining amount for the
// requested partner perspective: receivables as-is, payables negated so
// a vendor credit balance reports as a positive outstanding value.
func (oi *OpenItem) OutstandingAmount() decimal.Decimal {
	if oi.PartnerType == PartnerTypeVendor {
		return oi.LocalRemainingAmount.Neg()
	}
	return oi.LocalRemainingAmount
}
