package models

import (
	"time"

	"github.com/erp/subledger/internal/domain/subledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenItemModel is the GORM model for open items
type OpenItemModel struct {
	TenantAggregateModel
	PartnerType             string          `gorm:"type:varchar(20);not null;index:idx_open_items_partner,priority:1"`
	PartnerID               uuid.UUID       `gorm:"type:uuid;not null;index:idx_open_items_partner,priority:2"`
	DocumentNumber          string          `gorm:"type:varchar(100);not null;index"`
	DocumentDate            *time.Time      `gorm:""`
	DueDate                 *time.Time      `gorm:"index"`
	ItemDate                time.Time       `gorm:"not null"`
	JournalEntryID          *uuid.UUID      `gorm:"type:uuid;index"`
	BankAccountID           *uuid.UUID      `gorm:"type:uuid;index"`
	DocumentOriginalAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	LocalOriginalAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DocumentRemainingAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	LocalRemainingAmount    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status                  string          `gorm:"type:varchar(30);not null;index"`
	ClearingDate            *time.Time      `gorm:""`
	ClearedBy               *uuid.UUID      `gorm:"type:uuid"`
	ClearingDocumentID      *uuid.UUID      `gorm:"type:uuid"`
	ClearingReference       string          `gorm:"type:varchar(200)"`
}

// TableName returns the table name for OpenItemModel
func (OpenItemModel) TableName() string {
	return "open_items"
}

// ToDomain converts the model to a domain open item
func (m *OpenItemModel) ToDomain() *subledger.OpenItem {
	item := &subledger.OpenItem{
		PartnerType:             subledger.PartnerType(m.PartnerType),
		PartnerID:               m.PartnerID,
		DocumentNumber:          m.DocumentNumber,
		DocumentDate:            m.DocumentDate,
		DueDate:                 m.DueDate,
		ItemDate:                m.ItemDate,
		JournalEntryID:          m.JournalEntryID,
		BankAccountID:           m.BankAccountID,
		DocumentOriginalAmount:  m.DocumentOriginalAmount,
		LocalOriginalAmount:     m.LocalOriginalAmount,
		DocumentRemainingAmount: m.DocumentRemainingAmount,
		LocalRemainingAmount:    m.LocalRemainingAmount,
		Status:                  subledger.OpenItemStatus(m.Status),
		ClearingDate:            m.ClearingDate,
		ClearedBy:               m.ClearedBy,
		ClearingDocumentID:      m.ClearingDocumentID,
		ClearingReference:       m.ClearingReference,
	}
	m.PopulateTenantAggregateRoot(&item.TenantAggregateRoot)
	return item
}

// FromDomain populates the model from a domain open item
func (m *OpenItemModel) FromDomain(item *subledger.OpenItem) {
	m.FromDomainTenantAggregateRoot(item.TenantAggregateRoot)
	m.PartnerType = item.PartnerType.String()
	m.PartnerID = item.PartnerID
	m.DocumentNumber = item.DocumentNumber
	m.DocumentDate = item.DocumentDate
	m.DueDate = item.DueDate
	m.ItemDate = item.ItemDate
	m.JournalEntryID = item.JournalEntryID
	m.BankAccountID = item.BankAccountID
	m.DocumentOriginalAmount = item.DocumentOriginalAmount
	m.LocalOriginalAmount = item.LocalOriginalAmount
	m.DocumentRemainingAmount = item.DocumentRemainingAmount
	m.LocalRemainingAmount = item.LocalRemainingAmount
	m.Status = item.Status.String()
	m.ClearingDate = item.ClearingDate
	m.ClearedBy = item.ClearedBy
	m.ClearingDocumentID = item.ClearingDocumentID
	m.ClearingReference = item.ClearingReference
}

// OpenItemAllocationModel is the GORM model for open item clearing events
type OpenItemAllocationModel struct {
	BaseModel
	TenantID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	OpenItemID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	ClearedByType      string          `gorm:"type:varchar(20);not null"`
	ClearedByID        uuid.UUID       `gorm:"type:uuid"`
	ClearedByRef       string          `gorm:"type:varchar(200)"`
	LocalAmount        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DocumentAmount     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ExchangeDifference decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	AllocatedAt        time.Time       `gorm:"not null"`
	AllocatedBy        uuid.UUID       `gorm:"type:uuid;not null"`
	Notes              string          `gorm:"type:text"`
}

// TableName returns the table name for OpenItemAllocationModel
func (OpenItemAllocationModel) TableName() string {
	return "open_item_allocations"
}

// ToDomain converts the model to a domain allocation
func (m *OpenItemAllocationModel) ToDomain() *subledger.OpenItemAllocation {
	alloc := &subledger.OpenItemAllocation{
		TenantID:           m.TenantID,
		OpenItemID:         m.OpenItemID,
		ClearedByType:      subledger.ClearedByType(m.ClearedByType),
		ClearedByID:        m.ClearedByID,
		ClearedByRef:       m.ClearedByRef,
		LocalAmount:        m.LocalAmount,
		DocumentAmount:     m.DocumentAmount,
		ExchangeDifference: m.ExchangeDifference,
		AllocatedAt:        m.AllocatedAt,
		AllocatedBy:        m.AllocatedBy,
		Notes:              m.Notes,
	}
	m.PopulateBaseEntity(&alloc.BaseEntity)
	return alloc
}

// FromDomain populates the model from a domain allocation
func (m *OpenItemAllocationModel) FromDomain(alloc *subledger.OpenItemAllocation) {
	m.FromDomainBaseEntity(alloc.BaseEntity)
	m.TenantID = alloc.TenantID
	m.OpenItemID = alloc.OpenItemID
	m.ClearedByType = string(alloc.ClearedByType)
	m.ClearedByID = alloc.ClearedByID
	m.ClearedByRef = alloc.ClearedByRef
	m.LocalAmount = alloc.LocalAmount
	m.DocumentAmount = alloc.DocumentAmount
	m.ExchangeDifference = alloc.ExchangeDifference
	m.AllocatedAt = alloc.AllocatedAt
	m.AllocatedBy = alloc.AllocatedBy
	m.Notes = alloc.Notes
}

// ReceiptModel is the GORM model for receipts and vendor payments
type ReceiptModel struct {
	TenantAggregateModel
	ReceiptNumber string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_receipts_tenant_number,priority:2"`
	Direction     string          `gorm:"type:varchar(20);not null"`
	PartnerID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency      string          `gorm:"type:varchar(3);not null"`
	ReceivedAt    time.Time       `gorm:"not null"`
	Reference     string          `gorm:"type:varchar(200)"`
	Notes         string          `gorm:"type:text"`
}

// TableName returns the table name for ReceiptModel
func (ReceiptModel) TableName() string {
	return "receipts"
}

// ToDomain converts the model to a domain receipt
func (m *ReceiptModel) ToDomain() *subledger.Receipt {
	r := &subledger.Receipt{
		ReceiptNumber: m.ReceiptNumber,
		Direction:     subledger.ReceiptDirection(m.Direction),
		PartnerID:     m.PartnerID,
		Amount:        m.Amount,
		Currency:      m.Currency,
		ReceivedAt:    m.ReceivedAt,
		Reference:     m.Reference,
		Notes:         m.Notes,
	}
	m.PopulateTenantAggregateRoot(&r.TenantAggregateRoot)
	return r
}

// FromDomain populates the model from a domain receipt
func (m *ReceiptModel) FromDomain(r *subledger.Receipt) {
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	m.ReceiptNumber = r.ReceiptNumber
	m.Direction = string(r.Direction)
	m.PartnerID = r.PartnerID
	m.Amount = r.Amount
	m.Currency = r.Currency
	m.ReceivedAt = r.ReceivedAt
	m.Reference = r.Reference
	m.Notes = r.Notes
}

// ReceiptAllocationModel is the GORM model for receipt-to-item traces
type ReceiptAllocationModel struct {
	BaseModel
	TenantID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	ReceiptID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	OpenItemID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	AllocatedAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	AllocatedAt     time.Time       `gorm:"not null"`
	AllocatedBy     uuid.UUID       `gorm:"type:uuid;not null"`
	Notes           string          `gorm:"type:text"`
}

// TableName returns the table name for ReceiptAllocationModel
func (ReceiptAllocationModel) TableName() string {
	return "receipt_allocations"
}

// ToDomain converts the model to a domain receipt allocation
func (m *ReceiptAllocationModel) ToDomain() *subledger.ReceiptAllocation {
	alloc := &subledger.ReceiptAllocation{
		TenantID:        m.TenantID,
		ReceiptID:       m.ReceiptID,
		OpenItemID:      m.OpenItemID,
		AllocatedAmount: m.AllocatedAmount,
		AllocatedAt:     m.AllocatedAt,
		AllocatedBy:     m.AllocatedBy,
		Notes:           m.Notes,
	}
	m.PopulateBaseEntity(&alloc.BaseEntity)
	return alloc
}

// FromDomain populates the model from a domain receipt allocation
func (m *ReceiptAllocationModel) FromDomain(alloc *subledger.ReceiptAllocation) {
	m.FromDomainBaseEntity(alloc.BaseEntity)
	m.TenantID = alloc.TenantID
	m.ReceiptID = alloc.ReceiptID
	m.OpenItemID = alloc.OpenItemID
	m.AllocatedAmount = alloc.AllocatedAmount
	m.AllocatedAt = alloc.AllocatedAt
	m.AllocatedBy = alloc.AllocatedBy
	m.Notes = alloc.Notes
}

// JournalLineModel is the read model for book-side posting lines on
// bank accounts. The posting engine owns the table; this module only
// queries it for reconciliation candidates.
type JournalLineModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	JournalEntryID uuid.UUID       `gorm:"type:uuid;not null;index"`
	EntryNumber    string          `gorm:"type:varchar(100);not null"`
	BankAccountID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Description    string          `gorm:"type:text"`
	EntryDate      time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for JournalLineModel
func (JournalLineModel) TableName() string {
	return "journal_lines"
}

// ToDomain converts the model to a domain journal line
func (m *JournalLineModel) ToDomain() subledger.JournalLine {
	return subledger.JournalLine{
		ID:             m.ID,
		TenantID:       m.TenantID,
		JournalEntryID: m.JournalEntryID,
		EntryNumber:    m.EntryNumber,
		BankAccountID:  m.BankAccountID,
		Amount:         m.Amount,
		Description:    m.Description,
		EntryDate:      m.EntryDate,
	}
}

// FromDomain populates the model from a domain journal line
func (m *JournalLineModel) FromDomain(l subledger.JournalLine) {
	m.ID = l.ID
	m.TenantID = l.TenantID
	m.JournalEntryID = l.JournalEntryID
	m.EntryNumber = l.EntryNumber
	m.BankAccountID = l.BankAccountID
	m.Amount = l.Amount
	m.Description = l.Description
	m.EntryDate = l.EntryDate
}

// DocumentModel stores versioned JSON documents (bank statements and
// matching rules) scoped by tenant and kind. The version column backs
// optimistic concurrency for document saves.
type DocumentModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index:idx_documents_tenant_kind,priority:1"`
	Kind      string    `gorm:"type:varchar(50);not null;index:idx_documents_tenant_kind,priority:2"`
	Version   int       `gorm:"not null;default:1"`
	Body      []byte    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for DocumentModel
func (DocumentModel) TableName() string {
	return "subledger_documents"
}

// NumberSequenceModel backs document number generation. One row per
// tenant, scope and period; last_value is bumped inside the caller's
// transaction.
type NumberSequenceModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_number_sequences_scope,priority:1"`
	ScopeKey  string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_number_sequences_scope,priority:2"`
	PeriodKey string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_number_sequences_scope,priority:3"`
	LastValue int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for NumberSequenceModel
func (NumberSequenceModel) TableName() string {
	return "number_sequences"
}
