package subledger

import (
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/erp/subledger/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptDirection distinguishes customer receipts from vendor payments
type ReceiptDirection string

const (
	ReceiptDirectionInbound  ReceiptDirection = "INBOUND"  // money received from a customer
	ReceiptDirectionOutbound ReceiptDirection = "OUTBOUND" // money paid to a vendor
)

// IsValid checks if the direction is valid
func (d ReceiptDirection) IsValid() bool {
	return d == ReceiptDirectionInbound || d == ReceiptDirectionOutbound
}

// ClearedByType returns the allocation type recorded when this receipt
// clears an open item
func (d ReceiptDirection) ClearedByType() ClearedByType {
	if d == ReceiptDirectionOutbound {
		return ClearedByPayment
	}
	return ClearedByReceipt
}

// Receipt represents a payment instrument (customer receipt or vendor
// payment) whose amount the cash application engine distributes across
// open items.
type Receipt struct {
	shared.TenantAggregateRoot
	ReceiptNumber string           `json:"receipt_number"`
	Direction     ReceiptDirection `json:"direction"`
	PartnerID     uuid.UUID        `json:"partner_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	ReceivedAt    time.Time        `json:"received_at"`
	Reference     string           `json:"reference,omitempty"`
	Notes         string           `json:"notes,omitempty"`
}

// NewReceipt creates a new receipt/payment instrument
func NewReceipt(
	tenantID uuid.UUID,
	receiptNumber string,
	direction ReceiptDirection,
	partnerID uuid.UUID,
	amount decimal.Decimal,
	currency string,
	receivedAt time.Time,
) (*Receipt, error) {
	if receiptNumber == "" {
		return nil, shared.NewDomainError("INVALID_RECEIPT_NUMBER", "Receipt number cannot be empty")
	}
	if !direction.IsValid() {
		return nil, shared.NewDomainError("INVALID_DIRECTION", "Receipt direction is not valid")
	}
	if partnerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PARTNER", "Partner ID cannot be empty")
	}
	money, err := valueobject.NewMoney(amount, valueobject.Currency(currency))
	if err != nil {
		return nil, shared.NewDomainError("INVALID_CURRENCY", "Receipt currency cannot be empty")
	}
	if !money.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Receipt amount must be positive")
	}

	return &Receipt{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		ReceiptNumber:       receiptNumber,
		Direction:           direction,
		PartnerID:           partnerID,
		Amount:              amount,
		Currency:            currency,
		ReceivedAt:          receivedAt,
	}, nil
}

// Money returns the receipt amount bound to its currency
func (r *Receipt) Money() valueobject.Money {
	money, err := valueobject.NewMoney(r.Amount, valueobject.Currency(r.Currency))
	if err != nil {
		return valueobject.Zero(valueobject.Currency(r.Currency))
	}
	return money
}

// Unapplied returns the amount still available for allocation after
// alreadyAllocated has been spent against open items
func (r *Receipt) Unapplied(alreadyAllocated decimal.Decimal) valueobject.Money {
	allocated, err := valueobject.NewMoney(alreadyAllocated, valueobject.Currency(r.Currency))
	if err != nil {
		return r.Money()
	}
	return r.Money().MustSubtract(allocated)
}

// PartnerType returns the open-item partner type this receipt settles
func (r *Receipt) PartnerType() PartnerType {
	if r.Direction == ReceiptDirectionOutbound {
		return PartnerTypeVendor
	}
	return PartnerTypeCustomer
}

// ReceiptAllocation links a receipt to one open item it paid.
// Append-only: the sum of allocated amounts per receipt may not exceed
// the receipt amount unless overapply was explicitly permitted.
type ReceiptAllocation struct {
	shared.BaseEntity
	TenantID        uuid.UUID       `json:"tenant_id"`
	ReceiptID       uuid.UUID       `json:"receipt_id"`
	OpenItemID      uuid.UUID       `json:"open_item_id"`
	AllocatedAmount decimal.Decimal `json:"allocated_amount"`
	AllocatedAt     time.Time       `json:"allocated_at"`
	AllocatedBy     uuid.UUID       `json:"allocated_by"`
	Notes           string          `json:"notes,omitempty"`
}

// NewReceiptAllocation creates a new receipt allocation trace record
func NewReceiptAllocation(
	tenantID uuid.UUID,
	receiptID uuid.UUID,
	openItemID uuid.UUID,
	amount decimal.Decimal,
	allocatedBy uuid.UUID,
	allocatedAt time.Time,
	notes string,
) *ReceiptAllocation {
	return &ReceiptAllocation{
		BaseEntity:      shared.NewBaseEntity(),
		TenantID:        tenantID,
		ReceiptID:       receiptID,
		OpenItemID:      openItemID,
		AllocatedAmount: amount,
		AllocatedAt:     allocatedAt,
		AllocatedBy:     allocatedBy,
		Notes:           notes,
	}
}
