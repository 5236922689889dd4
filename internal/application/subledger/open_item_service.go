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

// OpenItemService exposes open item queries and ingestion
type OpenItemService struct {
	openItemRepo   domain.OpenItemRepository
	allocationRepo domain.AllocationRepository
}

// NewOpenItemService creates a new OpenItemService
func NewOpenItemService(openItemRepo domain.OpenItemRepository, allocationRepo domain.AllocationRepository) *OpenItemService {
	return &OpenItemService{
		openItemRepo:   openItemRepo,
		allocationRepo: allocationRepo,
	}
}

// List returns a filtered page of the tenant's open items
func (s *OpenItemService) List(ctx context.Context, actor Actor, filter domain.OpenItemFilter) (*shared.Paginated[domain.OpenItem], error) {
	if err := requireCapability(actor, CapabilityItemsRead); err != nil {
		return nil, err
	}

	items, err := s.openItemRepo.FindAllForTenant(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list open items: %w", err)
	}
	total, err := s.openItemRepo.CountForTenant(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count open items: %w", err)
	}
	page := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &page, nil
}

// OpenItemDetail is an open item with its full clearing trail
type OpenItemDetail struct {
	Item        *domain.OpenItem            `json:"item"`
	Allocations []domain.OpenItemAllocation `json:"allocations"`
}

// Get loads one open item and its clearing trail
func (s *OpenItemService) Get(ctx context.Context, actor Actor, openItemID uuid.UUID) (*OpenItemDetail, error) {
	if err := requireCapability(actor, CapabilityItemsRead); err != nil {
		return nil, err
	}

	item, err := s.openItemRepo.FindByIDForTenant(ctx, actor.TenantID, openItemID)
	if err != nil {
		return nil, err
	}
	allocations, err := s.allocationRepo.FindByOpenItem(ctx, actor.TenantID, openItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clearing trail: %w", err)
	}
	return &OpenItemDetail{Item: item, Allocations: allocations}, nil
}

// PartnerOutstanding is a partner's total outstanding magnitude
type PartnerOutstanding struct {
	PartnerType domain.PartnerType `json:"partner_type"`
	PartnerID   uuid.UUID          `json:"partner_id"`
	Outstanding decimal.Decimal    `json:"outstanding"`
}

// Outstanding sums a partner's outstanding balance. The result is a
// positive magnitude for both receivables and payables.
func (s *OpenItemService) Outstanding(ctx context.Context, actor Actor, partnerType domain.PartnerType, partnerID uuid.UUID) (*PartnerOutstanding, error) {
	if err := requireCapability(actor, CapabilityItemsRead); err != nil {
		return nil, err
	}
	if !partnerType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Partner type must be CUSTOMER or VENDOR")
	}

	total, err := s.openItemRepo.SumOutstandingByPartner(ctx, actor.TenantID, partnerType, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum outstanding: %w", err)
	}
	return &PartnerOutstanding{
		PartnerType: partnerType,
		PartnerID:   partnerID,
		Outstanding: total,
	}, nil
}

// IngestRequest represents a source document posting to record as an
// open item. Posting itself happens upstream; this only creates the
// subledger-side balance unit.
type IngestRequest struct {
	PartnerType    domain.PartnerType
	PartnerID      uuid.UUID
	DocumentNumber string
	DocumentDate   *time.Time
	DueDate        *time.Time
	ItemDate       time.Time
	JournalEntryID *uuid.UUID
	BankAccountID  *uuid.UUID
	DocumentAmount decimal.Decimal
	LocalAmount    decimal.Decimal
}

// Ingest records a newly posted document as an open item
func (s *OpenItemService) Ingest(ctx context.Context, actor Actor, req IngestRequest) (*domain.OpenItem, error) {
	if err := requireCapability(actor, CapabilityItemsWrite); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "open_item", "ingest")
	defer span.End()

	itemDate := req.ItemDate
	if itemDate.IsZero() {
		itemDate = time.Now()
	}
	documentAmount := req.DocumentAmount
	if documentAmount.IsZero() {
		documentAmount = req.LocalAmount
	}

	item, err := domain.NewOpenItem(actor.TenantID, req.PartnerType, req.PartnerID,
		req.DocumentNumber, itemDate, documentAmount, req.LocalAmount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	item.DocumentDate = req.DocumentDate
	item.DueDate = req.DueDate
	item.JournalEntryID = req.JournalEntryID
	item.BankAccountID = req.BankAccountID

	if err := s.openItemRepo.Save(ctx, item); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to save open item: %w", err)
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPartnerID, item.PartnerID.String(),
		telemetry.SpanAttrPartnerType, item.PartnerType.String(),
	)
	return item, nil
}
