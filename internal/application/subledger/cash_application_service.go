package subledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashApplicationService distributes receipt amounts across open items
type CashApplicationService struct {
	receiptRepo     domain.ReceiptRepository
	txManager       domain.TransactionManager
	planner         *domain.CashApplicationPlanner
	defaultMaxItems int
}

// NewCashApplicationService creates a new CashApplicationService.
// defaultMaxItems caps a single application run when the request does
// not set its own limit; zero means unlimited.
func NewCashApplicationService(receiptRepo domain.ReceiptRepository, txManager domain.TransactionManager, defaultMaxItems int) *CashApplicationService {
	return &CashApplicationService{
		receiptRepo:     receiptRepo,
		txManager:       txManager,
		planner:         domain.NewCashApplicationPlanner(),
		defaultMaxItems: defaultMaxItems,
	}
}

// ListReceipts returns a filtered page of the tenant's receipts
func (s *CashApplicationService) ListReceipts(ctx context.Context, actor Actor, filter shared.Filter) (*shared.Paginated[domain.Receipt], error) {
	if err := requireCapability(actor, CapabilityCashApply); err != nil {
		return nil, err
	}

	receipts, err := s.receiptRepo.FindAllForTenant(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	total, err := s.receiptRepo.CountForTenant(ctx, actor.TenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count receipts: %w", err)
	}
	page := shared.NewPaginated(receipts, total, filter.Page, filter.PageSize)
	return &page, nil
}

// GetReceipt loads one receipt
func (s *CashApplicationService) GetReceipt(ctx context.Context, actor Actor, receiptID uuid.UUID) (*domain.Receipt, error) {
	if err := requireCapability(actor, CapabilityCashApply); err != nil {
		return nil, err
	}
	return s.receiptRepo.FindByIDForTenant(ctx, actor.TenantID, receiptID)
}

// RegisterReceiptRequest represents a request to register a payment instrument
type RegisterReceiptRequest struct {
	ReceiptNumber string
	Direction     domain.ReceiptDirection
	PartnerID     uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	ReceivedAt    time.Time
	Reference     string
	Notes         string
}

// RegisterReceipt records a receipt or vendor payment so it can later
// be applied against open items
func (s *CashApplicationService) RegisterReceipt(ctx context.Context, actor Actor, req RegisterReceiptRequest) (*domain.Receipt, error) {
	if err := requireCapability(actor, CapabilityCashApply); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "cash_application", "register_receipt")
	defer span.End()

	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	var receipt *domain.Receipt
	err := s.txManager.InTransaction(ctx, func(repos domain.Repositories) error {
		if _, err := repos.Receipts.FindByNumber(ctx, actor.TenantID, req.ReceiptNumber); err == nil {
			return shared.NewDomainError("DUPLICATE_RECEIPT", fmt.Sprintf("Receipt %s already exists", req.ReceiptNumber))
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}

		var err error
		receipt, err = domain.NewReceipt(actor.TenantID, req.ReceiptNumber, req.Direction,
			req.PartnerID, req.Amount, req.Currency, receivedAt)
		if err != nil {
			return err
		}
		receipt.Reference = req.Reference
		receipt.Notes = req.Notes
		return repos.Receipts.Save(ctx, receipt)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrReceiptID, receipt.ID.String())
	return receipt, nil
}

// ApplyRequest represents a request to apply a receipt's unapplied
// amount across the partner's open items
type ApplyRequest struct {
	ReceiptID        uuid.UUID
	AsOfDate         time.Time
	MaxOpenItems     int
	OrderBy          domain.CashApplicationOrder
	IncludeNotYetDue bool
	AllowOverapply   bool
	Notes            string
}

// AppliedAllocation is one executed allocation of an application run
type AppliedAllocation struct {
	OpenItemID              uuid.UUID       `json:"open_item_id"`
	DocumentNumber          string          `json:"document_number"`
	AllocatedAmount         decimal.Decimal `json:"allocated_amount"`
	RemainingOpenItemAmount decimal.Decimal `json:"remaining_open_item_amount"`
	NewStatus               string          `json:"new_status"`
}

// ApplyResult is the outcome of a cash application run
type ApplyResult struct {
	ReceiptID                uuid.UUID           `json:"receipt_id"`
	ReceiptNumber            string              `json:"receipt_number"`
	PartnerID                uuid.UUID           `json:"partner_id"`
	AppliedAmount            decimal.Decimal     `json:"applied_amount"`
	RemainingUnappliedAmount decimal.Decimal     `json:"remaining_unapplied_amount"`
	Allocations              []AppliedAllocation `json:"allocations"`
}

// Apply distributes the receipt's still-unapplied amount across the
// partner's allocatable open items. The whole run commits or rolls back
// as one transaction; concurrent mutation of any touched item surfaces
// as a retryable conflict.
func (s *CashApplicationService) Apply(ctx context.Context, actor Actor, req ApplyRequest) (*ApplyResult, error) {
	if err := requireCapability(actor, CapabilityCashApply); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "cash_application", "apply")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrReceiptID, req.ReceiptID.String())

	asOf := req.AsOfDate
	if asOf.IsZero() {
		asOf = time.Now()
	}
	maxItems := req.MaxOpenItems
	if maxItems <= 0 {
		maxItems = s.defaultMaxItems
	}

	var result *ApplyResult
	err := s.txManager.InTransaction(ctx, func(repos domain.Repositories) error {
		receipt, err := repos.Receipts.FindByIDForTenant(ctx, actor.TenantID, req.ReceiptID)
		if err != nil {
			return err
		}

		alreadyAllocated, err := repos.Allocations.SumAllocatedByReceipt(ctx, actor.TenantID, receipt.ID)
		if err != nil {
			return fmt.Errorf("failed to sum prior allocations: %w", err)
		}
		unapplied := receipt.Unapplied(alreadyAllocated).Amount()

		priorAllocs, err := repos.Allocations.FindByReceipt(ctx, actor.TenantID, receipt.ID)
		if err != nil {
			return fmt.Errorf("failed to load prior allocations: %w", err)
		}
		exclude := make(map[uuid.UUID]bool, len(priorAllocs))
		for _, alloc := range priorAllocs {
			exclude[alloc.OpenItemID] = true
		}

		items, err := repos.OpenItems.FindAllocatable(ctx, actor.TenantID, receipt.PartnerType(), receipt.PartnerID)
		if err != nil {
			return fmt.Errorf("failed to load allocatable items: %w", err)
		}

		plan, err := s.planner.Plan(unapplied, items, exclude, domain.CashApplicationOptions{
			AsOf:             asOf,
			MaxOpenItems:     maxItems,
			OrderBy:          req.OrderBy,
			IncludeNotYetDue: req.IncludeNotYetDue,
			AllowOverapply:   req.AllowOverapply,
			Notes:            req.Notes,
		})
		if err != nil {
			return err
		}

		byID := make(map[uuid.UUID]*domain.OpenItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		now := time.Now()
		applied := make([]AppliedAllocation, 0, len(plan.Allocations))
		for _, planned := range plan.Allocations {
			item := byID[planned.OpenItemID]

			alloc, err := item.Allocate(
				planned.LocalAmount,
				planned.DocumentAmount,
				receipt.Direction.ClearedByType(),
				receipt.ID,
				receipt.ReceiptNumber,
				actor.UserID,
				now,
				req.Notes,
			)
			if err != nil {
				return err
			}

			if err := repos.OpenItems.SaveWithLock(ctx, item); err != nil {
				return err
			}
			if err := repos.Allocations.SaveOpenItemAllocation(ctx, alloc); err != nil {
				return fmt.Errorf("failed to record clearing event: %w", err)
			}
			trace := domain.NewReceiptAllocation(actor.TenantID, receipt.ID, item.ID,
				planned.LocalAmount, actor.UserID, now, req.Notes)
			if err := repos.Allocations.SaveReceiptAllocation(ctx, trace); err != nil {
				return fmt.Errorf("failed to record receipt allocation: %w", err)
			}

			applied = append(applied, AppliedAllocation{
				OpenItemID:              item.ID,
				DocumentNumber:          item.DocumentNumber,
				AllocatedAmount:         planned.LocalAmount,
				RemainingOpenItemAmount: item.LocalRemainingAmount,
				NewStatus:               item.Status.String(),
			})
		}

		result = &ApplyResult{
			ReceiptID:                receipt.ID,
			ReceiptNumber:            receipt.ReceiptNumber,
			PartnerID:                receipt.PartnerID,
			AppliedAmount:            plan.AppliedAmount,
			RemainingUnappliedAmount: plan.RemainingUnapplied,
			Allocations:              applied,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrAppliedAmount, result.AppliedAmount.String(),
		telemetry.SpanAttrOpenItemCount, len(result.Allocations),
	)
	return result, nil
}
