package subledger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WriteOffService force-clears open item remainders as a batch
type WriteOffService struct {
	txManager domain.TransactionManager
	processor *domain.WriteOffProcessor

	// localSeq numbers write-off documents when the shared number
	// reserver is unavailable. Unique per process only; the L marker
	// in the number flags it for later renumbering.
	localSeq atomic.Int64
}

// NewWriteOffService creates a new WriteOffService
func NewWriteOffService(txManager domain.TransactionManager) *WriteOffService {
	return &WriteOffService{
		txManager: txManager,
		processor: domain.NewWriteOffProcessor(),
	}
}

// WriteOffRequest represents a batch write-off request
type WriteOffRequest struct {
	OpenItemIDs    []uuid.UUID
	WriteOffDate   time.Time
	Reason         string
	DocumentNumber string     // optional; empty reserves one
	AccountID      *uuid.UUID // optional expense/income account hint
	DryRun         bool
}

// WriteOffItemOutcome is the per-item result of a write-off batch
type WriteOffItemOutcome struct {
	OpenItemID       uuid.UUID       `json:"open_item_id"`
	Processed        bool            `json:"processed"`
	SkipReason       string          `json:"skip_reason,omitempty"`
	WrittenOffAmount decimal.Decimal `json:"written_off_amount"`
}

// WriteOffResult is the outcome of a write-off batch
type WriteOffResult struct {
	DocumentNumber   string                `json:"document_number,omitempty"`
	WriteOffDate     time.Time             `json:"write_off_date"`
	ProcessedCount   int                   `json:"processed_count"`
	SkippedCount     int                   `json:"skipped_count"`
	TotalLocalAmount decimal.Decimal       `json:"total_local_amount"`
	Items            []WriteOffItemOutcome `json:"items"`
	DryRun           bool                  `json:"dry_run,omitempty"`
}

// Process evaluates and executes a batch write-off. Items that do not
// qualify are skipped with a reason, never errors. The batch commits
// atomically under one write-off document number: the caller's when
// supplied, otherwise a reserved one, falling back to a process-local
// sequence when the reserver is unavailable. DryRun evaluates without
// writing.
func (s *WriteOffService) Process(ctx context.Context, actor Actor, req WriteOffRequest) (*WriteOffResult, error) {
	if err := requireCapability(actor, CapabilityWriteOffApply); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "write_off", "process")
	defer span.End()

	if len(req.OpenItemIDs) == 0 {
		err := shared.NewDomainError("VALIDATION_ERROR", "At least one open item ID is required")
		telemetry.RecordError(span, err)
		return nil, err
	}
	if req.Reason == "" {
		err := shared.NewDomainError("VALIDATION_ERROR", "Write-off reason is required")
		telemetry.RecordError(span, err)
		return nil, err
	}

	writeOffDate := req.WriteOffDate
	if writeOffDate.IsZero() {
		writeOffDate = time.Now()
	}

	var result *WriteOffResult
	err := s.txManager.InTransaction(ctx, func(repos domain.Repositories) error {
		items, err := repos.OpenItems.FindByIDsForTenant(ctx, actor.TenantID, req.OpenItemIDs)
		if err != nil {
			return fmt.Errorf("failed to load open items: %w", err)
		}
		byID := make(map[uuid.UUID]*domain.OpenItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}

		plan := s.processor.Plan(req.OpenItemIDs, byID)

		outcomes := make([]WriteOffItemOutcome, 0, len(plan.Items))
		for _, it := range plan.Items {
			outcomes = append(outcomes, WriteOffItemOutcome{
				OpenItemID:       it.OpenItemID,
				Processed:        it.Processed,
				SkipReason:       string(it.SkipReason),
				WrittenOffAmount: it.LocalAmount,
			})
		}
		result = &WriteOffResult{
			WriteOffDate:     writeOffDate,
			ProcessedCount:   len(plan.ProcessedIDs),
			SkippedCount:     len(plan.Items) - len(plan.ProcessedIDs),
			TotalLocalAmount: plan.TotalLocalAmount,
			Items:            outcomes,
			DryRun:           req.DryRun,
		}
		if req.DryRun || len(plan.ProcessedIDs) == 0 {
			return nil
		}

		documentNumber := req.DocumentNumber
		if documentNumber == "" {
			documentNumber, err = repos.Numbers.ReserveNumber(ctx, actor.TenantID, domain.NumberScopeWriteOff, writeOffDate)
			if err != nil {
				documentNumber = fmt.Sprintf("WO-%d-L%06d", writeOffDate.Year(), s.localSeq.Add(1))
				span.AddEvent("write_off.local_number_fallback")
			}
		}
		result.DocumentNumber = documentNumber

		for _, id := range plan.ProcessedIDs {
			item := byID[id]
			alloc, err := item.WriteOff(writeOffDate, actor.UserID, documentNumber, req.Reason)
			if err != nil {
				return err
			}
			if err := repos.OpenItems.SaveWithLock(ctx, item); err != nil {
				return err
			}
			if err := repos.Allocations.SaveOpenItemAllocation(ctx, alloc); err != nil {
				return fmt.Errorf("failed to record write-off allocation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrWriteOffAmount, result.TotalLocalAmount.String(),
		telemetry.SpanAttrOpenItemCount, result.ProcessedCount,
	)
	return result, nil
}
