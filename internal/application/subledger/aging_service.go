package subledger

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// AgingService produces aging reports over outstanding open items
type AgingService struct {
	openItemRepo domain.OpenItemRepository
	calculator   *domain.AgingCalculator
}

// NewAgingService creates a new AgingService
func NewAgingService(openItemRepo domain.OpenItemRepository) *AgingService {
	return &AgingService{
		openItemRepo: openItemRepo,
		calculator:   domain.NewAgingCalculator(),
	}
}

// AgingReportRequest represents a request for an aging report
type AgingReportRequest struct {
	AsOfDate    time.Time
	PartnerType domain.PartnerType
	PartnerID   *uuid.UUID      // optional: restrict to one partner
	Buckets     []domain.Bucket // optional: custom bucket table
}

// Report calculates the aging breakdown of outstanding items as of a
// reference date
func (s *AgingService) Report(ctx context.Context, actor Actor, req AgingReportRequest) (*domain.AgingReport, error) {
	if err := requireCapability(actor, CapabilityAgingRead); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "aging", "report")
	defer span.End()

	if !req.PartnerType.IsValid() {
		err := shared.NewDomainError("VALIDATION_ERROR", "Partner type must be CUSTOMER or VENDOR")
		telemetry.RecordError(span, err)
		return nil, err
	}

	asOf := req.AsOfDate
	if asOf.IsZero() {
		asOf = time.Now()
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPartnerType, req.PartnerType.String(),
		"as_of_date", asOf.Format(time.RFC3339),
	)

	items, err := s.openItemRepo.FindOutstanding(ctx, actor.TenantID, req.PartnerType, req.PartnerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load outstanding items: %w", err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrOpenItemCount, len(items))

	report, err := s.calculator.Calculate(asOf, req.Buckets, req.PartnerType, items)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return report, nil
}
