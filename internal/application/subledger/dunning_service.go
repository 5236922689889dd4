package subledger

import (
	"context"
	"fmt"
	"time"

	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
)

// DunningService generates collections escalation candidates
type DunningService struct {
	openItemRepo domain.OpenItemRepository
	generator    *domain.DunningGenerator
}

// NewDunningService creates a new DunningService
func NewDunningService(openItemRepo domain.OpenItemRepository) *DunningService {
	return &DunningService{
		openItemRepo: openItemRepo,
		generator:    domain.NewDunningGenerator(),
	}
}

// DunningRequest represents a request for a dunning candidate run
type DunningRequest struct {
	AsOfDate  time.Time
	PartnerID *uuid.UUID            // optional: restrict to one customer
	Policy    *domain.DunningPolicy // optional: defaults when nil
}

// Generate produces the dunning candidate report for overdue customer
// receivables. The run is stateless: it never mutates open items or
// records notices.
func (s *DunningService) Generate(ctx context.Context, actor Actor, req DunningRequest) (*domain.DunningReport, error) {
	if err := requireCapability(actor, CapabilityDunningRead); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "dunning", "generate")
	defer span.End()

	asOf := req.AsOfDate
	if asOf.IsZero() {
		asOf = time.Now()
	}
	policy := domain.DefaultDunningPolicy()
	if req.Policy != nil {
		policy = *req.Policy
	}

	items, err := s.openItemRepo.FindOutstanding(ctx, actor.TenantID, domain.PartnerTypeCustomer, req.PartnerID)
	if err != nil {
		err = fmt.Errorf("failed to load outstanding receivables: %w", err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	report, err := s.generator.Generate(asOf, policy, items)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		"candidate_count", len(report.Candidates),
		"policy_name", policy.Name,
	)
	return report, nil
}
