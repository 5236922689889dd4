package subledger

import (
	"context"
	"testing"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDunningService_Generate(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)

	t.Run("escalates the most overdue partner highest", func(t *testing.T) {
		actor := testActor(CapabilityDunningRead)
		slightlyLate := uuid.New()
		veryLate := uuid.New()

		items := newFakeOpenItemRepo(
			receivable(t, actor.TenantID, slightlyLate, "INV-400", asOf.AddDate(0, 0, -10), 500),
			receivable(t, actor.TenantID, veryLate, "INV-401", asOf.AddDate(0, 0, -95), 120),
			receivable(t, actor.TenantID, uuid.New(), "INV-402", asOf.AddDate(0, 0, 15), 999), // not yet due
		)
		svc := NewDunningService(items)

		report, err := svc.Generate(ctx, actor, DunningRequest{AsOfDate: asOf})
		require.NoError(t, err)
		require.Len(t, report.Candidates, 2)

		byPartner := make(map[uuid.UUID]domain.DunningCandidate, len(report.Candidates))
		for _, candidate := range report.Candidates {
			byPartner[candidate.PartnerID] = candidate
		}
		assert.Greater(t, byPartner[veryLate].Level, byPartner[slightlyLate].Level)
		assert.Equal(t, 95, byPartner[veryLate].DaysPastDue)
	})

	t.Run("restricts the run to one partner", func(t *testing.T) {
		actor := testActor(CapabilityDunningRead)
		target := uuid.New()

		items := newFakeOpenItemRepo(
			receivable(t, actor.TenantID, target, "INV-410", asOf.AddDate(0, 0, -30), 80),
			receivable(t, actor.TenantID, uuid.New(), "INV-411", asOf.AddDate(0, 0, -30), 80),
		)
		svc := NewDunningService(items)

		report, err := svc.Generate(ctx, actor, DunningRequest{AsOfDate: asOf, PartnerID: &target})
		require.NoError(t, err)
		require.Len(t, report.Candidates, 1)
		assert.Equal(t, target, report.Candidates[0].PartnerID)
	})

	t.Run("invalid custom policy is rejected", func(t *testing.T) {
		actor := testActor(CapabilityDunningRead)
		svc := NewDunningService(newFakeOpenItemRepo())

		bad := domain.DunningPolicy{Name: "bad"}
		_, err := svc.Generate(ctx, actor, DunningRequest{AsOfDate: asOf, Policy: &bad})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
	})

	t.Run("rejects an actor without the dunning capability", func(t *testing.T) {
		actor := testActor(CapabilityItemsRead)
		svc := NewDunningService(newFakeOpenItemRepo())

		_, err := svc.Generate(ctx, actor, DunningRequest{AsOfDate: asOf})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "FORBIDDEN", domainErr.Code)
	})
}
