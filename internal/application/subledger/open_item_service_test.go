package subledger

import (
	"context"
	"testing"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenItemService(t *testing.T) {
	ctx := context.Background()
	due := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)

	t.Run("lists items with the total count", func(t *testing.T) {
		actor := testActor(CapabilityItemsRead)
		partnerID := uuid.New()

		repo := newFakeOpenItemRepo(
			receivable(t, actor.TenantID, partnerID, "INV-600", due, 100),
			receivable(t, actor.TenantID, partnerID, "INV-601", due, 200),
		)
		svc := NewOpenItemService(repo, newFakeAllocationRepo())

		result, err := svc.List(ctx, actor, domain.OpenItemFilter{PartnerID: &partnerID})
		require.NoError(t, err)
		assert.Len(t, result.Items, 2)
		assert.Equal(t, int64(2), result.Total)
	})

	t.Run("get returns the item with its clearing trail", func(t *testing.T) {
		actor := testActor(CapabilityItemsRead)
		item := receivable(t, actor.TenantID, uuid.New(), "INV-610", due, 300)
		alloc, err := item.Allocate(decimal.NewFromInt(120), decimal.NewFromInt(120),
			domain.ClearedByReceipt, uuid.New(), "RCT-1", actor.UserID, due, "")
		require.NoError(t, err)

		allocations := newFakeAllocationRepo()
		require.NoError(t, allocations.SaveOpenItemAllocation(ctx, alloc))
		svc := NewOpenItemService(newFakeOpenItemRepo(item), allocations)

		detail, err := svc.Get(ctx, actor, item.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OpenItemStatusPartiallyCleared, detail.Item.Status)
		require.Len(t, detail.Allocations, 1)
		assert.True(t, detail.Allocations[0].LocalAmount.Equal(decimal.NewFromInt(120)))
	})

	t.Run("outstanding sums the partner balance", func(t *testing.T) {
		actor := testActor(CapabilityItemsRead)
		partnerID := uuid.New()

		repo := newFakeOpenItemRepo(
			receivable(t, actor.TenantID, partnerID, "INV-620", due, 40),
			receivable(t, actor.TenantID, partnerID, "INV-621", due, 60),
		)
		svc := NewOpenItemService(repo, newFakeAllocationRepo())

		summary, err := svc.Outstanding(ctx, actor, domain.PartnerTypeCustomer, partnerID)
		require.NoError(t, err)
		assert.True(t, summary.Outstanding.Equal(decimal.NewFromInt(100)))
	})

	t.Run("ingest creates a fully outstanding item", func(t *testing.T) {
		actor := testActor(CapabilityItemsWrite)
		repo := newFakeOpenItemRepo()
		svc := NewOpenItemService(repo, newFakeAllocationRepo())

		item, err := svc.Ingest(ctx, actor, IngestRequest{
			PartnerType:    domain.PartnerTypeVendor,
			PartnerID:      uuid.New(),
			DocumentNumber: "BILL-001",
			DueDate:        &due,
			LocalAmount:    decimal.NewFromFloat(-780.40),
		})
		require.NoError(t, err)
		assert.Equal(t, domain.OpenItemStatusOpen, item.Status)
		assert.True(t, item.LocalRemainingAmount.Equal(decimal.NewFromFloat(-780.40)))
		assert.True(t, item.DocumentRemainingAmount.Equal(decimal.NewFromFloat(-780.40)))

		stored, err := repo.FindByIDForTenant(ctx, actor.TenantID, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "BILL-001", stored.DocumentNumber)
	})

	t.Run("ingest requires the write capability", func(t *testing.T) {
		actor := testActor(CapabilityItemsRead)
		svc := NewOpenItemService(newFakeOpenItemRepo(), newFakeAllocationRepo())

		_, err := svc.Ingest(ctx, actor, IngestRequest{
			PartnerType:    domain.PartnerTypeCustomer,
			PartnerID:      uuid.New(),
			DocumentNumber: "INV-X",
			LocalAmount:    decimal.NewFromInt(1),
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "FORBIDDEN", domainErr.Code)
	})
}
