package subledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOffService_Process(t *testing.T) {
	ctx := context.Background()
	writeOffDate := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	t.Run("writes off qualifying items under one document number", func(t *testing.T) {
		actor := testActor(CapabilityWriteOffApply)
		partnerID := uuid.New()

		stale := receivable(t, actor.TenantID, partnerID, "INV-100", writeOffDate.AddDate(-1, 0, 0), 42.50)
		dust := receivable(t, actor.TenantID, partnerID, "INV-101", writeOffDate.AddDate(-1, 0, 0), 0.005)

		items := newFakeOpenItemRepo(stale, dust)
		allocations := newFakeAllocationRepo()
		svc := NewWriteOffService(newFakeTxManager(items, newFakeReceiptRepo(), allocations, &fakeNumberReserver{}))

		result, err := svc.Process(ctx, actor, WriteOffRequest{
			OpenItemIDs:  []uuid.UUID{stale.ID, dust.ID, uuid.New()},
			WriteOffDate: writeOffDate,
			Reason:       "uncollectable",
		})
		require.NoError(t, err)

		assert.Equal(t, 1, result.ProcessedCount)
		assert.Equal(t, 2, result.SkippedCount)
		assert.True(t, strings.HasPrefix(result.DocumentNumber, "WO-2024-"))
		assert.True(t, result.TotalLocalAmount.Equal(decimal.NewFromFloat(42.50)))

		byID := make(map[uuid.UUID]WriteOffItemOutcome, len(result.Items))
		for _, outcome := range result.Items {
			byID[outcome.OpenItemID] = outcome
		}
		assert.True(t, byID[stale.ID].Processed)
		assert.Equal(t, string(domain.WriteOffSkipBelowThreshold), byID[dust.ID].SkipReason)

		stored, err := items.FindByIDForTenant(ctx, actor.TenantID, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OpenItemStatusWrittenOff, stored.Status)
		assert.True(t, stored.LocalRemainingAmount.IsZero())

		require.Len(t, allocations.itemAllocs, 1)
		assert.Equal(t, domain.ClearedByWriteOff, allocations.itemAllocs[0].ClearedByType)
		assert.Equal(t, result.DocumentNumber, allocations.itemAllocs[0].ClearedByRef)
	})

	t.Run("dry run evaluates without writing", func(t *testing.T) {
		actor := testActor(CapabilityWriteOffApply)
		item := receivable(t, actor.TenantID, uuid.New(), "INV-110", writeOffDate.AddDate(0, -6, 0), 120)

		items := newFakeOpenItemRepo(item)
		allocations := newFakeAllocationRepo()
		svc := NewWriteOffService(newFakeTxManager(items, newFakeReceiptRepo(), allocations, &fakeNumberReserver{}))

		result, err := svc.Process(ctx, actor, WriteOffRequest{
			OpenItemIDs:  []uuid.UUID{item.ID},
			WriteOffDate: writeOffDate,
			Reason:       "uncollectable",
			DryRun:       true,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.ProcessedCount)
		assert.Empty(t, result.DocumentNumber)
		assert.Empty(t, allocations.itemAllocs)

		stored, err := items.FindByIDForTenant(ctx, actor.TenantID, item.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OpenItemStatusOpen, stored.Status)
	})

	t.Run("skips terminal items without error", func(t *testing.T) {
		actor := testActor(CapabilityWriteOffApply)
		item := receivable(t, actor.TenantID, uuid.New(), "INV-120", writeOffDate.AddDate(0, -6, 0), 60)
		_, err := item.WriteOff(writeOffDate, actor.UserID, "WO-2024-000001", "already gone")
		require.NoError(t, err)

		svc := NewWriteOffService(newFakeTxManager(newFakeOpenItemRepo(item), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}))

		result, err := svc.Process(ctx, actor, WriteOffRequest{
			OpenItemIDs:  []uuid.UUID{item.ID},
			WriteOffDate: writeOffDate,
			Reason:       "uncollectable",
		})
		require.NoError(t, err)
		assert.Equal(t, 0, result.ProcessedCount)
		assert.Equal(t, 1, result.SkippedCount)
		assert.Equal(t, string(domain.WriteOffSkipTerminalStatus), result.Items[0].SkipReason)
		assert.Empty(t, result.DocumentNumber)
	})

	t.Run("uses a caller-supplied document number without reserving one", func(t *testing.T) {
		actor := testActor(CapabilityWriteOffApply)
		item := receivable(t, actor.TenantID, uuid.New(), "INV-125", writeOffDate.AddDate(0, -6, 0), 90)

		items := newFakeOpenItemRepo(item)
		allocations := newFakeAllocationRepo()
		numbers := &fakeNumberReserver{}
		svc := NewWriteOffService(newFakeTxManager(items, newFakeReceiptRepo(), allocations, numbers))

		result, err := svc.Process(ctx, actor, WriteOffRequest{
			OpenItemIDs:    []uuid.UUID{item.ID},
			WriteOffDate:   writeOffDate,
			Reason:         "uncollectable",
			DocumentNumber: "WO-MANUAL-7",
		})
		require.NoError(t, err)
		assert.Equal(t, "WO-MANUAL-7", result.DocumentNumber)
		assert.Equal(t, int64(0), numbers.next)

		require.Len(t, allocations.itemAllocs, 1)
		assert.Equal(t, "WO-MANUAL-7", allocations.itemAllocs[0].ClearedByRef)
	})

	t.Run("falls back to a local sequence when number reservation fails", func(t *testing.T) {
		actor := testActor(CapabilityWriteOffApply)
		item := receivable(t, actor.TenantID, uuid.New(), "INV-130", writeOffDate.AddDate(0, -6, 0), 75)

		items := newFakeOpenItemRepo(item)
		allocations := newFakeAllocationRepo()
		numbers := &fakeNumberReserver{err: assert.AnError}
		svc := NewWriteOffService(newFakeTxManager(items, newFakeReceiptRepo(), allocations, numbers))

		result, err := svc.Process(ctx, actor, WriteOffRequest{
			OpenItemIDs:  []uuid.UUID{item.ID},
			WriteOffDate: writeOffDate,
			Reason:       "uncollectable",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.ProcessedCount)
		assert.Equal(t, "WO-2024-L000001", result.DocumentNumber)

		require.Len(t, allocations.itemAllocs, 1)
		assert.Equal(t, "WO-2024-L000001", allocations.itemAllocs[0].ClearedByRef)
	})

	t.Run("requires a reason and at least one item", func(t *testing.T) {
		actor := testActor(CapabilityWriteOffApply)
		svc := NewWriteOffService(newFakeTxManager(newFakeOpenItemRepo(), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}))

		_, err := svc.Process(ctx, actor, WriteOffRequest{Reason: "x"})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "VALIDATION_ERROR", domainErr.Code)

		_, err = svc.Process(ctx, actor, WriteOffRequest{OpenItemIDs: []uuid.UUID{uuid.New()}})
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "VALIDATION_ERROR", domainErr.Code)
	})

	t.Run("rejects an actor without the write-off capability", func(t *testing.T) {
		actor := testActor(CapabilityItemsRead)
		svc := NewWriteOffService(newFakeTxManager(newFakeOpenItemRepo(), newFakeReceiptRepo(), newFakeAllocationRepo(), &fakeNumberReserver{}))

		_, err := svc.Process(ctx, actor, WriteOffRequest{OpenItemIDs: []uuid.UUID{uuid.New()}, Reason: "x"})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "FORBIDDEN", domainErr.Code)
	})
}
