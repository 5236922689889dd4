package subledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planItem(t *testing.T, due time.Time, local float64) OpenItem {
	t.Helper()
	item, err := NewOpenItem(uuid.New(), PartnerTypeCustomer, uuid.New(), "INV-001", due, decimal.NewFromFloat(local), decimal.NewFromFloat(local))
	require.NoError(t, err)
	item.DueDate = &due
	return *item
}

func TestCashApplicationPlanner(t *testing.T) {
	planner := NewCashApplicationPlanner()
	asOf := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	t.Run("distributes a receipt across items in due date order", func(t *testing.T) {
		first := planItem(t, asOf.AddDate(0, -2, 0), 100)
		second := planItem(t, asOf.AddDate(0, -1, 0), 80)

		plan, err := planner.Plan(decimal.NewFromInt(150), []OpenItem{second, first}, nil, CashApplicationOptions{AsOf: asOf})
		require.NoError(t, err)

		require.Len(t, plan.Allocations, 2)
		assert.Equal(t, first.ID, plan.Allocations[0].OpenItemID)
		assert.True(t, plan.Allocations[0].LocalAmount.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, second.ID, plan.Allocations[1].OpenItemID)
		assert.True(t, plan.Allocations[1].LocalAmount.Equal(decimal.NewFromInt(50)))
		assert.True(t, plan.AppliedAmount.Equal(decimal.NewFromInt(150)))
		assert.True(t, plan.RemainingUnapplied.IsZero())
	})

	t.Run("nothing remaining is a successful no-op", func(t *testing.T) {
		item := planItem(t, asOf.AddDate(0, -1, 0), 100)
		plan, err := planner.Plan(decimal.Zero, []OpenItem{item}, nil, CashApplicationOptions{AsOf: asOf})
		require.NoError(t, err)
		assert.Empty(t, plan.Allocations)
		assert.True(t, plan.AppliedAmount.IsZero())
	})

	t.Run("conservation holds for partial application", func(t *testing.T) {
		items := []OpenItem{
			planItem(t, asOf.AddDate(0, -3, 0), 40.25),
			planItem(t, asOf.AddDate(0, -2, 0), 17.80),
			planItem(t, asOf.AddDate(0, -1, 0), 99.99),
		}
		unapplied := decimal.NewFromFloat(120.37)

		plan, err := planner.Plan(unapplied, items, nil, CashApplicationOptions{AsOf: asOf})
		require.NoError(t, err)
		assert.True(t, plan.AppliedAmount.Add(plan.RemainingUnapplied).Equal(unapplied))
	})

	t.Run("excludes items not yet due by default", func(t *testing.T) {
		overdue := planItem(t, asOf.AddDate(0, -1, 0), 50)
		future := planItem(t, asOf.AddDate(0, 1, 0), 50)

		plan, err := planner.Plan(decimal.NewFromInt(100), []OpenItem{overdue, future}, nil, CashApplicationOptions{AsOf: asOf})
		require.NoError(t, err)
		require.Len(t, plan.Allocations, 1)
		assert.Equal(t, overdue.ID, plan.Allocations[0].OpenItemID)
	})

	t.Run("includeNotYetDue admits future items", func(t *testing.T) {
		future := planItem(t, asOf.AddDate(0, 1, 0), 50)
		plan, err := planner.Plan(decimal.NewFromInt(100), []OpenItem{future}, nil, CashApplicationOptions{AsOf: asOf, IncludeNotYetDue: true})
		require.NoError(t, err)
		require.Len(t, plan.Allocations, 1)
	})

	t.Run("caps candidates at maxOpenItems", func(t *testing.T) {
		items := []OpenItem{
			planItem(t, asOf.AddDate(0, -3, 0), 10),
			planItem(t, asOf.AddDate(0, -2, 0), 10),
			planItem(t, asOf.AddDate(0, -1, 0), 10),
		}
		plan, err := planner.Plan(decimal.NewFromInt(100), items, nil, CashApplicationOptions{AsOf: asOf, MaxOpenItems: 2})
		require.NoError(t, err)
		assert.Len(t, plan.Allocations, 2)
		assert.True(t, plan.RemainingUnapplied.Equal(decimal.NewFromInt(80)))
	})

	t.Run("excluded items are never re-allocated", func(t *testing.T) {
		item := planItem(t, asOf.AddDate(0, -1, 0), 50)
		plan, err := planner.Plan(decimal.NewFromInt(100), []OpenItem{item}, map[uuid.UUID]bool{item.ID: true}, CashApplicationOptions{AsOf: asOf})
		require.NoError(t, err)
		assert.Empty(t, plan.Allocations)
	})

	t.Run("skips dust remainders", func(t *testing.T) {
		item := planItem(t, asOf.AddDate(0, -1, 0), 50)
		item.LocalRemainingAmount = decimal.NewFromFloat(1e-8)
		plan, err := planner.Plan(decimal.NewFromInt(100), []OpenItem{item}, nil, CashApplicationOptions{AsOf: asOf})
		require.NoError(t, err)
		assert.Empty(t, plan.Allocations)
	})

	t.Run("overapply allocates full remainders past the receipt amount", func(t *testing.T) {
		items := []OpenItem{
			planItem(t, asOf.AddDate(0, -2, 0), 100),
			planItem(t, asOf.AddDate(0, -1, 0), 100),
		}
		plan, err := planner.Plan(decimal.NewFromInt(150), items, nil, CashApplicationOptions{AsOf: asOf, AllowOverapply: true})
		require.NoError(t, err)
		require.Len(t, plan.Allocations, 2)
		assert.True(t, plan.Allocations[1].LocalAmount.Equal(decimal.NewFromInt(100)))
		assert.True(t, plan.AppliedAmount.Equal(decimal.NewFromInt(200)))
		assert.True(t, plan.RemainingUnapplied.Equal(decimal.NewFromInt(-50)))
	})

	t.Run("pro-rates the document currency portion", func(t *testing.T) {
		item := planItem(t, asOf.AddDate(0, -1, 0), 100)
		item.DocumentRemainingAmount = decimal.NewFromInt(200)

		plan, err := planner.Plan(decimal.NewFromInt(50), []OpenItem{item}, nil, CashApplicationOptions{AsOf: asOf})
		require.NoError(t, err)
		require.Len(t, plan.Allocations, 1)
		assert.True(t, plan.Allocations[0].DocumentAmount.Equal(decimal.NewFromInt(100)))
	})

	t.Run("orders by document date when requested", func(t *testing.T) {
		older := planItem(t, asOf.AddDate(0, -1, 0), 50)
		newer := planItem(t, asOf.AddDate(0, -2, 0), 50)
		olderDoc := asOf.AddDate(0, -6, 0)
		newerDoc := asOf.AddDate(0, -3, 0)
		older.DocumentDate = &olderDoc
		newer.DocumentDate = &newerDoc

		plan, err := planner.Plan(decimal.NewFromInt(60), []OpenItem{newer, older}, nil, CashApplicationOptions{AsOf: asOf, OrderBy: OrderByDocumentDate})
		require.NoError(t, err)
		require.Len(t, plan.Allocations, 2)
		assert.Equal(t, older.ID, plan.Allocations[0].OpenItemID)
	})

	t.Run("rejects unknown ordering key", func(t *testing.T) {
		_, err := planner.Plan(decimal.NewFromInt(10), nil, nil, CashApplicationOptions{AsOf: asOf, OrderBy: "RANDOM"})
		assert.Error(t, err)
	})
}
