package subledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDunningPolicy(t *testing.T) {
	policy := DunningPolicy{
		Name: "standard",
		Levels: []DunningPolicyLevel{
			{Level: 1, DaysPastDue: 0},
			{Level: 2, DaysPastDue: 30},
			{Level: 3, DaysPastDue: 60},
		},
	}

	t.Run("most severe applicable level wins", func(t *testing.T) {
		assert.Equal(t, 2, policy.ResolveLevel(45))
	})

	t.Run("threshold boundaries", func(t *testing.T) {
		assert.Equal(t, 1, policy.ResolveLevel(1))
		assert.Equal(t, 1, policy.ResolveLevel(29))
		assert.Equal(t, 2, policy.ResolveLevel(30))
		assert.Equal(t, 3, policy.ResolveLevel(60))
		assert.Equal(t, 3, policy.ResolveLevel(400))
	})

	t.Run("rejects non-ascending thresholds", func(t *testing.T) {
		bad := DunningPolicy{
			Name: "bad",
			Levels: []DunningPolicyLevel{
				{Level: 1, DaysPastDue: 30},
				{Level: 2, DaysPastDue: 10},
			},
		}
		assert.Error(t, bad.Validate())
	})

	t.Run("rejects empty policy", func(t *testing.T) {
		assert.Error(t, DunningPolicy{Name: "empty"}.Validate())
	})
}

func TestDunningGenerator(t *testing.T) {
	gen := NewDunningGenerator()
	asOf := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	policy := DefaultDunningPolicy()

	overdueItem := func(t *testing.T, partnerID uuid.UUID, daysOverdue int, local float64) OpenItem {
		t.Helper()
		due := asOf.AddDate(0, 0, -daysOverdue)
		item, err := NewOpenItem(uuid.New(), PartnerTypeCustomer, partnerID, "INV-001", due, decimal.NewFromFloat(local), decimal.NewFromFloat(local))
		require.NoError(t, err)
		item.DueDate = &due
		return *item
	}

	t.Run("groups overdue items by partner and resolves level", func(t *testing.T) {
		partnerID := uuid.New()
		items := []OpenItem{
			overdueItem(t, partnerID, 45, 100),
			overdueItem(t, partnerID, 10, 50),
		}

		report, err := gen.Generate(asOf, policy, items)
		require.NoError(t, err)

		require.Len(t, report.Candidates, 1)
		c := report.Candidates[0]
		assert.Equal(t, partnerID, c.PartnerID)
		assert.Equal(t, 2, c.Level)
		assert.Equal(t, 45, c.DaysPastDue)
		assert.True(t, c.TotalPastDue.Equal(decimal.NewFromInt(150)))
		assert.Len(t, c.OpenItemIDs, 2)
	})

	t.Run("excludes items not past due", func(t *testing.T) {
		items := []OpenItem{overdueItem(t, uuid.New(), 0, 100)}
		report, err := gen.Generate(asOf, policy, items)
		require.NoError(t, err)
		assert.Empty(t, report.Candidates)
	})

	t.Run("excludes vendor items", func(t *testing.T) {
		due := asOf.AddDate(0, 0, -40)
		item, err := NewOpenItem(uuid.New(), PartnerTypeVendor, uuid.New(), "BILL-001", due, decimal.NewFromInt(-100), decimal.NewFromInt(-100))
		require.NoError(t, err)
		item.DueDate = &due

		report, err := gen.Generate(asOf, policy, []OpenItem{*item})
		require.NoError(t, err)
		assert.Empty(t, report.Candidates)
	})

	t.Run("excludes non-positive outstanding balances", func(t *testing.T) {
		credit := overdueItem(t, uuid.New(), 40, -100)
		report, err := gen.Generate(asOf, policy, []OpenItem{credit})
		require.NoError(t, err)
		assert.Empty(t, report.Candidates)
	})

	t.Run("candidates sort by descending total past due", func(t *testing.T) {
		small := uuid.New()
		big := uuid.New()
		items := []OpenItem{
			overdueItem(t, small, 40, 10),
			overdueItem(t, big, 5, 900),
		}

		report, err := gen.Generate(asOf, policy, items)
		require.NoError(t, err)
		require.Len(t, report.Candidates, 2)
		assert.Equal(t, big, report.Candidates[0].PartnerID)
		assert.Equal(t, small, report.Candidates[1].PartnerID)
	})

	t.Run("rejects invalid policy", func(t *testing.T) {
		_, err := gen.Generate(asOf, DunningPolicy{Name: "empty"}, nil)
		assert.Error(t, err)
	})
}
