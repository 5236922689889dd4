package subledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bucket is an aging bucket definition. A nil ToDays means open-ended.
type Bucket struct {
	Label    string `json:"label"`
	FromDays int    `json:"from_days"`
	ToDays   *int   `json:"to_days"`
}

// Contains returns true if daysPastDue falls inside [FromDays, ToDays]
func (b Bucket) Contains(daysPastDue int) bool {
	if daysPastDue < b.FromDays {
		return false
	}
	return b.ToDays == nil || daysPastDue <= *b.ToDays
}

// DefaultBuckets returns the standard six-bucket aging table.
// Items due exactly today land in "Current"; one day overdue moves
// them to "1-30".
func DefaultBuckets() []Bucket {
	days := func(d int) *int { return &d }
	return []Bucket{
		{Label: "Current", FromDays: 0, ToDays: days(0)},
		{Label: "1-30", FromDays: 1, ToDays: days(30)},
		{Label: "31-60", FromDays: 31, ToDays: days(60)},
		{Label: "61-90", FromDays: 61, ToDays: days(90)},
		{Label: "91-120", FromDays: 91, ToDays: days(120)},
		{Label: "120+", FromDays: 121, ToDays: nil},
	}
}

// ValidateBuckets checks that the bucket table is contiguous and
// monotonically ascending: each bucket must start exactly one day after
// the previous one ends, and only the last bucket may be open-ended.
func ValidateBuckets(buckets []Bucket) error {
	if len(buckets) == 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "Bucket table cannot be empty")
	}
	for i, b := range buckets {
		if b.Label == "" {
			return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Bucket %d has no label", i))
		}
		if b.ToDays != nil && *b.ToDays < b.FromDays {
			return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Bucket %q has toDays before fromDays", b.Label))
		}
		if b.ToDays == nil && i != len(buckets)-1 {
			return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Open-ended bucket %q must be last", b.Label))
		}
		if i > 0 {
			prev := buckets[i-1]
			if prev.ToDays == nil || b.FromDays != *prev.ToDays+1 {
				return shared.NewDomainError("VALIDATION_ERROR", fmt.Sprintf("Bucket %q does not start where %q ends", b.Label, prev.Label))
			}
		}
	}
	return nil
}

// AgingRow is one partner's outstanding balance broken down by bucket
type AgingRow struct {
	PartnerID      uuid.UUID                  `json:"partner_id"`
	TotalsByBucket map[string]decimal.Decimal `json:"totals_by_bucket"`
	GrandTotal     decimal.Decimal            `json:"grand_total"`
}

// AgingReport is the full aging breakdown at a point in time
type AgingReport struct {
	AsOfDate   time.Time                  `json:"as_of_date"`
	Buckets    []Bucket                   `json:"buckets"`
	Rows       []AgingRow                 `json:"rows"`
	Totals     map[string]decimal.Decimal `json:"totals"`
	GrandTotal decimal.Decimal            `json:"grand_total"`
}

// AgingCalculator buckets outstanding balances by days past due
type AgingCalculator struct{}

// NewAgingCalculator creates a new aging calculator
func NewAgingCalculator() *AgingCalculator {
	return &AgingCalculator{}
}

// Calculate produces an aging report over the given open items as of a
// reference date. Only open and partially cleared items of the requested
// partner type contribute; receivables count as-is while payables are
// negated so vendor credit balances report as positive outstanding
// amounts. Dust balances below 1e-6 are skipped, zero-total partner
// rows are dropped, and rows sort by descending grand total with the
// partner id as tiebreak.
func (c *AgingCalculator) Calculate(
	asOf time.Time,
	buckets []Bucket,
	partnerType PartnerType,
	items []OpenItem,
) (*AgingReport, error) {
	if len(buckets) == 0 {
		buckets = DefaultBuckets()
	}
	if err := ValidateBuckets(buckets); err != nil {
		return nil, err
	}

	rowsByPartner := make(map[uuid.UUID]*AgingRow)
	totals := make(map[string]decimal.Decimal, len(buckets))
	grandTotal := decimal.Zero

	for i := range items {
		item := &items[i]
		if item.PartnerType != partnerType || !item.Status.CanAllocate() {
			continue
		}

		amount := item.OutstandingAmount()
		if amount.Abs().LessThan(DustEpsilon) {
			continue
		}

		daysPastDue := item.DaysPastDue(asOf)
		if daysPastDue < 0 {
			daysPastDue = 0
		}
		label := bucketFor(buckets, daysPastDue)

		row, ok := rowsByPartner[item.PartnerID]
		if !ok {
			row = &AgingRow{
				PartnerID:      item.PartnerID,
				TotalsByBucket: make(map[string]decimal.Decimal, len(buckets)),
			}
			rowsByPartner[item.PartnerID] = row
		}
		row.TotalsByBucket[label] = row.TotalsByBucket[label].Add(amount)
		row.GrandTotal = row.GrandTotal.Add(amount)

		totals[label] = totals[label].Add(amount)
		grandTotal = grandTotal.Add(amount)
	}

	rows := make([]AgingRow, 0, len(rowsByPartner))
	for _, row := range rowsByPartner {
		if row.GrandTotal.Round(2).IsZero() {
			continue
		}
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].GrandTotal.Equal(rows[j].GrandTotal) {
			return rows[i].GrandTotal.GreaterThan(rows[j].GrandTotal)
		}
		return rows[i].PartnerID.String() < rows[j].PartnerID.String()
	})

	return &AgingReport{
		AsOfDate:   asOf,
		Buckets:    buckets,
		Rows:       rows,
		Totals:     totals,
		GrandTotal: grandTotal,
	}, nil
}

// bucketFor selects the bucket containing daysPastDue, falling back to
// the last (open-ended) bucket.
func bucketFor(buckets []Bucket, daysPastDue int) string {
	for _, b := range buckets {
		if b.Contains(daysPastDue) {
			return b.Label
		}
	}
	return buckets[len(buckets)-1].Label
}
