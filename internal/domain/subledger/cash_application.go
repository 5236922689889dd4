package subledger

import (
	"sort"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashApplicationOrder selects the candidate ordering key
type CashApplicationOrder string

const (
	OrderByDueDate      CashApplicationOrder = "DUE_DATE"
	OrderByDocumentDate CashApplicationOrder = "DOCUMENT_DATE"
	OrderByOldestEntry  CashApplicationOrder = "OLDEST_ENTRY"
)

// IsValid checks if the ordering key is valid
func (o CashApplicationOrder) IsValid() bool {
	switch o {
	case OrderByDueDate, OrderByDocumentDate, OrderByOldestEntry:
		return true
	}
	return false
}

// CashApplicationOptions controls how a receipt is applied to open items
type CashApplicationOptions struct {
	AsOf             time.Time
	MaxOpenItems     int
	OrderBy          CashApplicationOrder
	IncludeNotYetDue bool
	AllowOverapply   bool
	Notes            string
}

// PlannedAllocation is one step of a cash application plan: the amounts
// to allocate against a single open item. Amounts carry the sign of the
// item's remaining balance.
type PlannedAllocation struct {
	OpenItemID     uuid.UUID
	DocumentNumber string
	LocalAmount    decimal.Decimal
	DocumentAmount decimal.Decimal
}

// CashApplicationPlan is the computed distribution of a receipt's
// unapplied amount across candidate open items. It is a pure value;
// executing the plan is the caller's concern.
type CashApplicationPlan struct {
	Allocations        []PlannedAllocation
	AppliedAmount      decimal.Decimal
	RemainingUnapplied decimal.Decimal
}

// CashApplicationPlanner distributes a receipt's unapplied amount
// across open items
type CashApplicationPlanner struct{}

// NewCashApplicationPlanner creates a new planner
func NewCashApplicationPlanner() *CashApplicationPlanner {
	return &CashApplicationPlanner{}
}

// Plan computes how to distribute unapplied money across candidate
// items. Candidates are filtered to allocatable items not yet touched by
// this receipt, restricted to items due by the as-of date unless
// includeNotYetDue is set, ordered by the chosen key, and capped at
// maxOpenItems. The document-currency portion of each allocation is
// pro-rated from the local portion; a zero local remainder pro-rates
// to zero.
//
// Conservation holds for non-overapply runs: AppliedAmount plus
// RemainingUnapplied equals the unapplied amount passed in.
func (p *CashApplicationPlanner) Plan(
	unapplied decimal.Decimal,
	items []OpenItem,
	exclude map[uuid.UUID]bool,
	opts CashApplicationOptions,
) (*CashApplicationPlan, error) {
	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = OrderByDueDate
	}
	if !orderBy.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Unknown cash application ordering key")
	}

	plan := &CashApplicationPlan{
		Allocations:        make([]PlannedAllocation, 0),
		AppliedAmount:      decimal.Zero,
		RemainingUnapplied: unapplied,
	}
	// Nothing left to apply is a successful no-op, not an error.
	if unapplied.LessThanOrEqual(decimal.Zero) && !opts.AllowOverapply {
		plan.RemainingUnapplied = unapplied
		return plan, nil
	}

	candidates := make([]*OpenItem, 0, len(items))
	for i := range items {
		item := &items[i]
		if !item.Status.CanAllocate() {
			continue
		}
		if exclude[item.ID] {
			continue
		}
		if !opts.IncludeNotYetDue && item.EffectiveDueDate().After(opts.AsOf) {
			continue
		}
		candidates = append(candidates, item)
	}
	sortCandidates(candidates, orderBy)
	if opts.MaxOpenItems > 0 && len(candidates) > opts.MaxOpenItems {
		candidates = candidates[:opts.MaxOpenItems]
	}

	remaining := unapplied
	for _, item := range candidates {
		if remaining.LessThanOrEqual(decimal.Zero) && !opts.AllowOverapply {
			break
		}

		itemRemaining := item.LocalRemainingAmount
		magnitude := itemRemaining.Abs()
		if magnitude.LessThan(DustEpsilon) {
			continue
		}

		var allocMagnitude decimal.Decimal
		if opts.AllowOverapply {
			allocMagnitude = magnitude
		} else {
			allocMagnitude = decimal.Min(magnitude, remaining)
		}
		if allocMagnitude.LessThanOrEqual(decimal.Zero) {
			continue
		}

		// Re-sign so the allocation reduces the remainder towards zero.
		allocLocal := allocMagnitude
		if itemRemaining.IsNegative() {
			allocLocal = allocMagnitude.Neg()
		}

		// Pro-rate the document-currency portion from the local portion.
		docAlloc := decimal.Zero
		if !itemRemaining.IsZero() {
			docAlloc = item.DocumentRemainingAmount.Mul(allocLocal).Div(itemRemaining)
		}

		plan.Allocations = append(plan.Allocations, PlannedAllocation{
			OpenItemID:     item.ID,
			DocumentNumber: item.DocumentNumber,
			LocalAmount:    allocLocal,
			DocumentAmount: docAlloc,
		})
		plan.AppliedAmount = plan.AppliedAmount.Add(allocMagnitude)
		remaining = remaining.Sub(allocMagnitude)
	}

	plan.RemainingUnapplied = remaining
	return plan, nil
}

func sortCandidates(candidates []*OpenItem, orderBy CashApplicationOrder) {
	key := func(item *OpenItem) time.Time {
		switch orderBy {
		case OrderByDocumentDate:
			if item.DocumentDate != nil {
				return *item.DocumentDate
			}
			return item.ItemDate
		case OrderByOldestEntry:
			return item.CreatedAt
		default:
			return item.EffectiveDueDate()
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ki, kj := key(candidates[i]), key(candidates[j])
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
}
