package subledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WriteOffSkipReason tags why a requested item was not written off.
// Skips are reported internally only; the external result carries just
// the aggregate of processed items.
type WriteOffSkipReason string

const (
	WriteOffSkipNotFound       WriteOffSkipReason = "NOT_FOUND"
	WriteOffSkipTerminalStatus WriteOffSkipReason = "TERMINAL_STATUS"
	WriteOffSkipBelowThreshold WriteOffSkipReason = "BELOW_THRESHOLD"
)

// WriteOffItemResult is the per-item outcome of a write-off batch
type WriteOffItemResult struct {
	OpenItemID  uuid.UUID
	Processed   bool
	SkipReason  WriteOffSkipReason
	LocalAmount decimal.Decimal
}

// WriteOffPlan lists which requested items qualify for write-off and
// which are skipped, with the total local amount to be cleared
type WriteOffPlan struct {
	Items            []WriteOffItemResult
	ProcessedIDs     []uuid.UUID
	TotalLocalAmount decimal.Decimal
}

// WriteOffProcessor decides which items of a batch qualify for a forced
// clearing
type WriteOffProcessor struct{}

// NewWriteOffProcessor creates a new write-off processor
func NewWriteOffProcessor() *WriteOffProcessor {
	return &WriteOffProcessor{}
}

// Plan evaluates each requested item against the write-off
// preconditions: it must exist, must not already be in a terminal
// state, and must carry a remainder of at least the clearing epsilon.
// Failing items are tagged and skipped, never treated as errors.
func (p *WriteOffProcessor) Plan(requestedIDs []uuid.UUID, found map[uuid.UUID]*OpenItem) *WriteOffPlan {
	plan := &WriteOffPlan{
		Items:            make([]WriteOffItemResult, 0, len(requestedIDs)),
		ProcessedIDs:     make([]uuid.UUID, 0, len(requestedIDs)),
		TotalLocalAmount: decimal.Zero,
	}

	seen := make(map[uuid.UUID]bool, len(requestedIDs))
	for _, id := range requestedIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		item, ok := found[id]
		if !ok {
			plan.Items = append(plan.Items, WriteOffItemResult{OpenItemID: id, SkipReason: WriteOffSkipNotFound})
			continue
		}
		if item.Status.IsTerminal() {
			plan.Items = append(plan.Items, WriteOffItemResult{OpenItemID: id, SkipReason: WriteOffSkipTerminalStatus})
			continue
		}
		if item.LocalRemainingAmount.Abs().LessThan(ClearingEpsilon) {
			plan.Items = append(plan.Items, WriteOffItemResult{OpenItemID: id, SkipReason: WriteOffSkipBelowThreshold})
			continue
		}

		plan.Items = append(plan.Items, WriteOffItemResult{
			OpenItemID:  id,
			Processed:   true,
			LocalAmount: item.LocalRemainingAmount,
		})
		plan.ProcessedIDs = append(plan.ProcessedIDs, id)
		plan.TotalLocalAmount = plan.TotalLocalAmount.Add(item.LocalRemainingAmount)
	}

	return plan
}
