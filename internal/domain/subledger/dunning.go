package subledger

import (
	"sort"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DunningPolicyLevel maps a days-past-due threshold to an escalation level
type DunningPolicyLevel struct {
	Level       int `json:"level"`
	DaysPastDue int `json:"days_past_due"`
}

// DunningPolicy is a named, ascending list of escalation levels
type DunningPolicy struct {
	Name   string               `json:"name"`
	Levels []DunningPolicyLevel `json:"levels"`
}

// DefaultDunningPolicy returns the standard three-level policy
func DefaultDunningPolicy() DunningPolicy {
	return DunningPolicy{
		Name: "standard",
		Levels: []DunningPolicyLevel{
			{Level: 1, DaysPastDue: 0},
			{Level: 2, DaysPastDue: 30},
			{Level: 3, DaysPastDue: 60},
		},
	}
}

// Validate checks that the policy has at least one level and that
// thresholds ascend
func (p DunningPolicy) Validate() error {
	if p.Name == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Dunning policy name cannot be empty")
	}
	if len(p.Levels) == 0 {
		return shared.NewDomainError("VALIDATION_ERROR", "Dunning policy must define at least one level")
	}
	for i := 1; i < len(p.Levels); i++ {
		if p.Levels[i].DaysPastDue <= p.Levels[i-1].DaysPastDue {
			return shared.NewDomainError("VALIDATION_ERROR", "Dunning policy thresholds must be strictly ascending")
		}
	}
	return nil
}

// ResolveLevel picks the most severe level whose threshold the given
// days past due has reached. Levels are iterated in ascending order and
// the last applicable one wins.
func (p DunningPolicy) ResolveLevel(daysPastDue int) int {
	level := 0
	for _, l := range p.Levels {
		if l.DaysPastDue <= daysPastDue {
			level = l.Level
		}
	}
	return level
}

// DunningCandidate is one partner due for a collections escalation
type DunningCandidate struct {
	PartnerID    uuid.UUID       `json:"partner_id"`
	Level        int             `json:"level"`
	DaysPastDue  int             `json:"days_past_due"`
	TotalPastDue decimal.Decimal `json:"total_past_due"`
	OpenItemIDs  []uuid.UUID     `json:"open_item_ids"`
}

// DunningReport is the stateless output of a dunning run. Producing and
// persisting the actual dunning notices is not this engine's concern.
type DunningReport struct {
	AsOfDate   time.Time          `json:"as_of_date"`
	PolicyName string             `json:"policy_name"`
	Candidates []DunningCandidate `json:"candidates"`
}

// DunningGenerator produces collections escalation candidates from
// overdue receivable items
type DunningGenerator struct{}

// NewDunningGenerator creates a new dunning generator
func NewDunningGenerator() *DunningGenerator {
	return &DunningGenerator{}
}

// Generate groups overdue receivables by partner and resolves each
// partner's escalation level from its most overdue item. Items not yet
// past due or without a positive outstanding balance are excluded.
// Candidates sort by descending total past due.
func (g *DunningGenerator) Generate(
	asOf time.Time,
	policy DunningPolicy,
	items []OpenItem,
) (*DunningReport, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	type partnerAgg struct {
		maxDaysPastDue int
		totalPastDue   decimal.Decimal
		openItemIDs    []uuid.UUID
	}
	byPartner := make(map[uuid.UUID]*partnerAgg)

	for i := range items {
		item := &items[i]
		if item.PartnerType != PartnerTypeCustomer || !item.Status.CanAllocate() {
			continue
		}
		if item.EffectiveDueDate().After(asOf) {
			continue
		}
		daysPastDue := item.DaysPastDue(asOf)
		if daysPastDue <= 0 {
			continue
		}
		outstanding := item.OutstandingAmount()
		if outstanding.LessThanOrEqual(decimal.Zero) {
			continue
		}

		agg, ok := byPartner[item.PartnerID]
		if !ok {
			agg = &partnerAgg{}
			byPartner[item.PartnerID] = agg
		}
		if daysPastDue > agg.maxDaysPastDue {
			agg.maxDaysPastDue = daysPastDue
		}
		agg.totalPastDue = agg.totalPastDue.Add(outstanding)
		agg.openItemIDs = append(agg.openItemIDs, item.ID)
	}

	candidates := make([]DunningCandidate, 0, len(byPartner))
	for partnerID, agg := range byPartner {
		candidates = append(candidates, DunningCandidate{
			PartnerID:    partnerID,
			Level:        policy.ResolveLevel(agg.maxDaysPastDue),
			DaysPastDue:  agg.maxDaysPastDue,
			TotalPastDue: agg.totalPastDue,
			OpenItemIDs:  agg.openItemIDs,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].TotalPastDue.Equal(candidates[j].TotalPastDue) {
			return candidates[i].TotalPastDue.GreaterThan(candidates[j].TotalPastDue)
		}
		return candidates[i].PartnerID.String() < candidates[j].PartnerID.String()
	})

	return &DunningReport{
		AsOfDate:   asOf,
		PolicyName: policy.Name,
		Candidates: candidates,
	}, nil
}
