package subledger

import (
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Matching defaults: inclusive amount tolerance and the posting date
// window around the statement period, in days.
var DefaultAmountTolerance = decimal.NewFromFloat(0.01)

const (
	DefaultDateWindowDays = 3
	maxBookMatchesPerLine = 5

	confidenceBase        = 50
	confidenceExactAmount = 40
	confidenceCloseAmount = 25
	confidenceSameDay     = 10
	confidenceNearDay     = 5
	confidenceReference   = 5
)

// exactAmountEpsilon distinguishes an exact amount match from one that
// is merely inside the tolerance.
var exactAmountEpsilon = decimal.NewFromFloat(1e-9)

// RuleMatch is one matching rule that applies to a statement line,
// carrying the rule's labelling and posting hints
type RuleMatch struct {
	RuleID             uuid.UUID  `json:"rule_id"`
	RuleName           string     `json:"rule_name"`
	Priority           int        `json:"priority"`
	Label              string     `json:"label"`
	SuggestedAccountID *uuid.UUID `json:"suggested_account_id,omitempty"`
	PostingTemplate    string     `json:"posting_template,omitempty"`
}

// BookMatch is one candidate book posting for a statement line with its
// confidence score
type BookMatch struct {
	JournalLineID  uuid.UUID       `json:"journal_line_id"`
	JournalEntryID uuid.UUID       `json:"journal_entry_id"`
	EntryNumber    string          `json:"entry_number"`
	Amount         decimal.Decimal `json:"amount"`
	EntryDate      time.Time       `json:"entry_date"`
	Confidence     int             `json:"confidence"`
}

// LineSuggestion collects rule and book matches for one statement line
type LineSuggestion struct {
	LineID      uuid.UUID       `json:"line_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	EntryDate   time.Time       `json:"entry_date"`
	RuleMatches []RuleMatch     `json:"rule_matches"`
	BookMatches []BookMatch     `json:"book_matches"`
}

// MatchSuggestions is the read-only result of a suggestion run
type MatchSuggestions struct {
	StatementID     uuid.UUID        `json:"statement_id"`
	AmountTolerance decimal.Decimal  `json:"amount_tolerance"`
	DateWindowDays  int              `json:"date_window_days"`
	Lines           []LineSuggestion `json:"lines"`
}

// StatementMatcher computes match suggestions between statement lines
// and book postings. It holds no state and mutates nothing: identical
// inputs always produce identical suggestions in identical order.
type StatementMatcher struct{}

// NewStatementMatcher creates a new statement matcher
func NewStatementMatcher() *StatementMatcher {
	return &StatementMatcher{}
}

// Suggest evaluates enabled rules in ascending priority order against
// every unmatched statement line and scores candidate book postings;
// lines already matched to an entry are skipped. A posting
// qualifies when its amount is inside the inclusive tolerance and its
// date inside the window; the score starts at 50 and earns bonuses for
// exact amount, same-day dates, and a reference appearing in the
// posting's description or entry number. The top five postings per line
// are returned, ordered by descending confidence with entry date and id
// as tiebreaks.
func (m *StatementMatcher) Suggest(
	statement *BankStatement,
	rules []BankMatchingRule,
	postings []JournalLine,
	amountTolerance decimal.Decimal,
	dateWindowDays int,
) *MatchSuggestions {
	if amountTolerance.IsNegative() {
		amountTolerance = DefaultAmountTolerance
	}
	if dateWindowDays < 0 {
		dateWindowDays = DefaultDateWindowDays
	}

	enabled := make([]*BankMatchingRule, 0, len(rules))
	for i := range rules {
		if rules[i].Enabled {
			enabled = append(enabled, &rules[i])
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].Priority != enabled[j].Priority {
			return enabled[i].Priority < enabled[j].Priority
		}
		return enabled[i].Name < enabled[j].Name
	})

	result := &MatchSuggestions{
		StatementID:     statement.ID,
		AmountTolerance: amountTolerance,
		DateWindowDays:  dateWindowDays,
		Lines:           make([]LineSuggestion, 0, len(statement.Lines)),
	}

	for i := range statement.Lines {
		line := &statement.Lines[i]
		if line.IsMatched() {
			continue
		}
		suggestion := LineSuggestion{
			LineID:      line.ID,
			Description: line.Description,
			Amount:      line.Amount,
			EntryDate:   line.EntryDate,
			RuleMatches: make([]RuleMatch, 0),
			BookMatches: make([]BookMatch, 0),
		}

		for _, rule := range enabled {
			if rule.Matches(line) {
				suggestion.RuleMatches = append(suggestion.RuleMatches, RuleMatch{
					RuleID:             rule.ID,
					RuleName:           rule.Name,
					Priority:           rule.Priority,
					Label:              rule.Action.Label,
					SuggestedAccountID: rule.Action.SuggestedAccountID,
					PostingTemplate:    rule.Action.PostingTemplate,
				})
			}
		}

		for j := range postings {
			posting := &postings[j]
			amountDiff := posting.Amount.Sub(line.Amount).Abs()
			if amountDiff.GreaterThan(amountTolerance) {
				continue
			}
			dayDiff := calendarDayDiff(line.EntryDate, posting.EntryDate)
			if dayDiff < 0 {
				dayDiff = -dayDiff
			}
			if dayDiff > dateWindowDays {
				continue
			}

			suggestion.BookMatches = append(suggestion.BookMatches, BookMatch{
				JournalLineID:  posting.ID,
				JournalEntryID: posting.JournalEntryID,
				EntryNumber:    posting.EntryNumber,
				Amount:         posting.Amount,
				EntryDate:      posting.EntryDate,
				Confidence:     scoreMatch(line, posting, amountDiff, dayDiff),
			})
		}

		sort.SliceStable(suggestion.BookMatches, func(a, b int) bool {
			ma, mb := suggestion.BookMatches[a], suggestion.BookMatches[b]
			if ma.Confidence != mb.Confidence {
				return ma.Confidence > mb.Confidence
			}
			if !ma.EntryDate.Equal(mb.EntryDate) {
				return ma.EntryDate.Before(mb.EntryDate)
			}
			return ma.JournalLineID.String() < mb.JournalLineID.String()
		})
		if len(suggestion.BookMatches) > maxBookMatchesPerLine {
			suggestion.BookMatches = suggestion.BookMatches[:maxBookMatchesPerLine]
		}

		result.Lines = append(result.Lines, suggestion)
	}

	return result
}

func scoreMatch(line *BankStatementLine, posting *JournalLine, amountDiff decimal.Decimal, dayDiff int) int {
	score := confidenceBase
	if amountDiff.LessThan(exactAmountEpsilon) {
		score += confidenceExactAmount
	} else {
		score += confidenceCloseAmount
	}
	if dayDiff == 0 {
		score += confidenceSameDay
	} else {
		score += confidenceNearDay
	}
	if line.Reference != "" {
		ref := strings.ToLower(line.Reference)
		if strings.Contains(strings.ToLower(posting.Description), ref) ||
			strings.Contains(strings.ToLower(posting.EntryNumber), ref) {
			score += confidenceReference
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// calendarDayDiff returns b's calendar day minus a's calendar day
func calendarDayDiff(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	at := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bt := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bt.Sub(at).Hours() / 24)
}

func containsAnyFold(text string, needles []string) bool {
	lower := strings.ToLower(text)
	for _, n := range needles {
		if n != "" && strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// fuzzyContainsAny is a best-effort counterparty check: exact
// case-insensitive substring first, then a per-word edit-distance
// comparison tolerating small spelling differences.
func fuzzyContainsAny(text string, needles []string) bool {
	if containsAnyFold(text, needles) {
		return true
	}
	words := strings.Fields(strings.ToLower(text))
	for _, needle := range needles {
		n := strings.ToLower(needle)
		if n == "" {
			continue
		}
		maxDist := len(n) / 4
		if maxDist < 1 {
			maxDist = 1
		}
		for _, w := range words {
			if levenshtein.ComputeDistance(w, n) <= maxDist {
				return true
			}
		}
	}
	return false
}
