package subledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalLine is a book-side posting line on a bank account. The
// journal-posting engine that creates these lives outside this engine;
// they are read here only to compute reconciliation match candidates.
type JournalLine struct {
	ID             uuid.UUID       `json:"id"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	JournalEntryID uuid.UUID       `json:"journal_entry_id"`
	EntryNumber    string          `json:"entry_number"`
	BankAccountID  uuid.UUID       `json:"bank_account_id"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	EntryDate      time.Time       `json:"entry_date"`
}
