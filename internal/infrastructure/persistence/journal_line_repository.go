package persistence

import (
	"context"
	"time"

	"github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormJournalLineRepository implements subledger.JournalLineRepository
// using GORM. The posting engine owns the journal_lines table; this
// repository only reads it.
type GormJournalLineRepository struct {
	db *gorm.DB
}

// NewGormJournalLineRepository creates a new GORM journal line repository
func NewGormJournalLineRepository(db *gorm.DB) *GormJournalLineRepository {
	return &GormJournalLineRepository{db: db}
}

// FindByBankAccount finds posting lines on a bank account within a date range
func (r *GormJournalLineRepository) FindByBankAccount(ctx context.Context, tenantID, bankAccountID uuid.UUID, from, to time.Time) ([]subledger.JournalLine, error) {
	var modelList []models.JournalLineModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND bank_account_id = ? AND entry_date >= ? AND entry_date <= ?",
			tenantID, bankAccountID, from, to).
		Order("entry_date asc").
		Find(&modelList).Error
	if err != nil {
		return nil, err
	}
	lines := make([]subledger.JournalLine, len(modelList))
	for i := range modelList {
		lines[i] = modelList[i].ToDomain()
	}
	return lines, nil
}
