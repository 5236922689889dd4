package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var numberPrefixes = map[string]string{
	subledger.NumberScopeWriteOff: "WO",
	subledger.NumberScopeReceipt:  "RCT",
}

// GormNumberReserver implements subledger.NumberReserver backed by a
// per-tenant counter row. Sequences reset yearly; concurrent reservers
// serialize on the row lock taken by the counter update.
type GormNumberReserver struct {
	db *gorm.DB
}

// NewGormNumberReserver creates a new GORM number reserver
func NewGormNumberReserver(db *gorm.DB) *GormNumberReserver {
	return &GormNumberReserver{db: db}
}

// ReserveNumber returns the next number for the scope, formatted as
// PREFIX-YYYY-NNNNNN
func (r *GormNumberReserver) ReserveNumber(ctx context.Context, tenantID uuid.UUID, scopeKey string, at time.Time) (string, error) {
	prefix, ok := numberPrefixes[scopeKey]
	if !ok {
		return "", shared.NewDomainError("INVALID_NUMBER_SCOPE", fmt.Sprintf("Unknown number scope %q", scopeKey))
	}

	periodKey := fmt.Sprintf("%d", at.Year())

	result := r.db.WithContext(ctx).
		Model(&models.NumberSequenceModel{}).
		Where("tenant_id = ? AND scope_key = ? AND period_key = ?", tenantID, scopeKey, periodKey).
		Updates(map[string]interface{}{
			"last_value": gorm.Expr("last_value + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return "", result.Error
	}

	if result.RowsAffected == 0 {
		now := time.Now()
		seq := models.NumberSequenceModel{
			ID:        uuid.New(),
			TenantID:  tenantID,
			ScopeKey:  scopeKey,
			PeriodKey: periodKey,
			LastValue: 1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.db.WithContext(ctx).Create(&seq).Error; err != nil {
			// Another transaction created the row first; bump it instead.
			if !isUniqueViolation(err) {
				return "", err
			}
			retry := r.db.WithContext(ctx).
				Model(&models.NumberSequenceModel{}).
				Where("tenant_id = ? AND scope_key = ? AND period_key = ?", tenantID, scopeKey, periodKey).
				Updates(map[string]interface{}{
					"last_value": gorm.Expr("last_value + 1"),
					"updated_at": time.Now(),
				})
			if retry.Error != nil {
				return "", retry.Error
			}
		}
	}

	var seq models.NumberSequenceModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND scope_key = ? AND period_key = ?", tenantID, scopeKey, periodKey).
		First(&seq).Error
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%06d", prefix, periodKey, seq.LastValue), nil
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
