package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormReceiptRepository implements subledger.ReceiptRepository using GORM
type GormReceiptRepository struct {
	db *gorm.DB
}

// NewGormReceiptRepository creates a new GORM receipt repository
func NewGormReceiptRepository(db *gorm.DB) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

// FindByIDForTenant finds a receipt by ID for a specific tenant
func (r *GormReceiptRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*subledger.Receipt, error) {
	var model models.ReceiptModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds a receipt by its number for a tenant
func (r *GormReceiptRepository) FindByNumber(ctx context.Context, tenantID uuid.UUID, receiptNumber string) (*subledger.Receipt, error) {
	var model models.ReceiptModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND receipt_number = ?", tenantID, receiptNumber).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAllForTenant finds receipts for a tenant
func (r *GormReceiptRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]subledger.Receipt, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if filter.Search != "" {
		query = query.Where("receipt_number LIKE ? OR reference LIKE ?",
			"%"+filter.Search+"%", "%"+filter.Search+"%")
	}
	if filter.OrderBy != "" {
		dir := "asc"
		if filter.OrderDir == "desc" {
			dir = "desc"
		}
		query = query.Order(fmt.Sprintf("%s %s", filter.OrderBy, dir))
	}
	if filter.PageSize > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.PageSize
		}
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var modelList []models.ReceiptModel
	if err := query.Find(&modelList).Error; err != nil {
		return nil, err
	}
	receipts := make([]subledger.Receipt, len(modelList))
	for i := range modelList {
		receipts[i] = *modelList[i].ToDomain()
	}
	return receipts, nil
}

// CountForTenant counts the tenant's receipts matching the filter
func (r *GormReceiptRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ReceiptModel{}).Where("tenant_id = ?", tenantID)
	if filter.Search != "" {
		query = query.Where("receipt_number LIKE ? OR reference LIKE ?",
			"%"+filter.Search+"%", "%"+filter.Search+"%")
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save creates or updates a receipt
func (r *GormReceiptRepository) Save(ctx context.Context, receipt *subledger.Receipt) error {
	var model models.ReceiptModel
	model.FromDomain(receipt)
	return r.db.WithContext(ctx).Save(&model).Error
}
