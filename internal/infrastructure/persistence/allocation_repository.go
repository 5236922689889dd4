package persistence

import (
	"context"

	"github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormAllocationRepository implements subledger.AllocationRepository
// using GORM. Both record kinds are append-only: Create only, never
// Update or Delete.
type GormAllocationRepository struct {
	db *gorm.DB
}

// NewGormAllocationRepository creates a new GORM allocation repository
func NewGormAllocationRepository(db *gorm.DB) *GormAllocationRepository {
	return &GormAllocationRepository{db: db}
}

// SaveOpenItemAllocation appends one clearing event record
func (r *GormAllocationRepository) SaveOpenItemAllocation(ctx context.Context, alloc *subledger.OpenItemAllocation) error {
	var model models.OpenItemAllocationModel
	model.FromDomain(alloc)
	return r.db.WithContext(ctx).Create(&model).Error
}

// FindByOpenItem returns the clearing trail of one open item, oldest first
func (r *GormAllocationRepository) FindByOpenItem(ctx context.Context, tenantID, openItemID uuid.UUID) ([]subledger.OpenItemAllocation, error) {
	var modelList []models.OpenItemAllocationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND open_item_id = ?", tenantID, openItemID).
		Order("allocated_at asc").
		Find(&modelList).Error
	if err != nil {
		return nil, err
	}
	allocs := make([]subledger.OpenItemAllocation, len(modelList))
	for i := range modelList {
		allocs[i] = *modelList[i].ToDomain()
	}
	return allocs, nil
}

// SaveReceiptAllocation appends one receipt-to-item trace record
func (r *GormAllocationRepository) SaveReceiptAllocation(ctx context.Context, alloc *subledger.ReceiptAllocation) error {
	var model models.ReceiptAllocationModel
	model.FromDomain(alloc)
	return r.db.WithContext(ctx).Create(&model).Error
}

// FindByReceipt returns all allocations made by one receipt, oldest first
func (r *GormAllocationRepository) FindByReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) ([]subledger.ReceiptAllocation, error) {
	var modelList []models.ReceiptAllocationModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND receipt_id = ?", tenantID, receiptID).
		Order("allocated_at asc").
		Find(&modelList).Error
	if err != nil {
		return nil, err
	}
	allocs := make([]subledger.ReceiptAllocation, len(modelList))
	for i := range modelList {
		allocs[i] = *modelList[i].ToDomain()
	}
	return allocs, nil
}

// SumAllocatedByReceipt sums the amounts already allocated by a receipt
func (r *GormAllocationRepository) SumAllocatedByReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.ReceiptAllocationModel{}).
		Select("COALESCE(SUM(allocated_amount), 0) as total").
		Where("tenant_id = ? AND receipt_id = ?", tenantID, receiptID).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}
