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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormOpenItemRepository implements subledger.OpenItemRepository using GORM
type GormOpenItemRepository struct {
	db *gorm.DB
}

// NewGormOpenItemRepository creates a new GORM open item repository
func NewGormOpenItemRepository(db *gorm.DB) *GormOpenItemRepository {
	return &GormOpenItemRepository{db: db}
}

// FindByIDForTenant finds an open item by ID for a specific tenant
func (r *GormOpenItemRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*subledger.OpenItem, error) {
	var model models.OpenItemModel
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

// FindByIDsForTenant finds the subset of the given ids that exist for the tenant
func (r *GormOpenItemRepository) FindByIDsForTenant(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]subledger.OpenItem, error) {
	if len(ids) == 0 {
		return []subledger.OpenItem{}, nil
	}
	var modelList []models.OpenItemModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&modelList).Error
	if err != nil {
		return nil, err
	}
	items := make([]subledger.OpenItem, len(modelList))
	for i := range modelList {
		items[i] = *modelList[i].ToDomain()
	}
	return items, nil
}

// FindAllForTenant finds open items for a tenant with filtering
func (r *GormOpenItemRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter subledger.OpenItemFilter) ([]subledger.OpenItem, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Where("tenant_id = ?", tenantID), filter)

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

	var modelList []models.OpenItemModel
	if err := query.Find(&modelList).Error; err != nil {
		return nil, err
	}
	items := make([]subledger.OpenItem, len(modelList))
	for i := range modelList {
		items[i] = *modelList[i].ToDomain()
	}
	return items, nil
}

// FindAllocatable finds open and partially cleared items of a partner
func (r *GormOpenItemRepository) FindAllocatable(ctx context.Context, tenantID uuid.UUID, partnerType subledger.PartnerType, partnerID uuid.UUID) ([]subledger.OpenItem, error) {
	var modelList []models.OpenItemModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND partner_type = ? AND partner_id = ? AND status IN ?",
			tenantID, partnerType.String(), partnerID, allocatableStatuses()).
		Find(&modelList).Error
	if err != nil {
		return nil, err
	}
	items := make([]subledger.OpenItem, len(modelList))
	for i := range modelList {
		items[i] = *modelList[i].ToDomain()
	}
	return items, nil
}

// FindOutstanding finds all open and partially cleared items of a partner type
func (r *GormOpenItemRepository) FindOutstanding(ctx context.Context, tenantID uuid.UUID, partnerType subledger.PartnerType, partnerID *uuid.UUID) ([]subledger.OpenItem, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND partner_type = ? AND status IN ?",
			tenantID, partnerType.String(), allocatableStatuses())
	if partnerID != nil {
		query = query.Where("partner_id = ?", *partnerID)
	}

	var modelList []models.OpenItemModel
	if err := query.Find(&modelList).Error; err != nil {
		return nil, err
	}
	items := make([]subledger.OpenItem, len(modelList))
	for i := range modelList {
		items[i] = *modelList[i].ToDomain()
	}
	return items, nil
}

// Save creates or updates an open item
func (r *GormOpenItemRepository) Save(ctx context.Context, item *subledger.OpenItem) error {
	var model models.OpenItemModel
	model.FromDomain(item)
	return r.db.WithContext(ctx).Save(&model).Error
}

// SaveWithLock saves with optimistic locking
func (r *GormOpenItemRepository) SaveWithLock(ctx context.Context, item *subledger.OpenItem) error {
	var model models.OpenItemModel
	model.FromDomain(item)

	// Select("*") forces zero-valued columns (a cleared remaining amount)
	// to be written as well.
	result := r.db.WithContext(ctx).
		Model(&models.OpenItemModel{}).
		Where("id = ? AND version = ?", item.ID, item.Version-1).
		Select("*").
		Updates(&model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("OPTIMISTIC_LOCK_ERROR", "The record has been modified by another transaction")
	}
	return nil
}

// BulkClearByJournalEntry force-clears all still-allocatable open items
// tied to a journal entry on a bank account and stamps the clearing
// fields. Returns the number of rows affected.
func (r *GormOpenItemRepository) BulkClearByJournalEntry(ctx context.Context, tenantID, journalEntryID, bankAccountID uuid.UUID, clearingDate time.Time, clearedBy uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.OpenItemModel{}).
		Where("tenant_id = ? AND journal_entry_id = ? AND bank_account_id = ? AND status IN ?",
			tenantID, journalEntryID, bankAccountID, allocatableStatuses()).
		Updates(map[string]interface{}{
			"status":                    subledger.OpenItemStatusCleared.String(),
			"local_remaining_amount":    decimal.Zero,
			"document_remaining_amount": decimal.Zero,
			"clearing_date":             clearingDate,
			"cleared_by":                clearedBy,
			"updated_at":                time.Now(),
			"version":                   gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountForTenant counts open items for a tenant with optional filters
func (r *GormOpenItemRepository) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter subledger.OpenItemFilter) (int64, error) {
	var count int64
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&models.OpenItemModel{}).Where("tenant_id = ?", tenantID),
		filter,
	)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SumOutstandingByPartner calculates the total outstanding amount for a partner
func (r *GormOpenItemRepository) SumOutstandingByPartner(ctx context.Context, tenantID uuid.UUID, partnerType subledger.PartnerType, partnerID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.OpenItemModel{}).
		Select("COALESCE(SUM(local_remaining_amount), 0) as total").
		Where("tenant_id = ? AND partner_type = ? AND partner_id = ? AND status IN ?",
			tenantID, partnerType.String(), partnerID, allocatableStatuses()).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	if partnerType == subledger.PartnerTypeVendor {
		return result.Total.Neg(), nil
	}
	return result.Total, nil
}

func (r *GormOpenItemRepository) applyFilter(query *gorm.DB, filter subledger.OpenItemFilter) *gorm.DB {
	if filter.PartnerType != nil {
		query = query.Where("partner_type = ?", filter.PartnerType.String())
	}
	if filter.PartnerID != nil {
		query = query.Where("partner_id = ?", *filter.PartnerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.DueBefore != nil {
		query = query.Where("COALESCE(due_date, document_date, item_date) <= ?", *filter.DueBefore)
	}
	if filter.DueAfter != nil {
		query = query.Where("COALESCE(due_date, document_date, item_date) >= ?", *filter.DueAfter)
	}
	if filter.MinAmount != nil {
		query = query.Where("ABS(local_remaining_amount) >= ?", *filter.MinAmount)
	}
	if filter.Search != "" {
		query = query.Where("document_number LIKE ?", "%"+filter.Search+"%")
	}
	return query
}

func allocatableStatuses() []string {
	return []string{
		subledger.OpenItemStatusOpen.String(),
		subledger.OpenItemStatusPartiallyCleared.String(),
	}
}
