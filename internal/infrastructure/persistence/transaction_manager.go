package persistence

import (
	"context"

	"github.com/erp/subledger/internal/domain/subledger"
	"gorm.io/gorm"
)

// GormTransactionManager implements subledger.TransactionManager: it
// opens one database transaction and hands the caller repositories
// bound to it.
type GormTransactionManager struct {
	db *gorm.DB
}

// NewGormTransactionManager creates a new GORM transaction manager
func NewGormTransactionManager(db *gorm.DB) *GormTransactionManager {
	return &GormTransactionManager{db: db}
}

// InTransaction runs fn with transaction-bound repositories; the
// transaction commits when fn returns nil and rolls back otherwise
func (m *GormTransactionManager) InTransaction(ctx context.Context, fn func(repos subledger.Repositories) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(subledger.Repositories{
			OpenItems:   NewGormOpenItemRepository(tx),
			Receipts:    NewGormReceiptRepository(tx),
			Allocations: NewGormAllocationRepository(tx),
			Statements:  NewGormStatementStore(tx),
			Numbers:     NewGormNumberReserver(tx),
		})
	})
}
