package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupNumberReserverTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.NumberSequenceModel{}))
	return db
}

func TestNumberReserver_SequentialNumbers(t *testing.T) {
	db := setupNumberReserverTestDB(t)
	reserver := NewGormNumberReserver(db)
	tenantID := uuid.New()
	at := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	first, err := reserver.ReserveNumber(context.Background(), tenantID, subledger.NumberScopeWriteOff, at)
	require.NoError(t, err)
	assert.Equal(t, "WO-2024-000001", first)

	second, err := reserver.ReserveNumber(context.Background(), tenantID, subledger.NumberScopeWriteOff, at)
	require.NoError(t, err)
	assert.Equal(t, "WO-2024-000002", second)
}

func TestNumberReserver_ScopesAreIndependent(t *testing.T) {
	db := setupNumberReserverTestDB(t)
	reserver := NewGormNumberReserver(db)
	tenantID := uuid.New()
	at := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	_, err := reserver.ReserveNumber(context.Background(), tenantID, subledger.NumberScopeWriteOff, at)
	require.NoError(t, err)

	receiptNumber, err := reserver.ReserveNumber(context.Background(), tenantID, subledger.NumberScopeReceipt, at)
	require.NoError(t, err)
	assert.Equal(t, "RCT-2024-000001", receiptNumber)
}

func TestNumberReserver_ResetsPerYear(t *testing.T) {
	db := setupNumberReserverTestDB(t)
	reserver := NewGormNumberReserver(db)
	tenantID := uuid.New()

	_, err := reserver.ReserveNumber(context.Background(), tenantID, subledger.NumberScopeWriteOff,
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	nextYear, err := reserver.ReserveNumber(context.Background(), tenantID, subledger.NumberScopeWriteOff,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "WO-2025-000001", nextYear)
}

func TestNumberReserver_TenantsAreIsolated(t *testing.T) {
	db := setupNumberReserverTestDB(t)
	reserver := NewGormNumberReserver(db)
	at := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	_, err := reserver.ReserveNumber(context.Background(), uuid.New(), subledger.NumberScopeWriteOff, at)
	require.NoError(t, err)

	other, err := reserver.ReserveNumber(context.Background(), uuid.New(), subledger.NumberScopeWriteOff, at)
	require.NoError(t, err)
	assert.Equal(t, "WO-2024-000001", other)
}

func TestNumberReserver_UnknownScope(t *testing.T) {
	db := setupNumberReserverTestDB(t)
	reserver := NewGormNumberReserver(db)

	_, err := reserver.ReserveNumber(context.Background(), uuid.New(), "INVOICE", time.Now())
	assert.Error(t, err)
}
