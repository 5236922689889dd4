package models

import (
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel is the persistence counterpart of shared.BaseEntity
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// FromDomainBaseEntity copies the identity fields from a domain entity
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// PopulateBaseEntity copies the identity fields back onto a domain entity
func (m *BaseModel) PopulateBaseEntity(e *shared.BaseEntity) {
	e.ID = m.ID
	e.CreatedAt = m.CreatedAt
	e.UpdatedAt = m.UpdatedAt
}

// AggregateModel adds the optimistic-lock version to BaseModel
type AggregateModel struct {
	BaseModel
	Version int `gorm:"not null;default:1"`
}

// TenantAggregateModel adds tenant scoping to AggregateModel
type TenantAggregateModel struct {
	AggregateModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
}

// FromDomainTenantAggregateRoot copies base fields from a domain aggregate
func (m *TenantAggregateModel) FromDomainTenantAggregateRoot(root shared.TenantAggregateRoot) {
	m.BaseModel.FromDomainBaseEntity(root.BaseEntity)
	m.Version = root.Version
	m.TenantID = root.TenantID
}

// PopulateTenantAggregateRoot copies base fields back onto a domain aggregate
func (m *TenantAggregateModel) PopulateTenantAggregateRoot(root *shared.TenantAggregateRoot) {
	m.BaseModel.PopulateBaseEntity(&root.BaseEntity)
	root.Version = m.Version
	root.TenantID = m.TenantID
}
