package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	"github.com/erp/subledger/internal/domain/subledger"
	"github.com/erp/subledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	documentKindStatement    = "bank_statement"
	documentKindMatchingRule = "matching_rule"
)

// documentStore is the shared versioned-JSON-document persistence both
// statement and matching-rule stores are built on. A document save with
// a stale version fails with a concurrency conflict.
type documentStore struct {
	db *gorm.DB
}

func (s *documentStore) load(ctx context.Context, tenantID, id uuid.UUID, kind string, out interface{}) error {
	var model models.DocumentModel
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND kind = ?", tenantID, id, kind).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(model.Body, out); err != nil {
		return fmt.Errorf("failed to decode %s document %s: %w", kind, id, err)
	}
	return nil
}

func (s *documentStore) loadAll(ctx context.Context, tenantID uuid.UUID, kind string) ([][]byte, error) {
	var modelList []models.DocumentModel
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND kind = ?", tenantID, kind).
		Order("created_at asc").
		Find(&modelList).Error
	if err != nil {
		return nil, err
	}
	bodies := make([][]byte, len(modelList))
	for i := range modelList {
		bodies[i] = modelList[i].Body
	}
	return bodies, nil
}

// save writes a document. Version 1 inserts; anything later updates
// with a version check against the previously stored version.
func (s *documentStore) save(ctx context.Context, tenantID, id uuid.UUID, kind string, version int, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s document %s: %w", kind, id, err)
	}

	now := time.Now()
	if version <= 1 {
		model := models.DocumentModel{
			ID:        id,
			TenantID:  tenantID,
			Kind:      kind,
			Version:   1,
			Body:      body,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.db.WithContext(ctx).Create(&model).Error
	}

	result := s.db.WithContext(ctx).
		Model(&models.DocumentModel{}).
		Where("tenant_id = ? AND id = ? AND kind = ? AND version = ?", tenantID, id, kind, version-1).
		Updates(map[string]interface{}{
			"version":    version,
			"body":       body,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("OPTIMISTIC_LOCK_ERROR", "The document has been modified by another transaction")
	}
	return nil
}

func (s *documentStore) delete(ctx context.Context, tenantID, id uuid.UUID, kind string) error {
	result := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ? AND kind = ?", tenantID, id, kind).
		Delete(&models.DocumentModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GormStatementStore implements subledger.StatementStore over the
// versioned document table
type GormStatementStore struct {
	documentStore
}

// NewGormStatementStore creates a new statement document store
func NewGormStatementStore(db *gorm.DB) *GormStatementStore {
	return &GormStatementStore{documentStore{db: db}}
}

// FindByIDForTenant loads a statement document
func (s *GormStatementStore) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*subledger.BankStatement, error) {
	var statement subledger.BankStatement
	if err := s.load(ctx, tenantID, id, documentKindStatement, &statement); err != nil {
		return nil, err
	}
	return &statement, nil
}

// FindAllForTenant lists statement documents for a tenant
func (s *GormStatementStore) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]subledger.BankStatement, error) {
	bodies, err := s.loadAll(ctx, tenantID, documentKindStatement)
	if err != nil {
		return nil, err
	}
	statements := make([]subledger.BankStatement, 0, len(bodies))
	for _, body := range bodies {
		var statement subledger.BankStatement
		if err := json.Unmarshal(body, &statement); err != nil {
			return nil, fmt.Errorf("failed to decode statement document: %w", err)
		}
		statements = append(statements, statement)
	}
	sort.SliceStable(statements, func(i, j int) bool {
		return statements[i].PeriodStart.After(statements[j].PeriodStart)
	})
	if filter.PageSize > 0 {
		offset := 0
		if filter.Page > 1 {
			offset = (filter.Page - 1) * filter.PageSize
		}
		if offset >= len(statements) {
			return []subledger.BankStatement{}, nil
		}
		end := offset + filter.PageSize
		if end > len(statements) {
			end = len(statements)
		}
		statements = statements[offset:end]
	}
	return statements, nil
}

// Save writes a statement document, checking the version
func (s *GormStatementStore) Save(ctx context.Context, statement *subledger.BankStatement) error {
	return s.save(ctx, statement.TenantID, statement.ID, documentKindStatement, statement.Version, statement)
}

// GormMatchingRuleStore implements subledger.MatchingRuleStore over the
// versioned document table
type GormMatchingRuleStore struct {
	documentStore
}

// NewGormMatchingRuleStore creates a new matching rule document store
func NewGormMatchingRuleStore(db *gorm.DB) *GormMatchingRuleStore {
	return &GormMatchingRuleStore{documentStore{db: db}}
}

// FindByIDForTenant loads a rule document
func (s *GormMatchingRuleStore) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*subledger.BankMatchingRule, error) {
	var rule subledger.BankMatchingRule
	if err := s.load(ctx, tenantID, id, documentKindMatchingRule, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindEnabledForTenant lists enabled rules ordered by ascending priority
func (s *GormMatchingRuleStore) FindEnabledForTenant(ctx context.Context, tenantID uuid.UUID) ([]subledger.BankMatchingRule, error) {
	rules, err := s.FindAllForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	enabled := make([]subledger.BankMatchingRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	return enabled, nil
}

// FindAllForTenant lists all rule documents for a tenant, ordered by
// ascending priority with name as tie-break
func (s *GormMatchingRuleStore) FindAllForTenant(ctx context.Context, tenantID uuid.UUID) ([]subledger.BankMatchingRule, error) {
	bodies, err := s.loadAll(ctx, tenantID, documentKindMatchingRule)
	if err != nil {
		return nil, err
	}
	rules := make([]subledger.BankMatchingRule, 0, len(bodies))
	for _, body := range bodies {
		var rule subledger.BankMatchingRule
		if err := json.Unmarshal(body, &rule); err != nil {
			return nil, fmt.Errorf("failed to decode matching rule document: %w", err)
		}
		rules = append(rules, rule)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].Name < rules[j].Name
	})
	return rules, nil
}

// Save writes a rule document, checking the version
func (s *GormMatchingRuleStore) Save(ctx context.Context, rule *subledger.BankMatchingRule) error {
	return s.save(ctx, rule.TenantID, rule.ID, documentKindMatchingRule, rule.Version, rule)
}

// Delete removes a rule document
func (s *GormMatchingRuleStore) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.delete(ctx, tenantID, id, documentKindMatchingRule)
}
