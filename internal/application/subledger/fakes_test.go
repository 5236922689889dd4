package subledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/subledger/internal/domain/shared"
	domain "github.com/erp/subledger/internal/domain/subledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// In-memory fakes over the domain repository interfaces. They cover
// the behavior the services depend on, not every filter permutation.

type fakeOpenItemRepo struct {
	items map[uuid.UUID]*domain.OpenItem
	// saveWithLockErr, when set, is returned by the next SaveWithLock call
	saveWithLockErr error
}

func newFakeOpenItemRepo(items ...*domain.OpenItem) *fakeOpenItemRepo {
	repo := &fakeOpenItemRepo{items: make(map[uuid.UUID]*domain.OpenItem)}
	for _, item := range items {
		copied := *item
		repo.items[item.ID] = &copied
	}
	return repo
}

func (r *fakeOpenItemRepo) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*domain.OpenItem, error) {
	item, ok := r.items[id]
	if !ok || item.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (r *fakeOpenItemRepo) FindByIDsForTenant(_ context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]domain.OpenItem, error) {
	out := make([]domain.OpenItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := r.items[id]; ok && item.TenantID == tenantID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *fakeOpenItemRepo) FindAllForTenant(_ context.Context, tenantID uuid.UUID, filter domain.OpenItemFilter) ([]domain.OpenItem, error) {
	out := make([]domain.OpenItem, 0, len(r.items))
	for _, item := range r.items {
		if item.TenantID != tenantID {
			continue
		}
		if filter.PartnerType != nil && item.PartnerType != *filter.PartnerType {
			continue
		}
		if filter.PartnerID != nil && item.PartnerID != *filter.PartnerID {
			continue
		}
		if filter.Status != nil && item.Status != *filter.Status {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentNumber < out[j].DocumentNumber })
	return out, nil
}

func (r *fakeOpenItemRepo) FindAllocatable(_ context.Context, tenantID uuid.UUID, partnerType domain.PartnerType, partnerID uuid.UUID) ([]domain.OpenItem, error) {
	out := make([]domain.OpenItem, 0, len(r.items))
	for _, item := range r.items {
		if item.TenantID != tenantID || item.PartnerType != partnerType || item.PartnerID != partnerID {
			continue
		}
		if !item.Status.CanAllocate() {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentNumber < out[j].DocumentNumber })
	return out, nil
}

func (r *fakeOpenItemRepo) FindOutstanding(_ context.Context, tenantID uuid.UUID, partnerType domain.PartnerType, partnerID *uuid.UUID) ([]domain.OpenItem, error) {
	out := make([]domain.OpenItem, 0, len(r.items))
	for _, item := range r.items {
		if item.TenantID != tenantID || item.PartnerType != partnerType {
			continue
		}
		if partnerID != nil && item.PartnerID != *partnerID {
			continue
		}
		if !item.Status.CanAllocate() {
			continue
		}
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentNumber < out[j].DocumentNumber })
	return out, nil
}

func (r *fakeOpenItemRepo) Save(_ context.Context, item *domain.OpenItem) error {
	copied := *item
	r.items[item.ID] = &copied
	return nil
}

func (r *fakeOpenItemRepo) SaveWithLock(_ context.Context, item *domain.OpenItem) error {
	if r.saveWithLockErr != nil {
		return r.saveWithLockErr
	}
	stored, ok := r.items[item.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if stored.Version != item.Version-1 {
		return shared.NewDomainError("OPTIMISTIC_LOCK_ERROR", "Open item was modified concurrently")
	}
	copied := *item
	r.items[item.ID] = &copied
	return nil
}

func (r *fakeOpenItemRepo) BulkClearByJournalEntry(_ context.Context, tenantID, journalEntryID, bankAccountID uuid.UUID, clearingDate time.Time, clearedBy uuid.UUID) (int64, error) {
	var cleared int64
	for _, item := range r.items {
		if item.TenantID != tenantID || item.JournalEntryID == nil || *item.JournalEntryID != journalEntryID {
			continue
		}
		if item.BankAccountID == nil || *item.BankAccountID != bankAccountID {
			continue
		}
		if !item.Status.CanAllocate() {
			continue
		}
		item.Status = domain.OpenItemStatusCleared
		item.LocalRemainingAmount = decimal.Zero
		item.DocumentRemainingAmount = decimal.Zero
		item.ClearingDate = &clearingDate
		item.ClearedBy = &clearedBy
		item.IncrementVersion()
		cleared++
	}
	return cleared, nil
}

func (r *fakeOpenItemRepo) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter domain.OpenItemFilter) (int64, error) {
	items, err := r.FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

func (r *fakeOpenItemRepo) SumOutstandingByPartner(_ context.Context, tenantID uuid.UUID, partnerType domain.PartnerType, partnerID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range r.items {
		if item.TenantID != tenantID || item.PartnerType != partnerType || item.PartnerID != partnerID {
			continue
		}
		if !item.Status.CanAllocate() {
			continue
		}
		total = total.Add(item.OutstandingAmount())
	}
	return total, nil
}

type fakeReceiptRepo struct {
	receipts map[uuid.UUID]*domain.Receipt
}

func newFakeReceiptRepo(receipts ...*domain.Receipt) *fakeReceiptRepo {
	repo := &fakeReceiptRepo{receipts: make(map[uuid.UUID]*domain.Receipt)}
	for _, receipt := range receipts {
		copied := *receipt
		repo.receipts[receipt.ID] = &copied
	}
	return repo
}

func (r *fakeReceiptRepo) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*domain.Receipt, error) {
	receipt, ok := r.receipts[id]
	if !ok || receipt.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	copied := *receipt
	return &copied, nil
}

func (r *fakeReceiptRepo) FindByNumber(_ context.Context, tenantID uuid.UUID, receiptNumber string) (*domain.Receipt, error) {
	for _, receipt := range r.receipts {
		if receipt.TenantID == tenantID && receipt.ReceiptNumber == receiptNumber {
			copied := *receipt
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeReceiptRepo) FindAllForTenant(_ context.Context, tenantID uuid.UUID, filter shared.Filter) ([]domain.Receipt, error) {
	out := make([]domain.Receipt, 0, len(r.receipts))
	for _, receipt := range r.receipts {
		if receipt.TenantID != tenantID {
			continue
		}
		if filter.Search != "" && !strings.Contains(receipt.ReceiptNumber, filter.Search) {
			continue
		}
		out = append(out, *receipt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceiptNumber < out[j].ReceiptNumber })
	return out, nil
}

func (r *fakeReceiptRepo) CountForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (int64, error) {
	receipts, err := r.FindAllForTenant(ctx, tenantID, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(receipts)), nil
}

func (r *fakeReceiptRepo) Save(_ context.Context, receipt *domain.Receipt) error {
	copied := *receipt
	r.receipts[receipt.ID] = &copied
	return nil
}

type fakeAllocationRepo struct {
	itemAllocs    []domain.OpenItemAllocation
	receiptAllocs []domain.ReceiptAllocation
}

func newFakeAllocationRepo() *fakeAllocationRepo {
	return &fakeAllocationRepo{}
}

func (r *fakeAllocationRepo) SaveOpenItemAllocation(_ context.Context, alloc *domain.OpenItemAllocation) error {
	r.itemAllocs = append(r.itemAllocs, *alloc)
	return nil
}

func (r *fakeAllocationRepo) FindByOpenItem(_ context.Context, tenantID, openItemID uuid.UUID) ([]domain.OpenItemAllocation, error) {
	out := make([]domain.OpenItemAllocation, 0)
	for _, alloc := range r.itemAllocs {
		if alloc.TenantID == tenantID && alloc.OpenItemID == openItemID {
			out = append(out, alloc)
		}
	}
	return out, nil
}

func (r *fakeAllocationRepo) SaveReceiptAllocation(_ context.Context, alloc *domain.ReceiptAllocation) error {
	r.receiptAllocs = append(r.receiptAllocs, *alloc)
	return nil
}

func (r *fakeAllocationRepo) FindByReceipt(_ context.Context, tenantID, receiptID uuid.UUID) ([]domain.ReceiptAllocation, error) {
	out := make([]domain.ReceiptAllocation, 0)
	for _, alloc := range r.receiptAllocs {
		if alloc.TenantID == tenantID && alloc.ReceiptID == receiptID {
			out = append(out, alloc)
		}
	}
	return out, nil
}

func (r *fakeAllocationRepo) SumAllocatedByReceipt(_ context.Context, tenantID, receiptID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, alloc := range r.receiptAllocs {
		if alloc.TenantID == tenantID && alloc.ReceiptID == receiptID {
			total = total.Add(alloc.AllocatedAmount)
		}
	}
	return total, nil
}

type fakeNumberReserver struct {
	next int64
	err  error
}

func (r *fakeNumberReserver) ReserveNumber(_ context.Context, _ uuid.UUID, scopeKey string, at time.Time) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.next++
	prefix := "WO"
	if scopeKey == domain.NumberScopeReceipt {
		prefix = "RCT"
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, at.Year(), r.next), nil
}

type fakeJournalLineRepo struct {
	lines []domain.JournalLine
}

func (r *fakeJournalLineRepo) FindByBankAccount(_ context.Context, tenantID, bankAccountID uuid.UUID, from, to time.Time) ([]domain.JournalLine, error) {
	out := make([]domain.JournalLine, 0)
	for _, line := range r.lines {
		if line.TenantID != tenantID || line.BankAccountID != bankAccountID {
			continue
		}
		if line.EntryDate.Before(from) || line.EntryDate.After(to) {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

type fakeStatementStore struct {
	statements map[uuid.UUID]*domain.BankStatement
	saveErr    error
}

func newFakeStatementStore(statements ...*domain.BankStatement) *fakeStatementStore {
	store := &fakeStatementStore{statements: make(map[uuid.UUID]*domain.BankStatement)}
	for _, statement := range statements {
		store.statements[statement.ID] = statement
	}
	return store
}

func (s *fakeStatementStore) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*domain.BankStatement, error) {
	statement, ok := s.statements[id]
	if !ok || statement.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return statement, nil
}

func (s *fakeStatementStore) FindAllForTenant(_ context.Context, tenantID uuid.UUID, _ shared.Filter) ([]domain.BankStatement, error) {
	out := make([]domain.BankStatement, 0, len(s.statements))
	for _, statement := range s.statements {
		if statement.TenantID == tenantID {
			out = append(out, *statement)
		}
	}
	return out, nil
}

func (s *fakeStatementStore) Save(_ context.Context, statement *domain.BankStatement) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.statements[statement.ID] = statement
	return nil
}

type fakeRuleStore struct {
	rules map[uuid.UUID]*domain.BankMatchingRule
}

func newFakeRuleStore(rules ...*domain.BankMatchingRule) *fakeRuleStore {
	store := &fakeRuleStore{rules: make(map[uuid.UUID]*domain.BankMatchingRule)}
	for _, rule := range rules {
		store.rules[rule.ID] = rule
	}
	return store
}

func (s *fakeRuleStore) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*domain.BankMatchingRule, error) {
	rule, ok := s.rules[id]
	if !ok || rule.TenantID != tenantID {
		return nil, shared.ErrNotFound
	}
	return rule, nil
}

func (s *fakeRuleStore) FindEnabledForTenant(_ context.Context, tenantID uuid.UUID) ([]domain.BankMatchingRule, error) {
	out := make([]domain.BankMatchingRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.TenantID == tenantID && rule.Enabled {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *fakeRuleStore) FindAllForTenant(_ context.Context, tenantID uuid.UUID) ([]domain.BankMatchingRule, error) {
	out := make([]domain.BankMatchingRule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.TenantID == tenantID {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *fakeRuleStore) Save(_ context.Context, rule *domain.BankMatchingRule) error {
	s.rules[rule.ID] = rule
	return nil
}

func (s *fakeRuleStore) Delete(_ context.Context, tenantID, id uuid.UUID) error {
	rule, ok := s.rules[id]
	if !ok || rule.TenantID != tenantID {
		return shared.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// fakeTxManager runs the callback directly against the fake repos;
// there is no rollback, so tests asserting failure must not inspect
// partial writes.
type fakeTxManager struct {
	repos domain.Repositories
}

func newFakeTxManager(openItems *fakeOpenItemRepo, receipts *fakeReceiptRepo, allocations *fakeAllocationRepo, numbers *fakeNumberReserver) *fakeTxManager {
	return &fakeTxManager{repos: domain.Repositories{
		OpenItems:   openItems,
		Receipts:    receipts,
		Allocations: allocations,
		Statements:  newFakeStatementStore(),
		Numbers:     numbers,
	}}
}

// withStatements binds the transaction bundle to the given statement
// store so statement saves and item clearing share a scope
func (m *fakeTxManager) withStatements(store domain.StatementStore) *fakeTxManager {
	m.repos.Statements = store
	return m
}

func (m *fakeTxManager) InTransaction(_ context.Context, fn func(repos domain.Repositories) error) error {
	return fn(m.repos)
}
