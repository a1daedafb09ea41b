package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

type memRequestRepo struct {
	mu      sync.Mutex
	records map[string]*entity.RequestRecord
	order   []string

	createErr  error
	getErr     error
	listErr    error
	casFunc    func(id string, expected, next workflow.StageID) error
	lastFilter port.RequestFilter
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{records: make(map[string]*entity.RequestRecord)}
}

func (m *memRequestRepo) Create(ctx context.Context, rec *entity.RequestRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return fmt.Errorf("duplicate id %s", rec.ID)
	}
	m.records[rec.ID] = rec.Clone()
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *memRequestRepo) GetByID(ctx context.Context, id string) (*entity.RequestRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *memRequestRepo) CompareAndSwapStage(ctx context.Context, id string, expected, next workflow.StageID, at time.Time) error {
	if m.casFunc != nil {
		if err := m.casFunc(id, expected, next); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.CurrentStage != expected {
		return port.ErrStageConflict
	}
	rec.CurrentStage = next
	rec.UpdatedAt = at
	return nil
}

func (m *memRequestRepo) List(ctx context.Context, filter port.RequestFilter) ([]*entity.RequestRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter

	groups := make(map[string]bool, len(filter.GroupKeys))
	for _, g := range filter.GroupKeys {
		groups[g] = true
	}
	stages := make(map[workflow.StageID]bool, len(filter.Stages))
	for _, s := range filter.Stages {
		stages[s] = true
	}

	var out []*entity.RequestRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.records[m.order[i]]
		if filter.RequestType != "" && rec.RequestType != filter.RequestType {
			continue
		}
		if !filter.AllGroups && !groups[rec.GroupKey] {
			continue
		}
		if len(stages) > 0 && !stages[rec.CurrentStage] {
			continue
		}
		if filter.SubmittedBy != "" && rec.SubmittedBy != filter.SubmittedBy {
			continue
		}
		if filter.SubmittedFrom != nil && rec.SubmittedAt.Before(*filter.SubmittedFrom) {
			continue
		}
		if filter.SubmittedTo != nil && rec.SubmittedAt.After(*filter.SubmittedTo) {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (m *memRequestRepo) stageOf(id string) workflow.StageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].CurrentStage
}

type memAuditRepo struct {
	mu        sync.Mutex
	entries   []*entity.AuditEntry
	appendErr error
}

func (m *memAuditRepo) Append(ctx context.Context, entry *entity.AuditEntry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	cp.ID = int64(len(m.entries) + 1)
	entry.ID = cp.ID
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAuditRepo) GetByRequestID(ctx context.Context, requestID string) ([]*entity.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*entity.AuditEntry{}
	for _, e := range m.entries {
		if e.RequestID == requestID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAuditRepo) HasEntry(ctx context.Context, requestID string, stage workflow.StageID, action workflow.Action) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.RequestID == requestID && e.StageID == stage && e.Action == action {
			return true, nil
		}
	}
	return false, nil
}

type memEffectLog struct {
	mu      sync.Mutex
	applied map[string]bool
	markErr error
}

func newMemEffectLog() *memEffectLog {
	return &memEffectLog{applied: make(map[string]bool)}
}

func (m *memEffectLog) MarkApplied(ctx context.Context, requestID string, stage workflow.StageID, at time.Time) (bool, error) {
	if m.markErr != nil {
		return false, m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := requestID + "/" + string(stage)
	if m.applied[key] {
		return false, nil
	}
	m.applied[key] = true
	return true, nil
}

func (m *memEffectLog) WasApplied(ctx context.Context, requestID string, stage workflow.StageID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[requestID+"/"+string(stage)], nil
}

func (m *memEffectLog) snapshot() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]bool, len(m.applied))
	for k, v := range m.applied {
		cp[k] = v
	}
	return cp
}

func (m *memEffectLog) restore(applied map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = applied
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type memLedger struct {
	mu       sync.Mutex
	balances map[string]float64
	debitErr error
	debits   int
}

func newMemLedger() *memLedger {
	return &memLedger{balances: make(map[string]float64)}
}

func (m *memLedger) CurrentBalance(ctx context.Context, subjectID, creditKind string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[subjectID+"/"+creditKind], nil
}

func (m *memLedger) Debit(ctx context.Context, subjectID, creditKind string, amount float64) (float64, error) {
	if m.debitErr != nil {
		return 0, m.debitErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := subjectID + "/" + creditKind
	next := m.balances[key] - amount
	if next < 0 {
		next = 0
	}
	m.balances[key] = next
	m.debits++
	return next, nil
}

func (m *memLedger) SetBalance(ctx context.Context, subjectID, creditKind string, balance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[subjectID+"/"+creditKind] = balance
	return nil
}

type memDocumentStore struct {
	docs      map[string][]byte
	putErr    error
	deleteErr error
	deleted   []string
}

func (m *memDocumentStore) Put(ctx context.Context, requestID, name string, content []byte) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	if m.docs == nil {
		m.docs = make(map[string][]byte)
	}
	ref := requestID + "/" + name
	m.docs[ref] = content
	return ref, nil
}

func (m *memDocumentStore) Get(ctx context.Context, ref string) ([]byte, error) {
	content, ok := m.docs[ref]
	if !ok {
		return nil, errors.New("not found")
	}
	return content, nil
}

func (m *memDocumentStore) Delete(ctx context.Context, requestID string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, requestID)
	for ref := range m.docs {
		if strings.HasPrefix(ref, requestID+"/") {
			delete(m.docs, ref)
		}
	}
	return nil
}

type mockIdentity struct {
	roles  map[string][]string
	groups map[string][]string
	err    error
}

func (m *mockIdentity) RolesOf(ctx context.Context, actorID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.roles[actorID], nil
}

func (m *mockIdentity) GroupMembershipsOf(ctx context.Context, actorID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.groups[actorID], nil
}
