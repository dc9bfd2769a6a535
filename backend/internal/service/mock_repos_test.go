package service

import (
	"context"
	"errors"
	"sync"

	"github.com/alamriomar/moeen/backend/internal/model"
	pkgerrors "github.com/alamriomar/moeen/backend/pkg/errors"
)

var errMockStorage = errors.New("mock: 存储不可用")

// ── Mock ContinuityRepository ──

type mockContinuityRepo struct {
	mu        sync.Mutex
	docs      map[string]model.ContinuityDocument
	saves     int
	loads     int
	failLoad  bool
	failSave  bool
	failSize  bool
	conflicts int // 接下来 n 次 Save 返回乐观锁冲突
}

func newMockContinuityRepo() *mockContinuityRepo {
	return &mockContinuityRepo{docs: make(map[string]model.ContinuityDocument)}
}

func (m *mockContinuityRepo) Load(_ context.Context, ownerID string) (*model.ContinuityDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.failLoad {
		return nil, errMockStorage
	}
	doc, ok := m.docs[ownerID]
	if !ok {
		return &model.ContinuityDocument{OwnerID: ownerID}, nil
	}
	doc.Payload = append([]byte(nil), doc.Payload...)
	return &doc, nil
}

func (m *mockContinuityRepo) Save(_ context.Context, doc *model.ContinuityDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errMockStorage
	}
	if m.conflicts > 0 {
		m.conflicts--
		return pkgerrors.ErrOptimisticLock
	}
	if cur, ok := m.docs[doc.OwnerID]; ok && cur.Version != doc.Version {
		return pkgerrors.ErrOptimisticLock
	}
	m.saves++
	doc.Version++
	stored := *doc
	stored.Payload = append([]byte(nil), doc.Payload...)
	m.docs[doc.OwnerID] = stored
	return nil
}

func (m *mockContinuityRepo) Delete(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errMockStorage
	}
	delete(m.docs, ownerID)
	return nil
}

func (m *mockContinuityRepo) Size(_ context.Context, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSize {
		return 0, errMockStorage
	}
	return int64(len(m.docs[ownerID].Payload)), nil
}

func (m *mockContinuityRepo) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *mockContinuityRepo) payload(ownerID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.docs[ownerID].Payload)
}
