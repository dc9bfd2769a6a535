package repository

import (
	"context"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/alamriomar/moeen/backend/internal/model"
	pkgerrors "github.com/alamriomar/moeen/backend/pkg/errors"
)

// memoryContinuityRepo 进程内存储（tracker.storage=memory，单机开发与测试使用）
type memoryContinuityRepo struct {
	mu   sync.RWMutex
	docs map[string]model.ContinuityDocument
}

// NewMemoryContinuityRepo 创建内存版 ContinuityRepository
func NewMemoryContinuityRepo() ContinuityRepository {
	return &memoryContinuityRepo{docs: make(map[string]model.ContinuityDocument)}
}

func (r *memoryContinuityRepo) Load(ctx context.Context, ownerID string) (*model.ContinuityDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[ownerID]
	if !ok {
		return &model.ContinuityDocument{OwnerID: ownerID}, nil
	}
	doc.Payload = clonePayload(doc.Payload)
	return &doc, nil
}

func (r *memoryContinuityRepo) Save(ctx context.Context, doc *model.ContinuityDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	current, exists := r.docs[doc.OwnerID]
	switch {
	case !doc.Persisted() && exists:
		return pkgerrors.ErrOptimisticLock
	case doc.Persisted() && (!exists || current.Version != doc.Version):
		return pkgerrors.ErrOptimisticLock
	}

	stored := model.ContinuityDocument{
		OwnerID: doc.OwnerID,
		Payload: clonePayload(doc.Payload),
	}
	stored.Version = doc.Version + 1
	stored.CreatedAt = current.CreatedAt
	if !exists {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.docs[doc.OwnerID] = stored

	doc.VersionedModel = stored.VersionedModel
	return nil
}

func (r *memoryContinuityRepo) Delete(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, ownerID)
	return nil
}

func (r *memoryContinuityRepo) Size(ctx context.Context, ownerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.docs[ownerID].Payload)), nil
}

func clonePayload(p datatypes.JSON) datatypes.JSON {
	if p == nil {
		return nil
	}
	out := make(datatypes.JSON, len(p))
	copy(out, p)
	return out
}
