package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alamriomar/moeen/backend/internal/model"
	pkgerrors "github.com/alamriomar/moeen/backend/pkg/errors"
)

// ContinuityRepository 考勤连续性文档数据访问接口
type ContinuityRepository interface {
	// Load 读取文档；不存在时返回 Version=0 的空文档
	Load(ctx context.Context, ownerID string) (*model.ContinuityDocument, error)
	// Save 整体写回文档，以 Version 做乐观锁；成功后 doc.Version 递增
	Save(ctx context.Context, doc *model.ContinuityDocument) error
	Delete(ctx context.Context, ownerID string) error
	// Size 文档占用字节数，不存在时为 0
	Size(ctx context.Context, ownerID string) (int64, error)
}

type continuityRepo struct {
	db *gorm.DB
}

// NewContinuityRepo 创建 ContinuityRepository 实例
func NewContinuityRepo(db *gorm.DB) ContinuityRepository {
	return &continuityRepo{db: db}
}

func (r *continuityRepo) Load(ctx context.Context, ownerID string) (*model.ContinuityDocument, error) {
	var doc model.ContinuityDocument
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.ContinuityDocument{OwnerID: ownerID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *continuityRepo) Save(ctx context.Context, doc *model.ContinuityDocument) error {
	now := time.Now()

	// 首次写入：并发创建时只有一方成功，另一方视为乐观锁冲突
	if !doc.Persisted() {
		created := model.ContinuityDocument{
			OwnerID: doc.OwnerID,
			Payload: doc.Payload,
		}
		created.Version = 1
		created.CreatedAt = now
		created.UpdatedAt = now
		result := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&created)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return pkgerrors.ErrOptimisticLock
		}
		doc.VersionedModel = created.VersionedModel
		return nil
	}

	oldVersion := doc.Version
	result := r.db.WithContext(ctx).
		Model(&model.ContinuityDocument{}).
		Where("owner_id = ? AND version = ?", doc.OwnerID, oldVersion).
		Updates(map[string]interface{}{
			"payload":    doc.Payload,
			"version":    oldVersion + 1,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	doc.Version = oldVersion + 1
	doc.UpdatedAt = now
	return nil
}

func (r *continuityRepo) Delete(ctx context.Context, ownerID string) error {
	return r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Delete(&model.ContinuityDocument{}).Error
}

func (r *continuityRepo) Size(ctx context.Context, ownerID string) (int64, error) {
	var size int64
	err := r.db.WithContext(ctx).
		Model(&model.ContinuityDocument{}).
		Select("COALESCE(SUM(octet_length(payload::text)), 0)").
		Where("owner_id = ?", ownerID).
		Scan(&size).Error
	return size, err
}
