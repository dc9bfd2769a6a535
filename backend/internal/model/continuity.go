package model

import "gorm.io/datatypes"

// ContinuityDocument 教师的考勤连续性文档
// Payload 为 continuity.State 的 JSON 形态，整体读取、整体写回
type ContinuityDocument struct {
	OwnerID string         `gorm:"type:varchar(64);primaryKey" json:"owner_id"`
	Payload datatypes.JSON `gorm:"type:jsonb;not null"         json:"payload"`
	VersionedModel
}

// TableName 指定表名
func (ContinuityDocument) TableName() string { return "continuity_documents" }

// Persisted 文档是否已存在于存储中
func (d *ContinuityDocument) Persisted() bool { return d.Version > 0 }
