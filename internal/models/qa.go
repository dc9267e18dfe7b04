package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingDimensions qadocument.embedding 列的维度
const EmbeddingDimensions = 1024

// QADocument 知识库问答对，问题文本的向量存于 embedding
type QADocument struct {
	ID        uint             `gorm:"primaryKey;column:id" json:"id"`
	KBID      uint             `gorm:"column:kb_id;not null;index" json:"kb_id"`
	Question  string           `gorm:"type:text;column:question" json:"question"`
	Answer    string           `gorm:"type:text;column:answer" json:"answer"`
	Category1 string           `gorm:"column:category_1;size:255;index" json:"category_1"`
	Category2 string           `gorm:"column:category_2;size:255" json:"category_2"`
	PointID   *uint            `gorm:"column:point_id;index" json:"point_id"`
	RecordURL string           `gorm:"column:record_url;size:1024" json:"record_url"`
	IsActive  bool             `gorm:"column:is_active;not null" json:"is_active"`
	IsDelete  bool             `gorm:"column:is_delete;not null;default:false" json:"-"`
	Embedding *pgvector.Vector `gorm:"type:vector(1024);column:embedding" json:"-"`
	CreatedAt time.Time        `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdateAt  *time.Time       `gorm:"column:update_at" json:"update_at"`
}

func (QADocument) TableName() string {
	return "qadocument"
}

// SetEmbedding 设置问题向量，空向量写入 NULL
func (d *QADocument) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		d.Embedding = nil
		return
	}
	v := pgvector.NewVector(vec)
	d.Embedding = &v
}
