package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aihub/support-rag/internal/models"
)

// Repository 基础仓库接口
type Repository interface {
	GetDB() *gorm.DB
}

// QAFilter 问答列表过滤条件，零值字段不参与过滤
type QAFilter struct {
	KBID      *uint
	Category1 string
	Category2 string
	PointID   *uint
	IsActive  *bool
	Query     string // 问题或答案包含该子串
	Page      int
	PageSize  int
}

// QARepository 问答仓库接口。所有读取和更新都跳过已软删除的记录
type QARepository interface {
	Repository
	Create(ctx context.Context, doc *models.QADocument) error
	GetByID(ctx context.Context, id uint) (*models.QADocument, error)
	Search(ctx context.Context, filter QAFilter) ([]models.QADocument, int64, error)
	Update(ctx context.Context, id uint, updates map[string]interface{}) error
	SoftDelete(ctx context.Context, id uint) error
	BatchSoftDelete(ctx context.Context, ids []uint) (int64, error)
}
