package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aihub/support-rag/internal/models"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
)

// qaRepository 问答仓库实现
type qaRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewQARepository 创建问答仓库
func NewQARepository(db *gorm.DB) QARepository {
	return &qaRepository{db: db, now: time.Now}
}

func (r *qaRepository) GetDB() *gorm.DB {
	return r.db
}

func (r *qaRepository) Create(ctx context.Context, doc *models.QADocument) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = r.now()
	}
	return r.db.WithContext(ctx).Create(doc).Error
}

// GetByID 获取未删除的问答，不存在时返回 gorm.ErrRecordNotFound
func (r *qaRepository) GetByID(ctx context.Context, id uint) (*models.QADocument, error) {
	var doc models.QADocument
	err := r.db.WithContext(ctx).Where("id = ? AND is_delete = ?", id, false).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Search 按条件分页查询，按创建时间倒序
func (r *qaRepository) Search(ctx context.Context, filter QAFilter) ([]models.QADocument, int64, error) {
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	query := r.db.WithContext(ctx).Model(&models.QADocument{}).Where("is_delete = ?", false)
	if filter.KBID != nil {
		query = query.Where("kb_id = ?", *filter.KBID)
	}
	if filter.Category1 != "" {
		query = query.Where("category_1 = ?", filter.Category1)
	}
	if filter.Category2 != "" {
		query = query.Where("category_2 = ?", filter.Category2)
	}
	if filter.PointID != nil {
		query = query.Where("point_id = ?", *filter.PointID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		query = query.Where("question LIKE ? OR answer LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var docs []models.QADocument
	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&docs).Error; err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// Update 更新未删除的问答，同时刷新 update_at
func (r *qaRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	values := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["update_at"] = r.now()

	result := r.db.WithContext(ctx).Model(&models.QADocument{}).
		Where("id = ? AND is_delete = ?", id, false).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDelete 标记删除
func (r *qaRepository) SoftDelete(ctx context.Context, id uint) error {
	_, err := r.softDelete(ctx, []uint{id})
	return err
}

// BatchSoftDelete 批量标记删除，返回实际删除的数量
func (r *qaRepository) BatchSoftDelete(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return r.softDelete(ctx, ids)
}

func (r *qaRepository) softDelete(ctx context.Context, ids []uint) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.QADocument{}).
		Where("id IN ? AND is_delete = ?", ids, false).
		Updates(map[string]interface{}{
			"is_delete": true,
			"update_at": r.now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return result.RowsAffected, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
