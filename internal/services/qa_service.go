package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aihub/support-rag/internal/errors"
	"github.com/aihub/support-rag/internal/knowledge"
	"github.com/aihub/support-rag/internal/logger"
	"github.com/aihub/support-rag/internal/models"
	"github.com/aihub/support-rag/internal/repository"
)

// QAService 问答文档管理
type QAService struct {
	repo     repository.QARepository
	embedder knowledge.Embedder
	metrics  *MetricsService
	logger   *zap.Logger
}

// CreateQARequest 创建问答请求
type CreateQARequest struct {
	KBID      uint   `json:"kb_id" validate:"required"`
	Question  string `json:"question" validate:"notblank,max=2000"`
	Answer    string `json:"answer" validate:"notblank"`
	Category1 string `json:"category_1" validate:"max=255"`
	Category2 string `json:"category_2" validate:"max=255"`
	PointID   *uint  `json:"point_id"`
	RecordURL string `json:"record_url" validate:"omitempty,url,max=1024"`
	IsActive  *bool  `json:"is_active"`
}

// UpdateQARequest 更新问答请求，nil 字段不修改
type UpdateQARequest struct {
	Question  *string `json:"question" validate:"omitempty,notblank,max=2000"`
	Answer    *string `json:"answer" validate:"omitempty,notblank"`
	Category1 *string `json:"category_1" validate:"omitempty,max=255"`
	Category2 *string `json:"category_2" validate:"omitempty,max=255"`
	PointID   *uint   `json:"point_id"`
	RecordURL *string `json:"record_url" validate:"omitempty,url,max=1024"`
	IsActive  *bool   `json:"is_active"`
}

// SearchQARequest 搜索/列表请求
type SearchQARequest struct {
	KBID      *uint  `json:"kb_id"`
	Category1 string `json:"category_1"`
	Category2 string `json:"category_2"`
	PointID   *uint  `json:"point_id"`
	IsActive  *bool  `json:"is_active"`
	Query     string `json:"query"`
	Page      int    `json:"page" validate:"gte=0"`
	PageSize  int    `json:"page_size" validate:"gte=0,lte=100"`
}

// BatchDeleteRequest 批量删除请求
type BatchDeleteRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1,dive,gt=0"`
}

// QAListResult 分页结果
type QAListResult struct {
	Items    []models.QADocument `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// NewQAService 创建问答服务
func NewQAService(repo repository.QARepository, embedder knowledge.Embedder, metrics *MetricsService) *QAService {
	return &QAService{
		repo:     repo,
		embedder: embedder,
		metrics:  metrics,
		logger:   logger.Named("qa"),
	}
}

// Create 生成问题向量后写入
func (s *QAService) Create(ctx context.Context, req CreateQARequest) (doc *models.QADocument, err error) {
	defer func() { s.metrics.RecordQAOperation("create", err) }()

	if err := Validator().Struct(req); err != nil {
		return nil, errors.Translate(err)
	}

	vec, err := s.embed(ctx, req.Question)
	if err != nil {
		return nil, err
	}

	doc = &models.QADocument{
		KBID:      req.KBID,
		Question:  strings.TrimSpace(req.Question),
		Answer:    req.Answer,
		Category1: req.Category1,
		Category2: req.Category2,
		PointID:   req.PointID,
		RecordURL: req.RecordURL,
		IsActive:  req.IsActive == nil || *req.IsActive,
	}
	doc.SetEmbedding(vec)

	if err := s.repo.Create(ctx, doc); err != nil {
		s.logger.Error("创建QA文档失败", zap.Error(err), zap.Uint("kb_id", req.KBID))
		return nil, errors.Translate(err)
	}

	s.logger.Info("创建QA文档成功", zap.Uint("id", doc.ID), zap.Uint("kb_id", doc.KBID))
	return doc, nil
}

// Get 获取单条问答
func (s *QAService) Get(ctx context.Context, id uint) (*models.QADocument, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return doc, nil
}

// Search 按条件分页搜索
func (s *QAService) Search(ctx context.Context, req SearchQARequest) (result *QAListResult, err error) {
	defer func() { s.metrics.RecordQAOperation("search", err) }()

	if err := Validator().Struct(req); err != nil {
		return nil, errors.Translate(err)
	}

	filter := repository.QAFilter{
		KBID:      req.KBID,
		Category1: req.Category1,
		Category2: req.Category2,
		PointID:   req.PointID,
		IsActive:  req.IsActive,
		Query:     strings.TrimSpace(req.Query),
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	docs, total, err := s.repo.Search(ctx, filter)
	if err != nil {
		s.logger.Error("搜索QA文档失败", zap.Error(err))
		return nil, errors.Translate(err)
	}

	page, pageSize := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if docs == nil {
		docs = []models.QADocument{}
	}
	return &QAListResult{Items: docs, Total: total, Page: page, PageSize: pageSize}, nil
}

// List 不带关键词的列表
func (s *QAService) List(ctx context.Context, req SearchQARequest) (*QAListResult, error) {
	req.Query = ""
	return s.Search(ctx, req)
}

// Update 更新问答，问题变化时重新生成向量
func (s *QAService) Update(ctx context.Context, id uint, req UpdateQARequest) (err error) {
	defer func() { s.metrics.RecordQAOperation("update", err) }()

	if err := Validator().Struct(req); err != nil {
		return errors.Translate(err)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err)
	}

	updates := make(map[string]interface{})
	if req.Question != nil {
		question := strings.TrimSpace(*req.Question)
		if question != current.Question {
			vec, err := s.embed(ctx, question)
			if err != nil {
				return err
			}
			doc := models.QADocument{}
			doc.SetEmbedding(vec)
			updates["question"] = question
			updates["embedding"] = doc.Embedding
		}
	}
	if req.Answer != nil {
		updates["answer"] = *req.Answer
	}
	if req.Category1 != nil {
		updates["category_1"] = *req.Category1
	}
	if req.Category2 != nil {
		updates["category_2"] = *req.Category2
	}
	if req.PointID != nil {
		updates["point_id"] = *req.PointID
	}
	if req.RecordURL != nil {
		updates["record_url"] = *req.RecordURL
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		s.logger.Error("更新QA文档失败", zap.Error(err), zap.Uint("id", id))
		return notFoundOr(err)
	}

	s.logger.Info("更新QA文档成功", zap.Uint("id", id), zap.Int("fields", len(updates)))
	return nil
}

// Delete 软删除一条问答
func (s *QAService) Delete(ctx context.Context, id uint) (err error) {
	defer func() { s.metrics.RecordQAOperation("delete", err) }()

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return notFoundOr(err)
	}
	s.logger.Info("删除QA文档成功", zap.Uint("id", id))
	return nil
}

// BatchDelete 批量软删除，返回实际删除数量
func (s *QAService) BatchDelete(ctx context.Context, req BatchDeleteRequest) (n int64, err error) {
	defer func() { s.metrics.RecordQAOperation("batch_delete", err) }()

	if err := Validator().Struct(req); err != nil {
		return 0, errors.Translate(err)
	}

	n, err = s.repo.BatchSoftDelete(ctx, req.IDs)
	if err != nil {
		return 0, notFoundOr(err)
	}
	s.logger.Info("批量删除QA文档成功", zap.Int64("count", n))
	return n, nil
}

func (s *QAService) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, strings.TrimSpace(text))
	if err != nil {
		s.logger.Error("生成问题向量失败", zap.Error(err))
		return nil, errors.NewExternalError(errors.ErrCodeEmbeddingFailed, "embedding", err)
	}
	return vec, nil
}

func notFoundOr(err error) error {
	appErr := errors.Translate(err)
	if appErr.Code == errors.ErrCodeResourceNotFound {
		return errors.NewNotFoundError("QA document").WithCause(err)
	}
	return appErr
}
