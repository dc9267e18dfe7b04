package knowledge

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/aihub/support-rag/internal/models"
)

const defaultTopK = 5

// PGVectorStore 基于 PostgreSQL pgvector 扩展，按 L2 距离（<->）排序
type PGVectorStore struct {
	db *gorm.DB
}

func NewPGVectorStore(db *gorm.DB) *PGVectorStore {
	return &PGVectorStore{db: db}
}

type pgMatchRow struct {
	models.QADocument
	Distance float64 `gorm:"column:distance"`
}

func (s *PGVectorStore) Search(ctx context.Context, req SearchRequest) ([]SearchMatch, error) {
	if len(req.Embedding) == 0 {
		return nil, nil
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}

	query := s.db.WithContext(ctx).
		Model(&models.QADocument{}).
		Select("*, embedding <-> ? AS distance", pgvector.NewVector(req.Embedding)).
		Where("kb_id = ? AND is_delete = ? AND is_active = ?", req.KnowledgeBaseID, false, true).
		Where("embedding IS NOT NULL")
	if req.PointID != nil {
		query = query.Where("point_id = ?", *req.PointID)
	}

	var rows []pgMatchRow
	if err := query.Order("distance").Limit(req.TopK).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	matches := make([]SearchMatch, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, SearchMatch{Document: row.QADocument, Distance: row.Distance})
	}
	return matches, nil
}

func (s *PGVectorStore) Ready() bool {
	return s.db != nil
}
