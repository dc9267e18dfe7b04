package knowledge

import (
	"context"

	"github.com/aihub/support-rag/internal/models"
)

// SearchRequest 向量检索请求
type SearchRequest struct {
	KnowledgeBaseID uint
	PointID         *uint // 非空时只检索该中台 id 下的问答
	Embedding       []float32
	TopK            int
}

// SearchMatch 检索结果，Distance 为 L2 距离，越小越相似
type SearchMatch struct {
	Document models.QADocument
	Distance float64
}

// VectorStore 向量存储抽象。只返回未删除且启用的问答，按距离升序
type VectorStore interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchMatch, error)
	Ready() bool
}
