package knowledge

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Result 检索到的问答对及相似度
type Result struct {
	ID       uint    `json:"id"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

// Retriever 文本 -> 向量 -> 检索 -> 相似度过滤
type Retriever struct {
	embedder    Embedder
	store       VectorStore
	maxDistance float64
	logger      *zap.Logger
}

func NewRetriever(embedder Embedder, store VectorStore, maxDistance float64, logger *zap.Logger) *Retriever {
	if maxDistance <= 0 {
		maxDistance = 1.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder:    embedder,
		store:       store,
		maxDistance: maxDistance,
		logger:      logger,
	}
}

// Retrieve 检索知识库 kbID 下与 query 最相近的问答，pointID 为空时不按中台 id 过滤
func (r *Retriever) Retrieve(ctx context.Context, query string, kbID uint, pointID *uint, topK int) ([]Result, error) {
	r.logger.Info("retrieve input",
		zap.Uint("kb_id", kbID),
		zap.Uintp("point_id", pointID),
		zap.String("query", truncateRunes(query, 50)))

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	start := time.Now()
	matches, err := r.store.Search(ctx, SearchRequest{
		KnowledgeBaseID: kbID,
		PointID:         pointID,
		Embedding:       vec,
		TopK:            topK,
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("vector search finished", zap.Duration("took", time.Since(start)), zap.Int("matches", len(matches)))

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		score := DistanceToScore(m.Distance, r.maxDistance)
		if score <= 0 {
			continue
		}
		results = append(results, Result{
			ID:       m.Document.ID,
			Question: m.Document.Question,
			Answer:   m.Document.Answer,
			Score:    score,
		})
	}

	r.logger.Info("retrieve result", zap.Any("results", results))
	return results, nil
}

// DistanceToScore 把 L2 距离映射到 [0,1]，距离不小于 maxDistance 时为 0，保留四位小数
func DistanceToScore(distance, maxDistance float64) float64 {
	if distance >= maxDistance {
		return 0
	}
	return math.Round((1-distance/maxDistance)*10000) / 10000
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
