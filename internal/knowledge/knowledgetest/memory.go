// Package knowledgetest provides an in-memory VectorStore for retrieval tests.
package knowledgetest

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/aihub/support-rag/internal/knowledge"
	"github.com/aihub/support-rag/internal/models"
)

const defaultTopK = 5

// MemoryVectorStore 按 L2 距离检索的内存实现
type MemoryVectorStore struct {
	mu   sync.RWMutex
	docs map[uint]models.QADocument
}

var _ knowledge.VectorStore = (*MemoryVectorStore)(nil)

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{docs: make(map[uint]models.QADocument)}
}

// Put 写入或覆盖一条问答
func (s *MemoryVectorStore) Put(doc models.QADocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

func (s *MemoryVectorStore) Search(ctx context.Context, req knowledge.SearchRequest) ([]knowledge.SearchMatch, error) {
	if len(req.Embedding) == 0 {
		return nil, nil
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}

	s.mu.RLock()
	matches := make([]knowledge.SearchMatch, 0, len(s.docs))
	for _, doc := range s.docs {
		if doc.KBID != req.KnowledgeBaseID || doc.IsDelete || !doc.IsActive || doc.Embedding == nil {
			continue
		}
		if req.PointID != nil && (doc.PointID == nil || *doc.PointID != *req.PointID) {
			continue
		}
		vec := doc.Embedding.Slice()
		if len(vec) != len(req.Embedding) {
			continue
		}
		matches = append(matches, knowledge.SearchMatch{Document: doc, Distance: l2Distance(req.Embedding, vec)})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance == matches[j].Distance {
			return matches[i].Document.ID < matches[j].Document.ID
		}
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > req.TopK {
		matches = matches[:req.TopK]
	}
	return matches, nil
}

func (s *MemoryVectorStore) Ready() bool {
	return true
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
