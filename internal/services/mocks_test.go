package services

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	"github.com/aihub/support-rag/internal/kafka"
	"github.com/aihub/support-rag/internal/models"
	"github.com/aihub/support-rag/internal/repository"
)

// MockQARepository 模拟问答仓库
type MockQARepository struct {
	mock.Mock
}

func (m *MockQARepository) GetDB() *gorm.DB {
	return nil
}

func (m *MockQARepository) Create(ctx context.Context, doc *models.QADocument) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockQARepository) GetByID(ctx context.Context, id uint) (*models.QADocument, error) {
	args := m.Called(ctx, id)
	doc, _ := args.Get(0).(*models.QADocument)
	return doc, args.Error(1)
}

func (m *MockQARepository) Search(ctx context.Context, filter repository.QAFilter) ([]models.QADocument, int64, error) {
	args := m.Called(ctx, filter)
	docs, _ := args.Get(0).([]models.QADocument)
	return docs, args.Get(1).(int64), args.Error(2)
}

func (m *MockQARepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	args := m.Called(ctx, id, updates)
	return args.Error(0)
}

func (m *MockQARepository) SoftDelete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockQARepository) BatchSoftDelete(ctx context.Context, ids []uint) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

// stubEmbedder 按文本返回固定向量
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   []string
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0}, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }
func (e *stubEmbedder) Ready() bool     { return true }

func (e *stubEmbedder) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// recordingAudit 记录审计事件
type recordingAudit struct {
	mu     sync.Mutex
	events []*kafka.ChatAuditEvent
	err    error
}

func (a *recordingAudit) PublishChatAudit(ctx context.Context, event *kafka.ChatAuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return a.err
}

func (a *recordingAudit) Events() []*kafka.ChatAuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*kafka.ChatAuditEvent(nil), a.events...)
}
