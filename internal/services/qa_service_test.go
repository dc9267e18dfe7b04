package services

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aihub/support-rag/internal/errors"
	"github.com/aihub/support-rag/internal/models"
	"github.com/aihub/support-rag/internal/repository"
)

func newTestQAService() (*QAService, *MockQARepository, *stubEmbedder, *MetricsService) {
	repo := new(MockQARepository)
	emb := &stubEmbedder{vectors: map[string][]float32{"机器人不回复了": {0.1, 0.2, 0.3}}}
	metrics := NewMetricsService()
	return NewQAService(repo, emb, metrics), repo, emb, metrics
}

func TestQAService_Create(t *testing.T) {
	svc, repo, emb, metrics := newTestQAService()

	repo.On("Create", mock.Anything, mock.MatchedBy(func(doc *models.QADocument) bool {
		return doc.KBID == 1 && doc.Question == "机器人不回复了" && doc.IsActive &&
			doc.Embedding != nil && len(doc.Embedding.Slice()) == 3
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.QADocument).ID = 9
	}).Return(nil)

	doc, err := svc.Create(context.Background(), CreateQARequest{
		KBID:     1,
		Question: " 机器人不回复了 ",
		Answer:   "请检查授权",
	})
	require.NoError(t, err)
	assert.Equal(t, uint(9), doc.ID)
	assert.Equal(t, []string{"机器人不回复了"}, emb.Calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.qaOperations.WithLabelValues("create", "success")))
	repo.AssertExpectations(t)
}

func TestQAService_CreateInactive(t *testing.T) {
	svc, repo, _, _ := newTestQAService()
	inactive := false

	repo.On("Create", mock.Anything, mock.MatchedBy(func(doc *models.QADocument) bool {
		return !doc.IsActive
	})).Return(nil)

	_, err := svc.Create(context.Background(), CreateQARequest{KBID: 1, Question: "q1", Answer: "a", IsActive: &inactive})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestQAService_CreateValidation(t *testing.T) {
	svc, repo, emb, _ := newTestQAService()

	_, err := svc.Create(context.Background(), CreateQARequest{KBID: 1, Question: "   ", Answer: "a"})
	appErr := errors.GetAppError(err)
	assert.Equal(t, errors.ErrCodeValidationFailed, appErr.Code)
	assert.Equal(t, 400, appErr.HTTPCode)

	_, err = svc.Create(context.Background(), CreateQARequest{Question: "q", Answer: "a"})
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetAppError(err).Code)

	_, err = svc.Create(context.Background(), CreateQARequest{KBID: 1, Question: "q", Answer: "a", RecordURL: "not a url"})
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetAppError(err).Code)

	assert.Empty(t, emb.Calls())
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestQAService_CreateEmbeddingFailure(t *testing.T) {
	svc, repo, emb, _ := newTestQAService()
	emb.err = stderrors.New("quota exceeded")

	_, err := svc.Create(context.Background(), CreateQARequest{KBID: 1, Question: "q", Answer: "a"})
	appErr := errors.GetAppError(err)
	assert.Equal(t, errors.ErrCodeEmbeddingFailed, appErr.Code)
	assert.Equal(t, 502, appErr.HTTPCode)
	assert.ErrorContains(t, appErr.Cause, "quota exceeded")
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestQAService_Search(t *testing.T) {
	svc, repo, _, _ := newTestQAService()
	kb := uint(1)

	repo.On("Search", mock.Anything, repository.QAFilter{KBID: &kb, Query: "回复", Page: 2, PageSize: 5}).
		Return([]models.QADocument{{ID: 3}}, int64(6), nil)

	result, err := svc.Search(context.Background(), SearchQARequest{KBID: &kb, Query: " 回复 ", Page: 2, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.Total)
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, 5, result.PageSize)
	require.Len(t, result.Items, 1)
	repo.AssertExpectations(t)
}

func TestQAService_ListIgnoresQueryAndDefaultsPage(t *testing.T) {
	svc, repo, _, _ := newTestQAService()

	repo.On("Search", mock.Anything, repository.QAFilter{Category1: "售后"}).
		Return(nil, int64(0), nil)

	result, err := svc.List(context.Background(), SearchQARequest{Category1: "售后", Query: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 10, result.PageSize)
	assert.NotNil(t, result.Items)
	assert.Empty(t, result.Items)

	_, err = svc.List(context.Background(), SearchQARequest{PageSize: 1000})
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetAppError(err).Code)
	repo.AssertExpectations(t)
}

func TestQAService_UpdateReembedsChangedQuestion(t *testing.T) {
	svc, repo, emb, _ := newTestQAService()

	repo.On("GetByID", mock.Anything, uint(5)).Return(&models.QADocument{ID: 5, Question: "旧问题"}, nil)
	repo.On("Update", mock.Anything, uint(5), mock.MatchedBy(func(u map[string]interface{}) bool {
		_, hasEmbedding := u["embedding"]
		return u["question"] == "机器人不回复了" && hasEmbedding && u["answer"] == "新答案"
	})).Return(nil)

	question, answer := "机器人不回复了", "新答案"
	require.NoError(t, svc.Update(context.Background(), 5, UpdateQARequest{Question: &question, Answer: &answer}))
	assert.Equal(t, []string{"机器人不回复了"}, emb.Calls())
	repo.AssertExpectations(t)
}

func TestQAService_UpdateSameQuestionSkipsEmbedding(t *testing.T) {
	svc, repo, emb, _ := newTestQAService()

	repo.On("GetByID", mock.Anything, uint(5)).Return(&models.QADocument{ID: 5, Question: "同一个问题"}, nil)
	repo.On("Update", mock.Anything, uint(5), map[string]interface{}{"is_active": false}).Return(nil)

	question, active := "同一个问题", false
	require.NoError(t, svc.Update(context.Background(), 5, UpdateQARequest{Question: &question, IsActive: &active}))
	assert.Empty(t, emb.Calls())
	repo.AssertExpectations(t)
}

func TestQAService_UpdateNotFound(t *testing.T) {
	svc, repo, _, _ := newTestQAService()
	repo.On("GetByID", mock.Anything, uint(8)).Return(nil, gorm.ErrRecordNotFound)

	answer := "x"
	err := svc.Update(context.Background(), 8, UpdateQARequest{Answer: &answer})
	appErr := errors.GetAppError(err)
	assert.Equal(t, errors.ErrCodeResourceNotFound, appErr.Code)
	assert.Equal(t, "QA document not found", appErr.Message)
}

func TestQAService_Delete(t *testing.T) {
	svc, repo, _, metrics := newTestQAService()
	repo.On("SoftDelete", mock.Anything, uint(3)).Return(nil).Once()
	repo.On("SoftDelete", mock.Anything, uint(4)).Return(gorm.ErrRecordNotFound).Once()

	require.NoError(t, svc.Delete(context.Background(), 3))
	assert.Equal(t, 404, errors.GetAppError(svc.Delete(context.Background(), 4)).HTTPCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.qaOperations.WithLabelValues("delete", "error")))
}

func TestQAService_BatchDelete(t *testing.T) {
	svc, repo, _, _ := newTestQAService()
	repo.On("BatchSoftDelete", mock.Anything, []uint{1, 2}).Return(int64(2), nil)

	n, err := svc.BatchDelete(context.Background(), BatchDeleteRequest{IDs: []uint{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = svc.BatchDelete(context.Background(), BatchDeleteRequest{})
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetAppError(err).Code)

	_, err = svc.BatchDelete(context.Background(), BatchDeleteRequest{IDs: []uint{0}})
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetAppError(err).Code)
	repo.AssertExpectations(t)
}
