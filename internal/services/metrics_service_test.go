package services

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/support-rag/internal/ledger"
)

func TestMetricsService_Handler(t *testing.T) {
	ms := NewMetricsService()
	ms.RecordChat("qwen-plus", nil, 1200*time.Millisecond, 3)
	ms.RecordTurns(ledger.Counts{Total: 3, Human: 2, Summary: 1, System: 1})

	rec := httptest.NewRecorder()
	ms.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `support_rag_chat_requests_total{model="qwen-plus",status="success"} 1`)
	assert.Contains(t, body, `support_rag_ledger_turns_total{role="summary"} 1`)
	assert.Contains(t, body, `support_rag_ledger_turns_total{role="human"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsService_NilSafe(t *testing.T) {
	var ms *MetricsService
	assert.NotPanics(t, func() {
		ms.RecordChat("m", nil, time.Second, 1)
		ms.RecordTurns(ledger.Counts{})
		ms.RecordEmotion()
		ms.RecordQAOperation("create", nil)
	})
}

func TestMetricsService_RetrievalHitsOnlyOnSuccess(t *testing.T) {
	ms := NewMetricsService()
	ms.RecordChat("m", assert.AnError, time.Second, 4)
	assert.Equal(t, 1, testutil.CollectAndCount(ms.chatRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(ms.chatRequests.WithLabelValues("m", "error")))

	ms.RecordChat("m", nil, time.Second, 4)
	assert.Equal(t, 2, testutil.CollectAndCount(ms.chatRequests))
}

func TestMetricsService_TrackEmbeddingCache(t *testing.T) {
	ms := NewMetricsService()
	ms.TrackEmbeddingCache(func() float64 { return 0.75 })

	rec := httptest.NewRecorder()
	ms.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "support_rag_embedding_cache_hit_ratio 0.75")

	var nilMS *MetricsService
	assert.NotPanics(t, func() { nilMS.TrackEmbeddingCache(func() float64 { return 1 }) })
}
