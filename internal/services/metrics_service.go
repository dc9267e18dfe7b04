package services

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aihub/support-rag/internal/ledger"
)

// MetricsService 问答服务的 Prometheus 指标，方法对 nil 接收者安全
type MetricsService struct {
	registry *prometheus.Registry

	chatRequests   *prometheus.CounterVec
	chatDuration   *prometheus.HistogramVec
	retrievalHits  prometheus.Histogram
	ledgerTurns    *prometheus.CounterVec
	emotionReplies prometheus.Counter
	qaOperations   *prometheus.CounterVec
}

// NewMetricsService 创建独立的 registry，并注册 Go 运行时与进程指标
func NewMetricsService() *MetricsService {
	ms := &MetricsService{
		registry: prometheus.NewRegistry(),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_rag_chat_requests_total",
			Help: "Chat requests by model and status",
		}, []string{"model", "status"}),
		chatDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "support_rag_chat_duration_seconds",
			Help:    "End-to-end chat latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"model"}),
		retrievalHits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "support_rag_retrieval_hits",
			Help:    "QA documents kept after score filtering",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		}),
		ledgerTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_rag_ledger_turns_total",
			Help: "Turns sent to the model by role",
		}, []string{"role"}),
		emotionReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "support_rag_emotion_replies_total",
			Help: "Chats answered with a soothing reply",
		}),
		qaOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "support_rag_qa_operations_total",
			Help: "QA document operations by type and status",
		}, []string{"operation", "status"}),
	}

	ms.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ms.chatRequests,
		ms.chatDuration,
		ms.retrievalHits,
		ms.ledgerTurns,
		ms.emotionReplies,
		ms.qaOperations,
	)
	return ms
}

// Registry 供数据库和错误监控注册自己的指标
func (ms *MetricsService) Registry() *prometheus.Registry {
	return ms.registry
}

// Handler 返回Prometheus指标的HTTP处理器
func (ms *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(ms.registry, promhttp.HandlerOpts{})
}

// ServeHTTP 实现http.Handler接口
func (ms *MetricsService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ms.Handler().ServeHTTP(w, r)
}

// RecordChat 记录一次问答
func (ms *MetricsService) RecordChat(model string, err error, took time.Duration, hits int) {
	if ms == nil {
		return
	}
	ms.chatRequests.WithLabelValues(model, statusLabel(err)).Inc()
	ms.chatDuration.WithLabelValues(model).Observe(took.Seconds())
	if err == nil {
		ms.retrievalHits.Observe(float64(hits))
	}
}

// RecordTurns 按角色累计发送给模型的轮次
func (ms *MetricsService) RecordTurns(counts ledger.Counts) {
	if ms == nil {
		return
	}
	ms.ledgerTurns.WithLabelValues("human").Add(float64(counts.Human - counts.Summary))
	ms.ledgerTurns.WithLabelValues("summary").Add(float64(counts.Summary))
	ms.ledgerTurns.WithLabelValues("assistant").Add(float64(counts.Assistant))
	ms.ledgerTurns.WithLabelValues("system").Add(float64(counts.System))
}

// RecordEmotion 记录一次情绪安抚
func (ms *MetricsService) RecordEmotion() {
	if ms == nil {
		return
	}
	ms.emotionReplies.Inc()
}

// TrackEmbeddingCache 以 gauge 暴露向量缓存命中率，只应调用一次
func (ms *MetricsService) TrackEmbeddingCache(hitRate func() float64) {
	if ms == nil || hitRate == nil {
		return
	}
	ms.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "support_rag_embedding_cache_hit_ratio",
		Help: "Share of embedding lookups served from the Redis cache",
	}, hitRate))
}

// RecordQAOperation 记录问答管理操作
func (ms *MetricsService) RecordQAOperation(operation string, err error) {
	if ms == nil {
		return
	}
	ms.qaOperations.WithLabelValues(operation, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
