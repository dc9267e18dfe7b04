package errors

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrorMonitor 按错误码和接口统计错误
type ErrorMonitor struct {
	errorCounter *prometheus.CounterVec
	responseTime *prometheus.HistogramVec
}

// NewErrorMonitor 创建错误监控器并注册到 reg
func NewErrorMonitor(reg prometheus.Registerer) *ErrorMonitor {
	em := &ErrorMonitor{
		errorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "support_rag_error_total",
				Help: "Total number of errors by code and type",
			},
			[]string{"code", "type", "endpoint"},
		),
		responseTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "support_rag_error_response_time_seconds",
				Help:    "Response time for error requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code", "endpoint"},
		),
	}
	if reg != nil {
		reg.MustRegister(em.errorCounter, em.responseTime)
	}
	return em
}

// RecordError 记录错误
func (em *ErrorMonitor) RecordError(appErr *AppError, endpoint string, responseTime time.Duration) {
	if em == nil || appErr == nil {
		return
	}
	em.errorCounter.WithLabelValues(string(appErr.Code), appErr.Type.String(), endpoint).Inc()
	em.responseTime.WithLabelValues(string(appErr.Code), endpoint).Observe(responseTime.Seconds())
}

// Counter 返回计数器，测试中读取
func (em *ErrorMonitor) Counter() *prometheus.CounterVec {
	return em.errorCounter
}
