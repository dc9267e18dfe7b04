package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const queryStartKey = "support_rag:query_start"

// MetricsCollector 数据库指标收集器
type MetricsCollector struct {
	db              *sql.DB
	logger          *logrus.Logger
	collectInterval time.Duration

	dbConnectionsGauge *prometheus.GaugeVec
	dbQueriesCounter   *prometheus.CounterVec
	dbQueryDuration    *prometheus.HistogramVec
	dbErrorsCounter    *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器并注册到 reg
func NewMetricsCollector(db *sql.DB, reg prometheus.Registerer, logger *logrus.Logger) *MetricsCollector {
	mc := &MetricsCollector{
		db:              db,
		logger:          logger,
		collectInterval: 15 * time.Second,
		dbConnectionsGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "support_rag_database_connections",
				Help: "Number of database connections in different states",
			},
			[]string{"state"},
		),
		dbQueriesCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "support_rag_database_queries_total",
				Help: "Total number of database queries executed",
			},
			[]string{"operation", "table", "status"},
		),
		dbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "support_rag_database_query_duration_seconds",
				Help:    "Duration of database queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		dbErrorsCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "support_rag_database_errors_total",
				Help: "Total number of database errors",
			},
			[]string{"operation", "error_type"},
		),
	}

	if reg != nil {
		reg.MustRegister(mc.dbConnectionsGauge, mc.dbQueriesCounter, mc.dbQueryDuration, mc.dbErrorsCounter)
	}
	return mc
}

// SetCollectInterval 设置连接池采样间隔
func (mc *MetricsCollector) SetCollectInterval(interval time.Duration) {
	mc.collectInterval = interval
}

// Start 定期采样连接池状态，ctx 取消后退出
func (mc *MetricsCollector) Start(ctx context.Context) {
	mc.logger.Info("Starting database metrics collection")

	go func() {
		ticker := time.NewTicker(mc.collectInterval)
		defer ticker.Stop()

		mc.collectMetrics()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mc.collectMetrics()
			}
		}
	}()
}

func (mc *MetricsCollector) collectMetrics() {
	stats := mc.db.Stats()

	mc.dbConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
	mc.dbConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
	mc.dbConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
	mc.dbConnectionsGauge.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
	mc.dbConnectionsGauge.WithLabelValues("max_idle_closed").Set(float64(stats.MaxIdleClosed))
	mc.dbConnectionsGauge.WithLabelValues("max_lifetime_closed").Set(float64(stats.MaxLifetimeClosed))

	mc.logger.WithFields(logrus.Fields{
		"idle":   stats.Idle,
		"in_use": stats.InUse,
		"open":   stats.OpenConnections,
		"wait":   stats.WaitCount,
	}).Debug("Database connection pool stats collected")
}

// RecordQuery 记录查询操作
func (mc *MetricsCollector) RecordQuery(operation, table string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		mc.dbErrorsCounter.WithLabelValues(operation, "query_error").Inc()
	}

	mc.dbQueriesCounter.WithLabelValues(operation, table, status).Inc()
	mc.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordConnectionError 记录连接错误
func (mc *MetricsCollector) RecordConnectionError(errorType string) {
	mc.dbErrorsCounter.WithLabelValues("connection", errorType).Inc()
}

// RecordMigration 记录迁移操作
func (mc *MetricsCollector) RecordMigration(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		mc.dbErrorsCounter.WithLabelValues("migration", "migration_error").Inc()
	}

	mc.dbQueriesCounter.WithLabelValues("migration", operation, status).Inc()
	if err == nil {
		mc.dbQueryDuration.WithLabelValues("migration", operation).Observe(duration.Seconds())
	}
}

// Instrument 在 gorm 的增删改查回调前后记录耗时，ErrRecordNotFound 不计为失败
func (mc *MetricsCollector) Instrument(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(queryStartKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(queryStartKey)
			if !ok {
				return
			}
			start, _ := v.(time.Time)
			err := tx.Error
			if err == gorm.ErrRecordNotFound {
				err = nil
			}
			mc.RecordQuery(operation, tx.Statement.Table, time.Since(start), err)
		}
	}

	cb := db.Callback()
	steps := []struct {
		operation string
		register  func(name string, before, after func(*gorm.DB)) error
	}{
		{"select", func(name string, b, a func(*gorm.DB)) error {
			if err := cb.Query().Before("gorm:query").Register(name+":before", b); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register(name+":after", a)
		}},
		{"insert", func(name string, b, a func(*gorm.DB)) error {
			if err := cb.Create().Before("gorm:create").Register(name+":before", b); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register(name+":after", a)
		}},
		{"update", func(name string, b, a func(*gorm.DB)) error {
			if err := cb.Update().Before("gorm:update").Register(name+":before", b); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register(name+":after", a)
		}},
		{"delete", func(name string, b, a func(*gorm.DB)) error {
			if err := cb.Delete().Before("gorm:delete").Register(name+":before", b); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register(name+":after", a)
		}},
		{"raw", func(name string, b, a func(*gorm.DB)) error {
			if err := cb.Raw().Before("gorm:raw").Register(name+":before", b); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register(name+":after", a)
		}},
	}
	for _, step := range steps {
		if err := step.register("metrics:"+step.operation, before, after(step.operation)); err != nil {
			return err
		}
	}
	return nil
}

// GetStats 获取当前连接池统计信息
func (mc *MetricsCollector) GetStats() sql.DBStats {
	return mc.db.Stats()
}
