package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/aihub/support-rag/internal/config"
)

// Database 数据库连接以及附带的健康检查和指标
type Database struct {
	db            *gorm.DB
	sqlDB         *sql.DB
	healthChecker *HealthChecker
	metrics       *MetricsCollector
}

// NewDatabase 包装已打开的连接，注册 postgres 探测与查询指标
func NewDatabase(db *gorm.DB, reg prometheus.Registerer, log *logrus.Logger) (*Database, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	healthChecker := NewHealthChecker(log)
	healthChecker.AddProbe("postgres", PingDB(sqlDB))

	metrics := NewMetricsCollector(sqlDB, reg, log)
	if err := metrics.Instrument(db); err != nil {
		return nil, fmt.Errorf("failed to register query metrics: %w", err)
	}

	return &Database{
		db:            db,
		sqlDB:         sqlDB,
		healthChecker: healthChecker,
		metrics:       metrics,
	}, nil
}

// Connect 按配置打开连接并按需执行迁移
func Connect(cfg *config.Config, reg prometheus.Registerer, log *logrus.Logger) (*Database, error) {
	db, err := OpenPostgres(cfg.Database, cfg.Server.Env)
	if err != nil {
		return nil, err
	}

	wrapped, err := NewDatabase(db, reg, log)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := RunMigrations(db, log, wrapped.metrics); err != nil {
			return nil, err
		}
	}

	DB = db
	log.Info("Database connected successfully")
	return wrapped, nil
}

// AddRedis 把 Redis 加入健康检查
func (d *Database) AddRedis(client redis.Cmdable) {
	if client != nil {
		d.healthChecker.AddProbe("redis", PingRedis(client))
	}
}

// GetDB 获取数据库连接
func (d *Database) GetDB() *gorm.DB {
	return d.db
}

// Close 关闭数据库连接
func (d *Database) Close() error {
	d.healthChecker.Stop()
	if d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}

// HealthCheck 立即执行一次全部探测
func (d *Database) HealthCheck(ctx context.Context) error {
	return d.healthChecker.Check(ctx)
}

// StartMonitoring 后台启动健康检查和连接池采样
func (d *Database) StartMonitoring(ctx context.Context) {
	go d.healthChecker.Start(ctx)
	d.metrics.Start(ctx)
}

// GetHealthStatus 获取最近一次健康检查结果
func (d *Database) GetHealthStatus() HealthCheckResult {
	return d.healthChecker.GetHealthResult()
}

// Metrics 查询指标收集器
func (d *Database) Metrics() *MetricsCollector {
	return d.metrics
}
