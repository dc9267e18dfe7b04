package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationManager 数据库迁移管理器
type MigrationManager struct {
	migrate *migrate.Migrate
	logger  *logrus.Logger
	metrics *MetricsCollector
}

// NewMigrationManager 使用内置的 migrations 目录创建迁移管理器
func NewMigrationManager(db *sql.DB, logger *logrus.Logger) (*MigrationManager, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return &MigrationManager{migrate: m, logger: logger}, nil
}

// NewMigrationManagerFromPath 从磁盘目录读取迁移文件，供 cmd/migrate 指定 -path 时使用
func NewMigrationManagerFromPath(db *sql.DB, migrationPath string, logger *logrus.Logger) (*MigrationManager, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationPath),
		"postgres",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return &MigrationManager{migrate: m, logger: logger}, nil
}

// WithMetrics 记录迁移耗时和失败次数
func (mm *MigrationManager) WithMetrics(mc *MetricsCollector) *MigrationManager {
	mm.metrics = mc
	return mm
}

// Up 执行所有待执行的迁移
func (mm *MigrationManager) Up() error {
	mm.logger.Info("Starting database migration up")
	start := time.Now()

	err := mm.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		mm.logger.Info("No migrations to apply")
		return nil
	}
	mm.record("up", start, err)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	mm.logger.Info("Database migrations completed successfully")
	return nil
}

// UpTo 迁移到指定版本，版本低于当前时即为回滚
func (mm *MigrationManager) UpTo(version uint) error {
	mm.logger.Infof("Migrating to version %d", version)
	start := time.Now()

	err := mm.migrate.Migrate(version)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	mm.record("goto", start, err)
	if err != nil {
		return fmt.Errorf("failed to migrate to version %d: %w", version, err)
	}

	mm.logger.Infof("Successfully migrated to version %d", version)
	return nil
}

// Down 回滚最后一次迁移
func (mm *MigrationManager) Down() error {
	mm.logger.Info("Rolling back last migration")
	start := time.Now()

	err := mm.migrate.Steps(-1)
	mm.record("down", start, err)
	if err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	mm.logger.Info("Migration rollback completed")
	return nil
}

// Version 获取当前数据库版本，未执行过迁移时返回 0
func (mm *MigrationManager) Version() (uint, bool, error) {
	version, dirty, err := mm.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// ForceVersion 强制设置数据库版本（用于修复脏状态）
func (mm *MigrationManager) ForceVersion(version uint) error {
	mm.logger.Warnf("Force setting migration version to %d", version)

	if err := mm.migrate.Force(int(version)); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	return nil
}

// Close 关闭迁移管理器
func (mm *MigrationManager) Close() error {
	sourceErr, dbErr := mm.migrate.Close()
	if sourceErr != nil {
		mm.logger.Errorf("Error closing migration source: %v", sourceErr)
	}
	if dbErr != nil {
		mm.logger.Errorf("Error closing migration database: %v", dbErr)
	}

	if sourceErr != nil || dbErr != nil {
		return fmt.Errorf("errors occurred while closing migrator: source=%v, db=%v", sourceErr, dbErr)
	}
	return nil
}

func (mm *MigrationManager) record(operation string, start time.Time, err error) {
	if mm.metrics != nil {
		mm.metrics.RecordMigration(operation, time.Since(start), err)
	}
}
