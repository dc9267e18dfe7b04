package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Probe 单个依赖的健康探测
type Probe func(ctx context.Context) error

// PingDB PostgreSQL 探测
func PingDB(db *sql.DB) Probe {
	return db.PingContext
}

// PingRedis Redis 探测
func PingRedis(client redis.Cmdable) Probe {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// ComponentStatus 单个依赖的检查结果
type ComponentStatus struct {
	Healthy      bool      `json:"healthy"`
	LastCheck    time.Time `json:"last_check"`
	LastError    string    `json:"last_error,omitempty"`
	ResponseTime string    `json:"response_time,omitempty"`
}

// HealthCheckResult 健康检查结果
type HealthCheckResult struct {
	Healthy    bool                       `json:"healthy"`
	LastCheck  time.Time                  `json:"last_check"`
	Components map[string]ComponentStatus `json:"components"`
}

// HealthChecker 依赖健康检查器，所有探测都通过才算健康
type HealthChecker struct {
	logger        *logrus.Logger
	checkInterval time.Duration
	timeout       time.Duration
	retryDelay    time.Duration
	maxRetries    int

	mu        sync.RWMutex
	names     []string
	probes    map[string]Probe
	status    map[string]ComponentStatus
	lastCheck time.Time
	stopChan  chan struct{}
	running   bool
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		logger:        logger,
		checkInterval: 30 * time.Second,
		timeout:       5 * time.Second,
		retryDelay:    5 * time.Second,
		maxRetries:    3,
		probes:        make(map[string]Probe),
		status:        make(map[string]ComponentStatus),
		stopChan:      make(chan struct{}),
	}
}

// AddProbe 注册探测，同名覆盖
func (hc *HealthChecker) AddProbe(name string, probe Probe) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if _, ok := hc.probes[name]; !ok {
		hc.names = append(hc.names, name)
	}
	hc.probes[name] = probe
}

// SetCheckInterval 设置检查间隔
func (hc *HealthChecker) SetCheckInterval(interval time.Duration) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkInterval = interval
}

// SetRetryConfig 设置重试配置
func (hc *HealthChecker) SetRetryConfig(delay time.Duration, maxRetries int) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.retryDelay = delay
	hc.maxRetries = maxRetries
}

// Start 阻塞执行周期检查，直到 ctx 取消或调用 Stop
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.mu.Lock()
	if hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = true
	interval, stop := hc.checkInterval, hc.stopChan
	hc.mu.Unlock()

	hc.logger.Info("Starting health checker")
	go hc.checkAndUpdate(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hc.markStopped()
			return
		case <-stop:
			hc.markStopped()
			return
		case <-ticker.C:
			go hc.checkAndUpdate(ctx)
		}
	}
}

func (hc *HealthChecker) markStopped() {
	hc.mu.Lock()
	hc.running = false
	hc.mu.Unlock()
	hc.logger.Info("Health checker stopped")
}

// Stop 停止健康检查
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if !hc.running {
		return
	}
	close(hc.stopChan)
	hc.stopChan = make(chan struct{})
}

// Check 依次执行全部探测，返回合并后的错误
func (hc *HealthChecker) Check(ctx context.Context) error {
	hc.mu.RLock()
	names := append([]string(nil), hc.names...)
	probes := make(map[string]Probe, len(hc.probes))
	for k, v := range hc.probes {
		probes[k] = v
	}
	hc.mu.RUnlock()

	var errs []error
	for _, name := range names {
		if err := hc.checkOne(ctx, name, probes[name]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	hc.mu.Lock()
	hc.lastCheck = time.Now()
	hc.mu.Unlock()
	return errors.Join(errs...)
}

func (hc *HealthChecker) checkOne(ctx context.Context, name string, probe Probe) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	err := probe(ctx)
	responseTime := time.Since(start)

	hc.mu.Lock()
	prev := hc.status[name]
	st := ComponentStatus{
		Healthy:      err == nil,
		LastCheck:    time.Now(),
		ResponseTime: responseTime.String(),
	}
	if err != nil {
		st.LastError = err.Error()
	}
	hc.status[name] = st
	hc.mu.Unlock()

	fields := logrus.Fields{"component": name, "response_time": responseTime}
	switch {
	case err != nil:
		hc.logger.WithFields(fields).WithError(err).Warn("Health check failed")
	case !prev.Healthy && !prev.LastCheck.IsZero():
		hc.logger.WithFields(fields).Info("Connection restored")
	default:
		hc.logger.WithFields(fields).Debug("Health check passed")
	}
	return err
}

func (hc *HealthChecker) checkAndUpdate(ctx context.Context) {
	if err := hc.Check(ctx); err != nil {
		hc.retryWithBackoff(ctx)
	}
}

func (hc *HealthChecker) retryWithBackoff(ctx context.Context) {
	hc.mu.RLock()
	delay, maxRetries := hc.retryDelay, hc.maxRetries
	hc.mu.RUnlock()

	for i := 0; i < maxRetries; i++ {
		hc.logger.WithField("attempt", i+1).Info("Retrying health check")

		select {
		case <-time.After(delay * time.Duration(i+1)):
			if err := hc.Check(ctx); err == nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}

	hc.logger.Error("Health check failed after all retries")
}

// IsHealthy 至少检查过一次且所有依赖都健康
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.healthyLocked()
}

func (hc *HealthChecker) healthyLocked() bool {
	if len(hc.names) == 0 {
		return true
	}
	for _, name := range hc.names {
		st, ok := hc.status[name]
		if !ok || !st.Healthy {
			return false
		}
	}
	return true
}

// GetHealthResult 获取健康检查结果
func (hc *HealthChecker) GetHealthResult() HealthCheckResult {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	components := make(map[string]ComponentStatus, len(hc.names))
	for _, name := range hc.names {
		components[name] = hc.status[name]
	}
	return HealthCheckResult{
		Healthy:    hc.healthyLocked(),
		LastCheck:  hc.lastCheck,
		Components: components,
	}
}

// WaitForHealthy 等待所有依赖变为健康状态
func (hc *HealthChecker) WaitForHealthy(ctx context.Context, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if hc.IsHealthy() {
			return nil
		}
		select {
		case <-timeoutCtx.Done():
			return timeoutCtx.Err()
		case <-ticker.C:
		}
	}
}
