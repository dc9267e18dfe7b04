package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/aihub/support-rag/internal/database"
)

// HealthReporter 依赖健康检查，由 database.Database 实现
type HealthReporter interface {
	HealthCheck(ctx context.Context) error
	GetHealthStatus() database.HealthCheckResult
}

// HealthController 健康检查
type HealthController struct {
	BaseController
	Reporter HealthReporter
}

// Health GET /health，立即执行一次全部探测
func (c *HealthController) Health() {
	if c.Reporter == nil {
		c.JSONSuccess("healthy", map[string]interface{}{"status": "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Ctx.Request.Context(), 5*time.Second)
	defer cancel()

	err := c.Reporter.HealthCheck(ctx)
	result := c.Reporter.GetHealthStatus()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, Response{
			Code:    http.StatusServiceUnavailable,
			Message: "unhealthy",
			Data:    result,
		})
		return
	}
	c.JSONSuccess("healthy", result)
}
