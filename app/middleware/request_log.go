package middleware

import (
	"time"

	"github.com/beego/beego/v2/server/web"
	"github.com/beego/beego/v2/server/web/context"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aihub/support-rag/internal/logger"
)

// RequestIDHeader 请求 ID 头，调用方未携带时生成
const RequestIDHeader = "X-Request-ID"

const requestStartKey = "request_start"

// RequestID 路由前过滤器：分配请求 ID 并记录开始时间
func RequestID() web.FilterFunc {
	return func(ctx *context.Context) {
		id := ctx.Input.Header(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Input.SetData("request_id", id)
		ctx.Input.SetData(requestStartKey, time.Now())
		ctx.Output.Header(RequestIDHeader, id)
	}
}

// AccessLog 请求结束后的过滤器，需以 WithReturnOnOutput(false) 注册
func AccessLog() web.FilterFunc {
	log := logger.Named("http")
	return func(ctx *context.Context) {
		fields := []zap.Field{
			zap.String("method", ctx.Input.Method()),
			zap.String("path", ctx.Input.URL()),
			zap.Int("status", ctx.ResponseWriter.Status),
			zap.String("ip", ctx.Input.IP()),
		}
		if id, ok := ctx.Input.GetData("request_id").(string); ok {
			fields = append(fields, zap.String("request_id", id))
		}
		if start, ok := ctx.Input.GetData(requestStartKey).(time.Time); ok {
			fields = append(fields, zap.Duration("latency", time.Since(start)))
		}

		if ctx.ResponseWriter.Status >= 500 {
			log.Warn("request", fields...)
			return
		}
		log.Info("request", fields...)
	}
}
