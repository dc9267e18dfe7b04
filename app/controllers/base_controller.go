package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/aihub/support-rag/internal/errors"
	"github.com/aihub/support-rag/internal/logger"
)

// validationCode 请求体格式或字段校验失败时的业务码
const validationCode = 1024

// Response 统一响应格式
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller

	// Monitor 为空时不统计错误
	Monitor *errors.ErrorMonitor

	started time.Time
}

// Prepare 记录请求开始时间
func (c *BaseController) Prepare() {
	c.started = time.Now()
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	if err := c.ServeJSON(); err != nil {
		logger.Warn("写入响应失败", zap.Error(err))
	}
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(message string, data interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: message, Data: data})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, Response{Code: status, Message: message, Data: map[string]interface{}{}})
}

// JSONAppError 把任意错误转换为 AppError 后输出，并计入错误监控
func (c *BaseController) JSONAppError(err error) {
	appErr := errors.Translate(err)
	c.Monitor.RecordError(appErr, c.endpoint(), time.Since(c.started))

	code := appErr.HTTPCode
	if appErr.Type == errors.ErrorTypeValidation {
		code = validationCode
	}

	data := map[string]interface{}{"error_code": appErr.Code}
	if appErr.Details != nil {
		data["details"] = appErr.Details
	}

	fields := []zap.Field{
		zap.String("path", c.Ctx.Request.URL.Path),
		zap.String("code", string(appErr.Code)),
		zap.Error(err),
	}
	if appErr.HTTPCode >= http.StatusInternalServerError {
		logger.Error("请求处理失败", fields...)
	} else {
		logger.Debug("请求被拒绝", fields...)
	}

	c.JSON(appErr.HTTPCode, Response{Code: code, Message: appErr.Message, Data: data})
}

// bindJSON 解析请求体，空请求体按 {} 处理
func (c *BaseController) bindJSON(v interface{}) bool {
	body := c.Ctx.Input.RequestBody
	if len(body) == 0 && c.Ctx.Request.Body != nil {
		b, err := io.ReadAll(c.Ctx.Request.Body)
		if err != nil {
			c.JSONAppError(errors.NewInvalidInputError("body", err.Error()))
			return false
		}
		body = b
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		c.JSONAppError(errors.NewInvalidInputError("body", "invalid JSON"))
		return false
	}
	return true
}

// pathID 解析路径中的正整数 ID
func (c *BaseController) pathID(key string) (uint, bool) {
	id, err := strconv.ParseUint(c.Ctx.Input.Param(key), 10, 64)
	if err != nil || id == 0 {
		c.JSONAppError(errors.NewInvalidInputError(strings.TrimPrefix(key, ":"), "must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}

// endpoint 错误监控使用路由模式，避免 ID 造成标签爆炸
func (c *BaseController) endpoint() string {
	if pattern, ok := c.Ctx.Input.GetData("RouterPattern").(string); ok && pattern != "" {
		return pattern
	}
	return c.Ctx.Request.URL.Path
}
