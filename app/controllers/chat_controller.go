package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aihub/support-rag/internal/errors"
	"github.com/aihub/support-rag/internal/services"
)

// ChatService 检索增强问答，由 services.ChatService 实现
type ChatService interface {
	Chat(ctx context.Context, req services.ChatRequest) (*services.ChatResponse, error)
	ChatStream(ctx context.Context, req services.ChatRequest, onToken services.TokenHandler) (*services.ChatResponse, error)
}

// ChatController 问答接口
type ChatController struct {
	BaseController
	Chat ChatService
}

// Answer POST /ai/chat，完整返回回答
func (c *ChatController) Answer() {
	var req services.ChatRequest
	if !c.bindJSON(&req) {
		return
	}

	resp, err := c.Chat.Chat(c.Ctx.Request.Context(), req)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess("success", resp)
}

// Stream POST /ai/chat/stream，以 SSE 推送回答片段
//
// 事件：默认事件为 {"content": "..."}；结束时 event: done 携带完整结果；
// 开始推送后出错时 event: error。推送前出错按普通 JSON 错误返回。
func (c *ChatController) Stream() {
	var req services.ChatRequest
	if !c.bindJSON(&req) {
		return
	}

	c.EnableRender = false
	w := c.Ctx.ResponseWriter
	flusher, _ := interface{}(w).(http.Flusher)

	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}
	send := func(event string, payload interface{}) error {
		begin()
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if event != "" {
			if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	resp, err := c.Chat.ChatStream(c.Ctx.Request.Context(), req, func(content string) error {
		return send("", map[string]string{"content": content})
	})
	if err != nil {
		if !started {
			c.EnableRender = true
			c.JSONAppError(err)
			return
		}
		appErr := errors.Translate(err)
		c.Monitor.RecordError(appErr, c.endpoint(), time.Since(c.started))
		_ = send("error", Response{Code: appErr.HTTPCode, Message: appErr.Message, Data: map[string]interface{}{"error_code": appErr.Code}})
		return
	}
	_ = send("done", resp)
}
