package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/beego/beego/v2/server/web"
	"github.com/beego/beego/v2/server/web/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aihub/support-rag/internal/logger"
)

func newHandlers(t *testing.T) *web.ControllerRegister {
	t.Helper()
	handlers := web.NewControllerRegister()
	require.NoError(t, handlers.InsertFilter("/*", web.BeforeRouter, RequestID()))
	require.NoError(t, handlers.InsertFilter("/*", web.BeforeRouter, CORS(nil)))
	require.NoError(t, handlers.InsertFilter("/*", web.FinishRouter, AccessLog(), web.WithReturnOnOutput(false)))
	handlers.Get("/ping", func(ctx *context.Context) {
		_ = ctx.Output.Body([]byte("pong"))
	})
	return handlers
}

func TestRequestIDGenerated(t *testing.T) {
	handlers := newHandlers(t)

	rec := httptest.NewRecorder()
	handlers.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, "pong", rec.Body.String())
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestAccessLogWritesRequestLine(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := logger.GetLogger()
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(prev) })

	handlers := newHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	handlers.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/ping", fields["path"])
	assert.Equal(t, "abc", fields["request_id"])
	assert.Equal(t, "GET", fields["method"])
}

func TestCORSAllowsAnyOriginWhenUnconfigured(t *testing.T) {
	handlers := newHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handlers.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "pong", rec.Body.String())
}
