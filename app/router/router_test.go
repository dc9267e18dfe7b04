package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/beego/beego/v2/server/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/support-rag/app/controllers"
	"github.com/aihub/support-rag/app/middleware"
)

func testControllers() Controllers {
	return Controllers{
		QA:     &controllers.QAController{},
		Chat:   &controllers.ChatController{},
		Health: &controllers.HealthController{},
	}
}

func TestBuildRoutes(t *testing.T) {
	routes := Build(testControllers(), Options{}).GetAllRoutes()

	got := make(map[string]string, len(routes))
	for _, r := range routes {
		got[r.Method+" "+r.Path] = r.Handler
	}
	assert.Equal(t, map[string]string{
		"GET /health":           "Health",
		"POST /qa/create":       "Create",
		"POST /qa/search":       "Search",
		"POST /qa/list":         "List",
		"POST /qa/batch/delete": "BatchDelete",
		"GET /qa/:id":           "Get",
		"POST /qa/:id/update":   "Update",
		"POST /qa/:id/delete":   "Delete",
		"POST /ai/chat":         "Answer",
		"POST /ai/chat/stream":  "Stream",
	}, got)
}

func TestBuildRoutesWithMetrics(t *testing.T) {
	c := testControllers()
	c.Metrics = &controllers.MetricsController{}
	routes := Build(c, Options{MetricsPath: "/internal/metrics"}).GetAllRoutes()

	found := false
	for _, r := range routes {
		if r.Path == "/internal/metrics" && r.Method == "GET" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRegisterServesHealthWithRequestID(t *testing.T) {
	handlers := web.NewControllerRegister()
	require.NoError(t, Build(testControllers(), Options{}).Register(handlers))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	handlers.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestRegisterCORSPreflight(t *testing.T) {
	handlers := web.NewControllerRegister()
	require.NoError(t, Build(testControllers(), Options{AllowedOrigins: []string{"http://localhost:5173"}}).Register(handlers))

	req := httptest.NewRequest(http.MethodOptions, "/ai/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handlers.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/ai/chat", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	handlers.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
