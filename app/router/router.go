package router

import (
	"github.com/beego/beego/v2/server/web"

	"github.com/aihub/support-rag/app/controllers"
	"github.com/aihub/support-rag/app/middleware"
)

// Controllers 已注入依赖的控制器
type Controllers struct {
	QA      *controllers.QAController
	Chat    *controllers.ChatController
	Health  *controllers.HealthController
	Metrics *controllers.MetricsController
}

// Options 路由选项
type Options struct {
	MetricsPath    string
	AllowedOrigins []string
}

// Build 构建全部路由
func Build(c Controllers, opts Options) *RouteGroup {
	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	root := NewRouteGroup("").
		Use(middleware.RequestID(), middleware.CORS(opts.AllowedOrigins)).
		After(middleware.AccessLog())
	root.GET("/health", c.Health, "Health", "健康检查")
	if c.Metrics != nil {
		root.GET(metricsPath, c.Metrics, "Metrics", "指标数据")
	}

	qa := root.Group("/qa")
	qa.POST("/create", c.QA, "Create", "创建QA文档")
	qa.POST("/search", c.QA, "Search", "搜索QA文档")
	qa.POST("/list", c.QA, "List", "获取QA文档列表")
	qa.POST("/batch/delete", c.QA, "BatchDelete", "批量删除QA文档")
	qa.GET("/:id", c.QA, "Get", "获取QA文档")
	qa.POST("/:id/update", c.QA, "Update", "更新QA文档")
	qa.POST("/:id/delete", c.QA, "Delete", "删除QA文档")

	ai := root.Group("/ai")
	ai.POST("/chat", c.Chat, "Answer", "问答接口")
	ai.POST("/chat/stream", c.Chat, "Stream", "流式问答接口")

	return root
}

// Init 注册到 beego 默认应用。Must be called after config is loaded.
func Init(c Controllers, opts Options) error {
	return Build(c, opts).Register(web.BeeApp.Handlers)
}
