package main

import (
	"log"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	"github.com/aihub/support-rag/app/bootstrap"
	"github.com/aihub/support-rag/internal/logger"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	logger.Info("🚀 Starting Support RAG Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
