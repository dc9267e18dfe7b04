package bootstrap

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/aihub/support-rag/app/controllers"
	"github.com/aihub/support-rag/app/router"
	"github.com/aihub/support-rag/internal/config"
	"github.com/aihub/support-rag/internal/database"
	"github.com/aihub/support-rag/internal/di"
	"github.com/aihub/support-rag/internal/errors"
	"github.com/aihub/support-rag/internal/kafka"
	"github.com/aihub/support-rag/internal/logger"
	"github.com/aihub/support-rag/internal/services"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Config    *config.Config
	Container *dig.Container

	cleanupTasks []func() error
	cancel       context.CancelFunc
}

// Init bootstraps configuration, logger, database connections and other shared
// infrastructure components required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.Current()

	if err := logger.InitLogger(cfg.Server.Env, cfg.Log.Level); err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Container: di.InitContainer()}
	if err := di.RegisterProviders(app.Container, cfg); err != nil {
		return nil, err
	}

	db, err := di.Resolve[*database.Database](app.Container)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.cleanupTasks = append(app.cleanupTasks, db.Close)

	// Redis 与 Kafka 均为可选，失败不阻塞启动
	if rdb, err := di.Resolve[*redis.Client](app.Container); err == nil && rdb != nil {
		app.cleanupTasks = append(app.cleanupTasks, database.CloseRedis)
	}
	if producer, err := di.Resolve[*kafka.Producer](app.Container); err == nil && producer != nil {
		app.cleanupTasks = append(app.cleanupTasks, producer.Close)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	db.StartMonitoring(ctx)

	if err := app.initRoutes(db); err != nil {
		cancel()
		return nil, err
	}

	config.Watch(func(c *config.Config) {
		if err := logger.InitLogger(c.Server.Env, c.Log.Level); err != nil {
			logger.Warn("Failed to apply log level", zap.Error(err))
			return
		}
		logger.Info("Configuration reloaded; connection settings apply after restart",
			zap.String("log_level", c.Log.Level))
	})

	configureBeego(cfg)
	logger.Info("Application initialized",
		zap.String("env", cfg.Server.Env),
		zap.Int("models", len(cfg.AI.Models)),
		zap.Bool("emotion", cfg.AI.Emotion),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled))
	return app, nil
}

func (a *App) initRoutes(db *database.Database) error {
	var ctrls router.Controllers
	err := a.Container.Invoke(func(qa *services.QAService, chat *services.ChatService, ms *services.MetricsService, monitor *errors.ErrorMonitor) {
		base := controllers.BaseController{Monitor: monitor}
		ctrls = router.Controllers{
			QA:     &controllers.QAController{BaseController: base, QA: qa},
			Chat:   &controllers.ChatController{BaseController: base, Chat: chat},
			Health: &controllers.HealthController{BaseController: base, Reporter: db},
		}
		if a.Config.Prometheus.Enabled {
			ctrls.Metrics = &controllers.MetricsController{Handler: ms.Handler()}
		}
	})
	if err != nil {
		return fmt.Errorf("failed to build controllers: %w", err)
	}
	return router.Init(ctrls, router.Options{
		MetricsPath:    a.Config.Prometheus.Path,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
	})
}

func configureBeego(cfg *config.Config) {
	web.BConfig.AppName = "Support RAG Service"
	web.BConfig.CopyRequestBody = true
	web.BConfig.Listen.HTTPPort = HTTPPort(cfg.Server.Port)
	if cfg.Server.Env == "production" {
		web.BConfig.RunMode = web.PROD
	}
}

// HTTPPort 解析端口配置，非法值回退到 8080
func HTTPPort(port string) int {
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return 8080
	}
	return p
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
