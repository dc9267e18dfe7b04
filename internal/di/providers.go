package di

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aihub/support-rag/internal/config"
	"github.com/aihub/support-rag/internal/database"
	"github.com/aihub/support-rag/internal/errors"
	"github.com/aihub/support-rag/internal/kafka"
	"github.com/aihub/support-rag/internal/knowledge"
	"github.com/aihub/support-rag/internal/llm"
	"github.com/aihub/support-rag/internal/logger"
	"github.com/aihub/support-rag/internal/repository"
	"github.com/aihub/support-rag/internal/services"
)

// RegisterProviders 注册配置、基础设施和业务服务
func RegisterProviders(container *dig.Container, cfg *config.Config) error {
	if err := RegisterInfrastructure(container, cfg); err != nil {
		return err
	}
	return RegisterServices(container)
}

// RegisterInfrastructure 注册需要外部连接的依赖：PostgreSQL、Redis、Kafka
func RegisterInfrastructure(container *dig.Container, cfg *config.Config) error {
	providers := []interface{}{
		func() *config.Config { return cfg },
		func() *zap.Logger { return logger.GetLogger() },
		NewDatabaseLogger,
		services.NewMetricsService,
		func(ms *services.MetricsService) prometheus.Registerer { return ms.Registry() },
		func(cfg *config.Config, reg prometheus.Registerer, log *logrus.Logger) (*database.Database, error) {
			return database.Connect(cfg, reg, log)
		},
		func(db *database.Database) *gorm.DB { return db.GetDB() },
		NewRedis,
		NewAuditProducer,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

// RegisterServices 注册检索、模型和问答服务。依赖 *config.Config、*zap.Logger、*gorm.DB 和 *services.MetricsService
func RegisterServices(container *dig.Container) error {
	providers := []interface{}{
		NewEmbedder,
		func(db *gorm.DB) knowledge.VectorStore { return knowledge.NewPGVectorStore(db) },
		func(cfg *config.Config, emb knowledge.Embedder, store knowledge.VectorStore, log *zap.Logger) *knowledge.Retriever {
			return knowledge.NewRetriever(emb, store, cfg.Knowledge.Retrieval.MaxDistance, log.Named("retriever"))
		},
		func(cfg *config.Config, log *zap.Logger) (*llm.Registry, error) {
			return llm.NewRegistryFromConfig(cfg.AI, log.Named("llm"))
		},
		repository.NewQARepository,
		services.NewQAService,
		NewEmotionService,
		NewChatService,
		func(ms *services.MetricsService) *errors.ErrorMonitor {
			return errors.NewErrorMonitor(ms.Registry())
		},
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

// NewDatabaseLogger 数据库层使用的 logrus 日志
func NewDatabaseLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// NewRedis 启用时连接 Redis 并加入健康检查；未启用或连接失败时返回 nil，向量缓存关闭
func NewRedis(cfg *config.Config, db *database.Database, log *logrus.Logger) *redis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := database.InitRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.WithError(err).Warn("Failed to initialize Redis, embedding cache off")
		return nil
	}
	if client != nil {
		db.AddRedis(client)
	}
	return client
}

// NewAuditProducer Kafka 未启用或连接失败时返回 nil，问答不受影响
func NewAuditProducer(cfg *config.Config) *kafka.Producer {
	if !cfg.Kafka.Enabled {
		return nil
	}
	producer, err := kafka.InitProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		logger.Warn("Failed to initialize Kafka producer", zap.Error(err))
		return nil
	}
	return producer
}

// EmbedderParams 向量生成器依赖，Redis 可选
type EmbedderParams struct {
	dig.In

	Config  *config.Config
	Logger  *zap.Logger
	Metrics *services.MetricsService
	Redis   *redis.Client `optional:"true"`
}

// NewEmbedder Redis 可用时在外层加缓存
func NewEmbedder(p EmbedderParams) knowledge.Embedder {
	emb := p.Config.Knowledge.Embedding
	inner := knowledge.NewOpenAIEmbedder(knowledge.EmbedderConfig{
		BaseURL:    emb.BaseURL,
		APIKey:     emb.APIKey,
		Model:      emb.Model,
		Dimensions: emb.Dimensions,
	})
	if p.Redis == nil {
		return inner
	}
	ttl := time.Duration(p.Config.Redis.TTL) * time.Second
	cached := knowledge.NewCachedEmbedder(inner, knowledge.NewRedisCache(p.Redis), emb.Model, ttl, p.Logger.Named("embed_cache"))
	p.Metrics.TrackEmbeddingCache(cached.HitRate)
	return cached
}

// NewEmotionService 未开启情绪识别时返回 nil
func NewEmotionService(cfg *config.Config, registry *llm.Registry) *services.EmotionService {
	if !cfg.AI.Emotion {
		return nil
	}
	return services.NewEmotionService(registry, cfg.AI.EmotionModel)
}

// ChatParams 问答服务依赖，审计与情绪识别可选
type ChatParams struct {
	dig.In

	Config    *config.Config
	Logger    *zap.Logger
	Retriever *knowledge.Retriever
	Registry  *llm.Registry
	Metrics   *services.MetricsService
	Emotion   *services.EmotionService `optional:"true"`
	Audit     *kafka.Producer          `optional:"true"`
}

func NewChatService(p ChatParams) *services.ChatService {
	opts := []services.ChatOption{
		services.WithMetrics(p.Metrics),
		services.WithChatLogger(p.Logger.Named("chat")),
		services.WithTopK(p.Config.Knowledge.Retrieval.TopK),
		services.WithDiffColor(p.Config.Knowledge.Retrieval.DiffColor),
	}
	if p.Emotion != nil {
		opts = append(opts, services.WithEmotion(p.Emotion))
	}
	if p.Audit != nil {
		opts = append(opts, services.WithAudit(p.Audit))
	}
	return services.NewChatService(p.Retriever, p.Registry, opts...)
}
