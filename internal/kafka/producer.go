package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aihub/support-rag/internal/logger"
)

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// ChatAuditEvent 一次问答的审计记录
type ChatAuditEvent struct {
	RequestID string    `json:"request_id"`
	KBID      uint      `json:"kb_id"`
	PointID   *uint     `json:"point_id,omitempty"`
	Model     string    `json:"model"`
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	Sources   []uint    `json:"sources"`
	Emotion   string    `json:"emotion,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var globalProducer *Producer

// NewSyncProducerConfig 生产者配置：等待所有副本确认，失败重试 5 次
func NewSyncProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second
	return config
}

// InitProducer 初始化全局Kafka生产者
func InitProducer(brokers []string, topic string) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewSyncProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	globalProducer = NewProducer(producer, topic)
	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return globalProducer, nil
}

// NewProducer 包装已有的 SyncProducer
func NewProducer(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic}
}

// GetProducer 获取全局生产者实例
func GetProducer() *Producer {
	return globalProducer
}

// PublishChatAudit 发送审计记录，按知识库分区
func (p *Producer) PublishChatAudit(ctx context.Context, event *ChatAuditEvent) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("Kafka生产者未初始化")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	kbID := strconv.FormatUint(uint64(event.KBID), 10)
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(kbID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kb_id"), Value: []byte(kbID)},
			{Key: []byte("model"), Value: []byte(event.Model)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("发送Kafka消息失败", zap.Error(err))
		return fmt.Errorf("发送消息失败: %w", err)
	}

	logger.Debug("Kafka消息发送成功",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("request_id", event.RequestID))
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
