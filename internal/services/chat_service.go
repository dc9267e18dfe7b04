package services

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aihub/support-rag/internal/errors"
	"github.com/aihub/support-rag/internal/kafka"
	"github.com/aihub/support-rag/internal/knowledge"
	"github.com/aihub/support-rag/internal/ledger"
	"github.com/aihub/support-rag/internal/llm"
	"github.com/aihub/support-rag/internal/logger"
)

const (
	defaultChatTopK = 5
	auditTimeout    = 3 * time.Second
)

// Retriever 知识库检索，由 knowledge.Retriever 实现
type Retriever interface {
	Retrieve(ctx context.Context, query string, kbID uint, pointID *uint, topK int) ([]knowledge.Result, error)
}

// AuditPublisher 问答审计记录的发送方，由 kafka.Producer 实现
type AuditPublisher interface {
	PublishChatAudit(ctx context.Context, event *kafka.ChatAuditEvent) error
}

// ChatRequest 问答请求
type ChatRequest struct {
	KBID    uint   `json:"kb_id" validate:"required"`
	PointID *uint  `json:"point_id"`
	Query   string `json:"query" validate:"notblank,max=2000"`
	Model   string `json:"model"`
	TopK    int    `json:"top_k" validate:"gte=0,lte=20"`
}

// ChatResponse 问答结果。Comfort 为情绪安抚语，先于 Answer 展示
type ChatResponse struct {
	RequestID string             `json:"request_id"`
	Answer    string             `json:"answer"`
	Comfort   string             `json:"comfort,omitempty"`
	Sources   []knowledge.Result `json:"sources"`
	Model     string             `json:"model"`
}

// TokenHandler 接收流式片段，返回错误时中止
type TokenHandler func(content string) error

// ChatService 检索增强问答
type ChatService struct {
	retriever Retriever
	models    ModelProvider
	emotion   *EmotionService
	audit     AuditPublisher
	metrics   *MetricsService
	logger    *zap.Logger
	topK      int
	diffColor bool
	now       func() time.Time
}

// ChatOption ChatService 可选项
type ChatOption func(*ChatService)

func WithEmotion(e *EmotionService) ChatOption {
	return func(s *ChatService) { s.emotion = e }
}

func WithAudit(a AuditPublisher) ChatOption {
	return func(s *ChatService) { s.audit = a }
}

func WithMetrics(m *MetricsService) ChatOption {
	return func(s *ChatService) { s.metrics = m }
}

func WithChatLogger(l *zap.Logger) ChatOption {
	return func(s *ChatService) { s.logger = l }
}

// WithTopK 请求未指定 top_k 时的检索条数
func WithTopK(k int) ChatOption {
	return func(s *ChatService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithDiffColor 调试日志中的对话视图着色
func WithDiffColor(on bool) ChatOption {
	return func(s *ChatService) { s.diffColor = on }
}

func NewChatService(retriever Retriever, models ModelProvider, opts ...ChatOption) *ChatService {
	s := &ChatService{
		retriever: retriever,
		models:    models,
		logger:    logger.Named("chat"),
		topK:      defaultChatTopK,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Chat 完整返回回答
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return s.ChatStream(ctx, req, nil)
}

// ChatStream 边生成边回调 onToken，结束后返回完整回答
func (s *ChatService) ChatStream(ctx context.Context, req ChatRequest, onToken TokenHandler) (resp *ChatResponse, err error) {
	start := s.now()
	resp = &ChatResponse{RequestID: uuid.NewString(), Model: req.Model}
	defer func() {
		s.metrics.RecordChat(resp.Model, err, s.now().Sub(start), len(resp.Sources))
		s.publishAudit(req, resp, err, s.now().Sub(start))
		if err != nil {
			resp = nil
		}
	}()

	if err := Validator().Struct(req); err != nil {
		return resp, errors.Translate(err)
	}
	query, ok := PreprocessQuery(req.Query)
	if !ok {
		s.logger.Warn("查询无效，已过滤", zap.String("query", req.Query))
		return resp, errors.NewBusinessError(errors.ErrCodeQueryTooShort, "问题内容无效或过短")
	}

	streamer, model, err := s.models.Get(req.Model)
	resp.Model = model
	if err != nil {
		return resp, errors.NewBusinessError(errors.ErrCodeUnknownModel, "不支持的模型").WithCause(err)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}
	results, err := s.retriever.Retrieve(ctx, query, req.KBID, req.PointID, topK)
	if err != nil {
		s.logger.Error("知识库检索失败", zap.Error(err), zap.Uint("kb_id", req.KBID))
		return resp, externalOr(err, errors.ErrCodeEmbeddingFailed, "retrieval")
	}
	resp.Sources = results

	if s.emotion != nil {
		if r := s.emotion.Recognize(ctx, req.Query); r != nil {
			resp.Comfort = r.Text
			s.metrics.RecordEmotion()
		}
	}

	conv := ledger.New(
		ledger.WithName("chat"),
		ledger.WithColor(s.diffColor),
		ledger.WithLogger(s.logger),
	)
	if _, err := conv.Session(func(l *ledger.Ledger) error {
		l.Append(ledger.System(SupportPersona))
		l.Append(ledger.Human(BuildQueryPrompt(query, FormatContext(results))))
		return nil
	}); err != nil {
		return resp, errors.Translate(err)
	}
	s.metrics.RecordTurns(conv.Counts())

	answer, err := s.stream(ctx, streamer, conv.Messages(), onToken)
	if err != nil {
		s.logger.Error("模型调用失败", zap.Error(err), zap.String("model", model))
		return resp, externalOr(err, errors.ErrCodeExternalService, "model "+model)
	}
	conv.Append(ledger.Assistant(answer))
	resp.Answer = answer

	s.logger.Debug("chat finished", zap.String("request_id", resp.RequestID), zap.String("view", conv.Render()))
	s.logger.Info("问答完成",
		zap.String("request_id", resp.RequestID),
		zap.String("model", model),
		zap.Int("sources", len(results)),
		zap.Duration("took", s.now().Sub(start)))
	return resp, nil
}

func (s *ChatService) stream(ctx context.Context, streamer llm.Streamer, messages []ledger.Message, onToken TokenHandler) (string, error) {
	if onToken == nil {
		return llm.Complete(ctx, streamer, messages)
	}
	// onToken 失败后不再读取上游，取消以关闭模型连接
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return llm.Complete(ctx, llm.Func(func(ctx context.Context, msgs []ledger.Message) (<-chan llm.StreamToken, error) {
		tokens, err := streamer.Stream(ctx, msgs)
		if err != nil {
			return nil, err
		}
		out := make(chan llm.StreamToken)
		go func() {
			defer close(out)
			for tok := range tokens {
				if tok.Content != "" && tok.Err == nil {
					if err := onToken(tok.Content); err != nil {
						tok = llm.StreamToken{Content: tok.Content, Done: true, Err: err}
					}
				}
				select {
				case out <- tok:
				case <-ctx.Done():
					return
				}
				if tok.Done || tok.Err != nil {
					return
				}
			}
		}()
		return out, nil
	}), messages)
}

func (s *ChatService) publishAudit(req ChatRequest, resp *ChatResponse, chatErr error, took time.Duration) {
	if s.audit == nil {
		return
	}

	event := &kafka.ChatAuditEvent{
		RequestID: resp.RequestID,
		KBID:      req.KBID,
		PointID:   req.PointID,
		Model:     resp.Model,
		Query:     req.Query,
		Answer:    resp.Answer,
		Sources:   make([]uint, 0, len(resp.Sources)),
		Emotion:   resp.Comfort,
		LatencyMS: took.Milliseconds(),
		Timestamp: s.now(),
	}
	for _, r := range resp.Sources {
		event.Sources = append(event.Sources, r.ID)
	}
	if chatErr != nil {
		event.Error = chatErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := s.audit.PublishChatAudit(ctx, event); err != nil {
		s.logger.Warn("发送问答审计失败", zap.Error(err), zap.String("request_id", resp.RequestID))
	}
}

// externalOr 上下文取消和超时按原因返回，其余视为外部服务失败
func externalOr(err error, code errors.ErrorCode, service string) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Translate(err)
	}
	if errors.IsAppError(err) {
		return err
	}
	return errors.NewExternalError(code, service, err)
}
