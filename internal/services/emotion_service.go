package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/aihub/support-rag/internal/ledger"
	"github.com/aihub/support-rag/internal/llm"
	"github.com/aihub/support-rag/internal/logger"
)

// ModelProvider 按模型名获取 Streamer，由 llm.Registry 实现
type ModelProvider interface {
	Get(name string) (llm.Streamer, string, error)
}

// EmotionResult 需要安抚时模型给出的回复
type EmotionResult struct {
	Text string `json:"text"`
}

// EmotionService 识别用户的愤怒情绪并生成安抚语
type EmotionService struct {
	models ModelProvider
	model  string
	logger *zap.Logger
}

func NewEmotionService(models ModelProvider, model string) *EmotionService {
	return &EmotionService{
		models: models,
		model:  model,
		logger: logger.Named("emotion"),
	}
}

// Recognize 返回安抚语；文本为空、无需安抚或模型输出无法解析时返回 nil
func (s *EmotionService) Recognize(ctx context.Context, text string) *EmotionResult {
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("查询文本为空，无法进行情绪识别")
		return nil
	}

	streamer, model, err := s.models.Get(s.model)
	if err != nil {
		s.logger.Error("情绪识别模型不可用", zap.Error(err))
		return nil
	}

	conv := ledger.New(ledger.WithName("emotion"), ledger.WithDiffMode(false), ledger.WithLogger(s.logger))
	conv.Append(ledger.Human(BuildEmotionPrompt(text)))

	s.logger.Info("开始情绪识别", zap.String("model", model), zap.String("query", truncate(text, 50)))
	reply, err := llm.Complete(ctx, streamer, conv.Messages())
	if err != nil {
		s.logger.Error("情绪识别调用失败", zap.Error(err))
		return nil
	}
	if strings.TrimSpace(reply) == "" {
		s.logger.Warn("LLM响应为空")
		return nil
	}

	result, ok := parseEmotionReply(reply)
	if !ok {
		s.logger.Warn("无法从LLM响应中提取情绪识别结果", zap.String("reply", truncate(reply, 200)))
		return nil
	}
	if result == nil {
		return nil
	}

	s.logger.Info("情绪识别成功", zap.String("text", result.Text))
	return result
}

// parseEmotionReply 从模型输出中截取第一个 { 到最后一个 } 并按 JSONC 解析，允许注释和尾逗号。
// ok 为 false 表示无法解析；text 为 0、空或缺失时返回 (nil, true)
func parseEmotionReply(reply string) (*EmotionResult, bool) {
	start := strings.Index(reply, "{")
	if start == -1 {
		return nil, false
	}
	raw := reply[start:]
	if end := strings.LastIndex(raw, "}"); end != -1 {
		raw = raw[:end+1]
	} else {
		raw += "}"
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(jsonc.ToJSON([]byte(raw)), &payload); err != nil {
		// 模型偶尔用单引号
		quoted := strings.ReplaceAll(raw, "'", `"`)
		if err := json.Unmarshal(jsonc.ToJSON([]byte(quoted)), &payload); err != nil {
			return nil, false
		}
	}

	switch v := payload["text"].(type) {
	case string:
		v = strings.TrimSpace(v)
		if v == "" || v == "0" {
			return nil, true
		}
		return &EmotionResult{Text: v}, true
	case float64:
		return nil, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
