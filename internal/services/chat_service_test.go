package services

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aihub/support-rag/internal/errors"
	"github.com/aihub/support-rag/internal/knowledge"
	"github.com/aihub/support-rag/internal/knowledge/knowledgetest"
	"github.com/aihub/support-rag/internal/ledger"
	"github.com/aihub/support-rag/internal/llm"
	"github.com/aihub/support-rag/internal/llm/llmtest"
	"github.com/aihub/support-rag/internal/models"
)

const cleanedQuery = "机器人不回复了为什么"

type chatFixture struct {
	svc     *ChatService
	fake    *llmtest.Fake
	emb     *stubEmbedder
	audit   *recordingAudit
	metrics *MetricsService
	logs    *observer.ObservedLogs
}

func newChatFixture(t *testing.T, tokens []string, opts ...ChatOption) *chatFixture {
	t.Helper()

	store := knowledgetest.NewMemoryVectorStore()
	pointID := uint(7)
	for _, doc := range []models.QADocument{
		{ID: 1, KBID: 1, Question: "机器人不回复了", Answer: "请检查机器人授权是否过期", IsActive: true},
		{ID: 2, KBID: 1, Question: "如何退款", Answer: "在订单页申请退款", IsActive: true},
		{ID: 3, KBID: 1, Question: "机器人不回复", Answer: "已停用", IsActive: false},
		{ID: 4, KBID: 1, Question: "机器人掉线", Answer: "重新扫码登录", IsActive: true, PointID: &pointID},
	} {
		switch doc.ID {
		case 1, 3:
			doc.SetEmbedding([]float32{1, 0, 0})
		case 2:
			doc.SetEmbedding([]float32{0, 1, 0})
		case 4:
			doc.SetEmbedding([]float32{0.8, 0.2, 0})
		}
		store.Put(doc)
	}

	emb := &stubEmbedder{vectors: map[string][]float32{cleanedQuery: {1, 0, 0}}}
	retriever := knowledge.NewRetriever(emb, store, 1.0, zap.NewNop())

	fake := &llmtest.Fake{Tokens: tokens}
	reg := llm.NewRegistry("qwen-plus")
	reg.Register("qwen-plus", fake)

	core, logs := observer.New(zapcore.DebugLevel)
	audit := &recordingAudit{}
	metrics := NewMetricsService()

	base := []ChatOption{WithAudit(audit), WithMetrics(metrics), WithChatLogger(zap.New(core))}
	svc := NewChatService(retriever, reg, append(base, opts...)...)
	svc.now = func() time.Time { return time.Date(2025, 9, 26, 16, 39, 0, 0, time.UTC) }

	return &chatFixture{svc: svc, fake: fake, emb: emb, audit: audit, metrics: metrics, logs: logs}
}

func TestChatService_Chat(t *testing.T) {
	f := newChatFixture(t, []string{"亲，", "请检查", "授权哦"})

	resp, err := f.svc.Chat(context.Background(), ChatRequest{KBID: 1, Query: "@客服 机器人不回复了，为什么？"})
	require.NoError(t, err)

	assert.Equal(t, "亲，请检查授权哦", resp.Answer)
	assert.Equal(t, "qwen-plus", resp.Model)
	assert.NotEmpty(t, resp.RequestID)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, uint(1), resp.Sources[0].ID)
	assert.Equal(t, 1.0, resp.Sources[0].Score)
	assert.Equal(t, uint(4), resp.Sources[1].ID)
	assert.Equal(t, []string{cleanedQuery}, f.emb.Calls())

	calls := f.fake.Calls()
	require.Len(t, calls, 1)
	msgs := calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, SupportPersona, msgs[0].Content)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "问题：机器人不回复了\n答案：请检查机器人授权是否过期\n相似度：1.0000")
	assert.Contains(t, msgs[1].Content, cleanedQuery)
	assert.NotContains(t, msgs[1].Content, "已停用")

	sessions := f.logs.FilterMessage("ledger session").All()
	require.Len(t, sessions, 1)
	view := sessions[0].ContextMap()["view"].(string)
	assert.True(t, strings.HasPrefix(view, "chat:\n"))
	assert.Contains(t, view, "0: system(")
	assert.Contains(t, view, "+1: 【角色】")
	assert.Contains(t, view, "total=2 human=1 assistant=0 system=1 summary=0")

	finished := f.logs.FilterMessage("chat finished").All()
	require.Len(t, finished, 1)
	assert.Contains(t, finished[0].ContextMap()["view"], "2: assistant(\n+1: 亲，请检查授权哦\n)")

	events := f.audit.Events()
	require.Len(t, events, 1)
	assert.Equal(t, resp.RequestID, events[0].RequestID)
	assert.Equal(t, []uint{1, 4}, events[0].Sources)
	assert.Empty(t, events[0].Error)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.chatRequests.WithLabelValues("qwen-plus", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ledgerTurns.WithLabelValues("system")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ledgerTurns.WithLabelValues("human")))
}

func TestChatService_PointFilterAndNoContext(t *testing.T) {
	f := newChatFixture(t, []string{"亲，已转人工"})
	point := uint(99)

	resp, err := f.svc.Chat(context.Background(), ChatRequest{KBID: 1, PointID: &point, Query: "机器人不回复了，为什么？"})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)

	msgs := f.fake.Calls()[0]
	assert.Contains(t, msgs[1].Content, NoContextText)
}

func TestChatService_Stream(t *testing.T) {
	f := newChatFixture(t, []string{"亲，", "好的"})

	var got []string
	resp, err := f.svc.ChatStream(context.Background(), ChatRequest{KBID: 1, Query: cleanedQuery}, func(s string) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"亲，", "好的"}, got)
	assert.Equal(t, "亲，好的", resp.Answer)

	f = newChatFixture(t, []string{"a", "b"})
	_, err = f.svc.ChatStream(context.Background(), ChatRequest{KBID: 1, Query: cleanedQuery}, func(string) error {
		return stderrors.New("client gone")
	})
	assert.Equal(t, errors.ErrCodeExternalService, errors.GetAppError(err).Code)
}

// endlessStream 持续输出片段直到 ctx 取消，退出时关闭 exited
func endlessStream(exited chan struct{}) llm.Func {
	return func(ctx context.Context, _ []ledger.Message) (<-chan llm.StreamToken, error) {
		out := make(chan llm.StreamToken)
		go func() {
			defer close(exited)
			defer close(out)
			for {
				select {
				case out <- llm.StreamToken{Content: "嗯"}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}
}

func TestChatService_StreamAbortCancelsUpstream(t *testing.T) {
	exited := make(chan struct{})
	svc := NewChatService(nil, nil)

	_, err := svc.stream(context.Background(), endlessStream(exited), nil, func(string) error {
		return stderrors.New("client gone")
	})
	assert.EqualError(t, err, "client gone")

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("upstream producer still running after the token handler failed")
	}
}

func TestChatService_WithEmotion(t *testing.T) {
	emotionFake := &llmtest.Fake{Tokens: []string{`{"text":"亲亲别着急"}`}}
	reg := llm.NewRegistry("emotion")
	reg.Register("emotion", emotionFake)

	f := newChatFixture(t, []string{"请检查授权"}, WithEmotion(NewEmotionService(reg, "emotion")))
	resp, err := f.svc.Chat(context.Background(), ChatRequest{KBID: 1, Query: "机器人又不回复了！太烂了！"})
	require.NoError(t, err)

	assert.Equal(t, "亲亲别着急", resp.Comfort)
	assert.Equal(t, "请检查授权", resp.Answer)
	assert.Equal(t, "亲亲别着急", f.audit.Events()[0].Emotion)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.emotionReplies))
}

func TestChatService_Errors(t *testing.T) {
	f := newChatFixture(t, []string{"x"})
	ctx := context.Background()

	_, err := f.svc.Chat(ctx, ChatRequest{KBID: 1, Query: ""})
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetAppError(err).Code)

	_, err = f.svc.Chat(ctx, ChatRequest{Query: "机器人不回复了"})
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetAppError(err).Code)

	_, err = f.svc.Chat(ctx, ChatRequest{KBID: 1, Query: "？？！"})
	assert.Equal(t, errors.ErrCodeQueryTooShort, errors.GetAppError(err).Code)

	resp, err := f.svc.Chat(ctx, ChatRequest{KBID: 1, Query: "机器人不回复了", Model: "gpt-5"})
	assert.Nil(t, resp)
	appErr := errors.GetAppError(err)
	assert.Equal(t, errors.ErrCodeUnknownModel, appErr.Code)
	assert.ErrorIs(t, appErr, llm.ErrUnknownModel)

	assert.Empty(t, f.fake.Calls())
	assert.Len(t, f.audit.Events(), 4)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.chatRequests.WithLabelValues("gpt-5", "error")))
}

func TestChatService_RetrievalAndModelFailures(t *testing.T) {
	f := newChatFixture(t, nil)
	f.emb.err = stderrors.New("embedding quota exceeded")

	_, err := f.svc.Chat(context.Background(), ChatRequest{KBID: 1, Query: cleanedQuery})
	appErr := errors.GetAppError(err)
	assert.Equal(t, errors.ErrCodeEmbeddingFailed, appErr.Code)
	assert.Equal(t, 502, appErr.HTTPCode)
	assert.Contains(t, f.audit.Events()[0].Error, "retrieval request failed")

	f = newChatFixture(t, []string{"半截"})
	f.fake.Err = stderrors.New("stream reset")
	_, err = f.svc.Chat(context.Background(), ChatRequest{KBID: 1, Query: cleanedQuery})
	appErr = errors.GetAppError(err)
	assert.Equal(t, errors.ErrCodeExternalService, appErr.Code)
	assert.ErrorContains(t, appErr.Cause, "stream reset")

	f = newChatFixture(t, []string{"x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.emb.err = context.Canceled
	_, err = f.svc.Chat(ctx, ChatRequest{KBID: 1, Query: cleanedQuery})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChatService_AuditFailureIsLogged(t *testing.T) {
	f := newChatFixture(t, []string{"ok"})
	f.audit.err = stderrors.New("broker down")

	_, err := f.svc.Chat(context.Background(), ChatRequest{KBID: 1, Query: cleanedQuery})
	require.NoError(t, err)
	assert.Equal(t, 1, f.logs.FilterMessage("发送问答审计失败").Len())
}
