package llm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/support-rag/internal/config"
	"github.com/aihub/support-rag/internal/ledger"
	"github.com/aihub/support-rag/internal/llm"
	"github.com/aihub/support-rag/internal/llm/llmtest"
)

func chunk(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"qwen-plus","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", content)
}

func sseServer(t *testing.T, body string, gotBody *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if gotBody != nil {
			b, _ := io.ReadAll(r.Body)
			*gotBody = string(b)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIStreamerStreamsFragments(t *testing.T) {
	var reqBody string
	body := chunk("您好") + `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"qwen-plus","choices":[]}` + "\n\n" +
		chunk("，请问") + chunk("有什么可以帮您") + "data: [DONE]\n\n"
	srv := sseServer(t, body, &reqBody)

	s, err := llm.NewOpenAIStreamer(llm.StreamerConfig{
		BaseURL:     srv.URL + "/v1/",
		APIKey:      "sk-test",
		Model:       "qwen-plus",
		Temperature: 0.7,
		MaxTokens:   256,
	}, nil)
	require.NoError(t, err)

	l := ledger.New()
	l.Append(ledger.System("persona"))
	l.Append(ledger.Human("hi"))

	answer, err := llm.Complete(context.Background(), s, l.Messages())
	require.NoError(t, err)
	assert.Equal(t, "您好，请问有什么可以帮您", answer)

	assert.Contains(t, reqBody, `"stream":true`)
	assert.Contains(t, reqBody, `"model":"qwen-plus"`)
	assert.Contains(t, reqBody, `"role":"system"`)
	assert.Contains(t, reqBody, `"max_tokens":256`)
}

func TestOpenAIStreamerUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"auth"}}`)
	}))
	defer srv.Close()

	s, err := llm.NewOpenAIStreamer(llm.StreamerConfig{BaseURL: srv.URL + "/v1", APIKey: "bad", Model: "qwen-plus"}, nil)
	require.NoError(t, err)

	_, err = s.Stream(context.Background(), []ledger.Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qwen-plus")
}

func TestNewOpenAIStreamerRequiresModel(t *testing.T) {
	_, err := llm.NewOpenAIStreamer(llm.StreamerConfig{APIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestCompleteStopsAtFirstError(t *testing.T) {
	boom := errors.New("upstream reset")
	fake := &llmtest.Fake{Tokens: []string{"部分", "回答"}, Err: boom}

	answer, err := llm.Complete(context.Background(), fake, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "部分回答", answer)
}

func TestCompleteCancelsUpstreamOnError(t *testing.T) {
	boom := errors.New("upstream reset")
	exited := make(chan struct{})
	upstream := llm.Func(func(ctx context.Context, _ []ledger.Message) (<-chan llm.StreamToken, error) {
		out := make(chan llm.StreamToken)
		go func() {
			defer close(exited)
			defer close(out)
			tok := llm.StreamToken{Err: boom}
			for {
				select {
				case out <- tok:
					tok = llm.StreamToken{Content: "还在输出"}
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	})

	_, err := llm.Complete(context.Background(), upstream, nil)
	assert.ErrorIs(t, err, boom)

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("upstream producer still running after Complete returned")
	}
}

func TestCompleteStreamError(t *testing.T) {
	fake := &llmtest.Fake{StreamErr: errors.New("dial")}
	_, err := llm.Complete(context.Background(), fake, nil)
	assert.EqualError(t, err, "dial")
}

func TestCompleteHonoursContext(t *testing.T) {
	blocked := llm.Func(func(ctx context.Context, _ []ledger.Message) (<-chan llm.StreamToken, error) {
		return make(chan llm.StreamToken), nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := llm.Complete(ctx, blocked, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFakeRecordsCalls(t *testing.T) {
	fake := &llmtest.Fake{Tokens: []string{"ok"}}
	msgs := []ledger.Message{{Role: "user", Content: "q"}}

	_, err := llm.Complete(context.Background(), fake, msgs)
	require.NoError(t, err)
	require.Len(t, fake.Calls(), 1)
	assert.Equal(t, msgs, fake.Calls()[0])
}

func TestRegistry(t *testing.T) {
	r := llm.NewRegistry("qwen-plus")
	fake := &llmtest.Fake{}
	r.Register("qwen-plus", fake)
	r.Register("deepseek-v3", &llmtest.Fake{})

	s, name, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "qwen-plus", name)
	assert.Same(t, fake, s)

	_, _, err = r.Get("gpt-5")
	assert.ErrorIs(t, err, llm.ErrUnknownModel)
	assert.True(t, strings.Contains(err.Error(), "gpt-5"))

	assert.Equal(t, []string{"deepseek-v3", "qwen-plus"}, r.Names())
}

func TestRegistryFromConfig(t *testing.T) {
	r, err := llm.NewRegistryFromConfig(config.AIConfig{
		DefaultModel: "local",
		Temperature:  0.3,
		MaxTokens:    100,
		Models: []config.ModelConfig{
			{Name: "local", Model: "qwen2.5:14b", BaseURL: "http://localhost:11434/v1", APIKey: "ollama"},
			{Name: "deepseek-v3", Model: "deepseek-chat", BaseURL: "https://api.deepseek.com/v1"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"deepseek-v3", "local"}, r.Names())

	s, _, err := r.Get("local")
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5:14b", s.(*llm.OpenAIStreamer).Model())
}
