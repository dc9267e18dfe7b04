// Package llm is the chat-model boundary: services hand it ledger messages and
// receive the answer as a stream of text fragments.
package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/aihub/support-rag/internal/ledger"
)

var ErrUnknownModel = errors.New("llm: unknown model")

// StreamToken 流式输出的一个片段。Done 为 true 表示流结束，Err 非空表示中途失败
type StreamToken struct {
	Content string
	Done    bool
	Err     error
}

// Streamer 把一组消息发送给模型，返回片段通道。通道在结束或出错后关闭
type Streamer interface {
	Stream(ctx context.Context, messages []ledger.Message) (<-chan StreamToken, error)
}

// Func 把普通函数适配为 Streamer
type Func func(ctx context.Context, messages []ledger.Message) (<-chan StreamToken, error)

func (f Func) Stream(ctx context.Context, messages []ledger.Message) (<-chan StreamToken, error) {
	return f(ctx, messages)
}

// Complete 读完整个流并拼接文本，遇到第一个错误即返回。返回时取消上游的流
func Complete(ctx context.Context, s Streamer, messages []ledger.Message) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tokens, err := s.Stream(ctx, messages)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for {
		select {
		case <-ctx.Done():
			return b.String(), ctx.Err()
		case tok, ok := <-tokens:
			if !ok {
				return b.String(), nil
			}
			if tok.Err != nil {
				return b.String(), tok.Err
			}
			b.WriteString(tok.Content)
			if tok.Done {
				return b.String(), nil
			}
		}
	}
}
