// Package llmtest provides a scripted Streamer for service tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/aihub/support-rag/internal/ledger"
	"github.com/aihub/support-rag/internal/llm"
)

// Fake 依次输出 Tokens，然后在 Err 非空时输出一个错误片段
type Fake struct {
	Tokens    []string
	Err       error
	StreamErr error

	mu    sync.Mutex
	calls [][]ledger.Message
}

var _ llm.Streamer = (*Fake)(nil)

func (f *Fake) Stream(ctx context.Context, messages []ledger.Message) (<-chan llm.StreamToken, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]ledger.Message(nil), messages...))
	f.mu.Unlock()

	if f.StreamErr != nil {
		return nil, f.StreamErr
	}

	ch := make(chan llm.StreamToken, len(f.Tokens)+1)
	for _, t := range f.Tokens {
		ch <- llm.StreamToken{Content: t}
	}
	if f.Err != nil {
		ch <- llm.StreamToken{Done: true, Err: f.Err}
	} else {
		ch <- llm.StreamToken{Done: true}
	}
	close(ch)
	return ch, nil
}

// Calls 返回每次调用收到的消息
func (f *Fake) Calls() [][]ledger.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]ledger.Message(nil), f.calls...)
}
