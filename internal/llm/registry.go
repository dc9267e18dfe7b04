package llm

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/aihub/support-rag/internal/config"
)

// Registry 对外模型名到 Streamer 的映射
type Registry struct {
	mu           sync.RWMutex
	streamers    map[string]Streamer
	defaultModel string
}

func NewRegistry(defaultModel string) *Registry {
	return &Registry{
		streamers:    make(map[string]Streamer),
		defaultModel: defaultModel,
	}
}

// NewRegistryFromConfig 为配置中的每个模型创建 OpenAIStreamer
func NewRegistryFromConfig(cfg config.AIConfig, logger *zap.Logger) (*Registry, error) {
	r := NewRegistry(cfg.DefaultModel)
	for _, m := range cfg.Models {
		s, err := NewOpenAIStreamer(StreamerConfig{
			BaseURL:     m.BaseURL,
			APIKey:      m.APIKey,
			Model:       m.Model,
			Temperature: float32(cfg.Temperature),
			MaxTokens:   cfg.MaxTokens,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
		r.Register(m.Name, s)
	}
	return r, nil
}

func (r *Registry) Register(name string, s Streamer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamers[name] = s
}

// Get 按名称获取，name 为空时使用默认模型
func (r *Registry) Get(name string) (Streamer, string, error) {
	if name == "" {
		name = r.defaultModel
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streamers[name]
	if !ok {
		return nil, name, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return s, name, nil
}

// Names 已注册的模型名，按字母序
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.streamers))
	for name := range r.streamers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
