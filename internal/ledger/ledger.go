// Package ledger holds the ordered turns of one conversation and tracks
// structural edits between renders so that a single view can show what was
// added, removed and replaced since the last time it was printed.
//
// A Ledger is not safe for concurrent use; keep one per request.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

var (
	ErrIndexOutOfRange = errors.New("ledger: index out of range")
	ErrInvalidRange    = errors.New("ledger: keep_start and keep_end must be >= 1")
	ErrTurnNotFound    = errors.New("ledger: turn is not part of the live sequence")
)

// Message 导出给模型客户端的 role/content 对
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Counts 各角色消息数量，Human 包含 summary
type Counts struct {
	Total     int
	Human     int
	Assistant int
	System    int
	Summary   int
}

// Ledger 带变更追踪的对话消息列表
type Ledger struct {
	name     string
	diffMode bool
	color    bool
	logger   *zap.Logger
	now      func() time.Time

	turns []*Turn
	// snapshot 非 nil 时包含 live 中的所有消息以及尚未渲染的已删除消息
	snapshot []*Turn
}

// Option Ledger 构造选项
type Option func(*Ledger)

func WithName(name string) Option {
	return func(l *Ledger) { l.name = name }
}

// WithDiffMode 关闭后 Ledger 退化为普通列表，不追踪变更
func WithDiffMode(on bool) Option {
	return func(l *Ledger) { l.diffMode = on }
}

// WithColor 渲染时为新增/删除行加上背景色
func WithColor(on bool) Option {
	return func(l *Ledger) { l.color = on }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithTurns 以未变更状态预置消息
func WithTurns(turns ...*Turn) Option {
	return func(l *Ledger) {
		l.turns = append(l.turns, turns...)
	}
}

// New 创建 Ledger，默认开启 diff 模式
func New(opts ...Option) *Ledger {
	l := &Ledger{
		name:     "Ledger",
		diffMode: true,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, t := range l.turns {
		l.stamp(t)
	}
	return l
}

func (l *Ledger) Name() string   { return l.name }
func (l *Ledger) DiffMode() bool { return l.diffMode }
func (l *Ledger) Len() int       { return len(l.turns) }

// At 返回 live 序列中第 i 条消息
func (l *Ledger) At(i int) (*Turn, error) {
	if i < 0 || i >= len(l.turns) {
		return nil, rangeError("at", i, len(l.turns))
	}
	return l.turns[i], nil
}

// Turns 返回 live 序列的拷贝
func (l *Ledger) Turns() []*Turn {
	return slices.Clone(l.turns)
}

// Append 追加消息
func (l *Ledger) Append(t *Turn) {
	l.stamp(t)
	if l.diffMode {
		t.state = Added
		if l.snapshot != nil {
			l.snapshot = append(l.snapshot, t)
		}
	}
	l.turns = append(l.turns, t)
}

// Extend 依次追加
func (l *Ledger) Extend(turns ...*Turn) {
	for _, t := range turns {
		l.Append(t)
	}
}

// Insert 在 index 处插入，index 取值 0..Len()
func (l *Ledger) Insert(index int, t *Turn) error {
	if index < 0 || index > len(l.turns) {
		return rangeError("insert", index, len(l.turns))
	}
	l.stamp(t)
	if l.diffMode {
		t.state = Added
		if l.snapshot != nil {
			pos := len(l.snapshot)
			if index < len(l.turns) {
				if i := slices.Index(l.snapshot, l.turns[index]); i >= 0 {
					pos = i
				}
			}
			l.snapshot = slices.Insert(l.snapshot, pos, t)
		}
	}
	l.turns = slices.Insert(l.turns, index, t)
	return nil
}

// DeleteMiddle 只保留前 keepStart 条和后 keepEnd 条，返回被删除的消息
func (l *Ledger) DeleteMiddle(keepStart, keepEnd int) (*Ledger, error) {
	if keepStart < 1 || keepEnd < 1 {
		return nil, fmt.Errorf("delete middle (keep_start=%d, keep_end=%d): %w", keepStart, keepEnd, ErrInvalidRange)
	}

	n := len(l.turns)
	if keepStart+keepEnd >= n {
		l.logger.Info("delete middle removed nothing",
			zap.String("ledger", l.name),
			zap.Int("len", n),
			zap.Int("keep_start", keepStart),
			zap.Int("keep_end", keepEnd))
		return New(WithName(l.name+".removed"), WithDiffMode(false), WithLogger(l.logger)), nil
	}

	removed := slices.Clone(l.turns[keepStart : n-keepEnd])
	if l.diffMode {
		l.ensureSnapshot()
		for _, t := range removed {
			l.retire(t)
		}
	}
	l.turns = slices.Delete(l.turns, keepStart, n-keepEnd)

	return New(
		WithName(l.name+".removed"),
		WithDiffMode(false),
		WithLogger(l.logger),
		WithTurns(removed...),
	), nil
}

// Pop 删除并返回最后一条消息
func (l *Ledger) Pop() (*Turn, error) {
	return l.PopAt(len(l.turns) - 1)
}

// PopAt 删除并返回 index 处的消息
func (l *Ledger) PopAt(index int) (*Turn, error) {
	if index < 0 || index >= len(l.turns) {
		return nil, rangeError("pop", index, len(l.turns))
	}
	t := l.turns[index]
	if l.diffMode {
		l.ensureSnapshot()
		l.retire(t)
	}
	l.turns = slices.Delete(l.turns, index, index+1)
	return t, nil
}

// Replace 替换消息文本。文本相同时不做任何修改，只记录警告
func (l *Ledger) Replace(t *Turn, text string) error {
	if !slices.Contains(l.turns, t) {
		return ErrTurnNotFound
	}
	if text == t.Content {
		l.logger.Warn("replace text same as current text",
			zap.String("ledger", l.name),
			zap.String("role", string(t.Role)),
			zap.String("text", text))
		return nil
	}
	if !l.diffMode {
		t.Content = text
		return nil
	}
	t.PreviousContent = t.Content
	t.Content = text
	t.state = Replaced
	return nil
}

// ReplaceAt 按位置替换
func (l *Ledger) ReplaceAt(index int, text string) error {
	if index < 0 || index >= len(l.turns) {
		return rangeError("replace", index, len(l.turns))
	}
	return l.Replace(l.turns[index], text)
}

// Messages 导出 live 序列，不读取变更状态
func (l *Ledger) Messages() []Message {
	out := make([]Message, 0, len(l.turns))
	for _, t := range l.turns {
		out = append(out, Message{Role: t.Role.Wire(), Content: t.Content})
	}
	return out
}

// Counts 统计 live 序列
func (l *Ledger) Counts() Counts {
	c := Counts{Total: len(l.turns)}
	for _, t := range l.turns {
		switch t.Role {
		case RoleHuman:
			c.Human++
		case RoleSummary:
			c.Human++
			c.Summary++
		case RoleAssistant:
			c.Assistant++
		case RoleSystem:
			c.System++
		}
	}
	return c
}

// Session 先清空待渲染的变更，执行 fn，返回 fn 内所做修改的渲染结果
func (l *Ledger) Session(fn func(*Ledger) error) (string, error) {
	l.Render()
	err := fn(l)
	view := l.Render()
	l.logger.Debug("ledger session", zap.String("ledger", l.name), zap.String("view", view))
	return view, err
}

func (l *Ledger) ensureSnapshot() {
	if l.snapshot == nil {
		l.snapshot = make([]*Turn, len(l.turns))
		copy(l.snapshot, l.turns)
	}
}

// retire 标记删除；从未被渲染过的新增消息直接从快照中移除
func (l *Ledger) retire(t *Turn) {
	if t.state == Added {
		if i := slices.Index(l.snapshot, t); i >= 0 {
			l.snapshot = slices.Delete(l.snapshot, i, i+1)
		}
		return
	}
	t.state = Removed
}

func (l *Ledger) stamp(t *Turn) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = l.now()
	}
}

func rangeError(op string, index, length int) error {
	return fmt.Errorf("%s index %d (len %d): %w", op, index, length, ErrIndexOutOfRange)
}
