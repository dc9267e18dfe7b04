package ledger

import (
	"fmt"
	"time"
)

// Role 对话角色
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	// RoleSummary 历史摘要，导出时按用户消息处理
	RoleSummary Role = "summary"
)

var wireRoles = map[Role]string{
	RoleHuman:     "user",
	RoleSummary:   "user",
	RoleAssistant: "assistant",
	RoleSystem:    "system",
}

// Wire 返回下游 chat completion 接口使用的角色名
func (r Role) Wire() string {
	if w, ok := wireRoles[r]; ok {
		return w
	}
	return "user"
}

// IsHuman 摘要消息同样计为用户消息
func (r Role) IsHuman() bool {
	return r == RoleHuman || r == RoleSummary
}

// ChangeState 自上次渲染以来的变更状态
type ChangeState int

const (
	Unchanged ChangeState = iota
	Added
	Removed
	Replaced
)

func (s ChangeState) String() string {
	switch s {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Replaced:
		return "replaced"
	default:
		return "unchanged"
	}
}

// Turn 一条对话消息
type Turn struct {
	Role    Role
	Content string
	// PreviousContent 最近一次替换前的文本，渲染后清空
	PreviousContent string
	CreatedAt       time.Time

	state ChangeState
}

// NewTurn 创建消息，CreatedAt 为空时在写入 Ledger 时补齐
func NewTurn(role Role, content string) *Turn {
	return &Turn{Role: role, Content: content}
}

func Human(content string) *Turn     { return NewTurn(RoleHuman, content) }
func Assistant(content string) *Turn { return NewTurn(RoleAssistant, content) }
func System(content string) *Turn    { return NewTurn(RoleSystem, content) }
func Summary(content string) *Turn   { return NewTurn(RoleSummary, content) }

// State 当前变更状态
func (t *Turn) State() ChangeState {
	return t.state
}

func (t *Turn) String() string {
	return fmt.Sprintf("%s(%s)", t.Role, t.Content)
}
