// Package session 描述调用方会话：身份与连接模式，由外部认证层提供，经 context 传递.
package session

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Mode 连接模式.
type Mode string

const (
	ModeConnected    Mode = "connected"
	ModeDisconnected Mode = "disconnected"
)

// ParseMode 解析模式，无法识别时回落到 disconnected.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "connected", "online", "central":
		return ModeConnected
	default:
		return ModeDisconnected
	}
}

// Session 会话信息，对仓储层是不透明输入.
type Session struct {
	ID   string `json:"id"`
	User string `json:"user"`
	Mode Mode   `json:"mode"`
}

// New 创建会话，id 为空时生成 uuid.
func New(id, user string, mode Mode) Session {
	if id == "" {
		id = uuid.NewString()
	}

	if mode == "" {
		mode = ModeDisconnected
	}

	return Session{ID: id, User: user, Mode: mode}
}

type sessionKey struct{}

// With 将会话写入 context.
func With(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// From 从 context 读取会话，不存在时返回 disconnected 的匿名会话.
func From(ctx context.Context) Session {
	if s, ok := ctx.Value(sessionKey{}).(Session); ok {
		return s
	}

	return Session{Mode: ModeDisconnected}
}

// Actor 返回 context 中会话的用户名.
func Actor(ctx context.Context) string {
	return From(ctx).User
}
