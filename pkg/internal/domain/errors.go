package domain

import (
	"errors"
	"fmt"
)

// Kind 是稳定的错误类别，调用方据此决定重试或呈现方式.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindValidation        Kind = "validation"
	KindScopeConflict     Kind = "scope_conflict"
	KindInvalidTransition Kind = "invalid_transition"
	KindLocked            Kind = "locked"
	KindSyncConflict      Kind = "sync_conflict"
	KindStoreUnavailable  Kind = "store_unavailable"
	KindForbidden         Kind = "forbidden"
	KindInternal          Kind = "internal"
)

// 哨兵错误，配合 errors.Is 按类别判断.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrScopeConflict     = &Error{Kind: KindScopeConflict}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrLocked            = &Error{Kind: KindLocked}
	ErrSyncConflict      = &Error{Kind: KindSyncConflict}
	ErrStoreUnavailable  = &Error{Kind: KindStoreUnavailable}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

// Error 仓储层统一错误，携带类别、实体名与可读原因.
type Error struct {
	Kind   Kind
	Entity string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Entity != "" {
		msg = e.Entity + ": " + msg
	}

	if e.Reason != "" {
		msg += ": " + e.Reason
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 仅比较类别，使 errors.Is(err, ErrNotFound) 对任意实体成立.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Kind == t.Kind
}

// NotFound 构造实体不存在错误.
func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Reason: fmt.Sprintf("%v not found", id)}
}

// Conflict 构造重复/冲突错误.
func Conflict(entity, reason string) *Error {
	return &Error{Kind: KindConflict, Entity: entity, Reason: reason}
}

// Invalid 构造校验失败错误.
func Invalid(entity string, err error) *Error {
	return &Error{Kind: KindValidation, Entity: entity, Reason: "invalid input", Err: err}
}

// Invalidf 构造带格式化原因的校验失败错误.
func Invalidf(entity, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// ScopeConflict 构造 TM 多作用域错误.
func ScopeConflict(reason string) *Error {
	return &Error{Kind: KindScopeConflict, Entity: EntityTMAssignment, Reason: reason}
}

// InvalidTransition 构造非法状态迁移错误.
func InvalidTransition(entity, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidTransition, Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// Locked 构造记录被锁定错误.
func Locked(entity, reason string) *Error {
	return &Error{Kind: KindLocked, Entity: entity, Reason: reason}
}

// Unavailable 构造存储不可用错误.
func Unavailable(store string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Entity: store, Reason: "store unreachable", Err: err}
}

// Forbidden 构造缺少能力的错误.
func Forbidden(capability, user string) *Error {
	return &Error{Kind: KindForbidden, Entity: EntityCapability, Reason: fmt.Sprintf("user %q lacks %s", user, capability)}
}

// Internal 包装未分类的底层错误.
func Internal(entity string, err error) *Error {
	return &Error{Kind: KindInternal, Entity: entity, Err: err}
}

// KindOf 返回错误类别，非 *Error 返回 KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// IsRetryable 判断调用方是否可重试（Locked 与 StoreUnavailable）.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindLocked, KindStoreUnavailable:
		return true
	default:
		return false
	}
}
