package errs

import (
	"errors"
	"fmt"
)

// ============================================================================
// 业务错误分类
// ============================================================================
//
// 账本引擎对外只暴露六类业务错误，调用方根据类别决定如何处理：
//
//   Validation   - 入参不合法（借贷不平衡等），调用方修正后重试
//   NotFound     - 账户/交易/审批/审批步骤不存在
//   Conflict     - 唯一性冲突（重复审批单、重复账户编码）
//   InvalidState - 当前状态下不允许该操作（重复审批、回滚已完成交易）
//   Forbidden    - 审批人与步骤指派人不匹配
//   Integrity    - 读取时哈希校验失败，视为数据被篡改，绝不静默修复
//
// 引擎内部不做自动重试：事务性写入失败直接透传原始错误，避免重复记账。
// ============================================================================

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInvalidState
	KindForbidden
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindForbidden:
		return "FORBIDDEN"
	case KindIntegrity:
		return "INTEGRITY"
	default:
		return "UNKNOWN"
	}
}

// Error 带分类的业务错误
type Error struct {
	Kind    Kind
	Message string
	Err     error // 底层原因，可为空
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 保留底层错误的同时附加分类信息
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error   { return New(KindValidation, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func InvalidState(message string) *Error { return New(KindInvalidState, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func Integrity(message string) *Error    { return New(KindIntegrity, message) }

// KindOf 提取错误的分类，非业务错误返回 KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
