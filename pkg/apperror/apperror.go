// Package apperror 面向客户端的错误分类及其 HTTP 状态码映射
package apperror

import (
	"errors"
	"net/http"
)

// Kind 错误分类
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

// String 对应的 HTTP 状态文本
func (k Kind) String() string {
	return http.StatusText(k.Status())
}

// Status 对应的 HTTP 状态码
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error 已分类的错误：客户端可见的消息加可选的原因
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is 分类与消息相同即匹配，New 声明的哨兵错误可用 errors.Is 比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// New 创建不带原因的错误
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap 创建错误并保留原因
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func BadRequest(msg string) *Error   { return New(KindBadRequest, msg) }
func Unauthorized(msg string) *Error { return New(KindUnauthorized, msg) }
func Forbidden(msg string) *Error    { return New(KindForbidden, msg) }
func NotFound(msg string) *Error     { return New(KindNotFound, msg) }
func Conflict(msg string) *Error     { return New(KindConflict, msg) }

// Internal 包装意外错误
func Internal(msg string, cause error) *Error {
	return Wrap(KindInternal, msg, cause)
}

// KindOf 错误链中第一个 *Error 的分类，没有则为 KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status err 对应的 HTTP 状态码
func Status(err error) int {
	return KindOf(err).Status()
}

// Message 客户端可见的消息；未分类错误返回通用状态文本
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}
