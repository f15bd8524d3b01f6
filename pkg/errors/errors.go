// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 校验错误 (2xxx)
	CodeContextRequired    ErrorCode = "2001"
	CodeUnsupportedContent ErrorCode = "2002"
	CodeMalformedFilter    ErrorCode = "2003"

	// 上游服务错误 (3xxx)
	CodeEmbeddingFailed     ErrorCode = "3001"
	CodeCompletionFailed    ErrorCode = "3002"
	CodeUpstreamAuthFailed  ErrorCode = "3003"
	CodeDimensionMismatch   ErrorCode = "3004"
	CodeUpstreamUnavailable ErrorCode = "3005"

	// 存储错误 (4xxx)
	CodeVectorStoreError ErrorCode = "4001"
	CodeDatabaseError    ErrorCode = "4002"
	CodeCacheError       ErrorCode = "4003"

	// 业务错误 (5xxx)
	CodeIngestionFailed ErrorCode = "5001"
	CodeRetrievalFailed ErrorCode = "5002"
	CodeSynthesisFailed ErrorCode = "5003"
	CodeSyncFailed      ErrorCode = "5004"
	CodeJobNotFound     ErrorCode = "5005"
	CodeJobNotRunning   ErrorCode = "5006"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Transient  bool      `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// NewTransient 创建可重试的应用错误（超时、限流、上游 5xx 等）
func NewTransient(code ErrorCode, message string) *AppError {
	e := New(code, message)
	e.Transient = true
	return e
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// WrapTransient 包装错误并标记为可重试
func WrapTransient(err error, code ErrorCode, message string) *AppError {
	e := Wrap(err, code, message)
	e.Transient = true
	return e
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeContextRequired, CodeUnsupportedContent, CodeMalformedFilter:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeUpstreamAuthFailed:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeJobNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeJobNotRunning:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable, CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrContextRequired    = New(CodeContextRequired, "contextId is required")
	ErrUnsupportedContent = New(CodeUnsupportedContent, "unsupported content type")
	ErrJobNotFound        = New(CodeJobNotFound, "sync job not found")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// IsTransient 判断错误是否可重试。
// 非 AppError 一律视为不可重试，避免基于消息文本猜测。
func IsTransient(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Transient
	}
	return false
}

// IsFatalUpstream 判断是否为上游致命错误（认证/配置类，不应重试）
func IsFatalUpstream(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	if appErr.Transient {
		return false
	}
	switch appErr.Code {
	case CodeUpstreamAuthFailed, CodeDimensionMismatch:
		return true
	default:
		return false
	}
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeInvalidParam, CodeContextRequired, CodeUnsupportedContent, CodeMalformedFilter:
		return true
	default:
		return false
	}
}

// HasCode 判断错误链上是否存在指定错误码
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
