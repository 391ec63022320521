// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeError      ErrorType = "processing_error"
	ErrorTypeConflict   ErrorType = "conflict"

	// 生成流程错误类型
	ErrorTypeRateLimit  ErrorType = "rate_limited"
	ErrorTypeSynthesis  ErrorType = "synthesis_error"
	ErrorTypeTransition ErrorType = "invalid_transition"
)

// ErrRateLimit matches every rate-limit AppError through errors.Is.
var ErrRateLimit = errors.New("generation quota exhausted")

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrRateLimit) succeed for rate-limit errors even
// when the wrapped cause is a provider error.
func (e *AppError) Is(target error) bool {
	return target == ErrRateLimit && e.Type == ErrorTypeRateLimit
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewProcessingError 创建处理错误
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeError, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// NewRateLimitError 生成服务配额耗尽，用户需要等待或升级
func NewRateLimitError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeRateLimit, message, originalError)
}

// NewSynthesisError 生成服务的一般性失败，可重试
func NewSynthesisError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSynthesis, message, originalError)
}

// NewTransitionError 非法的工作流阶段转换
func NewTransitionError(message string) *AppError {
	return NewAppError(ErrorTypeTransition, message, nil)
}

func isType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool { return isType(err, ErrorTypeConflict) }

// IsRateLimitError 检查是否为配额错误
func IsRateLimitError(err error) bool { return isType(err, ErrorTypeRateLimit) }

// IsSynthesisError 检查是否为生成错误
func IsSynthesisError(err error) bool { return isType(err, ErrorTypeSynthesis) }

// IsTransitionError 检查是否为阶段转换错误
func IsTransitionError(err error) bool { return isType(err, ErrorTypeTransition) }

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeError:
		return "PROCESSING_ERROR"
	case ErrorTypeConflict:
		return "CONFLICT"
	case ErrorTypeRateLimit:
		return "RATE_LIMITED"
	case ErrorTypeSynthesis:
		return "SYNTHESIS_ERROR"
	case ErrorTypeTransition:
		return "INVALID_TRANSITION"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
		}
	}

	return NewAppError(errType, message, err)
}
