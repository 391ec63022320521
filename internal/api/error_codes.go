// internal/api/error_codes.go
package api

import (
	"errors"
	"net/http"

	apperrors "github.com/Corphon/SceneForge/internal/errors"
	"github.com/Corphon/SceneForge/internal/services"
)

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"

	// 生成流程
	ErrorUsageLimitReached = "USAGE_LIMIT_REACHED"
	ErrorSynthesisFailed   = "SYNTHESIS_FAILED"
	ErrorInvalidTransition = "INVALID_TRANSITION"

	// 资源
	ErrorProjectNotFound = "PROJECT_NOT_FOUND"
	ErrorSceneNotFound   = "SCENE_NOT_FOUND"
	ErrorAnchorNotFound  = "ANCHOR_NOT_FOUND"
	ErrorPresetNotFound  = "PRESET_NOT_FOUND"
	ErrorInvalidKind     = "INVALID_ANCHOR_KIND"

	// LLM服务
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"

	// 入口限流
	ErrorRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// statusFor maps an application error onto an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case apperrors.IsRateLimitError(err):
		return http.StatusTooManyRequests, ErrorUsageLimitReached
	case errors.Is(err, services.ErrLLMNotReady):
		return http.StatusServiceUnavailable, ErrorLLMServiceUnavailable
	case apperrors.IsSynthesisError(err):
		return http.StatusBadGateway, ErrorSynthesisFailed
	case apperrors.IsTransitionError(err):
		return http.StatusConflict, ErrorInvalidTransition
	case apperrors.IsNotFoundError(err):
		return http.StatusNotFound, ErrorNotFound
	case apperrors.IsValidationError(err):
		return http.StatusBadRequest, ErrorBadRequest
	case apperrors.IsConflictError(err):
		return http.StatusConflict, ErrorConflict
	default:
		return http.StatusInternalServerError, ErrorInternalError
	}
}
