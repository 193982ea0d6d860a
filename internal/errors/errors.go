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

	// 生成后端相关错误
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeBackend         ErrorType = "backend_error"
	ErrorTypeUnparsable      ErrorType = "unparsable_response"
	ErrorTypeEmptyGeneration ErrorType = "empty_generation"

	// 投票相关错误
	ErrorTypeVoteClosed    ErrorType = "vote_closed"
	ErrorTypeInvalidOption ErrorType = "invalid_option"

	// 实体状态已变化（如章节被重编号）
	ErrorTypeStaleState ErrorType = "stale_state"
)

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

// NewTimeoutError 创建后端超时错误
func NewTimeoutError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTimeout, message, originalError)
}

// NewBackendError 创建后端传输/协议错误
func NewBackendError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeBackend, message, originalError)
}

// NewUnparsableError 创建结构化解析失败错误
func NewUnparsableError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnparsable, message, originalError)
}

// NewEmptyGenerationError 创建空生成结果错误
func NewEmptyGenerationError(message string) *AppError {
	return NewAppError(ErrorTypeEmptyGeneration, message, nil)
}

// NewVoteClosedError 创建投票已关闭错误
func NewVoteClosedError(message string) *AppError {
	return NewAppError(ErrorTypeVoteClosed, message, nil)
}

// NewInvalidOptionError 创建无效选项错误
func NewInvalidOptionError(message string) *AppError {
	return NewAppError(ErrorTypeInvalidOption, message, nil)
}

// NewStaleStateError 创建状态过期错误
func NewStaleStateError(message string) *AppError {
	return NewAppError(ErrorTypeStaleState, message, nil)
}

// IsType 检查错误是否属于指定类型
func IsType(err error, errType ErrorType) bool {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type == errType
	}
	return false
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsTimeoutError 检查是否为后端超时错误
func IsTimeoutError(err error) bool {
	return IsType(err, ErrorTypeTimeout)
}

// IsUnparsableError 检查是否为解析失败错误
func IsUnparsableError(err error) bool {
	return IsType(err, ErrorTypeUnparsable)
}

// IsEmptyGenerationError 检查是否为空生成错误
func IsEmptyGenerationError(err error) bool {
	return IsType(err, ErrorTypeEmptyGeneration)
}

// IsVoteClosedError 检查是否为投票已关闭错误
func IsVoteClosedError(err error) bool {
	return IsType(err, ErrorTypeVoteClosed)
}

// IsInvalidOptionError 检查是否为无效选项错误
func IsInvalidOptionError(err error) bool {
	return IsType(err, ErrorTypeInvalidOption)
}

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
	case ErrorTypeTimeout:
		return "TIMEOUT"
	case ErrorTypeBackend:
		return "BACKEND_ERROR"
	case ErrorTypeUnparsable:
		return "UNPARSABLE_RESPONSE"
	case ErrorTypeEmptyGeneration:
		return "EMPTY_GENERATION"
	case ErrorTypeVoteClosed:
		return "VOTE_CLOSED"
	case ErrorTypeInvalidOption:
		return "INVALID_OPTION"
	case ErrorTypeStaleState:
		return "STALE_STATE"
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
