package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeParse    ErrorType = "parse"
	ErrorTypeLoad     ErrorType = "load"
	ErrorTypeCleanup  ErrorType = "cleanup"
	ErrorTypeExec     ErrorType = "exec"
	ErrorTypeSecurity ErrorType = "security"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// PageError is a structured error raised while serving a page.
type PageError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
	// Status is the HTTP status the error maps to. Zero means 500.
	Status   int
	FilePath string
	Line     int
	Column   int
}

// Error implements the error interface.
func (e *PageError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PageError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *PageError) Is(target error) bool {
	var t *PageError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PageError) WithContext(key string, value interface{}) *PageError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *PageError) WithLocation(filePath string, line, column int) *PageError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithStatus overrides the HTTP status for the error.
func (e *PageError) WithStatus(status int) *PageError {
	e.Status = status

	return e
}

// HTTPStatus returns the status the error maps to.
func (e *PageError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}

	return e.Status
}

// Error creation functions

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *PageError {
	return &PageError{Type: ErrorTypeIO, Code: code, Message: message, Cause: cause}
}

// NewParseError creates a markup or template parse error.
func NewParseError(code, message string, cause error) *PageError {
	return &PageError{Type: ErrorTypeParse, Code: code, Message: message, Cause: cause}
}

// NewLoadError creates a script load error.
func NewLoadError(code, message string, cause error) *PageError {
	return &PageError{Type: ErrorTypeLoad, Code: code, Message: message, Cause: cause}
}

// NewCleanupError creates a temp artifact removal error.
func NewCleanupError(code, message string, cause error) *PageError {
	return &PageError{Type: ErrorTypeCleanup, Code: code, Message: message, Cause: cause}
}

// NewExecError creates a script execution error.
func NewExecError(code, message string, cause error) *PageError {
	return &PageError{Type: ErrorTypeExec, Code: code, Message: message, Cause: cause}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *PageError {
	return &PageError{
		Type:    ErrorTypeSecurity,
		Code:    code,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PageError {
	return &PageError{Type: ErrorTypeConfig, Code: code, Message: message}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PageError {
	return &PageError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// Error classification helpers

// TypeOf returns the ErrorType of err, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var pe *PageError
	if errors.As(err, &pe) {
		return pe.Type
	}

	return ErrorTypeInternal
}

// IsType reports whether err is a PageError of the given type.
func IsType(err error, t ErrorType) bool {
	var pe *PageError
	return errors.As(err, &pe) && pe.Type == t
}

// IsSecurityError checks if an error is security-related.
func IsSecurityError(err error) bool {
	return IsType(err, ErrorTypeSecurity)
}

// StatusOf returns the HTTP status err maps to.
func StatusOf(err error) int {
	var pe *PageError
	if errors.As(err, &pe) {
		return pe.HTTPStatus()
	}

	return http.StatusInternalServerError
}

// PublicMessage returns the text that is safe to send to a client.
// Parse errors expose the parser's message, I/O errors stay generic and
// the remaining types use their fixed message.
func PublicMessage(err error) string {
	var pe *PageError
	if !errors.As(err, &pe) {
		return http.StatusText(http.StatusInternalServerError)
	}

	switch pe.Type {
	case ErrorTypeParse:
		if pe.Cause != nil {
			return pe.Cause.Error()
		}
		return pe.Message
	case ErrorTypeIO:
		if pe.Code == ErrCodeTempWrite {
			return pe.Message
		}
		return http.StatusText(http.StatusInternalServerError)
	case ErrorTypeSecurity:
		return http.StatusText(pe.HTTPStatus())
	case ErrorTypeInternal:
		return http.StatusText(http.StatusInternalServerError)
	default:
		return pe.Message
	}
}

// ErrorHandler provides centralized error logging.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level matching its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error, fields ...interface{}) {
	if err == nil || h.logger == nil {
		return
	}

	var pe *PageError
	if !errors.As(err, &pe) {
		h.logger.Error(ctx, err, "Unhandled error occurred", fields...)
		return
	}

	fields = append(fields, "type", pe.Type, "code", pe.Code)
	if pe.FilePath != "" {
		fields = append(fields, "file", pe.FilePath)
	}

	switch pe.Type {
	case ErrorTypeSecurity:
		h.logger.Warn(ctx, err, "Rejected request", fields...)
	case ErrorTypeParse:
		h.logger.Warn(ctx, err, "Page failed to parse", fields...)
	case ErrorTypeLoad:
		h.logger.Error(ctx, err, "Server script failed to import", fields...)
	case ErrorTypeCleanup:
		h.logger.Error(ctx, err, "Temp script could not be removed", fields...)
	case ErrorTypeExec:
		h.logger.Error(ctx, err, "Server script failed", fields...)
	default:
		h.logger.Error(ctx, err, "Request failed", fields...)
	}
}

// Common error codes.
const (
	ErrCodeReadSource      = "ERR_READ_SOURCE"
	ErrCodeMarkup          = "ERR_MARKUP"
	ErrCodeTemplate        = "ERR_TEMPLATE"
	ErrCodeTempWrite       = "ERR_TEMP_WRITE"
	ErrCodeTempRemove      = "ERR_TEMP_REMOVE"
	ErrCodeImport          = "ERR_IMPORT"
	ErrCodeNoDefaultExport = "ERR_NO_DEFAULT_EXPORT"
	ErrCodeScriptFailed    = "ERR_SCRIPT_FAILED"
	ErrCodeScriptTimeout   = "ERR_SCRIPT_TIMEOUT"
	ErrCodeRender          = "ERR_RENDER"
	ErrCodeInvalidPath     = "ERR_INVALID_PATH"
	ErrCodePathTraversal   = "ERR_PATH_TRAVERSAL"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeInternalError   = "ERR_INTERNAL"
)

// Fixed client-facing messages for the loader failure modes.
const (
	MsgTempWrite  = "failed to write temp script"
	MsgTempRemove = "failed to remove temp script"
	MsgImport     = "failed to import temp script"
	MsgScript     = "failed to run server script"
	MsgRender     = "failed to render page"
)

// Helper functions for common errors

// ErrPathTraversal creates a path traversal security error.
func ErrPathTraversal(path string) *PageError {
	return NewSecurityError(ErrCodePathTraversal, "path traversal attempt: "+path)
}

// ErrInvalidPath creates an invalid request path error.
func ErrInvalidPath(path string) *PageError {
	return NewSecurityError(ErrCodeInvalidPath, "invalid path: "+path).WithStatus(http.StatusBadRequest)
}

// ErrTempWrite wraps a temp unit write failure.
func ErrTempWrite(cause error) *PageError {
	return NewIOError(ErrCodeTempWrite, MsgTempWrite, cause)
}

// ErrTempRemove wraps a temp unit removal failure.
func ErrTempRemove(cause error) *PageError {
	return NewCleanupError(ErrCodeTempRemove, MsgTempRemove, cause)
}

// ErrImport wraps a script import failure.
func ErrImport(cause error) *PageError {
	return NewLoadError(ErrCodeImport, MsgImport, cause)
}
