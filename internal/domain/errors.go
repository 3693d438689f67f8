package domain

import (
	"errors"
	"fmt"
)

// Category sentinels — use with NewDomainError to add operation context.
var (
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrSecurityBlocked = fmt.Errorf("request to disallowed URL blocked")
	ErrSessionNotReady = fmt.Errorf("browser session not available")
	ErrSessionFailed   = fmt.Errorf("browser session failed")
	ErrStartup         = fmt.Errorf("browser startup failed")
	ErrNavigation      = fmt.Errorf("navigation failed")
	ErrReadiness       = fmt.Errorf("page did not reach ready state")
	ErrUnknownEngine   = fmt.Errorf("unknown search engine")
	ErrExtraction      = fmt.Errorf("result extraction failed")
	ErrConversion      = fmt.Errorf("content conversion failed")
	ErrToolNotFound    = fmt.Errorf("tool not found")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "SessionManager.Acquire")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeSecurityBlocked  ErrorCode = "SECURITY_BLOCKED"
	CodeSessionNotReady  ErrorCode = "SESSION_NOT_READY"
	CodeSessionFailed    ErrorCode = "SESSION_FAILED"
	CodeStartup          ErrorCode = "STARTUP_FAILED"
	CodeNavigation       ErrorCode = "NAVIGATION_FAILED"
	CodeReadinessTimeout ErrorCode = "READINESS_TIMEOUT"
	CodeUnknownEngine    ErrorCode = "UNKNOWN_ENGINE"
	CodeExtraction       ErrorCode = "EXTRACTION_FAILED"
	CodeConversion       ErrorCode = "CONVERSION_FAILED"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidInput:    CodeInvalidInput,
	ErrSecurityBlocked: CodeSecurityBlocked,
	ErrSessionNotReady: CodeSessionNotReady,
	ErrSessionFailed:   CodeSessionFailed,
	ErrStartup:         CodeStartup,
	ErrNavigation:      CodeNavigation,
	ErrReadiness:       CodeReadinessTimeout,
	ErrUnknownEngine:   CodeUnknownEngine,
	ErrExtraction:      CodeExtraction,
	ErrConversion:      CodeConversion,
	ErrToolNotFound:    CodeToolNotFound,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
