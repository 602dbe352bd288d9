package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies supervisor failures so callers can map them to
// exit codes and propagation policy (fatal pre-launch, rollback, degraded).
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeConfiguration    ErrorType = "configuration"
	ErrorTypeDependencyCycle  ErrorType = "dependency_cycle"
	ErrorTypeLaunch           ErrorType = "launch"
	ErrorTypeReadinessTimeout ErrorType = "readiness_timeout"
	ErrorTypeUnexpectedExit   ErrorType = "unexpected_exit"
	ErrorTypeShutdown         ErrorType = "shutdown"
	ErrorTypePermission       ErrorType = "permission"
	ErrorTypeIO               ErrorType = "io"
	ErrorTypeNetwork          ErrorType = "network"
	ErrorTypeInternal         ErrorType = "internal"
	ErrorTypeCancelled        ErrorType = "cancelled"
)

// DomainError is a structured error carrying a type and key/value context.
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches on error type, so errors.Is works across wrapped chains.
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

// Pre-launch errors (fatal before any process is spawned)
func NewConfigurationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConfiguration, message, cause)
}

func NewDependencyCycleError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeDependencyCycle, message, cause)
}

// Launch-time errors (trigger rollback of already-started services)
func NewLaunchError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeLaunch, message, cause)
}

func NewReadinessTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeReadinessTimeout, message, cause)
}

// Post-ready errors (degraded mode, reported but non-fatal)
func NewUnexpectedExitError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeUnexpectedExit, message, cause)
}

func NewShutdownError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeShutdown, message, cause)
}

func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewNetworkError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNetwork, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

// Error checking helpers
func IsValidationError(err error) bool {
	return isErrorType(err, ErrorTypeValidation)
}

func IsConfigurationError(err error) bool {
	return isErrorType(err, ErrorTypeConfiguration)
}

func IsDependencyCycleError(err error) bool {
	return isErrorType(err, ErrorTypeDependencyCycle)
}

func IsLaunchError(err error) bool {
	return isErrorType(err, ErrorTypeLaunch)
}

func IsReadinessTimeoutError(err error) bool {
	return isErrorType(err, ErrorTypeReadinessTimeout)
}

func IsUnexpectedExitError(err error) bool {
	return isErrorType(err, ErrorTypeUnexpectedExit)
}

func IsShutdownError(err error) bool {
	return isErrorType(err, ErrorTypeShutdown)
}

func IsPermissionError(err error) bool {
	return isErrorType(err, ErrorTypePermission)
}

func IsIOError(err error) bool {
	return isErrorType(err, ErrorTypeIO)
}

func IsNetworkError(err error) bool {
	return isErrorType(err, ErrorTypeNetwork)
}

func IsInternalError(err error) bool {
	return isErrorType(err, ErrorTypeInternal)
}

func IsCancelledError(err error) bool {
	return isErrorType(err, ErrorTypeCancelled)
}

func isErrorType(err error, errorType ErrorType) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == errorType
}

// TypeOf returns the domain error type, or ErrorTypeInternal for
// errors that did not originate from this package.
func TypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ErrorTypeInternal
}

// Error aggregation for bulk operations
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(e.Errors), e.Errors[0])
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// NewErrorCollection creates a new error collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
