package services

import (
	"errors"
	"fmt"
)

// ErrorType classifies a DomainError so transports can map it to a status
type ErrorType string

const (
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeInternal    ErrorType = "internal"
)

// DomainError is a classified error with optional cause and details
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type, so wrapped copies still match their sentinel
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Type == t.Type
}

// Wrap returns a fresh copy of the sentinel carrying cause.
// Sentinels are shared; call WithDetail only on the copy.
func (e *DomainError) Wrap(cause error) *DomainError {
	return NewDomainError(e.Type, e.Message, cause)
}

// WithDetail sets key on the error's details and returns the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{Type: errType, Message: message, Err: err}
}

var (
	ErrPolicyRuleNotFound     = NewDomainError(ErrorTypeNotFound, "No policy rule found", nil)
	ErrQuorumDecisionNotFound = NewDomainError(ErrorTypeNotFound, "quorum decision not found", nil)
	ErrRailGuardNotFound      = NewDomainError(ErrorTypeNotFound, "rail guard not found", nil)
	ErrRewardEventNotFound    = NewDomainError(ErrorTypeNotFound, "raw reward event not found", nil)

	ErrInvalidInput          = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidVote           = NewDomainError(ErrorTypeValidation, "invalid vote", nil)
	ErrInvalidRewardEvent    = NewDomainError(ErrorTypeValidation, "invalid raw reward event", nil)
	ErrInvalidRailGuard      = NewDomainError(ErrorTypeValidation, "invalid rail guard", nil)
	ErrPolicyDocumentInvalid = NewDomainError(ErrorTypeValidation, "invalid policy document", nil)

	ErrCycleInProgress = NewDomainError(ErrorTypeConflict, "emission cycle already in progress", nil)

	ErrGuardStoreUnavailable = NewDomainError(ErrorTypeUnavailable, "rail guard store unavailable", nil)
)

func domainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	ok := errors.As(err, &domainErr)
	return domainErr, ok
}

// GetErrorType returns the ErrorType of a domain error, or "" for any other error
func GetErrorType(err error) ErrorType {
	if d, ok := domainError(err); ok {
		return d.Type
	}
	return ""
}

// GetErrorDetails returns the details of a domain error, or nil for any other error
func GetErrorDetails(err error) map[string]interface{} {
	if d, ok := domainError(err); ok {
		return d.Details
	}
	return nil
}

func IsNotFoundError(err error) bool    { return GetErrorType(err) == ErrorTypeNotFound }
func IsValidationError(err error) bool  { return GetErrorType(err) == ErrorTypeValidation }
func IsConflictError(err error) bool    { return GetErrorType(err) == ErrorTypeConflict }
func IsUnavailableError(err error) bool { return GetErrorType(err) == ErrorTypeUnavailable }
func IsInternalError(err error) bool    { return GetErrorType(err) == ErrorTypeInternal }
