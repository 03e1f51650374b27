// Package errors defines custom error types and error handling utilities for the PSN service.
// Every surfaced error maps to exactly one code and one HTTP status.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies an error condition independent of transport.
type Code string

const (
	CodeNotFound             Code = "not_found"
	CodeDuplicateIdentifier  Code = "duplicate_identifier"
	CodeDuplicatePseudonym   Code = "duplicate_pseudonym"
	CodeInsufficientCapacity Code = "insufficient_capacity"
	CodeUnprocessableEntity  Code = "unprocessable_entity"
	CodeInvalidCharacter     Code = "invalid_character"
	CodeBadRequest           Code = "bad_request"
	CodeUnexpectedResultSize Code = "unexpected_result_size"
	CodeInsertionError       Code = "insertion_error"
	CodeInternal             Code = "internal_error"
	CodeUnauthorized         Code = "unauthorized"
	CodeForbidden            Code = "forbidden"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// PSNError represents a structured error with additional metadata
type PSNError interface {
	error

	// Code returns the error code
	Code() Code

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) PSNError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) PSNError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// baseError is the internal implementation of PSNError
type baseError struct {
	code        Code
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() Code {
	return e.code
}

func (e *baseError) HTTPStatus() int {
	return e.httpStatus
}

func (e *baseError) Description() string {
	return e.description
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) WithCause(cause error) PSNError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) PSNError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// Is matches two PSNErrors by code, so errors.Is(err, errors.ErrNotFound("")) style checks work.
func (e *baseError) Is(target error) bool {
	var t PSNError
	if stderrors.As(target, &t) {
		return t.Code() == e.code
	}
	return false
}

// NewError creates a new PSNError with the specified parameters
func NewError(code Code, httpStatus int, description string, message string) PSNError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrNotFound reports an absent domain or record.
func ErrNotFound(kind, key string) PSNError {
	return NewError(
		CodeNotFound,
		http.StatusNotFound,
		"The requested resource does not exist.",
		fmt.Sprintf("%s not found: %s", kind, key),
	).WithMetadata("kind", kind).WithMetadata("key", key)
}

// ErrDomainNotFound is ErrNotFound for domains.
func ErrDomainNotFound(name string) PSNError {
	return ErrNotFound("domain", name)
}

// ErrDuplicateIdentifier reports that (identifier, idType) already has a pseudonym in the domain.
func ErrDuplicateIdentifier(domain, identifier, idType string) PSNError {
	return NewError(
		CodeDuplicateIdentifier,
		http.StatusConflict,
		"The identifier already has a pseudonym in this domain.",
		fmt.Sprintf("identifier of type %s already exists in domain %s", idType, domain),
	).WithMetadata("domain", domain).WithMetadata("id_type", idType)
}

// ErrDuplicatePseudonym reports that the pseudonym is already taken in the domain.
func ErrDuplicatePseudonym(domain, pseudonym string) PSNError {
	return NewError(
		CodeDuplicatePseudonym,
		http.StatusConflict,
		"The pseudonym already exists in this domain.",
		fmt.Sprintf("pseudonym %s already exists in domain %s", pseudonym, domain),
	).WithMetadata("domain", domain).WithMetadata("pseudonym", pseudonym)
}

// ErrInsufficientCapacity reports that the retry budget was exhausted by collisions.
func ErrInsufficientCapacity(domain string, attempts int) PSNError {
	return NewError(
		CodeInsufficientCapacity,
		http.StatusInsufficientStorage,
		"No unused pseudonym could be generated. Reduce the number of records or widen the alphabet or length.",
		fmt.Sprintf("domain %s exhausted after %d attempts", domain, attempts),
	).WithMetadata("domain", domain).WithMetadata("attempts", attempts)
}

// ErrUnprocessableEntity reports semantically invalid input.
func ErrUnprocessableEntity(message string) PSNError {
	return NewError(
		CodeUnprocessableEntity,
		http.StatusUnprocessableEntity,
		"The request is well-formed but semantically invalid.",
		message,
	)
}

// ErrInvalidCharacter reports a pseudonym symbol outside the algorithm's alphabet.
func ErrInvalidCharacter(symbol rune, position int) PSNError {
	return NewError(
		CodeInvalidCharacter,
		http.StatusBadRequest,
		"The pseudonym contains a character outside the domain alphabet.",
		fmt.Sprintf("invalid character %q at position %d", symbol, position),
	).WithMetadata("position", position)
}

// ErrBadRequest reports malformed input.
func ErrBadRequest(message string) PSNError {
	return NewError(
		CodeBadRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter or is otherwise malformed.",
		message,
	)
}

// ErrUnexpectedResultSize reports a violated single-row invariant inside a batch.
func ErrUnexpectedResultSize(operation string, affected int64) PSNError {
	return NewError(
		CodeUnexpectedResultSize,
		http.StatusInternalServerError,
		"A statement affected an unexpected number of rows; the transaction was rolled back.",
		fmt.Sprintf("%s affected %d rows, expected 0 or 1", operation, affected),
	).WithMetadata("operation", operation).WithMetadata("affected", affected)
}

// ErrInsertion reports a storage failure that is not a uniqueness violation.
func ErrInsertion(cause error) PSNError {
	return NewError(
		CodeInsertionError,
		http.StatusInternalServerError,
		"The record could not be stored.",
		"insertion failed",
	).WithCause(cause)
}

// ErrInternal reports an unexpected condition.
func ErrInternal(message string) PSNError {
	return NewError(
		CodeInternal,
		http.StatusInternalServerError,
		"The server encountered an unexpected condition.",
		message,
	)
}

// ErrUnauthorized reports a missing or invalid credential.
func ErrUnauthorized(message string) PSNError {
	return NewError(CodeUnauthorized, http.StatusUnauthorized, "Authentication is required.", message)
}

// ErrForbidden reports a subject without access to the requested domain.
func ErrForbidden(subject, domain string) PSNError {
	return NewError(
		CodeForbidden,
		http.StatusForbidden,
		"The subject is not authorized for this domain.",
		fmt.Sprintf("subject %s may not access domain %s", subject, domain),
	).WithMetadata("domain", domain)
}

// ErrDatabaseOperation wraps an unexpected storage failure.
func ErrDatabaseOperation(cause error) PSNError {
	return ErrInternal("database operation failed").WithCause(cause)
}

// ================================================================================
// Error Classification Utilities
// ================================================================================

// AsPSNError finds the first PSNError in err's chain.
func AsPSNError(err error) (PSNError, bool) {
	var psnErr PSNError
	if stderrors.As(err, &psnErr) {
		return psnErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	if psnErr, ok := AsPSNError(err); ok {
		return psnErr.Code() == code
	}
	return false
}

func IsNotFound(err error) bool             { return HasCode(err, CodeNotFound) }
func IsDuplicateIdentifier(err error) bool  { return HasCode(err, CodeDuplicateIdentifier) }
func IsDuplicatePseudonym(err error) bool   { return HasCode(err, CodeDuplicatePseudonym) }
func IsInsufficientCapacity(err error) bool { return HasCode(err, CodeInsufficientCapacity) }
func IsUnprocessable(err error) bool        { return HasCode(err, CodeUnprocessableEntity) }
func IsUnexpectedResultSize(err error) bool { return HasCode(err, CodeUnexpectedResultSize) }

// ShouldLogError determines if an error should be logged at error level.
func ShouldLogError(err error) bool {
	if psnErr, ok := AsPSNError(err); ok {
		return psnErr.HTTPStatus() >= 500
	}
	return true
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Message          string                 `json:"message,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts any error to an ErrorResponse and its HTTP status.
func ToErrorResponse(err error) (int, *ErrorResponse) {
	if psnErr, ok := AsPSNError(err); ok {
		return psnErr.HTTPStatus(), &ErrorResponse{
			Error:            string(psnErr.Code()),
			ErrorDescription: psnErr.Description(),
			Message:          psnErr.Error(),
			Metadata:         psnErr.Metadata(),
		}
	}
	return http.StatusInternalServerError, &ErrorResponse{
		Error:            string(CodeInternal),
		ErrorDescription: "An unexpected error occurred",
	}
}
