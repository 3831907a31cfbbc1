// Package dErrors provides the code-based error taxonomy shared by services,
// stores, and the HTTP layer. Domain rules surface as coded errors so the
// transport can translate them without inspecting message strings.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the class of a domain error.
type Code string

const (
	// CodeNotFound signals that a referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeInvalidStatus signals an unrecognized lifecycle status name.
	CodeInvalidStatus Code = "invalid_status"
	// CodeIllegalTransition signals a recognized status that the current
	// state's transition set does not allow.
	CodeIllegalTransition Code = "illegal_transition"
	// CodeInvalidDecision signals an approval decision outside APPROVED/REJECTED.
	CodeInvalidDecision Code = "invalid_decision"
	// CodeSelfApproval signals a maker-checker breach: the creator of an
	// exception attempted to approve it.
	CodeSelfApproval Code = "self_approval_violation"

	CodeBadRequest Code = "bad_request"
	CodeValidation Code = "validation"
	CodeConflict   Code = "conflict"
	CodeTimeout    Code = "timeout"
	CodeInternal   Code = "internal"
)

// DomainError carries a code, a human-readable message, and an optional cause.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.cause }

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *DomainError
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// HasCode reports whether the outermost domain error carries the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// CodeOf extracts the outermost code, defaulting to CodeInternal for plain errors.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the transport layer writes.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout, CodeInternal:
		return http.StatusInternalServerError
	case CodeInvalidStatus, CodeIllegalTransition, CodeInvalidDecision,
		CodeSelfApproval, CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
