package apperr

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeDependency          Code = "DEPENDENCY_ERROR"
	CodeIdempotency         Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit           Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Reason codes attached to NOT_FOUND errors. They are logged, never rendered.
const (
	ReasonMissing     = "missing"
	ReasonNotOwner    = "not_owner"
	ReasonWrongStatus = "wrong_status"
	ReasonRaceLost    = "race_lost"
	ReasonUnavailable = "unavailable"
)

type Metadata struct {
	HTTPStatus     int
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeUnauthorized: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
	},
	CodeForbidden: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "access denied",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeInsufficientBalance: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "insufficient balance",
		DetailsAllowed: true,
	},
	CodeDependency: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "required record missing",
	},
	CodeIdempotency: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "idempotency key reused",
	},
	CodeRateLimit: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "rate limit exceeded",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		PublicMessage: "internal server error",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	reason  string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// Validation builds a VALIDATION_ERROR carrying per-field messages.
func Validation(message string, fields map[string]string) *Error {
	e := New(CodeValidation, message)
	if len(fields) > 0 {
		e.details = fields
	}
	return e
}

// NotFound builds the uniform precondition failure. The reason is kept for logs only.
func NotFound(message, reason string) *Error {
	return &Error{code: CodeNotFound, message: message, reason: reason}
}

// Conflict reports a lost race with the same external shape as NotFound.
func Conflict(message string, cause error) *Error {
	return &Error{code: CodeNotFound, message: message, reason: ReasonRaceLost, cause: cause}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Reason() string {
	if e == nil {
		return ""
	}
	return e.reason
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) WithReason(reason string) *Error {
	if e == nil {
		return nil
	}
	e.reason = reason
	return e
}

func (e *Error) WithCause(err error) *Error {
	if e == nil {
		return nil
	}
	e.cause = err
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.message
	if msg == "" {
		msg = MetadataFor(e.code).PublicMessage
	}
	if e.reason != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.reason)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the first *Error in the chain.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	if typed := As(err); typed != nil {
		return typed.Code() == code
	}
	return false
}
