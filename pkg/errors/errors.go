// Package errors carries the typed error codes shared by services and the
// HTTP layer. A code fixes the response status, whether the caller may retry,
// and which parts of the error a client gets to see.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeEmptyCart            Code = "EMPTY_CART"
	CodeInsufficientStock    Code = "INSUFFICIENT_STOCK"
	CodeStockRaceLost        Code = "STOCK_RACE_LOST"
	CodeHoldExpired          Code = "HOLD_EXPIRED"
	CodeInvalidSignature     Code = "INVALID_SIGNATURE"
	CodeDuplicateTransaction Code = "DUPLICATE_TRANSACTION"
	CodePaymentNotFound      Code = "PAYMENT_NOT_FOUND"
	CodeGatewayCallFailed    Code = "GATEWAY_CALL_FAILED"
	CodeTransactionAborted   Code = "TRANSACTION_ABORTED"
)

type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
	// DetailsAllowed lets Details() reach the response body.
	DetailsAllowed bool
	// ExposeMessage sends the error's own message instead of PublicMessage.
	ExposeMessage bool
}

type flag uint8

const (
	retryable flag = 1 << iota
	details
	expose
)

func meta(status int, public string, flags flag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&details != 0,
		ExposeMessage:  flags&expose != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", details|expose),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", expose),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", expose),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", expose),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", expose),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", details|expose),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", expose),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|details),

	CodeEmptyCart:            meta(http.StatusBadRequest, "no cart items selected", details|expose),
	CodeInsufficientStock:    meta(http.StatusConflict, "insufficient stock", details|expose),
	CodeStockRaceLost:        meta(http.StatusConflict, "stock changed during checkout", retryable|details),
	CodeHoldExpired:          meta(http.StatusConflict, "stock hold expired", details|expose),
	CodeInvalidSignature:     meta(http.StatusBadRequest, "invalid signature", 0),
	CodeDuplicateTransaction: meta(http.StatusConflict, "duplicate transaction", 0),
	CodePaymentNotFound:      meta(http.StatusNotFound, "payment not found", 0),
	CodeGatewayCallFailed:    meta(http.StatusBadGateway, "payment gateway unavailable", retryable),
	CodeTransactionAborted:   meta(http.StatusInternalServerError, "transaction aborted", retryable),
}

// MetadataFor treats unknown codes as internal errors.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code and message to cause. A nil cause behaves like New.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// Code reports CodeInternal for a nil receiver so callers can chain As(err).Code().
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

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(d any) *Error {
	if e != nil {
		e.details = d
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error with the same code, so a bare New(code, "") works
// as an errors.Is target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

func IsCode(err error, code Code) bool {
	return As(err).codeOr("") == code
}

// As returns the outermost typed error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

func (e *Error) codeOr(fallback Code) Code {
	if e == nil {
		return fallback
	}
	return e.code
}
