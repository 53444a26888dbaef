// Package apperr is the shared error model for the lending core. Every
// feature package returns *APIError for expected failures so handlers can
// map them to HTTP statuses and machine-readable codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeAlreadyProcessed   Code = "ALREADY_PROCESSED"
	CodeDuplicateReturn    Code = "DUPLICATE_RETURN"
	CodeInsufficientStock  Code = "INSUFFICIENT_STOCK"
	CodeItemUnavailable    Code = "ITEM_UNAVAILABLE"
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"
	CodeInternal           Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError      { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrUnauthorized(msg string) *APIError { return &APIError{Code: CodeUnauthorized, Message: msg} }
func ErrNotFound(msg string) *APIError     { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError     { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError     { return &APIError{Code: CodeInternal, Message: msg} }

func ErrAlreadyProcessed(msg string) *APIError {
	return &APIError{Code: CodeAlreadyProcessed, Message: msg}
}

func ErrDuplicateReturn(msg string) *APIError {
	return &APIError{Code: CodeDuplicateReturn, Message: msg}
}

func ErrInsufficientStock(msg string) *APIError {
	return &APIError{Code: CodeInsufficientStock, Message: msg}
}

func ErrItemUnavailable(msg string) *APIError {
	return &APIError{Code: CodeItemUnavailable, Message: msg}
}

// ErrInvariant marks a defensive check failure (e.g. available units would
// exceed total units). It means a bug in the transaction layer, never bad
// caller input, and must not be masked.
func ErrInvariant(msg string) *APIError {
	return &APIError{Code: CodeInvariantViolation, Message: msg}
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeUnauthorized:
			return http.StatusForbidden
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict, CodeAlreadyProcessed, CodeDuplicateReturn,
			CodeInsufficientStock, CodeItemUnavailable:
			return http.StatusConflict
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Body builds the JSON error payload {"error":{"code","message"}}.
func Body(code Code, msg string) any {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// BodyFrom builds the payload from an error, defaulting to INTERNAL.
func BodyFrom(err error) any {
	var api *APIError
	if errors.As(err, &api) {
		return Body(api.Code, api.Message)
	}
	return Body(CodeInternal, err.Error())
}
