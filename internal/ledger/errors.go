package ledger

import (
	"errors"
	"fmt"
)

// Code is the numeric failure code reported to callers.
type Code uint32

// Failure codes.
const (
	CodeUnauthorized        Code = 100
	CodeInvalidAmount       Code = 101
	CodeInsufficientBalance Code = 102
	CodeArithmeticOverflow  Code = 103
	CodeUnknownOperation    Code = 199
	CodeBackend             Code = 500
)

// Error is a typed ledger failure. Compare with errors.Is against the Err* values.
type Error struct {
	Code Code
	Kind string
}

func (e *Error) Error() string {
	return e.Kind
}

// Ledger failure kinds.
var (
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Kind: "unauthorized"}
	ErrInvalidAmount       = &Error{Code: CodeInvalidAmount, Kind: "invalid amount"}
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance, Kind: "insufficient balance"}
	ErrArithmeticOverflow  = &Error{Code: CodeArithmeticOverflow, Kind: "arithmetic overflow"}
	ErrUnknownOperation    = &Error{Code: CodeUnknownOperation, Kind: "unknown operation"}
)

// BatchError attributes a transfer-many failure to the first offending item.
type BatchError struct {
	Index int // zero-based position of the failing item
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("transfer-many item %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// CodeOf returns the failure code carried by err, or CodeBackend when err is
// not a ledger failure.
func CodeOf(err error) Code {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	return CodeBackend
}

// KindOf returns a short label for err, used in logs and metrics.
func KindOf(err error) string {
	if err == nil {
		return "ok"
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return "backend error"
}
