package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Stasher error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrConflict         ErrorCode = "CONFLICT"          // 409
	ErrInvalidTabNames  ErrorCode = "INVALID_TAB_NAMES" // 422
	ErrRuleEval         ErrorCode = "RULE_EVAL"         // 422, recoverable
	ErrSwitchTimeout    ErrorCode = "SWITCH_TIMEOUT"    // 408, fatal to one item
	ErrNoVisibleTab     ErrorCode = "NO_VISIBLE_TAB"    // 409, fatal to batch
	ErrItemsUnavailable ErrorCode = "ITEMS_UNAVAILABLE" // 503, fatal to batch
	ErrInputUnavailable ErrorCode = "INPUT_UNAVAILABLE" // 503, fatal to batch
	ErrInputFailed      ErrorCode = "INPUT_FAILED"      // 502, fatal to batch
	ErrTabNotLoaded     ErrorCode = "TAB_NOT_LOADED"    // 504, fatal to batch
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// StasherError represents a structured error with code, status, and details.
type StasherError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *StasherError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *StasherError {
	return &StasherError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing rule, binding, or tab.
func NewNotFound(kind, identifier string) *StasherError {
	return &StasherError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *StasherError {
	return &StasherError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewDuplicateRule creates a 409 error when two rules share an identity.
func NewDuplicateRule(identity string) *StasherError {
	return &StasherError{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("duplicate rule identity %q", identity),
		Details: map[string]any{"identity": identity},
	}
}

// NewInvalidTabNames creates a 422 error when the live tab list is too short to trust.
func NewInvalidTabNames(got, min int) *StasherError {
	return &StasherError{
		Code:    ErrInvalidTabNames,
		Status:  422,
		Message: fmt.Sprintf("cannot parse tab names: got %d, need at least %d", got, min),
		Details: map[string]any{"count": got, "min": min},
	}
}

// NewRuleEval creates a 422 error for a predicate that failed to evaluate.
func NewRuleEval(identity string, err error) *StasherError {
	return &StasherError{
		Code:    ErrRuleEval,
		Status:  422,
		Message: fmt.Sprintf("rule %q: %v", identity, err),
		Details: map[string]any{"identity": identity},
	}
}

// NewSwitchTimeout creates a 408 error when the view never reached the target tab.
func NewSwitchTimeout(target, visible int) *StasherError {
	return &StasherError{
		Code:    ErrSwitchTimeout,
		Status:  408,
		Message: fmt.Sprintf("failed to switch to tab %d (visible %d)", target, visible),
		Details: map[string]any{"target": target, "visible": visible},
	}
}

// NewNoVisibleTab creates a 409 error when no starting tab can be resolved.
func NewNoVisibleTab() *StasherError {
	return &StasherError{
		Code:    ErrNoVisibleTab,
		Status:  409,
		Message: "invalid stash tab: no visible tab",
	}
}

// NewItemsUnavailable creates a 503 error when the item source never became available.
func NewItemsUnavailable() *StasherError {
	return &StasherError{
		Code:    ErrItemsUnavailable,
		Status:  503,
		Message: "unable to get inventory items",
	}
}

// NewInputUnavailable creates a 503 error when the input capability cannot be acquired.
func NewInputUnavailable(reason string) *StasherError {
	return &StasherError{
		Code:    ErrInputUnavailable,
		Status:  503,
		Message: fmt.Sprintf("input controller unavailable: %s", reason),
	}
}

// NewInputFailed creates a 502 error when an input primitive fails mid-batch.
func NewInputFailed(op string, err error) *StasherError {
	return &StasherError{
		Code:    ErrInputFailed,
		Status:  502,
		Message: fmt.Sprintf("input %s failed: %v", op, err),
		Details: map[string]any{"op": op},
	}
}

// NewTabNotLoaded creates a 504 error when the selected tab never reports ready.
func NewTabNotLoaded(index int) *StasherError {
	return &StasherError{
		Code:    ErrTabNotLoaded,
		Status:  504,
		Message: fmt.Sprintf("stash tab error: tab %d never loaded", index),
		Details: map[string]any{"index": index},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *StasherError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &StasherError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a StasherError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *StasherError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As returns the StasherError in err's chain, if any.
func As(err error) (*StasherError, bool) {
	var sErr *StasherError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}

// FatalToBatch reports whether err aborts a whole batch rather than one item.
func FatalToBatch(err error) bool {
	var sErr *StasherError
	if !stderrors.As(err, &sErr) {
		return err != nil
	}
	switch sErr.Code {
	case ErrSwitchTimeout, ErrRuleEval:
		return false
	default:
		return true
	}
}
