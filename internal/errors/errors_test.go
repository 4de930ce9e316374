package errors

import (
	"fmt"
	"testing"
)

func TestStasherError_Error(t *testing.T) {
	err := &StasherError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "rule not found",
	}

	expected := "NOT_FOUND: rule not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("tab is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "tab is required" {
		t.Errorf("Message = %q, want %q", err.Message, "tab is required")
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("tab", "Maps")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "Maps" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "Maps")
	}
	if err.Message != "tab not found: Maps" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewDuplicateRule(t *testing.T) {
	err := NewDuplicateRule("CurrencyChaos")

	if err.Code != ErrConflict {
		t.Errorf("Code = %q, want %q", err.Code, ErrConflict)
	}
	if err.Details["identity"] != "CurrencyChaos" {
		t.Errorf("Details[identity] = %v", err.Details["identity"])
	}
}

func TestNewInvalidTabNames(t *testing.T) {
	err := NewInvalidTabNames(2, 4)

	if err.Code != ErrInvalidTabNames {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidTabNames)
	}
	if err.Details["count"] != 2 || err.Details["min"] != 4 {
		t.Errorf("Details = %v", err.Details)
	}
}

func TestNewSwitchTimeout(t *testing.T) {
	err := NewSwitchTimeout(3, 1)

	if err.Code != ErrSwitchTimeout {
		t.Errorf("Code = %q, want %q", err.Code, ErrSwitchTimeout)
	}
	if err.Details["target"] != 3 {
		t.Errorf("Details[target] = %v, want 3", err.Details["target"])
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(fmt.Errorf("disk full"))
	if err.Message != "disk full" {
		t.Errorf("Message = %q, want %q", err.Message, "disk full")
	}

	err = NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	err := NewTabNotLoaded(2)

	if !Is(err, ErrTabNotLoaded) {
		t.Error("Is(err, ErrTabNotLoaded) = false, want true")
	}
	if Is(err, ErrNotFound) {
		t.Error("Is(err, ErrNotFound) = true, want false")
	}
	if Is(fmt.Errorf("plain"), ErrTabNotLoaded) {
		t.Error("Is(plain error) = true, want false")
	}

	wrapped := fmt.Errorf("batch: %w", err)
	if !Is(wrapped, ErrTabNotLoaded) {
		t.Error("Is(wrapped, ErrTabNotLoaded) = false, want true")
	}
}

func TestFatalToBatch(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no visible tab", NewNoVisibleTab(), true},
		{"input unavailable", NewInputUnavailable("locked"), true},
		{"tab not loaded", NewTabNotLoaded(1), true},
		{"items unavailable", NewItemsUnavailable(), true},
		{"switch timeout", NewSwitchTimeout(1, 0), false},
		{"rule eval", NewRuleEval("A", fmt.Errorf("bad")), false},
		{"plain", fmt.Errorf("boom"), true},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FatalToBatch(tt.err); got != tt.want {
				t.Errorf("FatalToBatch() = %v, want %v", got, tt.want)
			}
		})
	}
}
