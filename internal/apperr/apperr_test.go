package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOfDirect(t *testing.T) {
	err := NotFound("idea not found")
	if KindOf(err) != KindNotFound {
		t.Errorf("expected KindNotFound, got %v", KindOf(err))
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := Validation("text is required", nil)
	wrapped := fmt.Errorf("ingest failed: %w", inner)
	if KindOf(wrapped) != KindValidation {
		t.Errorf("expected KindValidation through wrapping, got %v", KindOf(wrapped))
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Errorf("expected KindInternal for a plain error")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Oracle("embed failed", cause)
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected error string to include the cause, got %q", err.Error())
	}
	if !errors.Is(err, err) {
		t.Fatalf("expected error to be comparable to itself")
	}
	if errors.Unwrap(err) != cause {
		t.Errorf("expected Unwrap to return the cause")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindInternal:   "internal_error",
		KindValidation: "validation_error",
		KindNotFound:   "not_found",
		KindConflict:   "conflict",
		KindOracle:     "oracle_error",
	}
	for k, want := range cases {
		if k.String() != want {
			t.Errorf("kind %d: expected %q, got %q", k, want, k.String())
		}
	}
}
