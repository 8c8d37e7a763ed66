package types

import (
	"errors"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrTransport, "append-entries failed").
		WithCause(root).
		WithSubsystem("consensus").
		WithRetryable(true)

	if !IsErrorCode(err, ErrTransport) {
		t.Fatalf("expected code %s", ErrTransport)
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_Constructors(t *testing.T) {
	t.Parallel()

	if err := NewElectionTimeoutError("no coordinator"); !IsRetryable(err) {
		t.Fatalf("election timeout should be retryable")
	}
	if err := NewSubsystemDisabledError("work-stealing"); err.Subsystem != "work-stealing" {
		t.Fatalf("expected subsystem tag, got %q", err.Subsystem)
	}
	if err := NewNodeNotFoundError("node-9"); !IsErrorCode(err, ErrNodeNotFound) {
		t.Fatalf("expected NODE_NOT_FOUND code")
	}
}
