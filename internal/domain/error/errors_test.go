package error

import (
	"errors"
	"fmt"
	"testing"
)

func TestBaseErrorTypes(t *testing.T) {
	// Test to ensure the usage errors carry the messages callers match on in logs
	if ErrOutsideUnitOfWork.Error() != "used outside unit of work" {
		t.Errorf("ErrOutsideUnitOfWork has unexpected message: %s", ErrOutsideUnitOfWork.Error())
	}
	if ErrScopeNotDisposedCorrectly.Error() != "unit of work not disposed correctly" {
		t.Errorf("ErrScopeNotDisposedCorrectly has unexpected message: %s", ErrScopeNotDisposedCorrectly.Error())
	}
}

func TestErrorCode(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"EntityAlreadyTracked", ErrEntityAlreadyTracked, 4001},
		{"OutsideUnitOfWork", ErrOutsideUnitOfWork, 4002},
		{"ScopeOrder", ErrScopeNotDisposedCorrectly, 4003},
		{"DuplicateEntity", ErrDuplicateEntity, 4004},
		{"ConstraintViolation", ErrConstraintViolation, 4005},
		{"UnitOfWorkDisposed", ErrUnitOfWorkDisposed, 4006},
		{"ChildCommitPending", ErrChildCommitPending, 4090},
		{"EntityNotFound", ErrEntityNotFound, 4040},
		{"TransactionTooLarge", ErrTransactionTooLarge, 4130},
		{"BackendUnavailable", ErrBackendUnavailable, 5030},
		{"UnknownError", errors.New("unknown error"), 5000},
		{"WrappedError", fmt.Errorf("wrapped: %w", ErrEntityNotFound), 4040},
		{"TypedError", NewTrackingConflictError("notes", "p|r", "new", "clean"), 4001},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code := ErrorCode(tc.err)
			if code != tc.expected {
				t.Errorf("ErrorCode(%v) = %d, want %d", tc.err, code, tc.expected)
			}
		})
	}
}

func TestTrackingConflictError(t *testing.T) {
	err := NewTrackingConflictError("notes", "tenant-1|note-1", "dirty", "new")

	expectedErrMsg := "entity notes/tenant-1|note-1 is tracked as dirty and cannot be registered as new"
	if err.Error() != expectedErrMsg {
		t.Errorf("TrackingConflictError.Error() = %s, want %s", err.Error(), expectedErrMsg)
	}

	if !errors.Is(err, ErrEntityAlreadyTracked) {
		t.Errorf("errors.Is(err, ErrEntityAlreadyTracked) = false, want true")
	}

	if !IsTrackingConflictError(err) || !IsUsageError(err) {
		t.Errorf("tracking conflict should be reported as a usage error")
	}

	var conflict *TrackingConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("errors.As failed: not a *TrackingConflictError")
	}
	if conflict.LogFields()["requested_state"] != "new" {
		t.Errorf("LogFields()[requested_state] = %v, want new", conflict.LogFields()["requested_state"])
	}
}

func TestScopeOrderError(t *testing.T) {
	err := NewScopeOrderError("uow-a", "uow-b", 2)

	expectedErrMsg := "unit of work uow-a not disposed correctly: top of scope stack is uow-b (depth 2)"
	if err.Error() != expectedErrMsg {
		t.Errorf("ScopeOrderError.Error() = %s, want %s", err.Error(), expectedErrMsg)
	}

	empty := NewScopeOrderError("uow-a", "", 0)
	if empty.Error() != "unit of work uow-a not disposed correctly: scope stack is empty" {
		t.Errorf("unexpected empty-stack message: %s", empty.Error())
	}

	if !errors.Is(err, ErrScopeNotDisposedCorrectly) {
		t.Errorf("errors.Is(err, ErrScopeNotDisposedCorrectly) = false, want true")
	}
}

func TestChildCommitPendingError(t *testing.T) {
	err := NewChildCommitPendingError("uow-root", 2)

	if !IsChildCommitPendingError(err) {
		t.Errorf("IsChildCommitPendingError(err) = false, want true")
	}

	wrapped := fmt.Errorf("execute: %w", err)
	if !IsChildCommitPendingError(wrapped) {
		t.Errorf("IsChildCommitPendingError(wrapped) = false, want true")
	}

	if IsUsageError(err) {
		t.Errorf("commit-discipline violations are not usage errors")
	}
}

func TestOutsideUnitOfWorkError(t *testing.T) {
	err := NewOutsideUnitOfWorkError("*tracking.Store[entity.TableKey]")

	if !errors.Is(err, ErrOutsideUnitOfWork) {
		t.Errorf("errors.Is(err, ErrOutsideUnitOfWork) = false, want true")
	}
	if ErrorCode(err) != CodeOutsideUnitOfWork {
		t.Errorf("ErrorCode(err) = %d, want %d", ErrorCode(err), CodeOutsideUnitOfWork)
	}
}

func TestBatchError(t *testing.T) {
	baseErr := fmt.Errorf("%w: throttled", ErrBackendUnavailable)
	batchErr := &BatchError{
		Table:        "notes",
		PartitionKey: "tenant-1",
		Operation:    "insert",
		Size:         25,
		Err:          baseErr,
	}

	expectedErrMsg := `insert batch of 25 on notes (partition "tenant-1") failed: storage backend unavailable: throttled`
	if batchErr.Error() != expectedErrMsg {
		t.Errorf("BatchError.Error() = %s, want %s", batchErr.Error(), expectedErrMsg)
	}

	if !errors.Is(batchErr, ErrBackendUnavailable) {
		t.Errorf("errors.Is(batchErr, ErrBackendUnavailable) = false, want true")
	}

	if batchErr.LogFields()["error_code"] != CodeBackendUnavailable {
		t.Errorf("LogFields()[error_code] = %v, want %d", batchErr.LogFields()["error_code"], CodeBackendUnavailable)
	}
}

func TestErrorHelperFunctions(t *testing.T) {
	if IsRollbackRequested(ErrChildCommitPending) {
		t.Errorf("IsRollbackRequested(ErrChildCommitPending) = true, want false")
	}

	wrappedRollback := fmt.Errorf("body: %w", ErrRollbackRequested)
	if !IsRollbackRequested(wrappedRollback) {
		t.Errorf("IsRollbackRequested(wrappedRollback) = false, want true")
	}

	if !IsNotFoundError(fmt.Errorf("load: %w", ErrEntityNotFound)) {
		t.Errorf("IsNotFoundError(wrapped) = false, want true")
	}
}
