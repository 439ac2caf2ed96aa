package error

import (
	"errors"
	"fmt"
)

// Error codes for standardized API responses
const (
	// 4xxx - Usage and client errors
	CodeEntityAlreadyTracked = 4001
	CodeOutsideUnitOfWork    = 4002
	CodeScopeOrder           = 4003
	CodeDuplicateEntity      = 4004
	CodeConstraintViolation  = 4005
	CodeUnitOfWorkDisposed   = 4006
	CodeInvalidRequest       = 4007
	CodeChildCommitPending   = 4090
	CodeEntityNotFound       = 4040
	CodeBatchTooLarge        = 4130

	// 5xxx - Server errors
	CodeInternalServer     = 5000
	CodeBackendUnavailable = 5030
)

// Base error types
var (
	// ErrEntityAlreadyTracked is returned when an entity is registered into a second tracking state
	ErrEntityAlreadyTracked = errors.New("entity already tracked elsewhere")

	// ErrOutsideUnitOfWork is returned when a resource handle is requested with no unit of work in scope
	ErrOutsideUnitOfWork = errors.New("used outside unit of work")

	// ErrScopeNotDisposedCorrectly is returned when a unit of work is unregistered out of order
	ErrScopeNotDisposedCorrectly = errors.New("unit of work not disposed correctly")

	// ErrUnitOfWorkDisposed is returned when a disposed unit of work is used again
	ErrUnitOfWorkDisposed = errors.New("unit of work already disposed")

	// ErrChildCommitPending is returned when a nested commit was never acknowledged by the owning scope
	ErrChildCommitPending = errors.New("child commit pending")

	// ErrRollbackRequested signals an explicit rollback of the enclosing transaction scope
	ErrRollbackRequested = errors.New("transaction rollback requested")

	// ErrTransactionScopeCompleted is returned when a transaction scope is executed twice
	ErrTransactionScopeCompleted = errors.New("transaction scope already completed")

	// ErrTransactionsUnsupported is returned when the backend cannot begin a transaction
	ErrTransactionsUnsupported = errors.New("backend does not support transactions")

	// ErrTransactionTooLarge is returned when a transaction exceeds the backend's atomic write limit
	ErrTransactionTooLarge = errors.New("transaction exceeds backend operation limit")

	// ErrBatchTooLarge is returned when a batch exceeds the backend's per-batch operation limit
	ErrBatchTooLarge = errors.New("batch exceeds backend operation limit")

	// ErrEntityNotFound is returned when the requested entity doesn't exist
	ErrEntityNotFound = errors.New("entity not found")

	// ErrDuplicateEntity is returned when an insert hits an existing key
	ErrDuplicateEntity = errors.New("entity with this key already exists")

	// ErrConstraintViolation is returned when a database constraint is violated
	ErrConstraintViolation = errors.New("database constraint violation")

	// ErrBackendUnavailable is returned when there's a problem reaching the storage backend
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidRequest is returned when the request format is invalid
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInternalServer is returned for unexpected server-side errors
	ErrInternalServer = errors.New("internal server error")
)

// ErrorCode returns standardized error codes for known errors
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrEntityAlreadyTracked):
		return CodeEntityAlreadyTracked
	case errors.Is(err, ErrOutsideUnitOfWork):
		return CodeOutsideUnitOfWork
	case errors.Is(err, ErrScopeNotDisposedCorrectly):
		return CodeScopeOrder
	case errors.Is(err, ErrUnitOfWorkDisposed):
		return CodeUnitOfWorkDisposed
	case errors.Is(err, ErrChildCommitPending):
		return CodeChildCommitPending
	case errors.Is(err, ErrEntityNotFound):
		return CodeEntityNotFound
	case errors.Is(err, ErrDuplicateEntity):
		return CodeDuplicateEntity
	case errors.Is(err, ErrConstraintViolation):
		return CodeConstraintViolation
	case errors.Is(err, ErrBatchTooLarge), errors.Is(err, ErrTransactionTooLarge):
		return CodeBatchTooLarge
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrBackendUnavailable):
		return CodeBackendUnavailable
	default:
		return CodeInternalServer
	}
}

// TrackingConflictError reports an entity registered into a state that conflicts with its current one
type TrackingConflictError struct {
	Table     string
	Key       string
	Current   string
	Requested string
}

// Error implements the error interface for TrackingConflictError
func (e *TrackingConflictError) Error() string {
	return fmt.Sprintf("entity %s/%s is tracked as %s and cannot be registered as %s",
		e.Table, e.Key, e.Current, e.Requested)
}

// Is checks if the target error is an ErrEntityAlreadyTracked
func (e *TrackingConflictError) Is(target error) bool {
	return target == ErrEntityAlreadyTracked
}

// LogFields returns a map of fields for structured logging
func (e *TrackingConflictError) LogFields() map[string]any {
	return map[string]any{
		"error_type":      "tracking_conflict",
		"table":           e.Table,
		"key":             e.Key,
		"current_state":   e.Current,
		"requested_state": e.Requested,
		"error_code":      CodeEntityAlreadyTracked,
	}
}

// NewTrackingConflictError creates a new tracking conflict error
func NewTrackingConflictError(table, key, current, requested string) error {
	return &TrackingConflictError{
		Table:     table,
		Key:       key,
		Current:   current,
		Requested: requested,
	}
}

// ScopeOrderError reports a unit of work unregistered while it was not on top of the scope stack
type ScopeOrderError struct {
	Expected string
	Actual   string
	Depth    int
}

// Error implements the error interface
func (e *ScopeOrderError) Error() string {
	if e.Actual == "" {
		return fmt.Sprintf("unit of work %s not disposed correctly: scope stack is empty", e.Expected)
	}
	return fmt.Sprintf("unit of work %s not disposed correctly: top of scope stack is %s (depth %d)",
		e.Expected, e.Actual, e.Depth)
}

// Is checks if the target error is an ErrScopeNotDisposedCorrectly
func (e *ScopeOrderError) Is(target error) bool {
	return target == ErrScopeNotDisposedCorrectly
}

// LogFields returns a map of fields for structured logging
func (e *ScopeOrderError) LogFields() map[string]any {
	return map[string]any{
		"error_type":  "scope_order",
		"expected_id": e.Expected,
		"actual_id":   e.Actual,
		"depth":       e.Depth,
		"error_code":  CodeScopeOrder,
	}
}

// NewScopeOrderError creates a new scope order error
func NewScopeOrderError(expected, actual string, depth int) error {
	return &ScopeOrderError{
		Expected: expected,
		Actual:   actual,
		Depth:    depth,
	}
}

// OutsideUnitOfWorkError reports a handle requested where no unit of work of that kind is in scope
type OutsideUnitOfWorkError struct {
	HandleType string
}

// Error implements the error interface
func (e *OutsideUnitOfWorkError) Error() string {
	return fmt.Sprintf("%s used outside unit of work: no enclosing scope owns a handle of this type", e.HandleType)
}

// Is checks if the target error is an ErrOutsideUnitOfWork
func (e *OutsideUnitOfWorkError) Is(target error) bool {
	return target == ErrOutsideUnitOfWork
}

// NewOutsideUnitOfWorkError creates a new outside-unit-of-work error
func NewOutsideUnitOfWorkError(handleType string) error {
	return &OutsideUnitOfWorkError{HandleType: handleType}
}

// ChildCommitPendingError reports nested commits the owning unit of work never acknowledged
type ChildCommitPendingError struct {
	UnitOfWorkID string
	CommitCount  int
}

// Error implements the error interface
func (e *ChildCommitPendingError) Error() string {
	return fmt.Sprintf("unit of work %s has a child commit pending (commit count %d): the owning scope must call Commit after its nested scopes",
		e.UnitOfWorkID, e.CommitCount)
}

// Is checks if the target error is an ErrChildCommitPending
func (e *ChildCommitPendingError) Is(target error) bool {
	return target == ErrChildCommitPending
}

// LogFields returns a map of fields for structured logging
func (e *ChildCommitPendingError) LogFields() map[string]any {
	return map[string]any{
		"error_type":   "child_commit_pending",
		"unit_of_work": e.UnitOfWorkID,
		"commit_count": e.CommitCount,
		"error_code":   CodeChildCommitPending,
	}
}

// NewChildCommitPendingError creates a new child commit pending error
func NewChildCommitPendingError(unitOfWorkID string, commitCount int) error {
	return &ChildCommitPendingError{
		UnitOfWorkID: unitOfWorkID,
		CommitCount:  commitCount,
	}
}

// BatchError represents a failed backend batch write
type BatchError struct {
	Table        string
	PartitionKey string
	Operation    string
	Size         int
	Err          error
}

// Error implements the error interface for BatchError
func (e *BatchError) Error() string {
	return fmt.Sprintf("%s batch of %d on %s (partition %q) failed: %v",
		e.Operation, e.Size, e.Table, e.PartitionKey, e.Err)
}

// Unwrap returns the underlying error
func (e *BatchError) Unwrap() error {
	return e.Err
}

// LogFields returns a map of fields for structured logging
func (e *BatchError) LogFields() map[string]any {
	return map[string]any{
		"error_type":    "batch_error",
		"table":         e.Table,
		"partition_key": e.PartitionKey,
		"operation":     e.Operation,
		"size":          e.Size,
		"error":         e.Err.Error(),
		"error_code":    ErrorCode(e.Err),
	}
}

// IsTrackingConflictError checks if the error is an entity tracking conflict
func IsTrackingConflictError(err error) bool {
	return errors.Is(err, ErrEntityAlreadyTracked)
}

// IsChildCommitPendingError checks if the error is a commit-discipline violation
func IsChildCommitPendingError(err error) bool {
	return errors.Is(err, ErrChildCommitPending)
}

// IsRollbackRequested checks if the error is the explicit rollback signal
func IsRollbackRequested(err error) bool {
	return errors.Is(err, ErrRollbackRequested)
}

// IsNotFoundError checks if the error is any "not found" type of error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsUsageError checks if the error is a usage-protocol violation
func IsUsageError(err error) bool {
	return errors.Is(err, ErrOutsideUnitOfWork) ||
		errors.Is(err, ErrScopeNotDisposedCorrectly) ||
		errors.Is(err, ErrEntityAlreadyTracked) ||
		errors.Is(err, ErrUnitOfWorkDisposed)
}
