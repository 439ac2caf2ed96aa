package database

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
)

// ErrorType represents the type of database error that occurred
type ErrorType string

const (
	DuplicateKeyError ErrorType = "duplicate_key"
	LockError         ErrorType = "lock"
	ConnectionError   ErrorType = "connection"
	ConstraintError   ErrorType = "constraint"
	NotFoundError     ErrorType = "not_found"
)

// PostgreSQL error codes the mapper distinguishes
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgNotNullViolation     = "23502"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// ErrorMapper classifies database errors and maps them to domain errors
type ErrorMapper struct{}

// NewErrorMapper creates a new ErrorMapper
func NewErrorMapper() *ErrorMapper {
	return &ErrorMapper{}
}

// Classify returns the type of error, or "" when it is not recognised
func (m *ErrorMapper) Classify(err error) ErrorType {
	if err == nil {
		return ""
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFoundError
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return DuplicateKeyError
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return DuplicateKeyError
		case pgForeignKeyViolation, pgCheckViolation, pgNotNullViolation:
			return ConstraintError
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return LockError
		}
	}

	if errors.Is(err, driver.ErrBadConn) {
		return ConnectionError
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "duplicate key") ||
		strings.Contains(errMsg, "unique constraint"):
		return DuplicateKeyError
	case strings.Contains(errMsg, "deadlock") ||
		strings.Contains(errMsg, "could not serialize access") ||
		strings.Contains(errMsg, "lock timeout"):
		return LockError
	case strings.Contains(errMsg, "check constraint") ||
		strings.Contains(errMsg, "foreign key constraint"):
		return ConstraintError
	case strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "server closed") ||
		strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "eof"):
		return ConnectionError
	}
	return ""
}

// IsTransient reports whether retrying the whole operation may succeed
func (m *ErrorMapper) IsTransient(err error) bool {
	switch m.Classify(err) {
	case LockError, ConnectionError:
		return true
	default:
		return false
	}
}

// MapError maps a database error to a domain error, keeping the driver error reachable
func (m *ErrorMapper) MapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	switch m.Classify(err) {
	case NotFoundError:
		return fmt.Errorf("%w: %s: %w", errs.ErrEntityNotFound, operation, err)
	case DuplicateKeyError:
		return fmt.Errorf("%w: %s: %w", errs.ErrDuplicateEntity, operation, err)
	case ConstraintError:
		return fmt.Errorf("%w: %s: %w", errs.ErrConstraintViolation, operation, err)
	default:
		return fmt.Errorf("%w: %s: %w", errs.ErrBackendUnavailable, operation, err)
	}
}
