// Package spectro is a Postgres-only, Ecto-inspired ORM core: schema
// metadata, an immutable query algebra, a batched preload engine, a lazy
// relation loader, a migration runner and a pooled connection/transaction
// core. See the subpackages pk, schema, rowmap, relation, query, sqlgen,
// preload, conn, repository and migrate for the individual layers.
package spectro

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("spectro: entity not found")

	// ErrNotSingular is returned when a query that expects exactly one result
	// returns zero or multiple results.
	ErrNotSingular = errors.New("spectro: entity not singular")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("spectro: cannot start a transaction within a transaction")

	// ErrNoActiveTx is returned when a transaction-only operation is
	// invoked outside of a transaction.
	ErrNoActiveTx = errors.New("spectro: no active transaction")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("spectro: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("spectro: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string { return e.label }

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any { return e.id }

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError represents an error when a query expects a singular result
// but receives zero or multiple results.
type NotSingularError struct {
	label string
	count int // Number of results returned (-1 if unknown)
}

func (e *NotSingularError) Error() string {
	if e.count >= 0 {
		return fmt.Sprintf("spectro: %s not singular (got %d results, expected 1)", e.label, e.count)
	}
	return fmt.Sprintf("spectro: %s not singular", e.label)
}

func (e *NotSingularError) Is(err error) bool { return err == ErrNotSingular }

func (e *NotSingularError) Label() string { return e.label }
func (e *NotSingularError) Count() int    { return e.count }

// NewNotSingularError returns a new NotSingularError for the given entity type.
func NewNotSingularError(label string) *NotSingularError {
	return &NotSingularError{label: label, count: -1}
}

// NewNotSingularErrorWithCount returns a new NotSingularError with the result count.
func NewNotSingularErrorWithCount(label string, count int) *NotSingularError {
	return &NotSingularError{label: label, count: count}
}

// IsNotSingular returns true if the error is a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}

// Kind enumerates the error categories surfaced to callers (spec §7).
type Kind string

// Error kinds, grouped by the table in spec.md §7.
const (
	// Transport and pool problems.
	KindConnectionFailed                Kind = "connection_failed"
	KindConnectionPoolExhausted         Kind = "connection_pool_exhausted"
	KindConnectionTimeout               Kind = "connection_timeout"
	KindInvalidConnectionConfiguration  Kind = "invalid_connection_configuration"

	// SQL and driver-level problems.
	KindInvalidQuery          Kind = "invalid_query"
	KindInvalidSQL            Kind = "invalid_sql"
	KindInvalidParameter      Kind = "invalid_parameter"
	KindQueryExecutionFailed  Kind = "query_execution_failed"
	KindResultDecodingFailed  Kind = "result_decoding_failed"

	// Data-shape problems.
	KindUnexpectedResultCount Kind = "unexpected_result_count"
	KindInvalidData           Kind = "invalid_data"

	// Schema-definition problems.
	KindInvalidSchema         Kind = "invalid_schema"
	KindInvalidField          Kind = "invalid_field"
	KindRelationshipError     Kind = "relationship_error"
	KindRelationshipNotFound  Kind = "relationship_not_found"
	KindMissingRequiredField  Kind = "missing_required_field"

	// Transaction lifecycle.
	KindTransactionFailed         Kind = "transaction_failed"
	KindTransactionAlreadyStarted Kind = "transaction_already_started"
	KindNoActiveTransaction       Kind = "no_active_transaction"
	KindTransactionDeadlock       Kind = "transaction_deadlock"

	// Migration subsystem.
	KindMigrationFailed          Kind = "migration_failed"
	KindMigrationNotFound        Kind = "migration_not_found"
	KindInvalidMigrationFile     Kind = "invalid_migration_file"
	KindMigrationVersionConflict Kind = "migration_version_conflict"

	// Startup-time.
	KindConfigurationError        Kind = "configuration_error"
	KindMissingEnvironmentVariable Kind = "missing_environment_variable"
	KindInvalidCredentials        Kind = "invalid_credentials"

	// Fallback.
	KindInternalError Kind = "internal_error"
	KindNotImplemented Kind = "not_implemented"
)

// Error is a generic, structured error carrying a Kind tag plus a
// human-readable message and an optional wrapped cause. Most subsystem
// errors in spectro are their own concrete type (NotFoundError,
// ConstraintError, ...); Error is used for the remaining Kinds in spec.md
// §7 that do not need bespoke fields.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spectro: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("spectro: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

// NewError returns a new *Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError returns a new *Error of the given kind wrapping err.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// HasKind reports whether err is (or wraps) a *Error with the given kind.
func HasKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

func (e ConstraintError) Error() string {
	return fmt.Sprintf("spectro: constraint failed: %s", e.msg)
}

func (e ConstraintError) Unwrap() error { return e.wrap }

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for field values.
type ValidationError struct {
	Name string // Field or entity name
	Err  error  // Underlying validation error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("spectro: validation failed for field %q: %s", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Error returned by the rollback itself
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("spectro: rollback failed: %v", e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "spectro: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("spectro: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Entity type being queried
	Op     string // Operation (e.g., "select", "count", "exist")
	Err    error  // Underlying error
}

func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("spectro: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("spectro: querying %s: %v", e.Entity, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a mutation error with additional context.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     string // Operation (e.g., "insert", "update", "delete")
	Err    error  // Underlying error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("spectro: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// TransactionFailedError wraps the original error of a failed, rolled-back
// transaction. Repository.Transaction does not return this type: it
// reports its failures as a *Error of KindTransactionFailed wrapping the
// original error.
type TransactionFailedError struct {
	Err error
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("spectro: transaction failed: %v", e.Err)
}

func (e *TransactionFailedError) Unwrap() error { return e.Err }

// NewTransactionFailedError wraps err as a TransactionFailedError. If err is
// nil, NewTransactionFailedError returns nil.
func NewTransactionFailedError(err error) error {
	if err == nil {
		return nil
	}
	return &TransactionFailedError{Err: err}
}

// IsTransactionFailed returns true if the error is a TransactionFailedError.
func IsTransactionFailed(err error) bool {
	if err == nil {
		return false
	}
	var e *TransactionFailedError
	return errors.As(err, &e)
}
