package conn

import (
	"context"
	"errors"

	"github.com/lib/pq"

	spectro "github.com/spectro-orm/spectro"
)

// Postgres SQLSTATE codes this package classifies by name. Trimmed from
// the teacher's dialect/sql/sqlgraph/errors.go (which also classified
// MySQL and SQLite errors) down to the Postgres-only subset spec.md's
// Non-goals leave in scope.
const (
	sqlstateUniqueViolation     = "23505"
	sqlstateForeignKeyViolation = "23503"
	sqlstateNotNullViolation    = "23502"
	sqlstateCheckViolation      = "23514"
	sqlstateSerializationFail   = "40001"
	sqlstateDeadlockDetected    = "40P01"
)

// classifyError turns a raw database/sql/lib-pq error into a Spectro
// taxonomy error (spec.md §7). Non-Postgres errors (context cancellation,
// driver-level failures) are mapped on a best-effort basis; anything
// unrecognised is wrapped as KindQueryExecutionFailed so the SQLSTATE and
// message are still visible via errors.Unwrap.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return spectro.NewConstraintError(pqErr.Message, pqErr)
		case "foreign_key_violation":
			return spectro.NewConstraintError(pqErr.Message, pqErr)
		case "check_violation":
			return spectro.NewConstraintError(pqErr.Message, pqErr)
		case "not_null_violation":
			return spectro.WrapError(spectro.KindMissingRequiredField, pqErr.Message, pqErr)
		case "serialization_failure", "deadlock_detected":
			return spectro.WrapError(spectro.KindTransactionDeadlock, pqErr.Message, pqErr)
		default:
			return spectro.WrapError(spectro.KindQueryExecutionFailed, pqErr.Message, pqErr)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return spectro.WrapError(spectro.KindConnectionTimeout, "query context ended", err)
	}

	return spectro.WrapError(spectro.KindQueryExecutionFailed, err.Error(), err)
}

// isConstraintCode reports whether code names a Postgres integrity-
// constraint violation, independent of which kind classifyError mapped it
// to. Nothing in the module calls it at present.
func isConstraintCode(code pq.ErrorCode) bool {
	switch code {
	case sqlstateUniqueViolation, sqlstateForeignKeyViolation, sqlstateNotNullViolation, sqlstateCheckViolation:
		return true
	default:
		return false
	}
}
