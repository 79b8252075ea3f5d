package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
)

// PostgreSQL error codes that mean "run the transaction again".
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// translate maps driver errors onto ledger sentinels. Errors that are
// already ledger errors, or that have no ledger meaning, pass through.
func translate(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var le *ledger.Error
	if errors.As(err, &le) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) && notFound != nil {
		return notFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %s (%s)", ledger.ErrConflict, pgErr.Message, pgErr.Code)
		}
	}
	return err
}
