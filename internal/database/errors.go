package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("record already exists")
	// ErrInvalidReference is returned when a write names a room or user
	// that does not exist.
	ErrInvalidReference = errors.New("referenced record does not exist")
)

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

// classify maps driver errors onto the package's sentinel errors, keeping
// the driver error in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidReference, err)
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
