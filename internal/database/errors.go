package database

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"qc-standards/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgValueTooLong        = "22001"

	mysqlDuplicateEntry  = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
	mysqlDataTooLong     = 1406
)

// translateError maps driver errors onto the models taxonomy so callers can
// use errors.Is regardless of the dialect.
func translateError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, what)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s already exists", models.ErrConflict, what)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s already exists (%s)", models.ErrConflict, what, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s references a missing row (%s)", models.ErrValidation, what, pgErr.ConstraintName)
		case pgValueTooLong:
			return fmt.Errorf("%w: %s has a value that is too long", models.ErrValidation, what)
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return fmt.Errorf("%w: %s already exists", models.ErrConflict, what)
		case mysqlNoReferencedRow:
			return fmt.Errorf("%w: %s references a missing row", models.ErrValidation, what)
		case mysqlDataTooLong:
			return fmt.Errorf("%w: %s has a value that is too long", models.ErrValidation, what)
		case mysqlRowIsReferenced:
			return fmt.Errorf("%w: %s is still referenced", models.ErrConflict, what)
		}
	}

	return fmt.Errorf("%s: %w", what, err)
}
