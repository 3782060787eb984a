package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"qc-standards/internal/models"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"not found", gorm.ErrRecordNotFound, models.ErrNotFound},
		{"gorm duplicate", gorm.ErrDuplicatedKey, models.ErrConflict},
		{"pg unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), models.ErrConflict},
		{"pg fk", &pgconn.PgError{Code: "23503"}, models.ErrValidation},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, models.ErrConflict},
		{"mysql fk", &mysql.MySQLError{Number: 1452}, models.ErrValidation},
		{"mysql referenced", &mysql.MySQLError{Number: 1451}, models.ErrConflict},
		{"pg value too long", &pgconn.PgError{Code: "22001"}, models.ErrValidation},
		{"mysql data too long", &mysql.MySQLError{Number: 1406}, models.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translateError(tc.err, "thing"), tc.want)
		})
	}
}

func TestTranslateErrorKeepsUnknown(t *testing.T) {
	boom := errors.New("connection reset")
	err := translateError(boom, "template")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, models.ErrConflict)
	assert.Nil(t, translateError(nil, "x"))
}

func TestDialector(t *testing.T) {
	_, err := dialector("sqlite", "file.db")
	assert.Error(t, err)

	d, err := dialector("mysql", "u:p@tcp(localhost:3306)/qc")
	assert.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	d, err = dialector("", "postgres://localhost/qc")
	assert.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}
