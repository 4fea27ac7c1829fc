package errors

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBErrorNil(t *testing.T) {
	assert.Nil(t, MapDBError(nil))
}

func TestMapDBErrorNoRows(t *testing.T) {
	err := MapDBError(pgx.ErrNoRows)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	assert.True(t, IsNotFound(MapDBError(sql.ErrNoRows)))
}

func TestMapDBErrorConnectionFailure(t *testing.T) {
	assert.Equal(t, ErrCodeUnavailable, GetCode(MapDBError(sql.ErrConnDone)))

	pgErr := &pgconn.PgError{Code: pgerrcode.ConnectionFailure}
	assert.Equal(t, ErrCodeUnavailable, GetCode(MapDBError(pgErr)))

	pgErr = &pgconn.PgError{Code: pgerrcode.TooManyConnections}
	assert.Equal(t, ErrCodeUnavailable, GetCode(MapDBError(pgErr)))
}

func TestMapDBErrorContext(t *testing.T) {
	assert.True(t, IsTimeout(MapDBError(context.DeadlineExceeded)))
	assert.True(t, IsCanceled(MapDBError(context.Canceled)))
}

func TestMapDBErrorUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:   pgerrcode.UniqueViolation,
		Detail: "Key (id)=(abc) already exists.",
	}
	err := MapDBError(pgErr)
	require.True(t, IsConflict(err))
	assert.Equal(t, "id", GetField(err))
}

func TestMapDBErrorUniqueViolationConstraintFallback(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           pgerrcode.UniqueViolation,
		ConstraintName: "jobs_id_key",
	}
	err := MapDBError(pgErr)
	require.True(t, IsConflict(err))
	assert.Equal(t, "id", GetField(err))
}

func TestMapDBErrorCheckViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:       pgerrcode.CheckViolation,
		ColumnName: "status",
	}
	err := MapDBError(pgErr)
	require.True(t, IsValidation(err))
	assert.Equal(t, "status", GetField(err))
}

func TestMapDBErrorUnknownPgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgerrcode.SerializationFailure}
	assert.True(t, IsInternal(MapDBError(pgErr)))
}

func TestMapDBErrorPassthrough(t *testing.T) {
	plain := errors.New("not a db error")
	assert.Same(t, plain, MapDBError(plain))
}
