package repository

import (
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsRecordNotFound reports a missing row, whether it came from bun or from
// the generic repository
func IsRecordNotFound(err error) bool {
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation detects unique constraint failures on postgres and sqlite
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	for ; err != nil; err = errors.Unwrap(err) {
		msg := err.Error()
		if strings.Contains(msg, "UNIQUE constraint failed") ||
			strings.Contains(msg, "duplicate key value violates unique constraint") {
			return true
		}
	}
	return false
}

func withMessage(base *goerrors.Error, msg string) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Message = msg
	clone.Source = base
	return clone
}

// expectRow returns notFound when res touched no rows
func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return notFound
	}
	return nil
}
