// Package repository provides data access layer implementations for the application.
package repository

import (
	"errors"

	"pivot/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// notFoundOr maps gorm.ErrRecordNotFound to a NOT_FOUND AppError and wraps
// everything else as INTERNAL_ERROR.
func notFoundOr(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewInternalError(err)
}

// isUniqueViolation reports whether err came from a unique index. GORM
// translates most drivers to ErrDuplicatedKey; raw pgconn errors are checked
// for connections opened without TranslateError.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
