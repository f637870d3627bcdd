package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// IsUniqueViolation reports a unique-key failure from Postgres (pgx or
// lib/pq) or sqlite. A non-empty constraint narrows the match to that
// constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return constraint == "" || strings.Contains(err.Error(), constraint)
	}
	return matchViolation(err, pgUniqueViolation, constraint, "duplicate key value", "UNIQUE constraint failed")
}

// IsCheckViolation reports a CHECK constraint failure, e.g. the
// non-negative quantity guard on inventory_records.
func IsCheckViolation(err error, constraint string) bool {
	if errors.Is(err, gorm.ErrCheckConstraintViolated) {
		return constraint == "" || strings.Contains(err.Error(), constraint)
	}
	return matchViolation(err, pgCheckViolation, constraint, "violates check constraint", "CHECK constraint failed")
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func matchViolation(err error, sqlState, constraint string, markers ...string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlState && (constraint == "" || pgErr.ConstraintName == constraint)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == sqlState && (constraint == "" || pqErr.Constraint == constraint)
	}

	msg := err.Error()
	for _, marker := range markers {
		if strings.Contains(msg, marker) {
			return constraint == "" || strings.Contains(msg, constraint)
		}
	}
	return false
}
