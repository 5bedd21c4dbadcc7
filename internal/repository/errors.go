// Package repository defines the error values shared by every store
// implementation and the MySQL-backed repositories.  Higher layers wrap
// these sentinels with context and handlers translate them into HTTP
// status codes with errors.Is.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a beat, store, tier, purchase or license
// does not exist.  Handlers translate it into 404.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an operation collides with existing
// state: the beat was sold exclusively or the buyer already holds the
// license.  Handlers translate it into 409.
var ErrConflict = errors.New("conflict")

// ErrForbidden is returned when the caller is authenticated but does
// not own the resource.  Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrUnauthorized is returned when no caller identity is present.
var ErrUnauthorized = errors.New("unauthorized")

// ErrInvalidInput is returned for malformed arguments.
var ErrInvalidInput = errors.New("invalid input")

// MySQL server error numbers the store reacts to.
const (
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlockDetected = 1213
)

// isDuplicateKey reports whether err is a unique index violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// isRetryable reports whether the transaction that produced err lost a
// lock race and may be run again from the start.
func isRetryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == mysqlDeadlockDetected || me.Number == mysqlLockWaitTimeout
}
