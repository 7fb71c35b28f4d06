// Package repository defines the persistence contracts of the purchase
// pipeline and their MySQL implementation. The Postgres implementation
// lives in the pgrepo subpackage and returns the same sentinel errors, so
// services never look at driver errors.
package repository

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a row looked up by id does not exist.
// Services translate it into their own domain errors.
var ErrNotFound = errors.New("not found")

// ErrStatusChanged is returned by UpdateTicketStatus when the ticket is
// no longer in the status the caller read it in.
var ErrStatusChanged = errors.New("ticket status changed")

// ErrDuplicateKey is returned when an insert violates a unique
// constraint. MySQL reports this as error 1062.
var ErrDuplicateKey = errors.New("duplicate key")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// notFound maps sql.ErrNoRows to ErrNotFound and leaves other errors alone.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
