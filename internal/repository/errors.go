// Package repository holds the data access layer.  Every query on fleet
// units and loads takes the tenant id as an explicit argument; a row owned
// by another tenant is indistinguishable from a missing row.
//
// The sentinel errors below let handlers distinguish failure scenarios
// without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a row does not exist or is not visible to
// the calling tenant.  Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrDuplicateIdentity is returned when a username or email is already
// taken.  Handlers translate it into HTTP 409.
var ErrDuplicateIdentity = errors.New("username or email already registered")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot proceed because of existing
// state, such as a user that already belongs to a company.  Handlers
// translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// notFound maps gorm's missing-row error onto ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// IsDuplicateKey reports a unique constraint violation on any of the
// supported engines.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *gomysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "1062")
}
