package txstore

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("txstore: not found")

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (used to map duplicate usernames/emails to Conflict).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
