package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ParsePGErrorCode extracts the SQLSTATE code from a pgx error.
func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

// Postgres SQLSTATE codes the repositories care about.
const (
	PGCodeUniqueViolation  = "23505"
	PGCodeLockNotAvailable = "55P03"
)

// Generic
var (
	ErrValidation     = errors.New("invalid input provided")
	ErrInternalServer = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
)

// Wallets / accounts
var (
	ErrWalletExists    = errors.New("wallet already exists for user")
	ErrAccountNotFound = errors.New("account not found")
)

// Ledger operations
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAlreadyRefunded     = errors.New("transaction already refunded")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrLockTimeout is transient: the caller may retry the same request.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// Idempotency
var (
	ErrTicketRequired = errors.New("idempotency ticket required")
	ErrConflict       = errors.New("duplicate request in progress")
)
