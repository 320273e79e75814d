package credits

import "errors"

var (
	// ErrInsufficientCredits is returned when a deduction would drive the
	// balance negative. Recoverable: callers must skip or reschedule the
	// action, never treat it as infrastructure failure.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrLedgerUnavailable wraps infrastructure failures. The calling
	// operation must fail; proceeding would hand out unmetered AI labor.
	ErrLedgerUnavailable = errors.New("credit ledger unavailable")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("credit amount must be positive")
)
