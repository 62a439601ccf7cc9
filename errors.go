package points

import (
	"errors"
	"fmt"

	"github.com/xraph/points/account"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("points: not found")
	ErrAlreadyExists = errors.New("points: already exists")
	ErrInvalidInput  = errors.New("points: invalid input")

	// Ledger errors
	ErrNoSubscription        = errors.New("points: no subscription for organization")
	ErrSubscriptionInactive  = errors.New("points: subscription inactive")
	ErrInsufficientPoints    = errors.New("points: insufficient points")
	ErrUnknownAction         = errors.New("points: unknown action type")
	ErrUnknownTier           = errors.New("points: unknown plan tier")
	ErrNonPositiveGrant      = errors.New("points: grant amount must be positive")
	ErrEntryTypeNotCrediting = errors.New("points: entry type does not credit points")

	// Transition errors
	ErrConflict       = errors.New("points: transition conflict")
	ErrEntityNotFound = errors.New("points: entity not found")

	// Store errors
	ErrStoreClosed       = errors.New("points: store is closed")
	ErrTransactionFailed = errors.New("points: transaction failed")
	ErrMigrationFailed   = errors.New("points: migration failed")
)

// InactiveError reports that an account exists but its subscription status
// blocks spending. It carries the status for display and maps to a
// payment-required response.
type InactiveError struct {
	Status account.Status
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("points: subscription inactive (status %s)", e.Status)
}

// Unwrap makes the error match ErrSubscriptionInactive with errors.Is.
func (e *InactiveError) Unwrap() error { return ErrSubscriptionInactive }

// InsufficientPointsError reports a balance too low for an action. It
// carries both numbers so the caller can prompt a top-up of the exact
// deficit.
type InsufficientPointsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("points: insufficient points (required %d, available %d)", e.Required, e.Available)
}

// Unwrap makes the error match ErrInsufficientPoints with errors.Is.
func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// Deficit returns how many points short the account is.
func (e *InsufficientPointsError) Deficit() int64 { return e.Required - e.Available }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNoSubscription) ||
		errors.Is(err, ErrEntityNotFound)
}

// IsPaymentRequired returns true for errors that map to a payment-required
// response: the subscription is missing, inactive, or out of points.
func IsPaymentRequired(err error) bool {
	return errors.Is(err, ErrNoSubscription) ||
		errors.Is(err, ErrSubscriptionInactive) ||
		errors.Is(err, ErrInsufficientPoints)
}

// IsConflict returns true if the error is a lost transition race. Safe to
// render as "someone already acted on this".
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsDefect returns true for programming-contract violations: these are
// bugs in the caller, not user-facing conditions.
func IsDefect(err error) bool {
	return errors.Is(err, ErrUnknownAction) ||
		errors.Is(err, ErrUnknownTier) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNonPositiveGrant) ||
		errors.Is(err, ErrEntryTypeNotCrediting)
}
