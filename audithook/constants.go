package audithook

// Action constants for audit events.
const (
	// Ledger actions
	ActionPointsConsumed     = "points.consumed"
	ActionPointsGranted      = "points.granted"
	ActionPointsExpired      = "points.expired"
	ActionPointsInsufficient = "points.insufficient"

	// Account actions
	ActionAccountCreated       = "account.created"
	ActionAccountStatusChanged = "account.status_changed"

	// Transition actions
	ActionTransitionClaimed  = "transition.claimed"
	ActionTransitionConflict = "transition.conflict"
)

// Resource constants for audit events.
const (
	ResourceLedger     = "ledger"
	ResourceAccount    = "account"
	ResourceTransition = "transition"
)

// Category constants for audit events.
const (
	CategoryBilling  = "billing"
	CategoryAccount  = "account"
	CategoryWorkflow = "workflow"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
