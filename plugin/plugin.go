// Package plugin provides an extensible plugin system for the Points engine.
// Plugins can hook into ledger and transition events to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnConsumed is called after a debit commits.
type OnConsumed interface {
	Plugin
	OnConsumed(ctx context.Context, orgID, action string, consumed, newBalance int64) error
}

// OnGranted is called after a credit commits.
type OnGranted interface {
	Plugin
	OnGranted(ctx context.Context, orgID, entryType string, amount, newBalance int64) error
}

// OnExpired is called after lapsed or capped points are swept.
type OnExpired interface {
	Plugin
	OnExpired(ctx context.Context, orgID string, amount int64) error
}

// OnInsufficientPoints is called when a consume is rejected for lack of
// points or an inactive subscription. A natural home for upsell nudges.
type OnInsufficientPoints interface {
	Plugin
	OnInsufficientPoints(ctx context.Context, orgID, action string, cause error) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called when a points account is opened.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, orgID, tier string) error
}

// OnAccountStatusChanged is called when the subscription status gate moves.
type OnAccountStatusChanged interface {
	Plugin
	OnAccountStatusChanged(ctx context.Context, orgID, status string) error
}

// ──────────────────────────────────────────────────
// Transition hooks
// ──────────────────────────────────────────────────

// OnTransitionClaimed is called after a state transition wins its claim.
type OnTransitionClaimed interface {
	Plugin
	OnTransitionClaimed(ctx context.Context, kind, entityID, target string) error
}

// OnTransitionConflict is called when a claim loses the race.
type OnTransitionConflict interface {
	Plugin
	OnTransitionConflict(ctx context.Context, kind, entityID, target string) error
}

// ──────────────────────────────────────────────────
// Notifiers
// ──────────────────────────────────────────────────

// Notifier delivers user-facing notifications out of band. Delivery runs
// after commit and never affects the originating transaction: a failed
// notification logs and moves on.
type Notifier interface {
	Plugin
	Notify(ctx context.Context, orgID, subject, body string) error
}
