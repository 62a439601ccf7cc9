// Package audithook bridges Points lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/points/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnConsumed             = (*Extension)(nil)
	_ plugin.OnGranted              = (*Extension)(nil)
	_ plugin.OnExpired              = (*Extension)(nil)
	_ plugin.OnInsufficientPoints   = (*Extension)(nil)
	_ plugin.OnAccountCreated       = (*Extension)(nil)
	_ plugin.OnAccountStatusChanged = (*Extension)(nil)
	_ plugin.OnTransitionClaimed    = (*Extension)(nil)
	_ plugin.OnTransitionConflict   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Points lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnConsumed implements plugin.OnConsumed.
func (e *Extension) OnConsumed(ctx context.Context, orgID, action string, consumed, newBalance int64) error {
	return e.record(ctx, ActionPointsConsumed, SeverityInfo, OutcomeSuccess,
		ResourceLedger, orgID, CategoryBilling, nil,
		"action", action,
		"consumed", consumed,
		"new_balance", newBalance,
	)
}

// OnGranted implements plugin.OnGranted.
func (e *Extension) OnGranted(ctx context.Context, orgID, entryType string, amount, newBalance int64) error {
	return e.record(ctx, ActionPointsGranted, SeverityInfo, OutcomeSuccess,
		ResourceLedger, orgID, CategoryBilling, nil,
		"entry_type", entryType,
		"amount", amount,
		"new_balance", newBalance,
	)
}

// OnExpired implements plugin.OnExpired.
func (e *Extension) OnExpired(ctx context.Context, orgID string, amount int64) error {
	return e.record(ctx, ActionPointsExpired, SeverityInfo, OutcomeSuccess,
		ResourceLedger, orgID, CategoryBilling, nil,
		"amount", amount,
	)
}

// OnInsufficientPoints implements plugin.OnInsufficientPoints.
func (e *Extension) OnInsufficientPoints(ctx context.Context, orgID, action string, cause error) error {
	return e.record(ctx, ActionPointsInsufficient, SeverityWarning, OutcomeFailure,
		ResourceLedger, orgID, CategoryBilling, cause,
		"action", action,
	)
}

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, orgID, tier string) error {
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, orgID, CategoryAccount, nil,
		"tier", tier,
	)
}

// OnAccountStatusChanged implements plugin.OnAccountStatusChanged.
func (e *Extension) OnAccountStatusChanged(ctx context.Context, orgID, status string) error {
	return e.record(ctx, ActionAccountStatusChanged, SeverityInfo, OutcomeSuccess,
		ResourceAccount, orgID, CategoryAccount, nil,
		"status", status,
	)
}

// OnTransitionClaimed implements plugin.OnTransitionClaimed.
func (e *Extension) OnTransitionClaimed(ctx context.Context, kind, entityID, target string) error {
	return e.record(ctx, ActionTransitionClaimed, SeverityInfo, OutcomeSuccess,
		ResourceTransition, entityID, CategoryWorkflow, nil,
		"kind", kind,
		"target", target,
	)
}

// OnTransitionConflict implements plugin.OnTransitionConflict.
func (e *Extension) OnTransitionConflict(ctx context.Context, kind, entityID, target string) error {
	return e.record(ctx, ActionTransitionConflict, SeverityWarning, OutcomeFailure,
		ResourceTransition, entityID, CategoryWorkflow, nil,
		"kind", kind,
		"target", target,
	)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
