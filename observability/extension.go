// Package observability provides a metrics extension for Points that
// records ledger and transition event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/points/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnConsumed             = (*MetricsExtension)(nil)
	_ plugin.OnGranted              = (*MetricsExtension)(nil)
	_ plugin.OnExpired              = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientPoints   = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated       = (*MetricsExtension)(nil)
	_ plugin.OnAccountStatusChanged = (*MetricsExtension)(nil)
	_ plugin.OnTransitionClaimed    = (*MetricsExtension)(nil)
	_ plugin.OnTransitionConflict   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide ledger metrics.
// Register it as a Points plugin to automatically track activity.
type MetricsExtension struct {
	factory MetricFactory

	// Ledger metrics
	PointsConsumed     Counter
	PointsGranted      Counter
	PointsExpired      Counter
	ConsumeAmount      Histogram
	GrantAmount        Histogram
	InsufficientPoints Counter

	// Account metrics
	AccountsCreated      Counter
	AccountStatusChanges Counter

	// Transition metrics
	TransitionsClaimed  Counter
	TransitionConflicts Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		PointsConsumed:     factory.Counter("points.consumed"),
		PointsGranted:      factory.Counter("points.granted"),
		PointsExpired:      factory.Counter("points.expired"),
		ConsumeAmount:      factory.Histogram("points.consume.amount"),
		GrantAmount:        factory.Histogram("points.grant.amount"),
		InsufficientPoints: factory.Counter("points.insufficient"),

		AccountsCreated:      factory.Counter("points.account.created"),
		AccountStatusChanges: factory.Counter("points.account.status_changed"),

		TransitionsClaimed:  factory.Counter("points.transition.claimed"),
		TransitionConflicts: factory.Counter("points.transition.conflict"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// OnConsumed implements plugin.OnConsumed.
func (m *MetricsExtension) OnConsumed(_ context.Context, _, _ string, consumed, _ int64) error {
	m.PointsConsumed.Add(float64(consumed))
	m.ConsumeAmount.Observe(float64(consumed))
	return nil
}

// OnGranted implements plugin.OnGranted.
func (m *MetricsExtension) OnGranted(_ context.Context, _, _ string, amount, _ int64) error {
	m.PointsGranted.Add(float64(amount))
	m.GrantAmount.Observe(float64(amount))
	return nil
}

// OnExpired implements plugin.OnExpired.
func (m *MetricsExtension) OnExpired(_ context.Context, _ string, amount int64) error {
	m.PointsExpired.Add(float64(amount))
	return nil
}

// OnInsufficientPoints implements plugin.OnInsufficientPoints.
func (m *MetricsExtension) OnInsufficientPoints(_ context.Context, _, _ string, _ error) error {
	m.InsufficientPoints.Inc()
	return nil
}

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _, _ string) error {
	m.AccountsCreated.Inc()
	return nil
}

// OnAccountStatusChanged implements plugin.OnAccountStatusChanged.
func (m *MetricsExtension) OnAccountStatusChanged(_ context.Context, _, _ string) error {
	m.AccountStatusChanges.Inc()
	return nil
}

// OnTransitionClaimed implements plugin.OnTransitionClaimed.
func (m *MetricsExtension) OnTransitionClaimed(_ context.Context, _, _, _ string) error {
	m.TransitionsClaimed.Inc()
	return nil
}

// OnTransitionConflict implements plugin.OnTransitionConflict.
func (m *MetricsExtension) OnTransitionConflict(_ context.Context, _, _, _ string) error {
	m.TransitionConflicts.Inc()
	return nil
}
