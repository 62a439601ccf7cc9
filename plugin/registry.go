package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onConsumed             []OnConsumed
	onGranted              []OnGranted
	onExpired              []OnExpired
	onInsufficientPoints   []OnInsufficientPoints
	onAccountCreated       []OnAccountCreated
	onAccountStatusChanged []OnAccountStatusChanged
	onTransitionClaimed    []OnTransitionClaimed
	onTransitionConflict   []OnTransitionConflict
	notifiers              []Notifier
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnConsumed); ok {
		r.onConsumed = append(r.onConsumed, v)
	}
	if v, ok := p.(OnGranted); ok {
		r.onGranted = append(r.onGranted, v)
	}
	if v, ok := p.(OnExpired); ok {
		r.onExpired = append(r.onExpired, v)
	}
	if v, ok := p.(OnInsufficientPoints); ok {
		r.onInsufficientPoints = append(r.onInsufficientPoints, v)
	}
	if v, ok := p.(OnAccountCreated); ok {
		r.onAccountCreated = append(r.onAccountCreated, v)
	}
	if v, ok := p.(OnAccountStatusChanged); ok {
		r.onAccountStatusChanged = append(r.onAccountStatusChanged, v)
	}
	if v, ok := p.(OnTransitionClaimed); ok {
		r.onTransitionClaimed = append(r.onTransitionClaimed, v)
	}
	if v, ok := p.(OnTransitionConflict); ok {
		r.onTransitionConflict = append(r.onTransitionConflict, v)
	}
	if v, ok := p.(Notifier); ok {
		r.notifiers = append(r.notifiers, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnConsumed)(nil)).Elem(), "OnConsumed")
	checkInterface(reflect.TypeOf((*OnGranted)(nil)).Elem(), "OnGranted")
	checkInterface(reflect.TypeOf((*OnExpired)(nil)).Elem(), "OnExpired")
	checkInterface(reflect.TypeOf((*OnInsufficientPoints)(nil)).Elem(), "OnInsufficientPoints")
	checkInterface(reflect.TypeOf((*OnAccountCreated)(nil)).Elem(), "OnAccountCreated")
	checkInterface(reflect.TypeOf((*OnAccountStatusChanged)(nil)).Elem(), "OnAccountStatusChanged")
	checkInterface(reflect.TypeOf((*OnTransitionClaimed)(nil)).Elem(), "OnTransitionClaimed")
	checkInterface(reflect.TypeOf((*OnTransitionConflict)(nil)).Elem(), "OnTransitionConflict")
	checkInterface(reflect.TypeOf((*Notifier)(nil)).Elem(), "Notifier")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Notifiers returns all registered notifier plugins.
func (r *Registry) Notifiers() []Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Notifier, len(r.notifiers))
	copy(result, r.notifiers)
	return result
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitConsumed emits a points consumed event.
func (r *Registry) EmitConsumed(ctx context.Context, orgID, action string, consumed, newBalance int64) {
	r.mu.RLock()
	plugins := r.onConsumed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnConsumed(ctx, orgID, action, consumed, newBalance)
		}); err != nil {
			r.logger.Warn("plugin OnConsumed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitGranted emits a points granted event.
func (r *Registry) EmitGranted(ctx context.Context, orgID, entryType string, amount, newBalance int64) {
	r.mu.RLock()
	plugins := r.onGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnGranted(ctx, orgID, entryType, amount, newBalance)
		}); err != nil {
			r.logger.Warn("plugin OnGranted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitExpired emits a points expired event.
func (r *Registry) EmitExpired(ctx context.Context, orgID string, amount int64) {
	r.mu.RLock()
	plugins := r.onExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnExpired(ctx, orgID, amount)
		}); err != nil {
			r.logger.Warn("plugin OnExpired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInsufficientPoints emits a rejected consume event.
func (r *Registry) EmitInsufficientPoints(ctx context.Context, orgID, action string, cause error) {
	r.mu.RLock()
	plugins := r.onInsufficientPoints
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInsufficientPoints(ctx, orgID, action, cause)
		}); err != nil {
			r.logger.Warn("plugin OnInsufficientPoints failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccountCreated emits an account created event.
func (r *Registry) EmitAccountCreated(ctx context.Context, orgID, tier string) {
	r.mu.RLock()
	plugins := r.onAccountCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountCreated(ctx, orgID, tier)
		}); err != nil {
			r.logger.Warn("plugin OnAccountCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccountStatusChanged emits an account status changed event.
func (r *Registry) EmitAccountStatusChanged(ctx context.Context, orgID, status string) {
	r.mu.RLock()
	plugins := r.onAccountStatusChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountStatusChanged(ctx, orgID, status)
		}); err != nil {
			r.logger.Warn("plugin OnAccountStatusChanged failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTransitionClaimed emits a transition claimed event.
func (r *Registry) EmitTransitionClaimed(ctx context.Context, kind, entityID, target string) {
	r.mu.RLock()
	plugins := r.onTransitionClaimed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTransitionClaimed(ctx, kind, entityID, target)
		}); err != nil {
			r.logger.Warn("plugin OnTransitionClaimed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitTransitionConflict emits a transition conflict event.
func (r *Registry) EmitTransitionConflict(ctx context.Context, kind, entityID, target string) {
	r.mu.RLock()
	plugins := r.onTransitionConflict
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTransitionConflict(ctx, kind, entityID, target)
		}); err != nil {
			r.logger.Warn("plugin OnTransitionConflict failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the ledger pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
