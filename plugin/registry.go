package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// DefaultTimeout bounds each hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onSubscriptionCreated  []OnSubscriptionCreated
	onSubscriptionUpgraded []OnSubscriptionUpgraded
	onEntitlementChecked   []OnEntitlementChecked
	onQuotaExceeded        []OnQuotaExceeded
	onUsageReset           []OnUsageReset
	onUsageRecorded        []OnUsageRecorded
	onGeneration           []OnGeneration
	onPaymentInitiated     []OnPaymentInitiated
	onPaymentRejected      []OnPaymentRejected
	onPaymentCompleted     []OnPaymentCompleted
	onPaymentFailed        []OnPaymentFailed
	onCallbackReceived     []OnCallbackReceived
	onStatusReconciled     []OnStatusReconciled
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
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
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnSubscriptionUpgraded); ok {
		r.onSubscriptionUpgraded = append(r.onSubscriptionUpgraded, v)
	}
	if v, ok := p.(OnEntitlementChecked); ok {
		r.onEntitlementChecked = append(r.onEntitlementChecked, v)
	}
	if v, ok := p.(OnQuotaExceeded); ok {
		r.onQuotaExceeded = append(r.onQuotaExceeded, v)
	}
	if v, ok := p.(OnUsageReset); ok {
		r.onUsageReset = append(r.onUsageReset, v)
	}
	if v, ok := p.(OnUsageRecorded); ok {
		r.onUsageRecorded = append(r.onUsageRecorded, v)
	}
	if v, ok := p.(OnGeneration); ok {
		r.onGeneration = append(r.onGeneration, v)
	}
	if v, ok := p.(OnPaymentInitiated); ok {
		r.onPaymentInitiated = append(r.onPaymentInitiated, v)
	}
	if v, ok := p.(OnPaymentRejected); ok {
		r.onPaymentRejected = append(r.onPaymentRejected, v)
	}
	if v, ok := p.(OnPaymentCompleted); ok {
		r.onPaymentCompleted = append(r.onPaymentCompleted, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}
	if v, ok := p.(OnCallbackReceived); ok {
		r.onCallbackReceived = append(r.onCallbackReceived, v)
	}
	if v, ok := p.(OnStatusReconciled); ok {
		r.onStatusReconciled = append(r.onStatusReconciled, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnSubscriptionCreated", reflect.TypeOf((*OnSubscriptionCreated)(nil)).Elem()},
	{"OnSubscriptionUpgraded", reflect.TypeOf((*OnSubscriptionUpgraded)(nil)).Elem()},
	{"OnEntitlementChecked", reflect.TypeOf((*OnEntitlementChecked)(nil)).Elem()},
	{"OnQuotaExceeded", reflect.TypeOf((*OnQuotaExceeded)(nil)).Elem()},
	{"OnUsageReset", reflect.TypeOf((*OnUsageReset)(nil)).Elem()},
	{"OnUsageRecorded", reflect.TypeOf((*OnUsageRecorded)(nil)).Elem()},
	{"OnGeneration", reflect.TypeOf((*OnGeneration)(nil)).Elem()},
	{"OnPaymentInitiated", reflect.TypeOf((*OnPaymentInitiated)(nil)).Elem()},
	{"OnPaymentRejected", reflect.TypeOf((*OnPaymentRejected)(nil)).Elem()},
	{"OnPaymentCompleted", reflect.TypeOf((*OnPaymentCompleted)(nil)).Elem()},
	{"OnPaymentFailed", reflect.TypeOf((*OnPaymentFailed)(nil)).Elem()},
	{"OnCallbackReceived", reflect.TypeOf((*OnCallbackReceived)(nil)).Elem()},
	{"OnStatusReconciled", reflect.TypeOf((*OnStatusReconciled)(nil)).Elem()},
}

// implementedInterfaces returns the hook names implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
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

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, gw interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, gw)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitSubscriptionCreated emits a subscription created event.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnSubscriptionCreated", func() error {
			return p.OnSubscriptionCreated(ctx, sub)
		})
	}
}

// EmitSubscriptionUpgraded emits a subscription upgraded event.
func (r *Registry) EmitSubscriptionUpgraded(ctx context.Context, userID string, txn interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionUpgraded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnSubscriptionUpgraded", func() error {
			return p.OnSubscriptionUpgraded(ctx, userID, txn)
		})
	}
}

// EmitEntitlementChecked emits an entitlement checked event.
func (r *Registry) EmitEntitlementChecked(ctx context.Context, decision interface{}) {
	r.mu.RLock()
	plugins := r.onEntitlementChecked
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnEntitlementChecked", func() error {
			return p.OnEntitlementChecked(ctx, decision)
		})
	}
}

// EmitQuotaExceeded emits a quota exceeded event.
func (r *Registry) EmitQuotaExceeded(ctx context.Context, userID, featureKey string, used, limit int64) {
	r.mu.RLock()
	plugins := r.onQuotaExceeded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnQuotaExceeded", func() error {
			return p.OnQuotaExceeded(ctx, userID, featureKey, used, limit)
		})
	}
}

// EmitUsageReset emits a usage reset event.
func (r *Registry) EmitUsageReset(ctx context.Context, userID, featureKey string) {
	r.mu.RLock()
	plugins := r.onUsageReset
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnUsageReset", func() error {
			return p.OnUsageReset(ctx, userID, featureKey)
		})
	}
}

// EmitUsageRecorded emits a usage recorded event.
func (r *Registry) EmitUsageRecorded(ctx context.Context, userID, featureKey string) {
	r.mu.RLock()
	plugins := r.onUsageRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnUsageRecorded", func() error {
			return p.OnUsageRecorded(ctx, userID, featureKey)
		})
	}
}

// EmitGeneration emits a generation event.
func (r *Registry) EmitGeneration(ctx context.Context, featureKey string, elapsed time.Duration, genErr error) {
	r.mu.RLock()
	plugins := r.onGeneration
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnGeneration", func() error {
			return p.OnGeneration(ctx, featureKey, elapsed, genErr)
		})
	}
}

// EmitPaymentInitiated emits a payment initiated event.
func (r *Registry) EmitPaymentInitiated(ctx context.Context, txn interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentInitiated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPaymentInitiated", func() error {
			return p.OnPaymentInitiated(ctx, txn)
		})
	}
}

// EmitPaymentRejected emits a payment rejected event.
func (r *Registry) EmitPaymentRejected(ctx context.Context, txn interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onPaymentRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPaymentRejected", func() error {
			return p.OnPaymentRejected(ctx, txn, reason)
		})
	}
}

// EmitPaymentCompleted emits a payment completed event.
func (r *Registry) EmitPaymentCompleted(ctx context.Context, txn interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPaymentCompleted", func() error {
			return p.OnPaymentCompleted(ctx, txn)
		})
	}
}

// EmitPaymentFailed emits a payment failed event.
func (r *Registry) EmitPaymentFailed(ctx context.Context, txn interface{}, status string) {
	r.mu.RLock()
	plugins := r.onPaymentFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnPaymentFailed", func() error {
			return p.OnPaymentFailed(ctx, txn, status)
		})
	}
}

// EmitCallbackReceived emits a callback received event.
func (r *Registry) EmitCallbackReceived(ctx context.Context, provider string, payload []byte) {
	r.mu.RLock()
	plugins := r.onCallbackReceived
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnCallbackReceived", func() error {
			return p.OnCallbackReceived(ctx, provider, payload)
		})
	}
}

// EmitStatusReconciled emits a status reconciled event.
func (r *Registry) EmitStatusReconciled(ctx context.Context, txn interface{}, from, to string) {
	r.mu.RLock()
	plugins := r.onStatusReconciled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.call(ctx, p.Name(), "OnStatusReconciled", func() error {
			return p.OnStatusReconciled(ctx, txn, from, to)
		})
	}
}

// call runs one hook and logs its failure. Hooks never fail the caller.
func (r *Registry) call(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block a request.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
