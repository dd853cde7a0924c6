package extension

import (
	"time"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/payment"
	"github.com/xraph/learngate/plugin"
	"github.com/xraph/learngate/store"
)

// Option configures the learngate Forge extension.
type Option func(*Extension)

// WithStore sets the store for the gateway.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGatewayOption passes a learngate.Option through to the underlying gateway.
func WithGatewayOption(opt learngate.Option) Option {
	return func(e *Extension) {
		e.gatewayOpts = append(e.gatewayOpts, opt)
	}
}

// WithPlugin registers a gateway plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.gatewayOpts = append(e.gatewayOpts, learngate.WithPlugin(p))
	}
}

// WithProvider sets the push-payment provider.
func WithProvider(p payment.Provider) Option {
	return func(e *Extension) {
		e.gatewayOpts = append(e.gatewayOpts, learngate.WithProvider(p))
	}
}

// WithGenerator sets the text generator.
func WithGenerator(g learngate.Generator) Option {
	return func(e *Extension) {
		e.gatewayOpts = append(e.gatewayOpts, learngate.WithGenerator(g))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.HookTimeout = d }
}
