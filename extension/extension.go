// Package extension provides the Forge extension adapter for learngate.
//
// It implements the forge.Extension interface to integrate the gateway
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.learngate" or
// "learngate" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/store"
	"github.com/xraph/learngate/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "learngate"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Quota and payment gateway for AI learning features"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the learngate gateway as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	gateway     *learngate.Gateway
	store       store.Store
	gatewayOpts []learngate.Option
}

// New creates a new learngate Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Gateway returns the underlying gateway.
// This is nil until Register is called.
func (e *Extension) Gateway() *learngate.Gateway { return e.gateway }

// Register implements [forge.Extension]. It loads configuration,
// initializes the gateway, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	e.gateway = learngate.New(e.store, e.buildGatewayOpts()...)

	return vessel.Provide(fapp.Container(), func() (*learngate.Gateway, error) {
		return e.gateway, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.gateway == nil {
		return errors.New("learngate: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.gateway.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.gateway != nil {
		if err := e.gateway.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("learngate: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildGatewayOpts constructs learngate.Option values from the resolved
// config. Pass-through options come last so they win.
func (e *Extension) buildGatewayOpts() []learngate.Option {
	opts := make([]learngate.Option, 0, len(e.gatewayOpts)+1)
	if e.config.HookTimeout > 0 {
		opts = append(opts, learngate.WithHookTimeout(e.config.HookTimeout))
	}

	return append(opts, e.gatewayOpts...)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("learngate: configuration is required but not found in config files; " +
				"ensure 'extensions.learngate' or 'learngate' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("learngate: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("hook_timeout", e.config.HookTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.learngate", "learngate"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("learngate: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("learngate: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = defaults.HookTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML takes precedence; programmatic values fill gaps and bool flags
// override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if yamlConfig.HookTimeout == 0 && programmaticConfig.HookTimeout != 0 {
		yamlConfig.HookTimeout = programmaticConfig.HookTimeout
	}
	return mergeWithDefaults(yamlConfig)
}
