package learngate

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/learngate/payment"
	"github.com/xraph/learngate/plugin"
	"github.com/xraph/learngate/store"
)

// Gateway is the quota and payment engine. It holds no per-user state:
// every decision reads and writes through the store.
type Gateway struct {
	store     store.Store
	plugins   *plugin.Registry
	logger    *slog.Logger
	provider  payment.Provider
	generator Generator
	now       func() time.Time
}

// New creates a new Gateway instance.
func New(s store.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Option configures a Gateway instance.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
		g.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(g *Gateway) {
		_ = g.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithHookTimeout bounds each plugin hook call.
func WithHookTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.plugins.WithTimeout(d)
	}
}

// WithProvider sets the push-payment provider.
func WithProvider(p payment.Provider) Option {
	return func(g *Gateway) {
		g.provider = p
	}
}

// WithGenerator sets the text generator used by Generate.
func WithGenerator(gen Generator) Option {
	return func(g *Gateway) {
		g.generator = gen
	}
}

// WithClock overrides the wall clock. Tests use it to step across reset
// windows.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// Start migrates the store and initializes plugins.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.store.Migrate(ctx); err != nil {
		return err
	}

	g.plugins.EmitInit(ctx, g)

	providerName := ""
	if g.provider != nil {
		providerName = g.provider.Name()
	}
	g.logger.Info("learngate started",
		"plugins", g.plugins.Count(),
		"provider", providerName,
		"generator", g.generator != nil,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (g *Gateway) Stop() error {
	ctx := context.Background()
	g.plugins.EmitShutdown(ctx)

	return g.store.Close()
}

// Ping checks store connectivity.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.store.Ping(ctx)
}

// Store returns the underlying store.
func (g *Gateway) Store() store.Store { return g.store }

// Plugins returns the plugin registry.
func (g *Gateway) Plugins() *plugin.Registry { return g.plugins }

// Logger returns the gateway logger.
func (g *Gateway) Logger() *slog.Logger { return g.logger }

func (g *Gateway) clock() time.Time {
	return g.now().UTC()
}
