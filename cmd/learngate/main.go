// Command learngate serves the quota-governed AI endpoints and the M-Pesa
// payment routes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/learngate"
	"github.com/xraph/learngate/api"
	audithook "github.com/xraph/learngate/audit_hook"
	"github.com/xraph/learngate/auth"
	"github.com/xraph/learngate/config"
	"github.com/xraph/learngate/gemini"
	"github.com/xraph/learngate/mpesa"
	"github.com/xraph/learngate/observability"
	"github.com/xraph/learngate/store"
	"github.com/xraph/learngate/store/memory"
	mongostore "github.com/xraph/learngate/store/mongo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "learngate:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("learngate", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file (default $CONFIG_PATH)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gwOpts := []learngate.Option{
		learngate.WithLogger(logger),
		learngate.WithPlugin(audithook.New(audithook.NewLogRecorder(logger), audithook.WithLogger(logger))),
	}
	if cfg.Metrics.Enabled {
		gwOpts = append(gwOpts, learngate.WithPlugin(
			observability.NewMetricsExtension(observability.NewPrometheusFactory(reg)),
		))
	}

	if cfg.Gemini.APIKey != "" {
		gen, err := gemini.NewClient(gemini.Options{
			APIKey:     cfg.Gemini.APIKey,
			Model:      cfg.Gemini.Model,
			BaseURL:    cfg.Gemini.BaseURL,
			HTTPClient: &http.Client{Timeout: cfg.Gemini.Timeout},
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		gwOpts = append(gwOpts, learngate.WithGenerator(gen))
	} else {
		logger.Warn("gemini api key not set; AI routes will fail")
	}

	var rdb *redis.Client
	if cfg.Mpesa.Enabled() {
		mopts := mpesa.Options{
			ConsumerKey:     cfg.Mpesa.ConsumerKey,
			ConsumerSecret:  cfg.Mpesa.ConsumerSecret,
			ShortCode:       cfg.Mpesa.ShortCode,
			Passkey:         cfg.Mpesa.Passkey,
			CallbackURL:     cfg.Mpesa.CallbackURL,
			Environment:     cfg.Mpesa.Environment,
			BaseURL:         cfg.Mpesa.BaseURL,
			TransactionType: cfg.Mpesa.TransactionType,
			Logger:          logger,
		}
		if cfg.Redis.Addr != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			mopts.TokenCache = mpesa.NewRedisTokenCache(rdb, cfg.Redis.TokenKey)
		}
		provider, err := mpesa.NewClient(mopts)
		if err != nil {
			return err
		}
		gwOpts = append(gwOpts, learngate.WithProvider(provider))
	} else {
		logger.Warn("mpesa credentials not set; payment routes are disabled")
	}

	gw := learngate.New(s, gwOpts...)
	if err := gw.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := gw.Stop(); err != nil {
			logger.Error("gateway stop failed", "error", err)
		}
		if rdb != nil {
			_ = rdb.Close() //nolint:errcheck // best-effort on shutdown
		}
	}()

	var verifier auth.TokenVerifier
	if cfg.Auth.FirebaseProjectID != "" {
		v, err := auth.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.JWKSURL)
		if err != nil {
			return err
		}
		verifier = v
	} else {
		logger.Warn("firebase project id not set; protected routes will reject every request")
	}

	gin.SetMode(gin.ReleaseMode)
	apiOpts := []api.Option{
		api.WithVerifier(verifier),
		api.WithLogger(logger),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins...),
	}
	if cfg.Metrics.Enabled {
		handler := gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		apiOpts = append(apiOpts, api.WithRoutes(func(r *gin.Engine) {
			r.GET(cfg.Metrics.Path, handler)
		}))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.New(gw, apiOpts...).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	hopts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, hopts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, hopts)), nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background()) //nolint:errcheck // already failing
			return nil, fmt.Errorf("mongo ping: %w", err)
		}
		return mongostore.NewFromClient(client, cfg.MongoDatabase), nil
	default:
		return memory.New(), nil
	}
}
