// Package config loads learngate server configuration from a YAML file,
// optional .env files and environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable names.
const (
	EnvConfigPath = "CONFIG_PATH"
	EnvPort       = "PORT"
	EnvLogLevel   = "LOG_LEVEL"
	EnvLogFormat  = "LOG_FORMAT"

	EnvStoreDriver   = "STORE_DRIVER"
	EnvMongoURI      = "MONGODB_URI"
	EnvMongoDatabase = "MONGODB_DATABASE"

	EnvFirebaseProjectID = "FIREBASE_PROJECT_ID"
	EnvGeminiAPIKey      = "GEMINI_API_KEY"
	EnvGeminiModel       = "GEMINI_MODEL"

	EnvMpesaConsumerKey    = "MPESA_CONSUMER_KEY"
	EnvMpesaConsumerSecret = "MPESA_CONSUMER_SECRET"
	EnvMpesaShortCode      = "MPESA_SHORTCODE"
	EnvMpesaPasskey        = "MPESA_PASSKEY"
	EnvMpesaCallbackURL    = "MPESA_CALLBACK_URL"
	EnvMpesaEnvironment    = "MPESA_ENVIRONMENT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvCORSOrigins = "CORS_ALLOWED_ORIGINS"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverMongo  = "mongo"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server" yaml:"server"`
	Log     LogConfig     `json:"log" mapstructure:"log" yaml:"log"`
	Store   StoreConfig   `json:"store" mapstructure:"store" yaml:"store"`
	Auth    AuthConfig    `json:"auth" mapstructure:"auth" yaml:"auth"`
	Gemini  GeminiConfig  `json:"gemini" mapstructure:"gemini" yaml:"gemini"`
	Mpesa   MpesaConfig   `json:"mpesa" mapstructure:"mpesa" yaml:"mpesa"`
	Redis   RedisConfig   `json:"redis" mapstructure:"redis" yaml:"redis"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `json:"addr" mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// AllowedOrigins is the CORS allow list. Trailing slashes are ignored.
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level" yaml:"level"`
	Format string `json:"format" mapstructure:"format" yaml:"format"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver        string `json:"driver" mapstructure:"driver" yaml:"driver"`
	MongoURI      string `json:"mongo_uri" mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `json:"mongo_database" mapstructure:"mongo_database" yaml:"mongo_database"`
}

// AuthConfig configures Firebase token verification.
type AuthConfig struct {
	FirebaseProjectID string `json:"firebase_project_id" mapstructure:"firebase_project_id" yaml:"firebase_project_id"`
	JWKSURL           string `json:"jwks_url" mapstructure:"jwks_url" yaml:"jwks_url"`
}

// GeminiConfig configures the text generator.
type GeminiConfig struct {
	APIKey  string        `json:"-" mapstructure:"api_key" yaml:"api_key"`
	Model   string        `json:"model" mapstructure:"model" yaml:"model"`
	BaseURL string        `json:"base_url" mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
}

// MpesaConfig configures the Daraja client. An empty ConsumerKey disables
// the payment routes.
type MpesaConfig struct {
	ConsumerKey     string `json:"-" mapstructure:"consumer_key" yaml:"consumer_key"`
	ConsumerSecret  string `json:"-" mapstructure:"consumer_secret" yaml:"consumer_secret"`
	ShortCode       string `json:"short_code" mapstructure:"short_code" yaml:"short_code"`
	Passkey         string `json:"-" mapstructure:"passkey" yaml:"passkey"`
	CallbackURL     string `json:"callback_url" mapstructure:"callback_url" yaml:"callback_url"`
	Environment     string `json:"environment" mapstructure:"environment" yaml:"environment"`
	BaseURL         string `json:"base_url" mapstructure:"base_url" yaml:"base_url"`
	TransactionType string `json:"transaction_type" mapstructure:"transaction_type" yaml:"transaction_type"`
}

// Enabled reports whether payment credentials are configured.
func (m MpesaConfig) Enabled() bool {
	return m.ConsumerKey != ""
}

// RedisConfig points the M-Pesa token cache at Redis. An empty Addr keeps
// the token in process memory.
type RedisConfig struct {
	Addr     string `json:"addr" mapstructure:"addr" yaml:"addr"`
	Password string `json:"-" mapstructure:"password" yaml:"password"`
	DB       int    `json:"db" mapstructure:"db" yaml:"db"`
	TokenKey string `json:"token_key" mapstructure:"token_key" yaml:"token_key"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Path    string `json:"path" mapstructure:"path" yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":3001",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Driver:        DriverMemory,
			MongoDatabase: "learngate",
		},
		Gemini: GeminiConfig{
			Model:   "gemini-2.5-flash",
			Timeout: 60 * time.Second,
		},
		Mpesa: MpesaConfig{
			Environment:     "sandbox",
			TransactionType: "CustomerPayBillOnline",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads path (when non-empty and present), then .env files, then the
// environment. A missing file at path is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	path = ResolvePath(path)
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	// godotenv never overrides variables that are already set.
	_ = godotenv.Load(".env", ".env.local") //nolint:errcheck // env files are optional

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ResolvePath falls back to CONFIG_PATH when p is empty.
func ResolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func (c *Config) applyEnv() error {
	if port := env(EnvPort); port != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	setString(&c.Log.Level, EnvLogLevel)
	setString(&c.Log.Format, EnvLogFormat)

	setString(&c.Store.Driver, EnvStoreDriver)
	setString(&c.Store.MongoURI, EnvMongoURI)
	setString(&c.Store.MongoDatabase, EnvMongoDatabase)

	setString(&c.Auth.FirebaseProjectID, EnvFirebaseProjectID)
	setString(&c.Gemini.APIKey, EnvGeminiAPIKey)
	setString(&c.Gemini.Model, EnvGeminiModel)

	setString(&c.Mpesa.ConsumerKey, EnvMpesaConsumerKey)
	setString(&c.Mpesa.ConsumerSecret, EnvMpesaConsumerSecret)
	setString(&c.Mpesa.ShortCode, EnvMpesaShortCode)
	setString(&c.Mpesa.Passkey, EnvMpesaPasskey)
	setString(&c.Mpesa.CallbackURL, EnvMpesaCallbackURL)
	setString(&c.Mpesa.Environment, EnvMpesaEnvironment)

	setString(&c.Redis.Addr, EnvRedisAddr)
	setString(&c.Redis.Password, EnvRedisPassword)
	if raw := env(EnvRedisDB); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvRedisDB, err)
		}
		c.Redis.DB = db
	}

	if raw := env(EnvCORSOrigins); raw != "" {
		c.Server.AllowedOrigins = splitList(raw)
	}
	return nil
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverMongo:
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("store.mongo_uri is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be memory or mongo, got %q", c.Store.Driver))
	}
	if c.Auth.FirebaseProjectID == "" {
		errs = append(errs, errors.New("auth.firebase_project_id is required"))
	}
	if c.Gemini.APIKey == "" {
		errs = append(errs, errors.New("gemini.api_key is required"))
	}
	if c.Mpesa.Enabled() {
		if c.Mpesa.ConsumerSecret == "" || c.Mpesa.ShortCode == "" || c.Mpesa.Passkey == "" {
			errs = append(errs, errors.New("mpesa.consumer_secret, mpesa.short_code and mpesa.passkey are required with mpesa.consumer_key"))
		}
		if c.Mpesa.CallbackURL == "" {
			errs = append(errs, errors.New("mpesa.callback_url is required with mpesa.consumer_key"))
		}
	}

	return errors.Join(errs...)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
