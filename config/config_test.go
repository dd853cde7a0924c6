package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
server:
  addr: ":8080"
  shutdown_timeout: 5s
  allowed_origins:
    - https://app.example.com/
log:
  level: debug
  format: text
store:
  driver: mongo
  mongo_uri: mongodb://localhost:27017
auth:
  firebase_project_id: learngate-dev
gemini:
  api_key: from-file
mpesa:
  consumer_key: ck
  consumer_secret: cs
  short_code: "174379"
  passkey: pk
  callback_url: https://api.example.com/api/payment/mpesa/callback
`

// clearEnv isolates a test from variables set in the surrounding shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvConfigPath, EnvPort, EnvLogLevel, EnvLogFormat,
		EnvStoreDriver, EnvMongoURI, EnvMongoDatabase,
		EnvFirebaseProjectID, EnvGeminiAPIKey, EnvGeminiModel,
		EnvMpesaConsumerKey, EnvMpesaConsumerSecret, EnvMpesaShortCode,
		EnvMpesaPasskey, EnvMpesaCallbackURL, EnvMpesaEnvironment,
		EnvRedisAddr, EnvRedisPassword, EnvRedisDB, EnvCORSOrigins,
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "learngate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Server.Addr != ":3001" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("Driver = %q", cfg.Store.Driver)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q", cfg.Gemini.Model)
	}
	if cfg.Mpesa.Enabled() {
		t.Error("payments enabled without credentials")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":8080" || cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	// Unset keys keep their defaults.
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Log.Format != "text" || cfg.Store.Driver != DriverMongo {
		t.Errorf("log/store = %+v %+v", cfg.Log, cfg.Store)
	}
	if cfg.Mpesa.ShortCode != "174379" || !cfg.Mpesa.Enabled() {
		t.Errorf("mpesa = %+v", cfg.Mpesa)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "9090")
	t.Setenv(EnvGeminiAPIKey, "from-env")
	t.Setenv(EnvRedisDB, "2")
	t.Setenv(EnvCORSOrigins, "https://a.example, https://b.example ,")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Gemini.APIKey != "from-env" {
		t.Errorf("APIKey = %q", cfg.Gemini.APIKey)
	}
	if cfg.Redis.DB != 2 {
		t.Errorf("Redis.DB = %d", cfg.Redis.DB)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != DefaultConfig().Server.Addr {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, "server: [")); err == nil {
		t.Error("expected parse error")
	}

	t.Setenv(EnvRedisDB, "two")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), EnvRedisDB) {
		t.Errorf("expected %s error, got %v", EnvRedisDB, err)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Format = "xml"
	cfg.Store.Driver = DriverMongo
	cfg.Mpesa.ConsumerKey = "ck"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"log.format",
		"store.mongo_uri",
		"auth.firebase_project_id",
		"gemini.api_key",
		"mpesa.consumer_secret",
		"mpesa.callback_url",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}
