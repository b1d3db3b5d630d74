package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the central typed configuration struct.
type Config struct {
	App      AppConfig
	Registry RegistryConfig
	Admin    AdminConfig
	Log      LogConfig
}

type AppConfig struct {
	Name  string
	Env   string // local | production | testing
	Debug bool
}

// RegistryConfig tunes the singleton lifecycle registry.
type RegistryConfig struct {
	// AllowAliasOverriding lets an alias be re-pointed at another name.
	AllowAliasOverriding bool

	// AllowCircularReferences lets two-phase singletons expose early
	// references to break construction cycles.
	AllowCircularReferences bool

	// ReopenAfterShutdown keeps the registry usable after a full shutdown.
	ReopenAfterShutdown bool

	// AliasFile is an optional YAML alias manifest applied at boot.
	AliasFile string
}

// AdminConfig controls the HTTP inspection endpoints.
type AdminConfig struct {
	Enabled bool
	Addr    string

	// Token, when set, is required as a bearer token on every request.
	Token string
}

type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // text | json
}

// Load reads .env (if present) and populates a Config from environment variables.
// Call once at bootstrap: cfg := config.Load()
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	return &Config{
		App: AppConfig{
			Name:  env("APP_NAME", "lifecycle"),
			Env:   env("APP_ENV", "local"),
			Debug: envBool("APP_DEBUG", false),
		},
		Registry: RegistryConfig{
			AllowAliasOverriding:    envBool("REGISTRY_ALLOW_ALIAS_OVERRIDING", true),
			AllowCircularReferences: envBool("REGISTRY_ALLOW_CIRCULAR_REFERENCES", true),
			ReopenAfterShutdown:     envBool("REGISTRY_REOPEN_AFTER_SHUTDOWN", false),
			AliasFile:               env("REGISTRY_ALIAS_FILE", ""),
		},
		Admin: AdminConfig{
			Enabled: envBool("ADMIN_ENABLED", false),
			Addr:    env("ADMIN_ADDR", ":8081"),
			Token:   env("ADMIN_TOKEN", ""),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "text"),
		},
	}
}

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
