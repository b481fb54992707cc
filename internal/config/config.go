package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Auth    AuthConfig
	Store   StoreConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type AuthConfig struct {
	// JWTSecret signs session tokens. When empty the server generates one
	// and keeps it in the data directory.
	JWTSecret  string
	SessionTTL time.Duration
}

// StoreConfig tunes the circuit breaker in front of the document store.
type StoreConfig struct {
	BreakerFailures int
	BreakerTimeout  time.Duration
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			SessionTTL: 24 * time.Hour,
		},
		Store: StoreConfig{
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.pathway.app) and the
// signing secret falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/pathway/config.json
// and the secret falls back to $XDG_DATA_HOME/pathway/secrets.json.
//
// Environment variables (PATHWAY_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Auth.JWTSecret == "" {
		if secret, err := kc.Get(secretService, jwtSecretAccount); err == nil && secret != "" {
			cfg.Auth.JWTSecret = secret
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", cfg.Log.Level)
	}
	if cfg.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive, got %s", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.JWTSecret != "" && len(cfg.Auth.JWTSecret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 characters; set it via PATHWAY_AUTH_JWT_SECRET or leave it empty to generate one")
	}
	if cfg.Store.BreakerFailures <= 0 {
		return fmt.Errorf("store.breaker_failures must be positive, got %d", cfg.Store.BreakerFailures)
	}
	if cfg.Store.BreakerTimeout <= 0 {
		return fmt.Errorf("store.breaker_timeout must be positive, got %s", cfg.Store.BreakerTimeout)
	}
	return nil
}
