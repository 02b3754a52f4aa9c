package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Persistence backend names.
const (
	BackendLocal    = "local"
	BackendPostgres = "postgres"
)

// Config represents the global ~/.wpp/config.toml, with environment overrides applied.
type Config struct {
	DefaultSession string            `toml:"default_session"`
	LogLevel       string            `toml:"log_level"`
	Server         ServerConfig      `toml:"server"`
	Persistence    PersistenceConfig `toml:"persistence"`
	Phone          PhoneConfig       `toml:"phone"`
	Adapter        AdapterConfig     `toml:"adapter"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// PersistenceConfig selects where whatsmeow keeps session credentials.
type PersistenceConfig struct {
	Backend     string `toml:"backend"`
	DatabaseURL string `toml:"database_url"`
}

// PhoneConfig is the destination normalization policy.
type PhoneConfig struct {
	CountryCode string `toml:"country_code"`
	LocalLength int    `toml:"local_length"`
	Domain      string `toml:"domain"`
}

// AdapterConfig bounds calls into the WhatsApp adapter.
type AdapterConfig struct {
	CallTimeout  Duration `toml:"call_timeout"`
	SendInterval Duration `toml:"send_interval"`
	SendBurst    int      `toml:"send_burst"`
	PrintQR      bool     `toml:"print_qr"`
}

// Duration is a time.Duration that reads and writes as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when no file or env is present.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		LogLevel:       "info",
		Server: ServerConfig{
			Port:        3001,
			CORSOrigins: []string{"*"},
		},
		Persistence: PersistenceConfig{Backend: BackendLocal},
		Phone: PhoneConfig{
			CountryCode: "51",
			LocalLength: 9,
			Domain:      "s.whatsapp.net",
		},
		Adapter: AdapterConfig{
			CallTimeout:  Duration{30 * time.Second},
			SendInterval: Duration{time.Second},
			SendBurst:    5,
		},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnv reads the optional config file, then .env, then process environment.
// A missing config file or .env is not an error.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Persistence.DatabaseURL = v
	}
	if v := getenv("WPP_PERSISTENCE"); v != "" {
		c.Persistence.Backend = v
	}
	if v := getenv("WPP_SESSION"); v != "" {
		c.DefaultSession = v
	}
	if v := getenv("WPP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("WPP_COUNTRY_CODE"); v != "" {
		c.Phone.CountryCode = v
	}
	if v := getenv("WPP_ADAPTER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid WPP_ADAPTER_TIMEOUT %q: %w", v, err)
		}
		c.Adapter.CallTimeout = Duration{d}
	}
	if v := getenv("WPP_PRINT_QR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid WPP_PRINT_QR %q: %w", v, err)
		}
		c.Adapter.PrintQR = b
	}
	return nil
}

// Validate rejects values the daemon cannot run with. A missing database URL
// is not checked here; the persistence layer reports it at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Persistence.Backend {
	case BackendLocal, BackendPostgres:
	default:
		return fmt.Errorf("unknown persistence backend %q", c.Persistence.Backend)
	}
	if c.Phone.Domain == "" {
		return errors.New("phone domain must not be empty")
	}
	if c.Adapter.CallTimeout.Duration <= 0 {
		return errors.New("adapter call_timeout must be positive")
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
