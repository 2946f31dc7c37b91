// Package config loads server configuration from defaults, an optional
// config file, a .env file, SLOTBOOK_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use
// underscores, e.g. SLOTBOOK_STORAGE_DRIVER.
const EnvPrefix = "SLOTBOOK"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Calendar providers.
const (
	ProviderGoogle = "google"
	ProviderMock   = "mock"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Google   GoogleConfig   `mapstructure:"google"`
	Calendar CalendarConfig `mapstructure:"calendar"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	PublicURL       string        `mapstructure:"public_url"`
	StaticDir       string        `mapstructure:"static_dir"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// StorageConfig selects and configures the record store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	DataDir     string `mapstructure:"data_dir"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// AuthConfig configures sessions and sign-in.
type AuthConfig struct {
	SessionSecret string        `mapstructure:"session_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
	DevLogin      bool          `mapstructure:"dev_login"`
}

// GoogleConfig holds the OAuth client used for sign-in and calendar access.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// CalendarConfig configures the calendar connection.
type CalendarConfig struct {
	Provider          string        `mapstructure:"provider"`
	RefreshWindow     time.Duration `mapstructure:"refresh_window"`
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	EnforceEmailMatch bool          `mapstructure:"enforce_email_match"`
	PageURL           string        `mapstructure:"page_url"`
	MockEmail         string        `mapstructure:"mock_email"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.postgres_dsn", "")

	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_ttl", 7*24*time.Hour)
	v.SetDefault("auth.cookie_name", "slotbook_session")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.dev_login", false)

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")

	v.SetDefault("calendar.provider", ProviderGoogle)
	v.SetDefault("calendar.refresh_window", 5*time.Minute)
	v.SetDefault("calendar.refresh_interval", 5*time.Minute)
	v.SetDefault("calendar.enforce_email_match", false)
	v.SetDefault("calendar.page_url", "/dashboard/calendar")
	v.SetDefault("calendar.mock_email", "")
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"addr":      "server.addr",
	"data":      "storage.data_dir",
	"static":    "server.static_dir",
	"storage":   "storage.driver",
	"provider":  "calendar.provider",
	"log-level": "log.level",
}

// RegisterFlags adds the server flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file (yaml, json or toml)")
	fs.String("addr", ":8080", "HTTP server address")
	fs.String("data", "./data", "data directory for the SQLite database")
	fs.String("static", "", "directory of static frontend files to serve")
	fs.String("storage", DriverSQLite, "record store: sqlite, postgres or memory")
	fs.String("provider", ProviderGoogle, "calendar provider: google or mock")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
}

// Load builds the configuration. fs may be nil; only flags the user set
// override other sources.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
		for name, key := range flagKeys {
			flag := fs.Lookup(name)
			if flag == nil || !flag.Changed {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// loadDotEnv copies variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, env.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports configuration errors that would prevent startup.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for sqlite"))
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for postgres"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Calendar.Provider {
	case ProviderGoogle:
		if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
			errs = append(errs, errors.New("google.client_id and google.client_secret are required for the google provider"))
		}
	case ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown calendar.provider %q", c.Calendar.Provider))
	}

	if c.Auth.SessionSecret == "" {
		errs = append(errs, errors.New("auth.session_secret is required"))
	}
	if c.Calendar.RefreshWindow < 0 {
		errs = append(errs, errors.New("calendar.refresh_window must not be negative"))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// GoogleSignInEnabled reports whether Google sign-in can be offered.
func (c *Config) GoogleSignInEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// CalendarCallbackURL is the OAuth redirect for calendar connections.
func (c *Config) CalendarCallbackURL() string {
	return strings.TrimRight(c.Server.PublicURL, "/") + "/api/auth/callback/google"
}

// SignInCallbackURL is the OAuth redirect for Google sign-in.
func (c *Config) SignInCallbackURL() string {
	return strings.TrimRight(c.Server.PublicURL, "/") + "/api/auth/google/callback"
}
