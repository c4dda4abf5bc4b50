package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/safeguard/internal/download"
	"github.com/starford/safeguard/internal/remote"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Cache store backends.
const (
	BackendFS   = "fs"
	BackendBolt = "bolt"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Remote    RemoteConfig      `yaml:"remote"`
	Safeguard SafeguardConfig   `yaml:"safeguard"`
	Catalog   CatalogConfig     `yaml:"catalog"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration and fills in paths derived from
// app.data_dir.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if c.Safeguard.Dir == "" {
		c.Safeguard.Dir = filepath.Join(c.App.DataDir, "safeguard")
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.App.DataDir, "catalog.db")
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	if err := c.Safeguard.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	LogFile  string     `yaml:"log_file"`
	DataDir  string     `yaml:"data_dir"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// SyncPerMinute caps manual sync requests; 0 disables the cap.
	SyncPerMinute int `yaml:"sync_per_minute"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.SyncPerMinute, validation.Min(0)),
	)
}

// RemoteConfig points at the node serving safeguard headers.
type RemoteConfig struct {
	BaseAddress      string        `yaml:"base_address"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxResponseBytes int64         `yaml:"max_response_bytes"`
	Gateway          GatewayConfig `yaml:"gateway"`
}

// GatewayConfig mirrors the node gateway's route table.
type GatewayConfig struct {
	Routing RoutingConfig `yaml:"routing"`
}

// RoutingConfig holds the routes the wallet calls.
type RoutingConfig struct {
	SafeguardTransactions string `yaml:"safeguard_transactions"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseAddress, validation.Required, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxResponseBytes, validation.Min(int64(0))),
	); err != nil {
		return err
	}
	r := &c.Gateway.Routing
	return validation.ValidateStruct(r,
		validation.Field(&r.SafeguardTransactions, validation.Required),
	)
}

// Client returns the remote client configuration.
func (c *RemoteConfig) Client() remote.Config {
	return remote.Config{
		BaseAddress:      c.BaseAddress,
		Route:            c.Gateway.Routing.SafeguardTransactions,
		Timeout:          c.Timeout,
		MaxResponseBytes: c.MaxResponseBytes,
	}
}

func httpURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}

// SafeguardConfig controls the cache and the download schedule.
type SafeguardConfig struct {
	Dir     string `yaml:"dir"`
	Backend string `yaml:"backend"`
	// WindowOffset is subtracted from now to pick the snapshot day; 0 uses
	// the current UTC day.
	WindowOffset time.Duration `yaml:"window_offset"`
	// Interval between cycles; 0 runs a single cycle at start.
	Interval time.Duration `yaml:"interval"`
	// Retain is how many snapshots to keep; 0 keeps all.
	Retain int `yaml:"retain"`
}

// Validate validates the safeguard configuration.
func (c *SafeguardConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.Backend, validation.Required, validation.In(BackendFS, BackendBolt)),
		validation.Field(&c.WindowOffset, validation.Min(time.Duration(0))),
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
		validation.Field(&c.Retain, validation.Min(0)),
	)
}

// BoltPath is the database file used by the bolt backend.
func (c *SafeguardConfig) BoltPath() string {
	return filepath.Join(c.Dir, "snapshots.db")
}

// CatalogConfig holds the snapshot catalog database location.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			DataDir:  "./data",
			HTTP: HTTPConfig{
				Port:          8080,
				SyncPerMinute: 6,
			},
		},
		Remote: RemoteConfig{
			BaseAddress:      "http://127.0.0.1:48655",
			Timeout:          5 * time.Minute,
			MaxResponseBytes: remote.DefaultMaxResponseBytes,
			Gateway: GatewayConfig{
				Routing: RoutingConfig{SafeguardTransactions: "/safeguardtransactions"},
			},
		},
		Safeguard: SafeguardConfig{
			Backend:      BackendFS,
			WindowOffset: download.DefaultWindowOffset,
			Interval:     6 * time.Hour,
			Retain:       7,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
