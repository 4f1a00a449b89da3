// Copyright (c) 2025 ToeiRei
// Sigilstore - auth-state persistence for end-to-end encrypted messaging
// This source code is licensed under the MIT license found in the LICENSE file.

// package config loads and validates Sigilstore configuration from YAML
// files, environment variables and CLI flags via Viper, and translates the
// recognized options into driver DSNs.
package config // import "github.com/toeirei/sigilstore/internal/config"

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/go-viper/mapstructure/v2"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/toeirei/sigilstore/internal/security"
)

// Defaults for the retry policy and table naming.
const (
	DefaultTable      = "auth"
	DefaultRetryDelay = 200 * time.Millisecond
	DefaultMaxRetries = 10
	DefaultMySQLPort  = 3306
)

// tableNameRe restricts table names to identifier characters; the table name
// is interpolated into DDL so it must never carry quoting or punctuation.
var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)

// Config carries every recognized option for the auth-state store.
type Config struct {
	// Engine selects the backing database: "mysql" (default), "postgres"
	// or "sqlite".
	Engine string `mapstructure:"engine" yaml:"engine"`

	Database string `mapstructure:"database" yaml:"database"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`

	Password security.Secret `mapstructure:"password" yaml:"password"`
	// Password2 and Password3 are additional multi-factor authentication
	// factors. The MySQL driver only transmits the primary factor; the
	// extra factors are recognized and retained for forward compatibility.
	Password2 security.Secret `mapstructure:"password2" yaml:"password2"`
	Password3 security.Secret `mapstructure:"password3" yaml:"password3"`

	// TLS selects the driver TLS profile: "", "true", "skip-verify" or
	// "preferred".
	TLS string `mapstructure:"tls" yaml:"tls"`

	// LocalAddress optionally pins the local side of the TCP connection.
	LocalAddress string `mapstructure:"local_address" yaml:"local_address"`
	// SocketPath switches the connection to a Unix domain socket.
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"`
	// KeepAlive is the TCP keep-alive interval; zero uses the OS default.
	KeepAlive time.Duration `mapstructure:"keep_alive" yaml:"keep_alive"`

	// InsecureAuth permits the legacy insecure password handshake.
	InsecureAuth bool `mapstructure:"insecure_auth" yaml:"insecure_auth"`
	// IsServer is recognized for wire-compatibility with peer
	// implementations; it has no effect on client connections.
	IsServer bool `mapstructure:"is_server" yaml:"is_server"`

	// Table is the backing table for this logical session.
	Table string `mapstructure:"table" yaml:"table"`

	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`

	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// Defaults returns the viper defaults map for Load.
func Defaults() map[string]any {
	return map[string]any{
		"engine":      "mysql",
		"host":        "localhost",
		"port":        DefaultMySQLPort,
		"table":       DefaultTable,
		"retry_delay": DefaultRetryDelay,
		"max_retries": DefaultMaxRetries,
	}
}

// getConfigPath returns the full path for the configuration file.
func getConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Sigilstore")
		default: // Linux, macOS, etc.
			configDir = "/etc/sigilstore"
		}
	} else {
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "sigilstore")
	}

	return filepath.Join(configDir, "sigilstore.yaml"), nil
}

// Load builds a Config from defaults, config file, environment and the
// flags bound on cmd, in ascending precedence. An explicit config file path
// may be passed via explicitFile.
func Load(cmd *cobra.Command, explicitFile string) (Config, error) {
	var c Config
	v := viper.New()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigName("sigilstore")
	v.SetConfigType("yaml")
	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
	}

	if userConfigPath, err := getConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := getConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; anything else is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("sigilstore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secretDecodeHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return c, err
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// secretDecodeHook lets viper unmarshal plain strings into security.Secret.
func secretDecodeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(security.Secret(nil)) {
		return data, nil
	}
	return security.FromString(data.(string)), nil
}

// WriteConfigFile persists the configuration as YAML to the standard
// location. Secrets are redacted on the way out; the written file is a
// template, not a credential store.
func WriteConfigFile(c *Config, system bool) error {
	path, err := getConfigPath(system)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks the options that are interpolated into SQL or that the
// connector cannot sanity-check later.
func (c *Config) Validate() error {
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if !tableNameRe.MatchString(c.Table) {
		return fmt.Errorf("config: invalid table name %q", c.Table)
	}
	switch c.Engine {
	case "", "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported engine %q", c.Engine)
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return nil
}

// DSN renders the configuration into a driver DSN for the selected engine.
func (c *Config) DSN() (string, error) {
	switch c.Engine {
	case "", "mysql":
		return c.mysqlDSN()
	case "postgres":
		return c.postgresDSN(), nil
	case "sqlite":
		if c.Database == "" {
			return ":memory:", nil
		}
		return c.Database, nil
	default:
		return "", fmt.Errorf("config: unsupported engine %q", c.Engine)
	}
}

// mysqlDSN builds a go-sql-driver DSN. Keep-alive and local-address options
// need a custom dialer, which is registered once per distinct setting.
func (c *Config) mysqlDSN() (string, error) {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password.Reveal()
	mc.DBName = c.Database
	mc.ParseTime = true
	mc.AllowNativePasswords = true
	mc.AllowOldPasswords = c.InsecureAuth

	if c.SocketPath != "" {
		mc.Net = "unix"
		mc.Addr = c.SocketPath
	} else {
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
		if c.KeepAlive > 0 || c.LocalAddress != "" {
			netName, err := registerDialer(c.KeepAlive, c.LocalAddress)
			if err != nil {
				return "", err
			}
			mc.Net = netName
		}
	}

	if c.TLS != "" {
		mc.TLSConfig = c.TLS
	}

	return mc.FormatDSN(), nil
}

// postgresDSN renders a pgx-compatible URL.
func (c *Config) postgresDSN() string {
	host := c.Host
	if c.SocketPath != "" {
		host = c.SocketPath
	}
	var userinfo string
	if c.User != "" {
		userinfo = c.User
		if !c.Password.Empty() {
			userinfo += ":" + c.Password.Reveal()
		}
		userinfo += "@"
	}
	dsn := fmt.Sprintf("postgres://%s%s:%d/%s", userinfo, host, c.Port, c.Database)
	if c.TLS == "" {
		dsn += "?sslmode=disable"
	}
	return dsn
}
