// Package config resolves msd settings from ~/.msd/config.toml and MSD_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".msd"
	envPrefix  = "MSD"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type Config struct {
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Transport  TransportConfig  `mapstructure:"transport"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Bootstrap  BootstrapConfig  `mapstructure:"bootstrap"`
	Log        LogConfig        `mapstructure:"log"`
}

type SessionsConfig struct {
	Root string `mapstructure:"root"`
}

type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	IdentityFile string `mapstructure:"identity_file"`
}

type TransportConfig struct {
	URL         string        `mapstructure:"url"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type SupervisorConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PairingTimeout   time.Duration `mapstructure:"pairing_timeout"`
	BackoffInitial   time.Duration `mapstructure:"backoff_initial"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	PruneOnLogout    bool          `mapstructure:"prune_on_logout"`
}

type BootstrapConfig struct {
	SettleTimeout time.Duration `mapstructure:"settle_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the config file under home (if any), applies environment
// overrides and defaults, and validates the result. A nil v uses a fresh
// viper instance.
func Load(v *viper.Viper, home string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	dir := filepath.Join(home, configDir)
	setDefaults(v, dir)

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.Sessions.Root = expandHome(cfg.Sessions.Root, home)
	cfg.Storage.SQLitePath = expandHome(cfg.Storage.SQLitePath, home)
	cfg.Storage.IdentityFile = expandHome(cfg.Storage.IdentityFile, home)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Dir is the directory holding config.toml for home.
func Dir(home string) string {
	return filepath.Join(home, configDir)
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("sessions.root", filepath.Join(dir, "sessions"))
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.sqlite_path", filepath.Join(dir, "sessions.db"))
	v.SetDefault("storage.identity_file", "")
	v.SetDefault("transport.url", "ws://127.0.0.1:8765/gateway")
	v.SetDefault("transport.dial_timeout", 15*time.Second)
	v.SetDefault("supervisor.handshake_timeout", 30*time.Second)
	v.SetDefault("supervisor.pairing_timeout", 2*time.Minute)
	v.SetDefault("supervisor.backoff_initial", time.Second)
	v.SetDefault("supervisor.backoff_max", 30*time.Second)
	v.SetDefault("supervisor.max_attempts", 0)
	v.SetDefault("supervisor.prune_on_logout", true)
	v.SetDefault("bootstrap.settle_timeout", 45*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Sessions.Root) == "" {
		errs = append(errs, errors.New("sessions.root is empty"))
	}
	switch c.Storage.Backend {
	case BackendFile:
	case BackendSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			errs = append(errs, errors.New("storage.sqlite_path is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of %s, %s", c.Storage.Backend, BackendFile, BackendSQLite))
	}
	if c.Supervisor.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("supervisor.handshake_timeout must be positive"))
	}
	if c.Supervisor.PairingTimeout <= 0 {
		errs = append(errs, errors.New("supervisor.pairing_timeout must be positive"))
	}
	if c.Supervisor.BackoffMax < c.Supervisor.BackoffInitial {
		errs = append(errs, errors.New("supervisor.backoff_max is below supervisor.backoff_initial"))
	}
	if c.Supervisor.MaxAttempts < 0 {
		errs = append(errs, errors.New("supervisor.max_attempts is negative"))
	}
	if c.Bootstrap.SettleTimeout < 0 {
		errs = append(errs, errors.New("bootstrap.settle_timeout is negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func expandHome(path, home string) string {
	switch {
	case path == "~":
		return home
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(home, path[2:])
	case path == "" || filepath.IsAbs(path):
		return path
	default:
		return filepath.Join(home, path)
	}
}

// EnsureDir creates the config directory with private permissions.
func EnsureDir(home string) error {
	if err := os.MkdirAll(Dir(home), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return nil
}
