package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/victorarias/gerrit-view/internal/pathutil"
)

// Defaults
const (
	DefaultServer          = "review.openstack.org"
	DefaultPort            = 29418
	DefaultPrefetch        = 50
	DefaultItems           = 50
	DefaultConnectAttempts = 5
	DefaultRefresh         = time.Second
)

// Transports
const (
	TransportSSH       = "ssh"
	TransportWebSocket = "websocket"
)

var (
	ErrInvalidCapacity = errors.New("items must be greater than zero")
	ErrInvalidPrefetch = errors.New("prefetch must not be negative")
)

// Config is everything the dashboard needs before it connects.
type Config struct {
	Server          string   `toml:"server"`
	Port            int      `toml:"port"`
	Username        string   `toml:"username"`
	KeyFile         string   `toml:"keyfile"`
	KnownHosts      string   `toml:"known_hosts"`
	InsecureHostKey bool     `toml:"insecure_ignore_host_key"`
	Transport       string   `toml:"transport"`
	WebSocketURL    string   `toml:"websocket_url"`
	RESTURL         string   `toml:"rest_url"`
	Prefetch        int      `toml:"prefetch"`
	Items           int      `toml:"items"`
	Projects        []string `toml:"projects"`
	ConnectAttempts int      `toml:"connect_attempts"`
	Refresh         Duration `toml:"refresh"`
	LogFile         string   `toml:"log_file"`
}

// Duration lets TOML carry values like "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Server:          DefaultServer,
		Port:            DefaultPort,
		Username:        currentUser(),
		KeyFile:         DefaultKeyPath(),
		KnownHosts:      filepath.Join(sshDir(), "known_hosts"),
		Transport:       TransportSSH,
		Prefetch:        DefaultPrefetch,
		Items:           DefaultItems,
		ConnectAttempts: DefaultConnectAttempts,
		Refresh:         Duration{DefaultRefresh},
		LogFile:         filepath.Join(baseDir(), "gerrit-view.log"),
	}
}

// baseDir returns the base directory for gerrit-view files
func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/.gerrit-view"
	}
	return filepath.Join(home, ".gerrit-view")
}

func sshDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh")
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

// ConfigPath returns the config file location.
// Priority: GERRIT_VIEW_CONFIG env var > default
func ConfigPath() string {
	if envPath := os.Getenv("GERRIT_VIEW_CONFIG"); envPath != "" {
		return envPath
	}
	return filepath.Join(baseDir(), "config.toml")
}

// DefaultKeyPath returns the first conventional private key found in ~/.ssh,
// or "" when there is none.
func DefaultKeyPath() string {
	return pathutil.FirstRegular(sshDir(), []string{"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519"})
}

// Load reads the config file at path over the defaults, then applies env
// overrides. A missing file is not an error.
// Priority: env vars > config file > defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.ExpandPaths()
	return cfg, nil
}

// ExpandPaths resolves a leading "~" in every file setting.
func (c *Config) ExpandPaths() {
	c.KeyFile = pathutil.ExpandHome(c.KeyFile)
	c.KnownHosts = pathutil.ExpandHome(c.KnownHosts)
	c.LogFile = pathutil.ExpandHome(c.LogFile)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("GERRIT_VIEW_SERVER"); v != "" {
		c.Server = v
	}
	if v := os.Getenv("GERRIT_VIEW_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GERRIT_VIEW_PORT: %w", err)
		}
		c.Port = port
	}
	if v := os.Getenv("GERRIT_VIEW_USER"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("GERRIT_VIEW_KEYFILE"); v != "" {
		c.KeyFile = v
	}
	return nil
}

// Validate rejects settings the dashboard cannot start with. It runs before
// any connection is attempted.
func (c *Config) Validate() error {
	if c.Items <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidCapacity, c.Items)
	}
	if c.Prefetch < 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidPrefetch, c.Prefetch)
	}
	if c.ConnectAttempts <= 0 {
		return fmt.Errorf("connect attempts must be greater than zero (got %d)", c.ConnectAttempts)
	}
	if c.Refresh.Duration <= 0 {
		return fmt.Errorf("refresh interval must be positive (got %s)", c.Refresh.Duration)
	}
	switch c.Transport {
	case TransportSSH:
		if c.Server == "" {
			return errors.New("server is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("invalid port %d", c.Port)
		}
	case TransportWebSocket:
		if c.WebSocketURL == "" {
			return errors.New("websocket transport requires websocket_url")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	return nil
}

// Address returns host:port for the SSH transport.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}
