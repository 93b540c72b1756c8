// Package config provides TOML configuration file loading for the remote service.
// The configuration file lives at <user config dir>/macropinna/remote.toml by
// default, but can be overridden with the --config flag. CLI flags always take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the remote service configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML files
// via struct tags.
type Config struct {
	// Port is the external HTTPS port remote devices connect to.
	// Default: 5174
	Port int `toml:"port"`

	// InternalPort is the loopback-only port of the local control surface.
	// Default: 51740
	InternalPort int `toml:"internal_port"`

	// ControlSocket is the unix socket path of the local control surface.
	// Default: <config dir>/control.sock
	ControlSocket string `toml:"control_socket"`

	// TLSCert is the path to the TLS certificate file.
	// Default: <config dir>/cert.pem (auto-generated if missing)
	TLSCert string `toml:"tls_cert"`

	// TLSKey is the path to the TLS key file.
	// Default: <config dir>/key.pem (auto-generated if missing)
	TLSKey string `toml:"tls_key"`

	// SecretFile holds the credential signing secret.
	// Default: <config dir>/signing.key (auto-generated if missing)
	SecretFile string `toml:"secret_file"`

	// StaticDir is served at / as the companion web client.
	// Default: ./remote-static
	StaticDir string `toml:"static_dir"`

	// ApprovalTimeoutSec bounds how long a registration waits for the operator.
	// Default: 60
	ApprovalTimeoutSec int `toml:"approval_timeout_sec"`

	// InitiatedTTLSec expires registrations that never ask for approval.
	// Default: 300
	InitiatedTTLSec int `toml:"initiated_ttl_sec"`

	// ApprovedTTLSec expires issued credentials that never open a connection.
	// Default: 300
	ApprovedTTLSec int `toml:"approved_ttl_sec"`

	// RegisterPerMinute limits POST /api/register across all clients.
	// Default: 30
	RegisterPerMinute int `toml:"register_per_minute"`

	// InputBackend selects the injection backend: auto, uinput or log.
	// Default: auto
	InputBackend string `toml:"input_backend"`

	// MdnsEnabled advertises the service as _macropinna._tcp on the local network.
	// Discovery only reveals presence; operator approval is still required.
	// Default: false
	MdnsEnabled bool `toml:"mdns_enabled"`

	// MdnsName is the instance name used for the advertisement.
	// Default: the hostname
	MdnsName string `toml:"mdns_name"`

	// LogFile redirects log output when set.
	// Default: stderr
	LogFile string `toml:"log_file"`
}

// DefaultDir returns the directory holding the config file, certificates
// and signing secret.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "macropinna"), nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "remote.toml"), nil
}

// ApplyDefaults fills every unset field. Paths default into dir.
func (c *Config) ApplyDefaults(dir string) {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.InternalPort == 0 {
		c.InternalPort = DefaultInternalPort
	}
	if c.ControlSocket == "" {
		c.ControlSocket = filepath.Join(dir, DefaultControlSocketName)
	}
	if c.TLSCert == "" {
		c.TLSCert = filepath.Join(dir, DefaultCertName)
	}
	if c.TLSKey == "" {
		c.TLSKey = filepath.Join(dir, DefaultKeyName)
	}
	if c.SecretFile == "" {
		c.SecretFile = filepath.Join(dir, DefaultSecretName)
	}
	if c.StaticDir == "" {
		c.StaticDir = DefaultStaticDir
	}
	if c.ApprovalTimeoutSec <= 0 {
		c.ApprovalTimeoutSec = DefaultApprovalTimeoutSec
	}
	if c.InitiatedTTLSec <= 0 {
		c.InitiatedTTLSec = DefaultInitiatedTTLSec
	}
	if c.ApprovedTTLSec <= 0 {
		c.ApprovedTTLSec = DefaultApprovedTTLSec
	}
	if c.RegisterPerMinute <= 0 {
		c.RegisterPerMinute = DefaultRegisterPerMinute
	}
	if c.InputBackend == "" {
		c.InputBackend = DefaultInputBackend
	}
}

// Validate reports values that cannot be started with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.InternalPort < 0 || c.InternalPort > 65535 {
		return fmt.Errorf("invalid internal_port %d", c.InternalPort)
	}
	if c.InternalPort == c.Port {
		return fmt.Errorf("internal_port must differ from port (%d)", c.Port)
	}
	switch c.InputBackend {
	case "auto", "uinput", "log":
	default:
		return fmt.Errorf("invalid input_backend %q (want auto, uinput or log)", c.InputBackend)
	}
	return nil
}

// ApprovalTimeout returns ApprovalTimeoutSec as a duration.
func (c *Config) ApprovalTimeout() time.Duration {
	return time.Duration(c.ApprovalTimeoutSec) * time.Second
}

// InitiatedTTL returns InitiatedTTLSec as a duration.
func (c *Config) InitiatedTTL() time.Duration {
	return time.Duration(c.InitiatedTTLSec) * time.Second
}

// ApprovedTTL returns ApprovedTTLSec as a duration.
func (c *Config) ApprovedTTL() time.Duration {
	return time.Duration(c.ApprovedTTLSec) * time.Second
}

// WriteDefault creates a starter config file at the given path.
//
// Behavior:
//   - If the file already exists, returns without error (does not overwrite).
//   - Creates the parent directory if it doesn't exist.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# macropinna remote configuration

# External HTTPS port for remote devices
port = %d

# Loopback-only control port used by the launcher UI
internal_port = %d

# Seconds a device waits for approval before it is refused
approval_timeout_sec = %d

# Advertise on the local network (approval is still required)
mdns_enabled = false
`, DefaultPort, DefaultInternalPort, DefaultApprovalTimeoutSec)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location.
//     Returns an empty Config without error if the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in config file %s", undecoded[0].String(), path)
	}

	return cfg, nil
}
