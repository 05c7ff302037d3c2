// Package config loads and persists the client configuration.
// Files written by older releases are JSON, which parses as YAML.
package config

import (
	"crypto/md5" //nolint:gosec
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	corplink "github.com/corplink-go/go-corplink"
	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/curve25519"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDeviceName    = "DollarOS"
	DefaultInterfaceName = "corplink"

	// KeyringService is the keyring service holding account passwords.
	KeyringService = "go-corplink"
)

// Config is the persisted client configuration.
type Config struct {
	CompanyName string `yaml:"company_name"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password,omitempty"`
	Platform    string `yaml:"platform,omitempty"`

	// Code is the base32 OTP seed handed out on login.
	Code string `yaml:"code,omitempty"`

	DeviceName string `yaml:"device_name,omitempty"`
	DeviceID   string `yaml:"device_id,omitempty"`
	PublicKey  string `yaml:"public_key,omitempty"`
	PrivateKey string `yaml:"private_key,omitempty"`

	Server        string `yaml:"server,omitempty"`
	InterfaceName string `yaml:"interface_name,omitempty"`
	DebugWG       bool   `yaml:"debug_wg,omitempty"`

	State corplink.AuthState `yaml:"state"`

	VPNServerName     string `yaml:"vpn_server_name,omitempty"`
	VPNSelectStrategy string `yaml:"vpn_select_strategy,omitempty"`

	// EngineCommand overrides the tunnel engine binary.
	EngineCommand string `yaml:"engine_command,omitempty"`

	// UseKeyring reads the password from the system keyring when none is configured.
	UseKeyring bool `yaml:"use_keyring,omitempty"`

	path string

	keyringPassword string

	lock sync.Mutex
}

// Load reads the configuration, fills in missing defaults and saves it back if anything was filled in.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.path = path

	updated, err := cfg.fillDefaults()
	if err != nil {
		return nil, err
	}

	if updated {
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Password == "" && cfg.UseKeyring {
		cfg.loadKeyringPassword()
	}

	return &cfg, nil
}

func (cfg *Config) fillDefaults() (bool, error) {
	var updated bool

	if cfg.InterfaceName == "" {
		cfg.InterfaceName = DefaultInterfaceName
		updated = true
	}

	if cfg.DeviceName == "" {
		cfg.DeviceName = DefaultDeviceName
		updated = true
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = DeviceID(cfg.DeviceName)
		updated = true
	}

	switch {
	case cfg.PrivateKey == "":
		public, private, err := GenerateKeyPair()
		if err != nil {
			return false, err
		}

		cfg.PublicKey, cfg.PrivateKey = public, private
		updated = true

	case cfg.PublicKey == "":
		public, err := PublicKeyFromPrivate(cfg.PrivateKey)
		if err != nil {
			return false, err
		}

		cfg.PublicKey = public
		updated = true
	}

	return updated, nil
}

func (cfg *Config) loadKeyringPassword() {
	password, err := keyring.Get(KeyringService, cfg.Username)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			logrus.WithField("pkg", "config").WithError(err).Warn("Failed to read password from keyring")
		}

		return
	}

	cfg.keyringPassword = password
}

// StorePassword saves the password in the system keyring and drops it from the config file.
func (cfg *Config) StorePassword(password string) error {
	if err := keyring.Set(KeyringService, cfg.Username, password); err != nil {
		return fmt.Errorf("failed to store password in keyring: %w", err)
	}

	cfg.lock.Lock()
	defer cfg.lock.Unlock()

	cfg.keyringPassword = password
	cfg.Password, cfg.UseKeyring = "", true

	return cfg.save()
}

func (cfg *Config) Validate() error {
	if cfg.Username == "" {
		return &corplink.ConfigError{Field: "username", Reason: "missing"}
	}

	if cfg.Server == "" && cfg.CompanyName == "" {
		return &corplink.ConfigError{Field: "server", Reason: "either server or company_name is required"}
	}

	if _, err := corplink.ParseStrategy(cfg.VPNSelectStrategy); err != nil {
		return err
	}

	return nil
}

// Save writes the configuration back to the file it was loaded from.
func (cfg *Config) Save() error {
	cfg.lock.Lock()
	defer cfg.lock.Unlock()

	return cfg.save()
}

func (cfg *Config) save() error {
	if cfg.path == "" {
		return errors.New("config file path missing")
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(cfg.path, b, 0o600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", cfg.path, err)
	}

	return nil
}

// SaveAuth persists the auth state and OTP seed.
func (cfg *Config) SaveAuth(state corplink.AuthState, seed string) error {
	cfg.lock.Lock()
	defer cfg.lock.Unlock()

	cfg.State, cfg.Code = state, seed

	return cfg.save()
}

// SetServer persists the control plane URL, e.g. after a company lookup.
func (cfg *Config) SetServer(server string) error {
	cfg.lock.Lock()
	defer cfg.lock.Unlock()

	cfg.Server = server

	return cfg.save()
}

// CookieFile is the cookie jar file of the interface, next to the config file.
func (cfg *Config) CookieFile() string {
	return filepath.Join(filepath.Dir(cfg.path), cfg.InterfaceName+"_cookies.json")
}

func (cfg *Config) Credentials() (corplink.Credentials, error) {
	strategy, err := corplink.ParseStrategy(cfg.VPNSelectStrategy)
	if err != nil {
		return corplink.Credentials{}, err
	}

	password := cfg.Password
	if password == "" {
		password = cfg.keyringPassword
	}

	return corplink.Credentials{
		Username:      cfg.Username,
		Password:      password,
		Platform:      cfg.Platform,
		DeviceID:      cfg.DeviceID,
		DeviceName:    cfg.DeviceName,
		PublicKey:     cfg.PublicKey,
		PrivateKey:    cfg.PrivateKey,
		Seed:          cfg.Code,
		State:         cfg.State,
		Strategy:      strategy,
		VPNServerName: cfg.VPNServerName,
	}, nil
}

// DeviceID derives the device id from the device name.
func DeviceID(deviceName string) string {
	sum := md5.Sum([]byte(deviceName)) //nolint:gosec

	return hex.EncodeToString(sum[:])
}

// GenerateKeyPair returns a new base64 encoded X25519 keypair.
func GenerateKeyPair() (public, private string, err error) {
	var key [curve25519.ScalarSize]byte

	if _, err := rand.Read(key[:]); err != nil {
		return "", "", fmt.Errorf("failed to generate private key: %w", err)
	}

	// Clamp as WireGuard does.
	key[0] &= 248
	key[31] = (key[31] & 127) | 64

	private = base64.StdEncoding.EncodeToString(key[:])

	public, err = PublicKeyFromPrivate(private)
	if err != nil {
		return "", "", err
	}

	return public, private, nil
}

// PublicKeyFromPrivate derives the base64 public key of a base64 private key.
func PublicKeyFromPrivate(private string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(private)
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}

	public, err := curve25519.X25519(key, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(public), nil
}
