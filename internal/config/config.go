// Package config loads grantor's preferences from
// ~/.config/grantor/config.yaml. Defaults are applied first; a missing
// file is not an error.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"grantor/pkg/logging"
)

const (
	userConfigDir  = ".config/grantor"
	configFileName = "config.yaml"

	tokenFileName    = "tokens.json"
	registryFileName = "services.yaml"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "10m" as well as plain nanosecond integers.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Config is grantor's on-disk configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// TokenFile is the encrypted token store path.
	TokenFile string `yaml:"token_file"`

	// RegistryFile is the service registry path.
	RegistryFile string `yaml:"registry_file"`

	// CipherKey is a hex-encoded 32-byte store key. Takes precedence
	// over Passphrase.
	CipherKey string `yaml:"cipher_key,omitempty"`

	// Passphrase derives the store key when CipherKey is unset. The
	// GRANTOR_PASSPHRASE environment variable overrides it.
	Passphrase string `yaml:"passphrase,omitempty"`

	// CallbackPort is the local redirect listener port; 0 binds an
	// ephemeral port.
	CallbackPort int `yaml:"callback_port"`

	// RedirectTimeout bounds the browser authorization wait.
	RedirectTimeout Duration `yaml:"redirect_timeout"`
}

// GetDefaultConfigPathOrPanic returns ~/.config/grantor.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}
	return filepath.Join(homeDir, userConfigDir)
}

// GetDefaultConfig returns the built-in defaults, rooted at configPath.
func GetDefaultConfig(configPath string) Config {
	return Config{
		LogLevel:        "info",
		TokenFile:       filepath.Join(configPath, tokenFileName),
		RegistryFile:    filepath.Join(configPath, registryFileName),
		CallbackPort:    0,
		RedirectTimeout: Duration(10 * time.Minute),
	}
}

// LoadConfig loads config.yaml from the given directory, merging it
// over the defaults. A missing file yields the defaults.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig(configPath)

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "no config.yaml at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	logging.Debug("ConfigLoader", "loaded configuration from %s", configFilePath)
	return config, nil
}

// ParseLogLevel maps the config's log_level string onto a logging
// level, defaulting to info for unknown values.
func (c Config) ParseLogLevel() logging.LogLevel {
	switch c.LogLevel {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// CipherKeyBytes decodes the configured hex key, or nil when the config
// relies on a passphrase.
func (c Config) CipherKeyBytes() ([]byte, error) {
	if c.CipherKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.CipherKey)
	if err != nil {
		return nil, fmt.Errorf("cipher_key is not valid hex: %w", err)
	}
	return key, nil
}

// EffectivePassphrase returns the passphrase, with the environment
// taking precedence over the file.
func (c Config) EffectivePassphrase() string {
	if env := os.Getenv("GRANTOR_PASSPHRASE"); env != "" {
		return env
	}
	return c.Passphrase
}
