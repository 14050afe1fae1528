package cmd

import (
	"fmt"
	"os"

	"grantor/internal/config"
	"grantor/internal/discovery"
	"grantor/internal/identity"
	"grantor/internal/registry"
	"grantor/internal/tokenstore"
	"grantor/pkg/logging"
)

var (
	configPath   string
	logLevelFlag string
)

// environment bundles the loaded configuration and the stores every
// command needs.
type environment struct {
	cfg      config.Config
	store    *tokenstore.Store
	registry *registry.Registry
	identity identity.Provider
}

// loadEnvironment loads the config, initializes logging, and opens the
// token store and service registry.
func loadEnvironment() (*environment, error) {
	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPathOrPanic()
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	level := cfg.ParseLogLevel()
	if logLevelFlag != "" {
		level = config.Config{LogLevel: logLevelFlag}.ParseLogLevel()
	}
	logging.Init(level, os.Stderr)

	source, err := keySource(cfg)
	if err != nil {
		return nil, err
	}

	provider := identity.OSProvider{}
	currentUser, err := provider.CurrentUser()
	if err != nil {
		return nil, err
	}

	store, err := tokenstore.Open(cfg.TokenFile, source, []byte(currentUser))
	if err != nil {
		return nil, err
	}

	reg, err := registry.Load(cfg.RegistryFile, discovery.New())
	if err != nil {
		return nil, fmt.Errorf("no usable service registry: %w", err)
	}

	return &environment{
		cfg:      cfg,
		store:    store,
		registry: reg,
		identity: provider,
	}, nil
}

func keySource(cfg config.Config) (tokenstore.KeySource, error) {
	key, err := cfg.CipherKeyBytes()
	if err != nil {
		return tokenstore.KeySource{}, err
	}
	if key != nil {
		return tokenstore.KeySource{Key: key}, nil
	}

	passphrase := cfg.EffectivePassphrase()
	if passphrase == "" {
		return tokenstore.KeySource{}, fmt.Errorf("no cipher_key or passphrase configured; set one in config.yaml or export GRANTOR_PASSPHRASE")
	}
	return tokenstore.KeySource{Passphrase: passphrase}, nil
}

// tokenOwner resolves the user a command operates on: the --user flag
// when given, otherwise the current OS user.
func (e *environment) tokenOwner(userFlag string) (string, error) {
	if userFlag != "" {
		return userFlag, nil
	}
	return e.identity.CurrentUser()
}
