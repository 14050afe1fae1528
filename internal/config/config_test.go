package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grantor/pkg/logging"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, filepath.Join(dir, "tokens.json"), cfg.TokenFile)
	assert.Equal(t, filepath.Join(dir, "services.yaml"), cfg.RegistryFile)
	assert.Equal(t, 10*time.Minute, cfg.RedirectTimeout.Std())
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `
log_level: debug
callback_port: 3000
redirect_timeout: 2m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3000, cfg.CallbackPort)
	assert.Equal(t, 2*time.Minute, cfg.RedirectTimeout.Std())
	// Unset fields keep their defaults.
	assert.Equal(t, filepath.Join(dir, "tokens.json"), cfg.TokenFile)
}

func TestLoadConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: [broken"), 0600))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logging.LevelDebug, Config{LogLevel: "debug"}.ParseLogLevel())
	assert.Equal(t, logging.LevelWarn, Config{LogLevel: "warn"}.ParseLogLevel())
	assert.Equal(t, logging.LevelError, Config{LogLevel: "error"}.ParseLogLevel())
	assert.Equal(t, logging.LevelInfo, Config{LogLevel: "nonsense"}.ParseLogLevel())
}

func TestCipherKeyBytes(t *testing.T) {
	key, err := Config{}.CipherKeyBytes()
	require.NoError(t, err)
	assert.Nil(t, key)

	key, err = Config{CipherKey: "00112233"}.CipherKeyBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33}, key)

	_, err = Config{CipherKey: "not hex"}.CipherKeyBytes()
	assert.Error(t, err)
}

func TestEffectivePassphrase(t *testing.T) {
	t.Setenv("GRANTOR_PASSPHRASE", "")
	assert.Equal(t, "from-file", Config{Passphrase: "from-file"}.EffectivePassphrase())

	t.Setenv("GRANTOR_PASSPHRASE", "from-env")
	assert.Equal(t, "from-env", Config{Passphrase: "from-file"}.EffectivePassphrase())
}
