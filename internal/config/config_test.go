package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{"TRONITY_CLIENT_ID", "TRONITY_CLIENT_SECRET", "TRONITY_INTERVAL", "CONFIG_FILE"} {
		t.Setenv(key, "")
	}
}

func TestParseConnectorConfig_Defaults(t *testing.T) {
	cc, err := ParseConnectorConfig([]byte(`{"client_id": "X", "client_secret": "Y"}`))
	require.NoError(t, err)
	require.NoError(t, cc.Resolve())

	assert.Equal(t, DefaultConnectorID, cc.ID)
	assert.Equal(t, 300*time.Second, cc.PollInterval())
	assert.Equal(t, "info", cc.LogLevel)
	assert.Equal(t, "warning", cc.APILogLevel)
	assert.Equal(t, DefaultAPIHost, cc.APIHost)
	assert.Equal(t, DefaultAuthURL, cc.AuthURL)
	assert.Equal(t, 60*time.Second, cc.HTTPTimeout())
	assert.Equal(t, DefaultRetries, cc.Retries)
}

func TestParseConnectorConfig_UnknownField(t *testing.T) {
	_, err := ParseConnectorConfig([]byte(`{"client_id": "X", "client_secret": "Y", "username": "z"}`))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "json", cfgErr.Field)
}

func TestResolve_MissingCredentials(t *testing.T) {
	netrcFile := filepath.Join(t.TempDir(), "missing.netrc")

	cases := map[string]ConnectorConfig{
		"no client_id":     {ClientSecret: "Y", Netrc: netrcFile},
		"no client_secret": {ClientID: "X", Netrc: netrcFile},
		"nothing":          {Netrc: netrcFile},
	}

	for name, cc := range cases {
		t.Run(name, func(t *testing.T) {
			err := cc.Resolve()
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
		})
	}
}

func TestValidate(t *testing.T) {
	base := ConnectorConfig{ClientID: "X", ClientSecret: "Y"}
	require.NoError(t, base.Resolve())

	tooShort := base
	tooShort.Interval = 30
	var cfgErr *ConfigError
	require.True(t, errors.As(tooShort.Validate(), &cfgErr))
	assert.Equal(t, "interval", cfgErr.Field)

	badLevel := base
	badLevel.APILogLevel = "verbose"
	require.True(t, errors.As(badLevel.Validate(), &cfgErr))
	assert.Equal(t, "api_log_level", cfgErr.Field)

	blank := base
	blank.ClientSecret = "   "
	require.True(t, errors.As(blank.Validate(), &cfgErr))
	assert.Equal(t, "client_secret", cfgErr.Field)
}

func TestResolve_Netrc(t *testing.T) {
	file := filepath.Join(t.TempDir(), "netrc")
	require.NoError(t, os.WriteFile(file, []byte("machine Tronity\n  login abc\n  password def\n"), 0600))

	cc := ConnectorConfig{Netrc: file}
	require.NoError(t, cc.Resolve())
	assert.Equal(t, "abc", cc.ClientID)
	assert.Equal(t, "def", cc.ClientSecret)
}

func TestResolve_NetrcWithoutMachine(t *testing.T) {
	file := filepath.Join(t.TempDir(), "netrc")
	require.NoError(t, os.WriteFile(file, []byte("machine other\n  login abc\n  password def\n"), 0600))

	cc := ConnectorConfig{Netrc: file}
	var cfgErr *ConfigError
	require.True(t, errors.As(cc.Resolve(), &cfgErr))
	assert.Equal(t, "netrc", cfgErr.Field)
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "tronity.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"interval": 60, "client_id": "X", "client_secret": "Y"}`), 0600))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "X", cfg.Connector.ClientID)
	assert.Equal(t, 60*time.Second, cfg.Connector.PollInterval())

	t.Setenv("TRONITY_CLIENT_ID", "from-env")
	cfg, err = Load(file)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Connector.ClientID)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level)

	_, err = ParseLevel("trace")
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cc := ConnectorConfig{ClientID: "X", ClientSecret: "Y", Interval: 60}
	r := cc.Redacted()
	assert.Equal(t, "***", r.ClientID)
	assert.Equal(t, "***", r.ClientSecret)
	assert.Equal(t, "X", cc.ClientID)
}
