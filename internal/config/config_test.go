package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, existed := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	t.Cleanup(func() {
		if existed {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadParsesNationStrings(t *testing.T) {
	setEnv(t, "EUROCORE_DISPATCH_NATIONS", "testlandia:pw1")
	setEnv(t, "EUROCORE_RMBPOST_NATIONS", "testlandia:pw1,atlantium:pw2")
	setEnv(t, "EUROCORE_USER", "eurocore-test")
	setEnv(t, "EUROCORE_SECRET", "shh")
	setEnv(t, "EUROCORE_TELEGRAM_CLIENT_KEY", "tgkey")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"testlandia": "pw1"}, cfg.DispatchNations)
	assert.Equal(t, map[string]string{"testlandia": "pw1", "atlantium": "pw2"}, cfg.RmbpostNations)
	assert.Equal(t, "eurocore-test", cfg.User)
	assert.Equal(t, "shh", cfg.Secret)
	assert.Equal(t, "tgkey", cfg.TelegramClientKey)
}

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("EUROCORE_LOG_LEVEL")
	os.Unsetenv("EUROCORE_PORT")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoadRejectsMalformedNationString(t *testing.T) {
	setEnv(t, "EUROCORE_DISPATCH_NATIONS", "testlandia")
	_, err := Load()
	assert.Error(t, err)
}

func TestDSNFormat(t *testing.T) {
	cfg := &Config{
		DatabaseHost: "localhost", DatabasePort: 5432, DatabaseName: "eurocore",
		DatabaseUser: "eurocore", DatabasePassword: "pw", DatabaseSSLMode: "disable",
	}
	assert.Equal(t, "host=localhost port=5432 dbname=eurocore user=eurocore password=pw sslmode=disable", cfg.DSN())
}
