// Package config loads the EUROCORE_-prefixed environment configuration
// using spf13/viper for env binding.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/Europeia/eurocore/internal/nation"
)

// Config is the fully parsed, typed configuration for one process.
type Config struct {
	User              string
	DatabaseHost      string
	DatabasePort      int
	DatabaseName      string
	DatabaseUser      string
	DatabasePassword  string
	DatabaseSSLMode   string
	LogLevel          string
	Port              int
	DispatchNations   map[string]string
	RmbpostNations    map[string]string
	Secret            string
	TelegramClientKey string
}

// EnvPrefix is the environment variable prefix every setting is read
// under.
const EnvPrefix = "EUROCORE"

// Load reads the environment into a Config. A malformed
// dispatch_nations/rmbpost_nations string is a fatal parse error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("port", 8080)
	v.SetDefault("database_port", 5432)
	v.SetDefault("database_sslmode", "disable")

	for _, key := range []string{
		"user", "database_host", "database_port", "database_name",
		"database_user", "database_password", "database_sslmode",
		"log_level", "port", "dispatch_nations", "rmbpost_nations",
		"secret", "telegram_client_key",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "binding %s", key)
		}
	}

	dispatchNations, err := nation.Parse(v.GetString("dispatch_nations"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing dispatch_nations")
	}
	rmbpostNations, err := nation.Parse(v.GetString("rmbpost_nations"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing rmbpost_nations")
	}

	return &Config{
		User:              v.GetString("user"),
		DatabaseHost:      v.GetString("database_host"),
		DatabasePort:      v.GetInt("database_port"),
		DatabaseName:      v.GetString("database_name"),
		DatabaseUser:      v.GetString("database_user"),
		DatabasePassword:  v.GetString("database_password"),
		DatabaseSSLMode:   v.GetString("database_sslmode"),
		LogLevel:          v.GetString("log_level"),
		Port:              v.GetInt("port"),
		DispatchNations:   dispatchNations,
		RmbpostNations:    rmbpostNations,
		Secret:            v.GetString("secret"),
		TelegramClientKey: v.GetString("telegram_client_key"),
	}, nil
}

// DSN renders the Postgres connection string lib/pq expects.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DatabaseHost, c.DatabasePort, c.DatabaseName, c.DatabaseUser,
		c.DatabasePassword, c.DatabaseSSLMode,
	)
}
