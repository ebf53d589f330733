// Package config defines the settings of a named database adaptor.
package config

import (
	"fmt"
	"strings"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`             // Database type ("postgres", "mysql", "sqlite").
	Host     string     `yaml:"host"`             // Database host address.
	Port     int        `yaml:"port"`             // Database port number.
	Database string     `yaml:"database"`         // Database name, or the file path for sqlite.
	User     string     `yaml:"user"`             // Database user.
	Password string     `yaml:"password"`         // Database password.
	Schema   string     `yaml:"schema,omitempty"` // Schema name for PostgreSQL.
	Sslmode  string     `yaml:"sslmode"`          // SSL mode for the connection.
	Pool     PoolConfig `yaml:"pool"`             // Connection pool settings.
}

// String renders the configuration without the password, for logs.
func (c DatabaseConfig) String() string {
	if c.Type == "sqlite" {
		return fmt.Sprintf("sqlite(%s)", c.Database)
	}
	return fmt.Sprintf("%s(%s@%s:%d/%s)", c.Type, c.User, c.Host, c.Port, c.Database)
}

// NormalizedType returns Type in lower case.
func (c DatabaseConfig) NormalizedType() string {
	return strings.ToLower(strings.TrimSpace(c.Type))
}
