package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/amirali-farhadi/tenant-provisioner/internal/infrastructure/config"
)

// Config represents database configuration for both the shared registry pool
// and the per-schema pools derived from it.
type Config struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	LogLevel        string

	// SchemaMaxOpenConns bounds each per-tenant pool separately from the
	// shared pool; tenant pools multiply, so they stay small.
	SchemaMaxOpenConns int
	SchemaMaxIdleConns int
}

// FromAppConfig adapts the application configuration to database configuration
func FromAppConfig(conf *config.Config) *Config {
	return &Config{
		Host:               conf.Database.Host,
		Port:               ParsePort(conf.Database.Port),
		Username:           conf.Database.Username,
		Password:           conf.Database.Password,
		Database:           conf.Database.Database,
		SSLMode:            conf.Database.SSLMode,
		MaxOpenConns:       conf.Database.MaxOpenConns,
		MaxIdleConns:       conf.Database.MaxIdleConns,
		ConnMaxLifetime:    conf.Database.ConnMaxLifetime,
		ConnMaxIdleTime:    conf.Database.ConnMaxIdleTime,
		QueryTimeout:       conf.Database.QueryTimeout,
		RetryAttempts:      conf.Database.RetryAttempts,
		RetryDelay:         conf.Database.RetryDelay,
		LogLevel:           conf.Logger.Level,
		SchemaMaxOpenConns: 5,
		SchemaMaxIdleConns: 2,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Port)
	}
	if c.Username == "" {
		return errors.New("database username is required")
	}
	if c.Database == "" {
		return errors.New("database name is required")
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be positive, got: %d", c.MaxOpenConns)
	}
	if c.QueryTimeout <= 0 {
		return errors.New("query timeout must be positive")
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must be non-negative, got: %d", c.RetryAttempts)
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
		"prefer":      true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s", c.SSLMode)
	}

	return nil
}

// DSN returns the connection string for the shared registry namespace
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode,
	)
}

// SchemaDSN returns a connection string whose default search path is the
// given tenant schema, so unqualified statements land in that namespace.
func (c *Config) SchemaDSN(schemaName string) string {
	return fmt.Sprintf("%s search_path=%s", c.DSN(), schemaName)
}

// ParsePort converts a port string to an int, returning 0 when unparseable
func ParsePort(port string) int {
	var p int
	_, err := fmt.Sscanf(port, "%d", &p)
	if err != nil || p <= 0 || p > 65535 {
		return 0
	}
	return p
}
