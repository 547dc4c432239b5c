// Package database owns the Postgres connection pool used by the
// datastorage repositories: configuration, validation and pool setup.
package database

import (
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
	"github.com/blockset-corp/chainaudit/pkg/shared/logging"
)

// Config describes how to reach the Postgres instance backing the
// chainjob/chainblock/chainblockfetch tables.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "chainaudit_user",
		Database:        "chainaudit",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// LoadFromEnv overlays DB_HOST/DB_PORT/DB_USER/DB_PASSWORD/DB_NAME/
// DB_SSL_MODE onto the config when set. An unparsable DB_PORT is ignored
// and the existing value is kept.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("DB_SSL_MODE"); v != "" {
		c.SSLMode = v
	}
}

// Validate reports the first configuration defect found, if any.
func (c *Config) Validate() error {
	if c.Host == "" {
		return applerrors.NewValidationError("database host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return applerrors.NewValidationError("database port must be between 1 and 65535")
	}
	if c.User == "" {
		return applerrors.NewValidationError("database user is required")
	}
	if c.Database == "" {
		return applerrors.NewValidationError("database name is required")
	}
	if c.MaxOpenConns <= 0 {
		return applerrors.NewValidationError("max open connections must be greater than 0")
	}
	if c.MaxIdleConns < 0 {
		return applerrors.NewValidationError("max idle connections must be non-negative")
	}
	return nil
}

// ConnectionString renders a libpq-style DSN, omitting the password
// parameter entirely when empty so it never ends up logged as "password=".
func (c *Config) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s", c.Host, c.Port, c.User, c.Database, c.SSLMode)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// Connect validates config, opens a pgx-backed *sqlx.DB and applies the
// pool-sizing parameters. The pgx stdlib driver is registered under the
// name "pgx" (DD-010: migrated from lib/pq).
func Connect(config *Config, logger *logrus.Logger) (*sqlx.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, applerrors.Wrap(err, applerrors.ErrorTypeValidation, "invalid database configuration")
	}

	db, err := sqlx.Connect("pgx", config.ConnectionString())
	if err != nil {
		return nil, applerrors.NewDatabaseError("connect", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	fields := logging.DatabaseFields("connect", config.Database).Custom("host", config.Host)
	logger.WithFields(fields.ToLogrus()).Info("connected to database")

	return db, nil
}
