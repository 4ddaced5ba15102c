// internal/common/database/postgres.go
// PostgreSQL connection and configuration

package database

import (
    "fmt"
    "time"

    "github.com/jmoiron/sqlx"
    _ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresConfig holds database configuration
type PostgresConfig struct {
    URL          string
    MaxOpenConns int
    MaxIdleConns int
    MaxLifetime  time.Duration
}

// NewPostgresDB creates a new PostgreSQL connection pool
func NewPostgresDB(config *PostgresConfig) (*sqlx.DB, error) {
    db, err := sqlx.Open("postgres", config.URL)
    if err != nil {
        return nil, fmt.Errorf("failed to open database: %w", err)
    }

    // Configure connection pool
    db.SetMaxOpenConns(config.MaxOpenConns)
    db.SetMaxIdleConns(config.MaxIdleConns)
    db.SetConnMaxLifetime(config.MaxLifetime)

    // Test connection
    if err := db.Ping(); err != nil {
        return nil, fmt.Errorf("failed to ping database: %w", err)
    }

    return db, nil
}

// NewPostgresDBFromURL creates a connection from a URL with pool defaults
func NewPostgresDBFromURL(databaseURL string) (*sqlx.DB, error) {
    return NewPostgresDB(&PostgresConfig{
        URL:          databaseURL,
        MaxOpenConns: 25,
        MaxIdleConns: 5,
        MaxLifetime:  5 * time.Minute,
    })
}
