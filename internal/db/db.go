package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goran-ethernal/logrange/pkg/config"
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB opens the database at dbPath with the default store options.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	cfg := config.DatabaseConfig{Path: dbPath}
	cfg.ApplyDefaults()

	return sql.Open("sqlite3", dsn(cfg))
}

// NewSQLiteDBFromConfig creates a new SQLite DB with the given configuration.
// Every option travels in the DSN so each pooled connection gets the same settings.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", cfg.Path, err)
	}

	return db, nil
}

// dsn renders the store options as go-sqlite3 connection parameters.
func dsn(cfg config.DatabaseConfig) string {
	params := url.Values{}
	params.Set("_txlock", "immediate")

	if cfg.JournalMode != "" {
		params.Set("_journal_mode", cfg.JournalMode)
	}

	if cfg.Synchronous != "" {
		params.Set("_synchronous", cfg.Synchronous)
	}

	if cfg.BusyTimeout > 0 {
		params.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout))
	}

	if cfg.CacheSize != 0 {
		params.Set("_cache_size", strconv.Itoa(cfg.CacheSize))
	}

	return fmt.Sprintf("file:%s?%s", cfg.Path, params.Encode())
}
