package storage

import (
	"database/sql"
	"fmt"

	"nepse-observer/src/logger"
	"nepse-observer/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

func NewSQLiteDB(cfg *models.MConfig, log *logger.Logger) *SQLStore {
	return &SQLStore{
		Config:  cfg,
		Logger:  log,
		dialect: dialectSQLite,
	}
}

// -----------------------------------------------------------------------------

// initializeSQLite opens the file database and creates missing tables.
func (d *SQLStore) initializeSQLite() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	// One writer at a time; readers share WAL.
	db.SetMaxOpenConns(1)
	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		d.Logger.Warning("Failed to set busy timeout: %v", err)
	}

	if err := d.createTables(); err != nil {
		return fmt.Errorf("sqlite %s: %w", dsn, err)
	}

	d.Logger.Info("SQLite store ready (%s)", dsn)
	return nil
}
