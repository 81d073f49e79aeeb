package storage

import (
	"database/sql"
	"time"

	"nepse-observer/src/logger"
	"nepse-observer/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) *SQLStore {
	return &SQLStore{
		Config:  cfg,
		Logger:  log,
		dialect: dialectPostgres,
	}
}

// -----------------------------------------------------------------------------

func (d *SQLStore) initializePostgres() error {
	db, err := sql.Open("postgres", d.Config.Storage.DBConnectionString)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	d.DB = db

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully")
	return nil
}

// -----------------------------------------------------------------------------

// Initialize opens the configured backend and creates missing tables.
func (d *SQLStore) Initialize() error {
	if d.dialect == dialectPostgres {
		return d.initializePostgres()
	}
	return d.initializeSQLite()
}

// -----------------------------------------------------------------------------

// New picks the backend from the storage config.
func New(cfg *models.MConfig, log *logger.Logger) *SQLStore {
	if cfg.Storage.DBType == dialectPostgres {
		return NewPostgresDB(cfg, log)
	}
	return NewSQLiteDB(cfg, log)
}
