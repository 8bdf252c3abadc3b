package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"desacordo-backend/internal/models"
)

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func logPragmaValues(db *sql.DB, sugar *zap.SugaredLogger) error {
	var foreignKeysValue bool
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeysValue); err != nil {
		return err
	}

	var journalModeValue string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalModeValue); err != nil {
		return err
	}

	var synchronousValue int
	if err := db.QueryRow("PRAGMA synchronous").Scan(&synchronousValue); err != nil {
		return err
	}

	var synchronousValueStr string
	switch synchronousValue {
	case 0:
		synchronousValueStr = "off"
	case 1:
		synchronousValueStr = "normal"
	case 2:
		synchronousValueStr = "full"
	case 3:
		synchronousValueStr = "extra"
	default:
		return fmt.Errorf("synchronous value %d is unsupported", synchronousValue)
	}

	sugar.Infow("sqlite pragmas",
		"foreign_keys", foreignKeysValue,
		"journal_mode", journalModeValue,
		"synchronous", synchronousValueStr,
	)
	return nil
}

// Open connects to sqlite in self-contained mode and to mysql/mariadb
// otherwise, then creates missing tables.
func Open(cfg *models.ConfigFile, sugar *zap.SugaredLogger) (*sql.DB, error) {
	var db *sql.DB
	var err error

	if cfg.SelfContained {
		sugar.Infof("Connecting to database sqlite at %s...", cfg.SqlitePath)

		if err := os.MkdirAll(filepath.Dir(cfg.SqlitePath), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		db, err = sql.Open("sqlite", cfg.SqlitePath)
		if err != nil {
			return nil, err
		}

		// there can be sqlite busy errors if this is not set to 1
		db.SetMaxOpenConns(1)

		if err = setPragmaValues(db); err != nil {
			db.Close()
			return nil, err
		}

		if err = logPragmaValues(db, sugar); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		sugar.Info("Connecting to database mysql/mariadb...")

		db, err = sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase))
		if err != nil {
			return nil, err
		}

		db.SetMaxOpenConns(10)

		if err = db.Ping(); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err = setupTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func setupTables(db *sql.DB) error {
	_, err := db.Exec(`
			CREATE TABLE IF NOT EXISTS accounts (
				id VARCHAR(20) PRIMARY KEY,
				email VARCHAR(64) NOT NULL UNIQUE,
				username VARCHAR(32) NOT NULL,
				avatar_url TEXT NOT NULL,
				password BINARY(60) NOT NULL,
				created_at BIGINT NOT NULL
			);
		`)
	return err
}
