package datastore

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/errors"
)

// SQLiteStore is the SQLite-backed datastore.
type SQLiteStore struct {
	Settings *conf.Settings
	DataStore
}

// Open connects to the SQLite database, applies pragmas, and migrates the
// schema.
func (store *SQLiteStore) Open() error {
	dbPath := store.Settings.Database.SQLite.Path
	if dbPath == "" {
		return errors.Newf("sqlite database path is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	dir := filepath.Dir(dbPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(fmt.Errorf("creating database directory %s: %w", dir, err)).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: newGormLogger(store.Settings.Debug),
	})
	if err != nil {
		return errors.New(fmt.Errorf("opening sqlite database: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", dbPath).
			Build()
	}

	// WAL keeps readers unblocked during promote transactions
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		serviceLogger().Warn("Failed to enable WAL journal mode", "error", err)
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		serviceLogger().Warn("Failed to set busy timeout", "error", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "SQLite", dbPath)
}
