package datastore

import (
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/errors"
)

// SQLiteStore implements the record store for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

func validateSQLiteConfig(settings *conf.Settings) error {
	if settings.Output.SQLite.Path == "" {
		return errors.Newf("SQLite database path is required").
			Category(errors.CategoryConfiguration).
			Component("datastore").
			Build()
	}
	return nil
}

// Open sets up the SQLite database connection
func (store *SQLiteStore) Open() error {
	if err := validateSQLiteConfig(store.Settings); err != nil {
		return err
	}

	dir, fileName := filepath.Split(store.Settings.Output.SQLite.Path)
	absoluteFilePath := filepath.Join(conf.GetBasePath(dir), fileName)

	db, err := gorm.Open(sqlite.Open(absoluteFilePath), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return errors.Newf("failed to open SQLite database: %w", err).
			Category(errors.CategoryDatabase).
			Context("path", absoluteFilePath).
			Component("datastore").
			Build()
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "SQLite", absoluteFilePath)
}

// Close releases the SQLite connection
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return errors.Newf("failed to retrieve generic DB object: %w", err).
			Category(errors.CategoryDatabase).
			Component("datastore").
			Build()
	}
	return sqlDB.Close()
}
