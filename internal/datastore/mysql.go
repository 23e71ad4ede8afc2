package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/errors"
)

// MySQLStore implements the record store for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func validateMySQLConfig(settings *conf.Settings) error {
	mysqlCfg := settings.Output.MySQL
	if mysqlCfg.Host == "" || mysqlCfg.Database == "" || mysqlCfg.Username == "" {
		return errors.Newf("MySQL host, database and username are required").
			Category(errors.CategoryConfiguration).
			Component("datastore").
			Build()
	}
	return nil
}

// Open sets up the MySQL database connection
func (store *MySQLStore) Open() error {
	if err := validateMySQLConfig(store.Settings); err != nil {
		return err
	}

	mysqlCfg := store.Settings.Output.MySQL
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		mysqlCfg.Username, mysqlCfg.Password,
		mysqlCfg.Host, mysqlCfg.Port,
		mysqlCfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return errors.Newf("failed to open MySQL database: %w", err).
			Category(errors.CategoryDatabase).
			Context("host", mysqlCfg.Host).
			Context("database", mysqlCfg.Database).
			Component("datastore").
			Build()
	}

	store.DB = db
	connectionInfo := fmt.Sprintf("%s@%s:%s/%s", mysqlCfg.Username, mysqlCfg.Host, mysqlCfg.Port, mysqlCfg.Database)
	return performAutoMigration(db, store.Settings.Debug, "MySQL", connectionInfo)
}

// Close releases the MySQL connections
func (store *MySQLStore) Close() error {
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
