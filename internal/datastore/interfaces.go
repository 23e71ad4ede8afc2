// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"context"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/identify"
	"github.com/fieldquest/fieldquest-go/internal/observability/metrics"
)

// Interface abstracts the underlying database implementation. It is the
// record store of the identification service plus lifecycle management.
type Interface interface {
	Open() error
	Close() error
	identify.Store
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB      *gorm.DB
	Metrics *metrics.DatastoreMetrics
}

// New creates a new store instance based on the configured output backend.
// Returns nil when no backend is enabled; ValidateSettings rejects such a
// configuration before this point in normal startup.
func New(settings *conf.Settings, m *metrics.DatastoreMetrics) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			DataStore: DataStore{Metrics: m},
			Settings:  settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			DataStore: DataStore{Metrics: m},
			Settings:  settings,
		}
	default:
		return nil
	}
}

// InsertBatch stores all records in a single transaction so a multi-provider
// submission either persists completely or not at all.
func (ds *DataStore) InsertBatch(ctx context.Context, records []*identify.Record) error {
	if ds.DB == nil {
		return notInitializedError()
	}
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	rows := make([]*Identification, len(records))
	for i, r := range records {
		rows[i] = toModel(r)
	}

	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	ds.Metrics.RecordOperation("insert_batch", statusLabel(err), time.Since(start).Seconds())

	if err != nil {
		return errors.Newf("saving identification batch: %w", err).
			Category(errors.CategoryDatabase).
			Context("records", len(records)).
			Component("datastore").
			Build()
	}
	return nil
}

// Get retrieves a single record by its public ID.
func (ds *DataStore) Get(ctx context.Context, id string) (*identify.Record, error) {
	if ds.DB == nil {
		return nil, notInitializedError()
	}

	start := time.Now()
	var row Identification
	err := ds.DB.WithContext(ctx).Where("public_id = ?", id).First(&row).Error
	ds.Metrics.RecordOperation("get", statusLabel(err), time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("identification not found: %s", id).
				Category(errors.CategoryNotFound).
				Context("record_id", id).
				Component("datastore").
				Build()
		}
		return nil, errors.Newf("getting identification: %w", err).
			Category(errors.CategoryDatabase).
			Context("record_id", id).
			Component("datastore").
			Build()
	}
	return toRecord(&row), nil
}

// ListByStatus returns up to limit records with the given status, newest
// first.
func (ds *DataStore) ListByStatus(ctx context.Context, status identify.Status, limit int) ([]*identify.Record, error) {
	if ds.DB == nil {
		return nil, notInitializedError()
	}

	start := time.Now()
	var rows []Identification
	err := ds.DB.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	ds.Metrics.RecordOperation("list", statusLabel(err), time.Since(start).Seconds())

	if err != nil {
		return nil, errors.Newf("listing identifications: %w", err).
			Category(errors.CategoryDatabase).
			Context("status", string(status)).
			Component("datastore").
			Build()
	}

	records := make([]*identify.Record, len(rows))
	for i := range rows {
		records[i] = toRecord(&rows[i])
	}
	return records, nil
}

// UpdateReview transitions a pending record to its terminal review status.
// The WHERE clause on the current status makes the transition a
// compare-and-set: with two concurrent reviewers exactly one UPDATE matches
// and the other observes zero affected rows.
func (ds *DataStore) UpdateReview(ctx context.Context, id string, status identify.Status, reviewerID string, notes *string) (*identify.Record, error) {
	if ds.DB == nil {
		return nil, notInitializedError()
	}

	start := time.Now()
	now := time.Now().UTC()
	res := ds.DB.WithContext(ctx).
		Model(&Identification{}).
		Where("public_id = ? AND status = ?", id, string(identify.StatusPending)).
		Updates(map[string]any{
			"status":       string(status),
			"reviewer_id":  reviewerID,
			"reviewed_at":  now,
			"review_notes": notes,
		})
	ds.Metrics.RecordOperation("update_review", statusLabel(res.Error), time.Since(start).Seconds())

	if res.Error != nil {
		return nil, errors.Newf("updating review: %w", res.Error).
			Category(errors.CategoryDatabase).
			Context("record_id", id).
			Component("datastore").
			Build()
	}

	if res.RowsAffected == 0 {
		// Either the record does not exist or it already left pending.
		var row Identification
		err := ds.DB.WithContext(ctx).Where("public_id = ?", id).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("identification not found: %s", id).
				Category(errors.CategoryNotFound).
				Context("record_id", id).
				Component("datastore").
				Build()
		}
		if err != nil {
			return nil, errors.Newf("checking review target: %w", err).
				Category(errors.CategoryDatabase).
				Context("record_id", id).
				Component("datastore").
				Build()
		}
		ds.Metrics.RecordReviewConflict()
		return nil, errors.Newf("identification %s is not pending (status %s)", id, row.Status).
			Category(errors.CategoryConflict).
			Context("record_id", id).
			Context("status", row.Status).
			Component("datastore").
			Build()
	}

	return ds.Get(ctx, id)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func notInitializedError() error {
	return errors.Newf("database connection is not initialized").
		Category(errors.CategoryDatabase).
		Component("datastore").
		Build()
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Identification{}); err != nil {
		return errors.Newf("failed to auto-migrate %s database: %w", dbType, err).
			Category(errors.CategoryDatabase).
			Context("db_type", dbType).
			Component("datastore").
			Build()
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}
	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
