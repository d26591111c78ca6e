package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// CameraRecord is the persisted row for one configured camera. Unlike the
// in-memory motion/detection/event stores, the registry survives restarts so
// the query surface can answer "what cameras exist and when did they last
// start" without replaying the whole ingest history.
type CameraRecord struct {
	ID          string `gorm:"primaryKey"`
	URL         string
	Codec       string
	LastStarted time.Time
}

// Registry persists camera metadata in a small local SQLite database.
type Registry struct {
	db *gorm.DB
}

// OpenRegistry opens (creating if necessary) the SQLite-backed camera
// registry at path and migrates its schema.
func OpenRegistry(path string) (*Registry, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}
	if err := db.AutoMigrate(&CameraRecord{}); err != nil {
		return nil, fmt.Errorf("migrating registry schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// UpsertCamera records that a camera with the given ID/URL/codec has started.
func (r *Registry) UpsertCamera(id, url, codec string) error {
	rec := CameraRecord{ID: id, URL: url, Codec: codec, LastStarted: time.Now()}
	return r.db.Save(&rec).Error
}

// ListCameras returns every camera the registry has ever recorded, most
// recently started first.
func (r *Registry) ListCameras() ([]CameraRecord, error) {
	var records []CameraRecord
	if err := r.db.Order("last_started desc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing cameras: %w", err)
	}
	return records, nil
}

// Close releases the underlying database connection.
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
