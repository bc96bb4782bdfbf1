package localstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const SQLiteFileName = "vidgen.db"

type kvEntry struct {
	StoreKey  string    `gorm:"column:store_key;primaryKey"`
	Value     []byte    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (kvEntry) TableName() string { return "kv_entries" }

// SQLite stores every key as one row of a single table.
type SQLite struct {
	db   *gorm.DB
	path string
}

func OpenSQLite(path string) (*SQLite, error) {
	target := strings.TrimSpace(path)
	if target == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := Mkdir(filepath.Dir(target)); err != nil {
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(target), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store %s: %w", target, err)
	}
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite store %s: %w", target, err)
	}
	return &SQLite{db: db, path: target}, nil
}

func (s *SQLite) Get(key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	var row kvEntry
	err := s.db.Where("store_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read key %s from %s: %w", key, s.path, err)
	}
	return row.Value, true, nil
}

func (s *SQLite) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	row := kvEntry{
		StoreKey:  key,
		Value:     append([]byte(nil), value...),
		UpdatedAt: time.Now().UTC(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("write key %s to %s: %w", key, s.path, err)
	}
	return nil
}

// Lock serializes read-modify-write cycles across processes sharing the
// database file.
func (s *SQLite) Lock() (func() error, error) {
	lock, err := AcquireLock(filepath.Dir(s.path))
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
