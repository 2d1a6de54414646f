// Package store is the persistence layer for tenant records and the
// per-tenant user population. It is the only component that touches the
// database; everything above it works with typed records.
package store

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the SQLite database holding tenant and user records.
type Store struct {
	db     *gorm.DB
	dbPath string
}

// Open creates or opens the database at dbPath and migrates the schema.
func Open(dbPath string) (*Store, error) {
	// Busy timeout and WAL keep concurrent session goroutines from
	// tripping over SQLITE_BUSY.
	dsn := dbPath + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&TenantRecord{}, &UserRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
