package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scribehub/scribe/pkg/models"
)

// Driver defines the supported database backends.
type Driver string

const (
	// DriverSQLite uses SQLite (single-node, dev and tests).
	DriverSQLite Driver = "sqlite"

	// DriverPostgres uses PostgreSQL (production).
	DriverPostgres Driver = "postgres"
)

// Config contains database configuration.
type Config struct {
	// Driver selects the backend.
	Driver Driver

	// DSN is the postgres connection string, or the sqlite file path.
	// ":memory:" opens an in-memory sqlite database.
	DSN string

	// MaxOpenConns caps the connection pool (postgres only).
	MaxOpenConns int
}

// GORMStore implements the relational store using GORM. It supports both
// SQLite and PostgreSQL backends via the same codebase.
type GORMStore struct {
	db *gorm.DB
}

// New opens the database, runs AutoMigrate for all domain models, and seeds
// the well-known DEFAULT tag.
func New(cfg Config) (*GORMStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dsn := cfg.DSN
		if dsn == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
			// WAL for concurrent readers, 5s busy timeout when locked
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		dialector = sqlite.Open(dsn)

	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		dialector = postgres.Open(cfg.DSN)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == DriverPostgres && cfg.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	s := &GORMStore{db: db}

	if err := s.ensureDefaultTag(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to seed DEFAULT tag: %w", err)
	}

	return s, nil
}

// DB returns the underlying GORM database connection.
// This is useful for advanced queries or testing.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// Ping verifies the database connection is alive.
func (s *GORMStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a database transaction. The callback receives a
// store bound to the transaction; returning an error rolls everything back.
func (s *GORMStore) WithTx(ctx context.Context, fn func(tx *GORMStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GORMStore{db: tx})
	})
}

// ensureDefaultTag seeds the universal-scope tag if it is missing.
func (s *GORMStore) ensureDefaultTag(ctx context.Context) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.OrganizationTag{}).
		Where("tag_id = ?", models.DefaultTagID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	tag := &models.OrganizationTag{
		TagID:     models.DefaultTagID,
		Name:      "Default",
		CreatedBy: "system",
	}
	err := s.db.WithContext(ctx).Create(tag).Error
	if isUniqueConstraintError(err) {
		return nil
	}
	return err
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite or PostgreSQL unique constraint errors
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to the appropriate domain error.
func convertNotFoundError(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
