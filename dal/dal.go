package dal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tempo/models"
)

// ErrNotFound is returned when a record does not exist in the requested guild.
var ErrNotFound = errors.New("not found")

// Store is the event, guild settings and user timezone store.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open creates and returns a store backed by the SQLite file at dbPath.
func Open(dbPath string, log *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := gorm.Open(
		sqlite.Open(dbPath+"?_journal_mode=WAL&_busy_timeout=5000"),
		&gorm.Config{Logger: gormlogger.Discard},
	)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	log.Info("connected to database", zap.String("path", dbPath))

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite is a single-writer engine; one connection serializes all access.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	err = db.AutoMigrate(&models.Event{}, &models.GuildSettings{}, &models.UserTimezone{})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	log.Info("migrated database")

	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) with(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
