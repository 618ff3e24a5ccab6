// Package store persists detection history, notifications, camera settings,
// and user relationships in an SQLite database.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sentinelvision/sentinel-go/internal/errors"
	"github.com/sentinelvision/sentinel-go/internal/logging"
)

const (
	// MaxHistoryItems bounds the per-user history list.
	MaxHistoryItems = 100
	// MaxNotifications bounds the per-user notification list.
	MaxNotifications = 50
)

// Config tunes the store.
type Config struct {
	// Path is the SQLite database file. Directories are created as needed.
	Path string

	// MaxHistoryItems and MaxNotifications override the per-user caps when
	// positive.
	MaxHistoryItems  int
	MaxNotifications int

	// Debug enables verbose query logging.
	Debug bool
}

// DataStore persists the application's per-user state with GORM over
// SQLite.
type DataStore struct {
	DB *gorm.DB

	cfg    Config
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures a DataStore.
type Option func(*DataStore)

// WithClock injects the clock used for timestamps and date buckets.
func WithClock(clk clock.Clock) Option {
	return func(ds *DataStore) { ds.clock = clk }
}

// New creates a store for the given config. Call Open before use.
func New(cfg Config, opts ...Option) *DataStore {
	if cfg.MaxHistoryItems <= 0 {
		cfg.MaxHistoryItems = MaxHistoryItems
	}
	if cfg.MaxNotifications <= 0 {
		cfg.MaxNotifications = MaxNotifications
	}
	ds := &DataStore{
		cfg:    cfg,
		clock:  clock.New(),
		logger: logging.ForService("store"),
	}
	if ds.logger == nil {
		ds.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(ds)
	}
	return ds
}

// Open connects to the SQLite database and runs auto-migration.
func (ds *DataStore) Open() error {
	if ds.cfg.Path == "" {
		return errors.Newf("store path is not configured").
			Component("store").
			Category(errors.CategoryConfig).
			Build()
	}

	if dir := filepath.Dir(ds.cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("store").
				Category(errors.CategoryFileIO).
				Context("operation", "create_store_directory").
				Context("path", dir).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(ds.cfg.Path), &gorm.Config{
		Logger: ds.gormLogger(),
	})
	if err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "open_database").
			Context("path", ds.cfg.Path).
			Build()
	}
	ds.DB = db

	if err := db.AutoMigrate(
		&HistoryEntry{},
		&Notification{},
		&CameraSettingRecord{},
		&PauseStateRecord{},
		&UserRelationship{},
	); err != nil {
		return errors.New(err).
			Component("store").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Build()
	}

	ds.logger.Info("store opened", "path", ds.cfg.Path)
	return nil
}

// Close releases the underlying database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (ds *DataStore) gormLogger() gormlogger.Interface {
	level := gormlogger.Warn
	if ds.cfg.Debug {
		level = gormlogger.Info
	}
	return &slogGormLogger{logger: ds.logger, level: level}
}

// slogGormLogger routes GORM's log output through the structured logger.
type slogGormLogger struct {
	logger *slog.Logger
	level  gormlogger.LogLevel
}

func (l *slogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level < gormlogger.Info && err == nil {
		return
	}
	sql, rows := fc()
	if err != nil && l.level >= gormlogger.Error {
		l.logger.ErrorContext(ctx, "query failed",
			"sql", sql,
			"rows", rows,
			"elapsed", time.Since(begin),
			"error", err)
		return
	}
	if l.level >= gormlogger.Info {
		l.logger.DebugContext(ctx, "query",
			"sql", sql,
			"rows", rows,
			"elapsed", time.Since(begin))
	}
}
