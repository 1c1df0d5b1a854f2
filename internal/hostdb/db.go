// Package hostdb provides a runnable reference implementation of
// internal/hostapi.Host backed by GORM (sqlite/postgres/mysql), used for
// integration tests and --dev-host mode (spec.md §6.5: the core owns no
// persisted state; this package plays the role of the external host SDK
// that does). Adapted from the teacher's internal/database connection
// management, trimmed to this domain's driver selection and SQLite pragmas.
package hostdb

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pipelka/robotv-go/internal/config"
)

// DB wraps a GORM connection opened against the configured driver.
type DB struct {
	*gorm.DB
	log *slog.Logger
}

// Open opens a connection per cfg.Driver/cfg.DSN and runs AutoMigrate for
// the channel/timer/recording schema.
func Open(cfg config.HostDBConfig, log *slog.Logger) (*DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("selecting dialector: %w", err)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.New(slogWriter{log}, logger.Config{LogLevel: logger.Warn}),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := gdb.AutoMigrate(&ChannelModel{}, &TimerModel{}, &RecordingModel{}, &StreamModel{}); err != nil {
		return nil, fmt.Errorf("auto-migrating: %w", err)
	}

	return &DB{DB: gdb, log: log}, nil
}

func dialectorFor(cfg config.HostDBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DSN
		if !strings.Contains(dsn, "?") {
			dsn += "?"
		} else {
			dsn += "&"
		}
		dsn += "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(cfg.DSN), nil
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported hostdb driver: %s", cfg.Driver)
	}
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogWriter adapts *slog.Logger to gorm/logger.Writer.
type slogWriter struct{ log *slog.Logger }

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(fmt.Sprintf(format, args...))
}
