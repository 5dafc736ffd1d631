// Package datastore provides logging infrastructure for database operations
package datastore

import (
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm/logger"

	"github.com/mkallio/herbid-go/internal/logging"
)

// Package-level logger for datastore operations
var (
	datastoreLogger   *slog.Logger
	datastoreLevelVar = new(slog.LevelVar) // Dynamic level control
	loggerOnce        sync.Once
)

const defaultLogPath = "logs/datastore.log"

// getLogger returns the datastore logger, initializing it on first use.
func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		datastoreLevelVar.Set(slog.LevelInfo)

		var err error
		datastoreLogger, _, err = logging.NewFileLogger(defaultLogPath, "datastore", datastoreLevelVar)
		if err != nil {
			logging.Error("Failed to initialize datastore file logger", "error", err)
			datastoreLogger = logging.NoopLogger("datastore", datastoreLevelVar)
		}
	})
	return datastoreLogger
}

// slogWriter adapts a slog.Logger to GORM's logger.Writer interface.
type slogWriter struct {
	l *slog.Logger
}

func (w *slogWriter) Printf(format string, args ...any) {
	w.l.Info("gorm", "msg", format, "args", args)
}

// createGormLogger builds a GORM logger that routes through the datastore
// file logger, warning on slow queries.
func createGormLogger() logger.Interface {
	return logger.New(
		&slogWriter{l: getLogger()},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
