package identify

import (
	"log/slog"

	"github.com/fieldquest/fieldquest-go/internal/logging"
)

var (
	logger      *slog.Logger
	levelVar    = new(slog.LevelVar)
	closeLogger func() error
	serviceName = "identify"
	fileLogPath = "logs/identify.log"
)

func init() {
	var err error
	logger, closeLogger, err = logging.NewFileLogger(fileLogPath, serviceName, levelVar)
	if err != nil || logger == nil {
		logger = slog.Default().With("service", serviceName)
		closeLogger = func() error { return nil }
	}
}

// SetLogLevel adjusts the package log level at runtime.
func SetLogLevel(level slog.Level) {
	levelVar.Set(level)
}

// CloseLogger flushes and closes the package log file.
func CloseLogger() error {
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}
