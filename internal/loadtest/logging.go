package loadtest

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/okian/ovation/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging returns a logger writing to both the console and a file. If
// logFile is empty, a timestamped filename is generated. The returned
// closer closes the file.
func SetupLogging(logFile string, verbose bool) (logger.Logger, io.Closer, error) {
	if logFile == "" {
		logFile = "loadtest_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	l := logger.New(io.MultiWriter(os.Stdout, file), level).Named("loadtest")
	return l, file, nil
}
