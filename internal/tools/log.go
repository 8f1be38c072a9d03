package tools

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var l = logrus.New()

// SetLogger replaces the package logger.
func SetLogger(logger *logrus.Logger) {
	if logger != nil {
		l = logger
	}
}

// NewLogger logs JSON to stdout and, when logPath is set, appends the same
// lines to that file. The returned closer releases the file.
func NewLogger(level, logPath string) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.Formatter = &logrus.JSONFormatter{}
	logger.SetLevel(ParseLevel(level))

	if logPath == "" {
		logger.SetOutput(os.Stdout)
		return logger, io.NopCloser(nil), nil
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(logFile, os.Stdout))
	return logger, logFile, nil
}

// ParseLevel maps LOG_LEVEL values; anything unknown is info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
