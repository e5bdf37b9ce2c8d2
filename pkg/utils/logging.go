package utils

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogConfig stores logging configuration
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// DefaultLogConfig returns the default logging configuration
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// ConfigureLogger builds the process logger. An unreadable output path falls
// back to stdout only.
func ConfigureLogger(config LogConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	if config.OutputPath == "" {
		return logger
	}

	file, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.Warnf("Cannot open log file %s: %v", config.OutputPath, err)
		return logger
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))

	return logger
}
