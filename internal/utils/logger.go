package utils

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogMaxSize = 50 // MB

// LoggingConfig controls log level and destination.
type LoggingConfig struct {
	Level      string `yaml:"level"`       // zerolog level name, defaults to info
	Console    bool   `yaml:"console"`     // Human readable output instead of JSON on stdout
	File       string `yaml:"file"`        // Rotated log file, empty logs to stdout only
	MaxSize    int    `yaml:"max_size"`    // Megabytes before rotation
	MaxBackups int    `yaml:"max_backups"` // Rotated files to keep
	MaxAge     int    `yaml:"max_age"`     // Days to keep rotated files
	Compress   bool   `yaml:"compress"`    // Gzip rotated files
}

// NewLogger builds the agent logger. The returned closer releases the log file, if any.
func NewLogger(cfg LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		level = parsed
	}

	var stdout io.Writer = os.Stdout
	if cfg.Console {
		stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	out := stdout
	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		rotated, err := newRotatingFile(cfg)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		out = zerolog.MultiLevelWriter(stdout, rotated)
		closer = rotated
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

func newRotatingFile(cfg LoggingConfig) (*lumberjack.Logger, error) {
	if st, err := os.Stat(cfg.File); err == nil && st.IsDir() {
		return nil, errors.New("can't use directory as log file name")
	}
	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = defaultLogMaxSize
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}, nil
}
