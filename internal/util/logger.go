// Package util provides logging, host statistics and TLS helpers for Skeld.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds configuration for the logging system.
type LogConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Directory:  "logs",
		MaxSizeMB:  10,
		MaxBackups: 5,
		Console:    true,
	}
}

var (
	logFileMu sync.Mutex
	logFile   *os.File
)

// InitLogger points the global zerolog logger at a daily JSON file and,
// optionally, a console writer. Calling it again swaps the file.
func InitLogger(cfg LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", cfg.Directory, err)
	}

	path := logFilePath(cfg.Directory, time.Now(), cfg.MaxSizeMB)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	var console io.Writer
	if cfg.Console {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}
	log.Logger = newLogger(f, console)

	logFileMu.Lock()
	prev := logFile
	logFile = f
	logFileMu.Unlock()
	if prev != nil {
		prev.Close()
	}

	log.Info().Str("level", level.String()).Str("log_file", path).Msg("logger initialized")

	go cleanOldLogs(cfg.Directory, cfg.MaxBackups)
	return nil
}

func newLogger(file io.Writer, console io.Writer) zerolog.Logger {
	writers := []io.Writer{file}
	if console != nil {
		writers = append(writers, console)
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", "skeld").
		Caller().
		Logger()
}

// logFilePath returns today's log file. Once a file passes maxSizeMB the
// next free numbered suffix is used instead.
func logFilePath(dir string, now time.Time, maxSizeMB int) string {
	base := "skeld_" + now.Format("2006-01-02")
	path := filepath.Join(dir, base+".log")
	if maxSizeMB <= 0 {
		return path
	}
	limit := int64(maxSizeMB) * 1024 * 1024
	for n := 1; ; n++ {
		info, err := os.Stat(path)
		if err != nil || info.Size() < limit {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s.%d.log", base, n))
	}
}

// cleanOldLogs keeps the newest maxBackups log files.
func cleanOldLogs(directory string, maxBackups int) {
	if maxBackups <= 0 {
		return
	}
	entries, err := os.ReadDir(directory)
	if err != nil {
		return
	}

	type logEntry struct {
		name    string
		modTime time.Time
	}
	var files []logEntry
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logEntry{entry.Name(), info.ModTime()})
	}

	slices.SortFunc(files, func(a, b logEntry) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	for i := 0; i < len(files)-maxBackups; i++ {
		path := filepath.Join(directory, files[i].name)
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("failed to remove old log file")
			continue
		}
		log.Debug().Str("file", path).Msg("removed old log file")
	}
}

// ComponentLogger creates a logger with a component name field.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
