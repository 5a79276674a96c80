// Package logging provides config-driven categorized file logging for the
// governance jobs. Logs are written to <workspace>/memory/logs/ with one
// file per category and day; logging is controlled by the logging section of
// memory/config/governance.yaml and is a silent no-op when disabled.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot        Category = "boot"        // Startup and CLI wiring
	CategoryStore       Category = "store"       // Entry store reads/writes
	CategoryLock        Category = "lock"        // Cadence lock acquisition
	CategoryRedact      Category = "redact"      // Secret redaction
	CategoryExtract     Category = "extract"     // Episodic -> semantic extraction
	CategoryScoring     Category = "scoring"     // Importance re-scoring
	CategoryConsolidate Category = "consolidate" // Daily consolidation + mirror
	CategoryDrift       Category = "drift"       // Candidate generation + classification
	CategoryPromote     Category = "promote"     // Identity promotion
	CategoryRecall      Category = "recall"      // Recall, gate, transcript lookup
)

// loggingConfig mirrors the relevant part of config.LoggingConfig to avoid
// a circular import with internal/config.
type loggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

type configFile struct {
	Logging loggingConfig `yaml:"logging"`
}

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger writing to one category file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	config    loggingConfig
	configMu  sync.RWMutex
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory and loads the workspace config.
// Call once at startup with the workspace path.
func Initialize(workspace string) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}
	logsDir = filepath.Join(workspace, "memory", "logs")

	if err := loadConfig(workspace); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: could not load config: %v\n", err)
		config.DebugMode = false
	}
	if !config.DebugMode {
		return nil
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs directory: %w", err)
	}
	Get(CategoryBoot).Info("logging initialized workspace=%s level=%s", workspace, config.Level)
	return nil
}

func loadConfig(workspace string) error {
	configMu.Lock()
	defer configMu.Unlock()

	data, err := os.ReadFile(filepath.Join(workspace, "memory", "config", "governance.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			config.DebugMode = false
			return nil
		}
		return err
	}
	var cf configFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	config = cf.Logging

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	return nil
}

// IsDebugMode reports whether file logging is enabled.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

func isCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()
	if !config.DebugMode {
		return false
	}
	if config.Categories == nil {
		return true
	}
	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for a category. A no-op logger is
// returned when logging or the category is disabled.
func Get(category Category) *Logger {
	if !isCategoryEnabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	filename := fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02"), category)
	file, err := os.OpenFile(filepath.Join(logsDir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: could not open log file: %v\n", err)
		return &Logger{category: category}
	}
	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if the logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Convenience functions. No-ops when the category is disabled.

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }

func Lock(format string, args ...interface{})      { Get(CategoryLock).Info(format, args...) }
func LockDebug(format string, args ...interface{}) { Get(CategoryLock).Debug(format, args...) }

func Extract(format string, args ...interface{}) { Get(CategoryExtract).Info(format, args...) }

func Scoring(format string, args ...interface{})      { Get(CategoryScoring).Info(format, args...) }
func ScoringDebug(format string, args ...interface{}) { Get(CategoryScoring).Debug(format, args...) }

func Consolidate(format string, args ...interface{}) { Get(CategoryConsolidate).Info(format, args...) }
func ConsolidateWarn(format string, args ...interface{}) {
	Get(CategoryConsolidate).Warn(format, args...)
}

func Drift(format string, args ...interface{})      { Get(CategoryDrift).Info(format, args...) }
func DriftDebug(format string, args ...interface{}) { Get(CategoryDrift).Debug(format, args...) }
func DriftWarn(format string, args ...interface{})  { Get(CategoryDrift).Warn(format, args...) }

func Promote(format string, args ...interface{}) { Get(CategoryPromote).Info(format, args...) }

func Recall(format string, args ...interface{})      { Get(CategoryRecall).Info(format, args...) }
func RecallDebug(format string, args ...interface{}) { Get(CategoryRecall).Debug(format, args...) }

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}
