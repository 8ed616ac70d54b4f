// Package log provides structured logging for crabitat.
// It writes timestamped, category-tagged lines to a file and republishes
// every entry on a pub/sub broker so UIs can tail the log live. Logging
// is enabled via --debug or the CRABITAT_DEBUG env var.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/crabitat/crabitat/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Category groups related log messages.
type Category string

const (
	CatDB       Category = "db"       // SQLite store operations and migrations
	CatConfig   Category = "config"   // Configuration loading/saving
	CatHTTP     Category = "http"     // HTTP request surface
	CatWS       Category = "ws"       // Worker and console websocket sessions
	CatSched    Category = "sched"    // Scheduler decisions
	CatCascade  Category = "cascade"  // Dependency cascade after terminal tasks
	CatQueue    Category = "queue"    // Mission queue activation
	CatPoller   Category = "poller"   // Merge-wait PR poller
	CatWorkflow Category = "workflow" // Workflow registry and expansion
	CatForge    Category = "forge"    // Forge API calls
	CatCache    Category = "cache"    // In-memory cache hits and misses
	CatUI       Category = "ui"       // Watch TUI updates
	CatWatcher  Category = "watcher"  // Manifest file watcher events
)

// Format selects the line encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// recentCap bounds the in-memory tail kept for the watch TUI log pane.
const recentCap = 200

// Logger provides structured logging.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	writer   io.Writer
	enabled  bool
	minLevel Level
	format   Format
	broker   *pubsub.Broker[string] // Pub/sub for log events
	recent   []string               // Tail of formatted lines, oldest first
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the global logger.
// Returns a cleanup function to close the log file.
func Init(path string) (func(), error) {
	var initErr error
	once.Do(func() {
		defaultLogger, initErr = newLogger(path)
	})
	if initErr != nil {
		return nil, initErr
	}
	// Check if logger was initialized (handles case where once.Do already ran)
	if defaultLogger == nil {
		return nil, fmt.Errorf("logger initialization failed or already attempted")
	}
	return func() {
		if defaultLogger != nil && defaultLogger.file != nil {
			_ = defaultLogger.file.Close()
		}
	}, nil
}

// InitWithTeaLog uses tea.LogToFile for initialization.
func InitWithTeaLog(path string, prefix string) (func(), error) {
	f, err := tea.LogToFile(path, prefix)
	if err != nil {
		return nil, err
	}

	defaultLogger = &Logger{
		file:     f,
		writer:   f,
		enabled:  true,
		minLevel: LevelDebug,
		broker:   pubsub.NewBroker[string](),
	}

	return func() { _ = f.Close() }, nil
}

func newLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) //nolint:gosec // G304: path is user-controlled debug log path
	if err != nil {
		return nil, err
	}

	return &Logger{
		file:     f,
		writer:   f,
		enabled:  true,
		minLevel: LevelDebug,
		broker:   pubsub.NewBroker[string](),
	}, nil
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.enabled = enabled
		defaultLogger.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.minLevel = level
		defaultLogger.mu.Unlock()
	}
}

// SetFormat switches the line encoding. Unknown values keep text.
func SetFormat(format Format) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.format = format
		defaultLogger.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	log(LevelError, cat, msg, fields...)
}

func log(level Level, cat Category, msg string, fields ...any) {
	if defaultLogger == nil || !defaultLogger.enabled {
		return
	}
	if level < defaultLogger.minLevel {
		return
	}

	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02T15:04:05")

	var entry string
	if defaultLogger.format == FormatJSON {
		entry = jsonEntry(timestamp, level, cat, msg, fields)
	} else {
		entry = textEntry(timestamp, level, cat, msg, fields)
	}

	// Write to file
	if defaultLogger.writer != nil {
		_, _ = defaultLogger.writer.Write([]byte(entry + "\n"))
	}

	// Keep the tail so a log pane opened later still has history
	defaultLogger.recent = append(defaultLogger.recent, entry)
	if len(defaultLogger.recent) > recentCap {
		defaultLogger.recent = defaultLogger.recent[len(defaultLogger.recent)-recentCap:]
	}

	// Publish event to subscribers (non-blocking)
	if defaultLogger.broker != nil {
		defaultLogger.broker.Publish(pubsub.CreatedEvent, entry)
	}
}

// textEntry renders: 2025-12-06T10:45:00 [ERROR] [sched] message key=value
func textEntry(timestamp string, level Level, cat Category, msg string, fields []any) string {
	entry := fmt.Sprintf("%s [%s] [%s] %s", timestamp, level, cat, msg)

	// Append fields (key=value pairs)
	for i := 0; i+1 < len(fields); i += 2 {
		entry += fmt.Sprintf(" %v=%v", fields[i], fields[i+1])
	}
	// Handle odd field count - append orphan key with no value
	if len(fields)%2 != 0 {
		entry += fmt.Sprintf(" %v=<missing>", fields[len(fields)-1])
	}
	return entry
}

// jsonEntry renders one JSON object per line with ts/level/cat/msg plus
// the fields as extra keys.
func jsonEntry(timestamp string, level Level, cat Category, msg string, fields []any) string {
	record := map[string]any{
		"ts":    timestamp,
		"level": level.String(),
		"cat":   string(cat),
		"msg":   msg,
	}
	for i := 0; i+1 < len(fields); i += 2 {
		record[fmt.Sprintf("%v", fields[i])] = fmt.Sprintf("%v", fields[i+1])
	}
	if len(fields)%2 != 0 {
		record[fmt.Sprintf("%v", fields[len(fields)-1])] = "<missing>"
	}

	data, err := json.Marshal(record)
	if err != nil {
		return textEntry(timestamp, level, cat, msg, fields)
	}
	return string(data)
}

// Recent returns up to n of the most recent log lines, oldest first.
func Recent(n int) []string {
	if defaultLogger == nil {
		return nil
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	if n > len(defaultLogger.recent) {
		n = len(defaultLogger.recent)
	}
	out := make([]string, n)
	copy(out, defaultLogger.recent[len(defaultLogger.recent)-n:])
	return out
}

// LogEvent is a pubsub event containing a log entry.
type LogEvent = pubsub.Event[string]

// LogListener wraps a continuous listener for log events.
type LogListener = pubsub.ContinuousListener[string]

// NewListener creates a new log event listener.
// The listener is automatically cleaned up when the context is cancelled.
func NewListener(ctx context.Context) *LogListener {
	if defaultLogger == nil || defaultLogger.broker == nil {
		return nil
	}
	return pubsub.NewContinuousListener(ctx, defaultLogger.broker)
}
