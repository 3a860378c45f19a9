package logging

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/geoflow/geoflow/core/domain/interfaces"
)

const (
	LogLevelError = 1
	LogLevelWarn  = 2
	LogLevelInfo  = 3
	LogLevelDebug = 4
)

// LogDir is where --log-file streams are written
const LogDir = "/tmp/.geoflow/logs"

var (
	globalLogLevel = LogLevelInfo
	logLevelMutex  sync.RWMutex

	// Tag filtering
	tagFilter      []string
	tagFilterMutex sync.RWMutex

	// Log file streaming
	logFile      *os.File
	logFileMutex sync.Mutex
	logWriter    io.Writer = os.Stdout
)

// Logger is the interface exported from this package
type Logger = interfaces.Logger

// SetLogLevel sets the global log level
func SetLogLevel(level int) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	if level >= LogLevelError && level <= LogLevelDebug {
		globalLogLevel = level
		zerolog.SetGlobalLevel(convertLogLevel(level))
	}
}

// GetLogLevel returns the current global log level
func GetLogLevel() int {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return globalLogLevel
}

// SetTagFilter sets the tag filter from a comma-separated string.
// Tags prefixed with "-" are excluded; any other tag turns the filter into an allow list.
func SetTagFilter(filterStr string) {
	tagFilterMutex.Lock()
	defer tagFilterMutex.Unlock()

	if filterStr == "" {
		tagFilter = nil
		return
	}

	tags := strings.Split(filterStr, ",")
	tagFilter = make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tagFilter = append(tagFilter, tag)
		}
	}
}

// ShouldLogTag reports whether entries for tag pass the current filter
func ShouldLogTag(tag string) bool {
	tagFilterMutex.RLock()
	defer tagFilterMutex.RUnlock()

	if len(tagFilter) == 0 {
		return true
	}

	for _, filterTag := range tagFilter {
		if excludeTag, ok := strings.CutPrefix(filterTag, "-"); ok && matchesTag(tag, excludeTag) {
			return false
		}
	}

	hasInclusion := false
	for _, filterTag := range tagFilter {
		if strings.HasPrefix(filterTag, "-") {
			continue
		}
		hasInclusion = true
		if matchesTag(tag, filterTag) {
			return true
		}
	}

	return !hasInclusion
}

// matchesTag treats "driver" as matching both "driver" and "driver:loop"
func matchesTag(tag, filter string) bool {
	return tag == filter || strings.HasPrefix(tag, filter+":")
}

// SetLogFile enables log file streaming with an auto-generated filename
func SetLogFile() (string, error) {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	if err := os.MkdirAll(LogDir, 0755); err != nil {
		return "", err
	}

	filePath := filepath.Join(LogDir, "geoflow-"+generateLogFileHash()+".log")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}

	logFile = file
	logWriter = io.MultiWriter(os.Stdout, file)
	return filePath, nil
}

// CloseLogFile closes the log file if it's open
func CloseLogFile() error {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	logWriter = os.Stdout
	return err
}

func currentWriter() io.Writer {
	logFileMutex.Lock()
	defer logFileMutex.Unlock()
	return logWriter
}

// generateLogFileHash generates a short hash for log filename
func generateLogFileHash() string {
	randomBytes := make([]byte, 8)
	rand.Read(randomBytes)

	hashInput := fmt.Sprintf("%d-%d-%x", time.Now().UnixNano(), os.Getpid(), randomBytes)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])[:8]
}

// ZerologLogger implements the Logger interface using zerolog
type ZerologLogger struct {
	tag    string
	logger zerolog.Logger
}

// New creates a new logger instance with a tag
func New(tag string) Logger {
	if !ShouldLogTag(tag) {
		return noOpLogger{}
	}
	return NewWithWriter(tag, currentWriter())
}

// NewWithWriter creates a tagged logger writing to w.
// A console writer is used when stdout is a terminal.
func NewWithWriter(tag string, w io.Writer) Logger {
	output := w
	if isInteractive() {
		output = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02T15:04:05.000Z"}
	}
	return &ZerologLogger{
		tag:    tag,
		logger: zerolog.New(output).With().Timestamp().Str("tag", tag).Logger(),
	}
}

// isInteractive checks if the output is going to a terminal
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// convertLogLevel converts our log level to zerolog level
func convertLogLevel(level int) zerolog.Level {
	switch level {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func enabled(level int) bool {
	logLevelMutex.RLock()
	defer logLevelMutex.RUnlock()
	return level <= globalLogLevel
}

func (l *ZerologLogger) Error(message string) {
	if enabled(LogLevelError) {
		l.logger.Error().Msg(message)
	}
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	if enabled(LogLevelError) {
		l.logger.Error().Msgf(format, args...)
	}
}

func (l *ZerologLogger) Warn(message string) {
	if enabled(LogLevelWarn) {
		l.logger.Warn().Msg(message)
	}
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	if enabled(LogLevelWarn) {
		l.logger.Warn().Msgf(format, args...)
	}
}

func (l *ZerologLogger) Info(message string) {
	if enabled(LogLevelInfo) {
		l.logger.Info().Msg(message)
	}
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	if enabled(LogLevelInfo) {
		l.logger.Info().Msgf(format, args...)
	}
}

// Success logs regardless of log level
func (l *ZerologLogger) Success(message string) {
	l.logger.WithLevel(zerolog.NoLevel).Str("status", "ok").Msg(message)
}

// Successf logs regardless of log level
func (l *ZerologLogger) Successf(format string, args ...any) {
	l.logger.WithLevel(zerolog.NoLevel).Str("status", "ok").Msgf(format, args...)
}

func (l *ZerologLogger) Debug(message string) {
	if enabled(LogLevelDebug) {
		l.logger.Debug().Msg(message)
	}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	if enabled(LogLevelDebug) {
		l.logger.Debug().Msgf(format, args...)
	}
}

func (l *ZerologLogger) PrintError(title string, err error) {
	if err == nil || !enabled(LogLevelError) {
		return
	}
	l.logger.Error().Err(err).Msg(title)
}

func (l *ZerologLogger) With(key, value string) Logger {
	return &ZerologLogger{
		tag:    l.tag,
		logger: l.logger.With().Str(key, value).Logger(),
	}
}

// noOpLogger is returned for filtered tags
type noOpLogger struct{}

func (noOpLogger) Error(string)              {}
func (noOpLogger) Errorf(string, ...any)     {}
func (noOpLogger) Warn(string)               {}
func (noOpLogger) Warnf(string, ...any)      {}
func (noOpLogger) Info(string)               {}
func (noOpLogger) Infof(string, ...any)      {}
func (noOpLogger) Success(string)            {}
func (noOpLogger) Successf(string, ...any)   {}
func (noOpLogger) Debug(string)              {}
func (noOpLogger) Debugf(string, ...any)     {}
func (noOpLogger) PrintError(string, error)  {}
func (n noOpLogger) With(string, string) Logger { return n }
