package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service is attached to every line.
const Service = "feedbackbot"

// Logger wraps zerolog.Logger with the process log sinks.
type Logger struct {
	logger   zerolog.Logger
	file     io.Closer
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path
	Console   bool   // enable console output
	Pretty    bool   // human-readable console lines instead of JSON
	Redaction bool   // mask bot tokens and DSN credentials
	MaxSize   int    // max size in MB before rotation, 0 disables rotation
	MaxAge    int    // days rotated files are kept
	Compress  bool   // gzip rotated files

	// ConsoleLevel is the minimum level written to the console sink. Empty
	// means Level. It may be lower than Level, in which case the console
	// gets lines the file does not.
	ConsoleLevel string

	// Output is the console destination, stderr when nil. Stdout stays free
	// for command output.
	Output io.Writer
}

// New builds the process logger and installs it as the zerolog global.
func New(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level, zerolog.InfoLevel)
	consoleLevel := parseLevel(cfg.ConsoleLevel, level)

	console := cfg.Output
	if console == nil {
		console = os.Stderr
	}

	file, err := openLogFile(cfg)
	if err != nil {
		return nil, err
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
	}
	sink := func(w io.Writer, floor zerolog.Level) io.Writer {
		if redactor != nil {
			w = redactor.Wrap(w)
		}
		return levelFilter{writer: w, min: floor}
	}

	var writers []io.Writer
	lowest := level
	if cfg.Console || file == nil {
		var w io.Writer = console
		if cfg.Console && cfg.Pretty {
			w = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
		}
		if !cfg.Console {
			consoleLevel = level
		}
		writers = append(writers, sink(w, consoleLevel))
		if consoleLevel < lowest {
			lowest = consoleLevel
		}
	}
	if file != nil {
		writers = append(writers, sink(file, level))
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lowest).
		With().
		Timestamp().
		Str("service", Service).
		Logger()

	log.Logger = logger

	return &Logger{
		logger:   logger,
		file:     file,
		redactor: redactor,
	}, nil
}

func parseLevel(s string, fallback zerolog.Level) zerolog.Level {
	if s == "" {
		return fallback
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return fallback
	}
	return level
}

// levelFilter drops events below min for one sink.
type levelFilter struct {
	writer io.Writer
	min    zerolog.Level
}

func (f levelFilter) Write(p []byte) (int, error) {
	return f.writer.Write(p)
}

func (f levelFilter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < f.min {
		return len(p), nil
	}
	return f.writer.Write(p)
}

type writeCloser interface {
	io.Writer
	io.Closer
}

// openLogFile returns nil when no file is configured.
func openLogFile(cfg Config) (writeCloser, error) {
	if cfg.File == "" {
		return nil, nil
	}
	if cfg.MaxSize > 0 {
		return NewRotatingWriter(cfg.File, cfg.MaxSize, cfg.MaxAge, cfg.Compress)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// With creates a child logger with additional context
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    false,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}
