package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config holds logger configuration
type Config struct {
	Level      string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	OutputFile string `mapstructure:"file" yaml:"file,omitempty"`               // Path to log file (empty = stderr only)
	MaxSize    int64  `mapstructure:"max_size" yaml:"max_size,omitempty"`       // Max size in bytes before rotation (default: 10MB)
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups,omitempty"` // Number of old log files to keep (default: 3)
	JSONFormat bool   `mapstructure:"json" yaml:"json"`
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"` // Report caller file and line
}

// Logger is a configured logrus logger that owns its log file
type Logger struct {
	*logrus.Logger
	config Config
	file   *os.File
	mu     sync.Mutex
}

var (
	globalLogger *Logger
	once         sync.Once
)

// Initialize creates and configures the global logger
func Initialize(config Config) error {
	var initErr error
	once.Do(func() {
		logger, err := New(config, os.Stderr)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize logger: %w", err)
			return
		}
		globalLogger = logger
	})
	return initErr
}

// L returns the global logger, or the logrus standard logger before Initialize
func L() logrus.FieldLogger {
	if globalLogger != nil {
		return globalLogger.Logger
	}
	return logrus.StandardLogger()
}

// Component returns an entry tagged with the component name
func Component(name string) *logrus.Entry {
	return L().WithField("component", name)
}

// New creates a logger writing to console and, when configured, to a size-rotated file
func New(config Config, console io.Writer) (*Logger, error) {
	if config.MaxSize == 0 {
		config.MaxSize = 10 * 1024 * 1024
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}

	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	logger := &Logger{
		Logger: logrus.New(),
		config: config,
	}

	writers := []io.Writer{console}
	if config.OutputFile != "" {
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}

		if err := logger.rotateIfNeeded(); err != nil {
			return nil, fmt.Errorf("failed to rotate logs: %w", err)
		}

		file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.OutputFile, err)
		}
		logger.file = file
		writers = append(writers, file)
	}

	logger.SetOutput(io.MultiWriter(writers...))
	logger.SetLevel(level)
	logger.SetReportCaller(config.AddSource)
	if config.JSONFormat {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// ParseLevel parses a level name; empty means info
func ParseLevel(level string) (logrus.Level, error) {
	if level == "" {
		return logrus.InfoLevel, nil
	}
	l, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// rotateIfNeeded moves a log file past MaxSize to .1, shifting older backups
func (l *Logger) rotateIfNeeded() error {
	if l.config.OutputFile == "" {
		return nil
	}

	info, err := os.Stat(l.config.OutputFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	if info.Size() < l.config.MaxSize {
		return nil
	}

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	// the oldest backup is overwritten by the rename below
	for i := l.config.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i)
		newPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i+1)
		if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, newPath)
		}
	}

	backupPath := fmt.Sprintf("%s.1", l.config.OutputFile)
	if err := os.Rename(l.config.OutputFile, backupPath); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	return nil
}

// Close closes the log file if one is open
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Close closes the global logger
func Close() error {
	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}

// FilePath returns the log file of the global logger
func FilePath() string {
	if globalLogger != nil {
		return globalLogger.config.OutputFile
	}
	return ""
}

// DefaultConfig returns the console-only configuration
func DefaultConfig(verbose bool) Config {
	if verbose {
		return Config{Level: "debug", AddSource: true}
	}
	return Config{Level: "info"}
}
