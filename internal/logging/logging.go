// Package logging builds the zerolog logger used across stepflow.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xvierd/stepflow/internal/config"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

const (
	logMaxSizeMB   = 10
	logMaxBackups  = 3
	logMaxAgeDays  = 28
	defaultLogFile = "stepflow.log"
)

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|secret|password)\s*[:=]\s*["']?[^\s"',}]{8,}["']?`),
}

// Options tune where the logger writes.
type Options struct {
	// Verbose forces debug level.
	Verbose bool
	// Console writes to stderr in addition to the file. Full-screen
	// terminal clients turn it off.
	Console bool
	// DataDir holds the default log file when cfg.File is empty.
	DataDir string
}

// New creates a logger from cfg. The returned closer releases the log file.
// A file that cannot be opened is reported and logging continues on the
// console.
func New(cfg config.LogConfig, opts Options) (zerolog.Logger, io.Closer, error) {
	level := selectLevel(cfg.Level, opts.Verbose)

	var writers []io.Writer
	if opts.Console {
		writers = append(writers, selectOutput(os.Stderr))
	}

	var closer io.Closer = nopCloser{}
	fileWriter, err := createLogFileWriter(cfg.File, opts.DataDir)
	if err == nil {
		writers = append(writers, NewFilteringWriter(fileWriter))
		closer = fileWriter
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return logger, closer, err
}

// selectLevel parses the configured level; verbose wins.
func selectLevel(name string, verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// selectOutput uses a console writer on a terminal without NO_COLOR and
// JSON otherwise.
func selectOutput(f *os.File) io.Writer {
	if term.IsTerminal(f.Fd()) && os.Getenv("NO_COLOR") == "" {
		return zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	return f
}

func createLogFileWriter(file, dataDir string) (io.WriteCloser, error) {
	if file == "" {
		if dataDir == "" {
			return nil, fmt.Errorf("no log file configured")
		}
		file = filepath.Join(dataDir, "logs", defaultLogFile)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}, nil
}

// FilterSensitiveValue replaces API keys and tokens in s.
func FilterSensitiveValue(s string) string {
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, RedactedValue)
	}
	return s
}

// FilteringWriter redacts secrets before they reach disk.
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter wraps w.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer. It reports the original length so callers do
// not see a short write.
func (fw *FilteringWriter) Write(p []byte) (int, error) {
	if _, err := fw.w.Write([]byte(FilterSensitiveValue(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
