// Package logging builds the diagnostic logger. Entries go to a rotating file
// (lumberjack) and, with Verbose, also to stderr. The file is the "output
// channel" of evolog: it keeps the error detail and any generated message that
// could not be inserted.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvLogFile overrides the log file path.
const EnvLogFile = "EVOLOG_LOG_FILE"

const (
	_logMaxSizeMB   = 5
	_logMaxBackups  = 3
	_logMaxAgeDays  = 28
	_logFileName    = "evolog.log"
	_logDirFileMode = 0o750
)

// Options configures New.
type Options struct {
	// Path is the log file; empty means DefaultPath.
	Path string
	// Verbose lowers the level to Debug and mirrors entries to Console.
	Verbose bool
	// Quiet raises the level to Warn. Ignored when Verbose is set.
	Quiet bool
	// Console receives mirrored entries when Verbose is set; nil means os.Stderr.
	Console io.Writer
	// NoColor disables ANSI colors on the console writer.
	NoColor bool
}

// DefaultPath returns EVOLOG_LOG_FILE when set, else
// <user cache dir>/evolog/logs/evolog.log.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvLogFile); p != "" {
		return p, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("log path: %w", err)
	}
	return filepath.Join(dir, "evolog", "logs", _logFileName), nil
}

// New returns a logger writing to the rotating file and the closer for it.
// When the file cannot be opened the logger falls back to the console only
// (Verbose) or discards entries; the error is returned alongside so callers
// can mention it, but the logger is always usable.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := selectLevel(opts.Verbose, opts.Quiet)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var writers []io.Writer
	if opts.Verbose {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        console,
			NoColor:    opts.NoColor,
			TimeFormat: time.Kitchen,
		})
	}

	closer := io.Closer(nopCloser{})
	file, err := openFile(opts.Path)
	if err == nil {
		writers = append(writers, file)
		closer = file
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

func openFile(path string) (*lumberjack.Logger, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), _logDirFileMode); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	// lumberjack opens lazily; open it now so a bad path is reported at startup.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, errors.Join(errors.New("open log file"), err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    _logMaxSizeMB,
		MaxBackups: _logMaxBackups,
		MaxAge:     _logMaxAgeDays,
	}, nil
}

func selectLevel(verbose, quiet bool) zerolog.Level {
	switch {
	case verbose:
		return zerolog.DebugLevel
	case quiet:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
