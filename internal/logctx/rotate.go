package logctx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Size based rotation settings for file output
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Opens a size rotated log file owned by the logger.
// Combine the returned writer with other outputs for the single watcher; it is closed by logger.Wait.
func OpenLogFile(logger *Logger, opts FileOptions) (output io.Writer, err error) {
	if opts.Path == "" {
		err = fmt.Errorf("log file path is empty")
		return
	}

	err = os.MkdirAll(filepath.Dir(opts.Path), 0o750)
	if err != nil {
		err = fmt.Errorf("failed to create log directory: %v", err)
		return
	}

	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 50
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}

	logger.mutex.Lock()
	logger.sinks = append(logger.sinks, rotator)
	logger.mutex.Unlock()

	output = rotator
	return
}

// Starts new files for every rotating output, the current files become backups
func (logger *Logger) RotateFiles() (err error) {
	logger.mutex.Lock()
	sinks := append([]io.Closer(nil), logger.sinks...)
	logger.mutex.Unlock()

	for _, sink := range sinks {
		rotator, ok := sink.(interface{ Rotate() error })
		if !ok {
			continue
		}
		rotateErr := rotator.Rotate()
		if rotateErr != nil {
			err = fmt.Errorf("failed to rotate log file: %v", rotateErr)
			return
		}
	}
	return
}
