// Records relayed telemetry as JSON lines in a size rotated file
package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const batchLines int = 20

type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

type Publisher struct {
	sink        io.WriteCloser
	batchBuffer [][]byte
}

// Creates new recording output. Returns nil nil if no path.
func New(config Config) (publisher *Publisher, err error) {
	if config.Path == "" {
		return
	}

	err = os.MkdirAll(filepath.Dir(config.Path), 0o750)
	if err != nil {
		err = fmt.Errorf("failed to create recording directory: %v", err)
		return
	}
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = 100
	}

	publisher = &Publisher{
		sink: &lumberjack.Logger{
			Filename:   config.Path,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
		},
	}
	return
}

// Flushes pending lines and closes the file
func (publisher *Publisher) Close() (err error) {
	if publisher == nil || publisher.sink == nil {
		return
	}
	_, err = publisher.FlushBuffer()
	closeErr := publisher.sink.Close()
	if err == nil {
		err = closeErr
	}
	return
}
