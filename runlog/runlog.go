// Package runlog writes the per-run log file.
package runlog

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// FilePrefix and Layout name log files like newsmood_20240131_154500.log.
const (
	FilePrefix = "newsmood_"
	Layout     = "20060102_150405"
)

// Log is an append-only, timestamped log file for one run.
type Log struct {
	*log.Logger
	file *os.File
	path string
}

// maxSameSecond bounds the runs that may share one start second.
const maxSameSecond = 100

// FileName returns the log file name for a run started at start.
func FileName(start time.Time) string {
	return FilePrefix + start.Format(Layout) + ".log"
}

// Open creates the log file for a run started at start in dir. A run starting
// in the same second as an earlier one gets a numbered name such as
// newsmood_20240131_154500_2.log. Extra writers, such as os.Stderr, receive
// every line as well.
func Open(dir string, start time.Time, extra ...io.Writer) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	var f *os.File
	var path string
	for n := 1; f == nil; n++ {
		if n > maxSameSecond {
			return nil, fmt.Errorf("failed to open run log: too many runs started at %s", start.Format(Layout))
		}
		name := FileName(start)
		if n > 1 {
			name = fmt.Sprintf("%s%s_%d.log", FilePrefix, start.Format(Layout), n)
		}
		path = filepath.Join(dir, name)

		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open run log: %w", err)
		}
	}

	var w io.Writer = f
	if len(extra) > 0 {
		w = io.MultiWriter(append([]io.Writer{f}, extra...)...)
	}

	return &Log{
		Logger: log.New(w, "", log.LstdFlags),
		file:   f,
		path:   path,
	}, nil
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Close closes the log file.
func (l *Log) Close() error {
	return l.file.Close()
}
