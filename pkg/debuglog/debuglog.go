// Package debuglog keeps an append-only text log of widget updates and
// renders, one line per event, for troubleshooting from the CLI.
package debuglog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("%s: %s\n", e.Time.Format(time.RFC3339), e.Message)), nil
}

// Log appends lines to a file. A nil *Log discards everything.
type Log struct {
	mu     sync.Mutex
	path   string
	fp     *os.File
	logger *logrus.Logger
}

// Open opens path for appending, creating it and its directory if needed.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create directory for %s", path)
	}
	fp, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open debug log %s", path)
	}

	logger := logrus.New()
	logger.SetOutput(fp)
	logger.SetFormatter(lineFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	return &Log{path: path, fp: fp, logger: logger}, nil
}

// Append writes msg stamped with at.
func (l *Log) Append(msg string, at time.Time) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.WithTime(at).Info(msg)
}

// Lines returns the last n lines of the log, oldest first. n <= 0 returns
// every line.
func (l *Log) Lines(n int) ([]string, error) {
	if l == nil {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fp, err := os.Open(l.path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open debug log %s", l.path)
	}
	defer func() {
		if err := fp.Close(); err != nil {
			logrus.Warnf("failed to close file %s", l.path)
		}
	}()

	var lines []string
	sc := bufio.NewScanner(fp)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read debug log %s", l.path)
	}
	return lines, nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fp.Close()
}
