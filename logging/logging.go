package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

const maxLogSize = 2 * 1024 * 1024 // 2MB

type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64

	// fallback reports rotation failures. It must not write into w.
	fallback *logrus.Logger
}

// Setup points the standard logrus logger at stdout and a size-capped file.
func Setup(logPath, level string) (*RotatingWriter, error) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logrus.SetLevel(lvl)
	}

	rw, err := NewRotatingWriter(logPath, maxLogSize)
	if err != nil {
		return nil, err
	}

	logrus.SetOutput(io.MultiWriter(os.Stdout, rw))
	return rw, nil
}

func NewRotatingWriter(logPath string, maxSize int64) (*RotatingWriter, error) {
	// Truncate if too large on startup
	if info, err := os.Stat(logPath); err == nil && info.Size() > maxSize {
		os.Truncate(logPath, 0)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	info, _ := f.Stat()
	size := int64(0)
	if info != nil {
		size = info.Size()
	}

	fallback := logrus.New()
	fallback.SetOutput(os.Stderr)

	return &RotatingWriter{
		file:     f,
		path:     logPath,
		size:     size,
		maxSize:  maxSize,
		fallback: fallback,
	}, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxSize {
		if rerr := w.rotate(); rerr != nil {
			w.fallback.WithError(rerr).WithField("path", w.path).Warn("Log rotation failed")
		}
	}

	return n, err
}

func (w *RotatingWriter) rotate() error {
	var errs []error
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}

	// Keep one backup
	if err := os.Rename(w.path, w.path+".1"); err != nil {
		errs = append(errs, fmt.Errorf("backup: %w", err))
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		errs = append(errs, fmt.Errorf("reopen: %w", err))
		return errors.Join(errs...)
	}

	w.file = f
	w.size = 0
	return errors.Join(errs...)
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
