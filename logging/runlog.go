package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// RunLog is the per-run log file that is attached to the notification and
// captured into the outcome record.
type RunLog struct {
	Path   string
	Logger *logrus.Entry
	file   *os.File
}

// OpenRunLog creates flows_log_<measure>_<stamp>.txt under dir. Entries go to
// the file and to base, which is usually the process log.
func OpenRunLog(dir, measure string, now time.Time, base io.Writer, fields logrus.Fields) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create account dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("flows_log_%s_%s.txt", measure, now.Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	if base == nil {
		base = io.Discard
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	logger.SetLevel(logrus.InfoLevel)
	logger.SetOutput(io.MultiWriter(f, base))

	return &RunLog{
		Path:   path,
		Logger: logger.WithFields(fields),
		file:   f,
	}, nil
}

// Contents flushes and reads back the whole log file.
func (l *RunLog) Contents() (string, error) {
	if err := l.file.Sync(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *RunLog) Close() error {
	return l.file.Close()
}
