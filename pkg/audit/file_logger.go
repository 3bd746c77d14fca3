package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	currentLogName  = "audit.log"
	rotatedLogGlob  = "audit-*.log"
	rotatedLogStamp = "20060102-150405.000000000"
)

// FileLogger appends events as newline-delimited JSON
type FileLogger struct {
	basePath string
	file     *os.File
	mu       sync.Mutex
	encoder  *json.Encoder
	maxSize  int64 // Max file size in bytes before rotation, 0 disables
	maxFiles int   // Max number of rotated files to keep
	now      func() time.Time
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Base directory for audit logs
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
		now:      time.Now,
	}
	if logger.maxSize == 0 {
		logger.maxSize = 100 * 1024 * 1024
	}
	if logger.maxFiles == 0 {
		logger.maxFiles = 10
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

func (l *FileLogger) openLogFile() error {
	file, err := os.OpenFile(filepath.Join(l.basePath, currentLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// rotate renames the current file aside, prunes old files beyond maxFiles
// and reopens a fresh audit.log. Callers hold l.mu.
func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log: %w", err)
	}

	rotated := filepath.Join(l.basePath, "audit-"+l.now().UTC().Format(rotatedLogStamp)+".log")
	if err := os.Rename(filepath.Join(l.basePath, currentLogName), rotated); err != nil {
		return fmt.Errorf("failed to rename audit log: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(l.basePath, rotatedLogGlob))
	if err == nil && len(files) > l.maxFiles {
		// Timestamped names sort oldest first
		sort.Strings(files)
		for _, file := range files[:len(files)-l.maxFiles] {
			os.Remove(file)
		}
	}

	return l.openLogFile()
}

// Log logs an audit event to the file
func (l *FileLogger) Log(_ context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log is closed")
	}

	if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Close syncs and closes the current file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		l.file = nil
		return fmt.Errorf("failed to sync audit log: %w", err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}
