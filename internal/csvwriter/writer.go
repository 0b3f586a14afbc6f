package csvwriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Writer is a simple CSV writer.
type Writer struct {
	path   string
	file   *os.File
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
	rows   int
}

// NewWriter creates the file (and its directory) and writes header when it
// is non-empty.
func NewWriter(filePath string, header []string, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", filePath, err)
	}
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	w := &Writer{
		path:   filePath,
		file:   file,
		writer: csv.NewWriter(file),
		logger: logger,
	}
	if len(header) > 0 {
		if err := w.writer.Write(header); err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to write CSV header: %w", err), file.Close())
		}
	}
	return w, nil
}

// Write writes a record to the CSV file.
func (w *Writer) Write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	w.rows++
	return nil
}

// Rows returns the number of records written, header excluded.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Flush flushes any buffered data to the underlying file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	err := multierr.Append(w.Flush(), w.file.Close())
	if err != nil {
		w.logger.Error("Failed to close CSV file", zap.String("path", w.path), zap.Error(err))
		return err
	}
	w.logger.Debug("Closed CSV file", zap.String("path", w.path), zap.Int("rows", w.rows))
	return nil
}
